package plan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/juju/clock"
	"github.com/sw33tLie/goesplan/pkg/catalog"
	"github.com/sw33tLie/goesplan/pkg/goeserr"
)

// All selects every product or every position in GenerateAll.
const All = "ALL"

var (
	yearRe = regexp.MustCompile(`^\d{4}$`)
	dayRe  = regexp.MustCompile(`^\d{3}$`)
)

// Generator derives download plans from the catalog. It does no I/O.
type Generator struct {
	catalog     *catalog.Catalog
	archiveRoot string
	clock       clock.Clock
}

// NewGenerator creates a generator writing expected local paths under
// archiveRoot. A nil clock means the wall clock.
func NewGenerator(cat *catalog.Catalog, archiveRoot string, clk clock.Clock) *Generator {
	if clk == nil {
		clk = clock.WallClock
	}
	if abs, err := filepath.Abs(archiveRoot); err == nil {
		archiveRoot = abs
	}
	return &Generator{catalog: cat, archiveRoot: archiveRoot, clock: clk}
}

// ParseDate validates a 4-digit year and 3-digit Julian day and returns the
// calendar date they denote.
func ParseDate(year, day string) (time.Time, error) {
	if !yearRe.MatchString(year) {
		return time.Time{}, goeserr.Invalid("year", year, "must be exactly 4 digits (YYYY)")
	}
	if !dayRe.MatchString(day) {
		return time.Time{}, goeserr.Invalid("day", day, "must be exactly 3 digits (DDD)")
	}
	y, _ := strconv.Atoi(year)
	d, _ := strconv.Atoi(day)
	if d < 1 || d > 366 {
		return time.Time{}, goeserr.Invalid("day", day, "must be between 001 and 366")
	}
	date := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d-1)
	if date.Year() != y {
		return time.Time{}, goeserr.Invalid("day", day, fmt.Sprintf("year %s has no day %s", year, day))
	}
	return date, nil
}

// Generate builds the plan for one (position, product, year, day).
func (g *Generator) Generate(position, productID, year, day string) (*Plan, error) {
	date, err := ParseDate(year, day)
	if err != nil {
		return nil, err
	}
	if position != "east" && position != "west" {
		return nil, goeserr.Invalid("sat_position", position, "must be east or west")
	}
	product, ok := g.catalog.Product(productID)
	if !ok {
		return nil, goeserr.Invalid("product", productID, "unknown product")
	}
	sat, err := g.catalog.SatelliteFor(date, position)
	if err != nil {
		return nil, err
	}

	slots := product.Slots.Expand()
	total := len(slots)
	width := len(strconv.Itoa(product.ExpectedCount))
	prefixDay := fmt.Sprintf("%s/%s/%s", product.ID, year, day)

	p := &Plan{
		SatProdInfo: SatProdInfo{
			Satellite:        "GOES-" + sat.ID,
			SatID:            sat.ID,
			SatPosition:      position,
			ProductID:        product.ID,
			BucketName:       sat.Bucket,
			Year:             year,
			Day:              day,
			DateJulian:       year + day,
			DateGregorian:    date.Format("2006-01-02"),
			PrefixDay:        prefixDay,
			TotalFilesOneDay: total,
		},
		Summary: Summary{
			TotalFilesExpected: total,
			TimeFileCreation:   g.clock.Now().UTC().Format(time.RFC3339),
		},
		Inventory: make(Inventory, total),
	}
	p.SelfInfo.FileName = p.FileName()

	namePrefix := product.FileNamePrefix + sat.ID + "_s"
	for i, slot := range slots {
		token := year + day + slot.Token()
		prefix := prefixDay + "/" + slot.Hour
		folder := filepath.Join(g.archiveRoot, sat.Bucket, filepath.FromSlash(prefix))
		expected := namePrefix + token + ".nc"

		p.Inventory[fmt.Sprintf("file%0*d", width, i+1)] = &Entry{
			PosFile:   fmt.Sprintf("%0*d of %d", width, i+1, total),
			TimeStamp: token,
			Hour:      slot.Hour,
			Minute:    slot.Minute,
			Second:    slot.Second,
			MiniSummary: MiniSummary{
				Status: StatusPending,
			},
			FileS3: RemoteFile{
				Bucket: sat.Bucket,
				Prefix: prefix,
				Regex:  namePrefix + token + "*.nc",
			},
			FileLocal: LocalFile{
				FileNameExpected: expected,
				PathAbsolute:     Str(filepath.Join(folder, expected)),
			},
			FolderLocal: LocalFolder{
				PathAbsolute: Str(folder),
			},
		}
	}
	return p, nil
}

// Result pairs one requested (position, product) with its outcome.
type Result struct {
	Position  string
	ProductID string
	Plan      *Plan
	Err       error
}

// GenerateAll expands All for position and productID and generates every
// combination. A failure for one pair does not stop the others.
func (g *Generator) GenerateAll(position, productID, year, day string) []Result {
	positions := []string{position}
	if position == All {
		positions = catalog.Positions
	}
	products := []string{productID}
	if productID == All {
		products = g.catalog.ProductIDs()
	}

	var out []Result
	for _, pos := range positions {
		for _, prod := range products {
			p, err := g.Generate(pos, prod, year, day)
			out = append(out, Result{Position: pos, ProductID: prod, Plan: p, Err: err})
		}
	}
	return out
}
