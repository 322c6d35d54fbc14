// Package catalog holds the static satellite and product metadata that the
// planner derives expected inventories from. A Catalog is built once,
// validated, and then only read.
package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sw33tLie/goesplan/pkg/goeserr"
)

const dateLayout = "2006-01-02"

// Positions lists the orbital slots in display order.
var Positions = []string{"east", "west"}

type Kind string

const (
	Raster Kind = "raster"
	Vector Kind = "vector"
)

type RasterInfo struct {
	CadenceFullDisk   string `yaml:"cadence_full_disk" json:"cadence_full_disk" validate:"required"`
	ResolutionNominal string `yaml:"resolution_nominal" json:"resolution_nominal" validate:"required"`
	ShapeFullDisk     [2]int `yaml:"shape_full_disk" json:"shape_full_disk"`
}

type VectorInfo struct {
	Cadence           string `yaml:"cadence" json:"cadence" validate:"required"`
	CadenceGrouped    string `yaml:"cadence_grouped" json:"cadence_grouped" validate:"required"`
	ResolutionSpatial string `yaml:"resolution_spatial" json:"resolution_spatial" validate:"required"`
}

// Slots are the zero-padded time components a product is published at.
// An empty Minutes or Seconds list means that component is absent from the
// slot token.
type Slots struct {
	Hours   []string `yaml:"hours" json:"hours" validate:"required,min=1,dive,len=2,numeric"`
	Minutes []string `yaml:"minutes" json:"minutes" validate:"omitempty,dive,len=2,numeric"`
	Seconds []string `yaml:"seconds" json:"seconds" validate:"omitempty,dive,len=2,numeric"`
}

// Count is the number of slots per day.
func (s Slots) Count() int {
	return len(s.Hours) * max(1, len(s.Minutes)) * max(1, len(s.Seconds))
}

// Slot is one publication time within a day.
type Slot struct {
	Hour, Minute, Second string
}

// Token concatenates the present components, e.g. "13" or "1340" or "134020".
func (s Slot) Token() string {
	return s.Hour + s.Minute + s.Second
}

// Expand returns the Cartesian product Hours x Minutes x Seconds in
// ascending token order.
func (s Slots) Expand() []Slot {
	minutes := s.Minutes
	if len(minutes) == 0 {
		minutes = []string{""}
	}
	seconds := s.Seconds
	if len(seconds) == 0 {
		seconds = []string{""}
	}
	out := make([]Slot, 0, s.Count())
	for _, h := range s.Hours {
		for _, m := range minutes {
			for _, sec := range seconds {
				out = append(out, Slot{Hour: h, Minute: m, Second: sec})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Token() < out[j].Token() })
	return out
}

type Product struct {
	ID             string      `yaml:"id" json:"id" validate:"required"`
	FullName       string      `yaml:"full_name" json:"full_name" validate:"required"`
	Description    string      `yaml:"description" json:"description" validate:"required"`
	Level          string      `yaml:"level" json:"level" validate:"required"`
	FileNamePrefix string      `yaml:"file_name_prefix" json:"file_name_prefix" validate:"required"`
	Units          string      `yaml:"units" json:"units" validate:"required"`
	TypicalRange   string      `yaml:"typical_range" json:"typical_range"`
	MainUse        string      `yaml:"main_use" json:"main_use" validate:"required"`
	Notes          string      `yaml:"notes" json:"notes"`
	ExpectedCount  int         `yaml:"expected_count" json:"expected_count" validate:"required,gt=0"`
	TimeLapse      string      `yaml:"time_lapse" json:"time_lapse" validate:"required"`
	Kind           Kind        `yaml:"kind" json:"kind" validate:"required,oneof=raster vector"`
	Raster         *RasterInfo `yaml:"raster,omitempty" json:"raster,omitempty" validate:"required_if=Kind raster,excluded_unless=Kind raster"`
	Vector         *VectorInfo `yaml:"vector,omitempty" json:"vector,omitempty" validate:"required_if=Kind vector,excluded_unless=Kind vector"`
	Slots          Slots       `yaml:"slots" json:"slots"`
}

type Satellite struct {
	ID           string   `yaml:"id" json:"id" validate:"required,len=2,numeric"`
	Bucket       string   `yaml:"bucket" json:"bucket" validate:"required"`
	MirrorBucket string   `yaml:"mirror_bucket" json:"mirror_bucket"`
	DisplayName  string   `yaml:"display_name" json:"display_name" validate:"required"`
	Aliases      []string `yaml:"aliases" json:"aliases"`
	Position     string   `yaml:"position" json:"position" validate:"required,oneof=east west"`
	Status       string   `yaml:"status" json:"status" validate:"required,oneof=active standby"`
	FirstDate    string   `yaml:"first_date" json:"first_date" validate:"required,datetime=2006-01-02"`
	LastDate     string   `yaml:"last_date" json:"last_date" validate:"omitempty,datetime=2006-01-02"`
}

// Transition is the cut-over from one satellite to its successor in a
// position. Dates strictly before Date resolve to From.
type Transition struct {
	Position string `yaml:"position" json:"position" validate:"required,oneof=east west"`
	From     string `yaml:"from" json:"from" validate:"required"`
	To       string `yaml:"to" json:"to" validate:"required"`
	Date     string `yaml:"date" json:"date" validate:"required,datetime=2006-01-02"`
}

// Definition is the serializable form of a catalog.
type Definition struct {
	Satellites  []Satellite  `yaml:"satellites" validate:"required,min=1,dive"`
	Products    []Product    `yaml:"products" validate:"required,min=1,dive"`
	Transitions []Transition `yaml:"transitions" validate:"dive"`
}

type Catalog struct {
	def         Definition
	satellites  map[string]Satellite
	aliases     map[string]string
	products    map[string]Product
	transitions map[string][]cutover
}

type cutover struct {
	from, to string
	at       time.Time
}

// New validates def and builds a read-only catalog.
func New(def Definition) (*Catalog, error) {
	v := validator.New()
	if err := v.Struct(def); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	c := &Catalog{
		def:         def,
		satellites:  make(map[string]Satellite),
		aliases:     make(map[string]string),
		products:    make(map[string]Product),
		transitions: make(map[string][]cutover),
	}

	for _, s := range def.Satellites {
		if _, dup := c.satellites[s.ID]; dup {
			return nil, fmt.Errorf("invalid catalog: duplicate satellite %s", s.ID)
		}
		c.satellites[s.ID] = s
		for _, a := range append([]string{s.ID, s.DisplayName}, s.Aliases...) {
			c.aliases[a] = s.ID
		}
	}

	for _, p := range def.Products {
		if _, dup := c.products[p.ID]; dup {
			return nil, fmt.Errorf("invalid catalog: duplicate product %s", p.ID)
		}
		if n := p.Slots.Count(); n != p.ExpectedCount {
			return nil, fmt.Errorf("invalid catalog: product %s declares %d files per day but its slots expand to %d", p.ID, p.ExpectedCount, n)
		}
		c.products[p.ID] = p
	}

	for _, t := range def.Transitions {
		from, ok := c.satellites[t.From]
		if !ok {
			return nil, fmt.Errorf("invalid catalog: transition references unknown satellite %s", t.From)
		}
		to, ok := c.satellites[t.To]
		if !ok {
			return nil, fmt.Errorf("invalid catalog: transition references unknown satellite %s", t.To)
		}
		if from.Position != t.Position || to.Position != t.Position {
			return nil, fmt.Errorf("invalid catalog: transition %s->%s does not match position %s", t.From, t.To, t.Position)
		}
		at, _ := time.Parse(dateLayout, t.Date)
		c.transitions[t.Position] = append(c.transitions[t.Position], cutover{from: t.From, to: t.To, at: at})
	}
	for pos := range c.transitions {
		cs := c.transitions[pos]
		sort.Slice(cs, func(i, j int) bool { return cs[i].at.Before(cs[j].at) })
	}

	for _, pos := range Positions {
		if _, ok := c.transitions[pos]; ok {
			continue
		}
		if _, err := c.activeIn(pos); err != nil {
			return nil, fmt.Errorf("invalid catalog: %w", err)
		}
	}

	return c, nil
}

// Satellite looks up a satellite by ID, display name or alias.
func (c *Catalog) Satellite(idOrAlias string) (Satellite, bool) {
	id, ok := c.aliases[idOrAlias]
	if !ok {
		return Satellite{}, false
	}
	s, ok := c.satellites[id]
	return s, ok
}

// Product looks up a product by ID.
func (c *Catalog) Product(id string) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// Products returns the products in definition order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.def.Products))
	copy(out, c.def.Products)
	return out
}

// Satellites returns the satellites in definition order.
func (c *Catalog) Satellites() []Satellite {
	out := make([]Satellite, len(c.def.Satellites))
	copy(out, c.def.Satellites)
	return out
}

// ProductIDs returns product IDs in definition order.
func (c *Catalog) ProductIDs() []string {
	ids := make([]string, 0, len(c.def.Products))
	for _, p := range c.def.Products {
		ids = append(ids, p.ID)
	}
	return ids
}

// Transitions returns the configured cut-overs.
func (c *Catalog) Transitions() []Transition {
	out := make([]Transition, len(c.def.Transitions))
	copy(out, c.def.Transitions)
	return out
}

// SatelliteFor returns the satellite operating at position on the given
// calendar date (only year/month/day are considered).
func (c *Catalog) SatelliteFor(date time.Time, position string) (Satellite, error) {
	if position != "east" && position != "west" {
		return Satellite{}, goeserr.Invalid("sat_position", position, "must be east or west")
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	cs := c.transitions[position]
	if len(cs) == 0 {
		return c.activeIn(position)
	}
	id := cs[0].from
	for _, co := range cs {
		if day.Before(co.at) {
			break
		}
		id = co.to
	}
	return c.satellites[id], nil
}

func (c *Catalog) activeIn(position string) (Satellite, error) {
	var found []Satellite
	for _, s := range c.def.Satellites {
		if s.Position == position && s.Status == "active" {
			found = append(found, s)
		}
	}
	if len(found) != 1 {
		return Satellite{}, fmt.Errorf("expected exactly one active satellite in position %s, found %d", position, len(found))
	}
	return found[0], nil
}
