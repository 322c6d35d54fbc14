package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/goesplan/internal/utils"
	"github.com/sw33tLie/goesplan/pkg/catalog"
	"github.com/sw33tLie/goesplan/pkg/plan"
	"github.com/sw33tLie/goesplan/pkg/remote"
	"github.com/sw33tLie/goesplan/pkg/storage"
)

// selection is the (position, product, year, day) a command works on.
type selection struct {
	Position string
	Product  string
	Year     string
	Day      string
}

func addSelectionFlags(c *cobra.Command) {
	c.Flags().StringP("sat-position", "s", "", "Satellite position: east, west or ALL")
	c.Flags().StringP("product", "p", "", "Product ID (see 'goesplan catalog products') or ALL")
	c.Flags().StringP("year", "y", "", "Year, 4 digits (YYYY)")
	c.Flags().StringP("day", "d", "", "Julian day, 3 digits (DDD)")
	for _, f := range []string{"sat-position", "product", "year", "day"} {
		c.MarkFlagRequired(f)
	}
}

func readSelection(c *cobra.Command) selection {
	var s selection
	s.Position, _ = c.Flags().GetString("sat-position")
	s.Product, _ = c.Flags().GetString("product")
	s.Year, _ = c.Flags().GetString("year")
	s.Day, _ = c.Flags().GetString("day")
	return s
}

func loadCatalog() (*catalog.Catalog, error) {
	path := viper.GetString("catalog_file")
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	utils.Log.Debugf("Using catalog %s", path)
	return cat, nil
}

func archiveRoot() string {
	root, err := filepath.Abs(viper.GetString("archive_root"))
	if err != nil {
		return viper.GetString("archive_root")
	}
	return root
}

func newStore() *plan.Store {
	return plan.NewStore(viper.GetString("plan_root"))
}

// resolvePlans expands the selection and returns the paths of the plans it
// names. Plans that were never generated, or whose selection is invalid,
// are reported and skipped.
func resolvePlans(cat *catalog.Catalog, store *plan.Store, s selection) ([]string, error) {
	g := plan.NewGenerator(cat, archiveRoot(), nil)
	var paths []string
	var firstErr error
	for _, r := range g.GenerateAll(s.Position, s.Product, s.Year, s.Day) {
		if r.Err != nil {
			utils.Log.Errorf("%s %s: %v", r.Position, r.ProductID, r.Err)
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		if !store.Exists(r.Plan) {
			utils.Log.Warnf("No plan at %s, run 'goesplan plan generate' first", store.PathFor(r.Plan))
			continue
		}
		paths = append(paths, store.PathFor(r.Plan))
	}
	if len(paths) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return paths, nil
}

func newRemote(ctx context.Context, cat *catalog.Catalog, backend string) (remote.Client, error) {
	if backend == "" {
		backend = viper.GetString("remote.backend")
	}
	mirrors := map[string]string{}
	for _, sat := range cat.Satellites() {
		if sat.MirrorBucket != "" {
			mirrors[sat.Bucket] = sat.MirrorBucket
		}
	}
	return remote.New(ctx, remote.Options{
		Backend:   backend,
		Endpoint:  viper.GetString("remote.endpoint"),
		Region:    viper.GetString("remote.region"),
		RetryMax:  viper.GetInt("remote.retry_max"),
		Timeout:   viper.GetDuration("remote.timeout"),
		BucketMap: mirrors,
	})
}

// openLedger opens the run ledger. A ledger that cannot be opened only
// disables run recording.
func openLedger() *storage.DB {
	path := viper.GetString("ledger_path")
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		utils.Log.Warnf("Run ledger %s unavailable: %v", path, err)
		return nil
	}
	db, err := storage.Open(path)
	if err != nil {
		utils.Log.Warnf("Run ledger %s unavailable: %v", path, err)
		return nil
	}
	return db
}
