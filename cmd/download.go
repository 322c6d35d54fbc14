package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/goesplan/internal/utils"
	"github.com/sw33tLie/goesplan/pkg/download"
	"github.com/sw33tLie/goesplan/pkg/plan"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the files missing from existing plans",
	Long: `Lists the day once on the remote archive, matches every plan entry against the
listing and downloads the missing files in parallel. Each file is written to a
temporary name and only renamed into place once its size has been verified.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		workers, _ := cmd.Flags().GetInt("workers")
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		backend, _ := cmd.Flags().GetString("backend")
		if workers <= 0 {
			workers = viper.GetInt("download.workers")
		}

		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		store := newStore()
		paths, err := resolvePlans(cat, store, readSelection(cmd))
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("nothing to download")
		}

		client, err := newRemote(ctx, cat, backend)
		if err != nil {
			return err
		}
		if c, ok := client.(io.Closer); ok {
			defer c.Close()
		}
		utils.Log.Debugf("Using %s backend", client.Name())

		cfg := download.Config{
			Store:       store,
			Remote:      client,
			ArchiveRoot: archiveRoot(),
			Workers:     workers,
			Overwrite:   overwrite,
			Log:         utils.Log,
			OnUnitDone: func(r download.Receipt) {
				switch r.Status {
				case plan.StatusDownloaded:
					utils.Log.Infof("%s  %s  %s", r.SlotKey, filepath.Base(r.ObjectKey), humanize.IBytes(uint64(r.Bytes)))
				case plan.StatusFailed:
					utils.Log.Warnf("%s  failed: %v", r.SlotKey, r.Err)
				}
			},
		}
		if ledger := openLedger(); ledger != nil {
			defer ledger.Close()
			cfg.Ledger = ledger
		}
		engine := download.New(cfg)

		var failed int
		for _, path := range paths {
			if ctx.Err() != nil {
				break
			}
			sum, err := engine.Execute(ctx, path)
			if err != nil {
				utils.Log.Errorf("%s: %v", filepath.Base(path), err)
				failed++
				continue
			}
			fmt.Printf("%s  %s  transferred=%s in %s\n", filepath.Base(path), sum, humanize.IBytes(uint64(sum.BytesTransferred)), sum.Duration.Round(time.Millisecond))
			failed += sum.Failed
		}
		if ctx.Err() != nil {
			return fmt.Errorf("interrupted, rerun the same command to resume")
		}
		if failed > 0 {
			return fmt.Errorf("%d downloads failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addSelectionFlags(downloadCmd)
	downloadCmd.Flags().IntP("workers", "w", 0, "Parallel downloads (default from config: download.workers)")
	downloadCmd.Flags().Bool("overwrite", false, "Download again files already present with the right size")
	downloadCmd.Flags().String("backend", "", "Remote backend: s3, http or gcs (default from config: remote.backend)")
}
