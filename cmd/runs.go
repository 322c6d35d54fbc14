package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/goesplan/pkg/storage"
)

func openLedgerStrict() (*storage.DB, error) {
	path := viper.GetString("ledger_path")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("ledger not found: %s", path)
	}
	return storage.Open(path)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent download runs (default 20)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		receipts, _ := cmd.Flags().GetBool("receipts")
		db, err := openLedgerStrict()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), limit)
		if err != nil {
			return err
		}
		for _, r := range runs {
			ts := r.StartedAt.Format("2006-01-02 15:04:05")
			fmt.Printf("%s  %-4s  %s  %-5s  %s  %s  ok=%d skip=%d fail=%d missing=%d canceled=%d  local=%d/%d  %s\n",
				ts, r.Backend, r.DateJulian, r.Position, r.Satellite, r.ProductID,
				r.Succeeded, r.Skipped, r.Failed, r.NotFound, r.Interrupted, r.LocalPresent, r.Expected,
				humanize.IBytes(uint64(r.BytesTransferred)))
			if !receipts {
				continue
			}
			rcs, err := db.ListReceipts(context.Background(), r.ID)
			if err != nil {
				return err
			}
			for _, rc := range rcs {
				if rc.Status == "downloaded" || rc.Status == "skipped" {
					continue
				}
				fmt.Printf("    %s  %-9s  %6s  %s\n", rc.SlotKey, rc.Status, rc.Duration, rc.Error)
			}
		}
		return nil
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints download totals per product.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openLedgerStrict()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(context.Background())
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No runs in the ledger to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "PRODUCT\tRUNS\tDOWNLOADED\tFAILED\tBYTES\t")

		var totalRuns, totalFiles, totalFailed int
		var totalBytes int64
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t\n", s.ProductID, s.RunCount, s.FilesDownloaded, s.FilesFailed, humanize.IBytes(uint64(s.BytesTransferred)))
			totalRuns += s.RunCount
			totalFiles += s.FilesDownloaded
			totalFailed += s.FilesFailed
			totalBytes += s.BytesTransferred
		}

		fmt.Fprintln(w, " \t \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t%s\t\n", totalRuns, totalFiles, totalFailed, humanize.IBytes(uint64(totalBytes)))

		w.Flush()

		return nil
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than --older-than",
	RunE: func(cmd *cobra.Command, _ []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		db, err := openLedgerStrict()
		if err != nil {
			return err
		}
		defer db.Close()
		n, err := db.PruneRuns(context.Background(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d runs\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsStatsCmd, runsPruneCmd)
	runsCmd.Flags().Int("limit", 20, "Number of recent runs to show")
	runsCmd.Flags().Bool("receipts", false, "Also list the files that were not downloaded")
	runsPruneCmd.Flags().Duration("older-than", 90*24*time.Hour, "Age of the runs to delete")
}
