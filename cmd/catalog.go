package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the satellites and products goesplan knows about",
}

var catalogSatellitesCmd = &cobra.Command{
	Use:   "satellites",
	Short: "List satellites, their buckets and hand-overs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPOSITION\tSTATUS\tBUCKET\tMIRROR\tALIASES\t")
		for _, s := range cat.Satellites() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				s.ID, s.DisplayName, s.Position, s.Status, s.Bucket, s.MirrorBucket, strings.Join(s.Aliases, ","))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if ts := cat.Transitions(); len(ts) > 0 {
			fmt.Println()
			for _, t := range ts {
				fmt.Printf("%s: GOES-%s -> GOES-%s from %s\n", t.Position, t.From, t.To, t.Date)
			}
		}
		return nil
	},
}

var catalogProductsCmd = &cobra.Command{
	Use:   "products",
	Short: "List products and their daily cadence",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tKIND\tFILES/DAY\tCADENCE\tUNITS\t")
		for _, p := range cat.Products() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t\n", p.ID, p.FullName, p.Kind, p.ExpectedCount, p.TimeLapse, p.Units)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogSatellitesCmd, catalogProductsCmd)
}
