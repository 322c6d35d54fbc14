package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/sw33tLie/goesplan/internal/utils"
	"github.com/sw33tLie/goesplan/pkg/plan"
	"github.com/sw33tLie/goesplan/pkg/reconcile"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate, inspect and edit download plans",
}

var planGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the download plan of a product for one day",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sel := readSelection(cmd)
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		checkLocal, _ := cmd.Flags().GetBool("check-local")

		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		root := archiveRoot()
		g := plan.NewGenerator(cat, root, nil)
		rec := reconcile.New(afero.NewOsFs(), root, utils.Log)

		var plans []*plan.Plan
		failed := 0
		for _, r := range g.GenerateAll(sel.Position, sel.Product, sel.Year, sel.Day) {
			if r.Err != nil {
				utils.Log.Errorf("%s %s: %v", r.Position, r.ProductID, r.Err)
				failed++
				continue
			}
			if checkLocal {
				rec.Local(r.Plan)
			}
			plans = append(plans, r.Plan)
		}

		saved, skipped := 0, 0
		for _, rep := range newStore().SaveAll(plans, overwrite) {
			switch {
			case rep.Err != nil:
				utils.Log.Errorf("Could not save %s: %v", rep.Path, rep.Err)
				failed++
			case rep.Result == plan.Skipped:
				utils.Log.Infof("Kept existing plan %s (use --overwrite to replace it)", rep.Path)
				skipped++
			default:
				utils.Log.Infof("Saved %s", rep.Path)
				saved++
			}
		}
		fmt.Printf("plans saved=%d skipped=%d failed=%d\n", saved, skipped, failed)
		if failed > 0 && saved+skipped == 0 {
			return fmt.Errorf("no plan could be generated")
		}
		return nil
	},
}

var planCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Reconcile plans against the local archive, generating missing ones",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sel := readSelection(cmd)
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		root := archiveRoot()
		g := plan.NewGenerator(cat, root, nil)
		rec := reconcile.New(afero.NewOsFs(), root, utils.Log)

		failed := 0
		for _, r := range rec.CheckPlans(g, newStore(), sel.Position, sel.Product, sel.Year, sel.Day) {
			if r.Err != nil {
				utils.Log.Errorf("%s %s: %v", r.Position, r.ProductID, r.Err)
				failed++
				continue
			}
			s := r.Plan.Summary
			fmt.Printf("%s  ready=%d/%d  downloaded=%d  size=%.2f MB  done=%t  new=%t\n",
				filepath.Base(r.Path), s.TotalFilesReady, s.TotalFilesExpected, s.TotalFilesDownloaded, s.TotalSizeMB, s.IsDone, r.Generated)
		}
		if failed > 0 {
			return fmt.Errorf("%d plans could not be checked", failed)
		}
		return nil
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <plan.json>",
	Short: "Print a plan file after validating it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := newStore()
		if _, err := store.Load(args[0]); err != nil {
			return err
		}
		data, err := store.ReadRaw(args[0])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var planSetCmd = &cobra.Command{
	Use:   "set <plan.json> <key.path> <json value>",
	Short: "Set one existing key of a plan, e.g. download_inventory.file03.mini_summary.is_processed true",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		dec := json.NewDecoder(bytes.NewReader([]byte(args[2])))
		dec.UseNumber()
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			// Bare words are taken as strings.
			value = args[2]
		}
		_, err := newStore().Update(args[0], func(p *plan.Plan) error {
			return p.Set(args[1], value)
		})
		if err != nil {
			return err
		}
		utils.Log.Infof("Updated %s in %s", args[1], args[0])
		return nil
	},
}

var planStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize every plan on disk",
	RunE: func(cmd *cobra.Command, _ []string) error {
		year, _ := cmd.Flags().GetString("year")
		day, _ := cmd.Flags().GetString("day")
		store := newStore()
		paths, err := store.List(year, day)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Println("No plans found under", store.Root())
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "DATE\tSATELLITE\tPOSITION\tPRODUCT\tREADY\tDONE\tSIZE\tLAST FILE\t")
		for _, path := range paths {
			data, err := store.ReadRaw(path)
			if err != nil {
				utils.Log.Warnf("Skipping %s: %v", path, err)
				continue
			}
			if !gjson.ValidBytes(data) {
				utils.Log.Warnf("Skipping %s: not valid JSON", path)
				continue
			}
			f := gjson.GetManyBytes(data,
				"sat_prod_info.date_julian",
				"sat_prod_info.satellite",
				"sat_prod_info.sat_position",
				"sat_prod_info.product_id",
				"summary.total_files_ready",
				"summary.total_files_expected",
				"summary.is_done",
				"summary.total_size_mb",
				"summary.time_last_mod",
			)
			size := humanize.IBytes(uint64(f[7].Float() * 1024 * 1024))
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%t\t%s\t%s\t\n",
				f[0].String(), f[1].String(), f[2].String(), f[3].String(),
				f[4].Int(), f[5].Int(), f[6].Bool(), size, lastMod(f[8]))
		}
		return w.Flush()
	},
}

func lastMod(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return "-"
	}
	t, err := time.Parse(plan.TimeLayout, v.String())
	if err != nil {
		return v.String()
	}
	return humanize.Time(t)
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.AddCommand(planGenerateCmd, planCheckCmd, planShowCmd, planSetCmd, planStatusCmd)

	addSelectionFlags(planGenerateCmd)
	planGenerateCmd.Flags().Bool("overwrite", false, "Replace plans that already exist")
	planGenerateCmd.Flags().Bool("check-local", false, "Reconcile against the local archive before saving")

	addSelectionFlags(planCheckCmd)

	planStatusCmd.Flags().StringP("year", "y", "", "Only plans of this year")
	planStatusCmd.Flags().StringP("day", "d", "", "Only plans of this Julian day")
}
