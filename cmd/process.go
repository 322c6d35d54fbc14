package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/goesplan/internal/utils"
	"github.com/sw33tLie/goesplan/pkg/process"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Render the downloaded files of existing plans",
	Long: `Runs render.command once per locally present file that has not been processed
yet. {file} and {overwrite} in the command are replaced with the file path and
the overwrite flag, e.g.

  render.command: python -m goes_render --input {file} --overwrite {overwrite}`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		command, _ := cmd.Flags().GetString("command")
		if command == "" {
			command = viper.GetString("render.command")
		}
		renderer, err := process.NewCommandRenderer(command)
		if err != nil {
			return err
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

		trigger := process.New(store, renderer, utils.Log)
		var failed int
		for _, path := range paths {
			res, err := trigger.Run(ctx, path, overwrite)
			if err != nil {
				utils.Log.Errorf("%s: %v", filepath.Base(path), err)
				failed++
				if ctx.Err() != nil {
					break
				}
				continue
			}
			fmt.Printf("%s  candidates=%d processed=%d failed=%d\n", filepath.Base(path), res.Candidates, res.Processed, res.Failed)
			failed += res.Failed
		}
		if failed > 0 {
			return fmt.Errorf("%d files could not be processed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
	addSelectionFlags(processCmd)
	processCmd.Flags().Bool("overwrite", false, "Process again files already marked as processed")
	processCmd.Flags().String("command", "", "Render command (default from config: render.command)")
}
