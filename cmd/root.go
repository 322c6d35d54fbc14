package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/sw33tLie/goesplan/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	                          _
	  __ _  ___  ___  ___ _ __ | | __ _ _ __
	 / _' |/ _ \/ _ \/ __| '_ \| |/ _' | '_ \
	| (_| | (_) |  __/\__ \ |_) | | (_| | | | |
	 \__, |\___/ \___||___/ .__/|_|\__,_|_| |_|
	 |___/                |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "goesplan",
	Short: "Plan, download and process GOES-R satellite products.",
	Long: LOGO + `goesplan derives the expected file inventory of a GOES-R product for one day,
keeps it as a JSON download plan, reconciles it against the local archive and the
public NOAA buckets, and downloads what is missing.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.goesplan.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("archive-root", "", "Local archive root (default from config: archive_root)")
	rootCmd.PersistentFlags().String("plan-root", "", "Folder holding plan files (default from config: plan_root)")
	rootCmd.PersistentFlags().String("catalog", "", "YAML catalog overriding the built-in satellites and products")

	viper.BindPFlag("archive_root", rootCmd.PersistentFlags().Lookup("archive-root"))
	viper.BindPFlag("plan_root", rootCmd.PersistentFlags().Lookup("plan-root"))
	viper.BindPFlag("catalog_file", rootCmd.PersistentFlags().Lookup("catalog"))
}

// initConfig reads in .env, the config file and ENV variables if set.
func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	home, err := homedir.Dir()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(home)
		viper.SetConfigName(".goesplan")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("GOESPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	base := filepath.Join(home, "goesplan")
	viper.SetDefault("archive_root", filepath.Join(base, "archive"))
	viper.SetDefault("plan_root", filepath.Join(base, "plans"))
	viper.SetDefault("ledger_path", filepath.Join(base, "goesplan.sqlite"))
	viper.SetDefault("catalog_file", "")
	viper.SetDefault("remote.backend", "s3")
	viper.SetDefault("remote.endpoint", "")
	viper.SetDefault("remote.region", "us-east-1")
	viper.SetDefault("remote.retry_max", 3)
	viper.SetDefault("remote.timeout", "5m")
	viper.SetDefault("download.workers", 4)
	viper.SetDefault("render.command", "")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			configPath := filepath.Join(home, ".goesplan.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s\n", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
