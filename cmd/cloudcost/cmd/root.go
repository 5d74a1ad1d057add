// Package cmd provides the CLI commands for cloudcost.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cloudcost/internal/config"
	"cloudcost/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cloudcost",
	Short: "Allocate and aggregate cloud billing data",
	Long: `cloudcost turns a raw cloud billing export into a normalized hourly
usage/cost series, splits commitment-covered amounts into their
amortized, recurring, borrowed and lent components, and applies
configurable allocation rules to derive new cost facts.

Examples:
  cloudcost process --config cloudcost.hcl
  cloudcost process --config cloudcost.hcl --billing export-2017-06.csv`,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "processor config file (HCL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		config.Set(cfg)
	}

	cfg := config.Get()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(*cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cloudcost version 0.1.0")
	},
}
