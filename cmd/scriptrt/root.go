package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/script-runtime/engine"
)

var rootCmd = &cobra.Command{
	Use:   "scriptrt",
	Short: "Embeddable script runtime host",
	Long: `scriptrt - Host shell for the script runtime.

Runs modules from configured search paths with hot reload, or drops into
an interactive evaluation loop. Configuration comes from flags or a YAML
file passed with --config.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			engine.SetLogger(logger)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringSlice("search-path", nil, "Module search path (repeatable)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable development logging")
}
