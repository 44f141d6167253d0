package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wippyai/script-runtime/engine"
)

var runCmd = &cobra.Command{
	Use:   "run <module>",
	Short: "Load and execute a module",
	Long: `Resolve a module id against the configured search paths, execute it and
pump the runtime until exit.

With --watch the runtime periodically re-scans loaded modules and reloads
changed sources in place.`,
	Args: cobra.ExactArgs(1),
	Run:  runRun,
}

func init() {
	runCmd.Flags().Bool("watch", false, "Keep running and hot-reload changed modules")
	runCmd.Flags().Duration("tick", 100*time.Millisecond, "Update pump interval in watch mode")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Dispose()

	if _, err := rt.Load(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", engine.FormatException(err))
		os.Exit(1)
	}
	rt.Update(0)

	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		return
	}
	tick, _ := cmd.Flags().GetDuration("tick")
	for {
		time.Sleep(tick)
		rt.Update(tick)
		rt.Modules().ScanChanges()
	}
}
