package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/wippyai/script-runtime/engine"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive evaluation loop",
	Long: `Start an interactive session against a fresh runtime.

Features:
  - Command history (up/down arrows)
  - History search (Ctrl+R)
  - require() against the configured search paths

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Run: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.scriptrt_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".scriptrt_history")
	}

	rt, err := buildRuntime(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Dispose()

	// Expose require at the top level so the loop can pull modules in.
	if err := rt.Engine().GlobalObject().Set("require",
		rt.Engine().NewFunc(func(call engine.FunctionCall) engine.Value {
			m, err := rt.Load(call.Argument(0).String())
			if err != nil {
				rt.Engine().Throw(err)
			}
			return m.Exports
		})); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Fprintln(os.Stderr, "scriptrt REPL (type 'exit' to quit, Ctrl+D to exit)")

	n := 0
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		n++
		v, err := rt.Eval(fmt.Sprintf("repl:%d", n), line)
		if err != nil {
			fmt.Fprintln(os.Stderr, engine.FormatException(err))
		} else if !engine.IsNullish(v) {
			fmt.Println(v.String())
		}
		rt.Update(0)
	}
}
