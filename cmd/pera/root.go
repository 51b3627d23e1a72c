// Command pera is the CLI front end for the interpreter (spec.md §6,
// collaborator not core): `pera run <path>`, `pera repl`, and
// `pera disasm <path>` subcommands, replacing the teacher's flat
// `flag.Parse()` now that there is more than one mode (SPEC_FULL.md
// DOMAIN STACK).
package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

var (
	traceFlag   bool
	verboseFlag bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pera",
		Short: "pera interpreter: compiler and stack VM for a parenthesized prefix-notation language",
		Long: heredoc.Doc(`
			pera compiles and runs programs written in a small, parenthesized
			prefix-notation language over a single-pass bytecode compiler and
			stack-based virtual machine.

			Run with no arguments to start the REPL, or give it a source file
			to run directly.
		`),
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runRepl()
			}
			return newRunCmd().RunE(cmd, args)
		},
	}
	root.PersistentFlags().BoolVar(&traceFlag, "trace", false, "print VM execution trace to stderr")
	root.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "enable debug-level CLI logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newReplCmd())
	root.AddCommand(newDisasmCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
