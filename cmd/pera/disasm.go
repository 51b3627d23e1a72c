package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rmay/pera/internal/debug"
	"github.com/rmay/pera/internal/diagnostics"
)

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <path>",
		Short: "compile a source file and print its disassembled bytecode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := diagnostics.New(verboseFlag)
			path := args[0]

			src, err := os.ReadFile(path)
			if err != nil {
				log.WithError(err).Errorf("could not read %s", path)
				os.Exit(1)
			}

			s := newSession(traceFlag)
			fn, err := s.compile(string(src))
			if err != nil {
				os.Stderr.WriteString(err.Error() + "\n")
				os.Exit(1)
			}
			debug.Disassemble(os.Stdout, fn)
			return nil
		},
	}
}
