package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rmay/pera/internal/diagnostics"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <path>",
		Short: "compile and run a source file",
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
			if err := s.run(string(src)); err != nil {
				os.Stderr.WriteString(err.Error() + "\n")
				os.Exit(1)
			}
			return nil
		},
	}
}
