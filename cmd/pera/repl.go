package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rmay/pera/internal/diagnostics"
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "start an interactive REPL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl()
		},
	}
}

// runRepl drives an interactive session: one shared session (§5's
// process-wide singletons) persists across lines, and the VM is reset
// between evaluations per SPEC_FULL.md's "VM reuse between REPL lines"
// (§7: "the VM is reusable").
func runRepl() error {
	log := diagnostics.New(verboseFlag)
	s := newSession(traceFlag)

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println("pera REPL — Ctrl-D to exit, :yank to copy the last line, :quit to exit")
	}

	rl, err := readline.New("pera> ")
	if err != nil {
		log.WithError(err).Error("could not start line editor")
		return err
	}
	defer rl.Close()

	var buf strings.Builder
	var lastSource string

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				buf.Reset()
				rl.SetPrompt("pera> ")
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		trimmed := strings.TrimSpace(line)
		if buf.Len() == 0 {
			switch trimmed {
			case "":
				continue
			case ":quit", ":exit":
				return nil
			case ":yank":
				if err := clipboard.WriteAll(lastSource); err != nil {
					log.WithError(err).Warn("clipboard write failed")
				}
				continue
			}
		}

		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)

		if parenBalance(buf.String()) > 0 {
			rl.SetPrompt("....> ")
			continue
		}
		rl.SetPrompt("pera> ")

		source := buf.String()
		buf.Reset()
		lastSource = source

		if err := s.run(source); err != nil {
			fmt.Fprintln(os.Stderr, err)
			s.machine.Reset()
			continue
		}
		if !s.machine.LastValue().IsNil() {
			fmt.Println(s.machine.LastValue().String())
		}
		s.machine.Reset()
	}
}

// parenBalance counts unmatched '(' across src, ignoring parens inside
// "..." string literals, so the REPL knows a form like "(do" is
// incomplete and keeps prompting (SPEC_FULL.md's "REPL line
// continuation").
func parenBalance(src string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(src); i++ {
		ch := src[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	return depth
}
