// Package diagnostics provides pera's structured CLI-level logging:
// source-file read failures, and REPL line-editor and clipboard
// failures. It never
// carries the interpreter core's own CompileError/RuntimeError outcomes,
// which stay plain error returns per spec.md §7 — diagnostics only
// wraps events around that core (ambient stack, SPEC_FULL.md).
package diagnostics

import (
	"os"

	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
)

// New returns a logger formatted the way golox's own CLI-facing logger
// is (a short timestamped single-line format), writing to stderr so it
// never interleaves with PRINT output on stdout.
func New(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = &easy.Formatter{
		TimestampFormat: "15:04:05",
		LogFormat:       "[%lvl%] %time% - %msg%\n",
	}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
