package debug_test

import (
	"strings"
	"testing"

	"github.com/rmay/pera/internal/compiler"
	"github.com/rmay/pera/internal/debug"
	"github.com/rmay/pera/internal/globals"
	"github.com/rmay/pera/internal/heap"
	"github.com/rmay/pera/internal/intern"
)

func compile(t *testing.T, src string) *strings.Builder {
	t.Helper()
	fn, err := compiler.New(src, intern.New(), heap.New(), globals.New()).Compile()
	if err != nil {
		t.Fatalf("compile(%q): %v", src, err)
	}
	var out strings.Builder
	debug.Disassemble(&out, fn)
	return &out
}

func TestDisassembleShowsScriptHeader(t *testing.T) {
	out := compile(t, `(print 1)`)
	if !strings.Contains(out.String(), "== <script> ==") {
		t.Errorf("missing script header, got:\n%s", out.String())
	}
}

func TestDisassembleResolvesConstantOperands(t *testing.T) {
	out := compile(t, `(print "hi")`)
	if !strings.Contains(out.String(), `"hi"`) {
		t.Errorf("expected the constant's resolved value in the listing, got:\n%s", out.String())
	}
}

func TestDisassembleRecursesIntoNestedFunctions(t *testing.T) {
	out := compile(t, `(on (sq n) (* n n))`)
	s := out.String()
	if !strings.Contains(s, "== sq ==") {
		t.Errorf("expected a nested == sq == header, got:\n%s", s)
	}
	if !strings.Contains(s, "MUL") {
		t.Errorf("expected MUL in the nested function's listing, got:\n%s", s)
	}
}

func TestDisassembleResolvesJumpTargets(t *testing.T) {
	out := compile(t, `(if true (print 1) (print 2))`)
	s := out.String()
	if !strings.Contains(s, "JUMP_IF_FALSE ->") || !strings.Contains(s, "JUMP ->") {
		t.Errorf("expected resolved jump targets, got:\n%s", s)
	}
}
