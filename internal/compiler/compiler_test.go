package compiler

import (
	"strings"
	"testing"

	"github.com/rmay/pera/internal/globals"
	"github.com/rmay/pera/internal/heap"
	"github.com/rmay/pera/internal/intern"
	"github.com/rmay/pera/internal/vm"
)

func newCompiler(t *testing.T, src string) *Compiler {
	t.Helper()
	return New(src, intern.New(), heap.New(), globals.New())
}

func TestConstantPoolDeduplicates(t *testing.T) {
	fn, err := newCompiler(t, `(print (+ 1 (+ 1 1)))`).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := len(fn.Chunk.Constants); got != 1 {
		t.Errorf("Constants has %d entries, want 1 (the repeated literal 1 should share a slot)", got)
	}
}

func TestMaxConstantsOverflowIsCompileError(t *testing.T) {
	var b strings.Builder
	b.WriteString("(do ")
	for i := 0; i < 257; i++ {
		b.WriteString("(print ")
		b.WriteString(itoa(i))
		b.WriteString(") ")
	}
	b.WriteString(")")
	_, err := newCompiler(t, b.String()).Compile()
	if err == nil {
		t.Fatal("expected a compile error: 257 distinct constants exceeds the 256-entry pool (§4.2.8)")
	}
}

func TestMaxLocalsOverflowIsCompileError(t *testing.T) {
	var b strings.Builder
	b.WriteString("(do ")
	for i := 0; i < 256; i++ {
		b.WriteString("(put ")
		b.WriteString("v")
		b.WriteString(itoa(i))
		b.WriteString(" ")
		b.WriteString(itoa(i))
		b.WriteString(") ")
	}
	b.WriteString(")")
	_, err := newCompiler(t, b.String()).Compile()
	if err == nil {
		t.Fatal("expected a compile error: 256 distinct locals exceeds the per-function limit (§3, §6)")
	}
}

func TestTooManyParametersIsCompileError(t *testing.T) {
	var b strings.Builder
	b.WriteString("(on (f ")
	for i := 0; i < 256; i++ {
		b.WriteString("a")
		b.WriteString(itoa(i))
		b.WriteString(" ")
	}
	b.WriteString(") nil)")
	_, err := newCompiler(t, b.String()).Compile()
	if err == nil {
		t.Fatal("expected a compile error: 256 parameters exceeds the 255 arity limit (§6)")
	}
}

// The redefinition rebind in §4.2.5 must find a local wherever it was
// declared in the frame, not only in the current-or-deeper scope,
// otherwise a `put` inside a nested `do` shadows instead of mutating
// and a loop counter never advances (§8 scenario 6; see DESIGN.md).
func TestPutInsideNestedDoRebindsOuterLocal(t *testing.T) {
	fn, err := newCompiler(t, `(put i 0) (do (put i (+ i 1)))`).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var setLocalSlots []byte
	code := fn.Chunk.Code
	for i := 0; i < len(code); {
		switch vm.Opcode(code[i]) {
		case vm.OpSetLocal:
			setLocalSlots = append(setLocalSlots, code[i+1])
			i += 2
		case vm.OpGetLocal, vm.OpCall, vm.OpEndScope, vm.OpConstant, vm.OpGetGlobal, vm.OpSetGlobal, vm.OpClosure:
			i += 2
		case vm.OpJump, vm.OpJumpIfFalse, vm.OpLoop:
			i += 3
		default:
			i++
		}
	}
	if len(setLocalSlots) != 2 || setLocalSlots[0] != setLocalSlots[1] {
		t.Errorf("SET_LOCAL slots = %v, want both instances targeting the same slot (rebind, not shadow)", setLocalSlots)
	}
}

func TestResolveLocalScansWholeFrame(t *testing.T) {
	c := newCompiler(t, ``)
	c.pushFrame(frameTopLevel)
	c.openScope()
	c.top.locals = append(c.top.locals, local{name: "x", depth: 0})
	c.openScope()
	if slot, ok := c.resolveLocal("x"); !ok || slot != 1 {
		t.Errorf("resolveLocal(%q) = (%d, %v), want (1, true)", "x", slot, ok)
	}
}

func TestUnknownLocalIsCompileError(t *testing.T) {
	_, err := newCompiler(t, `(print x)`).Compile()
	if err == nil {
		t.Fatal("expected a compile error for an unresolved local")
	}
}

func TestUnknownGlobalIsCompileError(t *testing.T) {
	_, err := newCompiler(t, `(print _nope)`).Compile()
	if err == nil {
		t.Fatal("expected a compile error: _nope was never declared via put/on (§4.2.3)")
	}
}

func TestOperatorArityMismatchIsCompileError(t *testing.T) {
	cases := []string{
		`(+ 1)`,
		`(+ 1 2 3)`,
		`(not)`,
		`(not 1 2)`,
		`(nil 1)`,
	}
	for _, src := range cases {
		if _, err := newCompiler(t, src).Compile(); err == nil {
			t.Errorf("compile(%q): expected an arity-mismatch error", src)
		}
	}
}

func TestSingleTrailingLocalEmitsNoEndScope(t *testing.T) {
	fn, err := newCompiler(t, `(do (put x 1))`).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, b := range fn.Chunk.Code {
		if vm.Opcode(b) == vm.OpEndScope {
			t.Error("a single trailing local must not emit END_SCOPE (§4.2.2)")
		}
	}
}

func TestMultiErrorAggregatesTopLevelDiagnostics(t *testing.T) {
	// Two independent top-level mistakes: an unknown local, then an
	// unknown global. Both should surface in the aggregated error.
	_, err := newCompiler(t, `(print nope) (print _alsonope)`).Compile()
	if err == nil {
		t.Fatal("expected a compile error")
	}
	msg := err.Error()
	if !strings.Contains(msg, `"nope"`) {
		t.Errorf("aggregated error %q: missing first diagnostic", msg)
	}
	if !strings.Contains(msg, "_alsonope") {
		t.Errorf("aggregated error %q: missing second diagnostic", msg)
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}
