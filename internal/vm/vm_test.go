package vm_test

import (
	"strings"
	"testing"

	"github.com/rmay/pera/internal/compiler"
	"github.com/rmay/pera/internal/globals"
	"github.com/rmay/pera/internal/heap"
	"github.com/rmay/pera/internal/intern"
	"github.com/rmay/pera/internal/vm"
)

// run compiles and executes src against a fresh session, returning
// everything written via PRINT, one line per call.
func run(t *testing.T, src string) string {
	t.Helper()
	it := intern.New()
	h := heap.New()
	g := globals.New()

	fn, err := compiler.New(src, it, h, g).Compile()
	if err != nil {
		t.Fatalf("compile(%q): %v", src, err)
	}

	machine := vm.New(g, h, it)
	var out strings.Builder
	machine.SetOutput(&out)

	if err := machine.Run(fn); err != nil {
		t.Fatalf("run(%q): %v", src, err)
	}
	return out.String()
}

// TestEndToEndScenarios exercises every literal example in spec.md §8.
func TestEndToEndScenarios(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"add", `(print (+ 1 2))`, "3\n"},
		{"concat", `(print (.. "foo" "bar"))`, "\"foobar\"\n"},
		{"do-block-rebind", `(do (put x 10) (put x (+ x 5)) (print x))`, "15\n"},
		{"global-put-then-read", `(put _g 7) (print _g)`, "7\n"},
		{"function-call", `(on (sq n) (* n n)) (print (sq 6))`, "36\n"},
		{"while-loop", `(put i 0) (while (not (= i 3)) (do (print i) (put i (+ i 1))))`, "0\n1\n2\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := run(t, c.src); got != c.want {
				t.Errorf("run(%q) = %q, want %q", c.src, got, c.want)
			}
		})
	}
}

func TestIfEvaluatesExactlyOneBranch(t *testing.T) {
	if got := run(t, `(if true (print 1) (print 2))`); got != "1\n" {
		t.Errorf("got %q, want %q", got, "1\n")
	}
	if got := run(t, `(if false (print 1) (print 2))`); got != "2\n" {
		t.Errorf("got %q, want %q", got, "2\n")
	}
}

func TestEqualityReflexiveForEveryKind(t *testing.T) {
	cases := []string{
		`(print (= nil nil))`,
		`(print (= 5 5))`,
		`(print (= true true))`,
		`(print (= "a" "a"))`,
	}
	for _, src := range cases {
		if got := run(t, src); got != "true\n" {
			t.Errorf("run(%q) = %q, want %q", src, got, "true\n")
		}
	}
}

func TestUnaryMinusIsNeg(t *testing.T) {
	if got := run(t, `(print (- 5))`); got != "-5\n" {
		t.Errorf("got %q, want %q", got, "-5\n")
	}
}

func TestFunctionCalledAfterDefinition(t *testing.T) {
	src := `
		(on (add a b) (+ a b))
		(print (add (add 1 2) 3))
	`
	if got := run(t, src); got != "6\n" {
		t.Errorf("got %q, want %q", got, "6\n")
	}
}

// Self-recursion is not expressible: a function's own name is bound in
// the enclosing frame only after its body is fully compiled (§4.2.4),
// and functions capture no enclosing locals (design note 9, "closure
// as a stub"), so a body can never resolve its own name.
func TestSelfReferenceInBodyIsCompileError(t *testing.T) {
	it := intern.New()
	h := heap.New()
	g := globals.New()
	_, err := compiler.New(`(on (fact n) (fact n))`, it, h, g).Compile()
	if err == nil {
		t.Fatal("expected a compile error: a function cannot reference its own name in its body")
	}
}

func TestUndefinedGlobalIsCompileError(t *testing.T) {
	it := intern.New()
	h := heap.New()
	g := globals.New()
	_, err := compiler.New(`(print _nope)`, it, h, g).Compile()
	if err == nil {
		t.Fatal("expected a compile error for an unknown global")
	}
}

func TestArityMismatchIsRuntimeError(t *testing.T) {
	it := intern.New()
	h := heap.New()
	g := globals.New()
	fn, err := compiler.New(`(on (f a b) (+ a b)) (f 1)`, it, h, g).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	machine := vm.New(g, h, it)
	if err := machine.Run(fn); err == nil {
		t.Fatal("expected a runtime error for an arity mismatch")
	}
}

func TestResetClearsStackAndFrames(t *testing.T) {
	it := intern.New()
	h := heap.New()
	g := globals.New()
	machine := vm.New(g, h, it)

	fn, err := compiler.New(`(put _x 1)`, it, h, g).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := machine.Run(fn); err != nil {
		t.Fatalf("run: %v", err)
	}
	machine.Reset()
	if len(machine.Stack()) != 0 {
		t.Errorf("Stack() after Reset has %d entries, want 0", len(machine.Stack()))
	}
	if machine.FrameDepth() != 0 {
		t.Errorf("FrameDepth() after Reset = %d, want 0", machine.FrameDepth())
	}

	// Globals persist across Reset, per the REPL-reuse contract.
	fn2, err := compiler.New(`(print _x)`, it, h, g).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var out strings.Builder
	machine.SetOutput(&out)
	if err := machine.Run(fn2); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "1\n" {
		t.Errorf("got %q, want %q", out.String(), "1\n")
	}
}
