package main

import (
	"fmt"

	"github.com/rmay/pera/internal/compiler"
	"github.com/rmay/pera/internal/globals"
	"github.com/rmay/pera/internal/heap"
	"github.com/rmay/pera/internal/intern"
	"github.com/rmay/pera/internal/value"
	"github.com/rmay/pera/internal/vm"
)

// session bundles the shared, process-wide singletons spec.md §5
// requires (the intern table, the globals table, the heap registry,
// and the VM) so a REPL can keep them alive across lines while `run`
// and `disasm` build a fresh one per process.
type session struct {
	interner *intern.Table
	heap     *heap.Registry
	globals  *globals.Table
	machine  *vm.VM
}

func newSession(trace bool) *session {
	it := intern.New()
	h := heap.New()
	g := globals.New()
	return &session{
		interner: it,
		heap:     h,
		globals:  g,
		machine:  vm.New(g, h, it, trace),
	}
}

// compile runs the single-pass compiler over src against the
// session's shared tables.
func (s *session) compile(src string) (*value.ObjFunction, error) {
	comp := compiler.New(src, s.interner, s.heap, s.globals, traceFlag)
	fn, err := comp.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}
	return fn, nil
}

// run compiles and executes src, per §7's CompileError/RuntimeError
// outcomes.
func (s *session) run(src string) error {
	fn, err := s.compile(src)
	if err != nil {
		return err
	}
	if err := s.machine.Run(fn); err != nil {
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}
