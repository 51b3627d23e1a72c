// Package vm implements pera's stack-based virtual machine (§4.4): a
// value stack, a fixed-size call-frame stack, and one dispatch loop
// that fetches, decodes, and executes opcodes against the shared
// globals table, heap registry, and intern table.
//
// Like the teacher's (rmay/nuxvm pkg/vm) VM, each opcode has its own
// method doing its own bounds checking and returning a wrapped error;
// the central Run loop dispatches on a switch and annotates every
// failure with the opcode name, and a struct-field Debug flag (not a
// build tag) gates trace output to stderr.
package vm

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/rmay/pera/internal/globals"
	"github.com/rmay/pera/internal/heap"
	"github.com/rmay/pera/internal/intern"
	"github.com/rmay/pera/internal/value"
)

// MaxFrames is the fixed call-frame stack depth (§4.4, §6).
const MaxFrames = 64

// MaxStack is the fixed value stack depth: FRAMES_MAX × 256 (§3, §6).
const MaxStack = MaxFrames * 256

// frame is one call-frame record (§4.4): the running closure, its
// program counter, and its base pointer into the value stack.
type frame struct {
	closure *value.ObjClosure
	pc      int
	base    int
}

// VM executes compiled pera functions. The globals table, heap
// registry, and intern table are shared with the compiler that
// produced the code being run (§5: "shared resources are process-wide
// singletons owned by the VM").
type VM struct {
	stack  []value.Value
	frames []*frame

	globals  *globals.Table
	heap     *heap.Registry
	interner *intern.Table

	// lastValue holds the top-level function's final result after a
	// successful Run, for the REPL to display.
	lastValue value.Value

	out   io.Writer
	Debug bool
}

// New returns a VM sharing the given globals table, heap registry, and
// intern table, matching the teacher's `NewVM(program, trace ...bool)`
// variadic-trace convention.
func New(g *globals.Table, h *heap.Registry, it *intern.Table, trace ...bool) *VM {
	t := false
	if len(trace) > 0 {
		t = trace[0]
	}
	return &VM{
		globals:  g,
		heap:     h,
		interner: it,
		out:      os.Stdout,
		Debug:    t,
	}
}

// Reset clears the value stack and the frame stack, keeping the
// globals table, intern table, and heap registry alive, per SPEC_FULL.md's
// "VM reuse between REPL lines" (§7: "the VM is reusable").
func (vm *VM) Reset() {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
}

// Stack returns a copy of the current value stack, for tests.
func (vm *VM) Stack() []value.Value {
	return append([]value.Value{}, vm.stack...)
}

// LastValue returns the most recently completed top-level Run's final
// result, for the REPL to print.
func (vm *VM) LastValue() value.Value { return vm.lastValue }

// FrameDepth reports the current call-frame depth.
func (vm *VM) FrameDepth() int { return len(vm.frames) }

// SetOutput redirects PRINT output, for tests.
func (vm *VM) SetOutput(w io.Writer) { vm.out = w }

// Run wraps fn in a closure, pushes it as the initial frame's callee,
// and interprets until the outermost RETURN (§4's "data flow" note:
// "the VM loads the top-level function, wraps it in a closure, pushes
// the closure, enters its frame, interprets until RETURN at frame
// depth 0").
func (vm *VM) Run(fn *value.ObjFunction) error {
	closure := &value.ObjClosure{Function: fn}
	vm.heap.Track(closure)
	if err := vm.push(value.FromObject(closure)); err != nil {
		return err
	}
	vm.frames = append(vm.frames, &frame{closure: closure, pc: 0, base: len(vm.stack) - 1})
	return vm.run()
}

func (vm *VM) push(v value.Value) error {
	if len(vm.stack) >= MaxStack {
		return fmt.Errorf("stack overflow")
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (value.Value, error) {
	if len(vm.stack) == 0 {
		return value.Nil, fmt.Errorf("stack underflow")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *VM) peek() value.Value { return vm.stack[len(vm.stack)-1] }

func (vm *VM) currentFrame() *frame { return vm.frames[len(vm.frames)-1] }

// run is the central fetch-decode-execute loop.
func (vm *VM) run() error {
	for len(vm.frames) > 0 {
		f := vm.currentFrame()
		chunk := f.closure.Function.Chunk

		if f.pc >= len(chunk.Code) {
			return fmt.Errorf("program counter out of bounds")
		}
		op := Opcode(chunk.Code[f.pc])
		f.pc++

		if vm.Debug {
			fmt.Fprintf(os.Stderr, "VM: pc=%d op=%s stack=%v\n", f.pc-1, op.Name(), vm.stack)
		}

		var err error
		switch op {
		case OpConstant:
			idx := chunk.Code[f.pc]
			f.pc++
			err = vm.opConstant(idx)
		case OpNil:
			err = vm.push(value.Nil)
		case OpTrue:
			err = vm.push(value.Bool(true))
		case OpFalse:
			err = vm.push(value.Bool(false))
		case OpPop:
			_, err = vm.pop()
		case OpGetLocal:
			slot := chunk.Code[f.pc]
			f.pc++
			err = vm.opGetLocal(slot)
		case OpSetLocal:
			slot := chunk.Code[f.pc]
			f.pc++
			err = vm.opSetLocal(slot)
		case OpGetGlobal:
			idx := chunk.Code[f.pc]
			f.pc++
			err = vm.opGetGlobal(idx)
		case OpSetGlobal:
			idx := chunk.Code[f.pc]
			f.pc++
			err = vm.opSetGlobal(idx)
		case OpEndScope:
			n := chunk.Code[f.pc]
			f.pc++
			err = vm.opEndScope(int(n))
		case OpNeg:
			err = vm.opNeg()
		case OpAdd:
			err = vm.opAdd()
		case OpSub:
			err = vm.opSub()
		case OpMul:
			err = vm.opMul()
		case OpDiv:
			err = vm.opDiv()
		case OpMod:
			err = vm.opMod()
		case OpNot:
			err = vm.opNot()
		case OpEqual:
			err = vm.opEqual()
		case OpConcat:
			err = vm.opConcat()
		case OpPrint:
			err = vm.opPrint()
		case OpJump:
			offset := chunk.ReadU16(f.pc)
			f.pc += 2
			f.pc += int(offset)
		case OpJumpIfFalse:
			offset := chunk.ReadU16(f.pc)
			f.pc += 2
			if !vm.peek().Truthy() {
				f.pc += int(offset)
			}
		case OpLoop:
			offset := chunk.ReadU16(f.pc)
			f.pc += 2
			f.pc -= int(offset)
		case OpClosure:
			idx := chunk.Code[f.pc]
			f.pc++
			err = vm.opClosure(idx)
		case OpCall:
			argc := chunk.Code[f.pc]
			f.pc++
			err = vm.opCall(int(argc))
		case OpReturn:
			err = vm.opReturn()
		default:
			err = fmt.Errorf("unknown opcode 0x%02X", byte(op))
		}

		if err != nil {
			return fmt.Errorf("%s failed: %v", op.Name(), err)
		}
	}
	return nil
}

func (vm *VM) opConstant(idx byte) error {
	consts := vm.currentFrame().closure.Function.Chunk.Constants
	if int(idx) >= len(consts) {
		return fmt.Errorf("constant index %d out of range", idx)
	}
	return vm.push(consts[idx])
}

func (vm *VM) opGetLocal(slot byte) error {
	f := vm.currentFrame()
	idx := f.base + int(slot)
	if idx < 0 || idx >= len(vm.stack) {
		return fmt.Errorf("local slot %d out of range", slot)
	}
	return vm.push(vm.stack[idx])
}

func (vm *VM) opSetLocal(slot byte) error {
	f := vm.currentFrame()
	idx := f.base + int(slot)
	if idx < 0 || idx >= len(vm.stack) {
		return fmt.Errorf("local slot %d out of range", slot)
	}
	vm.stack[idx] = vm.peek() // does not pop (§4.4)
	return nil
}

// constantString reads constant idx from the running frame's chunk
// and requires it to be a String, for GET_GLOBAL/SET_GLOBAL.
func (vm *VM) constantString(idx byte) (*value.ObjString, error) {
	consts := vm.currentFrame().closure.Function.Chunk.Constants
	if int(idx) >= len(consts) {
		return nil, fmt.Errorf("constant index %d out of range", idx)
	}
	v := consts[idx]
	s, ok := v.Obj.(*value.ObjString)
	if v.Kind != value.KindObject || !ok {
		return nil, fmt.Errorf("constant %d is not a string", idx)
	}
	return s, nil
}

func (vm *VM) opGetGlobal(idx byte) error {
	name, err := vm.constantString(idx)
	if err != nil {
		return err
	}
	v, ok := vm.globals.Get(name)
	if !ok {
		return fmt.Errorf("undefined global %q", name.Chars)
	}
	return vm.push(v)
}

func (vm *VM) opSetGlobal(idx byte) error {
	name, err := vm.constantString(idx)
	if err != nil {
		return err
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	vm.globals.Set(name, v)
	return nil
}

// opEndScope implements `stack[top-n-1] := peek; top -= n` (§4.4).
func (vm *VM) opEndScope(n int) error {
	if len(vm.stack) < n+1 {
		return fmt.Errorf("stack underflow")
	}
	top := vm.stack[len(vm.stack)-1]
	vm.stack[len(vm.stack)-1-n] = top
	vm.stack = vm.stack[:len(vm.stack)-n]
	return nil
}

func (vm *VM) opNeg() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	if v.Kind != value.KindNumber {
		return fmt.Errorf("operand must be a number, got %s", v.TypeName())
	}
	return vm.push(value.Number(-v.Number))
}

// popNumbers pops two operands in push order (a pushed before b) and
// requires both to be Numbers.
func (vm *VM) popNumbers() (a, b float64, err error) {
	bv, err := vm.pop()
	if err != nil {
		return 0, 0, err
	}
	av, err := vm.pop()
	if err != nil {
		return 0, 0, err
	}
	if av.Kind != value.KindNumber {
		return 0, 0, fmt.Errorf("operand must be a number, got %s", av.TypeName())
	}
	if bv.Kind != value.KindNumber {
		return 0, 0, fmt.Errorf("operand must be a number, got %s", bv.TypeName())
	}
	return av.Number, bv.Number, nil
}

func (vm *VM) opAdd() error {
	a, b, err := vm.popNumbers()
	if err != nil {
		return err
	}
	return vm.push(value.Number(a + b))
}

func (vm *VM) opSub() error {
	a, b, err := vm.popNumbers()
	if err != nil {
		return err
	}
	return vm.push(value.Number(a - b))
}

func (vm *VM) opMul() error {
	a, b, err := vm.popNumbers()
	if err != nil {
		return err
	}
	return vm.push(value.Number(a * b))
}

func (vm *VM) opDiv() error {
	a, b, err := vm.popNumbers()
	if err != nil {
		return err
	}
	return vm.push(value.Number(a / b))
}

// opMod implements IEEE fmod (§4.4).
func (vm *VM) opMod() error {
	a, b, err := vm.popNumbers()
	if err != nil {
		return err
	}
	return vm.push(value.Number(math.Mod(a, b)))
}

func (vm *VM) opNot() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.push(value.Bool(!v.Truthy()))
}

func (vm *VM) opEqual() error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.push(value.Bool(value.Equal(a, b)))
}

func (vm *VM) opConcat() error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	as, ok := a.Obj.(*value.ObjString)
	if a.Kind != value.KindObject || !ok {
		return fmt.Errorf("operand must be a string, got %s", a.TypeName())
	}
	bs, ok := b.Obj.(*value.ObjString)
	if b.Kind != value.KindObject || !ok {
		return fmt.Errorf("operand must be a string, got %s", b.TypeName())
	}
	s := vm.interner.Intern(as.Chars+bs.Chars, func(o *value.ObjString) { vm.heap.Track(o) })
	return vm.push(value.FromObject(s))
}

func (vm *VM) opPrint() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	fmt.Fprintln(vm.out, v.String())
	return nil
}

func (vm *VM) opClosure(idx byte) error {
	consts := vm.currentFrame().closure.Function.Chunk.Constants
	if int(idx) >= len(consts) {
		return fmt.Errorf("constant index %d out of range", idx)
	}
	v := consts[idx]
	fn, ok := v.Obj.(*value.ObjFunction)
	if v.Kind != value.KindObject || !ok {
		return fmt.Errorf("constant %d is not a function", idx)
	}
	cl := &value.ObjClosure{Function: fn}
	vm.heap.Track(cl)
	return vm.push(value.FromObject(cl))
}

// opCall implements CALL(argc) per §4.4's four numbered steps.
func (vm *VM) opCall(argc int) error {
	calleeIdx := len(vm.stack) - argc - 1
	if calleeIdx < 0 {
		return fmt.Errorf("stack underflow")
	}
	calleeVal := vm.stack[calleeIdx]
	cl, ok := calleeVal.Obj.(*value.ObjClosure)
	if calleeVal.Kind != value.KindObject || !ok {
		return fmt.Errorf("not a function")
	}
	if argc != cl.Function.Arity {
		return fmt.Errorf("expected %d arguments, got %d", cl.Function.Arity, argc)
	}
	if len(vm.frames) >= MaxFrames {
		return fmt.Errorf("stack overflow")
	}
	vm.frames = append(vm.frames, &frame{closure: cl, pc: 0, base: calleeIdx})
	return nil
}

// opReturn implements RETURN per §4.4's three numbered steps.
func (vm *VM) opReturn() error {
	result, err := vm.pop()
	if err != nil {
		return err
	}
	f := vm.currentFrame()
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) == 0 {
		vm.lastValue = result
		return nil
	}
	vm.stack = vm.stack[:f.base]
	return vm.push(result)
}
