// Package debug implements pera's bytecode disassembler: a
// human-readable view of a Chunk's instructions, with no semantic role
// (§2 item 8 — "~8% budget", out of scope for execution, wired to the
// `pera disasm` CLI subcommand per SPEC_FULL.md).
package debug

import (
	"fmt"
	"io"

	"github.com/rmay/pera/internal/value"
	"github.com/rmay/pera/internal/vm"
)

// Disassemble writes a human-readable listing of fn's code to w,
// recursing into any nested ObjFunction found in the constants pool so
// a whole program's functions are shown.
func Disassemble(w io.Writer, fn *value.ObjFunction) {
	name := "<script>"
	if fn.Name != nil {
		name = fn.Name.Chars
	}
	fmt.Fprintf(w, "== %s ==\n", name)
	disassembleChunk(w, fn.Chunk)

	for _, c := range fn.Chunk.Constants {
		if c.Kind != value.KindObject {
			continue
		}
		if nested, ok := c.Obj.(*value.ObjFunction); ok {
			fmt.Fprintln(w)
			Disassemble(w, nested)
		}
	}
}

func disassembleChunk(w io.Writer, chunk *value.Chunk) {
	offset := 0
	for offset < len(chunk.Code) {
		offset = disassembleInstruction(w, chunk, offset)
	}
}

// disassembleInstruction prints one instruction starting at offset and
// returns the offset of the next instruction.
func disassembleInstruction(w io.Writer, chunk *value.Chunk, offset int) int {
	op := vm.Opcode(chunk.Code[offset])
	fmt.Fprintf(w, "%04d %s", offset, op.Name())

	switch op {
	case vm.OpConstant, vm.OpGetGlobal, vm.OpSetGlobal, vm.OpClosure:
		idx := chunk.Code[offset+1]
		fmt.Fprintf(w, " %d", idx)
		if int(idx) < len(chunk.Constants) {
			fmt.Fprintf(w, " (%s)", chunk.Constants[idx].String())
		}
		fmt.Fprintln(w)
		return offset + 2

	case vm.OpGetLocal, vm.OpSetLocal, vm.OpEndScope, vm.OpCall:
		operand := chunk.Code[offset+1]
		fmt.Fprintf(w, " %d\n", operand)
		return offset + 2

	case vm.OpJump, vm.OpJumpIfFalse:
		jump := chunk.ReadU16(offset + 1)
		fmt.Fprintf(w, " -> %04d\n", offset+3+int(jump))
		return offset + 3

	case vm.OpLoop:
		jump := chunk.ReadU16(offset + 1)
		fmt.Fprintf(w, " -> %04d\n", offset+3-int(jump))
		return offset + 3

	default:
		fmt.Fprintln(w)
		return offset + 1
	}
}
