// Package compiler implements pera's single-pass, recursive-descent
// compiler (§4.2): it consumes the scanner's token stream and emits
// opcodes directly into the code block of the function currently
// being compiled, maintaining a stack of compiler frames (one per
// nested function) and a local-variable table per frame.
//
// The recursive-descent shape — a Compiler holding the current token
// plus peek/advance helpers, one method per grammar production —
// mirrors the teacher's (rmay/nuxvm pkg/lux) Compiler, which holds a
// token slice and a pos cursor with the same peek/advance/emit
// vocabulary; pera's compiler swaps that teacher's flat
// word-dictionary-and-quotations design for token-driven recursive
// descent because the source grammar is parenthesized prefix notation
// rather than postfix/concatenative.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/josharian/intern"

	"github.com/rmay/pera/internal/globals"
	"github.com/rmay/pera/internal/heap"
	internc "github.com/rmay/pera/internal/intern"
	"github.com/rmay/pera/internal/scanner"
	"github.com/rmay/pera/internal/value"
	"github.com/rmay/pera/internal/vm"
)

// maxLocals is the per-function limit on locals (§3, §6): slots are
// addressed by a single byte operand.
const maxLocals = 256

// maxArity is the limit on a function's parameter count (§6).
const maxArity = 256

type frameKind int

const (
	frameTopLevel frameKind = iota
	frameUserDefined
)

// local is one entry in a compiler frame's locals table (§3): a name
// and the scope depth at which it was declared. Its index in the
// frame's locals slice IS its runtime stack slot, per the invariant
// that frame.base + slot always names the right value (§3).
type local struct {
	name  string
	depth int
}

// frame is one compiler frame: a function being compiled, its kind,
// its locals table, and the current lexical scope depth (§4.2).
type frame struct {
	enclosing  *frame
	fn         *value.ObjFunction
	kind       frameKind
	locals     []local
	scopeDepth int
}

// operatorArities maps an operator word to the operand counts it
// accepts. "-" accepts either 1 (unary NEG) or 2 (binary SUB); every
// other operator has exactly one valid arity.
//
// spec.md's §4.2.3 operator table lists "+ - * / %" as uniformly
// binary, yet §4.4 also defines a NEG opcode with no other emission
// path in the grammar — NEG would be dead code under a strictly
// binary reading. The natural completion, adopted here, is that "-"
// with one operand compiles NEG and with two compiles SUB, which is
// also the only way "-1" (unary negation of the literal 1, per §4.1's
// note that there is no negative-literal syntax) can be expressed as
// `(- 1)`. See DESIGN.md.
var operatorArities = map[string][]int{
	"+":     {2},
	"-":     {1, 2},
	"*":     {2},
	"/":     {2},
	"%":     {2},
	"=":     {2},
	"..":    {2},
	"not":   {1},
	"print": {1},
	"nil":   {0},
	"true":  {0},
	"false": {0},
}

// Compiler compiles pera source into a top-level *value.ObjFunction.
type Compiler struct {
	scanner *scanner.Scanner
	current scanner.Token

	interner *internc.Table
	heap     *heap.Registry
	globals  *globals.Table

	top   *frame
	trace bool

	// diags accumulates non-fatal diagnostics collected while
	// resynchronizing after a top-level compile error (see
	// synchronizeTopLevel), so the error ultimately returned by Compile
	// lists every problem found in one pass rather than only the first.
	diags *multierror.Error
}

// New returns a Compiler over src. interner, heapReg, and globalsTable
// are shared with the VM that will eventually run the compiled
// function: the compiler writes newly interned strings into both, and
// reads (and pre-declares) globals in globalsTable for §4.2.3's
// compile-time existence check (design note 9).
func New(src string, interner *internc.Table, heapReg *heap.Registry, globalsTable *globals.Table, trace ...bool) *Compiler {
	t := false
	if len(trace) > 0 {
		t = trace[0]
	}
	return &Compiler{
		scanner:  scanner.New(src, t),
		interner: interner,
		heap:     heapReg,
		globals:  globalsTable,
		trace:    t,
	}
}

// Compile runs the whole single-pass compile and returns the
// top-level function, ready to be wrapped in a closure and run.
//
// A compile error at one top-level form does not abort immediately:
// the error is appended to c.diags and the compiler resynchronizes to
// the start of the next top-level form, so a source file with several
// independent mistakes reports all of them instead of only the first
// (golox-style panic-mode error aggregation, see DESIGN.md). Once any
// diagnostic has been recorded the compile is doomed regardless —
// bytecode keeps being emitted only so later forms can still be
// checked, never to produce a function Compile returns as usable.
func (c *Compiler) Compile() (*value.ObjFunction, error) {
	c.pushFrame(frameTopLevel)
	if err := c.advance(); err != nil {
		return nil, err
	}
	for c.current.Kind != scanner.End {
		if err := c.parseExpression(); err != nil {
			c.diags = multierror.Append(c.diags, err)
			if syncErr := c.synchronizeTopLevel(); syncErr != nil {
				return nil, c.diags.ErrorOrNil()
			}
			continue
		}
	}
	if err := c.diags.ErrorOrNil(); err != nil {
		return nil, err
	}
	c.emit(byte(vm.OpReturn))
	return c.popFrame(), nil
}

// synchronizeTopLevel skips tokens after a compile error until the
// current token is an LParen or the input ends, so Compile's loop can
// keep checking subsequent forms for more diagnostics — the same
// resynchronization shape as a panic-mode parser's "skip to the next
// statement boundary". It does not know how deep inside the failed
// form the error was raised: the first LParen it reaches is taken as
// the next top-level form, even when that LParen is nested inside the
// failed form, which can add further diagnostics for the remainder of
// that form.
func (c *Compiler) synchronizeTopLevel() error {
	depth := 0
	for {
		switch c.current.Kind {
		case scanner.End:
			return nil
		case scanner.LParen:
			if depth == 0 {
				return nil
			}
			depth++
		case scanner.RParen:
			if depth > 0 {
				depth--
			}
		}
		if err := c.advance(); err != nil {
			return err
		}
	}
}

func (c *Compiler) pushFrame(kind frameKind) {
	c.top = &frame{
		enclosing: c.top,
		fn:        value.NewFunction(),
		kind:      kind,
		// Slot 0 is reserved for the frame's own closure (§3) and is
		// never a valid match for a name lookup, since the lexer never
		// produces an empty Word token.
		locals: []local{{name: "", depth: 0}},
	}
}

func (c *Compiler) popFrame() *value.ObjFunction {
	fn := c.top.fn
	c.top = c.top.enclosing
	return fn
}

func (c *Compiler) currentChunk() *value.Chunk { return c.top.fn.Chunk }

func (c *Compiler) advance() error {
	tok, err := c.scanner.Next()
	if err != nil {
		return err
	}
	c.current = tok
	return nil
}

func (c *Compiler) emit(bytes ...byte) {
	for _, b := range bytes {
		c.currentChunk().Write(b)
	}
}

func (c *Compiler) intern(s string) *value.ObjString {
	return c.interner.Intern(s, func(o *value.ObjString) { c.heap.Track(o) })
}

// parseExpression dispatches on the current token per §4.2's grammar
// table.
func (c *Compiler) parseExpression() error {
	tok := c.current
	switch tok.Kind {
	case scanner.Number:
		n, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid number %q", tok.Line, tok.Lexeme)
		}
		idx, err := c.currentChunk().AddConstant(value.Number(n))
		if err != nil {
			return fmt.Errorf("line %d: %v", tok.Line, err)
		}
		c.emit(byte(vm.OpConstant), idx)
		return c.advance()

	case scanner.String:
		s := c.intern(tok.Lexeme)
		idx, err := c.currentChunk().AddConstant(value.FromObject(s))
		if err != nil {
			return fmt.Errorf("line %d: %v", tok.Line, err)
		}
		c.emit(byte(vm.OpConstant), idx)
		return c.advance()

	case scanner.Word:
		if err := c.compileWordValue(tok.Lexeme, tok.Line); err != nil {
			return err
		}
		return c.advance()

	case scanner.LParen:
		return c.openForm()

	case scanner.RParen:
		return fmt.Errorf("line %d: unexpected )", tok.Line)

	case scanner.End:
		// A generic fallback per §4.2's grammar table. Compile's
		// driving loop checks End before calling parseExpression, and
		// most forms check for End themselves and report "missing )".
		// compileIf and compileWhile do not check before compiling
		// their subforms, so they reach this path on truncated input;
		// the RETURN emitted here is then followed by their own
		// "missing )" error, which fails the compile.
		c.emit(byte(vm.OpReturn))
		return nil

	default:
		return fmt.Errorf("line %d: unexpected token", tok.Line)
	}
}

// openForm compiles a `(` ... `)` form per §4.2.1's dispatch table.
// c.current must be LParen on entry; on return c.current is the token
// immediately following the form's matching `)`.
func (c *Compiler) openForm() error {
	if err := c.advance(); err != nil { // consume '('
		return err
	}
	head := c.current

	switch head.Kind {
	case scanner.RParen:
		return c.advance() // empty form: no-op
	case scanner.End:
		return fmt.Errorf("line %d: missing )", head.Line)
	case scanner.Word:
		// fall through below
	default:
		return fmt.Errorf("line %d: expression must start with a word", head.Line)
	}

	// A large source repeatedly dispatches on the same handful of
	// special-form and operator words; intern.String shares one backing
	// string across those repeats instead of letting the scanner's
	// per-token substring stand on its own (compile-time convenience
	// only — distinct from the VM-facing table in internal/intern).
	word := intern.String(head.Lexeme)
	if err := c.advance(); err != nil { // consume head word
		return err
	}

	switch word {
	case "do":
		return c.compileDo()
	case "on":
		return c.compileOn(head.Line)
	case "put":
		return c.compilePut()
	case "if":
		return c.compileIf(head.Line)
	case "while":
		return c.compileWhile(head.Line)
	}

	if allowed, ok := operatorArities[word]; ok {
		return c.compileOperator(word, allowed, head.Line)
	}
	return c.compileCall(word, head.Line)
}

// compileWordValue emits a value fetch for a bare Word (§4.2.3): the
// literals nil, true, and false push their value directly; otherwise a
// compile-time-validated GET_GLOBAL for a "_"-prefixed name, or a
// GET_LOCAL for anything else.
func (c *Compiler) compileWordValue(word string, line int) error {
	switch word {
	case "nil":
		c.emit(byte(vm.OpNil))
		return nil
	case "true":
		c.emit(byte(vm.OpTrue))
		return nil
	case "false":
		c.emit(byte(vm.OpFalse))
		return nil
	}
	if strings.HasPrefix(word, "_") {
		name := c.intern(word)
		if !c.globals.Has(name) {
			return fmt.Errorf("line %d: unknown global %q", line, word)
		}
		idx, err := c.currentChunk().AddConstant(value.FromObject(name))
		if err != nil {
			return fmt.Errorf("line %d: %v", line, err)
		}
		c.emit(byte(vm.OpGetGlobal), idx)
		return nil
	}
	slot, ok := c.resolveLocal(word)
	if !ok {
		return fmt.Errorf("line %d: unknown local %q", line, word)
	}
	c.emit(byte(vm.OpGetLocal), byte(slot))
	return nil
}

// resolveLocal scans the current frame's locals from the top downward
// for a name match, with no depth restriction (§4.2.3).
func (c *Compiler) resolveLocal(name string) (int, bool) {
	locals := c.top.locals
	for i := len(locals) - 1; i >= 0; i-- {
		if locals[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// compileCall compiles a call form: fetch the callee, then compile
// each argument subform in order, then CALL.
//
// §4.2.1's prose describes the emission as "push arguments... then
// emit the head word as a value fetch... then CALL n", but §4.4's
// CALL semantics ("callee is at stack[top-argc-1]") only typecheck
// when the callee sits BELOW the arguments on the stack — i.e. pushed
// first — which also matches §3's frame-base invariant (slot 0 is the
// callee, followed by positional arguments). This compiler emits the
// callee fetch before the argument subforms to match that runtime
// contract; see DESIGN.md.
func (c *Compiler) compileCall(word string, line int) error {
	if err := c.compileWordValue(word, line); err != nil {
		return err
	}
	count := 0
	for c.current.Kind != scanner.RParen {
		if c.current.Kind == scanner.End {
			return fmt.Errorf("line %d: missing )", line)
		}
		if err := c.parseExpression(); err != nil {
			return err
		}
		count++
		if count > 255 {
			return fmt.Errorf("line %d: too many arguments (max 255)", line)
		}
	}
	if err := c.advance(); err != nil { // consume ')'
		return err
	}
	c.emit(byte(vm.OpCall), byte(count))
	return nil
}

// compileOperator compiles one of §4.2.3's operator forms: each
// operand subform is compiled in order, then the matching opcode is
// emitted once the operand count is checked against allowed.
func (c *Compiler) compileOperator(word string, allowed []int, line int) error {
	count := 0
	for c.current.Kind != scanner.RParen {
		if c.current.Kind == scanner.End {
			return fmt.Errorf("line %d: missing )", line)
		}
		if err := c.parseExpression(); err != nil {
			return err
		}
		count++
	}
	if err := c.advance(); err != nil { // consume ')'
		return err
	}
	ok := false
	for _, a := range allowed {
		if a == count {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("line %d: %q expects %v operand(s), got %d", line, word, allowed, count)
	}
	switch word {
	case "+":
		c.emit(byte(vm.OpAdd))
	case "-":
		if count == 1 {
			c.emit(byte(vm.OpNeg))
		} else {
			c.emit(byte(vm.OpSub))
		}
	case "*":
		c.emit(byte(vm.OpMul))
	case "/":
		c.emit(byte(vm.OpDiv))
	case "%":
		c.emit(byte(vm.OpMod))
	case "=":
		c.emit(byte(vm.OpEqual))
	case "..":
		c.emit(byte(vm.OpConcat))
	case "not":
		c.emit(byte(vm.OpNot))
	case "print":
		c.emit(byte(vm.OpPrint))
	case "nil":
		c.emit(byte(vm.OpNil))
	case "true":
		c.emit(byte(vm.OpTrue))
	case "false":
		c.emit(byte(vm.OpFalse))
	}
	return nil
}

// compileDo compiles (do e1 ... en) per §4.2.1/§4.2.2: open a scope,
// compile each subform with no inter-subform cleanup (§4.2's design
// makes every subform either value-neutral — print, a local
// redefinition — or a fresh local declaration, so nothing but the
// locals table's own bookkeeping is needed to find the block's
// result), then close the scope.
func (c *Compiler) compileDo() error {
	c.openScope()
	for c.current.Kind != scanner.RParen {
		if c.current.Kind == scanner.End {
			return fmt.Errorf("missing ) in do")
		}
		if err := c.parseExpression(); err != nil {
			return err
		}
	}
	if err := c.advance(); err != nil { // consume ')'
		return err
	}
	return c.closeScope()
}

// openScope implements §4.2.2's scope open.
func (c *Compiler) openScope() { c.top.scopeDepth++ }

// closeScope implements §4.2.2's scope close: pop trailing locals
// whose depth now exceeds the current depth, then emit END_SCOPE only
// when 2 or more were popped (a single trailing local already sits in
// the slot the block's result must occupy — see SPEC_FULL.md's Open
// Question decision 1).
func (c *Compiler) closeScope() error {
	c.top.scopeDepth--
	locals := c.top.locals
	n := 0
	for len(locals) > 0 && locals[len(locals)-1].depth > c.top.scopeDepth {
		locals = locals[:len(locals)-1]
		n++
	}
	c.top.locals = locals
	if n >= 2 {
		if n > 255 {
			return fmt.Errorf("too many locals to close in one scope (max 255)")
		}
		c.emit(byte(vm.OpEndScope), byte(n))
	}
	return nil
}

// compilePut compiles (put key value?) per §4.2.5.
//
// put is a statement form and must not be nested in value position:
// a first binding of a local leaves the value on the stack as the new
// local's slot, while rebinding an existing local (SET_LOCAL then POP)
// and binding a global (SET_GLOBAL pops) leave nothing. Nothing in the
// compiler rejects a put in value position.
func (c *Compiler) compilePut() error {
	if c.current.Kind == scanner.End {
		return fmt.Errorf("missing key in put")
	}
	if c.current.Kind != scanner.Word {
		return fmt.Errorf("line %d: put requires a word key", c.current.Line)
	}
	key := c.current.Lexeme
	line := c.current.Line
	if err := c.advance(); err != nil { // consume key
		return err
	}

	if c.current.Kind == scanner.End {
		return fmt.Errorf("line %d: unexpected end of input in put", line)
	}
	if c.current.Kind == scanner.RParen {
		c.emit(byte(vm.OpNil))
	} else if err := c.parseExpression(); err != nil {
		return err
	}

	if c.current.Kind != scanner.RParen {
		return fmt.Errorf("line %d: missing ) in put", line)
	}
	if err := c.advance(); err != nil { // consume ')'
		return err
	}
	return c.bind(key, line)
}

// bind implements §4.2.5's binding rules, shared by `put` and `on`
// (§4.2.4 step 8: "Bind name in the outer frame using the same rules
// as put").
//
// §4.2.5 reads the redefinition check as scoped to "a depth ≥ current
// depth", which would restrict rebinding to the innermost block only.
// But §8 scenario 6 requires a `put` inside a `while` body's `do` block
// to mutate a counter declared in the enclosing scope — taking the
// depth restriction literally shadows that counter in a new slot every
// iteration instead, so the loop condition never observes the update
// and the loop never terminates. Resolving in favor of the worked
// example (and matching resolveLocal's own full-frame, top-down scan
// for word value-fetches, §4.2.3): rebind searches the whole frame, not
// just the current-or-deeper scopes, and only allocates a new local
// when no match exists anywhere in the frame. See DESIGN.md.
func (c *Compiler) bind(name string, line int) error {
	if strings.HasPrefix(name, "_") {
		gname := c.intern(name)
		c.globals.Declare(gname)
		idx, err := c.currentChunk().AddConstant(value.FromObject(gname))
		if err != nil {
			return fmt.Errorf("line %d: %v", line, err)
		}
		c.emit(byte(vm.OpSetGlobal), idx)
		return nil
	}

	if slot, ok := c.resolveLocal(name); ok {
		c.emit(byte(vm.OpSetLocal), byte(slot))
		c.emit(byte(vm.OpPop))
		return nil
	}

	frame := c.top
	if len(frame.locals) >= maxLocals {
		return fmt.Errorf("line %d: too many locals in function (max %d)", line, maxLocals)
	}
	frame.locals = append(frame.locals, local{name: name, depth: frame.scopeDepth})
	slot := len(frame.locals) - 1
	c.emit(byte(vm.OpSetLocal), byte(slot))
	return nil
}

// compileOn compiles (on (name p1 ... pk) body...) per §4.2.4.
func (c *Compiler) compileOn(line int) error {
	c.pushFrame(frameUserDefined)
	c.openScope()

	if c.current.Kind != scanner.LParen {
		return fmt.Errorf("line %d: expected ( after on", line)
	}
	if err := c.advance(); err != nil {
		return err
	}
	if c.current.Kind != scanner.Word {
		return fmt.Errorf("line %d: expected function name", line)
	}
	name := c.current.Lexeme
	if err := c.advance(); err != nil {
		return err
	}

	arity := 0
	for c.current.Kind == scanner.Word {
		if len(c.top.locals) >= maxLocals {
			return fmt.Errorf("line %d: too many parameters", line)
		}
		c.top.locals = append(c.top.locals, local{name: c.current.Lexeme, depth: c.top.scopeDepth})
		arity++
		if arity >= maxArity {
			return fmt.Errorf("line %d: too many parameters (max %d)", line, maxArity-1)
		}
		if err := c.advance(); err != nil {
			return err
		}
	}
	if c.current.Kind != scanner.RParen {
		return fmt.Errorf("line %d: expected ) after parameters", line)
	}
	if err := c.advance(); err != nil {
		return err
	}

	for c.current.Kind != scanner.RParen {
		if c.current.Kind == scanner.End {
			return fmt.Errorf("line %d: missing ) in on", line)
		}
		if err := c.parseExpression(); err != nil {
			return err
		}
	}
	if err := c.advance(); err != nil { // consume the on-form's ')'
		return err
	}

	c.emit(byte(vm.OpReturn))
	fn := c.top.fn
	fn.Arity = arity
	fn.Name = c.intern(name)
	c.popFrame()

	idx, err := c.currentChunk().AddConstant(value.FromObject(fn))
	if err != nil {
		return fmt.Errorf("line %d: %v", line, err)
	}
	c.emit(byte(vm.OpClosure), idx)
	return c.bind(name, line)
}

// emitJump writes op followed by a 16-bit placeholder operand and
// returns the operand's offset, for later patchJump.
func (c *Compiler) emitJump(op vm.Opcode) int {
	chunk := c.currentChunk()
	chunk.Write(byte(op))
	return chunk.WriteU16(0xFFFF)
}

// patchJump backfills the placeholder at pos with the forward
// displacement from the instruction after the operand to the current
// end of the chunk (§4.2.6).
func (c *Compiler) patchJump(pos int, line int) error {
	chunk := c.currentChunk()
	distance := len(chunk.Code) - (pos + 2)
	if distance > 0xFFFF {
		return fmt.Errorf("line %d: jump offset too large (max 65535)", line)
	}
	chunk.PatchU16(pos, uint16(distance))
	return nil
}

// emitLoop writes a LOOP instruction whose operand is the backward
// displacement to loopStart (§4.2.7).
func (c *Compiler) emitLoop(loopStart int, line int) error {
	chunk := c.currentChunk()
	chunk.Write(byte(vm.OpLoop))
	pos := chunk.WriteU16(0)
	distance := (pos + 2) - loopStart
	if distance < 0 || distance > 0xFFFF {
		return fmt.Errorf("line %d: loop body too large", line)
	}
	chunk.PatchU16(pos, uint16(distance))
	return nil
}

// compileIf compiles (if cond then [else]) per §4.2.6.
func (c *Compiler) compileIf(line int) error {
	if err := c.parseExpression(); err != nil { // cond
		return err
	}
	j1 := c.emitJump(vm.OpJumpIfFalse)
	c.emit(byte(vm.OpPop))
	if err := c.parseExpression(); err != nil { // then
		return err
	}
	j2 := c.emitJump(vm.OpJump)

	if err := c.patchJump(j1, line); err != nil {
		return err
	}

	switch c.current.Kind {
	case scanner.RParen:
		// no else branch
	case scanner.End:
		return fmt.Errorf("line %d: missing ) in if", line)
	default:
		c.emit(byte(vm.OpPop))
		if err := c.parseExpression(); err != nil { // else
			return err
		}
	}

	if err := c.patchJump(j2, line); err != nil {
		return err
	}
	if c.current.Kind != scanner.RParen {
		return fmt.Errorf("line %d: missing ) in if", line)
	}
	return c.advance()
}

// compileWhile compiles (while cond body) per §4.2.7.
func (c *Compiler) compileWhile(line int) error {
	loopStart := len(c.currentChunk().Code)
	if err := c.parseExpression(); err != nil { // cond
		return err
	}
	jend := c.emitJump(vm.OpJumpIfFalse)
	c.emit(byte(vm.OpPop))
	if err := c.parseExpression(); err != nil { // body
		return err
	}
	if err := c.emitLoop(loopStart, line); err != nil {
		return err
	}
	if err := c.patchJump(jend, line); err != nil {
		return err
	}
	c.emit(byte(vm.OpPop))
	if c.current.Kind != scanner.RParen {
		return fmt.Errorf("line %d: missing ) in while", line)
	}
	return c.advance()
}
