package value

// ObjKind tags the kind of heap Object.
type ObjKind int

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
	ObjKindClosure
)

// Object is the common interface for every heap-allocated value.
// A pointer-typed Object is a "shared, non-owning handle" per §3:
// Go's garbage collector owns the backing memory, but pera's own
// heap registry (internal/heap) still tracks every Object for
// bulk release at VM teardown, per §4.5 and design note 9.
type Object interface {
	ObjKind() ObjKind
	String() string
	TypeName() string
}

// ObjString is an interned, NUL-free UTF-8 string object. Two ObjString
// values with equal Chars are always the same *ObjString pointer: see
// internal/intern.
type ObjString struct {
	Chars string
	Hash  uint32
	// ID is a sequence number assigned once at intern time. The
	// globals table does not use it: it keys on the *ObjString pointer,
	// which interning makes unique per content (see internal/globals).
	ID int
}

func (s *ObjString) ObjKind() ObjKind  { return ObjKindString }
func (s *ObjString) String() string    { return s.Chars }
func (s *ObjString) TypeName() string  { return "string" }
func (s *ObjString) Len() int          { return len(s.Chars) }

// ObjFunction is a user-defined function or the implicit top-level
// function: an arity, a code block, and an optional name (nil for the
// top-level function).
type ObjFunction struct {
	Arity int
	Chunk *Chunk
	Name  *ObjString
}

func (f *ObjFunction) ObjKind() ObjKind { return ObjKindFunction }

func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Chars + ">"
}

func (f *ObjFunction) TypeName() string { return "function" }

// ObjClosure wraps an ObjFunction for uniform calling. Per design note
// 9 this indirection exists so a later iteration can add upvalue
// capture without changing the calling convention; this iteration
// captures nothing (§1 non-goals).
type ObjClosure struct {
	Function *ObjFunction
}

func (c *ObjClosure) ObjKind() ObjKind  { return ObjKindClosure }
func (c *ObjClosure) String() string    { return c.Function.String() }
func (c *ObjClosure) TypeName() string  { return "closure" }

// NewFunction allocates a fresh, empty ObjFunction with its own Chunk.
func NewFunction() *ObjFunction {
	return &ObjFunction{Chunk: NewChunk()}
}
