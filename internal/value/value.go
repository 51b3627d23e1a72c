// Package value implements pera's runtime value model: the tagged
// Nil/Bool/Number/Object variant shared by the compiler and the VM.
package value

import (
	"fmt"
	"strconv"
)

// Kind tags a Value's active variant.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObject
)

// Value is pera's tagged runtime value. Exactly one of Bool, Number,
// or Obj is meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Obj    Object
}

// Nil is the single Nil value.
var Nil = Value{Kind: KindNil}

// Bool wraps a boolean as a Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number wraps a float64 as a Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// FromObject wraps an Object handle as a Value.
func FromObject(o Object) Value { return Value{Kind: KindObject, Obj: o} }

// IsNil reports whether v is the Nil value.
func (v Value) IsNil() bool { return v.Kind == KindNil }

// Truthy implements §4.3's truthiness coercion.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number != 0
	case KindObject:
		return true
	default:
		return false
	}
}

// Equal implements §4.3's polymorphic equality: different kinds are
// never equal; Object equality is handle identity (safe because every
// String is interned, so content equality and identity coincide).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Number == b.Number
	case KindObject:
		return a.Obj == b.Obj
	default:
		return false
	}
}

// String renders a Value for PRINT and for disassembly/error messages.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Number)
	case KindObject:
		if v.Obj == nil {
			return "nil"
		}
		// PRINT renders a String quoted (§8 scenario 2: `(.. "foo" "bar")`
		// prints `"foobar"`), distinguishing it from every other kind,
		// which prints bare.
		if s, ok := v.Obj.(*ObjString); ok {
			return strconv.Quote(s.Chars)
		}
		return v.Obj.String()
	default:
		return "<invalid value>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

// TypeName names a Value's kind for runtime type-error messages.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindObject:
		if v.Obj == nil {
			return "object"
		}
		return v.Obj.TypeName()
	default:
		return "invalid"
	}
}
