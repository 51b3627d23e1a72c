// Package globals implements the VM's globals table (§3): a map from
// interned String handle to Value, shared by the compiler (which only
// declares and reads names, for §4.2.3's compile-time existence check)
// and the VM (which reads and writes values at runtime).
//
// Keys are compared by pointer identity, which interning makes safe
// (design note 9): Go's native map is already an identity-keyed hash
// table when its key type is a pointer, so this table is a plain
// map[*value.ObjString]value.Value rather than a second hand-rolled
// open-addressed table — the open-addressing algorithm in
// internal/intern exists to support content-based lookup before a
// handle is known, a problem this table never has (see DESIGN.md).
package globals

import "github.com/rmay/pera/internal/value"

// Table is the VM's global-variable store.
type Table struct {
	values map[*value.ObjString]value.Value
}

// New returns an empty globals table.
func New() *Table {
	return &Table{values: make(map[*value.ObjString]value.Value)}
}

// Has reports whether name is a known global, used by the compiler's
// compile-time GET_GLOBAL validation (§4.2.3).
func (t *Table) Has(name *value.ObjString) bool {
	_, ok := t.values[name]
	return ok
}

// Get reads a global's current value, used by OP_GET_GLOBAL.
func (t *Table) Get(name *value.ObjString) (value.Value, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Set writes a global's value unconditionally, used by OP_SET_GLOBAL.
func (t *Table) Set(name *value.ObjString, v value.Value) {
	t.values[name] = v
}

// Declare ensures name is known, without disturbing an existing value.
// The compiler calls this when compiling `(put _name ...)` so that a
// later reference to _name within the same compile pass — before the
// VM has actually executed the SET_GLOBAL that will give it its real
// value — resolves successfully (§4.2.3, §9 design note on the
// cyclic compiler/VM coupling).
func (t *Table) Declare(name *value.ObjString) {
	if _, ok := t.values[name]; !ok {
		t.values[name] = value.Nil
	}
}
