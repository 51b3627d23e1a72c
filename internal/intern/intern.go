// Package intern implements pera's string interning table (§4.6): an
// open-addressed hash set, keyed by content, that guarantees any two
// source-visible strings with equal bytes share one canonical
// *value.ObjString handle.
package intern

import "github.com/rmay/pera/internal/value"

const (
	initialCapacity = 8
	maxLoadFactor   = 0.75
)

// entry's two sentinel states distinguish a never-used slot from a
// slot vacated by a removed string: empty has a nil Key and a Nil
// Value; tombstone has a nil Key and a Bool(true) Value. Probing must
// continue through a tombstone (the slot it names may have been
// pushed past by a later insertion) but may stop at an empty slot.
// pera's table never deletes entries today, but the two states are
// kept distinct per §4.6 so a future removal path (e.g. REPL :forget)
// has the same shape as the original design.
type entry struct {
	key   *value.ObjString
	value value.Value
}

func (e entry) isEmpty() bool     { return e.key == nil && e.value.Kind == value.KindNil }
func (e entry) isTombstone() bool { return e.key == nil && e.value.Kind == value.KindBool }

// Table interns strings by content and hands back a stable handle.
type Table struct {
	entries []entry
	count   int // live entries + tombstones
	nextID  int
}

// New returns an empty interning table at the spec's initial capacity.
func New() *Table {
	return &Table{entries: make([]entry, initialCapacity)}
}

// hashFNV1a computes the 32-bit FNV-1a hash of s, per §3/§4.6.
func hashFNV1a(s string) uint32 {
	const offsetBasis uint32 = 2166136261
	const prime uint32 = 16777619
	h := offsetBasis
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// Intern returns the canonical *value.ObjString for chars, allocating
// and registering a new one only if no equal-content string has been
// interned yet (§4.6). track is called exactly once, for a freshly
// allocated string, so the caller's heap registry stays consistent
// with "every heap-allocated object appears exactly once" (§3).
func (t *Table) Intern(chars string, track func(*value.ObjString)) *value.ObjString {
	hash := hashFNV1a(chars)
	if found := t.find(hash, chars); found != nil {
		return found
	}

	if float64(t.count+1) > float64(len(t.entries))*maxLoadFactor {
		t.grow()
	}

	s := &value.ObjString{Chars: chars, Hash: hash, ID: t.nextID}
	t.nextID++
	if track != nil {
		track(s)
	}
	t.insert(s)
	return s
}

// find searches by (hash, length, bytes), per §4.6 step 2 — it never
// compares by key pointer, since at call time the candidate string may
// not have an ObjString handle yet.
func (t *Table) find(hash uint32, chars string) *value.ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := t.entries[idx]
		if e.isEmpty() {
			return nil
		}
		if !e.isTombstone() && e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		idx = (idx + 1) & mask
	}
}

// insert places a freshly allocated, not-yet-present string into the
// table, reusing the first tombstone or empty slot on the probe path.
func (t *Table) insert(s *value.ObjString) {
	mask := uint32(len(t.entries) - 1)
	idx := s.Hash & mask
	var firstTombstone = -1
	for {
		e := t.entries[idx]
		if e.isEmpty() {
			slot := int(idx)
			if firstTombstone != -1 {
				slot = firstTombstone
			} else {
				t.count++
			}
			t.entries[slot] = entry{key: s, value: value.Nil}
			return
		}
		if e.isTombstone() && firstTombstone == -1 {
			firstTombstone = int(idx)
		}
		idx = (idx + 1) & mask
	}
}

// grow doubles capacity and rehashes every live entry, dropping
// tombstones, per §4.6's "growth at load factor 0.75".
func (t *Table) grow() {
	old := t.entries
	t.entries = make([]entry, len(old)*2)
	t.count = 0
	for _, e := range old {
		if e.isEmpty() || e.isTombstone() {
			continue
		}
		t.insert(e.key)
	}
}

// Len reports the number of live interned strings.
func (t *Table) Len() int {
	n := 0
	for _, e := range t.entries {
		if !e.isEmpty() && !e.isTombstone() {
			n++
		}
	}
	return n
}
