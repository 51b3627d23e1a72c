package intern

import (
	"testing"

	"github.com/rmay/pera/internal/value"
)

func TestInternDeduplicates(t *testing.T) {
	tab := New()
	tracked := 0
	track := func(o *value.ObjString) { tracked++ }

	a := tab.Intern("hello", track)
	b := tab.Intern("hello", track)

	if a != b {
		t.Fatalf("Intern returned different handles for equal content: %p vs %p", a, b)
	}
	if tracked != 1 {
		t.Errorf("track was called %d times, want 1 (only on first allocation)", tracked)
	}
	if tab.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tab.Len())
	}
}

func TestInternDistinctContent(t *testing.T) {
	tab := New()
	a := tab.Intern("foo", nil)
	b := tab.Intern("bar", nil)
	if a == b {
		t.Fatal("distinct content interned to the same handle")
	}
	if tab.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tab.Len())
	}
}

func TestInternGrows(t *testing.T) {
	tab := New()
	// initialCapacity is 8 at load factor 0.75, so the 7th distinct
	// string forces a grow; make sure lookups still work afterward.
	var strs []*value.ObjString
	for i := 0; i < 50; i++ {
		s := tab.Intern(string(rune('a'+i%26))+string(rune('A'+i%26)), nil)
		strs = append(strs, s)
	}
	for i, s := range strs {
		again := tab.Intern(s.Chars, nil)
		if again != s {
			t.Errorf("entry %d: re-interning %q returned a different handle after growth", i, s.Chars)
		}
	}
}

func TestHashFNV1a(t *testing.T) {
	// FNV-1a 32-bit of the empty string is the offset basis.
	if got := hashFNV1a(""); got != 2166136261 {
		t.Errorf("hashFNV1a(\"\") = %d, want 2166136261", got)
	}
}
