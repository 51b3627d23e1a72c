// Package heap implements pera's object registry: every heap Object
// ever allocated is tracked in one ordered collection for bulk release
// at VM teardown (§4.5).
//
// The original design (see design note 9 in spec.md) threads an
// intrusive singly linked `next` field through each object. Go objects
// are garbage-collected independently of this registry, so pera keeps
// design note 9's replacement instead: a separately maintained,
// VM-owned slice of owning handles rather than an intrusive link. The
// registry's job is bookkeeping and explicit release ordering, not
// memory safety — that is Go's job.
package heap

import "github.com/rmay/pera/internal/value"

// Registry is the VM-owned list of every Object ever allocated.
type Registry struct {
	objects []value.Object
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Track registers a newly allocated Object. Every heap-allocated
// object must appear in the registry exactly once (§3 invariants).
func (r *Registry) Track(o value.Object) {
	r.objects = append(r.objects, o)
}

// Len reports how many objects are currently tracked.
func (r *Registry) Len() int { return len(r.objects) }

// ReleaseAll walks the registry and drops every tracked object,
// simulating the "free everything at shutdown" policy of §1 and §4.5.
// It is illegal to reference a Value produced before ReleaseAll after
// it returns.
func (r *Registry) ReleaseAll() {
	r.objects = nil
}
