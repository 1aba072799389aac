// Package component tracks Component Model resource handles: the
// own/borrow-tagged handle table a component instance uses to reference
// host- or guest-owned resources, kept separate from the funcref/externref
// tables internal/wasm already owns. Full canonical-ABI lifting/lowering
// lives elsewhere; this package only covers the handle lifecycle the
// intercept layer's resource-operation hooks need.
package component

import (
	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/substrate"
)

// Handle identifies one resource within a single ResourceTable. Handles are
// assigned sequentially starting at 1; 0 is never issued, matching the
// component binary format's convention that a null resource handle is 0.
type Handle uint32

// Ownership tags whether a table entry represents the component's own
// resource or a borrowed reference into a caller's resource.
type Ownership int

const (
	Own Ownership = iota
	Borrow
)

// Resource is one live entry in a ResourceTable.
type Resource struct {
	Handle    Handle
	TypeIdx   uint32
	Ownership Ownership
	// Dropped marks a handle whose lifetime has ended, Own or Borrow alike.
	// BoundedMap has no delete operation (every container in the
	// bounded-memory substrate trades "shrinks back" for "never
	// reallocates"), so a dropped handle stays as a tombstone: Get and a
	// second Drop both reject it instead of silently reusing the slot.
	Dropped bool
}

// ResourceTable is the bounded, per-instance store of a component's
// resource handles. It never grows past Cap; New returns CapacityExceeded
// once full rather than reallocating, matching every other container in
// the bounded-memory substrate.
type ResourceTable struct {
	entries *substrate.BoundedMap[Handle, Resource]
	next    Handle
}

// NewResourceTable creates an empty table backed by a BoundedMap of the
// given capacity.
func NewResourceTable(cap uint) *ResourceTable {
	return &ResourceTable{entries: substrate.NewBoundedMap[Handle, Resource](cap), next: 1}
}

// New allocates a fresh handle for a resource of the given type and
// ownership, returning the assigned Handle.
func (t *ResourceTable) New(typeIdx uint32, ownership Ownership) (Handle, error) {
	h := t.next
	r := Resource{Handle: h, TypeIdx: typeIdx, Ownership: ownership}
	if err := t.entries.Set(h, r); err != nil {
		return 0, err
	}
	t.next++
	return h, nil
}

// Get looks up a live (non-dropped) resource by handle.
func (t *ResourceTable) Get(h Handle) (Resource, error) {
	r, ok := t.entries.Get(h)
	if !ok || r.Dropped {
		return Resource{}, api.NewError(api.ErrorCategoryValidation, api.CodeInvalidResourceHandle,
			"resource handle %d is not live", h)
	}
	return r, nil
}

// Drop releases a handle, Own or Borrow alike. Dropping an already-dropped
// or unknown handle is a validation error, never a no-op success, so a
// double-drop bug in guest code surfaces instead of being masked.
func (t *ResourceTable) Drop(h Handle) error {
	r, ok := t.entries.Get(h)
	if !ok || r.Dropped {
		return api.NewError(api.ErrorCategoryValidation, api.CodeInvalidResourceHandle,
			"resource handle %d is not live", h)
	}
	r.Dropped = true
	return t.entries.Set(h, r)
}

// Len reports the number of handles the table has ever issued, live or
// dropped (dropped entries remain as tombstones — see Resource.Dropped).
func (t *ResourceTable) Len() int { return t.entries.Len() }
