package wasm

import (
	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/substrate"
)

// Instance is the runtime representation of an instantiated Module. Every
// "Instance" suffix type below belongs to exactly one Instance; none of them
// are shared across instances the way a Module's static data can be.
//
// Instance owns no goroutines and is not safe for concurrent use: the
// interpreter (internal/engine) and async executor (internal/async) both
// assume single-threaded, cooperative access.
type Instance struct {
	Module *Module

	Functions []FunctionInstance
	Globals   []*GlobalInstance
	Memory    *MemoryInstance // nil if the module declares no memory
	Tables    []*TableInstance

	Exports map[string]ExportInstance

	DataInstances    []DataInstance
	ElementInstances []ElementInstance
}

// DataInstance is the runtime bytes backing a data segment, consumed by
// memory.init and invalidated (emptied) by data.drop.
type DataInstance = []byte

// ElementInstance is the runtime contents backing an element segment,
// consumed by table.init and invalidated by elem.drop.
type ElementInstance struct {
	RefType api.ValueType
	Refs    []int64 // function indexes as signed refs; -1 encodes ref.null
}

// ExportInstance resolves an export name to the index space entry it names.
type ExportInstance struct {
	Kind  ImportKind
	Index Index
}

// FunctionInstance is either a module-local function (Body non-nil) or a
// host import resolved into this instance's function index space.
type FunctionInstance struct {
	Type api.FuncType
	Idx  Index

	// Body is the decoded local function body; nil for imported functions,
	// which are instead invoked through Host.
	Body *Code

	// Host, when non-nil, is a host-provided Go function backing an
	// imported function. The engine calls it directly instead of entering
	// the stackless bytecode loop.
	Host func(args []api.Value) ([]api.Value, error)
}

// GlobalInstance is a single mutable or immutable global's runtime storage.
type GlobalInstance struct {
	Type GlobalType
	Val  uint64
	ValHi uint64 // only meaningful when Type.ValType == api.ValueTypeV128
}

// MemoryInstance is a single linear memory's runtime storage: a
// substrate.MemoryProvider-backed byte region plus its current page count.
// Growth (memory.grow) is explicitly bounded by the module's declared
// maximum and by the provider's remaining budget. Grow copies the current
// contents and the newly acquired region into a fresh slice, so a slice
// obtained from Bytes before a grow no longer aliases the live memory.
type MemoryInstance struct {
	provider substrate.MemoryProvider
	handle   substrate.Handle
	bytes    []byte

	pageSize  uint32 // 65536
	minPages  uint32
	maxPages  uint32 // 0 means unbounded by the module; provider budget still applies
	curPages  uint32
}

const wasmPageSize = 65536

// NewMemoryInstance acquires backing storage for a memory of the given
// initial page count from provider, bounded by maxPages (0 for unbounded).
func NewMemoryInstance(provider substrate.MemoryProvider, minPages, maxPages uint32) (*MemoryInstance, error) {
	h, err := provider.Acquire(uint(minPages) * wasmPageSize)
	if err != nil {
		return nil, err
	}
	bp, ok := provider.(interface{ Bytes(substrate.Handle) []byte })
	if !ok {
		return nil, api.NewError(api.ErrorCategorySystem, api.CodeProviderFailure, "memory provider does not support byte access")
	}
	return &MemoryInstance{
		provider: provider,
		handle:   h,
		bytes:    bp.Bytes(h),
		pageSize: wasmPageSize,
		minPages: minPages,
		maxPages: maxPages,
		curPages: minPages,
	}, nil
}

// Size returns the current memory size in pages.
func (m *MemoryInstance) Size() uint32 { return m.curPages }

// Bytes returns the live backing slice. Callers must bounds-check offsets
// themselves; the engine is the only caller and it traps
// (CodeMemoryOutOfBounds) before ever calling Bytes out of range.
func (m *MemoryInstance) Bytes() []byte { return m.bytes }

// Grow attempts to add delta pages, returning the previous page count, or
// ok=false if the module's maximum or the provider's budget would be
// exceeded. A failed grow surfaces to the guest as memory.grow returning
// -1, never as a trap.
func (m *MemoryInstance) Grow(delta uint32) (previous uint32, ok bool) {
	if m.maxPages != 0 && m.curPages+delta > m.maxPages {
		return m.curPages, false
	}
	newHandle, err := m.provider.Acquire(uint(delta) * wasmPageSize)
	if err != nil {
		return m.curPages, false
	}
	bp := m.provider.(interface{ Bytes(substrate.Handle) []byte })
	grown := append(append([]byte{}, m.bytes...), bp.Bytes(newHandle)...)
	previous = m.curPages
	m.bytes = grown
	m.curPages += delta
	return previous, true
}

// Copy implements memory.copy: n bytes starting at srcOffset move to
// dstOffset, both within the live region. Go's builtin copy is memmove-safe
// for overlapping ranges of the same backing array, so the direction of the
// copy never needs to be chosen explicitly.
func (m *MemoryInstance) Copy(dstOffset, srcOffset, n uint32) bool {
	size := uint64(len(m.bytes))
	if uint64(dstOffset)+uint64(n) > size || uint64(srcOffset)+uint64(n) > size {
		return false
	}
	copy(m.bytes[dstOffset:uint64(dstOffset)+uint64(n)], m.bytes[srcOffset:uint64(srcOffset)+uint64(n)])
	return true
}

// Fill implements memory.fill: n bytes starting at offset are set to val.
func (m *MemoryInstance) Fill(offset, n uint32, val byte) bool {
	if uint64(offset)+uint64(n) > uint64(len(m.bytes)) {
		return false
	}
	region := m.bytes[offset : uint64(offset)+uint64(n)]
	for i := range region {
		region[i] = val
	}
	return true
}

// Init implements memory.init: n bytes starting at srcOffset within data copy
// to dstOffset within the live region.
func (m *MemoryInstance) Init(dstOffset uint32, data DataInstance, srcOffset, n uint32) bool {
	if uint64(srcOffset)+uint64(n) > uint64(len(data)) {
		return false
	}
	if uint64(dstOffset)+uint64(n) > uint64(len(m.bytes)) {
		return false
	}
	copy(m.bytes[dstOffset:uint64(dstOffset)+uint64(n)], data[srcOffset:uint64(srcOffset)+uint64(n)])
	return true
}

// RestoreBytes grows the memory (if needed) to hold len(data) bytes and
// overwrites its contents from data, for checkpoint restore.
func (m *MemoryInstance) RestoreBytes(pages uint32, data []byte) error {
	if pages > m.curPages {
		if _, ok := m.Grow(pages - m.curPages); !ok {
			return api.NewError(api.ErrorCategorySystem, api.CodeProviderFailure, "cannot grow memory to restore checkpoint")
		}
	}
	copy(m.bytes, data)
	return nil
}

// TableInstance is a single table's runtime storage: a bounded slice of
// function/extern references.
type TableInstance struct {
	RefType api.ValueType
	Refs    *substrate.BoundedVec[int64] // -1 encodes ref.null
	Min     uint32
	Max     uint32 // 0 means unbounded by the module
}

// NewTableInstance allocates a table of the given initial size bounded by
// capacity (the table's declared maximum, or a substrate-imposed ceiling
// when the module leaves it unbounded).
func NewTableInstance(refType api.ValueType, min, capacity uint32) *TableInstance {
	v := substrate.NewBoundedVec[int64](uint(capacity))
	for i := uint32(0); i < min; i++ {
		_ = v.Push(-1)
	}
	return &TableInstance{RefType: refType, Refs: v, Min: min}
}

// Size returns the table's current element count.
func (t *TableInstance) Size() uint32 { return uint32(t.Refs.Len()) }

// Get implements table.get, returning the raw ref (-1 for ref.null) at i.
func (t *TableInstance) Get(i uint32) (int64, bool) {
	return t.Refs.Get(int(i))
}

// Set implements table.set, overwriting the ref at i.
func (t *TableInstance) Set(i uint32, v int64) bool {
	return t.Refs.Set(int(i), v)
}

// Grow implements table.grow: appends delta elements initialized to fillVal,
// bounded by the table's declared maximum and its BoundedVec capacity.
// Returns the previous size, or ok=false if the growth does not fit.
func (t *TableInstance) Grow(delta uint32, fillVal int64) (previous uint32, ok bool) {
	previous = t.Size()
	if t.Max != 0 && previous+delta > t.Max {
		return previous, false
	}
	for i := uint32(0); i < delta; i++ {
		if err := t.Refs.Push(fillVal); err != nil {
			t.Refs.Truncate(int(previous))
			return previous, false
		}
	}
	return previous, true
}

// Fill implements table.fill: n elements starting at i are set to val.
func (t *TableInstance) Fill(i, n uint32, val int64) bool {
	if uint64(i)+uint64(n) > uint64(t.Size()) {
		return false
	}
	for j := uint32(0); j < n; j++ {
		t.Refs.Set(int(i+j), val)
	}
	return true
}

// Copy implements table.copy: n elements starting at srcOffset in src move
// to dstOffset in dst (which may be the same table). Go's builtin copy is
// memmove-safe for overlapping ranges of the same backing array, so both the
// same-table and cross-table cases use it identically.
func (t *TableInstance) Copy(src *TableInstance, dstOffset, srcOffset, n uint32) bool {
	if uint64(dstOffset)+uint64(n) > uint64(t.Size()) || uint64(srcOffset)+uint64(n) > uint64(src.Size()) {
		return false
	}
	copy(t.Refs.Slice()[dstOffset:uint64(dstOffset)+uint64(n)], src.Refs.Slice()[srcOffset:uint64(srcOffset)+uint64(n)])
	return true
}

// Init implements table.init: n refs starting at srcOffset within elem copy
// to dstOffset within the table.
func (t *TableInstance) Init(elem ElementInstance, dstOffset, srcOffset, n uint32) bool {
	if uint64(srcOffset)+uint64(n) > uint64(len(elem.Refs)) {
		return false
	}
	if uint64(dstOffset)+uint64(n) > uint64(t.Size()) {
		return false
	}
	copy(t.Refs.Slice()[dstOffset:uint64(dstOffset)+uint64(n)], elem.Refs[srcOffset:uint64(srcOffset)+uint64(n)])
	return true
}

// RestoreRefs rebuilds Refs from a checkpointed snapshot, preserving Cap.
func (t *TableInstance) RestoreRefs(refs []int64) error {
	fresh := substrate.NewBoundedVec[int64](t.Refs.Cap)
	for _, r := range refs {
		if err := fresh.Push(r); err != nil {
			return err
		}
	}
	t.Refs = fresh
	return nil
}
