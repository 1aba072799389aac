package substrate

import (
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/avrabe/wrt/api"
)

// HeapPool is a MemoryProvider for general (non-bare-metal) builds. It
// reserves a fixed virtual address range once via an anonymous memory
// mapping, so a region handed out by Acquire never moves while its Handle
// is live. (wasm.MemoryInstance.Grow still copies its contents into a fresh
// slice on every grow.)
//
// Sub-allocations within the reserved range still go through Budget
// accounting identically to StaticPool.
type HeapPool struct {
	mu       sync.Mutex
	mapping  mmap.MMap
	bump     uint
	budget   *Budget
	next     Handle
	live     map[Handle]region
}

// NewHeapPool reserves size bytes of anonymous, readable/writable virtual
// memory up front.
func NewHeapPool(size uint, budget *Budget) (*HeapPool, error) {
	m, err := mmap.MapRegion(nil, int(size), mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, api.NewError(api.ErrorCategorySystem, api.CodeProviderFailure, "mmap reserve %d bytes: %v", size, err)
	}
	return &HeapPool{mapping: m, budget: budget, live: make(map[Handle]region)}, nil
}

func (p *HeapPool) Acquire(n uint) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bump+n > uint(len(p.mapping)) {
		return 0, api.NewError(api.ErrorCategoryCapacity, api.CodeCapacityExceeded,
			"heap pool exhausted: need %d bytes, %d remain", n, uint(len(p.mapping))-p.bump)
	}
	if p.budget != nil {
		if err := p.budget.Acquire(n); err != nil {
			return 0, err
		}
	}
	p.next++
	h := p.next
	p.live[h] = region{off: p.bump, n: n}
	p.bump += n
	return h, nil
}

func (p *HeapPool) Release(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.live[h]
	if !ok {
		return
	}
	delete(p.live, h)
	if p.budget != nil {
		p.budget.Release(r.n)
	}
}

// Bytes returns the backing slice for the region identified by h. The slice
// is stable for the lifetime of the Handle: growth of other regions in the
// pool never moves it, since the pool's virtual range was reserved up front.
func (p *HeapPool) Bytes(h Handle) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.live[h]
	if !ok {
		return nil
	}
	return p.mapping[r.off : r.off+r.n]
}

func (p *HeapPool) Total() uint { return uint(len(p.mapping)) }

func (p *HeapPool) Available() uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint(len(p.mapping)) - p.bump
}

// Close unmaps the pool's backing region. Must not be called while any
// Handle from it is still in use.
func (p *HeapPool) Close() error {
	return p.mapping.Unmap()
}
