package substrate

import (
	"sync"

	"github.com/avrabe/wrt/api"
)

// StaticPool is a MemoryProvider backed by a single fixed-size array owned by
// the provider instance. It carves allocations with a bump-pointer discipline
// and never touches the system allocator after construction, making it the
// shape used by no-heap ASIL-B builds.
type StaticPool struct {
	mu     sync.Mutex
	buf    []byte
	bump   uint
	budget *Budget
	next   Handle
	live   map[Handle]region
}

type region struct {
	off, n uint
}

// NewStaticPool allocates the pool's backing array once, up front.
func NewStaticPool(size uint, budget *Budget) *StaticPool {
	return &StaticPool{
		buf:    make([]byte, size),
		budget: budget,
		live:   make(map[Handle]region),
	}
}

func (p *StaticPool) Acquire(n uint) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bump+n > uint(len(p.buf)) {
		return 0, api.NewError(api.ErrorCategoryCapacity, api.CodeCapacityExceeded,
			"static pool exhausted: need %d bytes, %d remain", n, uint(len(p.buf))-p.bump)
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

// Release marks the region free for budget accounting. A bump allocator does
// not reclaim fragmented space until the whole pool resets; ASIL-B workloads
// are expected to size pools for worst-case concurrent acquisitions rather
// than rely on fragmentation-free reuse.
func (p *StaticPool) Release(h Handle) {
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

// Bytes returns the backing slice for the region identified by h.
func (p *StaticPool) Bytes(h Handle) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.live[h]
	if !ok {
		return nil
	}
	return p.buf[r.off : r.off+r.n]
}

func (p *StaticPool) Total() uint { return uint(len(p.buf)) }

func (p *StaticPool) Available() uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint(len(p.buf)) - p.bump
}

// Reset reclaims the whole pool, invalidating every outstanding Handle. Used
// between checkpoint restores and test fixtures, never mid-execution.
func (p *StaticPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.budget != nil {
		p.budget.Release(p.bump)
	}
	p.bump = 0
	p.live = make(map[Handle]region)
}
