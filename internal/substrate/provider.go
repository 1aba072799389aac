// Package substrate implements the bounded-memory substrate: budget-tracked
// memory providers and the bounded containers built on top of them. Nothing
// here calls the system allocator on the hot path once a provider has been
// constructed.
package substrate

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/avrabe/wrt/api"
)

// Handle identifies a region acquired from a MemoryProvider. It carries no
// payload of its own; Provider.Acquire callers track the byte count they
// asked for.
type Handle uint64

// MemoryProvider is the injectable backing store for every bounded
// container used by the engine: operand stack, locals, tables, linear
// memory, and the decoded module itself. Concrete shapes are a fixed-size
// static pool (no-heap builds) or a heap/mmap-backed pool (general builds);
// both track a Budget.
type MemoryProvider interface {
	// Acquire reserves n bytes and returns a Handle identifying the region.
	Acquire(n uint) (Handle, error)
	// Release returns a previously acquired region to the provider.
	Release(h Handle)
	// Total is the provider's total byte capacity.
	Total() uint
	// Available is the number of bytes Acquire can still hand out. Released
	// regions are not reused, so they are not counted back in.
	Available() uint
}

// Budget is a per-subsystem ceiling on bytes allocable through a provider.
// Budgets compose hierarchically: creating a child subtracts its limit from
// the parent's remaining capacity immediately, so the parent can never be
// over-committed by its children.
type Budget struct {
	mu          sync.Mutex
	id          string
	limitBytes  uint
	currentBytes uint
	parent      *Budget
}

// NewBudget creates a root budget with the given byte ceiling.
func NewBudget(id string, limitBytes uint) *Budget {
	return &Budget{id: id, limitBytes: limitBytes}
}

// Child carves a subordinate budget out of b. It fails if limitBytes would
// exceed what b has not already committed to other children.
func (b *Budget) Child(id string, limitBytes uint) (*Budget, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.currentBytes+limitBytes > b.limitBytes {
		return nil, api.NewError(api.ErrorCategoryResource, api.CodeOutOfBudget,
			"budget %q: child %q needs %d bytes but only %d remain of %d",
			b.id, id, limitBytes, b.limitBytes-b.currentBytes, b.limitBytes)
	}
	b.currentBytes += limitBytes
	return &Budget{id: id, limitBytes: limitBytes, parent: b}, nil
}

// Acquire reserves n bytes against b, failing with ResourceExhausted if doing
// so would exceed b's limit.
func (b *Budget) Acquire(n uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.currentBytes+n > b.limitBytes {
		return api.NewError(api.ErrorCategoryResource, api.CodeOutOfBudget,
			"budget %q: current %d + requested %d exceeds limit %d", b.id, b.currentBytes, n, b.limitBytes)
	}
	b.currentBytes += n
	return nil
}

// Release returns n bytes to b. Releasing more than is currently held is a
// caller bug; the ledger clamps to zero rather than underflowing, and the
// mismatch is logged so it cannot pass silently.
func (b *Budget) Release(n uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.currentBytes {
		logrus.WithFields(logrus.Fields{
			"budget":   b.id,
			"released": n,
			"held":     b.currentBytes,
		}).Error("budget release exceeds held bytes; clamping")
		b.currentBytes = 0
		return
	}
	b.currentBytes -= n
}

func (b *Budget) ID() string { return b.id }

func (b *Budget) Limit() uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limitBytes
}

func (b *Budget) Current() uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentBytes
}

// StandardBudgetLayout carves a fixed set of named subsystem budgets
// (operand stack, call frames, linear memory, tables, decoded module) out
// of one root budget, so each subsystem's worst-case memory use is pinned
// at runtime construction and one subsystem can never starve another.
type StandardBudgetLayout struct {
	Root         *Budget
	OperandStack *Budget
	CallFrames   *Budget
	LinearMemory *Budget
	Tables       *Budget
	DecodedModule *Budget
}

// NewStandardBudgetLayout splits totalBytes into the five named subsystem
// budgets using fixed percentages of totalBytes (they sum to less than 100;
// the remainder stays uncommitted headroom on Root).
func NewStandardBudgetLayout(totalBytes uint) (*StandardBudgetLayout, error) {
	root := NewBudget("root", totalBytes)
	fraction := func(pct uint) uint { return (totalBytes * pct) / 100 }

	l := &StandardBudgetLayout{Root: root}
	var err error
	if l.OperandStack, err = root.Child("operand_stack", fraction(25)); err != nil {
		return nil, err
	}
	if l.CallFrames, err = root.Child("call_frames", fraction(10)); err != nil {
		return nil, err
	}
	if l.LinearMemory, err = root.Child("linear_memory", fraction(40)); err != nil {
		return nil, err
	}
	if l.Tables, err = root.Child("tables", fraction(5)); err != nil {
		return nil, err
	}
	if l.DecodedModule, err = root.Child("decoded_module", fraction(15)); err != nil {
		return nil, err
	}
	return l, nil
}
