package substrate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/avrabe/wrt/api"
)

func loadAtomic(addr *uint32) uint32 { return atomic.LoadUint32(addr) }

// FutexLike is the sync primitive blocking operations in the async executor
// use to wait for a 32-bit word to change. Platform backends (Linux futex,
// macOS ulock) plug in behind this interface; SpinFutex below is the
// portable bare-metal fallback.
type FutexLike interface {
	// Wait blocks while *addr == expected, until Wake is called, timeout
	// elapses, or a spurious wakeup occurs. Spurious wakeups are legal.
	Wait(addr *uint32, expected uint32, timeout *time.Duration) error
	// Wake wakes up to count waiters blocked on addr.
	Wake(addr *uint32, count uint32) error
}

// ErrTimedOut is returned by FutexLike.Wait when timeout elapses first.
var ErrTimedOut = api.NewError(api.ErrorCategorySystem, api.CodeFutexError, "futex wait timed out")

// SpinFutex is a bare-metal fallback FutexLike: Wait busy-polls the word at a
// fixed interval instead of parking on an OS primitive. It is correct (every
// contract Wait/Wake makes is honored) but not efficient, which is the
// expected trade-off on targets without a kernel futex.
type SpinFutex struct {
	mu       sync.Mutex
	pollEvery time.Duration
}

// NewSpinFutex creates a SpinFutex polling at the given interval (a small
// value such as 100µs is typical; too small wastes CPU, too large adds
// latency to Wake).
func NewSpinFutex(pollEvery time.Duration) *SpinFutex {
	if pollEvery <= 0 {
		pollEvery = 50 * time.Microsecond
	}
	return &SpinFutex{pollEvery: pollEvery}
}

func (f *SpinFutex) Wait(addr *uint32, expected uint32, timeout *time.Duration) error {
	var deadline time.Time
	hasDeadline := timeout != nil
	if hasDeadline {
		deadline = time.Now().Add(*timeout)
	}
	for loadAtomic(addr) == expected {
		if hasDeadline && time.Now().After(deadline) {
			return ErrTimedOut
		}
		time.Sleep(f.pollEvery)
	}
	return nil
}

// Wake is a no-op for SpinFutex: waiters discover the change on their next
// poll. The signature is kept so SpinFutex satisfies FutexLike and callers
// do not need to special-case the bare-metal backend.
func (f *SpinFutex) Wake(addr *uint32, count uint32) error { return nil }
