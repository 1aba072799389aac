package substrate

import (
	"unicode/utf8"

	"github.com/avrabe/wrt/api"
)

// BoundedVec is an array-like container of at most Cap elements of T. It
// never grows past Cap; Push returns CapacityExceeded instead of
// reallocating once full. The zero value is usable with Cap as the capacity.
type BoundedVec[T any] struct {
	Cap uint
	s   []T
}

// NewBoundedVec creates a BoundedVec with capacity reserved up front so Push
// never triggers a Go runtime allocation until it returns CapacityExceeded.
func NewBoundedVec[T any](cap uint) *BoundedVec[T] {
	return &BoundedVec[T]{Cap: cap, s: make([]T, 0, cap)}
}

func (v *BoundedVec[T]) Push(item T) error {
	if uint(len(v.s)) >= v.Cap {
		return api.NewError(api.ErrorCategoryCapacity, api.CodeCapacityExceeded, "bounded vec at capacity %d", v.Cap)
	}
	v.s = append(v.s, item)
	return nil
}

func (v *BoundedVec[T]) Pop() (T, bool) {
	var zero T
	if len(v.s) == 0 {
		return zero, false
	}
	last := len(v.s) - 1
	item := v.s[last]
	v.s = v.s[:last]
	return item, true
}

func (v *BoundedVec[T]) Get(i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(v.s) {
		return zero, false
	}
	return v.s[i], true
}

func (v *BoundedVec[T]) Set(i int, item T) bool {
	if i < 0 || i >= len(v.s) {
		return false
	}
	v.s[i] = item
	return true
}

func (v *BoundedVec[T]) Len() int { return len(v.s) }

func (v *BoundedVec[T]) Truncate(n int) {
	if n < len(v.s) {
		v.s = v.s[:n]
	}
}

// Iter calls fn for every element in order, stopping early if fn returns
// false.
func (v *BoundedVec[T]) Iter(fn func(int, T) bool) {
	for i, item := range v.s {
		if !fn(i, item) {
			return
		}
	}
}

// Slice returns the live elements. Callers must not retain it past the next
// mutation of v.
func (v *BoundedVec[T]) Slice() []T { return v.s }

// BoundedStack is a BoundedVec used LIFO-style; Push/Pop/Peek name the
// operand- and frame-stack usage in the interpreter.
type BoundedStack[T any] struct {
	BoundedVec[T]
}

func NewBoundedStack[T any](cap uint) *BoundedStack[T] {
	return &BoundedStack[T]{BoundedVec[T]{Cap: cap, s: make([]T, 0, cap)}}
}

func (s *BoundedStack[T]) Peek() (T, bool) {
	var zero T
	if len(s.s) == 0 {
		return zero, false
	}
	return s.s[len(s.s)-1], true
}

// BoundedString is a UTF-8 string of at most Cap bytes.
type BoundedString struct {
	Cap uint
	s   string
}

// NewBoundedString validates s fits within cap bytes.
func NewBoundedString(s string, cap uint) (BoundedString, error) {
	if uint(len(s)) > cap {
		return BoundedString{}, api.NewError(api.ErrorCategoryCapacity, api.CodeCapacityExceeded,
			"string of %d bytes exceeds cap %d", len(s), cap)
	}
	return BoundedString{Cap: cap, s: s}, nil
}

// NewBoundedStringTruncating silently truncates s to cap bytes (rune-safe)
// rather than erroring, for contexts (e.g. decoded custom-section names)
// where a truncated name is preferable to aborting decode.
func NewBoundedStringTruncating(s string, cap uint) BoundedString {
	if uint(len(s)) <= cap {
		return BoundedString{Cap: cap, s: s}
	}
	b := []byte(s)[:cap]
	// Avoid splitting a multi-byte rune at the boundary.
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return BoundedString{Cap: cap, s: string(b)}
}

func (b BoundedString) String() string { return b.s }
func (b BoundedString) Len() int       { return len(b.s) }

// BoundedMap is a map analogue without hash-table allocation: a slice of
// key/value pairs in insertion order, searched by linear probe. It suits the small, mostly
// read-only maps the engine needs (export name -> index, data-segment index
// -> drop flag) where a real hash map's bucket churn would defeat the
// no-heap-on-hot-path goal.
type BoundedMap[K comparable, V any] struct {
	Cap  uint
	keys []K
	vals []V
}

func NewBoundedMap[K comparable, V any](cap uint) *BoundedMap[K, V] {
	return &BoundedMap[K, V]{Cap: cap, keys: make([]K, 0, cap), vals: make([]V, 0, cap)}
}

func (m *BoundedMap[K, V]) Set(k K, v V) error {
	for i, existing := range m.keys {
		if existing == k {
			m.vals[i] = v
			return nil
		}
	}
	if uint(len(m.keys)) >= m.Cap {
		return api.NewError(api.ErrorCategoryCapacity, api.CodeCapacityExceeded, "bounded map at capacity %d", m.Cap)
	}
	m.keys = append(m.keys, k)
	m.vals = append(m.vals, v)
	return nil
}

func (m *BoundedMap[K, V]) Get(k K) (V, bool) {
	for i, existing := range m.keys {
		if existing == k {
			return m.vals[i], true
		}
	}
	var zero V
	return zero, false
}

func (m *BoundedMap[K, V]) Len() int { return len(m.keys) }

func (m *BoundedMap[K, V]) Iter(fn func(K, V) bool) {
	for i, k := range m.keys {
		if !fn(k, m.vals[i]) {
			return
		}
	}
}
