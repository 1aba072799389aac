// Package intercept wraps inter-component and host calls with an ordered
// chain of before/after hooks: a strategy list notified at call entry and
// exit that may substitute arguments, bypass the call outright, or rewrite
// its serialized result.
package intercept

import (
	"github.com/avrabe/wrt/api"
)

// Strategy is one link in a LinkInterceptor's chain. BeforeCall/AfterCall
// are the only methods every strategy must implement; the canonical
// lift/lower and resource hooks default to "not intercepted" via
// DefaultStrategy so a strategy author only overrides what it cares about.
type Strategy interface {
	// BeforeCall runs before the target is invoked. It returns the args to
	// actually use (unmodified args, or a substitution) and whether the real
	// call should be skipped (bypass=true; in that case the returned args
	// are treated as the call's result).
	BeforeCall(source, target, function string, args []api.Value) (substituted []api.Value, bypass bool, err error)

	// AfterCall runs once the call (or bypass) has produced a result.
	// Strategies run in reverse registration order here, so the first
	// strategy to see the call's args is the last to see its result —
	// nested middleware semantics.
	AfterCall(source, target, function string, args []api.Value, result []api.Value, callErr error) ([]api.Value, error)

	// InterceptLift, given a value's memory region, may take over decoding
	// it into serialized bytes. Returning (nil, false) proceeds normally.
	InterceptLift(addr uint32, memory []byte) (data []byte, handled bool, err error)

	// InterceptLower, given serialized bytes and a destination memory
	// region, may take over writing them. Returning false proceeds normally.
	InterceptLower(data []byte, addr uint32, memory []byte) (handled bool, err error)

	// InterceptResourceOperation may take over a resource-handle operation.
	// Returning (nil, false) proceeds normally.
	InterceptResourceOperation(handle uint32, operation string) (result []byte, handled bool, err error)
}

// DefaultStrategy implements every Strategy method as a no-op pass-through.
// Embed it in a concrete strategy to only override the hooks that matter.
type DefaultStrategy struct{}

func (DefaultStrategy) BeforeCall(_, _, _ string, args []api.Value) ([]api.Value, bool, error) {
	return args, false, nil
}

func (DefaultStrategy) AfterCall(_, _, _ string, _ []api.Value, result []api.Value, callErr error) ([]api.Value, error) {
	return result, callErr
}

func (DefaultStrategy) InterceptLift(uint32, []byte) ([]byte, bool, error) { return nil, false, nil }

func (DefaultStrategy) InterceptLower([]byte, uint32, []byte) (bool, error) { return false, nil }

func (DefaultStrategy) InterceptResourceOperation(uint32, string) ([]byte, bool, error) {
	return nil, false, nil
}

// ModificationKind tags which edit a Modification performs on a serialized
// result buffer.
type ModificationKind int

const (
	ModificationReplace ModificationKind = iota
	ModificationInsert
	ModificationRemove
)

// Modification is one edit to a serialized result buffer, applied in order
// by ApplyModifications. Bounds violations are hard errors
// (api.ErrorCategoryValidation), never a silent clamp.
type Modification struct {
	Kind   ModificationKind
	Offset int
	Data   []byte // valid for Replace/Insert
	Length int    // valid for Remove
}

// LinkInterceptor holds an ordered chain of Strategy and applies it around
// every inter-component or host call. Strategies are consulted
// before_call-in-order and after_call-in-reverse-order — nested middleware
// semantics, which must stay that way.
type LinkInterceptor struct {
	name       string
	strategies []Strategy
}

// New creates a named, empty LinkInterceptor. name identifies the calling
// component in BeforeCall/AfterCall's source argument.
func New(name string) *LinkInterceptor {
	return &LinkInterceptor{name: name}
}

// Name returns the interceptor's identifier.
func (li *LinkInterceptor) Name() string { return li.name }

// AddStrategy appends strategy to the chain. Strategies run in the order
// they were added for BeforeCall, and in reverse for AfterCall.
func (li *LinkInterceptor) AddStrategy(strategy Strategy) {
	li.strategies = append(li.strategies, strategy)
}

// Call runs target/function through the interceptor chain around invoke,
// in three steps:
//  1. before_call on each strategy in order; any bypass short-circuits invoke.
//  2. invoke, unless bypassed.
//  3. after_call on each strategy in reverse order.
func (li *LinkInterceptor) Call(target, function string, args []api.Value, invoke func([]api.Value) ([]api.Value, error)) ([]api.Value, error) {
	current := args
	for _, s := range li.strategies {
		substituted, bypass, err := s.BeforeCall(li.name, target, function, current)
		if err != nil {
			return nil, api.NewError(api.ErrorCategorySystem, api.CodeInterceptorRejected, "before_call rejected: %v", err)
		}
		current = substituted
		if bypass {
			return li.runAfter(target, function, args, current, nil)
		}
	}

	result, callErr := invoke(current)
	return li.runAfter(target, function, args, result, callErr)
}

// runAfter applies after_call to every strategy in reverse registration
// order, threading the (possibly erroring) result through each.
func (li *LinkInterceptor) runAfter(target, function string, originalArgs, result []api.Value, callErr error) ([]api.Value, error) {
	for i := len(li.strategies) - 1; i >= 0; i-- {
		result, callErr = li.strategies[i].AfterCall(li.name, target, function, originalArgs, result, callErr)
	}
	return result, callErr
}

// ApplyModifications applies mods, in order, to a copy of data. Any
// out-of-range offset or length is a hard api.ErrorCategoryValidation error
// and leaves data untouched (the copy made before applying is discarded).
func ApplyModifications(data []byte, mods []Modification) ([]byte, error) {
	out := append([]byte(nil), data...)
	for _, m := range mods {
		var err error
		out, err = applyOne(out, m)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyOne(data []byte, m Modification) ([]byte, error) {
	switch m.Kind {
	case ModificationReplace:
		end := m.Offset + len(m.Data)
		if m.Offset < 0 || end > len(data) {
			return nil, validationErr("replace", m.Offset, end, len(data))
		}
		out := append([]byte(nil), data...)
		copy(out[m.Offset:end], m.Data)
		return out, nil
	case ModificationInsert:
		if m.Offset < 0 || m.Offset > len(data) {
			return nil, validationErr("insert", m.Offset, m.Offset, len(data))
		}
		out := make([]byte, 0, len(data)+len(m.Data))
		out = append(out, data[:m.Offset]...)
		out = append(out, m.Data...)
		out = append(out, data[m.Offset:]...)
		return out, nil
	case ModificationRemove:
		end := m.Offset + m.Length
		if m.Offset < 0 || end > len(data) {
			return nil, validationErr("remove", m.Offset, end, len(data))
		}
		out := make([]byte, 0, len(data)-m.Length)
		out = append(out, data[:m.Offset]...)
		out = append(out, data[end:]...)
		return out, nil
	default:
		return nil, api.NewError(api.ErrorCategoryValidation, api.CodeModificationOutOfRange, "unknown modification kind %d", m.Kind)
	}
}

func validationErr(op string, offset, end, length int) error {
	return api.NewError(api.ErrorCategoryValidation, api.CodeModificationOutOfRange,
		"%s range [%d:%d) out of bounds for buffer of length %d", op, offset, end, length)
}
