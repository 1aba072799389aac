package engine

import (
	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/substrate"
	"github.com/avrabe/wrt/internal/wasm"
)

// labelKind distinguishes a loop label (branching to it re-enters at its
// start) from a block/if label (branching to it exits past its end).
type labelKind int

const (
	labelBlock labelKind = iota
	labelLoop
	labelIf
)

// label is a single entry of a frame's structured-control stack, pushed on
// block/loop/if entry and popped at the matching end (or on a branch that
// targets it or an enclosing label).
type label struct {
	kind        labelKind
	endArity    int // values the block yields when its end is reached
	branchArity int // values a br targeting this label carries: endArity for block/if, 0 for loop
	stackBase   int // operand stack depth at label entry, for unwinding
	loopStart   int // pc to jump back to, valid when kind == labelLoop
	endPC       int // pc just past the matching end
}

// Frame is a single function activation: its locals, its structured-control
// label stack, and its current position in the body. Frames are pushed on
// Call and popped on Return/fall-through — there is no host-language
// recursion involved; internal/engine.Interpreter drives frames with an
// explicit stack instead of Go call frames, so a guest call depth of
// thousands never grows the host stack.
type Frame struct {
	FuncIndex Index
	Locals    []api.Value
	Body      []Instruction
	PC        int
	Labels    *substrate.BoundedStack[label]
	StackBase int    // operand stack depth when this frame was entered
	ResultArity int  // number of values the function returns
}

// Index mirrors wasm.Index for readability inside this package.
type Index = wasm.Index

func newFrame(funcIdx Index, fn *wasm.FunctionInstance, body []Instruction, args []api.Value, maxLabels uint) *Frame {
	locals := make([]api.Value, 0, len(fn.Type.Params)+localCount(fn.Body))
	locals = append(locals, args...)
	if fn.Body != nil {
		for _, le := range fn.Body.Locals {
			for i := uint32(0); i < le.Count; i++ {
				locals = append(locals, zeroValue(le.Type))
			}
		}
	}
	return &Frame{
		FuncIndex:   funcIdx,
		Locals:      locals,
		Body:        body,
		Labels:      substrate.NewBoundedStack[label](maxLabels),
		ResultArity: len(fn.Type.Results),
	}
}

func localCount(code *wasm.Code) int {
	if code == nil {
		return 0
	}
	n := 0
	for _, le := range code.Locals {
		n += int(le.Count)
	}
	return n
}

func zeroValue(vt api.ValueType) api.Value {
	switch vt {
	case api.ValueTypeI32:
		return api.ValueI32(0)
	case api.ValueTypeI64:
		return api.ValueI64(0)
	case api.ValueTypeF32:
		return api.ValueF32(0)
	case api.ValueTypeF64:
		return api.ValueF64(0)
	case api.ValueTypeV128:
		return api.ValueV128([16]byte{})
	case api.ValueTypeFuncref, api.ValueTypeExternref:
		return api.ValueFuncRef(-1)
	default:
		return api.ValueI32(0)
	}
}
