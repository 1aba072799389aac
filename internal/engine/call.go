package engine

import (
	"github.com/avrabe/wrt/internal/trap"
)

// MaxCallDepth mirrors Limits.MaxCallDepth for callers that want the
// constant without constructing a Limits value; Interpreter always honors
// its own configured limits.MaxCallDepth regardless.
const MaxCallDepth = 512

func (it *Interpreter) call(funcIdx Index) (*trap.Trap, error) {
	if int(funcIdx) >= len(it.inst.Functions) {
		return trap.New(trap.KindTableOutOfBounds, "call to unknown function %d", funcIdx), nil
	}
	fn := &it.inst.Functions[funcIdx]
	args := it.popN(len(fn.Type.Params))
	if fn.Host != nil {
		results, err := fn.Host(args)
		if err != nil {
			return trap.New(trap.KindUnreachable, "host call failed: %v", err), nil
		}
		for _, v := range results {
			it.operand.Push(v)
		}
		return nil, nil
	}
	frame := newFrame(funcIdx, fn, it.compiled[funcIdx], args, it.limits.MaxLabelsPerFrame)
	frame.StackBase = it.operandDepth()
	if err := it.frames.Push(frame); err != nil {
		return trap.New(trap.KindCallStackExhausted, "call stack exhausted at depth %d", it.limits.MaxCallDepth), nil
	}
	return nil, nil
}

func (it *Interpreter) callIndirect(tableIdx, typeIdx Index) (*trap.Trap, error) {
	if int(tableIdx) >= len(it.inst.Tables) {
		return trap.New(trap.KindTableOutOfBounds, "unknown table %d", tableIdx), nil
	}
	tbl := it.inst.Tables[tableIdx]
	elemIdx := uint32(it.popI32())
	ref, ok := tbl.Refs.Get(int(elemIdx))
	if !ok {
		return trap.New(trap.KindTableOutOfBounds, "table index %d out of bounds", elemIdx), nil
	}
	if ref < 0 {
		return trap.New(trap.KindNullReference, "call_indirect through null reference"), nil
	}
	funcIdx := Index(ref)
	if int(funcIdx) >= len(it.inst.Functions) {
		return trap.New(trap.KindIndirectCallTypeMismatch, "indirect call target %d out of range", funcIdx), nil
	}
	fn := &it.inst.Functions[funcIdx]
	if int(typeIdx) >= len(it.inst.Module.TypeSection) {
		return trap.New(trap.KindIndirectCallTypeMismatch, "unknown type index %d", typeIdx), nil
	}
	want := it.inst.Module.TypeSection[typeIdx]
	if !(&want).Equals(&fn.Type) {
		return trap.New(trap.KindIndirectCallTypeMismatch, "indirect call type mismatch"), nil
	}
	return it.call(funcIdx)
}
