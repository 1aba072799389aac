package engine

import (
	"math"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/trap"
)

// execMisc handles every 0xfc-prefixed instruction: saturating truncation,
// bulk-memory, and table instructions. instr.Sub was resolved to a known
// miscOp by compile (miscop.go), so this switch never needs a default trap
// case.
func (it *Interpreter) execMisc(fr *Frame, instr Instruction, pc int) (*trap.Trap, error) {
	switch miscOp(instr.Sub) {
	case miscI32TruncSatF32S:
		f := it.popF32()
		it.operand.Push(api.ValueI32(truncSatI32(float64(f), math.MinInt32, math.MaxInt32, false)))
	case miscI32TruncSatF32U:
		f := it.popF32()
		it.operand.Push(api.ValueI32(truncSatI32(float64(f), 0, math.MaxUint32, true)))
	case miscI32TruncSatF64S:
		f := it.popF64()
		it.operand.Push(api.ValueI32(truncSatI32(f, math.MinInt32, math.MaxInt32, false)))
	case miscI32TruncSatF64U:
		f := it.popF64()
		it.operand.Push(api.ValueI32(truncSatI32(f, 0, math.MaxUint32, true)))
	case miscI64TruncSatF32S:
		f := it.popF32()
		it.operand.Push(api.ValueI64(truncSatI64(float64(f), false)))
	case miscI64TruncSatF32U:
		f := it.popF32()
		it.operand.Push(api.ValueI64(truncSatI64(float64(f), true)))
	case miscI64TruncSatF64S:
		f := it.popF64()
		it.operand.Push(api.ValueI64(truncSatI64(f, false)))
	case miscI64TruncSatF64U:
		f := it.popF64()
		it.operand.Push(api.ValueI64(truncSatI64(f, true)))

	case miscMemoryInit:
		n := uint32(it.popI32())
		src := uint32(it.popI32())
		dst := uint32(it.popI32())
		data := it.inst.DataInstances[instr.Index]
		if !it.inst.Memory.Init(dst, data, src, n) {
			return trap.New(trap.KindMemoryOutOfBounds, "memory.init out of bounds"), nil
		}

	case miscDataDrop:
		it.inst.DataInstances[instr.Index] = nil

	case miscMemoryCopy:
		n := uint32(it.popI32())
		src := uint32(it.popI32())
		dst := uint32(it.popI32())
		if !it.inst.Memory.Copy(dst, src, n) {
			return trap.New(trap.KindMemoryOutOfBounds, "memory.copy out of bounds"), nil
		}

	case miscMemoryFill:
		n := uint32(it.popI32())
		val := byte(it.popI32())
		dst := uint32(it.popI32())
		if !it.inst.Memory.Fill(dst, n, val) {
			return trap.New(trap.KindMemoryOutOfBounds, "memory.fill out of bounds"), nil
		}

	case miscTableInit:
		n := uint32(it.popI32())
		src := uint32(it.popI32())
		dst := uint32(it.popI32())
		elem := it.inst.ElementInstances[instr.Index]
		tbl := it.inst.Tables[instr.Index2]
		if !tbl.Init(elem, dst, src, n) {
			return trap.New(trap.KindTableOutOfBounds, "table.init out of bounds"), nil
		}

	case miscElemDrop:
		it.inst.ElementInstances[instr.Index].Refs = nil

	case miscTableCopy:
		n := uint32(it.popI32())
		src := uint32(it.popI32())
		dst := uint32(it.popI32())
		dstTbl := it.inst.Tables[instr.Index]
		srcTbl := it.inst.Tables[instr.Index2]
		if !dstTbl.Copy(srcTbl, dst, src, n) {
			return trap.New(trap.KindTableOutOfBounds, "table.copy out of bounds"), nil
		}

	case miscTableGrow:
		n := uint32(it.popI32())
		v, _ := it.operand.Pop()
		tbl := it.inst.Tables[instr.Index]
		fillVal, _ := v.RefIndex()
		if v.IsNullRef() {
			fillVal = -1
		}
		prev, ok := tbl.Grow(n, int64(fillVal))
		if !ok {
			it.operand.Push(api.ValueI32(-1))
		} else {
			it.operand.Push(api.ValueI32(int32(prev)))
		}

	case miscTableSize:
		tbl := it.inst.Tables[instr.Index]
		it.operand.Push(api.ValueI32(int32(tbl.Size())))

	case miscTableFill:
		n := uint32(it.popI32())
		v, _ := it.operand.Pop()
		dst := uint32(it.popI32())
		tbl := it.inst.Tables[instr.Index]
		fillVal, _ := v.RefIndex()
		if v.IsNullRef() {
			fillVal = -1
		}
		if !tbl.Fill(dst, n, int64(fillVal)) {
			return trap.New(trap.KindTableOutOfBounds, "table.fill out of bounds"), nil
		}
	}

	fr.PC = pc
	return nil, nil
}

// truncSatI32 clamps f into [lo, hi] instead of trapping on NaN or overflow,
// matching the non-trapping trunc_sat instructions (execTrunc implements the
// trapping counterpart).
func truncSatI32(f float64, lo, hi int64, unsigned bool) int32 {
	if math.IsNaN(f) {
		return 0
	}
	if f < float64(lo) {
		return int32(lo)
	}
	if f >= float64(hi)+1 {
		if unsigned {
			return int32(uint32(hi))
		}
		return int32(hi)
	}
	if unsigned {
		return int32(uint32(f))
	}
	return int32(f)
}

func truncSatI64(f float64, unsigned bool) int64 {
	if math.IsNaN(f) {
		return 0
	}
	if unsigned {
		if f < 0 {
			return 0
		}
		if f >= 18446744073709551616.0 {
			var max uint64 = math.MaxUint64
			return int64(max)
		}
		return int64(uint64(f))
	}
	if f < -9223372036854775808.0 {
		return math.MinInt64
	}
	if f >= 9223372036854775808.0 {
		return math.MaxInt64
	}
	return int64(f)
}
