package engine

import (
	"math"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/trap"
	"github.com/avrabe/wrt/internal/wasm"
)

// step executes exactly one pre-decoded Instruction from fr, advancing
// fr.PC. It returns a non-nil *trap.Trap if the instruction traps. Every
// immediate (indices, memargs, constants, branch targets) was already
// resolved by compile at function-compile time (compile.go), so step never
// parses LEB128 or scans for a matching end/else — it only reads struct
// fields and dispatches.
func (it *Interpreter) step(fr *Frame) (*trap.Trap, error) {
	instr := fr.Body[fr.PC]
	pc := fr.PC + 1

	switch instr.Op {
	case opUnreachable:
		return trap.New(trap.KindUnreachable, "unreachable executed"), nil

	case opNop:
		fr.PC = pc
		return nil, nil

	case opBlock, opLoop:
		lbl := label{stackBase: it.operandDepth(), endPC: instr.EndPC, endArity: instr.BT.arity}
		if instr.Op == opLoop {
			lbl.kind = labelLoop
			lbl.loopStart = instr.LoopStart
			// A br targeting a loop re-enters at its start carrying the
			// loop's parameter count, which compile pins to zero.
		} else {
			lbl.kind = labelBlock
			lbl.branchArity = instr.BT.arity
		}
		if err := fr.Labels.Push(lbl); err != nil {
			return trap.New(trap.KindCallStackExhausted, "block nesting too deep"), nil
		}
		fr.PC = pc
		return nil, nil

	case opIf:
		cond := it.popI32()
		lbl := label{kind: labelIf, stackBase: it.operandDepth(), endPC: instr.EndPC, endArity: instr.BT.arity, branchArity: instr.BT.arity}
		if err := fr.Labels.Push(lbl); err != nil {
			return trap.New(trap.KindCallStackExhausted, "block nesting too deep"), nil
		}
		if cond != 0 {
			fr.PC = pc
		} else if instr.ElsePC != 0 {
			fr.PC = instr.ElsePC
		} else {
			fr.PC = instr.EndPC - 1 // the matching end, which pops the label
		}
		return nil, nil

	case opElse:
		// Reached by falling through the then-branch: skip to this label's
		// end instruction, which pops the label.
		lbl, ok := fr.Labels.Peek()
		if !ok {
			return nil, errUnexpectedEnd()
		}
		fr.PC = lbl.endPC - 1
		return nil, nil

	case opEnd:
		if lbl, ok := fr.Labels.Pop(); ok {
			it.exitLabel(lbl)
			fr.PC = pc
			return nil, nil
		}
		// No label left: this is the function's implicit outer block ending.
		fr.PC = pc
		return nil, nil

	case opBr:
		fr.PC = it.branch(fr, int(instr.Index))
		return nil, nil

	case opBrIf:
		cond := it.popI32()
		if cond != 0 {
			fr.PC = it.branch(fr, int(instr.Index))
		} else {
			fr.PC = pc
		}
		return nil, nil

	case opBrTable:
		idx := it.popI32()
		n := uint32(len(instr.Targets) - 1)
		var depth uint32
		if uidx := uint32(idx); idx >= 0 && uidx < n {
			depth = instr.Targets[uidx]
		} else {
			depth = instr.Targets[n]
		}
		fr.PC = it.branch(fr, int(depth))
		return nil, nil

	case opReturn:
		fr.PC = len(fr.Body) // force unwindFrame on next Run iteration
		return nil, nil

	case opCall:
		fr.PC = pc
		return it.call(instr.Index)

	case opCallIndirect:
		fr.PC = pc
		return it.callIndirect(instr.Index2, instr.Index)

	case opDrop:
		it.operand.Pop()
		fr.PC = pc
		return nil, nil

	case opSelect:
		cond := it.popI32()
		b, _ := it.operand.Pop()
		a, _ := it.operand.Pop()
		if cond != 0 {
			it.operand.Push(a)
		} else {
			it.operand.Push(b)
		}
		fr.PC = pc
		return nil, nil

	case opLocalGet:
		it.operand.Push(fr.Locals[instr.Index])
		fr.PC = pc
		return nil, nil

	case opLocalSet:
		v, _ := it.operand.Pop()
		fr.Locals[instr.Index] = v
		fr.PC = pc
		return nil, nil

	case opLocalTee:
		v, _ := it.operand.Peek()
		fr.Locals[instr.Index] = v
		fr.PC = pc
		return nil, nil

	case opGlobalGet:
		g := it.inst.Globals[instr.Index]
		it.operand.Push(globalToValue(g))
		fr.PC = pc
		return nil, nil

	case opGlobalSet:
		v, _ := it.operand.Pop()
		g := it.inst.Globals[instr.Index]
		g.Val = v.Bits()
		g.ValHi = v.BitsHi()
		fr.PC = pc
		return nil, nil

	case opTableGet:
		idx := uint32(it.popI32())
		tbl := it.inst.Tables[instr.Index]
		ref, ok := tbl.Get(idx)
		if !ok {
			return trap.New(trap.KindTableOutOfBounds, "table.get index %d out of bounds", idx), nil
		}
		it.operand.Push(refValue(tbl.RefType, ref))
		fr.PC = pc
		return nil, nil

	case opTableSet:
		v, _ := it.operand.Pop()
		idx := uint32(it.popI32())
		tbl := it.inst.Tables[instr.Index]
		ref := int64(-1)
		if i, ok := v.RefIndex(); ok {
			ref = int64(i)
		}
		if !tbl.Set(idx, ref) {
			return trap.New(trap.KindTableOutOfBounds, "table.set index %d out of bounds", idx), nil
		}
		fr.PC = pc
		return nil, nil

	case opRefNull:
		if api.ValueType(instr.Index) == api.ValueTypeExternref {
			it.operand.Push(api.ValueExternRef(-1))
		} else {
			it.operand.Push(api.ValueFuncRef(-1))
		}
		fr.PC = pc
		return nil, nil

	case opRefIsNull:
		v, _ := it.operand.Pop()
		it.operand.Push(api.ValueI32(b2i32(v.IsNullRef())))
		fr.PC = pc
		return nil, nil

	case opRefFunc:
		it.operand.Push(api.ValueFuncRef(int32(instr.Index)))
		fr.PC = pc
		return nil, nil

	case opMiscPrefix:
		return it.execMisc(fr, instr, pc)

	case opVecPrefix:
		return it.execVector(fr, instr, pc)

	default:
		if isMemoryOp(instr.Op) {
			return it.execMemory(fr, instr, pc)
		}
		if instr.Op == opI32Const || instr.Op == opI64Const || instr.Op == opF32Const || instr.Op == opF64Const {
			return it.execConst(fr, instr, pc)
		}
		return it.execNumeric(fr, instr.Op, pc)
	}
}

// refValue lifts a table's raw ref (-1 for null) into a typed Value.
func refValue(refType api.ValueType, ref int64) api.Value {
	if refType == api.ValueTypeExternref {
		return api.ValueExternRef(int32(ref))
	}
	return api.ValueFuncRef(int32(ref))
}

// exitLabel truncates the operand stack back to the label's entry depth,
// re-pushing the values the block yielded.
func (it *Interpreter) exitLabel(lbl label) {
	results := it.popN(lbl.endArity)
	it.truncateOperandTo(lbl.stackBase)
	for _, v := range results {
		it.operand.Push(v)
	}
}

// branch implements the unified semantics of br/br_if/br_table: unwind
// `depth` enclosing labels plus the target label itself, then either resume
// at the target loop's start (if it is a loop) or past its end.
func (it *Interpreter) branch(fr *Frame, depth int) int {
	var target label
	for i := 0; i <= depth; i++ {
		lbl, ok := fr.Labels.Pop()
		if !ok {
			// Branching past all labels exits the function.
			return len(fr.Body)
		}
		target = lbl
	}
	results := it.popN(target.branchArity)
	it.truncateOperandTo(target.stackBase)
	for _, v := range results {
		it.operand.Push(v)
	}
	if target.kind == labelLoop {
		fr.Labels.Push(target)
		return target.loopStart
	}
	return target.endPC
}

func (it *Interpreter) popI32() int32 {
	v, _ := it.operand.Pop()
	return v.I32()
}

func globalToValue(g *wasm.GlobalInstance) api.Value {
	switch g.Type.ValType {
	case api.ValueTypeI32:
		return api.ValueI32(int32(uint32(g.Val)))
	case api.ValueTypeI64:
		return api.ValueI64(int64(g.Val))
	case api.ValueTypeF32:
		return api.ValueF32(math.Float32frombits(uint32(g.Val)))
	case api.ValueTypeF64:
		return api.ValueF64(math.Float64frombits(g.Val))
	default:
		return api.ValueI64(int64(g.Val))
	}
}
