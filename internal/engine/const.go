package engine

import (
	"math"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/trap"
)

func (it *Interpreter) execConst(fr *Frame, instr Instruction, pc int) (*trap.Trap, error) {
	switch instr.Op {
	case opI32Const:
		it.operand.Push(api.ValueI32(instr.I32))
	case opI64Const:
		it.operand.Push(api.ValueI64(instr.I64))
	case opF32Const:
		it.operand.Push(api.ValueF32(math.Float32frombits(instr.F32Bits)))
	case opF64Const:
		it.operand.Push(api.ValueF64(math.Float64frombits(instr.F64Bits)))
	}
	fr.PC = pc
	return nil, nil
}
