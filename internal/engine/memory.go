package engine

import (
	"math"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/trap"
)

func isMemoryOp(op opcode) bool {
	switch op {
	case opI32Load, opI64Load, opF32Load, opF64Load,
		opI32Load8S, opI32Load8U, opI32Load16S, opI32Load16U,
		opI64Load8S, opI64Load8U, opI64Load16S, opI64Load16U, opI64Load32S, opI64Load32U,
		opI32Store, opI64Store, opF32Store, opF64Store,
		opI32Store8, opI32Store16, opI64Store8, opI64Store16, opI64Store32,
		opMemorySize, opMemoryGrow:
		return true
	default:
		return false
	}
}

func (it *Interpreter) execMemory(fr *Frame, instr Instruction, pc int) (*trap.Trap, error) {
	op := instr.Op
	if op == opMemorySize {
		it.operand.Push(api.ValueI32(int32(it.inst.Memory.Size())))
		fr.PC = pc
		return nil, nil
	}
	if op == opMemoryGrow {
		delta := uint32(it.popI32())
		prev, ok := it.inst.Memory.Grow(delta)
		if !ok {
			it.operand.Push(api.ValueI32(-1))
		} else {
			it.operand.Push(api.ValueI32(int32(prev)))
		}
		fr.PC = pc
		return nil, nil
	}

	offset := instr.Offset
	mem := it.inst.Memory

	if isStoreOp(op) {
		v, _ := it.operand.Pop()
		addr := uint32(it.popI32())
		ea := uint64(addr) + uint64(offset)
		width := storeWidth(op)
		if ea+width > uint64(len(mem.Bytes())) {
			return trap.New(trap.KindMemoryOutOfBounds, "store of %d bytes at 0x%x out of bounds", width, ea), nil
		}
		storeBytes(mem.Bytes(), ea, op, v)
		fr.PC = pc
		return nil, nil
	}

	addr := uint32(it.popI32())
	ea := uint64(addr) + uint64(offset)
	width := loadWidth(op)
	if ea+width > uint64(len(mem.Bytes())) {
		return trap.New(trap.KindMemoryOutOfBounds, "load of %d bytes at 0x%x out of bounds", width, ea), nil
	}
	it.operand.Push(loadValue(mem.Bytes(), ea, op))
	fr.PC = pc
	return nil, nil
}

func isStoreOp(op opcode) bool {
	switch op {
	case opI32Store, opI64Store, opF32Store, opF64Store, opI32Store8, opI32Store16, opI64Store8, opI64Store16, opI64Store32:
		return true
	default:
		return false
	}
}

func loadWidth(op opcode) uint64 {
	switch op {
	case opI32Load, opF32Load:
		return 4
	case opI64Load, opF64Load:
		return 8
	case opI32Load8S, opI32Load8U, opI64Load8S, opI64Load8U:
		return 1
	case opI32Load16S, opI32Load16U, opI64Load16S, opI64Load16U:
		return 2
	case opI64Load32S, opI64Load32U:
		return 4
	default:
		return 0
	}
}

func storeWidth(op opcode) uint64 {
	switch op {
	case opI32Store, opF32Store:
		return 4
	case opI64Store, opF64Store:
		return 8
	case opI32Store8, opI64Store8:
		return 1
	case opI32Store16, opI64Store16:
		return 2
	case opI64Store32:
		return 4
	default:
		return 0
	}
}

func le32(b []byte, off uint64) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func le64(b []byte, off uint64) uint64 {
	var v uint64
	for i := uint64(0); i < 8; i++ {
		v |= uint64(b[off+i]) << (8 * i)
	}
	return v
}

func putLE32(b []byte, off uint64, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func putLE64(b []byte, off uint64, v uint64) {
	for i := uint64(0); i < 8; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}

func loadValue(mem []byte, ea uint64, op opcode) api.Value {
	switch op {
	case opI32Load:
		return api.ValueI32(int32(le32(mem, ea)))
	case opI64Load:
		return api.ValueI64(int64(le64(mem, ea)))
	case opF32Load:
		return api.ValueF32(math.Float32frombits(le32(mem, ea)))
	case opF64Load:
		return api.ValueF64(math.Float64frombits(le64(mem, ea)))
	case opI32Load8S:
		return api.ValueI32(int32(int8(mem[ea])))
	case opI32Load8U:
		return api.ValueI32(int32(mem[ea]))
	case opI32Load16S:
		return api.ValueI32(int32(int16(uint16(mem[ea]) | uint16(mem[ea+1])<<8)))
	case opI32Load16U:
		return api.ValueI32(int32(uint16(mem[ea]) | uint16(mem[ea+1])<<8))
	case opI64Load8S:
		return api.ValueI64(int64(int8(mem[ea])))
	case opI64Load8U:
		return api.ValueI64(int64(mem[ea]))
	case opI64Load16S:
		return api.ValueI64(int64(int16(uint16(mem[ea]) | uint16(mem[ea+1])<<8)))
	case opI64Load16U:
		return api.ValueI64(int64(uint16(mem[ea]) | uint16(mem[ea+1])<<8))
	case opI64Load32S:
		return api.ValueI64(int64(int32(le32(mem, ea))))
	case opI64Load32U:
		return api.ValueI64(int64(le32(mem, ea)))
	default:
		return api.Value{}
	}
}

func storeBytes(mem []byte, ea uint64, op opcode, v api.Value) {
	switch op {
	case opI32Store, opF32Store:
		putLE32(mem, ea, uint32(v.Bits()))
	case opI64Store, opF64Store:
		putLE64(mem, ea, v.Bits())
	case opI32Store8, opI64Store8:
		mem[ea] = byte(v.Bits())
	case opI32Store16, opI64Store16:
		mem[ea] = byte(v.Bits())
		mem[ea+1] = byte(v.Bits() >> 8)
	case opI64Store32:
		putLE32(mem, ea, uint32(v.Bits()))
	}
}
