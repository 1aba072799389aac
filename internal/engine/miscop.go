package engine

import "github.com/avrabe/wrt/internal/leb128"

// miscOp is the LEB128 sub-opcode following a 0xfc prefix byte: saturating
// truncation, bulk-memory, and table instructions (the "FC" opcode space in
// the WebAssembly binary format — stable, public byte values, not specific
// to any single engine implementation).
type miscOp uint32

const (
	miscI32TruncSatF32S miscOp = 0
	miscI32TruncSatF32U miscOp = 1
	miscI32TruncSatF64S miscOp = 2
	miscI32TruncSatF64U miscOp = 3
	miscI64TruncSatF32S miscOp = 4
	miscI64TruncSatF32U miscOp = 5
	miscI64TruncSatF64S miscOp = 6
	miscI64TruncSatF64U miscOp = 7

	miscMemoryInit miscOp = 8
	miscDataDrop   miscOp = 9
	miscMemoryCopy miscOp = 10
	miscMemoryFill miscOp = 11

	miscTableInit miscOp = 12
	miscElemDrop  miscOp = 13
	miscTableCopy miscOp = 14
	miscTableGrow miscOp = 15
	miscTableSize miscOp = 16
	miscTableFill miscOp = 17
)

func isKnownMiscOp(op miscOp) bool {
	return op <= miscTableFill
}

// decodeMiscOp reads the sub-opcode and any immediates of a 0xfc-prefixed
// instruction starting at pc (just past the 0xfc byte itself), filling instr
// and returning the pc just past the whole instruction.
func decodeMiscOp(raw []byte, pc int, instr *Instruction) (int, error) {
	sub, n, err := leb128.LoadUint32(raw[pc:])
	if err != nil {
		return 0, err
	}
	pc += int(n)
	op := miscOp(sub)
	if !isKnownMiscOp(op) {
		return 0, errUnsupportedMiscOp(op)
	}
	instr.Sub = sub

	switch op {
	case miscI32TruncSatF32S, miscI32TruncSatF32U, miscI32TruncSatF64S, miscI32TruncSatF64U,
		miscI64TruncSatF32S, miscI64TruncSatF32U, miscI64TruncSatF64S, miscI64TruncSatF64U:
		// No immediate.

	case miscMemoryInit:
		dataIdx, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return 0, err
		}
		pc += int(n)
		memIdx, n, err := leb128.LoadUint32(raw[pc:]) // reserved byte, always 0x00
		if err != nil {
			return 0, err
		}
		pc += int(n)
		instr.Index, instr.Index2 = dataIdx, memIdx

	case miscDataDrop:
		dataIdx, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return 0, err
		}
		pc += int(n)
		instr.Index = dataIdx

	case miscMemoryCopy:
		dst, n, err := leb128.LoadUint32(raw[pc:]) // reserved byte, dst memidx
		if err != nil {
			return 0, err
		}
		pc += int(n)
		src, n, err := leb128.LoadUint32(raw[pc:]) // reserved byte, src memidx
		if err != nil {
			return 0, err
		}
		pc += int(n)
		instr.Index, instr.Index2 = dst, src

	case miscMemoryFill:
		memIdx, n, err := leb128.LoadUint32(raw[pc:]) // reserved byte
		if err != nil {
			return 0, err
		}
		pc += int(n)
		instr.Index = memIdx

	case miscTableInit:
		elemIdx, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return 0, err
		}
		pc += int(n)
		tableIdx, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return 0, err
		}
		pc += int(n)
		instr.Index, instr.Index2 = elemIdx, tableIdx

	case miscElemDrop:
		elemIdx, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return 0, err
		}
		pc += int(n)
		instr.Index = elemIdx

	case miscTableCopy:
		dst, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return 0, err
		}
		pc += int(n)
		src, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return 0, err
		}
		pc += int(n)
		instr.Index, instr.Index2 = dst, src

	case miscTableGrow, miscTableSize, miscTableFill:
		tableIdx, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return 0, err
		}
		pc += int(n)
		instr.Index = tableIdx
	}
	return pc, nil
}
