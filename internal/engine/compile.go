package engine

import (
	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/leb128"
)

// Instruction is one pre-decoded dispatch unit: an opcode plus its already
// resolved immediates. compile produces exactly one Instruction per
// WebAssembly instruction in a function body, in order, so the dispatch
// loop (control.go's step) never re-parses LEB128 or re-scans for matching
// `end`/`else` positions at run time — one instruction, one dispatch unit.
// compile runs exactly once per function, at interpreter construction.
type Instruction struct {
	Op opcode

	// Index covers local/global/function/type/table indices (LocalGet's
	// local index, Call's function index, GlobalSet's global index, ...).
	Index uint32
	// Index2 is CallIndirect's second index (its table index; Index holds
	// the type index).
	Index2 uint32

	// Align/Offset are a load/store's memarg. Align is carried through
	// even though it is only ever a hint, so a future alignment-trap mode
	// has the data available without recompiling.
	Align, Offset uint32

	I32     int32
	I64     int64
	F32Bits uint32
	F64Bits uint64

	BT blockType

	// ElsePC/EndPC/LoopStart are instruction-array indices, resolved once
	// at compile time instead of scanned for on every Block/Loop/If/Br.
	// ElsePC is 0 when an If has no else clause (instruction index 0 can
	// never itself be an Else/End target of a later block, since it is the
	// function's very first instruction).
	ElsePC, EndPC, LoopStart int

	// Targets is BrTable's depth list: Targets[i] for 0<=i<len(Targets)-1
	// are the indexed targets, Targets[len(Targets)-1] is the default.
	Targets []uint32

	// Sub is the LEB128 sub-opcode following a 0xfc (miscOp) or 0xfd (vecOp)
	// prefix byte. Index/Index2 carry that sub-opcode's own indices (e.g.
	// memory.init's dataidx/memidx, table.copy's dst/src tableidx) the same
	// way they do for single-byte opcodes.
	Sub uint32

	// V128 is v128.const's 16-byte little-endian immediate.
	V128 [16]byte
	// Lanes is i8x16.shuffle's 16-byte lane-index immediate.
	Lanes [16]byte
}

// compile decodes raw (a function body's instruction stream, as framed by
// the code section) into a flat Instruction slice, resolving block-type
// immediates against types. It assumes raw already passed the decoder's
// validation gate; a structural error here indicates a decoder or
// validator bug, not a malformed-input case the interpreter needs to
// recover from gracefully.
func compile(raw []byte, types []api.FuncType) ([]Instruction, error) {
	var out []Instruction
	var blockStack []int // indices into out of open Block/Loop/If instructions

	pc := 0
	for pc < len(raw) {
		op := opcode(raw[pc])
		pc++
		if !isKnownOpcode(op) {
			return nil, errUnsupportedOpcode(op)
		}
		instr := Instruction{Op: op}

		switch op {
		case opBlock, opLoop, opIf:
			bt, next, err := readBlockType(raw, pc)
			if err != nil {
				return nil, err
			}
			pc = next
			if bt.isIndex {
				if int(bt.index) >= len(types) {
					return nil, api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "block type index %d out of range", bt.index)
				}
				ft := types[bt.index]
				if len(ft.Params) != 0 {
					return nil, api.NewError(api.ErrorCategoryValidation, api.CodeTypeMismatch, "block signatures with parameters are not supported")
				}
				bt.arity = len(ft.Results)
			} else if bt.hasResult {
				bt.arity = 1
			}
			instr.BT = bt
			instr.LoopStart = len(out) + 1
			blockStack = append(blockStack, len(out))

		case opElse:
			if len(blockStack) > 0 {
				top := blockStack[len(blockStack)-1]
				out[top].ElsePC = len(out) + 1
			}

		case opEnd:
			if len(blockStack) > 0 {
				top := blockStack[len(blockStack)-1]
				blockStack = blockStack[:len(blockStack)-1]
				out[top].EndPC = len(out) + 1
			}

		case opBr, opBrIf:
			v, next, err := leb128.LoadUint32(raw[pc:])
			if err != nil {
				return nil, err
			}
			instr.Index = v
			pc += int(next)

		case opBrTable:
			n, next, err := leb128.LoadUint32(raw[pc:])
			if err != nil {
				return nil, err
			}
			pc += int(next)
			if uint64(n) > uint64(len(raw)-pc) {
				return nil, errUnexpectedEnd()
			}
			targets := make([]uint32, n+1)
			for i := range targets {
				var t uint32
				t, next, err = leb128.LoadUint32(raw[pc:])
				if err != nil {
					return nil, err
				}
				targets[i] = t
				pc += int(next)
			}
			instr.Targets = targets

		case opCall, opLocalGet, opLocalSet, opLocalTee, opGlobalGet, opGlobalSet:
			v, next, err := leb128.LoadUint32(raw[pc:])
			if err != nil {
				return nil, err
			}
			instr.Index = v
			pc += int(next)

		case opCallIndirect:
			typeIdx, next, err := leb128.LoadUint32(raw[pc:])
			if err != nil {
				return nil, err
			}
			pc += int(next)
			tableIdx, next, err := leb128.LoadUint32(raw[pc:])
			if err != nil {
				return nil, err
			}
			pc += int(next)
			instr.Index = typeIdx
			instr.Index2 = tableIdx

		case opMemorySize, opMemoryGrow:
			_, next, err := leb128.LoadUint32(raw[pc:]) // reserved byte, always 0x00
			if err != nil {
				return nil, err
			}
			pc += int(next)

		case opI32Load, opI64Load, opF32Load, opF64Load,
			opI32Load8S, opI32Load8U, opI32Load16S, opI32Load16U,
			opI64Load8S, opI64Load8U, opI64Load16S, opI64Load16U, opI64Load32S, opI64Load32U,
			opI32Store, opI64Store, opF32Store, opF64Store,
			opI32Store8, opI32Store16, opI64Store8, opI64Store16, opI64Store32:
			align, offset, next, err := memarg(raw, pc)
			if err != nil {
				return nil, err
			}
			instr.Align, instr.Offset = align, offset
			pc = next

		case opI32Const:
			v, next, err := leb128.LoadInt32(raw[pc:])
			if err != nil {
				return nil, err
			}
			instr.I32 = v
			pc += int(next)

		case opI64Const:
			v, next, err := leb128.LoadInt64(raw[pc:])
			if err != nil {
				return nil, err
			}
			instr.I64 = v
			pc += int(next)

		case opF32Const:
			bits, next := readF32Bits(raw, pc)
			instr.F32Bits = bits
			pc = next

		case opF64Const:
			bits, next := readF64Bits(raw, pc)
			instr.F64Bits = bits
			pc = next

		case opTableGet, opTableSet:
			v, next, err := leb128.LoadUint32(raw[pc:])
			if err != nil {
				return nil, err
			}
			instr.Index = v
			pc += int(next)

		case opRefNull:
			instr.Index = uint32(raw[pc]) // reftype byte: funcref (0x70) or externref (0x6f)
			pc++

		case opRefFunc:
			v, next, err := leb128.LoadUint32(raw[pc:])
			if err != nil {
				return nil, err
			}
			instr.Index = v
			pc += int(next)

		case opMiscPrefix:
			next, err := decodeMiscOp(raw, pc, &instr)
			if err != nil {
				return nil, err
			}
			pc = next

		case opVecPrefix:
			next, err := decodeVecOp(raw, pc, &instr)
			if err != nil {
				return nil, err
			}
			pc = next
		}

		out = append(out, instr)
	}
	if len(blockStack) > 0 {
		return nil, errUnexpectedEnd()
	}
	return out, nil
}
