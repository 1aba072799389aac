package engine

import (
	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/leb128"
)

// readBlockType reads a block/loop/if immediate starting at pc, returning
// the decoded blockType and the pc just past it. Used only by compile
// (compile.go) at function-compile time, never by the dispatch loop.
func readBlockType(body []byte, pc int) (blockType, int, error) {
	b := body[pc]
	switch b {
	case 0x40: // empty
		return blockType{}, pc + 1, nil
	case byte(api.ValueTypeI32), byte(api.ValueTypeI64), byte(api.ValueTypeF32), byte(api.ValueTypeF64), byte(api.ValueTypeV128), byte(api.ValueTypeFuncref), byte(api.ValueTypeExternref):
		return blockType{hasResult: true}, pc + 1, nil
	default:
		// type-section index, encoded as a signed LEB128 per the multi-value
		// proposal; value is always non-negative in valid modules.
		v, n, err := leb128.LoadInt64(body[pc:])
		if err != nil {
			return blockType{}, 0, err
		}
		return blockType{isIndex: true, index: uint32(v)}, pc + int(n), nil
	}
}

func readF32Bits(body []byte, pc int) (uint32, int) {
	b := body[pc : pc+4]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, pc + 4
}

func readF64Bits(body []byte, pc int) (uint64, int) {
	b := body[pc : pc+8]
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, pc + 8
}

// memarg reads the (align, offset) pair common to every load/store. Used
// only by compile at function-compile time.
func memarg(body []byte, pc int) (align, offset uint32, next int, err error) {
	align, n, err := leb128.LoadUint32(body[pc:])
	if err != nil {
		return
	}
	pc += int(n)
	offset, n, err = leb128.LoadUint32(body[pc:])
	return align, offset, pc + int(n), err
}
