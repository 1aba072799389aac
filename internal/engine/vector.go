package engine

import (
	"math"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/trap"
)

func (it *Interpreter) popV128() [16]byte {
	v, _ := it.operand.Pop()
	return v.V128()
}

func pushV128(it *Interpreter, b [16]byte) {
	it.operand.Push(api.ValueV128(b))
}

// Lane accessors, sharing memory.go's little-endian helpers so a V128's byte
// layout matches api.Value.V128 exactly.

func laneI8(v [16]byte, i int) int8 { return int8(v[i]) }
func laneI16(v [16]byte, i int) int16 {
	return int16(uint16(v[2*i]) | uint16(v[2*i+1])<<8)
}
func laneI32(v [16]byte, i int) int32 { return int32(le32(v[:], uint64(4*i))) }
func laneI64(v [16]byte, i int) int64 { return int64(le64(v[:], uint64(8*i))) }
func laneF32(v [16]byte, i int) float32 {
	return math.Float32frombits(le32(v[:], uint64(4*i)))
}
func laneF64(v [16]byte, i int) float64 {
	return math.Float64frombits(le64(v[:], uint64(8*i)))
}

func setLaneI8(v *[16]byte, i int, x int8)   { v[i] = byte(x) }
func setLaneI16(v *[16]byte, i int, x int16) { v[2*i] = byte(x); v[2*i+1] = byte(uint16(x) >> 8) }
func setLaneI32(v *[16]byte, i int, x int32) { putLE32(v[:], uint64(4*i), uint32(x)) }
func setLaneI64(v *[16]byte, i int, x int64) { putLE64(v[:], uint64(8*i), uint64(x)) }
func setLaneF32(v *[16]byte, i int, x float32) {
	putLE32(v[:], uint64(4*i), math.Float32bits(x))
}
func setLaneF64(v *[16]byte, i int, x float64) {
	putLE64(v[:], uint64(8*i), math.Float64bits(x))
}

func mapI8x16(a, b [16]byte, f func(x, y int8) int8) (out [16]byte) {
	for i := 0; i < 16; i++ {
		setLaneI8(&out, i, f(laneI8(a, i), laneI8(b, i)))
	}
	return out
}

func mapI8x16U(a [16]byte, f func(x int8) int8) (out [16]byte) {
	for i := 0; i < 16; i++ {
		setLaneI8(&out, i, f(laneI8(a, i)))
	}
	return out
}

func mapI16x8(a, b [16]byte, f func(x, y int16) int16) (out [16]byte) {
	for i := 0; i < 8; i++ {
		setLaneI16(&out, i, f(laneI16(a, i), laneI16(b, i)))
	}
	return out
}

func mapI16x8U(a [16]byte, f func(x int16) int16) (out [16]byte) {
	for i := 0; i < 8; i++ {
		setLaneI16(&out, i, f(laneI16(a, i)))
	}
	return out
}

func mapI32x4(a, b [16]byte, f func(x, y int32) int32) (out [16]byte) {
	for i := 0; i < 4; i++ {
		setLaneI32(&out, i, f(laneI32(a, i), laneI32(b, i)))
	}
	return out
}

func mapI32x4U(a [16]byte, f func(x int32) int32) (out [16]byte) {
	for i := 0; i < 4; i++ {
		setLaneI32(&out, i, f(laneI32(a, i)))
	}
	return out
}

func mapI64x2(a, b [16]byte, f func(x, y int64) int64) (out [16]byte) {
	for i := 0; i < 2; i++ {
		setLaneI64(&out, i, f(laneI64(a, i), laneI64(b, i)))
	}
	return out
}

func mapI64x2U(a [16]byte, f func(x int64) int64) (out [16]byte) {
	for i := 0; i < 2; i++ {
		setLaneI64(&out, i, f(laneI64(a, i)))
	}
	return out
}

func mapF32x4(a, b [16]byte, f func(x, y float32) float32) (out [16]byte) {
	for i := 0; i < 4; i++ {
		setLaneF32(&out, i, f(laneF32(a, i), laneF32(b, i)))
	}
	return out
}

func mapF32x4U(a [16]byte, f func(x float32) float32) (out [16]byte) {
	for i := 0; i < 4; i++ {
		setLaneF32(&out, i, f(laneF32(a, i)))
	}
	return out
}

func mapF64x2(a, b [16]byte, f func(x, y float64) float64) (out [16]byte) {
	for i := 0; i < 2; i++ {
		setLaneF64(&out, i, f(laneF64(a, i), laneF64(b, i)))
	}
	return out
}

func mapF64x2U(a [16]byte, f func(x float64) float64) (out [16]byte) {
	for i := 0; i < 2; i++ {
		setLaneF64(&out, i, f(laneF64(a, i)))
	}
	return out
}

func cmpMaskI8(ok bool) int8 {
	if ok {
		return -1
	}
	return 0
}
func cmpMaskI16(ok bool) int16 {
	if ok {
		return -1
	}
	return 0
}
func cmpMaskI32(ok bool) int32 {
	if ok {
		return -1
	}
	return 0
}
func cmpMaskI64(ok bool) int64 {
	if ok {
		return -1
	}
	return 0
}

// execVector handles the core half of the SIMD (v128) instruction set,
// dispatching on the sub-opcode compile already resolved into instr.Sub;
// its default case hands the rest to execVector2 (vector2.go). Unassigned
// sub-opcode bytes are rejected at compile time (vecop.go), so neither
// switch needs a trap case for an unknown value.
func (it *Interpreter) execVector(fr *Frame, instr Instruction, pc int) (*trap.Trap, error) {
	op := vecOp(instr.Sub)

	switch op {
	case vecV128Load:
		addr := uint32(it.popI32())
		ea := uint64(addr) + uint64(instr.Offset)
		mem := it.inst.Memory
		if ea+16 > uint64(len(mem.Bytes())) {
			return trap.New(trap.KindMemoryOutOfBounds, "v128.load out of bounds"), nil
		}
		var b [16]byte
		copy(b[:], mem.Bytes()[ea:ea+16])
		pushV128(it, b)

	case vecV128Store:
		v := it.popV128()
		addr := uint32(it.popI32())
		ea := uint64(addr) + uint64(instr.Offset)
		mem := it.inst.Memory
		if ea+16 > uint64(len(mem.Bytes())) {
			return trap.New(trap.KindMemoryOutOfBounds, "v128.store out of bounds"), nil
		}
		copy(mem.Bytes()[ea:ea+16], v[:])

	case vecV128Const:
		pushV128(it, instr.V128)

	case vecI8x16Shuffle:
		b := it.popV128()
		a := it.popV128()
		var out [16]byte
		combined := append(append([]byte{}, a[:]...), b[:]...)
		for i, l := range instr.Lanes {
			out[i] = combined[l%32]
		}
		pushV128(it, out)

	case vecI8x16Swizzle:
		idx := it.popV128()
		a := it.popV128()
		var out [16]byte
		for i := 0; i < 16; i++ {
			j := idx[i]
			if j < 16 {
				out[i] = a[j]
			}
		}
		pushV128(it, out)

	case vecI8x16Splat:
		x := byte(it.popI32())
		var out [16]byte
		for i := range out {
			out[i] = x
		}
		pushV128(it, out)
	case vecI16x8Splat:
		x := int16(it.popI32())
		var out [16]byte
		for i := 0; i < 8; i++ {
			setLaneI16(&out, i, x)
		}
		pushV128(it, out)
	case vecI32x4Splat:
		x := it.popI32()
		var out [16]byte
		for i := 0; i < 4; i++ {
			setLaneI32(&out, i, x)
		}
		pushV128(it, out)
	case vecI64x2Splat:
		x := it.popI64()
		var out [16]byte
		for i := 0; i < 2; i++ {
			setLaneI64(&out, i, x)
		}
		pushV128(it, out)
	case vecF32x4Splat:
		x := it.popF32()
		var out [16]byte
		for i := 0; i < 4; i++ {
			setLaneF32(&out, i, x)
		}
		pushV128(it, out)
	case vecF64x2Splat:
		x := it.popF64()
		var out [16]byte
		for i := 0; i < 2; i++ {
			setLaneF64(&out, i, x)
		}
		pushV128(it, out)

	case vecI8x16ExtractLaneS:
		v := it.popV128()
		it.operand.Push(api.ValueI32(int32(laneI8(v, int(instr.Index)))))
	case vecI8x16ExtractLaneU:
		v := it.popV128()
		it.operand.Push(api.ValueI32(int32(uint8(laneI8(v, int(instr.Index))))))
	case vecI8x16ReplaceLane:
		x := int8(it.popI32())
		v := it.popV128()
		setLaneI8(&v, int(instr.Index), x)
		pushV128(it, v)
	case vecI16x8ExtractLaneS:
		v := it.popV128()
		it.operand.Push(api.ValueI32(int32(laneI16(v, int(instr.Index)))))
	case vecI16x8ExtractLaneU:
		v := it.popV128()
		it.operand.Push(api.ValueI32(int32(uint16(laneI16(v, int(instr.Index))))))
	case vecI16x8ReplaceLane:
		x := int16(it.popI32())
		v := it.popV128()
		setLaneI16(&v, int(instr.Index), x)
		pushV128(it, v)
	case vecI32x4ExtractLane:
		v := it.popV128()
		it.operand.Push(api.ValueI32(laneI32(v, int(instr.Index))))
	case vecI32x4ReplaceLane:
		x := it.popI32()
		v := it.popV128()
		setLaneI32(&v, int(instr.Index), x)
		pushV128(it, v)
	case vecI64x2ExtractLane:
		v := it.popV128()
		it.operand.Push(api.ValueI64(laneI64(v, int(instr.Index))))
	case vecI64x2ReplaceLane:
		x := it.popI64()
		v := it.popV128()
		setLaneI64(&v, int(instr.Index), x)
		pushV128(it, v)
	case vecF32x4ExtractLane:
		v := it.popV128()
		it.operand.Push(api.ValueF32(laneF32(v, int(instr.Index))))
	case vecF32x4ReplaceLane:
		x := it.popF32()
		v := it.popV128()
		setLaneF32(&v, int(instr.Index), x)
		pushV128(it, v)
	case vecF64x2ExtractLane:
		v := it.popV128()
		it.operand.Push(api.ValueF64(laneF64(v, int(instr.Index))))
	case vecF64x2ReplaceLane:
		x := it.popF64()
		v := it.popV128()
		setLaneF64(&v, int(instr.Index), x)
		pushV128(it, v)

	case vecI8x16Eq, vecI8x16Ne, vecI8x16LtS, vecI8x16LtU, vecI8x16GtS, vecI8x16GtU, vecI8x16LeS, vecI8x16LeU, vecI8x16GeS, vecI8x16GeU:
		b := it.popV128()
		a := it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 { return i8x16CompareOp(op, x, y) }))

	case vecI16x8Eq, vecI16x8Ne, vecI16x8LtS, vecI16x8LtU, vecI16x8GtS, vecI16x8GtU, vecI16x8LeS, vecI16x8LeU, vecI16x8GeS, vecI16x8GeU:
		b := it.popV128()
		a := it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 { return i16x8CompareOp(op, x, y) }))

	case vecI32x4Eq, vecI32x4Ne, vecI32x4LtS, vecI32x4LtU, vecI32x4GtS, vecI32x4GtU, vecI32x4LeS, vecI32x4LeU, vecI32x4GeS, vecI32x4GeU:
		b := it.popV128()
		a := it.popV128()
		pushV128(it, mapI32x4(a, b, func(x, y int32) int32 { return i32x4CompareOp(op, x, y) }))

	case vecI64x2Eq, vecI64x2Ne, vecI64x2LtS, vecI64x2GtS, vecI64x2LeS, vecI64x2GeS:
		b := it.popV128()
		a := it.popV128()
		pushV128(it, mapI64x2(a, b, func(x, y int64) int64 { return i64x2CompareOp(op, x, y) }))

	case vecF32x4Eq, vecF32x4Ne, vecF32x4Lt, vecF32x4Gt, vecF32x4Le, vecF32x4Ge:
		b := it.popV128()
		a := it.popV128()
		var out [16]byte
		for i := 0; i < 4; i++ {
			setLaneI32(&out, i, int32(cmpMaskI32(f32x4CompareOp(op, laneF32(a, i), laneF32(b, i)))))
		}
		pushV128(it, out)

	case vecF64x2Eq, vecF64x2Ne, vecF64x2Lt, vecF64x2Gt, vecF64x2Le, vecF64x2Ge:
		b := it.popV128()
		a := it.popV128()
		var out [16]byte
		for i := 0; i < 2; i++ {
			setLaneI64(&out, i, int64(cmpMaskI64(f64x2CompareOp(op, laneF64(a, i), laneF64(b, i)))))
		}
		pushV128(it, out)

	case vecV128Not:
		a := it.popV128()
		var out [16]byte
		for i := range out {
			out[i] = ^a[i]
		}
		pushV128(it, out)
	case vecV128And:
		b, a := it.popV128(), it.popV128()
		var out [16]byte
		for i := range out {
			out[i] = a[i] & b[i]
		}
		pushV128(it, out)
	case vecV128AndNot:
		b, a := it.popV128(), it.popV128()
		var out [16]byte
		for i := range out {
			out[i] = a[i] &^ b[i]
		}
		pushV128(it, out)
	case vecV128Or:
		b, a := it.popV128(), it.popV128()
		var out [16]byte
		for i := range out {
			out[i] = a[i] | b[i]
		}
		pushV128(it, out)
	case vecV128Xor:
		b, a := it.popV128(), it.popV128()
		var out [16]byte
		for i := range out {
			out[i] = a[i] ^ b[i]
		}
		pushV128(it, out)
	case vecV128Bitselect:
		c, b, a := it.popV128(), it.popV128(), it.popV128()
		var out [16]byte
		for i := range out {
			out[i] = (a[i] & c[i]) | (b[i] &^ c[i])
		}
		pushV128(it, out)
	case vecV128AnyTrue:
		v := it.popV128()
		var any bool
		for _, x := range v {
			if x != 0 {
				any = true
				break
			}
		}
		it.operand.Push(api.ValueI32(b2i32(any)))

	case vecI8x16Abs:
		a := it.popV128()
		pushV128(it, mapI8x16U(a, func(x int8) int8 {
			if x < 0 {
				return -x
			}
			return x
		}))
	case vecI8x16Neg:
		a := it.popV128()
		pushV128(it, mapI8x16U(a, func(x int8) int8 { return -x }))
	case vecI8x16AllTrue:
		v := it.popV128()
		it.operand.Push(api.ValueI32(b2i32(allTrueI8(v))))
	case vecI8x16Bitmask:
		v := it.popV128()
		var m int32
		for i := 0; i < 16; i++ {
			if laneI8(v, i) < 0 {
				m |= 1 << i
			}
		}
		it.operand.Push(api.ValueI32(m))
	case vecI8x16Shl:
		shift := uint32(it.popI32()) & 7
		a := it.popV128()
		pushV128(it, mapI8x16U(a, func(x int8) int8 { return int8(uint8(x) << shift) }))
	case vecI8x16ShrS:
		shift := uint32(it.popI32()) & 7
		a := it.popV128()
		pushV128(it, mapI8x16U(a, func(x int8) int8 { return x >> shift }))
	case vecI8x16ShrU:
		shift := uint32(it.popI32()) & 7
		a := it.popV128()
		pushV128(it, mapI8x16U(a, func(x int8) int8 { return int8(uint8(x) >> shift) }))
	case vecI8x16Add:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 { return x + y }))
	case vecI8x16Sub:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 { return x - y }))
	case vecI8x16MinS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 {
			if x < y {
				return x
			}
			return y
		}))
	case vecI8x16MinU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 {
			if uint8(x) < uint8(y) {
				return x
			}
			return y
		}))
	case vecI8x16MaxS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 {
			if x > y {
				return x
			}
			return y
		}))
	case vecI8x16MaxU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 {
			if uint8(x) > uint8(y) {
				return x
			}
			return y
		}))

	case vecI16x8Abs:
		a := it.popV128()
		pushV128(it, mapI16x8U(a, func(x int16) int16 {
			if x < 0 {
				return -x
			}
			return x
		}))
	case vecI16x8Neg:
		a := it.popV128()
		pushV128(it, mapI16x8U(a, func(x int16) int16 { return -x }))
	case vecI16x8AllTrue:
		v := it.popV128()
		it.operand.Push(api.ValueI32(b2i32(allTrueI16(v))))
	case vecI16x8Bitmask:
		v := it.popV128()
		var m int32
		for i := 0; i < 8; i++ {
			if laneI16(v, i) < 0 {
				m |= 1 << i
			}
		}
		it.operand.Push(api.ValueI32(m))
	case vecI16x8Shl:
		shift := uint32(it.popI32()) & 15
		a := it.popV128()
		pushV128(it, mapI16x8U(a, func(x int16) int16 { return int16(uint16(x) << shift) }))
	case vecI16x8ShrS:
		shift := uint32(it.popI32()) & 15
		a := it.popV128()
		pushV128(it, mapI16x8U(a, func(x int16) int16 { return x >> shift }))
	case vecI16x8ShrU:
		shift := uint32(it.popI32()) & 15
		a := it.popV128()
		pushV128(it, mapI16x8U(a, func(x int16) int16 { return int16(uint16(x) >> shift) }))
	case vecI16x8Add:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 { return x + y }))
	case vecI16x8Sub:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 { return x - y }))
	case vecI16x8Mul:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 { return x * y }))
	case vecI16x8MinS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 {
			if x < y {
				return x
			}
			return y
		}))
	case vecI16x8MinU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 {
			if uint16(x) < uint16(y) {
				return x
			}
			return y
		}))
	case vecI16x8MaxS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 {
			if x > y {
				return x
			}
			return y
		}))
	case vecI16x8MaxU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 {
			if uint16(x) > uint16(y) {
				return x
			}
			return y
		}))

	case vecI32x4Abs:
		a := it.popV128()
		pushV128(it, mapI32x4U(a, func(x int32) int32 {
			if x < 0 {
				return -x
			}
			return x
		}))
	case vecI32x4Neg:
		a := it.popV128()
		pushV128(it, mapI32x4U(a, func(x int32) int32 { return -x }))
	case vecI32x4AllTrue:
		v := it.popV128()
		it.operand.Push(api.ValueI32(b2i32(allTrueI32(v))))
	case vecI32x4Bitmask:
		v := it.popV128()
		var m int32
		for i := 0; i < 4; i++ {
			if laneI32(v, i) < 0 {
				m |= 1 << i
			}
		}
		it.operand.Push(api.ValueI32(m))
	case vecI32x4Shl:
		shift := uint32(it.popI32()) & 31
		a := it.popV128()
		pushV128(it, mapI32x4U(a, func(x int32) int32 { return int32(uint32(x) << shift) }))
	case vecI32x4ShrS:
		shift := uint32(it.popI32()) & 31
		a := it.popV128()
		pushV128(it, mapI32x4U(a, func(x int32) int32 { return x >> shift }))
	case vecI32x4ShrU:
		shift := uint32(it.popI32()) & 31
		a := it.popV128()
		pushV128(it, mapI32x4U(a, func(x int32) int32 { return int32(uint32(x) >> shift) }))
	case vecI32x4Add:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI32x4(a, b, func(x, y int32) int32 { return x + y }))
	case vecI32x4Sub:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI32x4(a, b, func(x, y int32) int32 { return x - y }))
	case vecI32x4Mul:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI32x4(a, b, func(x, y int32) int32 { return x * y }))
	case vecI32x4MinS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI32x4(a, b, func(x, y int32) int32 {
			if x < y {
				return x
			}
			return y
		}))
	case vecI32x4MinU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI32x4(a, b, func(x, y int32) int32 {
			if uint32(x) < uint32(y) {
				return x
			}
			return y
		}))
	case vecI32x4MaxS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI32x4(a, b, func(x, y int32) int32 {
			if x > y {
				return x
			}
			return y
		}))
	case vecI32x4MaxU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI32x4(a, b, func(x, y int32) int32 {
			if uint32(x) > uint32(y) {
				return x
			}
			return y
		}))

	case vecI64x2Abs:
		a := it.popV128()
		pushV128(it, mapI64x2U(a, func(x int64) int64 {
			if x < 0 {
				return -x
			}
			return x
		}))
	case vecI64x2Neg:
		a := it.popV128()
		pushV128(it, mapI64x2U(a, func(x int64) int64 { return -x }))
	case vecI64x2AllTrue:
		v := it.popV128()
		it.operand.Push(api.ValueI32(b2i32(allTrueI64(v))))
	case vecI64x2Bitmask:
		v := it.popV128()
		var m int32
		for i := 0; i < 2; i++ {
			if laneI64(v, i) < 0 {
				m |= 1 << i
			}
		}
		it.operand.Push(api.ValueI32(m))
	case vecI64x2Shl:
		shift := uint64(it.popI32()) & 63
		a := it.popV128()
		pushV128(it, mapI64x2U(a, func(x int64) int64 { return int64(uint64(x) << shift) }))
	case vecI64x2ShrS:
		shift := uint64(it.popI32()) & 63
		a := it.popV128()
		pushV128(it, mapI64x2U(a, func(x int64) int64 { return x >> shift }))
	case vecI64x2ShrU:
		shift := uint64(it.popI32()) & 63
		a := it.popV128()
		pushV128(it, mapI64x2U(a, func(x int64) int64 { return int64(uint64(x) >> shift) }))
	case vecI64x2Add:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI64x2(a, b, func(x, y int64) int64 { return x + y }))
	case vecI64x2Sub:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI64x2(a, b, func(x, y int64) int64 { return x - y }))
	case vecI64x2Mul:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI64x2(a, b, func(x, y int64) int64 { return x * y }))

	case vecF32x4Abs:
		a := it.popV128()
		pushV128(it, mapF32x4U(a, func(x float32) float32 { return float32(math.Abs(float64(x))) }))
	case vecF32x4Neg:
		a := it.popV128()
		pushV128(it, mapF32x4U(a, func(x float32) float32 { return -x }))
	case vecF32x4Sqrt:
		a := it.popV128()
		pushV128(it, mapF32x4U(a, func(x float32) float32 { return float32(math.Sqrt(float64(x))) }))
	case vecF32x4Add:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF32x4(a, b, func(x, y float32) float32 { return x + y }))
	case vecF32x4Sub:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF32x4(a, b, func(x, y float32) float32 { return x - y }))
	case vecF32x4Mul:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF32x4(a, b, func(x, y float32) float32 { return x * y }))
	case vecF32x4Div:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF32x4(a, b, func(x, y float32) float32 { return x / y }))
	case vecF32x4Min:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF32x4(a, b, func(x, y float32) float32 { return float32(math.Min(float64(x), float64(y))) }))
	case vecF32x4Max:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF32x4(a, b, func(x, y float32) float32 { return float32(math.Max(float64(x), float64(y))) }))

	case vecF64x2Abs:
		a := it.popV128()
		pushV128(it, mapF64x2U(a, math.Abs))
	case vecF64x2Neg:
		a := it.popV128()
		pushV128(it, mapF64x2U(a, func(x float64) float64 { return -x }))
	case vecF64x2Sqrt:
		a := it.popV128()
		pushV128(it, mapF64x2U(a, math.Sqrt))
	case vecF64x2Add:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF64x2(a, b, func(x, y float64) float64 { return x + y }))
	case vecF64x2Sub:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF64x2(a, b, func(x, y float64) float64 { return x - y }))
	case vecF64x2Mul:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF64x2(a, b, func(x, y float64) float64 { return x * y }))
	case vecF64x2Div:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF64x2(a, b, func(x, y float64) float64 { return x / y }))
	case vecF64x2Min:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF64x2(a, b, math.Min))
	case vecF64x2Max:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF64x2(a, b, math.Max))

	case vecI32x4TruncSatF32x4S:
		a := it.popV128()
		pushV128(it, mapI32x4FromF32(a, truncSatI32S))
	case vecI32x4TruncSatF32x4U:
		a := it.popV128()
		pushV128(it, mapI32x4FromF32(a, truncSatI32U))
	case vecF32x4ConvertI32x4S:
		a := it.popV128()
		pushV128(it, mapF32x4FromI32(a, func(x int32) float32 { return float32(x) }))
	case vecF32x4ConvertI32x4U:
		a := it.popV128()
		pushV128(it, mapF32x4FromI32(a, func(x int32) float32 { return float32(uint32(x)) }))

	default:
		// The remaining assigned sub-opcodes (loads with extension/splat/
		// lane access, narrowing/widening, saturating and extended
		// arithmetic, float rounding, f64x2<->f32x4 conversions) live in
		// vector2.go.
		return it.execVector2(fr, instr, pc)
	}

	fr.PC = pc
	return nil, nil
}

func i8x16CompareOp(op vecOp, a, b int8) int8 {
	switch op {
	case vecI8x16Eq:
		return cmpMaskI8(a == b)
	case vecI8x16Ne:
		return cmpMaskI8(a != b)
	case vecI8x16LtS:
		return cmpMaskI8(a < b)
	case vecI8x16LtU:
		return cmpMaskI8(uint8(a) < uint8(b))
	case vecI8x16GtS:
		return cmpMaskI8(a > b)
	case vecI8x16GtU:
		return cmpMaskI8(uint8(a) > uint8(b))
	case vecI8x16LeS:
		return cmpMaskI8(a <= b)
	case vecI8x16LeU:
		return cmpMaskI8(uint8(a) <= uint8(b))
	case vecI8x16GeS:
		return cmpMaskI8(a >= b)
	case vecI8x16GeU:
		return cmpMaskI8(uint8(a) >= uint8(b))
	default:
		return 0
	}
}

func i16x8CompareOp(op vecOp, a, b int16) int16 {
	switch op {
	case vecI16x8Eq:
		return cmpMaskI16(a == b)
	case vecI16x8Ne:
		return cmpMaskI16(a != b)
	case vecI16x8LtS:
		return cmpMaskI16(a < b)
	case vecI16x8LtU:
		return cmpMaskI16(uint16(a) < uint16(b))
	case vecI16x8GtS:
		return cmpMaskI16(a > b)
	case vecI16x8GtU:
		return cmpMaskI16(uint16(a) > uint16(b))
	case vecI16x8LeS:
		return cmpMaskI16(a <= b)
	case vecI16x8LeU:
		return cmpMaskI16(uint16(a) <= uint16(b))
	case vecI16x8GeS:
		return cmpMaskI16(a >= b)
	case vecI16x8GeU:
		return cmpMaskI16(uint16(a) >= uint16(b))
	default:
		return 0
	}
}

func i32x4CompareOp(op vecOp, a, b int32) int32 {
	switch op {
	case vecI32x4Eq:
		return cmpMaskI32(a == b)
	case vecI32x4Ne:
		return cmpMaskI32(a != b)
	case vecI32x4LtS:
		return cmpMaskI32(a < b)
	case vecI32x4LtU:
		return cmpMaskI32(uint32(a) < uint32(b))
	case vecI32x4GtS:
		return cmpMaskI32(a > b)
	case vecI32x4GtU:
		return cmpMaskI32(uint32(a) > uint32(b))
	case vecI32x4LeS:
		return cmpMaskI32(a <= b)
	case vecI32x4LeU:
		return cmpMaskI32(uint32(a) <= uint32(b))
	case vecI32x4GeS:
		return cmpMaskI32(a >= b)
	case vecI32x4GeU:
		return cmpMaskI32(uint32(a) >= uint32(b))
	default:
		return 0
	}
}

func i64x2CompareOp(op vecOp, a, b int64) int64 {
	switch op {
	case vecI64x2Eq:
		return int64(cmpMaskI64(a == b))
	case vecI64x2Ne:
		return int64(cmpMaskI64(a != b))
	case vecI64x2LtS:
		return int64(cmpMaskI64(a < b))
	case vecI64x2GtS:
		return int64(cmpMaskI64(a > b))
	case vecI64x2LeS:
		return int64(cmpMaskI64(a <= b))
	case vecI64x2GeS:
		return int64(cmpMaskI64(a >= b))
	default:
		return 0
	}
}

func f32x4CompareOp(op vecOp, a, b float32) bool {
	switch op {
	case vecF32x4Eq:
		return a == b
	case vecF32x4Ne:
		return a != b
	case vecF32x4Lt:
		return a < b
	case vecF32x4Gt:
		return a > b
	case vecF32x4Le:
		return a <= b
	case vecF32x4Ge:
		return a >= b
	default:
		return false
	}
}

func f64x2CompareOp(op vecOp, a, b float64) bool {
	switch op {
	case vecF64x2Eq:
		return a == b
	case vecF64x2Ne:
		return a != b
	case vecF64x2Lt:
		return a < b
	case vecF64x2Gt:
		return a > b
	case vecF64x2Le:
		return a <= b
	case vecF64x2Ge:
		return a >= b
	default:
		return false
	}
}

func allTrueI8(v [16]byte) bool {
	for i := 0; i < 16; i++ {
		if laneI8(v, i) == 0 {
			return false
		}
	}
	return true
}
func allTrueI16(v [16]byte) bool {
	for i := 0; i < 8; i++ {
		if laneI16(v, i) == 0 {
			return false
		}
	}
	return true
}
func allTrueI32(v [16]byte) bool {
	for i := 0; i < 4; i++ {
		if laneI32(v, i) == 0 {
			return false
		}
	}
	return true
}
func allTrueI64(v [16]byte) bool {
	for i := 0; i < 2; i++ {
		if laneI64(v, i) == 0 {
			return false
		}
	}
	return true
}

func truncSatI32S(f float32) int32 {
	if math.IsNaN(float64(f)) {
		return 0
	}
	if f < -2147483648.0 {
		return math.MinInt32
	}
	if f >= 2147483648.0 {
		return math.MaxInt32
	}
	return int32(f)
}

func truncSatI32U(f float32) int32 {
	if math.IsNaN(float64(f)) || f < 0 {
		return 0
	}
	if f >= 4294967296.0 {
		var max uint32 = math.MaxUint32
		return int32(max)
	}
	return int32(uint32(f))
}

func mapI32x4FromF32(a [16]byte, f func(float32) int32) (out [16]byte) {
	for i := 0; i < 4; i++ {
		setLaneI32(&out, i, f(laneF32(a, i)))
	}
	return out
}

func mapF32x4FromI32(a [16]byte, f func(int32) float32) (out [16]byte) {
	for i := 0; i < 4; i++ {
		setLaneF32(&out, i, f(laneI32(a, i)))
	}
	return out
}
