package engine

import (
	"math"
	"math/bits"

	"github.com/avrabe/wrt/internal/trap"
)

// execVector2 handles the SIMD sub-opcodes execVector's switch does not:
// memory loads with extension/splat/zero-fill/lane access, narrowing and
// widening, saturating and extended arithmetic, float rounding, and the
// f64x2<->f32x4 conversions. Split from execVector only to keep either
// switch within reason — both are one dispatch unit per instruction.
func (it *Interpreter) execVector2(fr *Frame, instr Instruction, pc int) (*trap.Trap, error) {
	op := vecOp(instr.Sub)

	switch op {
	case vecV128Load8x8S, vecV128Load8x8U, vecV128Load16x4S, vecV128Load16x4U,
		vecV128Load32x2S, vecV128Load32x2U:
		b, tr := it.vecLoadBytes(instr, 8)
		if tr != nil {
			return tr, nil
		}
		pushV128(it, extendLoad(op, b))

	case vecV128Load8Splat, vecV128Load16Splat, vecV128Load32Splat, vecV128Load64Splat:
		width := uint64(1) << (op - vecV128Load8Splat)
		b, tr := it.vecLoadBytes(instr, width)
		if tr != nil {
			return tr, nil
		}
		var out [16]byte
		for i := uint64(0); i < 16; i++ {
			out[i] = b[i%width]
		}
		pushV128(it, out)

	case vecV128Load32Zero, vecV128Load64Zero:
		width := uint64(4)
		if op == vecV128Load64Zero {
			width = 8
		}
		b, tr := it.vecLoadBytes(instr, width)
		if tr != nil {
			return tr, nil
		}
		var out [16]byte
		copy(out[:width], b)
		pushV128(it, out)

	case vecV128Load8Lane, vecV128Load16Lane, vecV128Load32Lane, vecV128Load64Lane:
		width := uint64(1) << (op - vecV128Load8Lane)
		v := it.popV128()
		b, tr := it.vecLoadBytes(instr, width)
		if tr != nil {
			return tr, nil
		}
		copy(v[width*uint64(instr.Index):], b)
		pushV128(it, v)

	case vecV128Store8Lane, vecV128Store16Lane, vecV128Store32Lane, vecV128Store64Lane:
		width := uint64(1) << (op - vecV128Store8Lane)
		v := it.popV128()
		addr := uint32(it.popI32())
		ea := uint64(addr) + uint64(instr.Offset)
		mem := it.inst.Memory
		if ea+width > uint64(len(mem.Bytes())) {
			return trap.New(trap.KindMemoryOutOfBounds, "v128 store lane out of bounds"), nil
		}
		copy(mem.Bytes()[ea:ea+width], v[width*uint64(instr.Index):])

	case vecF32x4DemoteF64x2Zero:
		a := it.popV128()
		var out [16]byte
		setLaneF32(&out, 0, float32(laneF64(a, 0)))
		setLaneF32(&out, 1, float32(laneF64(a, 1)))
		pushV128(it, out)

	case vecF64x2PromoteLowF32x4:
		a := it.popV128()
		var out [16]byte
		setLaneF64(&out, 0, float64(laneF32(a, 0)))
		setLaneF64(&out, 1, float64(laneF32(a, 1)))
		pushV128(it, out)

	case vecI8x16Popcnt:
		a := it.popV128()
		pushV128(it, mapI8x16U(a, func(x int8) int8 { return int8(bits.OnesCount8(uint8(x))) }))

	case vecI8x16NarrowI16x8S:
		b, a := it.popV128(), it.popV128()
		var out [16]byte
		for i := 0; i < 8; i++ {
			setLaneI8(&out, i, satI8(int32(laneI16(a, i))))
			setLaneI8(&out, i+8, satI8(int32(laneI16(b, i))))
		}
		pushV128(it, out)
	case vecI8x16NarrowI16x8U:
		b, a := it.popV128(), it.popV128()
		var out [16]byte
		for i := 0; i < 8; i++ {
			setLaneI8(&out, i, int8(satU8(int32(laneI16(a, i)))))
			setLaneI8(&out, i+8, int8(satU8(int32(laneI16(b, i)))))
		}
		pushV128(it, out)

	case vecI16x8NarrowI32x4S:
		b, a := it.popV128(), it.popV128()
		var out [16]byte
		for i := 0; i < 4; i++ {
			setLaneI16(&out, i, satI16(int64(laneI32(a, i))))
			setLaneI16(&out, i+4, satI16(int64(laneI32(b, i))))
		}
		pushV128(it, out)
	case vecI16x8NarrowI32x4U:
		b, a := it.popV128(), it.popV128()
		var out [16]byte
		for i := 0; i < 4; i++ {
			setLaneI16(&out, i, int16(satU16(int64(laneI32(a, i)))))
			setLaneI16(&out, i+4, int16(satU16(int64(laneI32(b, i)))))
		}
		pushV128(it, out)

	case vecF32x4Ceil:
		a := it.popV128()
		pushV128(it, mapF32x4U(a, func(x float32) float32 { return float32(math.Ceil(float64(x))) }))
	case vecF32x4Floor:
		a := it.popV128()
		pushV128(it, mapF32x4U(a, func(x float32) float32 { return float32(math.Floor(float64(x))) }))
	case vecF32x4Trunc:
		a := it.popV128()
		pushV128(it, mapF32x4U(a, func(x float32) float32 { return float32(math.Trunc(float64(x))) }))
	case vecF32x4Nearest:
		a := it.popV128()
		pushV128(it, mapF32x4U(a, func(x float32) float32 { return float32(math.RoundToEven(float64(x))) }))

	case vecF64x2Ceil:
		a := it.popV128()
		pushV128(it, mapF64x2U(a, math.Ceil))
	case vecF64x2Floor:
		a := it.popV128()
		pushV128(it, mapF64x2U(a, math.Floor))
	case vecF64x2Trunc:
		a := it.popV128()
		pushV128(it, mapF64x2U(a, math.Trunc))
	case vecF64x2Nearest:
		a := it.popV128()
		pushV128(it, mapF64x2U(a, math.RoundToEven))

	case vecI8x16AddSatS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 { return satI8(int32(x) + int32(y)) }))
	case vecI8x16AddSatU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 { return int8(satU8(int32(uint8(x)) + int32(uint8(y)))) }))
	case vecI8x16SubSatS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 { return satI8(int32(x) - int32(y)) }))
	case vecI8x16SubSatU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 { return int8(satU8(int32(uint8(x)) - int32(uint8(y)))) }))

	case vecI16x8AddSatS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 { return satI16(int64(x) + int64(y)) }))
	case vecI16x8AddSatU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 { return int16(satU16(int64(uint16(x)) + int64(uint16(y)))) }))
	case vecI16x8SubSatS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 { return satI16(int64(x) - int64(y)) }))
	case vecI16x8SubSatU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 { return int16(satU16(int64(uint16(x)) - int64(uint16(y)))) }))

	case vecI8x16AvgrU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI8x16(a, b, func(x, y int8) int8 {
			return int8((uint16(uint8(x)) + uint16(uint8(y)) + 1) / 2)
		}))
	case vecI16x8AvgrU:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 {
			return int16((uint32(uint16(x)) + uint32(uint16(y)) + 1) / 2)
		}))

	case vecI16x8Q15MulrSatS:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapI16x8(a, b, func(x, y int16) int16 {
			return satI16((int64(x)*int64(y) + 0x4000) >> 15)
		}))

	case vecI16x8ExtaddPairwiseI8x16S:
		a := it.popV128()
		var out [16]byte
		for i := 0; i < 8; i++ {
			setLaneI16(&out, i, int16(laneI8(a, 2*i))+int16(laneI8(a, 2*i+1)))
		}
		pushV128(it, out)
	case vecI16x8ExtaddPairwiseI8x16U:
		a := it.popV128()
		var out [16]byte
		for i := 0; i < 8; i++ {
			setLaneI16(&out, i, int16(uint16(uint8(laneI8(a, 2*i)))+uint16(uint8(laneI8(a, 2*i+1)))))
		}
		pushV128(it, out)
	case vecI32x4ExtaddPairwiseI16x8S:
		a := it.popV128()
		var out [16]byte
		for i := 0; i < 4; i++ {
			setLaneI32(&out, i, int32(laneI16(a, 2*i))+int32(laneI16(a, 2*i+1)))
		}
		pushV128(it, out)
	case vecI32x4ExtaddPairwiseI16x8U:
		a := it.popV128()
		var out [16]byte
		for i := 0; i < 4; i++ {
			setLaneI32(&out, i, int32(uint32(uint16(laneI16(a, 2*i)))+uint32(uint16(laneI16(a, 2*i+1)))))
		}
		pushV128(it, out)

	case vecI16x8ExtendLowI8x16S, vecI16x8ExtendHighI8x16S, vecI16x8ExtendLowI8x16U, vecI16x8ExtendHighI8x16U:
		a := it.popV128()
		base := 0
		if op == vecI16x8ExtendHighI8x16S || op == vecI16x8ExtendHighI8x16U {
			base = 8
		}
		signed := op == vecI16x8ExtendLowI8x16S || op == vecI16x8ExtendHighI8x16S
		var out [16]byte
		for i := 0; i < 8; i++ {
			x := laneI8(a, base+i)
			if signed {
				setLaneI16(&out, i, int16(x))
			} else {
				setLaneI16(&out, i, int16(uint16(uint8(x))))
			}
		}
		pushV128(it, out)

	case vecI32x4ExtendLowI16x8S, vecI32x4ExtendHighI16x8S, vecI32x4ExtendLowI16x8U, vecI32x4ExtendHighI16x8U:
		a := it.popV128()
		base := 0
		if op == vecI32x4ExtendHighI16x8S || op == vecI32x4ExtendHighI16x8U {
			base = 4
		}
		signed := op == vecI32x4ExtendLowI16x8S || op == vecI32x4ExtendHighI16x8S
		var out [16]byte
		for i := 0; i < 4; i++ {
			x := laneI16(a, base+i)
			if signed {
				setLaneI32(&out, i, int32(x))
			} else {
				setLaneI32(&out, i, int32(uint32(uint16(x))))
			}
		}
		pushV128(it, out)

	case vecI64x2ExtendLowI32x4S, vecI64x2ExtendHighI32x4S, vecI64x2ExtendLowI32x4U, vecI64x2ExtendHighI32x4U:
		a := it.popV128()
		base := 0
		if op == vecI64x2ExtendHighI32x4S || op == vecI64x2ExtendHighI32x4U {
			base = 2
		}
		signed := op == vecI64x2ExtendLowI32x4S || op == vecI64x2ExtendHighI32x4S
		var out [16]byte
		for i := 0; i < 2; i++ {
			x := laneI32(a, base+i)
			if signed {
				setLaneI64(&out, i, int64(x))
			} else {
				setLaneI64(&out, i, int64(uint64(uint32(x))))
			}
		}
		pushV128(it, out)

	case vecI16x8ExtmulLowI8x16S, vecI16x8ExtmulHighI8x16S, vecI16x8ExtmulLowI8x16U, vecI16x8ExtmulHighI8x16U:
		b, a := it.popV128(), it.popV128()
		base := 0
		if op == vecI16x8ExtmulHighI8x16S || op == vecI16x8ExtmulHighI8x16U {
			base = 8
		}
		signed := op == vecI16x8ExtmulLowI8x16S || op == vecI16x8ExtmulHighI8x16S
		var out [16]byte
		for i := 0; i < 8; i++ {
			if signed {
				setLaneI16(&out, i, int16(laneI8(a, base+i))*int16(laneI8(b, base+i)))
			} else {
				setLaneI16(&out, i, int16(uint16(uint8(laneI8(a, base+i)))*uint16(uint8(laneI8(b, base+i)))))
			}
		}
		pushV128(it, out)

	case vecI32x4ExtmulLowI16x8S, vecI32x4ExtmulHighI16x8S, vecI32x4ExtmulLowI16x8U, vecI32x4ExtmulHighI16x8U:
		b, a := it.popV128(), it.popV128()
		base := 0
		if op == vecI32x4ExtmulHighI16x8S || op == vecI32x4ExtmulHighI16x8U {
			base = 4
		}
		signed := op == vecI32x4ExtmulLowI16x8S || op == vecI32x4ExtmulHighI16x8S
		var out [16]byte
		for i := 0; i < 4; i++ {
			if signed {
				setLaneI32(&out, i, int32(laneI16(a, base+i))*int32(laneI16(b, base+i)))
			} else {
				setLaneI32(&out, i, int32(uint32(uint16(laneI16(a, base+i)))*uint32(uint16(laneI16(b, base+i)))))
			}
		}
		pushV128(it, out)

	case vecI64x2ExtmulLowI32x4S, vecI64x2ExtmulHighI32x4S, vecI64x2ExtmulLowI32x4U, vecI64x2ExtmulHighI32x4U:
		b, a := it.popV128(), it.popV128()
		base := 0
		if op == vecI64x2ExtmulHighI32x4S || op == vecI64x2ExtmulHighI32x4U {
			base = 2
		}
		signed := op == vecI64x2ExtmulLowI32x4S || op == vecI64x2ExtmulHighI32x4S
		var out [16]byte
		for i := 0; i < 2; i++ {
			if signed {
				setLaneI64(&out, i, int64(laneI32(a, base+i))*int64(laneI32(b, base+i)))
			} else {
				setLaneI64(&out, i, int64(uint64(uint32(laneI32(a, base+i)))*uint64(uint32(laneI32(b, base+i)))))
			}
		}
		pushV128(it, out)

	case vecI32x4DotI16x8S:
		b, a := it.popV128(), it.popV128()
		var out [16]byte
		for i := 0; i < 4; i++ {
			lo := int32(laneI16(a, 2*i)) * int32(laneI16(b, 2*i))
			hi := int32(laneI16(a, 2*i+1)) * int32(laneI16(b, 2*i+1))
			setLaneI32(&out, i, lo+hi)
		}
		pushV128(it, out)

	case vecF32x4Pmin:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF32x4(a, b, func(x, y float32) float32 {
			if y < x {
				return y
			}
			return x
		}))
	case vecF32x4Pmax:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF32x4(a, b, func(x, y float32) float32 {
			if x < y {
				return y
			}
			return x
		}))
	case vecF64x2Pmin:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF64x2(a, b, func(x, y float64) float64 {
			if y < x {
				return y
			}
			return x
		}))
	case vecF64x2Pmax:
		b, a := it.popV128(), it.popV128()
		pushV128(it, mapF64x2(a, b, func(x, y float64) float64 {
			if x < y {
				return y
			}
			return x
		}))

	case vecI32x4TruncSatF64x2SZero, vecI32x4TruncSatF64x2UZero:
		a := it.popV128()
		var out [16]byte
		for i := 0; i < 2; i++ {
			if op == vecI32x4TruncSatF64x2SZero {
				setLaneI32(&out, i, truncSatI32SF64(laneF64(a, i)))
			} else {
				setLaneI32(&out, i, truncSatI32UF64(laneF64(a, i)))
			}
		}
		pushV128(it, out)

	case vecF64x2ConvertLowI32x4S:
		a := it.popV128()
		var out [16]byte
		setLaneF64(&out, 0, float64(laneI32(a, 0)))
		setLaneF64(&out, 1, float64(laneI32(a, 1)))
		pushV128(it, out)
	case vecF64x2ConvertLowI32x4U:
		a := it.popV128()
		var out [16]byte
		setLaneF64(&out, 0, float64(uint32(laneI32(a, 0))))
		setLaneF64(&out, 1, float64(uint32(laneI32(a, 1))))
		pushV128(it, out)
	}

	fr.PC = pc
	return nil, nil
}

// vecLoadBytes pops the base address, applies instr's offset, and returns a
// view of width bytes of linear memory, or a trap if the access straddles
// the current memory size.
func (it *Interpreter) vecLoadBytes(instr Instruction, width uint64) ([]byte, *trap.Trap) {
	addr := uint32(it.popI32())
	ea := uint64(addr) + uint64(instr.Offset)
	mem := it.inst.Memory
	if ea+width > uint64(len(mem.Bytes())) {
		return nil, trap.New(trap.KindMemoryOutOfBounds, "v128 load out of bounds")
	}
	return mem.Bytes()[ea : ea+width], nil
}

// extendLoad widens the 8 loaded bytes of a v128.loadNxM_s/u into full
// lanes.
func extendLoad(op vecOp, b []byte) (out [16]byte) {
	switch op {
	case vecV128Load8x8S:
		for i := 0; i < 8; i++ {
			setLaneI16(&out, i, int16(int8(b[i])))
		}
	case vecV128Load8x8U:
		for i := 0; i < 8; i++ {
			setLaneI16(&out, i, int16(uint16(b[i])))
		}
	case vecV128Load16x4S:
		for i := 0; i < 4; i++ {
			setLaneI32(&out, i, int32(int16(uint16(b[2*i])|uint16(b[2*i+1])<<8)))
		}
	case vecV128Load16x4U:
		for i := 0; i < 4; i++ {
			setLaneI32(&out, i, int32(uint32(uint16(b[2*i])|uint16(b[2*i+1])<<8)))
		}
	case vecV128Load32x2S:
		for i := 0; i < 2; i++ {
			setLaneI64(&out, i, int64(int32(le32(b, uint64(4*i)))))
		}
	case vecV128Load32x2U:
		for i := 0; i < 2; i++ {
			setLaneI64(&out, i, int64(uint64(le32(b, uint64(4*i)))))
		}
	}
	return out
}

// Lane-width saturation helpers shared by the narrowing, saturating
// arithmetic, and q15mulr instructions.

func satI8(x int32) int8 {
	if x < math.MinInt8 {
		return math.MinInt8
	}
	if x > math.MaxInt8 {
		return math.MaxInt8
	}
	return int8(x)
}

func satU8(x int32) uint8 {
	if x < 0 {
		return 0
	}
	if x > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(x)
}

func satI16(x int64) int16 {
	if x < math.MinInt16 {
		return math.MinInt16
	}
	if x > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(x)
}

func satU16(x int64) uint16 {
	if x < 0 {
		return 0
	}
	if x > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(x)
}

func truncSatI32SF64(f float64) int32 {
	if math.IsNaN(f) {
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

func truncSatI32UF64(f float64) int32 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f >= 4294967296.0 {
		var max uint32 = math.MaxUint32
		return int32(max)
	}
	return int32(uint32(f))
}
