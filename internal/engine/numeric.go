package engine

import (
	"math"
	"math/bits"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/trap"
)

func b2i32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// execNumeric handles every numeric/comparison/conversion opcode: pop
// operands, compute, push the result. Integer division and remainder and
// the non-saturating float-to-int truncations (execTrunc) are the only
// numeric instructions that can trap.
func (it *Interpreter) execNumeric(fr *Frame, op opcode, pc int) (*trap.Trap, error) {
	switch op {
	// i32 comparisons / unary
	case opI32Eqz:
		a := it.popI32()
		it.operand.Push(api.ValueI32(b2i32(a == 0)))
	case opI32Eq, opI32Ne, opI32LtS, opI32LtU, opI32GtS, opI32GtU, opI32LeS, opI32LeU, opI32GeS, opI32GeU:
		b := it.popI32()
		a := it.popI32()
		it.operand.Push(api.ValueI32(i32Compare(op, a, b)))
	case opI32Clz:
		a := uint32(it.popI32())
		it.operand.Push(api.ValueI32(int32(bits.LeadingZeros32(a))))
	case opI32Ctz:
		a := uint32(it.popI32())
		it.operand.Push(api.ValueI32(int32(bits.TrailingZeros32(a))))
	case opI32Popcnt:
		a := uint32(it.popI32())
		it.operand.Push(api.ValueI32(int32(bits.OnesCount32(a))))
	case opI32Add, opI32Sub, opI32Mul, opI32And, opI32Or, opI32Xor, opI32Shl, opI32ShrS, opI32ShrU, opI32Rotl, opI32Rotr:
		b := it.popI32()
		a := it.popI32()
		it.operand.Push(api.ValueI32(i32BinOp(op, a, b)))
	case opI32DivS:
		b := it.popI32()
		a := it.popI32()
		if b == 0 {
			return trap.New(trap.KindIntegerDivideByZero, "i32.div_s by zero"), nil
		}
		if a == math.MinInt32 && b == -1 {
			return trap.New(trap.KindIntegerOverflow, "i32.div_s overflow"), nil
		}
		it.operand.Push(api.ValueI32(a / b))
	case opI32DivU:
		b := uint32(it.popI32())
		a := uint32(it.popI32())
		if b == 0 {
			return trap.New(trap.KindIntegerDivideByZero, "i32.div_u by zero"), nil
		}
		it.operand.Push(api.ValueI32(int32(a / b)))
	case opI32RemS:
		b := it.popI32()
		a := it.popI32()
		if b == 0 {
			return trap.New(trap.KindIntegerDivideByZero, "i32.rem_s by zero"), nil
		}
		if b == -1 {
			it.operand.Push(api.ValueI32(0))
		} else {
			it.operand.Push(api.ValueI32(a % b))
		}
	case opI32RemU:
		b := uint32(it.popI32())
		a := uint32(it.popI32())
		if b == 0 {
			return trap.New(trap.KindIntegerDivideByZero, "i32.rem_u by zero"), nil
		}
		it.operand.Push(api.ValueI32(int32(a % b)))

	// i64
	case opI64Eqz:
		a := it.popI64()
		it.operand.Push(api.ValueI32(b2i32(a == 0)))
	case opI64Eq, opI64Ne, opI64LtS, opI64LtU, opI64GtS, opI64GtU, opI64LeS, opI64LeU, opI64GeS, opI64GeU:
		b := it.popI64()
		a := it.popI64()
		it.operand.Push(api.ValueI32(i64Compare(op, a, b)))
	case opI64Clz:
		a := uint64(it.popI64())
		it.operand.Push(api.ValueI64(int64(bits.LeadingZeros64(a))))
	case opI64Ctz:
		a := uint64(it.popI64())
		it.operand.Push(api.ValueI64(int64(bits.TrailingZeros64(a))))
	case opI64Popcnt:
		a := uint64(it.popI64())
		it.operand.Push(api.ValueI64(int64(bits.OnesCount64(a))))
	case opI64Add, opI64Sub, opI64Mul, opI64And, opI64Or, opI64Xor, opI64Shl, opI64ShrS, opI64ShrU, opI64Rotl, opI64Rotr:
		b := it.popI64()
		a := it.popI64()
		it.operand.Push(api.ValueI64(i64BinOp(op, a, b)))
	case opI64DivS:
		b := it.popI64()
		a := it.popI64()
		if b == 0 {
			return trap.New(trap.KindIntegerDivideByZero, "i64.div_s by zero"), nil
		}
		if a == math.MinInt64 && b == -1 {
			return trap.New(trap.KindIntegerOverflow, "i64.div_s overflow"), nil
		}
		it.operand.Push(api.ValueI64(a / b))
	case opI64DivU:
		b := uint64(it.popI64())
		a := uint64(it.popI64())
		if b == 0 {
			return trap.New(trap.KindIntegerDivideByZero, "i64.div_u by zero"), nil
		}
		it.operand.Push(api.ValueI64(int64(a / b)))
	case opI64RemS:
		b := it.popI64()
		a := it.popI64()
		if b == 0 {
			return trap.New(trap.KindIntegerDivideByZero, "i64.rem_s by zero"), nil
		}
		if b == -1 {
			it.operand.Push(api.ValueI64(0))
		} else {
			it.operand.Push(api.ValueI64(a % b))
		}
	case opI64RemU:
		b := uint64(it.popI64())
		a := uint64(it.popI64())
		if b == 0 {
			return trap.New(trap.KindIntegerDivideByZero, "i64.rem_u by zero"), nil
		}
		it.operand.Push(api.ValueI64(int64(a % b)))

	// f32
	case opF32Eq, opF32Ne, opF32Lt, opF32Gt, opF32Le, opF32Ge:
		b := it.popF32()
		a := it.popF32()
		it.operand.Push(api.ValueI32(f32Compare(op, a, b)))
	case opF32Abs:
		it.operand.Push(api.ValueF32(float32(math.Abs(float64(it.popF32())))))
	case opF32Neg:
		it.operand.Push(api.ValueF32(-it.popF32()))
	case opF32Ceil:
		it.operand.Push(api.ValueF32(float32(math.Ceil(float64(it.popF32())))))
	case opF32Floor:
		it.operand.Push(api.ValueF32(float32(math.Floor(float64(it.popF32())))))
	case opF32Trunc:
		it.operand.Push(api.ValueF32(float32(math.Trunc(float64(it.popF32())))))
	case opF32Nearest:
		it.operand.Push(api.ValueF32(float32(math.RoundToEven(float64(it.popF32())))))
	case opF32Sqrt:
		it.operand.Push(api.ValueF32(float32(math.Sqrt(float64(it.popF32())))))
	case opF32Add:
		b := it.popF32()
		a := it.popF32()
		it.operand.Push(api.ValueF32(a + b))
	case opF32Sub:
		b := it.popF32()
		a := it.popF32()
		it.operand.Push(api.ValueF32(a - b))
	case opF32Mul:
		b := it.popF32()
		a := it.popF32()
		it.operand.Push(api.ValueF32(a * b))
	case opF32Div:
		b := it.popF32()
		a := it.popF32()
		it.operand.Push(api.ValueF32(a / b))
	case opF32Min:
		b := it.popF32()
		a := it.popF32()
		it.operand.Push(api.ValueF32(float32(math.Min(float64(a), float64(b)))))
	case opF32Max:
		b := it.popF32()
		a := it.popF32()
		it.operand.Push(api.ValueF32(float32(math.Max(float64(a), float64(b)))))
	case opF32Copysign:
		b := it.popF32()
		a := it.popF32()
		it.operand.Push(api.ValueF32(float32(math.Copysign(float64(a), float64(b)))))

	// f64
	case opF64Eq, opF64Ne, opF64Lt, opF64Gt, opF64Le, opF64Ge:
		b := it.popF64()
		a := it.popF64()
		it.operand.Push(api.ValueI32(f64Compare(op, a, b)))
	case opF64Abs:
		it.operand.Push(api.ValueF64(math.Abs(it.popF64())))
	case opF64Neg:
		it.operand.Push(api.ValueF64(-it.popF64()))
	case opF64Ceil:
		it.operand.Push(api.ValueF64(math.Ceil(it.popF64())))
	case opF64Floor:
		it.operand.Push(api.ValueF64(math.Floor(it.popF64())))
	case opF64Trunc:
		it.operand.Push(api.ValueF64(math.Trunc(it.popF64())))
	case opF64Nearest:
		it.operand.Push(api.ValueF64(math.RoundToEven(it.popF64())))
	case opF64Sqrt:
		it.operand.Push(api.ValueF64(math.Sqrt(it.popF64())))
	case opF64Add:
		b := it.popF64()
		a := it.popF64()
		it.operand.Push(api.ValueF64(a + b))
	case opF64Sub:
		b := it.popF64()
		a := it.popF64()
		it.operand.Push(api.ValueF64(a - b))
	case opF64Mul:
		b := it.popF64()
		a := it.popF64()
		it.operand.Push(api.ValueF64(a * b))
	case opF64Div:
		b := it.popF64()
		a := it.popF64()
		it.operand.Push(api.ValueF64(a / b))
	case opF64Min:
		b := it.popF64()
		a := it.popF64()
		it.operand.Push(api.ValueF64(math.Min(a, b)))
	case opF64Max:
		b := it.popF64()
		a := it.popF64()
		it.operand.Push(api.ValueF64(math.Max(a, b)))
	case opF64Copysign:
		b := it.popF64()
		a := it.popF64()
		it.operand.Push(api.ValueF64(math.Copysign(a, b)))

	// conversions
	case opI32WrapI64:
		it.operand.Push(api.ValueI32(int32(it.popI64())))
	case opI64ExtendI32S:
		it.operand.Push(api.ValueI64(int64(it.popI32())))
	case opI64ExtendI32U:
		it.operand.Push(api.ValueI64(int64(uint32(it.popI32()))))
	case opI32Extend8S:
		it.operand.Push(api.ValueI32(int32(int8(it.popI32()))))
	case opI32Extend16S:
		it.operand.Push(api.ValueI32(int32(int16(it.popI32()))))
	case opI64Extend8S:
		it.operand.Push(api.ValueI64(int64(int8(it.popI64()))))
	case opI64Extend16S:
		it.operand.Push(api.ValueI64(int64(int16(it.popI64()))))
	case opI64Extend32S:
		it.operand.Push(api.ValueI64(int64(int32(it.popI64()))))
	case opF32DemoteF64:
		it.operand.Push(api.ValueF32(float32(it.popF64())))
	case opF64PromoteF32:
		it.operand.Push(api.ValueF64(float64(it.popF32())))
	case opF32ConvertI32S:
		it.operand.Push(api.ValueF32(float32(it.popI32())))
	case opF32ConvertI32U:
		it.operand.Push(api.ValueF32(float32(uint32(it.popI32()))))
	case opF32ConvertI64S:
		it.operand.Push(api.ValueF32(float32(it.popI64())))
	case opF32ConvertI64U:
		it.operand.Push(api.ValueF32(float32(uint64(it.popI64()))))
	case opF64ConvertI32S:
		it.operand.Push(api.ValueF64(float64(it.popI32())))
	case opF64ConvertI32U:
		it.operand.Push(api.ValueF64(float64(uint32(it.popI32()))))
	case opF64ConvertI64S:
		it.operand.Push(api.ValueF64(float64(it.popI64())))
	case opF64ConvertI64U:
		it.operand.Push(api.ValueF64(float64(uint64(it.popI64()))))
	case opI32ReinterpretF32:
		it.operand.Push(api.ValueI32(int32(math.Float32bits(it.popF32()))))
	case opI64ReinterpretF64:
		it.operand.Push(api.ValueI64(int64(math.Float64bits(it.popF64()))))
	case opF32ReinterpretI32:
		it.operand.Push(api.ValueF32(math.Float32frombits(uint32(it.popI32()))))
	case opF64ReinterpretI64:
		it.operand.Push(api.ValueF64(math.Float64frombits(uint64(it.popI64()))))

	case opI32TruncF32S, opI32TruncF32U, opI32TruncF64S, opI32TruncF64U,
		opI64TruncF32S, opI64TruncF32U, opI64TruncF64S, opI64TruncF64U:
		t, err := it.execTrunc(op)
		if t == nil && err == nil {
			fr.PC = pc
		}
		return t, err

	default:
		return nil, errUnsupportedOpcode(op)
	}
	fr.PC = pc
	return nil, nil
}

func (it *Interpreter) popI64() int64 {
	v, _ := it.operand.Pop()
	return v.I64()
}

func (it *Interpreter) popF32() float32 {
	v, _ := it.operand.Pop()
	return v.F32()
}

func (it *Interpreter) popF64() float64 {
	v, _ := it.operand.Pop()
	return v.F64()
}

func i32BinOp(op opcode, a, b int32) int32 {
	ua, ub := uint32(a), uint32(b)
	switch op {
	case opI32Add:
		return int32(ua + ub)
	case opI32Sub:
		return int32(ua - ub)
	case opI32Mul:
		return int32(ua * ub)
	case opI32And:
		return a & b
	case opI32Or:
		return a | b
	case opI32Xor:
		return a ^ b
	case opI32Shl:
		return int32(ua << (ub & 31))
	case opI32ShrS:
		return a >> (ub & 31)
	case opI32ShrU:
		return int32(ua >> (ub & 31))
	case opI32Rotl:
		return int32(bits.RotateLeft32(ua, int(ub&31)))
	case opI32Rotr:
		return int32(bits.RotateLeft32(ua, -int(ub&31)))
	default:
		return 0
	}
}

func i64BinOp(op opcode, a, b int64) int64 {
	ua, ub := uint64(a), uint64(b)
	switch op {
	case opI64Add:
		return int64(ua + ub)
	case opI64Sub:
		return int64(ua - ub)
	case opI64Mul:
		return int64(ua * ub)
	case opI64And:
		return a & b
	case opI64Or:
		return a | b
	case opI64Xor:
		return a ^ b
	case opI64Shl:
		return int64(ua << (ub & 63))
	case opI64ShrS:
		return a >> (ub & 63)
	case opI64ShrU:
		return int64(ua >> (ub & 63))
	case opI64Rotl:
		return int64(bits.RotateLeft64(ua, int(ub&63)))
	case opI64Rotr:
		return int64(bits.RotateLeft64(ua, -int(ub&63)))
	default:
		return 0
	}
}

func i32Compare(op opcode, a, b int32) int32 {
	ua, ub := uint32(a), uint32(b)
	switch op {
	case opI32Eq:
		return b2i32(a == b)
	case opI32Ne:
		return b2i32(a != b)
	case opI32LtS:
		return b2i32(a < b)
	case opI32LtU:
		return b2i32(ua < ub)
	case opI32GtS:
		return b2i32(a > b)
	case opI32GtU:
		return b2i32(ua > ub)
	case opI32LeS:
		return b2i32(a <= b)
	case opI32LeU:
		return b2i32(ua <= ub)
	case opI32GeS:
		return b2i32(a >= b)
	case opI32GeU:
		return b2i32(ua >= ub)
	default:
		return 0
	}
}

func i64Compare(op opcode, a, b int64) int32 {
	ua, ub := uint64(a), uint64(b)
	switch op {
	case opI64Eq:
		return b2i32(a == b)
	case opI64Ne:
		return b2i32(a != b)
	case opI64LtS:
		return b2i32(a < b)
	case opI64LtU:
		return b2i32(ua < ub)
	case opI64GtS:
		return b2i32(a > b)
	case opI64GtU:
		return b2i32(ua > ub)
	case opI64LeS:
		return b2i32(a <= b)
	case opI64LeU:
		return b2i32(ua <= ub)
	case opI64GeS:
		return b2i32(a >= b)
	case opI64GeU:
		return b2i32(ua >= ub)
	default:
		return 0
	}
}

func f32Compare(op opcode, a, b float32) int32 {
	switch op {
	case opF32Eq:
		return b2i32(a == b)
	case opF32Ne:
		return b2i32(a != b)
	case opF32Lt:
		return b2i32(a < b)
	case opF32Gt:
		return b2i32(a > b)
	case opF32Le:
		return b2i32(a <= b)
	case opF32Ge:
		return b2i32(a >= b)
	default:
		return 0
	}
}

func f64Compare(op opcode, a, b float64) int32 {
	switch op {
	case opF64Eq:
		return b2i32(a == b)
	case opF64Ne:
		return b2i32(a != b)
	case opF64Lt:
		return b2i32(a < b)
	case opF64Gt:
		return b2i32(a > b)
	case opF64Le:
		return b2i32(a <= b)
	case opF64Ge:
		return b2i32(a >= b)
	default:
		return 0
	}
}

// execTrunc implements the trapping (non-saturating) float-to-int
// conversions: out-of-range or NaN operands trap rather than wrapping,
// as the WebAssembly trunc instructions require (trunc_sat is a distinct,
// separately-prefixed opcode family not wired in here).
func (it *Interpreter) execTrunc(op opcode) (*trap.Trap, error) {
	switch op {
	case opI32TruncF32S:
		f := it.popF32()
		if math.IsNaN(float64(f)) || f < -2147483648.0 || f >= 2147483648.0 {
			return trap.New(trap.KindInvalidConversionToInteger, "i32.trunc_f32_s out of range"), nil
		}
		it.operand.Push(api.ValueI32(int32(f)))
	case opI32TruncF32U:
		f := it.popF32()
		if math.IsNaN(float64(f)) || f <= -1 || f >= 4294967296.0 {
			return trap.New(trap.KindInvalidConversionToInteger, "i32.trunc_f32_u out of range"), nil
		}
		it.operand.Push(api.ValueI32(int32(uint32(f))))
	case opI32TruncF64S:
		f := it.popF64()
		if math.IsNaN(f) || f <= -2147483649.0 || f >= 2147483648.0 {
			return trap.New(trap.KindInvalidConversionToInteger, "i32.trunc_f64_s out of range"), nil
		}
		it.operand.Push(api.ValueI32(int32(f)))
	case opI32TruncF64U:
		f := it.popF64()
		if math.IsNaN(f) || f <= -1 || f >= 4294967296.0 {
			return trap.New(trap.KindInvalidConversionToInteger, "i32.trunc_f64_u out of range"), nil
		}
		it.operand.Push(api.ValueI32(int32(uint32(f))))
	case opI64TruncF32S:
		f := it.popF32()
		if math.IsNaN(float64(f)) || f < -9223372036854775808.0 || f >= 9223372036854775808.0 {
			return trap.New(trap.KindInvalidConversionToInteger, "i64.trunc_f32_s out of range"), nil
		}
		it.operand.Push(api.ValueI64(int64(f)))
	case opI64TruncF32U:
		f := it.popF32()
		if math.IsNaN(float64(f)) || f <= -1 || f >= 18446744073709551616.0 {
			return trap.New(trap.KindInvalidConversionToInteger, "i64.trunc_f32_u out of range"), nil
		}
		it.operand.Push(api.ValueI64(int64(uint64(f))))
	case opI64TruncF64S:
		f := it.popF64()
		if math.IsNaN(f) || f < -9223372036854775808.0 || f >= 9223372036854775808.0 {
			return trap.New(trap.KindInvalidConversionToInteger, "i64.trunc_f64_s out of range"), nil
		}
		it.operand.Push(api.ValueI64(int64(f)))
	case opI64TruncF64U:
		f := it.popF64()
		if math.IsNaN(f) || f <= -1 || f >= 18446744073709551616.0 {
			return trap.New(trap.KindInvalidConversionToInteger, "i64.trunc_f64_u out of range"), nil
		}
		it.operand.Push(api.ValueI64(int64(uint64(f))))
	}
	return nil, nil
}
