// Package api contains the types shared between the embedder-facing Runtime
// API and every internal package. Nothing here allocates on the hot path.
package api

import (
	"fmt"
	"math"
)

// ValueType is the binary encoding of a WebAssembly value's static type.
//
// See https://webassembly.github.io/spec/core/binary/types.html#binary-valtype
type ValueType byte

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
	// ValueTypeI16x8 is reserved and not produced by the decoder.
	ValueTypeI16x8 ValueType = 0x6e
)

// String returns the WebAssembly text format name of t, or "unknown".
func (t ValueType) String() string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	case ValueTypeI16x8:
		return "i16x8"
	default:
		return fmt.Sprintf("unknown(%#x)", byte(t))
	}
}

// Size returns the number of 64-bit stack slots t occupies. V128 is the only
// value that spans two slots; every other value is Copy-semantic and fits in
// one uint64.
func (t ValueType) Size() int {
	if t == ValueTypeV128 {
		return 2
	}
	return 1
}

// Value is the interpreter's uniform operand, holding exactly one of the MVP
// variants. It is Copy-semantic: no field owns heap memory, so assigning or
// passing a Value never allocates.
//
// Equality is bitwise for integer and reference lanes. For floats, Go's own
// NaN-is-never-equal-to-anything semantics already match the WebAssembly
// spec; a separate bit-pattern comparison is only needed when a deterministic
// hash is required (see Value.Bits).
type Value struct {
	Type ValueType
	// lo holds I32/I64/F32/F64 as their bit pattern, FuncRef/ExternRef as the
	// 0-based index plus one (0 means the null reference), and the low 64
	// bits of a V128.
	lo uint64
	// hi holds the high 64 bits of a V128 and is otherwise unused.
	hi uint64
}

// ValueFromRaw reconstructs a Value from its type tag and raw lo/hi words, the
// same triple Bits/BitsHi/Type expose. Used by the checkpoint codec to
// round-trip operand-stack and local values without a per-type switch.
func ValueFromRaw(t ValueType, lo, hi uint64) Value {
	return Value{Type: t, lo: lo, hi: hi}
}

// ValueI32 constructs an I32 value.
func ValueI32(v int32) Value { return Value{Type: ValueTypeI32, lo: uint64(uint32(v))} }

// ValueI64 constructs an I64 value.
func ValueI64(v int64) Value { return Value{Type: ValueTypeI64, lo: uint64(v)} }

// ValueF32 constructs an F32 value.
func ValueF32(v float32) Value { return Value{Type: ValueTypeF32, lo: uint64(math.Float32bits(v))} }

// ValueF64 constructs an F64 value.
func ValueF64(v float64) Value { return Value{Type: ValueTypeF64, lo: math.Float64bits(v)} }

// ValueV128 constructs a V128 value from its 16 little-endian bytes.
func ValueV128(b [16]byte) Value {
	return Value{
		Type: ValueTypeV128,
		lo:   uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 | uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56,
		hi:   uint64(b[8]) | uint64(b[9])<<8 | uint64(b[10])<<16 | uint64(b[11])<<24 | uint64(b[12])<<32 | uint64(b[13])<<40 | uint64(b[14])<<48 | uint64(b[15])<<56,
	}
}

// ValueFuncRef constructs a funcref. idx < 0 means the null reference.
func ValueFuncRef(idx int32) Value {
	if idx < 0 {
		return Value{Type: ValueTypeFuncref}
	}
	return Value{Type: ValueTypeFuncref, lo: uint64(idx) + 1}
}

// ValueExternRef constructs an externref. idx < 0 means the null reference.
func ValueExternRef(idx int32) Value {
	if idx < 0 {
		return Value{Type: ValueTypeExternref}
	}
	return Value{Type: ValueTypeExternref, lo: uint64(idx) + 1}
}

func (v Value) I32() int32     { return int32(uint32(v.lo)) }
func (v Value) I64() int64     { return int64(v.lo) }
func (v Value) F32() float32   { return math.Float32frombits(uint32(v.lo)) }
func (v Value) F64() float64   { return math.Float64frombits(v.lo) }
func (v Value) Bits() uint64   { return v.lo }
func (v Value) BitsHi() uint64 { return v.hi }

// V128 returns the 16 little-endian bytes of a V128 value.
func (v Value) V128() [16]byte {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v.lo >> (8 * i))
		b[8+i] = byte(v.hi >> (8 * i))
	}
	return b
}

// IsNullRef reports whether v is a null FuncRef or ExternRef.
func (v Value) IsNullRef() bool {
	return (v.Type == ValueTypeFuncref || v.Type == ValueTypeExternref) && v.lo == 0
}

// RefIndex returns the referenced index and true, or (0, false) if v is null.
func (v Value) RefIndex() (int32, bool) {
	if v.lo == 0 {
		return 0, false
	}
	return int32(v.lo - 1), true
}

// String renders v for diagnostics and trap messages.
func (v Value) String() string {
	switch v.Type {
	case ValueTypeI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case ValueTypeI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case ValueTypeF32:
		return fmt.Sprintf("f32:%g", v.F32())
	case ValueTypeF64:
		return fmt.Sprintf("f64:%g", v.F64())
	case ValueTypeV128:
		return fmt.Sprintf("v128:%x", v.V128())
	case ValueTypeFuncref:
		if v.IsNullRef() {
			return "funcref:null"
		}
		idx, _ := v.RefIndex()
		return fmt.Sprintf("funcref:%d", idx)
	case ValueTypeExternref:
		if v.IsNullRef() {
			return "externref:null"
		}
		idx, _ := v.RefIndex()
		return fmt.Sprintf("externref:%d", idx)
	default:
		return "invalid"
	}
}

// MaxParams and MaxResults cap a FuncType's signature.
const (
	MaxParams  = 128
	MaxResults = 128
)

// FuncType is a function signature. Params/Results never exceed MaxParams /
// MaxResults; the decoder rejects anything larger before a FuncType is built.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

func (t *FuncType) String() string {
	return fmt.Sprintf("(%v) -> (%v)", t.Params, t.Results)
}

// Equals reports whether t and o describe the same signature.
func (t *FuncType) Equals(o *FuncType) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i, p := range t.Params {
		if o.Params[i] != p {
			return false
		}
	}
	for i, r := range t.Results {
		if o.Results[i] != r {
			return false
		}
	}
	return true
}
