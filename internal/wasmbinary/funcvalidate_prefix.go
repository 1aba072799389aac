package wasmbinary

import (
	"github.com/avrabe/wrt/api"
)

var tV128 = api.ValueTypeV128

// stepMisc types a 0xfc-prefixed instruction: saturating truncation,
// bulk-memory, and table operations.
func (v *funcValidator) stepMisc() error {
	sub, err := v.d.readU32()
	if err != nil {
		return err
	}
	switch sub {
	case 0, 1: // i32.trunc_sat_f32
		if err := v.popExpect(tF32); err != nil {
			return err
		}
		v.pushVal(tI32)
	case 2, 3: // i32.trunc_sat_f64
		if err := v.popExpect(tF64); err != nil {
			return err
		}
		v.pushVal(tI32)
	case 4, 5: // i64.trunc_sat_f32
		if err := v.popExpect(tF32); err != nil {
			return err
		}
		v.pushVal(tI64)
	case 6, 7: // i64.trunc_sat_f64
		if err := v.popExpect(tF64); err != nil {
			return err
		}
		v.pushVal(tI64)

	case 8: // memory.init
		dataIdx, err := v.d.readU32()
		if err != nil {
			return err
		}
		if _, err := v.d.readU32(); err != nil { // reserved memidx
			return err
		}
		if dataIdx >= v.dataCount {
			return v.errf(api.CodeIndexOutOfRange, "memory.init references out-of-range data segment %d", dataIdx)
		}
		if err := v.requireMemory(); err != nil {
			return err
		}
		return v.popExpects([]api.ValueType{tI32, tI32, tI32})

	case 9: // data.drop
		dataIdx, err := v.d.readU32()
		if err != nil {
			return err
		}
		if dataIdx >= v.dataCount {
			return v.errf(api.CodeIndexOutOfRange, "data.drop references out-of-range data segment %d", dataIdx)
		}

	case 10: // memory.copy
		if _, err := v.d.readU32(); err != nil {
			return err
		}
		if _, err := v.d.readU32(); err != nil {
			return err
		}
		if err := v.requireMemory(); err != nil {
			return err
		}
		return v.popExpects([]api.ValueType{tI32, tI32, tI32})

	case 11: // memory.fill
		if _, err := v.d.readU32(); err != nil {
			return err
		}
		if err := v.requireMemory(); err != nil {
			return err
		}
		return v.popExpects([]api.ValueType{tI32, tI32, tI32})

	case 12: // table.init
		elemIdx, err := v.d.readU32()
		if err != nil {
			return err
		}
		tbl, err := v.readTableType()
		if err != nil {
			return err
		}
		if elemIdx >= v.elemCount {
			return v.errf(api.CodeIndexOutOfRange, "table.init references out-of-range element segment %d", elemIdx)
		}
		if v.m.ElementSection[elemIdx].RefType != tbl.RefType {
			return v.errf(api.CodeTypeMismatch, "table.init element type does not match table")
		}
		return v.popExpects([]api.ValueType{tI32, tI32, tI32})

	case 13: // elem.drop
		elemIdx, err := v.d.readU32()
		if err != nil {
			return err
		}
		if elemIdx >= v.elemCount {
			return v.errf(api.CodeIndexOutOfRange, "elem.drop references out-of-range element segment %d", elemIdx)
		}

	case 14: // table.copy
		dst, err := v.readTableType()
		if err != nil {
			return err
		}
		src, err := v.readTableType()
		if err != nil {
			return err
		}
		if dst.RefType != src.RefType {
			return v.errf(api.CodeTypeMismatch, "table.copy between tables of different element types")
		}
		return v.popExpects([]api.ValueType{tI32, tI32, tI32})

	case 15: // table.grow
		tbl, err := v.readTableType()
		if err != nil {
			return err
		}
		if err := v.popExpect(tI32); err != nil {
			return err
		}
		if err := v.popExpect(tbl.RefType); err != nil {
			return err
		}
		v.pushVal(tI32)

	case 16: // table.size
		if _, err := v.readTableType(); err != nil {
			return err
		}
		v.pushVal(tI32)

	case 17: // table.fill
		tbl, err := v.readTableType()
		if err != nil {
			return err
		}
		if err := v.popExpect(tI32); err != nil {
			return err
		}
		if err := v.popExpect(tbl.RefType); err != nil {
			return err
		}
		return v.popExpect(tI32)

	default:
		return v.errf(api.CodeUnreachable, "unsupported 0xfc sub-opcode %d", sub)
	}
	return nil
}

// stepVec types a 0xfd-prefixed SIMD instruction. The typing shapes mirror
// the engine's dispatch (internal/engine vector.go / vector2.go): accepting
// a sub-opcode here guarantees the engine compiles and executes it.
func (v *funcValidator) stepVec() error {
	sub, err := v.d.readU32()
	if err != nil {
		return err
	}
	switch sub {
	case 154, 162, 165, 166, 175, 176, 178, 179, 180, 187,
		194, 197, 198, 207, 208, 210, 211, 212, 226, 238:
		return v.errf(api.CodeUnreachable, "unsupported 0xfd sub-opcode %d", sub)
	}
	if sub > 255 {
		return v.errf(api.CodeUnreachable, "unsupported 0xfd sub-opcode %d", sub)
	}

	switch {
	case sub <= 10 || sub == 92 || sub == 93: // loads
		if err := v.memargAndMemory(); err != nil {
			return err
		}
		if err := v.popExpect(tI32); err != nil {
			return err
		}
		v.pushVal(tV128)
		return nil

	case sub == 11: // v128.store
		if err := v.memargAndMemory(); err != nil {
			return err
		}
		if err := v.popExpect(tV128); err != nil {
			return err
		}
		return v.popExpect(tI32)

	case sub == 12: // v128.const
		if _, err := v.d.readBytes(16); err != nil {
			return err
		}
		v.pushVal(tV128)
		return nil

	case sub == 13: // i8x16.shuffle
		lanes, err := v.d.readBytes(16)
		if err != nil {
			return err
		}
		for _, l := range lanes {
			if l >= 32 {
				return v.errf(api.CodeIndexOutOfRange, "shuffle lane index %d out of range", l)
			}
		}
		return v.vecBinary()

	case sub == 14: // i8x16.swizzle
		return v.vecBinary()

	case sub >= 15 && sub <= 20: // splats
		var from api.ValueType
		switch sub {
		case 15, 16, 17:
			from = tI32
		case 18:
			from = tI64
		case 19:
			from = tF32
		default:
			from = tF64
		}
		if err := v.popExpect(from); err != nil {
			return err
		}
		v.pushVal(tV128)
		return nil

	case sub >= 21 && sub <= 34: // extract/replace lane
		return v.stepVecLaneAccess(sub)

	case sub >= 84 && sub <= 87: // load lane
		if err := v.memargAndMemory(); err != nil {
			return err
		}
		if err := v.readLaneIndex(16 >> (sub - 84)); err != nil {
			return err
		}
		if err := v.popExpect(tV128); err != nil {
			return err
		}
		if err := v.popExpect(tI32); err != nil {
			return err
		}
		v.pushVal(tV128)
		return nil

	case sub >= 88 && sub <= 91: // store lane
		if err := v.memargAndMemory(); err != nil {
			return err
		}
		if err := v.readLaneIndex(16 >> (sub - 88)); err != nil {
			return err
		}
		if err := v.popExpect(tV128); err != nil {
			return err
		}
		return v.popExpect(tI32)

	case sub == 82: // bitselect
		if err := v.popExpect(tV128); err != nil {
			return err
		}
		return v.vecBinary()

	case sub == 83, sub == 99, sub == 100, sub == 131, sub == 132,
		sub == 163, sub == 164, sub == 195, sub == 196: // any_true/all_true/bitmask
		if err := v.popExpect(tV128); err != nil {
			return err
		}
		v.pushVal(tI32)
		return nil

	case sub == 107 || sub == 108 || sub == 109 ||
		sub == 139 || sub == 140 || sub == 141 ||
		sub == 171 || sub == 172 || sub == 173 ||
		sub == 203 || sub == 204 || sub == 205: // shifts
		if err := v.popExpect(tI32); err != nil {
			return err
		}
		if err := v.popExpect(tV128); err != nil {
			return err
		}
		v.pushVal(tV128)
		return nil
	}

	if vecIsUnary(sub) {
		if err := v.popExpect(tV128); err != nil {
			return err
		}
		v.pushVal(tV128)
		return nil
	}
	return v.vecBinary()
}

func (v *funcValidator) vecBinary() error {
	if err := v.popExpect(tV128); err != nil {
		return err
	}
	if err := v.popExpect(tV128); err != nil {
		return err
	}
	v.pushVal(tV128)
	return nil
}

func (v *funcValidator) readLaneIndex(laneCount uint32) error {
	b, err := v.d.readByte()
	if err != nil {
		return err
	}
	if uint32(b) >= laneCount {
		return v.errf(api.CodeIndexOutOfRange, "lane index %d out of range for %d lanes", b, laneCount)
	}
	return nil
}

// stepVecLaneAccess types extract_lane/replace_lane (sub-opcodes 21-34).
func (v *funcValidator) stepVecLaneAccess(sub uint32) error {
	var scalar api.ValueType
	var lanes uint32
	var replace bool
	switch sub {
	case 21, 22:
		scalar, lanes = tI32, 16
	case 23:
		scalar, lanes, replace = tI32, 16, true
	case 24, 25:
		scalar, lanes = tI32, 8
	case 26:
		scalar, lanes, replace = tI32, 8, true
	case 27:
		scalar, lanes = tI32, 4
	case 28:
		scalar, lanes, replace = tI32, 4, true
	case 29:
		scalar, lanes = tI64, 2
	case 30:
		scalar, lanes, replace = tI64, 2, true
	case 31:
		scalar, lanes = tF32, 4
	case 32:
		scalar, lanes, replace = tF32, 4, true
	case 33:
		scalar, lanes = tF64, 2
	default: // 34
		scalar, lanes, replace = tF64, 2, true
	}
	if err := v.readLaneIndex(lanes); err != nil {
		return err
	}
	if replace {
		if err := v.popExpect(scalar); err != nil {
			return err
		}
		if err := v.popExpect(tV128); err != nil {
			return err
		}
		v.pushVal(tV128)
		return nil
	}
	if err := v.popExpect(tV128); err != nil {
		return err
	}
	v.pushVal(scalar)
	return nil
}

// vecIsUnary reports whether an assigned v128->v128 sub-opcode takes one
// operand; everything not otherwise classified is a two-operand lane op.
func vecIsUnary(sub uint32) bool {
	switch sub {
	case 77, // v128.not
		94, 95, // demote/promote
		96, 97, 98, // i8x16 abs/neg/popcnt
		103, 104, 105, 106, // f32x4 ceil/floor/trunc/nearest
		116, 117, 122, 148, // f64x2 ceil/floor/trunc/nearest
		124, 125, 126, 127, // extadd_pairwise
		128, 129, // i16x8 abs/neg
		135, 136, 137, 138, // i16x8 extend
		160, 161, // i32x4 abs/neg
		167, 168, 169, 170, // i32x4 extend
		192, 193, // i64x2 abs/neg
		199, 200, 201, 202, // i64x2 extend
		224, 225, 227, // f32x4 abs/neg/sqrt
		236, 237, 239, // f64x2 abs/neg/sqrt
		248, 249, 250, 251, 252, 253, 254, 255: // conversions
		return true
	}
	return false
}
