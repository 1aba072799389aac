package engine

import "github.com/avrabe/wrt/internal/leb128"

// vecOp is the LEB128 sub-opcode following a 0xfd prefix byte: the SIMD
// (v128) instruction set. Byte values are the public, stable WebAssembly
// SIMD proposal encoding (the same "FD" opcode space every engine and the
// reference interpreter use), not something specific to this codebase.
type vecOp uint32

const (
	vecV128Load       vecOp = 0
	vecV128Load8x8S   vecOp = 1
	vecV128Load8x8U   vecOp = 2
	vecV128Load16x4S  vecOp = 3
	vecV128Load16x4U  vecOp = 4
	vecV128Load32x2S  vecOp = 5
	vecV128Load32x2U  vecOp = 6
	vecV128Load8Splat  vecOp = 7
	vecV128Load16Splat vecOp = 8
	vecV128Load32Splat vecOp = 9
	vecV128Load64Splat vecOp = 10
	vecV128Store vecOp = 11
	vecV128Const vecOp = 12

	vecI8x16Shuffle  vecOp = 13
	vecI8x16Swizzle  vecOp = 14
	vecI8x16Splat    vecOp = 15
	vecI16x8Splat    vecOp = 16
	vecI32x4Splat    vecOp = 17
	vecI64x2Splat    vecOp = 18
	vecF32x4Splat    vecOp = 19
	vecF64x2Splat    vecOp = 20

	vecI8x16ExtractLaneS vecOp = 21
	vecI8x16ExtractLaneU vecOp = 22
	vecI8x16ReplaceLane  vecOp = 23
	vecI16x8ExtractLaneS vecOp = 24
	vecI16x8ExtractLaneU vecOp = 25
	vecI16x8ReplaceLane  vecOp = 26
	vecI32x4ExtractLane  vecOp = 27
	vecI32x4ReplaceLane  vecOp = 28
	vecI64x2ExtractLane  vecOp = 29
	vecI64x2ReplaceLane  vecOp = 30
	vecF32x4ExtractLane  vecOp = 31
	vecF32x4ReplaceLane  vecOp = 32
	vecF64x2ExtractLane  vecOp = 33
	vecF64x2ReplaceLane  vecOp = 34

	vecI8x16Eq  vecOp = 35
	vecI8x16Ne  vecOp = 36
	vecI8x16LtS vecOp = 37
	vecI8x16LtU vecOp = 38
	vecI8x16GtS vecOp = 39
	vecI8x16GtU vecOp = 40
	vecI8x16LeS vecOp = 41
	vecI8x16LeU vecOp = 42
	vecI8x16GeS vecOp = 43
	vecI8x16GeU vecOp = 44

	vecI16x8Eq  vecOp = 45
	vecI16x8Ne  vecOp = 46
	vecI16x8LtS vecOp = 47
	vecI16x8LtU vecOp = 48
	vecI16x8GtS vecOp = 49
	vecI16x8GtU vecOp = 50
	vecI16x8LeS vecOp = 51
	vecI16x8LeU vecOp = 52
	vecI16x8GeS vecOp = 53
	vecI16x8GeU vecOp = 54

	vecI32x4Eq  vecOp = 55
	vecI32x4Ne  vecOp = 56
	vecI32x4LtS vecOp = 57
	vecI32x4LtU vecOp = 58
	vecI32x4GtS vecOp = 59
	vecI32x4GtU vecOp = 60
	vecI32x4LeS vecOp = 61
	vecI32x4LeU vecOp = 62
	vecI32x4GeS vecOp = 63
	vecI32x4GeU vecOp = 64

	vecF32x4Eq vecOp = 65
	vecF32x4Ne vecOp = 66
	vecF32x4Lt vecOp = 67
	vecF32x4Gt vecOp = 68
	vecF32x4Le vecOp = 69
	vecF32x4Ge vecOp = 70

	vecF64x2Eq vecOp = 71
	vecF64x2Ne vecOp = 72
	vecF64x2Lt vecOp = 73
	vecF64x2Gt vecOp = 74
	vecF64x2Le vecOp = 75
	vecF64x2Ge vecOp = 76

	vecV128Not      vecOp = 77
	vecV128And      vecOp = 78
	vecV128AndNot   vecOp = 79
	vecV128Or       vecOp = 80
	vecV128Xor      vecOp = 81
	vecV128Bitselect vecOp = 82
	vecV128AnyTrue  vecOp = 83

	vecV128Load8Lane   vecOp = 84
	vecV128Load16Lane  vecOp = 85
	vecV128Load32Lane  vecOp = 86
	vecV128Load64Lane  vecOp = 87
	vecV128Store8Lane  vecOp = 88
	vecV128Store16Lane vecOp = 89
	vecV128Store32Lane vecOp = 90
	vecV128Store64Lane vecOp = 91
	vecV128Load32Zero  vecOp = 92
	vecV128Load64Zero  vecOp = 93

	vecF32x4DemoteF64x2Zero vecOp = 94
	vecF64x2PromoteLowF32x4 vecOp = 95

	vecI8x16Abs     vecOp = 96
	vecI8x16Neg     vecOp = 97
	vecI8x16Popcnt  vecOp = 98
	vecI8x16AllTrue vecOp = 99
	vecI8x16Bitmask vecOp = 100
	vecI8x16NarrowI16x8S vecOp = 101
	vecI8x16NarrowI16x8U vecOp = 102
	vecF32x4Ceil    vecOp = 103
	vecF32x4Floor   vecOp = 104
	vecF32x4Trunc   vecOp = 105
	vecF32x4Nearest vecOp = 106
	vecI8x16Shl     vecOp = 107
	vecI8x16ShrS    vecOp = 108
	vecI8x16ShrU    vecOp = 109
	vecI8x16Add     vecOp = 110
	vecI8x16AddSatS vecOp = 111
	vecI8x16AddSatU vecOp = 112
	vecI8x16Sub     vecOp = 113
	vecI8x16SubSatS vecOp = 114
	vecI8x16SubSatU vecOp = 115
	vecF64x2Ceil    vecOp = 116
	vecF64x2Floor   vecOp = 117
	vecI8x16MinS    vecOp = 118
	vecI8x16MinU    vecOp = 119
	vecI8x16MaxS    vecOp = 120
	vecI8x16MaxU    vecOp = 121
	vecF64x2Trunc   vecOp = 122
	vecI8x16AvgrU   vecOp = 123

	vecI16x8ExtaddPairwiseI8x16S vecOp = 124
	vecI16x8ExtaddPairwiseI8x16U vecOp = 125
	vecI32x4ExtaddPairwiseI16x8S vecOp = 126
	vecI32x4ExtaddPairwiseI16x8U vecOp = 127

	vecI16x8Abs        vecOp = 128
	vecI16x8Neg        vecOp = 129
	vecI16x8Q15MulrSatS vecOp = 130
	vecI16x8AllTrue    vecOp = 131
	vecI16x8Bitmask    vecOp = 132
	vecI16x8NarrowI32x4S vecOp = 133
	vecI16x8NarrowI32x4U vecOp = 134
	vecI16x8ExtendLowI8x16S  vecOp = 135
	vecI16x8ExtendHighI8x16S vecOp = 136
	vecI16x8ExtendLowI8x16U  vecOp = 137
	vecI16x8ExtendHighI8x16U vecOp = 138
	vecI16x8Shl     vecOp = 139
	vecI16x8ShrS    vecOp = 140
	vecI16x8ShrU    vecOp = 141
	vecI16x8Add     vecOp = 142
	vecI16x8AddSatS vecOp = 143
	vecI16x8AddSatU vecOp = 144
	vecI16x8Sub     vecOp = 145
	vecI16x8SubSatS vecOp = 146
	vecI16x8SubSatU vecOp = 147
	vecF64x2Nearest vecOp = 148
	vecI16x8Mul     vecOp = 149
	vecI16x8MinS    vecOp = 150
	vecI16x8MinU    vecOp = 151
	vecI16x8MaxS    vecOp = 152
	vecI16x8MaxU    vecOp = 153
	vecI16x8AvgrU   vecOp = 155
	vecI16x8ExtmulLowI8x16S  vecOp = 156
	vecI16x8ExtmulHighI8x16S vecOp = 157
	vecI16x8ExtmulLowI8x16U  vecOp = 158
	vecI16x8ExtmulHighI8x16U vecOp = 159

	vecI32x4Abs     vecOp = 160
	vecI32x4Neg     vecOp = 161
	vecI32x4AllTrue vecOp = 163
	vecI32x4Bitmask vecOp = 164
	vecI32x4ExtendLowI16x8S  vecOp = 167
	vecI32x4ExtendHighI16x8S vecOp = 168
	vecI32x4ExtendLowI16x8U  vecOp = 169
	vecI32x4ExtendHighI16x8U vecOp = 170
	vecI32x4Shl     vecOp = 171
	vecI32x4ShrS    vecOp = 172
	vecI32x4ShrU    vecOp = 173
	vecI32x4Add     vecOp = 174
	vecI32x4Sub     vecOp = 177
	vecI32x4Mul     vecOp = 181
	vecI32x4MinS    vecOp = 182
	vecI32x4MinU    vecOp = 183
	vecI32x4MaxS    vecOp = 184
	vecI32x4MaxU    vecOp = 185
	vecI32x4DotI16x8S vecOp = 186
	vecI32x4ExtmulLowI16x8S  vecOp = 188
	vecI32x4ExtmulHighI16x8S vecOp = 189
	vecI32x4ExtmulLowI16x8U  vecOp = 190
	vecI32x4ExtmulHighI16x8U vecOp = 191

	vecI64x2Abs     vecOp = 192
	vecI64x2Neg     vecOp = 193
	vecI64x2AllTrue vecOp = 195
	vecI64x2Bitmask vecOp = 196
	vecI64x2ExtendLowI32x4S  vecOp = 199
	vecI64x2ExtendHighI32x4S vecOp = 200
	vecI64x2ExtendLowI32x4U  vecOp = 201
	vecI64x2ExtendHighI32x4U vecOp = 202
	vecI64x2Shl     vecOp = 203
	vecI64x2ShrS    vecOp = 204
	vecI64x2ShrU    vecOp = 205
	vecI64x2Add     vecOp = 206
	vecI64x2Sub     vecOp = 209
	vecI64x2Mul     vecOp = 213
	vecI64x2Eq      vecOp = 214
	vecI64x2Ne      vecOp = 215
	vecI64x2LtS     vecOp = 216
	vecI64x2GtS     vecOp = 217
	vecI64x2LeS     vecOp = 218
	vecI64x2GeS     vecOp = 219
	vecI64x2ExtmulLowI32x4S  vecOp = 220
	vecI64x2ExtmulHighI32x4S vecOp = 221
	vecI64x2ExtmulLowI32x4U  vecOp = 222
	vecI64x2ExtmulHighI32x4U vecOp = 223

	vecF32x4Abs  vecOp = 224
	vecF32x4Neg  vecOp = 225
	vecF32x4Sqrt vecOp = 227
	vecF32x4Add  vecOp = 228
	vecF32x4Sub  vecOp = 229
	vecF32x4Mul  vecOp = 230
	vecF32x4Div  vecOp = 231
	vecF32x4Min  vecOp = 232
	vecF32x4Max  vecOp = 233
	vecF32x4Pmin vecOp = 234
	vecF32x4Pmax vecOp = 235

	vecF64x2Abs  vecOp = 236
	vecF64x2Neg  vecOp = 237
	vecF64x2Sqrt vecOp = 239
	vecF64x2Add  vecOp = 240
	vecF64x2Sub  vecOp = 241
	vecF64x2Mul  vecOp = 242
	vecF64x2Div  vecOp = 243
	vecF64x2Min  vecOp = 244
	vecF64x2Max  vecOp = 245
	vecF64x2Pmin vecOp = 246
	vecF64x2Pmax vecOp = 247

	vecI32x4TruncSatF32x4S vecOp = 248
	vecI32x4TruncSatF32x4U vecOp = 249
	vecF32x4ConvertI32x4S  vecOp = 250
	vecF32x4ConvertI32x4U  vecOp = 251
	vecI32x4TruncSatF64x2SZero vecOp = 252
	vecI32x4TruncSatF64x2UZero vecOp = 253
	vecF64x2ConvertLowI32x4S   vecOp = 254
	vecF64x2ConvertLowI32x4U   vecOp = 255
)

// isKnownVecOp reports whether op is an assigned sub-opcode of the SIMD
// proposal's 0-255 space. The excluded values are the encoding's own
// reserved gaps, not instructions this interpreter chose to skip.
func isKnownVecOp(op vecOp) bool {
	switch op {
	case 154, 162, 165, 166, 175, 176, 178, 179, 180, 187,
		194, 197, 198, 207, 208, 210, 211, 212, 226, 238:
		return false
	}
	return op <= 255
}

// decodeVecOp reads the sub-opcode and any immediates of a 0xfd-prefixed
// instruction starting at pc (just past the 0xfd byte itself), filling
// instr and returning the pc just past the whole instruction.
func decodeVecOp(raw []byte, pc int, instr *Instruction) (int, error) {
	sub, n, err := leb128.LoadUint32(raw[pc:])
	if err != nil {
		return 0, err
	}
	pc += int(n)
	op := vecOp(sub)
	if !isKnownVecOp(op) {
		return 0, errUnsupportedVecOp(op)
	}
	instr.Sub = sub

	switch op {
	case vecV128Load, vecV128Store,
		vecV128Load8x8S, vecV128Load8x8U, vecV128Load16x4S, vecV128Load16x4U,
		vecV128Load32x2S, vecV128Load32x2U,
		vecV128Load8Splat, vecV128Load16Splat, vecV128Load32Splat, vecV128Load64Splat,
		vecV128Load32Zero, vecV128Load64Zero:
		align, offset, next, err := memarg(raw, pc)
		if err != nil {
			return 0, err
		}
		instr.Align, instr.Offset = align, offset
		pc = next

	case vecV128Load8Lane, vecV128Load16Lane, vecV128Load32Lane, vecV128Load64Lane,
		vecV128Store8Lane, vecV128Store16Lane, vecV128Store32Lane, vecV128Store64Lane:
		align, offset, next, err := memarg(raw, pc)
		if err != nil {
			return 0, err
		}
		instr.Align, instr.Offset = align, offset
		pc = next
		if pc >= len(raw) {
			return 0, errUnexpectedEnd()
		}
		instr.Index = uint32(raw[pc]) // lane index
		pc++

	case vecV128Const:
		if pc+16 > len(raw) {
			return 0, errUnexpectedEnd()
		}
		var b [16]byte
		copy(b[:], raw[pc:pc+16])
		instr.V128 = b
		pc += 16

	case vecI8x16Shuffle:
		if pc+16 > len(raw) {
			return 0, errUnexpectedEnd()
		}
		var b [16]byte
		copy(b[:], raw[pc:pc+16])
		instr.Lanes = b
		pc += 16

	case vecI8x16ExtractLaneS, vecI8x16ExtractLaneU, vecI8x16ReplaceLane,
		vecI16x8ExtractLaneS, vecI16x8ExtractLaneU, vecI16x8ReplaceLane,
		vecI32x4ExtractLane, vecI32x4ReplaceLane,
		vecI64x2ExtractLane, vecI64x2ReplaceLane,
		vecF32x4ExtractLane, vecF32x4ReplaceLane,
		vecF64x2ExtractLane, vecF64x2ReplaceLane:
		instr.Index = uint32(raw[pc])
		pc++
	}
	return pc, nil
}
