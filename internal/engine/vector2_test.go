package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/api"
)

// v128Const encodes a v128.const instruction for b.
func v128Const(b [16]byte) []byte {
	return append([]byte{byte(opVecPrefix), 0x0c}, b[:]...)
}

func runSIMD(t *testing.T, body []byte) api.Value {
	t.Helper()
	body = append(body, byte(opEnd))
	inst := buildInstance(t, nil, []api.ValueType{api.ValueTypeV128}, body, 0)
	it := NewInterpreter(inst, DefaultLimits)
	runToCompletion(t, it, 0, nil)
	require.Equal(t, StateFinished, it.State())
	require.Nil(t, it.Trap())
	results := it.Results()
	require.Len(t, results, 1)
	return results[0]
}

func TestInterpreter_SIMDAddSatU(t *testing.T) {
	a := [16]byte{250, 250, 250, 250, 250, 250, 250, 250, 250, 250, 250, 250, 250, 250, 250, 250}
	b := [16]byte{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10}
	body := append(v128Const(a), v128Const(b)...)
	body = append(body, byte(opVecPrefix), 0x70) // i8x16.add_sat_u (112)

	got := runSIMD(t, body)
	want := [16]byte{255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255}
	require.Equal(t, api.ValueV128(want), got)
}

func TestInterpreter_SIMDNarrowI16x8S(t *testing.T) {
	// Lanes 300 and -300 saturate to 127 and -128 on the way down to i8.
	var a, b [16]byte
	for i := 0; i < 8; i++ {
		setLaneI16(&a, i, 300)
		setLaneI16(&b, i, -300)
	}
	body := append(v128Const(a), v128Const(b)...)
	body = append(body, byte(opVecPrefix), 0x65) // i8x16.narrow_i16x8_s (101)

	got := runSIMD(t, body)
	var want [16]byte
	for i := 0; i < 8; i++ {
		setLaneI8(&want, i, 127)
		setLaneI8(&want, i+8, -128)
	}
	require.Equal(t, api.ValueV128(want), got)
}

func TestInterpreter_SIMDExtendLowI8x16S(t *testing.T) {
	var a [16]byte
	for i := 0; i < 16; i++ {
		setLaneI8(&a, i, int8(i)-8)
	}
	body := append(v128Const(a), byte(opVecPrefix), 0x87, 0x01) // i16x8.extend_low_i8x16_s (135)

	got := runSIMD(t, body)
	var want [16]byte
	for i := 0; i < 8; i++ {
		setLaneI16(&want, i, int16(i)-8)
	}
	require.Equal(t, api.ValueV128(want), got)
}

func TestInterpreter_SIMDDotI16x8S(t *testing.T) {
	var a, b [16]byte
	for i := 0; i < 8; i++ {
		setLaneI16(&a, i, int16(i+1)) // 1..8
		setLaneI16(&b, i, 2)
	}
	body := append(v128Const(a), v128Const(b)...)
	body = append(body, byte(opVecPrefix), 0xba, 0x01) // i32x4.dot_i16x8_s (186)

	got := runSIMD(t, body)
	var want [16]byte
	setLaneI32(&want, 0, 6)  // 2*1 + 2*2
	setLaneI32(&want, 1, 14) // 2*3 + 2*4
	setLaneI32(&want, 2, 22)
	setLaneI32(&want, 3, 30)
	require.Equal(t, api.ValueV128(want), got)
}

func TestInterpreter_SIMDLoad32Splat(t *testing.T) {
	// Store a marker word at address 8, then v128.load32_splat from it.
	body := []byte{
		byte(opI32Const), 0x08,
		byte(opI32Const), 0xAA, 0xD5, 0xAA, 0xD5, 0x05, // i32.const 0x5AAAAAAA (LEB)
		byte(opI32Store), 0x00, 0x00,
		byte(opI32Const), 0x08,
		byte(opVecPrefix), 0x09, 0x00, 0x00, // v128.load32_splat align=0 offset=0
		byte(opEnd),
	}
	inst := buildInstance(t, nil, []api.ValueType{api.ValueTypeV128}, body, 1)
	it := NewInterpreter(inst, DefaultLimits)
	runToCompletion(t, it, 0, nil)
	require.Equal(t, StateFinished, it.State())
	require.Nil(t, it.Trap())

	results := it.Results()
	require.Len(t, results, 1)
	got := results[0].V128()
	word := [4]byte{got[0], got[1], got[2], got[3]}
	for i := 0; i < 16; i += 4 {
		require.Equal(t, word[:], got[i:i+4])
	}
}

func TestInterpreter_SIMDTruncSatF64x2SZero(t *testing.T) {
	var a [16]byte
	setLaneF64(&a, 0, 3.9)
	setLaneF64(&a, 1, -2.1)
	body := append(v128Const(a), byte(opVecPrefix), 0xfc, 0x01) // i32x4.trunc_sat_f64x2_s_zero (252)

	got := runSIMD(t, body)
	var want [16]byte
	setLaneI32(&want, 0, 3)
	setLaneI32(&want, 1, -2)
	require.Equal(t, api.ValueV128(want), got)
}

func TestInterpreter_SIMDPminF32x4(t *testing.T) {
	var a, b [16]byte
	for i := 0; i < 4; i++ {
		setLaneF32(&a, i, float32(i))
		setLaneF32(&b, i, 2.0)
	}
	body := append(v128Const(a), v128Const(b)...)
	body = append(body, byte(opVecPrefix), 0xea, 0x01) // f32x4.pmin (234)

	got := runSIMD(t, body)
	var want [16]byte
	setLaneF32(&want, 0, 0)
	setLaneF32(&want, 1, 1)
	setLaneF32(&want, 2, 2)
	setLaneF32(&want, 3, 2)
	require.Equal(t, api.ValueV128(want), got)
}
