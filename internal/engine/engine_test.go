package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/substrate"
	"github.com/avrabe/wrt/internal/wasm"
)

// buildInstance assembles a minimal single-function wasm.Instance around
// body (a raw, not-yet-compiled instruction stream) with the given
// signature, and optionally a linear memory of minPages.
func buildInstance(t *testing.T, params, results []api.ValueType, body []byte, minPages uint32) *wasm.Instance {
	t.Helper()
	fn := wasm.FunctionInstance{
		Type: api.FuncType{Params: params, Results: results},
		Body: &wasm.Code{Body: body},
	}
	inst := &wasm.Instance{
		Module:    &wasm.Module{},
		Functions: []wasm.FunctionInstance{fn},
	}
	if minPages > 0 {
		budget := substrate.NewBudget("test", uint(minPages)*65536*2)
		pool, err := substrate.NewHeapPool(uint(minPages)*65536*2, budget)
		require.NoError(t, err)
		mem, err := wasm.NewMemoryInstance(pool, minPages, 0)
		require.NoError(t, err)
		inst.Memory = mem
	}
	return inst
}

func runToCompletion(t *testing.T, it *Interpreter, funcIdx Index, args []api.Value) {
	t.Helper()
	require.NoError(t, it.StartCall(funcIdx, args))
	fuel := uint64(10_000)
	for {
		require.NoError(t, it.Run(&fuel))
		if it.State() == StatePaused {
			fuel = 10_000
			continue
		}
		return
	}
}

func TestInterpreter_LocalAdd(t *testing.T) {
	// (func (param i32 i32) (result i32) local.get 0 local.get 1 i32.add)
	body := []byte{
		byte(opLocalGet), 0x00,
		byte(opLocalGet), 0x01,
		byte(opI32Add),
		byte(opEnd),
	}
	inst := buildInstance(t, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, body, 0)
	it := NewInterpreter(inst, DefaultLimits)

	runToCompletion(t, it, 0, []api.Value{api.ValueI32(19), api.ValueI32(23)})

	require.Equal(t, StateFinished, it.State())
	require.Nil(t, it.Trap())
	require.Equal(t, []api.Value{api.ValueI32(42)}, it.Results())
}

func TestInterpreter_DivisionByZeroTraps(t *testing.T) {
	// (func (param i32 i32) (result i32) local.get 0 local.get 1 i32.div_s)
	body := []byte{
		byte(opLocalGet), 0x00,
		byte(opLocalGet), 0x01,
		byte(opI32DivS),
		byte(opEnd),
	}
	inst := buildInstance(t, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, body, 0)
	it := NewInterpreter(inst, DefaultLimits)

	runToCompletion(t, it, 0, []api.Value{api.ValueI32(7), api.ValueI32(0)})

	require.Equal(t, StateTrapped, it.State())
	require.NotNil(t, it.Trap())
}

func TestInterpreter_MemoryLoadOutOfBoundsTraps(t *testing.T) {
	// (func (param i32) (result i32) local.get 0 i32.load)
	body := []byte{
		byte(opLocalGet), 0x00,
		byte(opI32Load), 0x00, 0x00, // align=0, offset=0
		byte(opEnd),
	}
	inst := buildInstance(t, []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, body, 1)
	it := NewInterpreter(inst, DefaultLimits)

	// One page is 65536 bytes; reading 4 bytes starting at 65536-1 is out of bounds.
	runToCompletion(t, it, 0, []api.Value{api.ValueI32(65536 - 1)})

	require.Equal(t, StateTrapped, it.State())
	require.NotNil(t, it.Trap())
}

func TestInterpreter_CallStackExhaustionTraps(t *testing.T) {
	// A function that calls itself (func call 0) never terminates on its
	// own; the bounded frame stack must trap instead of growing forever.
	body := []byte{
		byte(opCall), 0x00,
		byte(opEnd),
	}
	inst := buildInstance(t, nil, nil, body, 0)
	limits := DefaultLimits
	limits.MaxCallDepth = 8
	it := NewInterpreter(inst, limits)

	runToCompletion(t, it, 0, nil)

	require.Equal(t, StateTrapped, it.State())
	require.NotNil(t, it.Trap())
}

func TestInterpreter_FuelPauseResume(t *testing.T) {
	// A tight loop: (local i32) loop br 0 end — never terminates, so fuel
	// exhaustion must pause it rather than let it spin unbounded.
	body := []byte{
		byte(opLoop), 0x40,
		byte(opBr), 0x00,
		byte(opEnd),
		byte(opEnd),
	}
	inst := buildInstance(t, nil, nil, body, 0)
	it := NewInterpreter(inst, DefaultLimits)
	require.NoError(t, it.StartCall(0, nil))

	fuel := uint64(5)
	require.NoError(t, it.Run(&fuel))
	require.Equal(t, StatePaused, it.State())
	require.Equal(t, uint64(0), fuel)

	fuel = 5
	require.NoError(t, it.Run(&fuel))
	require.Equal(t, StatePaused, it.State())
}

func TestCompile_RejectsUnknownOpcode(t *testing.T) {
	// 0xfd is the SIMD prefix; sub-opcode 154 is one of the encoding's
	// reserved gaps (between i16x8.max_u and i16x8.avgr_u), so compile must
	// fail loudly rather than misparse the remaining bytes as unrelated
	// opcodes.
	_, err := compile([]byte{0xfd, 0x9a, 0x01}, nil)
	require.Error(t, err)
}

func TestInterpreter_SIMDI32x4Add(t *testing.T) {
	// (func (result v128) v128.const 1 2 3 4  v128.const 5 6 7 8  i32x4.add)
	lhs := [16]byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}
	rhs := [16]byte{5, 0, 0, 0, 6, 0, 0, 0, 7, 0, 0, 0, 8, 0, 0, 0}
	body := append([]byte{byte(opVecPrefix), 0x0c}, lhs[:]...)
	body = append(body, byte(opVecPrefix), 0x0c)
	body = append(body, rhs[:]...)
	body = append(body, byte(opVecPrefix), 0xae, 0x01) // i32x4.add (sub-opcode 174)
	body = append(body, byte(opEnd))

	inst := buildInstance(t, nil, []api.ValueType{api.ValueTypeV128}, body, 0)
	it := NewInterpreter(inst, DefaultLimits)

	runToCompletion(t, it, 0, nil)

	require.Equal(t, StateFinished, it.State())
	require.Nil(t, it.Trap())
	want := [16]byte{6, 0, 0, 0, 8, 0, 0, 0, 10, 0, 0, 0, 12, 0, 0, 0}
	require.Equal(t, []api.Value{api.ValueV128(want)}, it.Results())
}

func TestInterpreter_MemoryFillAndCopy(t *testing.T) {
	// (func (result i32)
	//   i32.const 0  i32.const 7  i32.const 4  memory.fill
	//   i32.const 4  i32.const 0  i32.const 4  memory.copy
	//   i32.const 4  i32.load)
	body := []byte{
		byte(opI32Const), 0x00,
		byte(opI32Const), 0x07,
		byte(opI32Const), 0x04,
		byte(opMiscPrefix), 0x0b, 0x00, // memory.fill

		byte(opI32Const), 0x04,
		byte(opI32Const), 0x00,
		byte(opI32Const), 0x04,
		byte(opMiscPrefix), 0x0a, 0x00, 0x00, // memory.copy

		byte(opI32Const), 0x04,
		byte(opI32Load), 0x00, 0x00,
		byte(opEnd),
	}
	inst := buildInstance(t, nil, []api.ValueType{api.ValueTypeI32}, body, 1)
	it := NewInterpreter(inst, DefaultLimits)

	runToCompletion(t, it, 0, nil)

	require.Equal(t, StateFinished, it.State())
	require.Nil(t, it.Trap())
	require.Equal(t, []api.Value{api.ValueI32(0x07070707)}, it.Results())
}

func TestInterpreter_TableGetSetGrowFill(t *testing.T) {
	// (func (result i32 i32 i32)
	//   i32.const 0  ref.null func  table.set 0
	//   ref.null func  i32.const 5  table.grow 0      ; previous size, pushed first
	//   i32.const 1  ref.func 0  i32.const 2  table.fill 0
	//   i32.const 1  table.get 0  ref.is_null
	//   table.size 0)
	body := []byte{
		byte(opI32Const), 0x00,
		byte(opRefNull), 0x70, // funcref
		byte(opTableSet), 0x00,

		byte(opRefNull), 0x70, // init value for the grown slots
		byte(opI32Const), 0x05,
		byte(opMiscPrefix), 0x0f, 0x00, // table.grow

		byte(opI32Const), 0x01,
		byte(opRefFunc), 0x00,
		byte(opI32Const), 0x02,
		byte(opMiscPrefix), 0x11, 0x00, // table.fill

		byte(opI32Const), 0x01,
		byte(opTableGet), 0x00,
		byte(opRefIsNull),

		byte(opMiscPrefix), 0x10, 0x00, // table.size
		byte(opEnd),
	}
	fn := wasm.FunctionInstance{
		Type: api.FuncType{Results: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}},
		Body: &wasm.Code{Body: body},
	}
	inst := &wasm.Instance{
		Module:    &wasm.Module{},
		Functions: []wasm.FunctionInstance{fn},
		Tables:    []*wasm.TableInstance{wasm.NewTableInstance(api.ValueTypeFuncref, 1, 10)},
	}
	it := NewInterpreter(inst, DefaultLimits)

	runToCompletion(t, it, 0, nil)

	require.Equal(t, StateFinished, it.State())
	require.Nil(t, it.Trap())
	// table.grow's previous size (1), then ref.is_null of the filled slot
	// (not null, so 0), then the final table.size (1 initial + 5 grown = 6).
	require.Equal(t, []api.Value{api.ValueI32(1), api.ValueI32(0), api.ValueI32(6)}, it.Results())
}

func TestCompile_TruncationAdvancesPC(t *testing.T) {
	// Regression test: execTrunc's early return must not skip fr.PC
	// advancement, or a non-trapping truncation would loop forever.
	body := []byte{
		byte(opLocalGet), 0x00,
		byte(opI32TruncF32S),
		byte(opEnd),
	}
	inst := buildInstance(t, []api.ValueType{api.ValueTypeF32}, []api.ValueType{api.ValueTypeI32}, body, 0)
	it := NewInterpreter(inst, DefaultLimits)

	runToCompletion(t, it, 0, []api.Value{api.ValueF32(3.0)})

	require.Equal(t, StateFinished, it.State())
	require.Equal(t, []api.Value{api.ValueI32(3)}, it.Results())
}
