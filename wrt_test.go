package wrt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/intercept"
	"github.com/avrabe/wrt/internal/leb128"
	"github.com/avrabe/wrt/internal/substrate"
)

// Tiny binary-format assembler, mirroring internal/wasmbinary's test
// helpers so these tests stay independent of that package's internals.

func sec(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.EncodeUint32(uint32(len(payload)))...)
	return append(out, payload...)
}

func name(s string) []byte {
	out := leb128.EncodeUint32(uint32(len(s)))
	return append(out, s...)
}

// singleFuncModule assembles a module with one type, one function exported
// as exportName, and optionally one linear memory of memPages.
func singleFuncModule(params, results []byte, localI32s uint32, body []byte, exportName string, memPages uint32) []byte {
	m := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	typeSec := leb128.EncodeUint32(1)
	typeSec = append(typeSec, 0x60)
	typeSec = append(typeSec, leb128.EncodeUint32(uint32(len(params)))...)
	typeSec = append(typeSec, params...)
	typeSec = append(typeSec, leb128.EncodeUint32(uint32(len(results)))...)
	typeSec = append(typeSec, results...)
	m = append(m, sec(1, typeSec)...)

	funcSec := append(leb128.EncodeUint32(1), leb128.EncodeUint32(0)...)
	m = append(m, sec(3, funcSec)...)

	if memPages > 0 {
		memSec := leb128.EncodeUint32(1)
		memSec = append(memSec, 0x00) // no max
		memSec = append(memSec, leb128.EncodeUint32(memPages)...)
		m = append(m, sec(5, memSec)...)
	}

	expSec := leb128.EncodeUint32(1)
	expSec = append(expSec, name(exportName)...)
	expSec = append(expSec, 0x00) // func kind
	expSec = append(expSec, leb128.EncodeUint32(0)...)
	m = append(m, sec(7, expSec)...)

	var fb []byte
	if localI32s > 0 {
		fb = leb128.EncodeUint32(1)
		fb = append(fb, leb128.EncodeUint32(localI32s)...)
		fb = append(fb, 0x7f)
	} else {
		fb = leb128.EncodeUint32(0)
	}
	fb = append(fb, body...)
	codeSec := append(leb128.EncodeUint32(1), leb128.EncodeUint32(uint32(len(fb)))...)
	codeSec = append(codeSec, fb...)
	m = append(m, sec(10, codeSec)...)

	return m
}

func addModule() []byte {
	body := []byte{
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6a, // i32.add
		0x0b,
	}
	return singleFuncModule([]byte{0x7f, 0x7f}, []byte{0x7f}, 0, body, "add", 0)
}

func divModule() []byte {
	body := []byte{
		0x20, 0x00,
		0x20, 0x01,
		0x6d, // i32.div_s
		0x0b,
	}
	return singleFuncModule([]byte{0x7f, 0x7f}, []byte{0x7f}, 0, body, "div", 0)
}

// countModule loops a local up to 100 and returns it — enough instructions
// to exercise fuel pause/resume.
func countModule() []byte {
	body := []byte{
		0x02, 0x40, // block
		0x03, 0x40, // loop
		0x20, 0x00, // local.get 0
		0x41, 0xe4, 0x00, // i32.const 100
		0x4e,       // i32.ge_s
		0x0d, 0x01, // br_if 1
		0x20, 0x00,
		0x41, 0x01,
		0x6a,       // i32.add
		0x21, 0x00, // local.set 0
		0x0c, 0x00, // br 0
		0x0b,
		0x0b,
		0x20, 0x00,
		0x0b,
	}
	return singleFuncModule(nil, []byte{0x7f}, 1, body, "count", 0)
}

// storeModule stores an i32 at the address given by its parameter.
func storeModule() []byte {
	body := []byte{
		0x20, 0x00, // local.get 0
		0x41, 0x07, // i32.const 7
		0x36, 0x00, 0x00, // i32.store
		0x0b,
	}
	return singleFuncModule([]byte{0x7f}, nil, 0, body, "store", 1)
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := NewRuntime(NewRuntimeConfig())
	require.NoError(t, err)
	return rt
}

func TestRuntime_InvokeAdd(t *testing.T) {
	rt := newTestRuntime(t)
	id, err := rt.Instantiate(addModule())
	require.NoError(t, err)

	res, err := rt.Invoke(id, "add", []api.Value{api.ValueI32(40), api.ValueI32(2)}, nil)
	require.NoError(t, err)
	require.Equal(t, RunFinished, res.State)
	require.Equal(t, []api.Value{api.ValueI32(42)}, res.Values)
}

func TestRuntime_DivisionByZeroTrap(t *testing.T) {
	rt := newTestRuntime(t)
	id, err := rt.Instantiate(divModule())
	require.NoError(t, err)

	res, err := rt.Invoke(id, "div", []api.Value{api.ValueI32(1), api.ValueI32(0)}, nil)
	require.NoError(t, err)
	require.Equal(t, RunTrapped, res.State)
	require.Contains(t, res.TrapMsg, "zero")
}

func TestRuntime_MemoryOutOfBoundsTrap(t *testing.T) {
	rt := newTestRuntime(t)
	id, err := rt.Instantiate(storeModule())
	require.NoError(t, err)

	// A 4-byte store at 65533 straddles the end of the single page.
	res, err := rt.Invoke(id, "store", []api.Value{api.ValueI32(65533)}, nil)
	require.NoError(t, err)
	require.Equal(t, RunTrapped, res.State)
}

func TestRuntime_FuelPauseAndResume(t *testing.T) {
	rt := newTestRuntime(t)
	id, err := rt.Instantiate(countModule())
	require.NoError(t, err)

	fuel := uint64(50)
	res, err := rt.Invoke(id, "count", nil, &fuel)
	require.NoError(t, err)
	require.Equal(t, RunPaused, res.State)
	require.Equal(t, uint64(0), fuel)

	res, err = rt.Step(id, nil) // unmetered resume
	require.NoError(t, err)
	require.Equal(t, RunFinished, res.State)
	require.Equal(t, []api.Value{api.ValueI32(100)}, res.Values)
}

func TestRuntime_SetFuelDefault(t *testing.T) {
	rt := newTestRuntime(t)
	id, err := rt.Instantiate(countModule())
	require.NoError(t, err)

	allotment := uint64(30)
	require.NoError(t, rt.SetFuel(id, &allotment))

	res, err := rt.Invoke(id, "count", nil, nil)
	require.NoError(t, err)
	require.Equal(t, RunPaused, res.State)
	require.Equal(t, uint64(0), allotment)
}

func TestRuntime_CancelResetsEngine(t *testing.T) {
	rt := newTestRuntime(t)
	id, err := rt.Instantiate(countModule())
	require.NoError(t, err)

	fuel := uint64(10)
	res, err := rt.Invoke(id, "count", nil, &fuel)
	require.NoError(t, err)
	require.Equal(t, RunPaused, res.State)

	require.NoError(t, rt.Cancel(id))

	// After cancel, a fresh call starts from scratch.
	res, err = rt.Invoke(id, "count", nil, nil)
	require.NoError(t, err)
	require.Equal(t, RunFinished, res.State)
	require.Equal(t, []api.Value{api.ValueI32(100)}, res.Values)
}

func TestRuntime_ComponentStats(t *testing.T) {
	rt := newTestRuntime(t)
	id, err := rt.Instantiate(addModule())
	require.NoError(t, err)

	_, err = rt.Invoke(id, "add", []api.Value{api.ValueI32(1), api.ValueI32(2)}, nil)
	require.NoError(t, err)

	stats, err := rt.ComponentStats(id)
	require.NoError(t, err)
	require.Equal(t, RunFinished, stats.State)
	// local.get, local.get, i32.add, end.
	require.Equal(t, uint64(4), stats.Instructions)
}

func TestRuntime_CheckpointRestoreRoundTrip(t *testing.T) {
	rt := newTestRuntime(t)
	raw := countModule()
	id, err := rt.Instantiate(raw)
	require.NoError(t, err)

	fuel := uint64(50)
	res, err := rt.Invoke(id, "count", nil, &fuel)
	require.NoError(t, err)
	require.Equal(t, RunPaused, res.State)

	blob, err := rt.Checkpoint(id)
	require.NoError(t, err)

	restored, err := rt.Restore(raw, blob)
	require.NoError(t, err)
	require.NotEqual(t, id, restored)

	res, err = rt.Step(restored, nil)
	require.NoError(t, err)
	require.Equal(t, RunFinished, res.State)
	require.Equal(t, []api.Value{api.ValueI32(100)}, res.Values)
}

func TestRuntime_RestoreRejectsTamperedCheckpoint(t *testing.T) {
	rt := newTestRuntime(t)
	raw := countModule()
	id, err := rt.Instantiate(raw)
	require.NoError(t, err)

	fuel := uint64(50)
	_, err = rt.Invoke(id, "count", nil, &fuel)
	require.NoError(t, err)

	blob, err := rt.Checkpoint(id)
	require.NoError(t, err)
	blob[len(blob)/2] ^= 0xff

	_, err = rt.Restore(raw, blob)
	require.Error(t, err)
	apiErr, ok := err.(*api.Error)
	require.True(t, ok)
	require.Equal(t, api.CodeCorruption, apiErr.Code)
}

func TestRuntime_RestoreRejectsWrongModule(t *testing.T) {
	rt := newTestRuntime(t)
	id, err := rt.Instantiate(countModule())
	require.NoError(t, err)

	blob, err := rt.Checkpoint(id)
	require.NoError(t, err)

	_, err = rt.Restore(addModule(), blob)
	require.Error(t, err)
}

// bypassStrategy substitutes a fixed result and skips the real call.
type bypassStrategy struct {
	intercept.DefaultStrategy
	result []api.Value
}

func (s *bypassStrategy) BeforeCall(_, _, _ string, _ []api.Value) ([]api.Value, bool, error) {
	return s.result, true, nil
}

func TestRuntime_InterceptorBypass(t *testing.T) {
	rt := newTestRuntime(t)
	id, err := rt.Instantiate(addModule())
	require.NoError(t, err)

	li, err := rt.Interceptor(id)
	require.NoError(t, err)
	li.AddStrategy(&bypassStrategy{result: []api.Value{api.ValueI32(99)}})

	res, err := rt.Invoke(id, "add", []api.Value{api.ValueI32(10), api.ValueI32(20)}, nil)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.ValueI32(99)}, res.Values)

	// The bypass skipped the engine entirely: no instructions dispatched.
	stats, err := rt.ComponentStats(id)
	require.NoError(t, err)
	require.Zero(t, stats.Instructions)
}

func TestRuntime_InstantiateChargesSubsystemBudgets(t *testing.T) {
	rt := newTestRuntime(t)
	before := rt.Stats().MemoryBudgetUsed

	_, err := rt.Instantiate(storeModule())
	require.NoError(t, err)

	after := rt.Stats().MemoryBudgetUsed
	// Decoded module, operand stack, call frames, and one page of linear
	// memory all land in their subsystem ledgers.
	require.Greater(t, after, before+65536)
}

func TestRuntime_RejectsVerificationLevelNone(t *testing.T) {
	_, err := NewRuntime(NewRuntimeConfig().WithVerificationLevel(substrate.VerificationLevelNone))
	require.Error(t, err)
}

func TestRuntime_HostModuleImport(t *testing.T) {
	// Module importing host.double and exporting a function that applies it.
	m := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	typeSec := leb128.EncodeUint32(1)
	typeSec = append(typeSec, 0x60)
	typeSec = append(typeSec, leb128.EncodeUint32(1)...)
	typeSec = append(typeSec, 0x7f)
	typeSec = append(typeSec, leb128.EncodeUint32(1)...)
	typeSec = append(typeSec, 0x7f)
	m = append(m, sec(1, typeSec)...)

	impSec := leb128.EncodeUint32(1)
	impSec = append(impSec, name("host")...)
	impSec = append(impSec, name("double")...)
	impSec = append(impSec, 0x00) // func import
	impSec = append(impSec, leb128.EncodeUint32(0)...)
	m = append(m, sec(2, impSec)...)

	funcSec := append(leb128.EncodeUint32(1), leb128.EncodeUint32(0)...)
	m = append(m, sec(3, funcSec)...)

	expSec := leb128.EncodeUint32(1)
	expSec = append(expSec, name("run")...)
	expSec = append(expSec, 0x00)
	expSec = append(expSec, leb128.EncodeUint32(1)...) // the local function
	m = append(m, sec(7, expSec)...)

	body := []byte{
		0x00,       // no locals
		0x20, 0x00, // local.get 0
		0x10, 0x00, // call 0 (the import)
		0x0b,
	}
	codeSec := append(leb128.EncodeUint32(1), leb128.EncodeUint32(uint32(len(body)))...)
	codeSec = append(codeSec, body...)
	m = append(m, sec(10, codeSec)...)

	double := func(args []api.Value) ([]api.Value, error) {
		return []api.Value{api.ValueI32(args[0].I32() * 2)}, nil
	}
	rt, err := NewRuntime(NewRuntimeConfig().WithHostModule("host", HostModule{"double": double}))
	require.NoError(t, err)

	id, err := rt.Instantiate(m)
	require.NoError(t, err)

	res, err := rt.Invoke(id, "run", []api.Value{api.ValueI32(21)}, nil)
	require.NoError(t, err)
	require.Equal(t, RunFinished, res.State)
	require.Equal(t, []api.Value{api.ValueI32(42)}, res.Values)
}
