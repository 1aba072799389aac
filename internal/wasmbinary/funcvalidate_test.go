package wasmbinary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/wasm"
)

// moduleWithBody wraps a single raw function body with the given signature
// into a decoded Module ready for Validate.
func moduleWithBody(params, results []api.ValueType, body []byte, mutate func(*wasm.Module)) *wasm.Module {
	m := &wasm.Module{
		TypeSection:     []api.FuncType{{Params: params, Results: results}},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []wasm.Code{{Body: body}},
	}
	if mutate != nil {
		mutate(m)
	}
	return m
}

func TestValidate_AcceptsWellTypedBody(t *testing.T) {
	body := []byte{
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6a, // i32.add
		0x0b, // end
	}
	m := moduleWithBody([]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, body, nil)
	require.NoError(t, Validate(m))
}

func TestValidate_RejectsOperandTypeMismatch(t *testing.T) {
	// i64.const feeding i32.add.
	body := []byte{
		0x41, 0x01, // i32.const 1
		0x42, 0x01, // i64.const 1
		0x6a, // i32.add
		0x1a, // drop
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, nil)
	err := Validate(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected i32")
}

func TestValidate_RejectsStackUnderflow(t *testing.T) {
	body := []byte{
		0x6a, // i32.add with empty stack
		0x1a,
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, nil)
	err := Validate(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "underflow")
}

func TestValidate_RejectsUnbalancedBlock(t *testing.T) {
	body := []byte{
		0x02, 0x40, // block (empty)
		0x0b, // end of block — function's own end missing
	}
	m := moduleWithBody(nil, nil, body, nil)
	require.Error(t, Validate(m))
}

func TestValidate_RejectsWrongResultType(t *testing.T) {
	body := []byte{
		0x42, 0x2a, // i64.const 42
		0x0b,
	}
	m := moduleWithBody(nil, []api.ValueType{api.ValueTypeI32}, body, nil)
	require.Error(t, Validate(m))
}

func TestValidate_RejectsOutOfRangeLocal(t *testing.T) {
	body := []byte{
		0x20, 0x07, // local.get 7 with no locals
		0x1a,
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, nil)
	err := Validate(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "local index")
}

func TestValidate_RejectsSetOfImmutableGlobal(t *testing.T) {
	body := []byte{
		0x41, 0x01, // i32.const 1
		0x24, 0x00, // global.set 0
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, func(m *wasm.Module) {
		m.GlobalSection = []wasm.Global{{
			Type: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false},
			Init: wasm.ConstExpr{Opcode: 0x41},
		}}
	})
	err := Validate(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "immutable")
}

func TestValidate_RejectsIfWithResultButNoElse(t *testing.T) {
	body := []byte{
		0x41, 0x01, // i32.const 1
		0x04, 0x7f, // if (result i32)
		0x41, 0x02, // i32.const 2
		0x0b, // end — no else branch to produce the other arm's value
		0x1a,
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, nil)
	err := Validate(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "else")
}

func TestValidate_AcceptsUnreachablePolymorphism(t *testing.T) {
	// After unreachable, the dead i32.add may conjure its operands.
	body := []byte{
		0x00, // unreachable
		0x6a, // i32.add
		0x1a, // drop
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, nil)
	require.NoError(t, Validate(m))
}

func TestValidate_RejectsBranchDepthOutOfRange(t *testing.T) {
	body := []byte{
		0x02, 0x40, // block
		0x0c, 0x05, // br 5
		0x0b,
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, nil)
	err := Validate(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "branch depth")
}

func TestValidate_RejectsMemoryOpWithoutMemory(t *testing.T) {
	body := []byte{
		0x41, 0x00, // i32.const 0
		0x28, 0x00, 0x00, // i32.load align=0 offset=0
		0x1a,
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, nil)
	err := Validate(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "memory")
}

func TestValidate_AcceptsLoopWithBranch(t *testing.T) {
	// (local i32) loop: local.get, i32.const 1, i32.add, local.tee,
	// i32.const 10, i32.lt_s, br_if 0.
	body := []byte{
		0x03, 0x40, // loop (empty)
		0x20, 0x00, // local.get 0
		0x41, 0x01,
		0x6a,       // i32.add
		0x22, 0x00, // local.tee 0
		0x41, 0x0a,
		0x48,       // i32.lt_s
		0x0d, 0x00, // br_if 0
		0x0b,
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, nil)
	m.CodeSection[0].Locals = []wasm.LocalEntry{{Count: 1, Type: api.ValueTypeI32}}
	require.NoError(t, Validate(m))
}

func TestValidate_RejectsUntypedSelectOnRefs(t *testing.T) {
	body := []byte{
		0xd0, 0x70, // ref.null func
		0xd0, 0x70, // ref.null func
		0x41, 0x01, // i32.const 1
		0x1b, // select
		0x1a,
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, nil)
	err := Validate(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "select")
}

func TestValidate_ChecksSIMDShapes(t *testing.T) {
	// i32x4.add on an i32 operand must be rejected.
	body := []byte{
		0x41, 0x01, // i32.const 1
		0x41, 0x02, // i32.const 2
		0xfd, 0xae, 0x01, // i32x4.add
		0x1a,
		0x0b,
	}
	m := moduleWithBody(nil, nil, body, nil)
	require.Error(t, Validate(m))
}

func TestValidate_RejectsOverlongFunction(t *testing.T) {
	body := make([]byte, 0, maxInstructionsPerFunction+2)
	for i := 0; i <= maxInstructionsPerFunction; i++ {
		body = append(body, 0x01) // nop
	}
	body = append(body, 0x0b)
	m := moduleWithBody(nil, nil, body, nil)
	err := Validate(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "instructions")
}
