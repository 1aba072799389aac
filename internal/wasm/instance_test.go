package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/substrate"
)

func TestMemoryInstance_GrowRespectsMax(t *testing.T) {
	pool := substrate.NewStaticPool(10*wasmPageSize, nil)
	mem, err := NewMemoryInstance(pool, 1, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(1), mem.Size())

	prev, ok := mem.Grow(1)
	require.True(t, ok)
	require.Equal(t, uint32(1), prev)
	require.Equal(t, uint32(2), mem.Size())

	_, ok = mem.Grow(1)
	require.False(t, ok, "growth beyond declared max must fail, not trap")
}

func TestTableInstance_InitialElementsAreNullRef(t *testing.T) {
	tbl := NewTableInstance(api.ValueTypeFuncref, 3, 8)
	require.Equal(t, 3, tbl.Refs.Len())
	v, ok := tbl.Refs.Get(0)
	require.True(t, ok)
	require.Equal(t, int64(-1), v)
}

func TestModule_TypeOfFunction_AccountsForImports(t *testing.T) {
	m := &Module{
		TypeSection: []api.FuncType{
			{Params: []api.ValueType{api.ValueTypeI32}},
			{Results: []api.ValueType{api.ValueTypeI64}},
		},
		ImportSection: []Import{
			{Kind: ImportKindFunc, DescFuncTypeIndex: 0},
		},
		FunctionSection: []Index{1},
	}
	ft, ok := m.TypeOfFunction(0)
	require.True(t, ok)
	require.Equal(t, []api.ValueType{api.ValueTypeI32}, ft.Params)

	ft, ok = m.TypeOfFunction(1)
	require.True(t, ok)
	require.Equal(t, []api.ValueType{api.ValueTypeI64}, ft.Results)

	_, ok = m.TypeOfFunction(2)
	require.False(t, ok)
}
