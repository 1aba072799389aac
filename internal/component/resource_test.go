package component

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/api"
)

func TestResourceTable_NewGetDrop(t *testing.T) {
	rt := NewResourceTable(4)

	h, err := rt.New(7, Own)
	require.NoError(t, err)
	require.Equal(t, Handle(1), h)

	r, err := rt.Get(h)
	require.NoError(t, err)
	require.Equal(t, uint32(7), r.TypeIdx)
	require.Equal(t, Own, r.Ownership)
	require.False(t, r.Dropped)

	require.NoError(t, rt.Drop(h))

	_, err = rt.Get(h)
	require.Error(t, err)
	apiErr, ok := err.(*api.Error)
	require.True(t, ok)
	require.Equal(t, api.ErrorCategoryValidation, apiErr.Category)
	require.Equal(t, api.CodeInvalidResourceHandle, apiErr.Code)
}

func TestResourceTable_DoubleDropRejected(t *testing.T) {
	rt := NewResourceTable(4)
	h, err := rt.New(1, Borrow)
	require.NoError(t, err)
	require.NoError(t, rt.Drop(h))
	require.Error(t, rt.Drop(h))
}

func TestResourceTable_UnknownHandleRejected(t *testing.T) {
	rt := NewResourceTable(4)
	_, err := rt.Get(Handle(999))
	require.Error(t, err)
	require.Error(t, rt.Drop(Handle(0)))
}

func TestResourceTable_CapacityExceeded(t *testing.T) {
	rt := NewResourceTable(1)
	_, err := rt.New(1, Own)
	require.NoError(t, err)
	_, err = rt.New(2, Own)
	require.Error(t, err)
	apiErr, ok := err.(*api.Error)
	require.True(t, ok)
	require.Equal(t, api.ErrorCategoryCapacity, apiErr.Category)
}

func TestInterceptStrategy_DropAndRep(t *testing.T) {
	table := NewResourceTable(4)
	h, err := table.New(3, Own)
	require.NoError(t, err)

	strat := NewInterceptStrategy(table)

	data, handled, err := strat.InterceptResourceOperation(uint32(h), "rep")
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, []byte{3, 0, 0, 0}, data)

	_, handled, err = strat.InterceptResourceOperation(uint32(h), "drop")
	require.NoError(t, err)
	require.True(t, handled)

	_, handled, err = strat.InterceptResourceOperation(uint32(h), "rep")
	require.Error(t, err)
	require.True(t, handled)
}

func TestInterceptStrategy_UnknownOperationNotHandled(t *testing.T) {
	strat := NewInterceptStrategy(NewResourceTable(4))
	data, handled, err := strat.InterceptResourceOperation(1, "borrow")
	require.NoError(t, err)
	require.False(t, handled)
	require.Nil(t, data)
}
