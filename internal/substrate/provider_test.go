package substrate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBudget_ChildComposesHierarchically(t *testing.T) {
	root := NewBudget("root", 100)
	child, err := root.Child("child", 60)
	require.NoError(t, err)
	require.Equal(t, uint(60), root.Current())

	_, err = root.Child("too-big", 50)
	require.Error(t, err)

	require.NoError(t, child.Acquire(60))
	err = child.Acquire(1)
	require.Error(t, err)
}

func TestBudget_ReleaseRestoresCapacity(t *testing.T) {
	b := NewBudget("b", 10)
	require.NoError(t, b.Acquire(10))
	require.Error(t, b.Acquire(1))
	b.Release(5)
	require.NoError(t, b.Acquire(5))
}

func TestStaticPool_AcquireRespectsCapacity(t *testing.T) {
	p := NewStaticPool(16, nil)
	h1, err := p.Acquire(10)
	require.NoError(t, err)
	require.Len(t, p.Bytes(h1), 10)

	_, err = p.Acquire(10)
	require.Error(t, err)

	p.Release(h1)
	require.Equal(t, uint(16), p.Available()+10) // bump pointer doesn't rewind; budget accounting does
}

func TestStaticPool_BudgetTracksAcrossPools(t *testing.T) {
	budget := NewBudget("pool", 8)
	p := NewStaticPool(1024, budget)
	_, err := p.Acquire(8)
	require.NoError(t, err)
	_, err = p.Acquire(1)
	require.Error(t, err, "budget ceiling should bind even though the pool itself has room")
}

func TestStandardBudgetLayout_SplitsRoot(t *testing.T) {
	l, err := NewStandardBudgetLayout(1000)
	require.NoError(t, err)
	require.Equal(t, uint(250), l.OperandStack.Limit())
	require.Equal(t, uint(100), l.CallFrames.Limit())
	require.Equal(t, uint(400), l.LinearMemory.Limit())
	require.Equal(t, uint(50), l.Tables.Limit())
	require.Equal(t, uint(150), l.DecodedModule.Limit())
}
