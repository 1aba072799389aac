package substrate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoundedVec_PushPopCapacity(t *testing.T) {
	v := NewBoundedVec[int](2)
	require.NoError(t, v.Push(1))
	require.NoError(t, v.Push(2))
	require.Error(t, v.Push(3))

	got, ok := v.Pop()
	require.True(t, ok)
	require.Equal(t, 2, got)
	require.Equal(t, 1, v.Len())
}

func TestBoundedStack_Peek(t *testing.T) {
	s := NewBoundedStack[string](4)
	require.NoError(t, s.Push("a"))
	require.NoError(t, s.Push("b"))
	top, ok := s.Peek()
	require.True(t, ok)
	require.Equal(t, "b", top)
	require.Equal(t, 2, s.Len())
}

func TestBoundedString_RejectsOverflow(t *testing.T) {
	_, err := NewBoundedString("hello", 3)
	require.Error(t, err)

	s, err := NewBoundedString("hi", 3)
	require.NoError(t, err)
	require.Equal(t, "hi", s.String())
}

func TestBoundedString_TruncatingIsRuneSafe(t *testing.T) {
	s := NewBoundedStringTruncating("héllo", 2) // 'é' is 2 bytes in UTF-8
	require.LessOrEqual(t, s.Len(), 2)
	require.True(t, len(s.String()) <= 2)
	require.Equal(t, "h", s.String()) // the lead byte of 'é' is dropped too
}

func TestBoundedMap_SetGetOverwrite(t *testing.T) {
	m := NewBoundedMap[string, int](2)
	require.NoError(t, m.Set("a", 1))
	require.NoError(t, m.Set("b", 2))
	require.Error(t, m.Set("c", 3))

	require.NoError(t, m.Set("a", 99)) // overwrite doesn't consume capacity
	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 99, v)
}
