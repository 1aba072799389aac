package substrate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksum_DeterministicAndOrderSensitive(t *testing.T) {
	a := NewChecksum()
	a.Write([]byte("hello"))
	a.Write([]byte("world"))

	b := NewChecksum()
	b.Write([]byte("helloworld"))
	require.Equal(t, a.Sum(), b.Sum(), "incremental writes must match a single write of the concatenation")

	c := NewChecksum()
	c.Write([]byte("worldhello"))
	require.NotEqual(t, a.Sum(), c.Sum(), "checksum must be order-sensitive")
}

func TestChecksum_EmptyMatchesOffsetBasis(t *testing.T) {
	c := NewChecksum()
	require.Equal(t, uint32(fnv1aOffset), c.Sum())
}
