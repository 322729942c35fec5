package umem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openheadend/upipe-go/umem"
)

func TestAllocSize(t *testing.T) {
	r := umem.Alloc(128)
	require.Equal(t, 128, r.Size())
	require.Len(t, r.Buffer(), 128)
}

func TestReallocShrinkPreservesPrefix(t *testing.T) {
	r := umem.Alloc(16)
	copy(r.Buffer(), []byte("0123456789abcdef"))
	require.True(t, r.Realloc(4))
	require.Equal(t, []byte("0123"), r.Buffer())
}

func TestReallocGrowPreservesPrefixAndZeroFills(t *testing.T) {
	r := umem.Alloc(4)
	copy(r.Buffer(), []byte("abcd"))
	require.True(t, r.Realloc(8))
	require.Equal(t, []byte("abcd\x00\x00\x00\x00"), r.Buffer())
}

func TestGrowOrCopyGrowsAndPreservesPrefix(t *testing.T) {
	r := umem.Alloc(4)
	copy(r.Buffer(), []byte("abcd"))
	out := umem.GrowOrCopy(r, 6)
	require.Equal(t, []byte("abcd\x00\x00"), out.Buffer())
}
