package region

import (
	"testing"

	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/stretchr/testify/require"
)

func TestRegionLifecycleZeroed(t *testing.T) {
	r, err := New(4096, Read|Write, true)
	require.NoError(t, err)
	for _, b := range r.Bytes() {
		require.Equal(t, byte(0), b)
	}
	r.Bytes()[0] = 42
	require.NoError(t, r.Close())
}

func TestRegionInvalidSize(t *testing.T) {
	_, err := New(0, Read, false)
	require.Error(t, err)
	require.Equal(t, nabi.KindInvalidArgs, nabi.KindOf(err))
}

func TestRegionRemapAndResize(t *testing.T) {
	r, err := New(4096, Read|Write, true)
	require.NoError(t, err)
	r.Bytes()[0] = 1
	require.NoError(t, r.Remap(Read))

	require.NoError(t, r.Resize(8192, true))
	require.Equal(t, 8192, r.Len())
	require.Equal(t, byte(1), r.Bytes()[0])
	require.NoError(t, r.Close())
}

func TestLazyRegionMapPageIdempotentAndZeroed(t *testing.T) {
	l, err := NewLazy(1<<20, 1<<16, Read|Write)
	require.NoError(t, err)
	defer l.Close()

	require.False(t, l.Committed(0))
	require.NoError(t, l.MapPage(0))
	require.True(t, l.Committed(0))
	for i := 0; i < 16; i++ {
		require.Equal(t, byte(0), l.Bytes()[i])
	}
	require.NoError(t, l.MapPage(0)) // idempotent
	l.Bytes()[0] = 9
	require.NoError(t, l.MapPage(0))
	require.Equal(t, byte(9), l.Bytes()[0]) // still committed, unchanged
}

func TestLazyRegionContainsVsLogicalRange(t *testing.T) {
	l, err := NewLazy(1<<20, 4096, Read|Write)
	require.NoError(t, err)
	defer l.Close()

	require.True(t, l.Contains(1<<19))
	require.False(t, l.InLogicalRange(1<<19))
	require.False(t, l.Contains(1 << 21))
}

func TestLazyRegionMapRangeAndResize(t *testing.T) {
	l, err := NewLazy(1<<20, 0, Read|Write)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.MapRange(0, 65536))
	require.True(t, l.Committed(0))
	require.True(t, l.Committed(65535))

	require.NoError(t, l.Resize(65536))
	require.Equal(t, 65536, l.Size())

	require.NoError(t, l.Resize(0))
	require.False(t, l.Committed(0))
}

func TestLazyRegionResizeBeyondMaxFails(t *testing.T) {
	l, err := NewLazy(4096, 0, Read|Write)
	require.NoError(t, err)
	defer l.Close()

	err = l.Resize(8192)
	require.Error(t, err)
	require.Equal(t, nabi.KindNoResources, nabi.KindOf(err))
}

func TestLazyRegionGrowFromPhysAddr(t *testing.T) {
	l, err := NewLazy(1<<20, 0, Read|Write)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.GrowFromPhysAddr(65536, 0xDEAD0000))
	require.Equal(t, 65536, l.Size())
	require.True(t, l.Committed(0))
}
