package mm

import (
	"testing"

	"github.com/jrmenzel/vimix/internal/common"
	"github.com/stretchr/testify/require"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	a := New(512) // 512 * 4KiB = 2MiB, exactly one order-9 block
	pa, ok := a.AllocPages(0, true)
	require.True(t, ok)
	buf := a.Bytes(pa, PGSIZE)
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
	before := a.FreePageCount()
	a.FreePages(pa, 0)
	require.Equal(t, before+1, a.FreePageCount())
}

func TestBuddyCoalesce(t *testing.T) {
	a := New(512)
	full := a.FreePageCount()
	require.Equal(t, 512, full)

	pa0, ok := a.AllocPages(0, false)
	require.True(t, ok)
	pa1, ok := a.AllocPages(0, false)
	require.True(t, ok)
	require.NotEqual(t, pa0, pa1)
	require.Equal(t, full-2, a.FreePageCount())

	a.FreePages(pa0, 0)
	a.FreePages(pa1, 0)
	require.Equal(t, full, a.FreePageCount())

	// after freeing both buddies, a single order-1 allocation should
	// succeed immediately (proves they coalesced instead of staying as
	// two separate order-0 blocks).
	pa2, ok := a.AllocPages(1, false)
	require.True(t, ok)
	a.FreePages(pa2, 1)
	require.Equal(t, full, a.FreePageCount())
}

func TestAllocExhaustion(t *testing.T) {
	a := New(4)
	_, ok := a.AllocPages(MaxOrder, false)
	require.False(t, ok, "2MiB block cannot come from a 16KiB arena")
}

func TestSlabKmallocKfree(t *testing.T) {
	a := New(16)
	s := NewSlabAllocator(a)

	var addrs []common.Pa_t
	for i := 0; i < 100; i++ {
		pa, ok := s.Kmalloc(24)
		require.True(t, ok)
		addrs = append(addrs, pa)
	}
	seen := map[common.Pa_t]bool{}
	for _, a := range addrs {
		require.False(t, seen[a], "kmalloc returned overlapping object")
		seen[a] = true
	}
	for _, addr := range addrs {
		s.Kfree(addr)
	}
}

func TestKmallocLargeFallsBackToPage(t *testing.T) {
	a := New(4)
	s := NewSlabAllocator(a)
	pa, ok := s.Kmalloc(PGSIZE)
	require.True(t, ok)
	require.Zero(t, uintptr(pa)%PGSIZE, "oversize kmalloc must return a page-aligned block")
	s.Kfree(pa)
}
