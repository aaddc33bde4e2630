package vm

import (
	"testing"

	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/mm"
	"github.com/stretchr/testify/require"
)

func newTestVM(t *testing.T) (*VM, common.Pa_t) {
	t.Helper()
	a := mm.New(4096)
	v := New(a, Sv39Levels)
	root := v.NewPagetable()
	return v, root
}

func TestMapTranslateUnmap(t *testing.T) {
	v, root := newTestVM(t)
	pa, ok := v.Alloc.AllocPages(0, true)
	require.True(t, ok)

	const va = 0x1000
	v.Map(root, va, pa, common.PGSIZE, PteR|PteW|PteU)

	got, ok := v.Translate(root, va+10, false)
	require.True(t, ok)
	require.Equal(t, pa+10, got)

	_, ok = v.Translate(root, va+10, true)
	require.True(t, ok, "mapping is writable")

	v.Unmap(root, va, false)
	_, ok = v.Lookup(root, va)
	require.False(t, ok)
}

func TestTranslateRefusesNonUserMapping(t *testing.T) {
	v, root := newTestVM(t)
	pa, _ := v.Alloc.AllocPages(0, true)
	v.Map(root, 0x2000, pa, common.PGSIZE, PteR|PteW) // no PteU: kernel-only
	_, ok := v.Translate(root, 0x2000, false)
	require.False(t, ok, "copy-in/out must refuse non-user-accessible mappings")
}

func TestCopyInOutRoundTrip(t *testing.T) {
	v, root := newTestVM(t)
	pa, _ := v.Alloc.AllocPages(0, true)
	v.Map(root, 0x3000, pa, common.PGSIZE, PteR|PteW|PteU)

	msg := []byte("hello, kernel")
	require.Zero(t, v.CopyOut(root, 0x3000+16, msg))

	out := make([]byte, len(msg))
	require.Zero(t, v.CopyIn(root, out, 0x3000+16))
	require.Equal(t, msg, out)
}

func TestCopyInStrStopsAtNUL(t *testing.T) {
	v, root := newTestVM(t)
	pa, _ := v.Alloc.AllocPages(0, true)
	v.Map(root, 0x4000, pa, common.PGSIZE, PteR|PteW|PteU)

	require.Zero(t, v.CopyOut(root, 0x4000, []byte("abc\x00def")))
	s, err := v.CopyInStr(root, 0x4000, 64)
	require.Zero(t, err)
	require.Equal(t, "abc", s)
}

func TestCopyInStrMissingNULIsError(t *testing.T) {
	v, root := newTestVM(t)
	pa, _ := v.Alloc.AllocPages(0, true)
	v.Map(root, 0x5000, pa, common.PGSIZE, PteR|PteW|PteU)

	full := make([]byte, 16)
	for i := range full {
		full[i] = 'x'
	}
	require.Zero(t, v.CopyOut(root, 0x5000, full))
	_, err := v.CopyInStr(root, 0x5000, 16)
	require.NotZero(t, err)
}

func TestRemapIsFatal(t *testing.T) {
	v, root := newTestVM(t)
	pa, _ := v.Alloc.AllocPages(0, true)
	v.Map(root, 0x6000, pa, common.PGSIZE, PteR|PteU)
	require.Panics(t, func() {
		v.Map(root, 0x6000, pa, common.PGSIZE, PteR|PteU)
	})
}

func TestUnmapOfUnmappedIsFatal(t *testing.T) {
	v, root := newTestVM(t)
	require.Panics(t, func() {
		v.Unmap(root, 0x7000, false)
	})
}

func TestSuperpageAlignedMapping(t *testing.T) {
	v, root := newTestVM(t)
	const superSize = 1 << (common.PGSHIFT + levelBits)
	pa, ok := v.Alloc.AllocPages(9, true) // 2^9 pages = 2MiB
	require.True(t, ok)
	v.Map(root, superSize, pa, superSize, PteR|PteW|PteU)
	got, ok := v.Translate(root, superSize+100, false)
	require.True(t, ok)
	require.Equal(t, pa+100, got)
}

func TestBuildUserStackPushesArgvBelowGuard(t *testing.T) {
	v, root := newTestVM(t)
	const top = 0x10000
	argc, sp, err := v.BuildUserStack(root, top, []string{"echo", "OK"})
	require.Zero(t, err)
	require.Equal(t, 2, argc)
	require.Less(t, sp, uint64(top-common.PGSIZE))
	require.Zero(t, sp%16)

	// the guard page itself must fault: no mapping with PteU there
	guardVA := uint64(top - common.PGSIZE)
	_, ok := v.Translate(root, guardVA, false)
	require.False(t, ok)
}
