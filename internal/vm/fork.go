package vm

import "github.com/jrmenzel/vimix/internal/common"

// CopyUserMem duplicates every mapped user page below sz from src into
// dst, preserving permissions, for fork's "copies user memory from
// parent to child" step (spec.md §4.6). Returns false (and leaves dst
// with whatever pages were copied so far, for the caller to tear down)
// if a source page is unexpectedly unmapped or an allocation fails.
func (v *VM) CopyUserMem(src, dst common.Pa_t, sz uint64) bool {
	for va := uint64(0); va < sz; va += common.PGSIZE {
		pte, ok := v.Lookup(src, va)
		if !ok {
			return false
		}
		newPa, ok := v.Alloc.AllocPages(0, false)
		if !ok {
			return false
		}
		srcPage := v.Alloc.Bytes(pte.PPN(), common.PGSIZE)
		dstPage := v.Alloc.Bytes(newPa, common.PGSIZE)
		copy(dstPage, srcPage)
		v.Map(dst, va, newPa, common.PGSIZE, pte.Perm()&^PteV)
	}
	return true
}
