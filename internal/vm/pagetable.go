package vm

import (
	"fmt"

	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/mm"
)

// VM binds the page-table walker to a physical-page source. Every
// pagetable (kernel or per-process) is a tree of pages allocated from
// the same mm.Allocator that backs ordinary physical memory, matching
// spec.md §3 "Page table" (a tree of fixed-size page-sized tables).
type VM struct {
	Alloc  *mm.Allocator
	Levels int // Sv39Levels or Sv32Levels
}

func New(alloc *mm.Allocator, levels int) *VM {
	if levels != Sv39Levels && levels != Sv32Levels {
		panic("vm.New: unsupported level count")
	}
	return &VM{Alloc: alloc, Levels: levels}
}

func (v *VM) readPTE(table common.Pa_t, idx int) Pte {
	b := v.Alloc.Bytes(table, common.PGSIZE)
	off := idx * 8
	u := uint64(0)
	for i := 7; i >= 0; i-- {
		u = u<<8 | uint64(b[off+i])
	}
	return Pte(u)
}

func (v *VM) writePTE(table common.Pa_t, idx int, pte Pte) {
	b := v.Alloc.Bytes(table, common.PGSIZE)
	off := idx * 8
	u := uint64(pte)
	for i := 0; i < 8; i++ {
		b[off+i] = byte(u)
		u >>= 8
	}
}

// NewPagetable allocates an empty, zeroed top-level page table.
func (v *VM) NewPagetable() common.Pa_t {
	pa, ok := v.Alloc.AllocPages(0, true)
	if !ok {
		panic("vm.NewPagetable: out of memory")
	}
	return pa
}

// Walk descends the tree by 9-bit indices, allocating and zeroing
// intermediate tables when alloc is true and mapping them as non-leaf
// valid entries. Returns the table+index of the leaf entry, or
// ok == false if alloc == false and the path is absent (spec.md §4.3).
func (v *VM) Walk(root common.Pa_t, va uint64, alloc bool) (table common.Pa_t, idx int, ok bool) {
	table = root
	for level := v.Levels - 1; level > 0; level-- {
		idx = vpnAt(va, level)
		pte := v.readPTE(table, idx)
		if pte.Valid() {
			if pte.Leaf() {
				panic("vm.Walk: superpage blocks further descent")
			}
			table = pte.PPN()
			continue
		}
		if !alloc {
			return 0, 0, false
		}
		child, ok2 := v.Alloc.AllocPages(0, true)
		if !ok2 {
			return 0, 0, false
		}
		v.writePTE(table, idx, mkpte(child, PteV))
		table = child
	}
	idx = vpnAt(va, 0)
	return table, idx, true
}

// Map installs a leaf mapping for [va, va+size). va and size must be
// page aligned and size > 0; overlap with an existing leaf or an
// allocation failure while walking is a fatal error (spec.md §4.3).
// A 2 MiB super-page leaf is created when both va and size are
// naturally 2 MiB aligned.
func (v *VM) Map(root common.Pa_t, va uint64, pa common.Pa_t, size uint64, perm int) {
	if va%common.PGSIZE != 0 || size == 0 || size%common.PGSIZE != 0 {
		panic("vm.Map: unaligned va/size")
	}
	const superSize = 1 << (common.PGSHIFT + levelBits)
	for off := uint64(0); off < size; {
		if v.Levels == Sv39Levels && va%superSize == 0 && pa%superSize == 0 && size-off >= superSize {
			v.mapSuper(root, va, pa, perm)
			off += superSize
			va += superSize
			pa += superSize
			continue
		}
		table, idx, ok := v.Walk(root, va, true)
		if !ok {
			panic("vm.Map: out of memory walking page table")
		}
		if v.readPTE(table, idx).Valid() {
			panic(fmt.Sprintf("vm.Map: remap of va %#x", va))
		}
		v.writePTE(table, idx, mkpte(pa, perm|PteV))
		off += common.PGSIZE
		va += common.PGSIZE
		pa += common.PGSIZE
	}
}

func (v *VM) mapSuper(root common.Pa_t, va uint64, pa common.Pa_t, perm int) {
	table := root
	for level := v.Levels - 1; level > 1; level-- {
		idx := vpnAt(va, level)
		pte := v.readPTE(table, idx)
		if pte.Valid() {
			table = pte.PPN()
			continue
		}
		child, ok := v.Alloc.AllocPages(0, true)
		if !ok {
			panic("vm.mapSuper: out of memory")
		}
		v.writePTE(table, idx, mkpte(child, PteV))
		table = child
	}
	idx := vpnAt(va, 1)
	if v.readPTE(table, idx).Valid() {
		panic(fmt.Sprintf("vm.mapSuper: remap of va %#x", va))
	}
	v.writePTE(table, idx, mkpte(pa, perm|PteV))
}

// Unmap walks the tree, requires the leaf to be present, optionally
// frees the underlying physical page, and clears the entry.
func (v *VM) Unmap(root common.Pa_t, va uint64, free bool) {
	if va%common.PGSIZE != 0 {
		panic("vm.Unmap: unaligned va")
	}
	table, idx, ok := v.Walk(root, va, false)
	if !ok {
		panic(fmt.Sprintf("vm.Unmap: unmap of unmapped va %#x", va))
	}
	pte := v.readPTE(table, idx)
	if !pte.Valid() || !pte.Leaf() {
		panic(fmt.Sprintf("vm.Unmap: not a leaf at va %#x", va))
	}
	if free {
		v.Alloc.FreePages(pte.PPN(), 0)
	}
	v.writePTE(table, idx, 0)
}

// Lookup returns the leaf PTE for va, or ok=false if unmapped.
func (v *VM) Lookup(root common.Pa_t, va uint64) (Pte, bool) {
	table, idx, ok := v.Walk(root, va, false)
	if !ok {
		return 0, false
	}
	pte := v.readPTE(table, idx)
	if !pte.Valid() {
		return 0, false
	}
	return pte, true
}

// FreePagetable recursively frees every page-table page in the tree
// (not the leaves' physical pages, which callers free separately per
// spec.md §4.6 process teardown), mirroring the teacher's recursive
// walker used at process exit.
func (v *VM) FreePagetable(root common.Pa_t) {
	v.freeLevel(root, v.Levels-1)
}

// FreeUserMem unmaps and frees every user page over [0, sz), the half
// of process teardown FreePagetable deliberately leaves to the caller
// (spec.md §4.6 process exit frees "the child's resources": trapframe,
// page table, *and* the address space those page-table leaves point
// at). sz must be page-aligned and every page in the range present,
// true of every address space this kernel builds (InitFirstProcess,
// Fork's CopyUserMem, and Exec's image+stack all map a contiguous
// run from VA 0).
func (v *VM) FreeUserMem(root common.Pa_t, sz uint64) {
	for va := uint64(0); va < sz; va += common.PGSIZE {
		v.Unmap(root, va, true)
	}
}

func (v *VM) freeLevel(table common.Pa_t, level int) {
	if level > 0 {
		for i := 0; i < (1 << levelBits); i++ {
			pte := v.readPTE(table, i)
			if pte.Valid() && !pte.Leaf() {
				v.freeLevel(pte.PPN(), level-1)
			}
		}
	}
	v.Alloc.FreePages(table, 0)
}
