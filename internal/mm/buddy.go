// Package mm implements the physical page allocator of spec.md §4.2: a
// buddy allocator over fixed-size pages (orders 0..9, 4 KiB..2 MiB) with
// a family of slab caches on top for sub-page objects. Grounded on
// biscuit's physmem free-list (main.go's `physmem.freei`/`pgs[i].nexti`
// singly-linked free list and `pgcount()`/`refup`/`refdown` reference
// counting idiom), generalized from biscuit's single free list (no
// buddy merging, no size classes) to the order-indexed buddy scheme
// spec.md calls for.
package mm

import (
	"fmt"
	"sync"

	"github.com/jrmenzel/vimix/internal/common"
)

const (
	MaxOrder = 9 // 2^9 pages = 2 MiB
	PGSIZE   = common.PGSIZE
)

// page is one 4 KiB unit of the arena. order is the order of the free
// block this page currently heads (only meaningful when the page is the
// head of a free block); next/prev link the free list for that order.
type page struct {
	order int
	free  bool
	next  int // index, -1 = end
	prev  int
}

// Allocator is a buddy allocator over a byte arena. It owns the backing
// storage entirely (there is no real physical RAM to describe), so
// Pa_t values it hands out are offsets into Arena rather than real
// machine physical addresses; the vm package treats them opaquely.
type Allocator struct {
	mu    sync.Mutex
	Arena []byte
	pages []page
	free  [MaxOrder + 1]int // head index per order, -1 = empty
	npg   int
}

// New creates an allocator over npages physical pages (must be a
// multiple of 2^MaxOrder for the initial free list to be exact; any
// remainder is carved into progressively smaller blocks, same as a real
// buddy allocator initializing over non-power-of-two RAM).
func New(npages int) *Allocator {
	if npages <= 0 {
		panic("mm.New: npages must be positive")
	}
	a := &Allocator{
		Arena: make([]byte, npages*PGSIZE),
		pages: make([]page, npages),
		npg:   npages,
	}
	for i := range a.free {
		a.free[i] = -1
	}
	// Carve the arena into the largest aligned blocks that fit, highest
	// order first, matching how a real buddy allocator bootstraps over
	// an arbitrary-sized region.
	i := 0
	for i < npages {
		order := MaxOrder
		for order > 0 {
			sz := 1 << order
			if i%sz == 0 && i+sz <= npages {
				break
			}
			order--
		}
		a.pushFree(i, order)
		i += 1 << order
	}
	return a
}

func (a *Allocator) pushFree(idx, order int) {
	a.pages[idx].order = order
	a.pages[idx].free = true
	head := a.free[order]
	a.pages[idx].next = head
	a.pages[idx].prev = -1
	if head != -1 {
		a.pages[head].prev = idx
	}
	a.free[order] = idx
}

func (a *Allocator) popFree(idx, order int) {
	p := &a.pages[idx]
	if p.prev != -1 {
		a.pages[p.prev].next = p.next
	} else {
		a.free[order] = p.next
	}
	if p.next != -1 {
		a.pages[p.next].prev = p.prev
	}
	p.free = false
}

// AllocPages pops a free block of the requested order, splitting the
// next higher order if necessary (spec.md §4.2). zero fills the result
// with zeros in cache-friendly word writes.
func (a *Allocator) AllocPages(order int, zero bool) (common.Pa_t, bool) {
	if order < 0 || order > MaxOrder {
		panic(fmt.Sprintf("mm: bad order %d", order))
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	o := order
	for o <= MaxOrder && a.free[o] == -1 {
		o++
	}
	if o > MaxOrder {
		return 0, false
	}
	idx := a.free[o]
	a.popFree(idx, o)
	// split down to the requested order
	for o > order {
		o--
		buddy := idx ^ (1 << o)
		a.pushFree(buddy, o)
	}
	a.pages[idx].order = order
	a.pages[idx].free = false

	pa := common.Pa_t(idx * PGSIZE)
	if zero {
		a.zeroPages(idx, order)
	}
	return pa, true
}

func (a *Allocator) zeroPages(idx, order int) {
	n := (1 << order) * PGSIZE
	base := idx * PGSIZE
	buf := a.Arena[base : base+n]
	for i := range buf {
		buf[i] = 0
	}
}

// FreePages returns a previously allocated block to the free lists,
// re-coalescing with its buddy by XOR-ing the order bit, same as the
// classic buddy-free algorithm.
func (a *Allocator) FreePages(pa common.Pa_t, order int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := int(pa) / PGSIZE
	if idx < 0 || idx >= a.npg {
		panic("mm.FreePages: address outside arena")
	}
	if a.pages[idx].free {
		panic("mm.FreePages: double free")
	}
	o := order
	for o < MaxOrder {
		buddy := idx ^ (1 << o)
		if buddy+1<<o > a.npg || !a.pages[buddy].free || a.pages[buddy].order != o {
			break
		}
		a.popFree(buddy, o)
		if buddy < idx {
			idx = buddy
		}
		o++
	}
	a.pushFree(idx, o)
}

// Bytes returns the byte slice backing a physical page range, the
// stand-in for the kernel's direct map of physical RAM (spec.md §3
// page-table invariant (iii)).
func (a *Allocator) Bytes(pa common.Pa_t, n int) []byte {
	off := int(pa)
	if off < 0 || off+n > len(a.Arena) {
		panic("mm.Bytes: out of range")
	}
	return a.Arena[off : off+n]
}

// FreePageCount is used by sysfs to expose allocator occupancy as a
// filesystem entry (SPEC_FULL.md §5), not as a metrics subsystem.
func (a *Allocator) FreePageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for o := 0; o <= MaxOrder; o++ {
		n := 0
		for i := a.free[o]; i != -1; i = a.pages[i].next {
			n++
		}
		total += n * (1 << o)
	}
	return total
}
