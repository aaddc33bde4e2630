// Package vm implements the virtual memory manager of spec.md §4.3: a
// Sv39 (optionally Sv32) multi-level page-table walker, kernel/user
// mapping, and the checked copy-in/copy-out primitives the syscall
// surface uses to cross the user/kernel boundary. Grounded on
// biscuit's pmap walker (main.go's `pmap_lookup`, `dmap`/`dmap8` direct
// map, `kpmap()`), generalized from biscuit's 4-level x86 page tables to
// the 3-level Sv39 layout spec.md calls for, with PTE permission bits
// renamed to the RISC-V set (V/R/W/X/U/G/A/D in the low byte, physical
// page number above bit 10) instead of x86's P/W/U/PCD bits.
package vm

import "github.com/jrmenzel/vimix/internal/common"

// PTE flag bits, RISC-V Sv39 layout.
const (
	PteV = 1 << 0 // valid
	PteR = 1 << 1 // readable
	PteW = 1 << 2 // writable
	PteX = 1 << 3 // executable
	PteU = 1 << 4 // user-accessible
	PteG = 1 << 5 // global
	PteA = 1 << 6 // accessed
	PteD = 1 << 7 // dirty
)

const (
	pteFlagBits = 10
	ppnShift    = pteFlagBits
	levelBits   = 9
	levelMask   = (1 << levelBits) - 1
)

// Sv39Levels is the number of page-table levels for the 64-bit target;
// Sv32Levels is the optional 32-bit target's 2-level layout (spec.md
// §3 "Page table").
const (
	Sv39Levels = 3
	Sv32Levels = 2
)

type Pte uint64

func (p Pte) Valid() bool      { return p&PteV != 0 }
func (p Pte) Leaf() bool       { return p&(PteR|PteW|PteX) != 0 }
func (p Pte) Perm() int        { return int(p & 0x3ff) }
func (p Pte) PPN() common.Pa_t { return common.Pa_t(p>>ppnShift) << common.PGSHIFT }

func mkpte(ppn common.Pa_t, perm int) Pte {
	return Pte((uint64(ppn)>>common.PGSHIFT)<<ppnShift) | Pte(perm)
}

// vpnAt extracts the 9-bit index for the given page-table level (2 is
// the top level, 0 the bottom, matching Sv39's VPN[2]/VPN[1]/VPN[0]
// naming).
func vpnAt(va uint64, level int) int {
	shift := common.PGSHIFT + level*levelBits
	return int((va >> shift) & levelMask)
}
