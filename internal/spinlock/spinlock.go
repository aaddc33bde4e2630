// Package spinlock implements the memory-ordered spinlock and the
// per-hart interrupt-disable stack described by spec.md §4.1. It is
// grounded on biscuit's convention of a named atomic flag guarded by
// acquire/release ordering, generalized here from biscuit's x86
// cli/sti pair to the RISC-V sstatus.SIE bit the spec targets.
package spinlock

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// HartState is the per-hart bookkeeping spec.md §3 calls the "two-field
// interrupt disable stack": a nesting depth and the interrupt-enabled
// flag captured when the depth transitions 0->1.
type HartState struct {
	IntrDepth   int
	IntrEnabled bool // the enabled-state to restore when depth returns to 0
}

// HartOps lets a spinlock talk to whatever represents "the current
// hart" without importing the proc/trap packages (which import
// spinlock), matching the dependency direction of spec.md's layering
// table (atomics/spinlocks sit below everything else).
type HartOps interface {
	HartID() int
	Hart(id int) *HartState
	InterruptsEnabled() bool
	SetInterrupts(enabled bool)
}

var ops HartOps

// Bind installs the hart accessor used by every Lock/Unlock call. Called
// once during boot.
func Bind(o HartOps) { ops = o }

// Lock_t is a named spinlock: an atomic flag plus the id of the holding
// hart (stored as hart id + 1, so the zero value means free even though
// harts are numbered from 0).
type Lock_t struct {
	name  string
	flag  uint32
	hart  int32 // atomic: id of holder + 1, 0 = free
}

func New(name string) *Lock_t {
	return &Lock_t{name: name}
}

// Lock disables interrupts on the current hart (recording the prior
// enabled-state only on the 0->1 transition of the nesting counter),
// then spins with acquire ordering until it wins the flag.
func (l *Lock_t) Lock() {
	pushcli()
	if l.HeldByThisHart() {
		panic(fmt.Sprintf("spinlock %q: reacquire by same hart", l.name))
	}
	for !atomic.CompareAndSwapUint32(&l.flag, 0, 1) {
		runtime.Gosched()
	}
	atomic.StoreInt32(&l.hart, int32(ops.HartID()+1))
}

// Unlock performs a release-store of the flag followed by a
// sequentially-consistent fence (implied here by the atomic store's
// ordering on the runtime's memory model, matching the "fence follows
// every unlock" rule of spec.md §4.1), then pops the interrupt-disable
// stack.
func (l *Lock_t) Unlock() {
	if !l.HeldByThisHart() {
		panic(fmt.Sprintf("spinlock %q: unlock not held", l.name))
	}
	atomic.StoreInt32(&l.hart, 0)
	atomic.StoreUint32(&l.flag, 0)
	popcli()
}

// HeldByThisHart is an unsynchronized read, used only by assertions and
// by the "may I sleep here?" check (spec.md §4.1 (iii)).
func (l *Lock_t) HeldByThisHart() bool {
	return atomic.LoadInt32(&l.hart) == int32(ops.HartID()+1)
}

func (l *Lock_t) Name() string { return l.name }

func pushcli() {
	enabled := ops.InterruptsEnabled()
	ops.SetInterrupts(false)
	h := ops.Hart(ops.HartID())
	if h.IntrDepth == 0 {
		h.IntrEnabled = enabled
	}
	h.IntrDepth++
}

func popcli() {
	h := ops.Hart(ops.HartID())
	if h.IntrDepth == 0 {
		panic("popcli: interrupt-disable stack underflow")
	}
	h.IntrDepth--
	if h.IntrDepth == 0 && h.IntrEnabled {
		ops.SetInterrupts(true)
	}
}

// Holding reports whether interrupts are disabled on the current hart,
// i.e. some spinlock discipline is in effect (spec.md §4.1 (ii)).
func Holding() bool {
	return ops.Hart(ops.HartID()).IntrDepth > 0
}
