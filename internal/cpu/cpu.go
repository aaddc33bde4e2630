// Package cpu models the per-hart state of spec.md §3 "CPU state": the
// hart id, the currently running process (as an opaque handle so cpu
// does not import proc), the saved scheduler context, and the
// interrupt-disable stack that spinlock.HartOps needs. Grounded on
// biscuit's per-CPU bookkeeping (main.go's lap_id()/bsp_apic_id and
// runtime.Setncpu/Ap_setup), generalized from a single BSP field to a
// fixed table indexed by logical hart id.
package cpu

import (
	"sync"

	"github.com/jrmenzel/vimix/internal/spinlock"
)

// MaxHarts bounds the simulated multiprocessor; spec.md §5 calls for "N
// CPUs run concurrently" without fixing N.
const MaxHarts = 8

// Context is the cooperative-switch register save area (spec.md §3
// "saved scheduler context"). Only callee-saved state needs to survive
// a switch in the teacher's convention; modeled here as one slot per
// RISC-V callee-saved register (ra, sp, s0-s11).
type Context struct {
	Ra, Sp                                            uint64
	S0, S1, S2, S3, S4, S5, S6, S7, S8, S9, S10, S11 uint64
}

// Cpu_t is one hart's state.
type Cpu_t struct {
	ID   int
	Proc any // *proc.Proc_t; opaque to avoid an import cycle
	Sched Context

	hart        spinlock.HartState
	intrEnabled bool // live "are device interrupts currently enabled" flag
}

var (
	table [MaxHarts]*Cpu_t
	mu    sync.Mutex
	curHart func() int // maps the calling goroutine to a logical hart id
)

func init() {
	for i := range table {
		table[i] = &Cpu_t{ID: i}
	}
}

// BindCurrentHart installs the function used to map the calling
// goroutine to a logical hart id. The kernel boot sequence binds this to
// GoroutineAffinity, a goroutine-local lookup (see affinity.go), since
// Go, unlike the teacher's forked runtime, has no native concept of "the
// CPU this goroutine is pinned to".
func BindCurrentHart(f func() int) {
	mu.Lock()
	defer mu.Unlock()
	curHart = f
}

// Mine returns the Cpu_t for the calling goroutine's hart.
func Mine() *Cpu_t { return table[curHart()] }

func Get(id int) *Cpu_t { return table[id] }

// hartOps adapts the cpu table to spinlock.HartOps.
type hartOps struct{}

func (hartOps) HartID() int { return curHart() }

func (hartOps) Hart(id int) *spinlock.HartState { return &table[id].hart }

func (hartOps) InterruptsEnabled() bool {
	return table[curHart()].intrEnabled
}

func (hartOps) SetInterrupts(enabled bool) {
	table[curHart()].intrEnabled = enabled
}

// BindSpinlocks wires this package's hart table into the spinlock
// package. Called once at boot, mirroring runtime.Install_traphandler's
// one-shot wiring in the teacher's main().
func BindSpinlocks() {
	spinlock.Bind(hartOps{})
}
