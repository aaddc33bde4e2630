package trap

import (
	"unsafe"

	"github.com/jrmenzel/vimix/internal/sleep"
	"github.com/jrmenzel/vimix/internal/spinlock"
)

// Clock counts timer interrupts and wakes any process sleeping on its
// tick channel (spec.md §4.5 device-interrupt fan-out; grounded on
// trap.c's g_tickslock/g_ticks/clockintr). Only the hart designated
// hart 0 advances it, mirroring clockintr's "if
// (smp_processor_id() == 0)" gate in interrupt_handler.
type Clock struct {
	mu    *spinlock.Lock_t
	ticks uint64
	table sleep.Table
}

// NewClock creates a tick counter that wakes sleepers in table
// (typically the process table) on every tick.
func NewClock(table sleep.Table) *Clock {
	return &Clock{mu: spinlock.New("time"), table: table}
}

// Tick increments the counter and wakes everyone sleeping on Chan(),
// matching clockintr's spin_lock/g_ticks++/wakeup/spin_unlock.
func (c *Clock) Tick() {
	c.mu.Lock()
	c.ticks++
	c.mu.Unlock()
	sleep.Wakeup(c.table, c.Chan())
}

// Ticks returns the current tick count.
func (c *Clock) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Chan is the stable wakeup-channel token sleepers block on to wait
// for the next tick, matching the original's use of &g_ticks as its
// own wait channel.
func (c *Clock) Chan() sleep.Chan { return sleep.Chan(uintptr(unsafe.Pointer(c))) }
