// Package sleep implements the cooperative sleep/wakeup primitive of
// spec.md §4.4 and the sleep-lock built on top of it. Grounded on
// biscuit's main.go sleep-channel plumbing (proc_t's waitstate,
// cond_t-style rendezvous around the allprocs table) generalized to a
// table-scanning wakeup instead of biscuit's direct goroutine wakeup,
// since spec.md requires a single process table scan under the
// sleeper's own lock rather than per-channel goroutine parking.
package sleep

import (
	"github.com/jrmenzel/vimix/internal/spinlock"
)

// Chan is an opaque sleep-channel token. Any comparable value works;
// callers typically use the address of some piece of state (a buffer,
// a log, a process) cast to this type.
type Chan uintptr

// Sleeper is the subset of process behavior sleep/wakeup needs. proc.Proc_t
// implements this; kept as an interface here so internal/sleep does not
// import internal/proc (which itself will need to import internal/sleep).
type Sleeper interface {
	Lock() *spinlock.Lock_t
	SetChan(Chan)
	Chan() Chan
	SetSleeping()
	SetRunnable()
	IsSleeping() bool
}

// Table scans every live process for a wakeup match. proc.Table implements
// this.
type Table interface {
	ForEach(func(Sleeper))
}

// Sleep is invoked with lk held. It acquires p's own lock, releases lk,
// records chan, marks p Sleeping, and yields to the scheduler; on return
// it re-acquires lk. yield must context-switch away and must not return
// until some wakeup(chan) call has made p Runnable again and the
// scheduler has resumed it.
func Sleep(p Sleeper, chan_ Chan, lk *spinlock.Lock_t, yield func()) {
	plk := p.Lock()
	if lk != plk {
		plk.Lock()
	}

	p.SetChan(chan_)
	p.SetSleeping()

	// Both locks are fully released before yielding. yield hands this
	// goroutine off to a scheduler goroutine on another hart and parks
	// until some future Wakeup marks p Runnable and a (possibly
	// different) scheduler resumes it; holding plk across that handoff
	// would deadlock both RunScheduler's next pass over this slot and
	// Wakeup itself, since each needs to lock plk to touch p's state
	// while it sleeps (see proc.Sched).
	plk.Unlock()
	if lk != plk {
		lk.Unlock()
	}

	yield()

	plk.Lock()
	p.SetChan(0)
	plk.Unlock()
	lk.Lock()
}

// Wakeup scans the table and, for every process Sleeping on chan_,
// transitions it to Runnable under that process's own lock, never
// holding more than one process lock at a time.
func Wakeup(t Table, chan_ Chan) {
	t.ForEach(func(p Sleeper) {
		plk := p.Lock()
		plk.Lock()
		if p.IsSleeping() && p.Chan() == chan_ {
			p.SetRunnable()
		}
		plk.Unlock()
	})
}
