package proc

import (
	"github.com/jrmenzel/vimix/internal/cpu"
)

// curProc records, per calling goroutine's hart, the process that hart
// is currently running. Guarded by the fact that only the scheduler
// goroutine for a given hart ever assigns to its own slot.
var curProc [cpu.MaxHarts]*Proc_t

// Current returns the process running on the calling hart, or nil if
// the hart is idle in its scheduler loop.
func Current(hartID int) *Proc_t { return curProc[hartID] }

// RunScheduler is one hart's scheduler loop (spec.md §4.6): it scans the
// table for a Runnable entry, claims its lock long enough to mark it
// Running, hands it the hart via a channel, and waits for it to yield
// back before looping. stop is polled between rounds so tests can
// terminate a scheduler goroutine cleanly.
//
// Unlike the original, which holds p->lock across the raw register
// context_switch (safe because the switch is a single flow of control
// on one physical core), this scheduler loop and the resumed process
// run as two distinct goroutines rendezvousing on a channel. Holding a
// Lock_t across that rendezvous would hand a lock acquired by one
// goroutine to be released by another, which spinlock's same-hart
// bookkeeping does not support - and would deadlock this very loop's
// next pass over the same slot, since it re-acquires p.lk to read
// p.State. So the lock is instead fully released before the handoff and
// re-acquired by whichever side needs to touch process state next,
// exactly the way forkret re-acquires and then immediately drops it on
// the new process's side.
//
// Each hart's goroutine binds its own affinity once, up front; the
// process goroutine this loop resumes rebinds to hartID on every handoff
// via resumeCh, since the same process can be resumed by a different
// hart from one round to the next.
func (t *Table) RunScheduler(hartID int, stop func() bool) {
	cpu.SetHartAffinity(hartID)
	for !stop() {
		ran := false
		for _, p := range t.procs {
			p.lk.Lock()
			if p.State != Runnable {
				p.lk.Unlock()
				continue
			}
			p.State = Running
			curProc[hartID] = p
			p.lk.Unlock()
			ran = true

			if !p.started {
				p.started = true
				go func(p *Proc_t) {
					cpu.SetHartAffinity(<-p.resumeCh)
					p.entry(p) // entry calls Exit as its last act and returns
					p.yieldCh <- struct{}{}
				}(p)
			}
			p.resumeCh <- hartID
			<-p.yieldCh

			curProc[hartID] = nil
		}
		if !ran {
			// nothing runnable this round; let other goroutines progress
			// rather than spinning the host CPU.
			yieldHost()
		}
	}
}

// Sched hands control back to the scheduler goroutine that resumed this
// process, blocking until some hart resumes it again. Must be called
// with p.State already changed away from Running and p.lk already
// released by the caller: the channel rendezvous is a genuine handoff
// between two goroutines, not a single flow of control the way the
// original's swtch is, so holding a lock across it would deadlock
// RunScheduler's next attempt to lock p.lk and read p.State. Sched does
// not touch p.lk itself; a caller that needs it held after resuming
// must reacquire it explicitly, as sleep.Sleep and Yield do. On return,
// the calling goroutine's hart affinity has been rebound to whichever
// hart resumed it.
func Sched(p *Proc_t) {
	if p.State == Running {
		panic("proc.Sched: called while still Running")
	}
	p.yieldCh <- struct{}{}
	cpu.SetHartAffinity(<-p.resumeCh)
}

// Yield voluntarily gives up the hart for one scheduling round.
func Yield(p *Proc_t) {
	p.lk.Lock()
	p.State = Runnable
	p.lk.Unlock()
	Sched(p)
}
