package proc

import (
	"unsafe"

	"github.com/jrmenzel/vimix/internal/sleep"
)

// Reparent gives pp's children to the table's initial process, waking
// it for each one. Caller must hold t.WaitLock.
func (t *Table) Reparent(pp *Proc_t) {
	for _, c := range t.procs {
		if c.Parent == pp {
			c.Parent = t.Initial
			sleep.Wakeup(t, sleep.Chan(procAddr(t.Initial)))
		}
	}
}

// Exit closes every open file, releases the cwd inode (the caller is
// expected to have already done so inside a log transaction per
// spec.md §4.11, since proc does not import the filesystem), reparents
// children to the initial process, records status, and transitions to
// Zombie under WaitLock. It does not itself invoke the scheduler; the
// caller (the process's own Entry) must return immediately afterward so
// its goroutine unwinds and hands the hart back via RunScheduler's
// wrapper (spec.md §4.6 "enters the scheduler without returning").
func (t *Table) Exit(p *Proc_t, status int) {
	for i := range p.Files {
		p.Files[i] = nil
	}
	p.Cwd = nil

	t.WaitLock.Lock()
	t.Reparent(p)
	if p.Parent != nil {
		sleep.Wakeup(t, sleep.Chan(procAddr(p.Parent)))
	}

	p.lk.Lock()
	p.Xstate = status
	p.State = Zombie
	p.lk.Unlock()

	t.WaitLock.Unlock()
}

// procAddr gives a stable, comparable wakeup-channel token for a
// process, matching the original's use of the process pointer itself as
// wait()'s sleep channel. Table slots are allocated once and never
// relocated, so the pointer is stable for the process's entire lifetime.
func procAddr(p *Proc_t) uintptr {
	if p == nil {
		return 0
	}
	return uintptr(unsafe.Pointer(p))
}
