// Package proc implements the process table, scheduler, and process
// lifecycle of spec.md §4.6: a fixed-size array of process slots, a
// global wait_lock ordered above every per-process lock, and a
// cooperative scheduler loop per hart.
//
// Grounded on original_source/kernel/kernel/proc.c (g_process_list,
// alloc_process/free_process, fork/exit/wait, sched/yield/forkret) and
// on biscuit's main.go proc_new (the pid counter, fd-table dup
// convention). Since this module has no real CPU registers to save and
// restore, context_switch is reimplemented as a channel handoff between
// the hart's scheduler goroutine and the process's own goroutine: the
// scheduler sends on resumeCh to run the process up to its next Sched
// call, which sends on yieldCh and blocks on resumeCh again. This plays
// the same role as context_switch(&p->context, &cpu->context) in the
// original but uses Go's native concurrency primitive instead of
// hand-written assembly, matching the "kernel-in-userspace" strategy
// spec.md's REDESIGN FLAGS call for.
package proc

import (
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/cpu"
	"github.com/jrmenzel/vimix/internal/sleep"
	"github.com/jrmenzel/vimix/internal/spinlock"
	"github.com/jrmenzel/vimix/internal/vm"
)

type State int

const (
	Unused State = iota
	Embryo
	Sleeping
	Runnable
	Running
	Zombie
)

func (s State) String() string {
	switch s {
	case Unused:
		return "unused"
	case Embryo:
		return "embryo"
	case Sleeping:
		return "sleeping"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Zombie:
		return "zombie"
	default:
		return "?"
	}
}

// Entry is the body of a process's goroutine: the code that runs "in
// user mode" between scheduler handoffs. It receives the process so it
// can call Yield/Exit on itself. Real user-mode execution is out of
// scope (spec.md §1); tests and cmd/kernel supply entries that model
// syscalls directly.
type Entry func(p *Proc_t)

// Proc_t is one process-table slot (spec.md §3 "Process").
type Proc_t struct {
	lk *spinlock.Lock_t

	Pid     int
	Parent  *Proc_t
	State   State
	Name    string
	Killed  bool
	Xstate  int
	chanTok sleep.Chan

	Pagetable   common.Pa_t
	Sz          uint64 // user memory size in bytes
	Trapframe   *common.Trapframe
	trapframePa common.Pa_t
	Context     cpu.Context

	Files [common.NOFILE]*common.Fd_t
	Cwd   any // vfs.Ref once bound by chdir; opaque here to avoid an import cycle

	entry Entry
	// resumeCh carries the hart id of the RunScheduler goroutine handing
	// this process control, so the resumed goroutine can rebind its own
	// cpu.SetHartAffinity before touching any lock: the same process can
	// legitimately be resumed by a different hart from one round to the
	// next.
	resumeCh chan int
	yieldCh  chan struct{}
	started  bool
}

func (p *Proc_t) Lock() *spinlock.Lock_t   { return p.lk }
func (p *Proc_t) SetChan(c sleep.Chan)     { p.chanTok = c }
func (p *Proc_t) Chan() sleep.Chan         { return p.chanTok }
func (p *Proc_t) SetSleeping()             { p.State = Sleeping }
func (p *Proc_t) SetRunnable()             { p.State = Runnable }
func (p *Proc_t) IsSleeping() bool         { return p.State == Sleeping }
func (p *Proc_t) IsKilled() bool           { p.lk.Lock(); defer p.lk.Unlock(); return p.Killed }

// Table is the fixed-size process table plus the global locks that
// order above every per-process lock (spec.md §4.4 "wait_lock").
type Table struct {
	procs    [common.NPROC]*Proc_t
	WaitLock *spinlock.Lock_t
	pidLock  *spinlock.Lock_t
	nextPid  int

	VM    *vm.VM
	Initial *Proc_t // the first user process; reparent target
}

func NewTable(v *vm.VM) *Table {
	t := &Table{
		WaitLock: spinlock.New("wait_lock"),
		pidLock:  spinlock.New("nextpid"),
		nextPid:  1,
		VM:       v,
	}
	for i := range t.procs {
		t.procs[i] = &Proc_t{
			lk:       spinlock.New("proc"),
			State:    Unused,
			resumeCh: make(chan int),
			yieldCh:  make(chan struct{}),
		}
	}
	return t
}

// ForEach implements sleep.Table: invoked by wakeup to scan every slot.
func (t *Table) ForEach(f func(sleep.Sleeper)) {
	for _, p := range t.procs {
		f(p)
	}
}

func (t *Table) allocPid() int {
	t.pidLock.Lock()
	defer t.pidLock.Unlock()
	pid := t.nextPid
	t.nextPid++
	return pid
}

// AllocProc scans for the first Unused slot, claims it, assigns a pid,
// allocates a trapframe page and an empty user page table (no
// trampoline or trapframe mapping is installed in it), and returns it
// locked, in state Embryo.
// Returns nil if the table is full or a mapping allocation fails.
func (t *Table) AllocProc(name string, entry Entry) *Proc_t {
	var p *Proc_t
	for _, cand := range t.procs {
		cand.lk.Lock()
		if cand.State == Unused {
			p = cand
			break
		}
		cand.lk.Unlock()
	}
	if p == nil {
		return nil
	}

	p.Pid = t.allocPid()
	p.State = Embryo
	p.Name = name
	p.entry = entry
	p.started = false
	p.Xstate = 0
	p.Killed = false

	tfPa, ok := t.VM.Alloc.AllocPages(0, true)
	if !ok {
		t.freeLocked(p)
		p.lk.Unlock()
		return nil
	}
	p.trapframePa = tfPa
	p.Trapframe = &common.Trapframe{}

	root := t.VM.NewPagetable()
	p.Pagetable = root

	return p
}

// freeLocked releases a process's resources and returns the slot to
// Unused. Caller must hold p.lk.
func (t *Table) freeLocked(p *Proc_t) {
	if p.trapframePa != 0 {
		t.VM.Alloc.FreePages(p.trapframePa, 0)
		p.trapframePa = 0
	}
	p.Trapframe = nil
	if p.Pagetable != 0 {
		if p.Sz > 0 {
			t.VM.FreeUserMem(p.Pagetable, p.Sz)
		}
		t.VM.FreePagetable(p.Pagetable)
	}
	p.Pagetable = 0
	p.Sz = 0
	p.Pid = 0
	p.Parent = nil
	p.Name = ""
	p.chanTok = 0
	p.Killed = false
	p.Xstate = 0
	p.entry = nil
	p.started = false
	p.State = Unused
}
