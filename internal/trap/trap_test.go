package trap

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrmenzel/vimix/internal/cpu"
	"github.com/jrmenzel/vimix/internal/mm"
	"github.com/jrmenzel/vimix/internal/plic"
	"github.com/jrmenzel/vimix/internal/proc"
	"github.com/jrmenzel/vimix/internal/vm"
	"github.com/stretchr/testify/require"
)

func init() {
	cpu.BindCurrentHart(func() int { return 0 })
	cpu.BindSpinlocks()
}

func newTestTable(t *testing.T) *proc.Table {
	t.Helper()
	a := mm.New(4096)
	v := vm.New(a, vm.Sv39Levels)
	return proc.NewTable(v)
}

func runScheduler(tbl *proc.Table) (stop func()) {
	var stopping atomic.Bool
	done := make(chan struct{})
	go func() {
		tbl.RunScheduler(0, stopping.Load)
		close(done)
	}()
	return func() {
		stopping.Store(true)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
}

func spawn(t *testing.T, tbl *proc.Table, name string, entry proc.Entry) *proc.Proc_t {
	t.Helper()
	p := tbl.AllocProc(name, entry)
	require.NotNil(t, p)
	p.State = proc.Runnable
	p.Lock().Unlock()
	return p
}

type fakeDevice struct{ hits int }

func (d *fakeDevice) Interrupt() { d.hits++ }

func TestUserTrapDispatchesSyscall(t *testing.T) {
	tbl := newTestTable(t)
	var called bool
	var sawPid int
	h := &Handler{
		Plic:    plic.NewSim(1),
		Devices: map[int]IRQDevice{},
		Syscall: func(p *proc.Proc_t) { called = true; sawPid = p.Pid },
	}

	p := tbl.AllocProc("syscaller", func(*proc.Proc_t) {})
	p.Lock().Unlock()

	which := h.UserTrap(p, CauseSyscall, 0x1000, 0)
	require.Zero(t, which)
	require.True(t, called)
	require.Equal(t, p.Pid, sawPid)
	require.Equal(t, uint64(0x1004), p.Trapframe.Epc) // advanced past ecall
}

func TestUserTrapSkipsSyscallWhenKilled(t *testing.T) {
	tbl := newTestTable(t)
	var called bool
	h := &Handler{
		Plic:    plic.NewSim(1),
		Devices: map[int]IRQDevice{},
		Syscall: func(p *proc.Proc_t) { called = true },
	}

	p := tbl.AllocProc("victim", func(*proc.Proc_t) {})
	p.Killed = true
	p.Lock().Unlock()

	h.UserTrap(p, CauseSyscall, 0x2000, 0)
	require.False(t, called)
}

func TestUserTrapDeviceInterruptClaimsAndCompletes(t *testing.T) {
	tbl := newTestTable(t)
	sim := plic.NewSim(2)
	dev := &fakeDevice{}
	h := &Handler{Plic: sim, Devices: map[int]IRQDevice{7: dev}}

	sim.Raise(7)
	p := tbl.AllocProc("irqproc", func(*proc.Proc_t) {})
	p.Lock().Unlock()

	which := h.UserTrap(p, CauseDeviceInterrupt, 0, 0)
	require.Equal(t, 1, which)
	require.Equal(t, 1, dev.hits)
	require.False(t, p.Killed)
}

func TestUserTrapUnknownCauseKillsProcess(t *testing.T) {
	tbl := newTestTable(t)
	h := &Handler{Plic: plic.NewSim(1), Devices: map[int]IRQDevice{}}

	p := tbl.AllocProc("confused", func(*proc.Proc_t) {})
	p.Lock().Unlock()

	which := h.UserTrap(p, CauseUnknown, 0, 0)
	require.Zero(t, which)
	require.True(t, p.Killed)
}

func TestKernelTrapPanicsOnUnrecognizedCause(t *testing.T) {
	h := &Handler{Plic: plic.NewSim(1), Devices: map[int]IRQDevice{}}
	require.Panics(t, func() { h.KernelTrap(0, CauseUnknown) })
}

func TestKernelTrapTimerYieldsRunningProcess(t *testing.T) {
	tbl := newTestTable(t)
	stop := runScheduler(tbl)
	defer stop()

	clock := NewClock(tbl)
	h := &Handler{Plic: plic.NewSim(1), Devices: map[int]IRQDevice{}, Clock: clock}

	done := make(chan struct{})
	spawn(t, tbl, "ticked", func(p *proc.Proc_t) {
		h.KernelTrap(0, CauseTimerInterrupt)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process never resumed after KernelTrap yielded")
	}
	require.Equal(t, uint64(1), clock.Ticks())
}

func TestReturnToUserSetsTrapframeScratchFields(t *testing.T) {
	tbl := newTestTable(t)
	p := tbl.AllocProc("returner", func(*proc.Proc_t) {})
	p.Lock().Unlock()

	ReturnToUser(p, 0xAAAA, 0xBBBB, 0xCCCC, 3)

	require.Equal(t, uint64(0xAAAA), p.Trapframe.KernelSatp)
	require.Equal(t, uint64(0xBBBB), p.Trapframe.KernelSp)
	require.Equal(t, uint64(0xCCCC), p.Trapframe.KernelTrap)
	require.Equal(t, uint64(3), p.Trapframe.KernelHartid)
}

func TestClockWakesSleeper(t *testing.T) {
	tbl := newTestTable(t)
	clock := NewClock(tbl)

	p := tbl.AllocProc("sleeper", func(*proc.Proc_t) {})
	p.SetChan(clock.Chan())
	p.SetSleeping()
	p.Lock().Unlock()

	clock.Tick()

	require.Equal(t, proc.Runnable, p.State)
}
