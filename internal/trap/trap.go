// Package trap models the three privilege-transition paths of spec.md
// §4.5 as plain Go control flow instead of a hardware trap vector:
// user->kernel (syscall/interrupt/exception dispatch), kernel->kernel
// (interrupts taken while already in the kernel), and kernel->user
// (setting up the per-process trapframe fields the trampoline would
// read on the next transition). Grounded on
// original_source/kernel/arch/riscv/trap.c.
package trap

import (
	"github.com/jrmenzel/vimix/internal/plic"
	"github.com/jrmenzel/vimix/internal/proc"
)

// Cause classifies a trap the way interrupt_handler/
// user_mode_interrupt_handler read scause, without needing the actual
// RISC-V CSR bit layout since this port never runs at a real privilege
// level.
type Cause int

const (
	CauseSyscall Cause = iota
	CauseDeviceInterrupt
	CauseTimerInterrupt
	CauseUnknown
)

// IRQDevice is a simulated device that can be dispatched to once its
// IRQ is claimed from the PLIC (grounded on trap.c's
// uart_interrupt_handler/virtio_block_device_interrupt calls).
type IRQDevice interface {
	Interrupt()
}

// Handler wires together everything the three trap paths dispatch
// into: the PLIC for device-interrupt fan-out, a registry of devices
// keyed by IRQ, a Clock for timer ticks, and the syscall entry point.
// Syscall is a function value rather than a direct import of
// internal/syscall to avoid a import cycle (syscall needs proc, proc
// must not need syscall).
type Handler struct {
	Plic    plic.Controller
	Devices map[int]IRQDevice
	Clock   *Clock
	Syscall func(p *proc.Proc_t)
}

// interruptHandler fans out a device or timer interrupt and reports
// which kind it was: 2 for a timer tick, 1 for a claimed device
// interrupt, 0 if cause was neither (grounded on trap.c's
// interrupt_handler, collapsing the scause bit tests into the Cause
// enum classified by the caller).
func (h *Handler) interruptHandler(cause Cause, hartID int) int {
	switch cause {
	case CauseDeviceInterrupt:
		irq, ok := h.Plic.Claim()
		if !ok {
			return 1
		}
		if dev, ok := h.Devices[irq]; ok {
			dev.Interrupt()
		}
		h.Plic.Complete(irq)
		return 1
	case CauseTimerInterrupt:
		if hartID == 0 {
			h.Clock.Tick()
		}
		return 2
	default:
		return 0
	}
}

// UserTrap is the user->kernel path (spec.md §4.5 path 1): it saves
// the trap entry program counter, advances past the ecall instruction
// and dispatches a syscall, fans out a device/timer interrupt, or
// marks the process killed on an unrecognized cause. which reports
// the same 0/1/2 classification as interruptHandler, so the caller
// (the process's own goroutine, standing in for
// u_mode_trap_vector.S's caller) knows whether to yield.
func (h *Handler) UserTrap(p *proc.Proc_t, cause Cause, epc uint64, hartID int) (which int) {
	p.Trapframe.Epc = epc

	switch cause {
	case CauseSyscall:
		if p.IsKilled() {
			return 0
		}
		// sepc points at the ecall instruction; resume after it.
		p.Trapframe.Epc += 4
		h.Syscall(p)
		return 0
	default:
		which = h.interruptHandler(cause, hartID)
		if which == 0 {
			p.Killed = true
		}
		return which
	}
}

// KernelTrap is the kernel->kernel path (spec.md §4.5 path 2):
// interrupts taken while already executing in the kernel. It panics
// on an unrecognized cause, mirroring kernel_mode_interrupt_handler's
// own panic, and yields the hart if the cause was a timer tick and
// the current process is still Running.
func (h *Handler) KernelTrap(hartID int, cause Cause) {
	which := h.interruptHandler(cause, hartID)
	if which == 0 {
		panic("trap: kernel_mode_interrupt_handler: unrecognized cause")
	}
	if which == 2 {
		if p := proc.Current(hartID); p != nil && p.State == proc.Running {
			proc.Yield(p)
		}
	}
}

// ReturnToUser is the kernel->user path (spec.md §4.5 path 3): it
// stamps the per-process trapframe's kernel-side scratch fields that
// the trampoline would read on the process's next trap into the
// kernel (grounded on return_to_user_mode's trapframe field writes).
func ReturnToUser(p *proc.Proc_t, kernelSatp, kernelSp, kernelTrap uint64, hartID int) {
	p.Trapframe.KernelSatp = kernelSatp
	p.Trapframe.KernelSp = kernelSp
	p.Trapframe.KernelTrap = kernelTrap
	p.Trapframe.KernelHartid = uint64(hartID)
}

