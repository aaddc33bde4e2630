// Package plic models the RISC-V Platform-Level Interrupt Controller
// as a narrow claim/complete interface, standing in for the MMIO
// register pokes of original_source/kernel/arch/riscv/plic.c
// (plic_claim/plic_complete) the same way the teacher's console
// driver signals its daemon goroutine over a `chan bool` instead of a
// real interrupt line (main.go's cons_t/trap_cons pattern).
package plic

// Controller is what trap dispatch needs from a platform interrupt
// controller (spec.md §6 "plic.Controller: Claim() (irq int, ok
// bool), Complete(irq int)").
type Controller interface {
	Claim() (irq int, ok bool)
	Complete(irq int)
}

// Sim is an in-memory stand-in for the PLIC: pending interrupts queue
// up on a channel instead of setting pending bits in an MMIO register
// block, and Claim drains the oldest one (grounded on plic_claim's
// single highest-priority-pending-irq read, simplified here to FIFO
// since this port has no per-interrupt priority scheme to arbitrate).
type Sim struct {
	pending chan int
}

// NewSim creates a simulated PLIC that can hold up to queueDepth
// pending interrupts before Raise starts dropping them; the same irq
// may be queued more than once.
func NewSim(queueDepth int) *Sim {
	return &Sim{pending: make(chan int, queueDepth)}
}

// Raise is called by a simulated device to signal an interrupt,
// standing in for the device asserting its line into the PLIC.
func (s *Sim) Raise(irq int) {
	select {
	case s.pending <- irq:
	default:
		// queue full: the interrupt is dropped.
	}
}

// Claim returns the next pending IRQ, or ok=false if none is pending
// (grounded on plic_claim returning 0 for "no pending interrupt").
func (s *Sim) Claim() (int, bool) {
	select {
	case irq := <-s.pending:
		return irq, true
	default:
		return 0, false
	}
}

// Complete acknowledges irq, allowing the device to interrupt again
// (grounded on plic_complete's write-IRQ-back-to-clear convention).
// The simulated PLIC has no pending-bit to clear here since Claim
// already dequeued; kept for interface symmetry with the real claim/
// complete handshake every device driver follows.
func (s *Sim) Complete(irq int) {}
