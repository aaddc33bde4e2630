// Package pipe implements the Pipe variant of spec.md §3's "File
// object" type enum {Pipe, Inode, Device}: a fixed-size ring buffer
// guarded by one spinlock, with blocked readers/writers parked on
// sleep/wakeup exactly like every other blocking primitive in this
// kernel instead of a native Go channel, so a pipe read or write
// participates in the same scheduler-yield discipline as disk I/O or a
// sleep-lock acquire. This pack's original_source/ has no pipe
// implementation to ground against; this instead models the xv6
// lineage's well-known piperead/pipewrite shape (wake the other side,
// then sleep on your own condition until there is room or data).
package pipe

import (
	"unsafe"

	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/sleep"
	"github.com/jrmenzel/vimix/internal/spinlock"
)

// Size is the ring buffer's capacity in bytes (PIPESIZE in the
// original).
const Size = 512

// Pipe is one anonymous pipe's shared state, referenced by both ends'
// File wrappers (spec.md §3 "File object... reference count tracks
// dup/fork sharing" applies per end, not to the Pipe itself).
type Pipe struct {
	lk                  *spinlock.Lock_t
	data                [Size]byte
	nread, nwrite       uint64
	readOpen, writeOpen bool
}

func New() *Pipe {
	return &Pipe{lk: spinlock.New("pipe"), readOpen: true, writeOpen: true}
}

// readChan/writeChan give piperead/pipewrite's "&pi->nread"/"&pi->nwrite"
// sleep channels a stable, comparable token: the address of the Pipe's
// own counters, which never move for the Pipe's lifetime.
func (p *Pipe) readChan() sleep.Chan  { return sleep.Chan(uintptr(unsafe.Pointer(&p.nread))) }
func (p *Pipe) writeChan() sleep.Chan { return sleep.Chan(uintptr(unsafe.Pointer(&p.nwrite))) }

// Write copies src into the ring buffer one byte at a time, blocking
// whenever it catches up to a full buffer, and wakes any blocked
// reader once bytes are available (grounded on pipewrite).  Returns
// (0, EPIPE) if the read end has closed before any byte was written; if
// it closes after some bytes went in, returns that count with no error.
func (p *Pipe) Write(who sleep.Sleeper, t sleep.Table, yield func(), src []byte) (int, common.Err_t) {
	p.lk.Lock()
	n := 0
	for n < len(src) {
		if !p.readOpen {
			p.lk.Unlock()
			if n == 0 {
				return 0, common.EPIPE
			}
			return n, 0
		}
		if p.nwrite-p.nread == Size {
			sleep.Wakeup(t, p.readChan())
			sleep.Sleep(who, p.writeChan(), p.lk, yield)
			continue
		}
		p.data[p.nwrite%Size] = src[n]
		p.nwrite++
		n++
	}
	p.lk.Unlock()
	sleep.Wakeup(t, p.readChan())
	return n, 0
}

// Read blocks until at least one byte is available or the write end
// has closed, then drains up to len(dst) bytes (grounded on
// piperead). Returns 0 (not an error) on a closed, drained pipe,
// matching read() at EOF.
func (p *Pipe) Read(who sleep.Sleeper, t sleep.Table, yield func(), dst []byte) (int, common.Err_t) {
	p.lk.Lock()
	for p.nread == p.nwrite && p.writeOpen {
		sleep.Sleep(who, p.readChan(), p.lk, yield)
	}
	n := 0
	for n < len(dst) && p.nread < p.nwrite {
		dst[n] = p.data[p.nread%Size]
		p.nread++
		n++
	}
	p.lk.Unlock()
	sleep.Wakeup(t, p.writeChan())
	return n, 0
}

// CloseRead marks the read end closed and wakes any writer blocked on
// a full buffer so it observes EPIPE instead of blocking forever.
func (p *Pipe) CloseRead(t sleep.Table) {
	p.lk.Lock()
	p.readOpen = false
	p.lk.Unlock()
	sleep.Wakeup(t, p.writeChan())
}

// CloseWrite marks the write end closed and wakes any reader blocked
// on an empty buffer so it observes EOF instead of blocking forever.
func (p *Pipe) CloseWrite(t sleep.Table) {
	p.lk.Lock()
	p.writeOpen = false
	p.lk.Unlock()
	sleep.Wakeup(t, p.readChan())
}
