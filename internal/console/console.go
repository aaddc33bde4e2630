// Package console is the kernel's console driver: a goroutine-as-
// driver daemon fed by a narrow external Sink, buffering input the
// same way the teacher's kbd_daemon does over cons_t's channels
// (spec.md §7 "console.Sink... modeled directly on the teacher's
// cons_t/kbd_daemon goroutine-as-driver pattern").
package console

import (
	"sync"

	"github.com/jrmenzel/vimix/internal/common"
)

// Sink is the narrow contract this kernel needs from a real UART/
// keyboard driver: WriteByte pushes one byte out, ReadByte pulls one
// buffered input byte back, and Ready reports, by a channel receive
// becoming possible, that at least one more input byte is available
// (grounded on cons.kbd_int/cons.com_int: an interrupt arrives as a
// channel send, and kbd_daemon drains the device with repeated reads
// until it reports no more data).
type Sink interface {
	ReadByte() (byte, error)
	WriteByte(byte) error
	Ready() <-chan struct{}
}

// Device is the in-kernel console: one daemon goroutine owns the
// input buffer and serves readers over a request/response rendezvous,
// ported directly from kbd_daemon's select loop (cons.kbd_int/
// cons.com_int accumulate into a local []byte; cons.reqc/cons.reader
// hand a reader up to len(dst) bytes at a time). Output has no
// buffering of its own, same as the teacher: Write goes straight
// through to the Sink.
type Device struct {
	sink Sink

	reqc   chan int
	replyc chan []byte
	stopc  chan struct{}

	mu     sync.Mutex
	closed bool
}

// New starts the input daemon over sink (grounded on cons_init's
// `go kbd_daemon(&cons, km)`).
func New(sink Sink) *Device {
	d := &Device{
		sink:   sink,
		reqc:   make(chan int),
		replyc: make(chan []byte),
		stopc:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Stop shuts the daemon goroutine down. Idempotent; not part of
// CharDevice, used by tests and kernel shutdown.
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.stopc)
	}
}

// run is kbd_daemon's select loop: accumulate input while the sink
// reports it's ready, otherwise serve whichever reader is currently
// waiting on reqc (nil, and thus never selected, whenever the buffer
// is empty, exactly matching the teacher's `reqc = nil` / `reqc =
// cons.reqc` toggling at the bottom of the loop).
func (d *Device) run() {
	data := make([]byte, 0, 64)
	var reqc chan int
	for {
		select {
		case <-d.stopc:
			return
		case <-d.sink.Ready():
			for {
				b, err := d.sink.ReadByte()
				if err != nil {
					break
				}
				data = append(data, b)
			}
		case n := <-reqc:
			if n > len(data) {
				n = len(data)
			}
			s := append([]byte(nil), data[:n]...)
			data = data[n:]
			select {
			case d.replyc <- s:
			case <-d.stopc:
				return
			}
		}
		if len(data) == 0 {
			reqc = nil
		} else {
			reqc = d.reqc
		}
	}
}

// Read blocks until at least one input byte is buffered, then copies
// up to len(dst) bytes into dst (grounded on kbd_get: "reads keyboard
// data, blocking for at least 1 byte. returns at most cnt bytes").
// Satisfies internal/syscall.CharDevice.
func (d *Device) Read(dst []byte) (int, common.Err_t) {
	select {
	case d.reqc <- len(dst):
	case <-d.stopc:
		return 0, common.EIO
	}
	select {
	case s := <-d.replyc:
		return copy(dst, s), 0
	case <-d.stopc:
		return 0, common.EIO
	}
}

// Write sends every byte of src straight to the sink: the teacher has
// no write-side buffering for the console, output goes directly to
// the device. Satisfies internal/syscall.CharDevice.
func (d *Device) Write(src []byte) (int, common.Err_t) {
	for i, b := range src {
		if err := d.sink.WriteByte(b); err != nil {
			return i, common.EIO
		}
	}
	return len(src), 0
}
