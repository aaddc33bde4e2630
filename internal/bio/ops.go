package bio

import "github.com/jrmenzel/vimix/internal/sleep"

// Caller bundles what bio needs to block the calling process on a
// buffer's sleep-lock: the process itself (for Acquire), the table (so
// Release's wakeup can scan every process), and the scheduler yield
// hook. Every exported bio entry point that may block takes one of
// these instead of the three values separately.
type Caller struct {
	Proc  sleep.Sleeper
	Table sleep.Table
	Yield func()
}

// bget locates an existing buffer for (dev, blockno), bumping its ref
// and returning it with its sleep-lock held; otherwise it reclaims the
// least-recently-used unreferenced buffer, retags it, and returns that
// one, also locked. Panics if every buffer is referenced (spec.md §4.7
// invariant (b): at most one in-memory buffer exists per (dev,
// blockno); here extended to "the pool must never be fully pinned").
func (c *Cache) bget(dev int, blockno uint32, who Caller) *Buf {
	c.mu.Lock()

	for b := c.head.next; b != c.head; b = b.next {
		if (b.valid || b.ref > 0) && b.Dev == dev && b.Blockno == blockno {
			b.ref++
			c.mu.Unlock()
			b.lk.Acquire(who.Proc, who.Yield)
			return b
		}
	}

	for b := c.head.prev; b != c.head; b = b.prev {
		if b.ref == 0 {
			b.Dev = dev
			b.Blockno = blockno
			b.valid = false
			b.Dirty = false
			b.ref = 1
			c.mu.Unlock()
			b.lk.Acquire(who.Proc, who.Yield)
			return b
		}
	}

	c.mu.Unlock()
	panic("bio: no free buffers")
}

// Read returns the buffer for (dev, blockno) with its sleep-lock held,
// issuing a device read the first time it is faulted in.
func (c *Cache) Read(dev int, blockno uint32, who Caller) (*Buf, bool) {
	b := c.bget(dev, blockno, who)
	if !b.valid {
		if err := c.dev.ReadBlock(blockno, b.Data[:]); err != 0 {
			c.Release(b, who)
			return nil, false
		}
		b.valid = true
	}
	return b, true
}

// GetForOverwrite returns the buffer for (dev, blockno) with its
// sleep-lock held, like Read, but never issues a device read: the
// caller is about to overwrite the entire block, so the old on-disk
// contents are irrelevant (spec.md §4.8 write_head/write_log use this
// instead of bio_read to avoid a pointless read-before-overwrite).
func (c *Cache) GetForOverwrite(dev int, blockno uint32, who Caller) *Buf {
	b := c.bget(dev, blockno, who)
	b.valid = true
	return b
}

// Write marks b dirty and issues the device write immediately. The
// journal layer is what actually defers writes to commit time; a
// caller bypassing the log writes straight through, matching fs.c's
// block_zero/balloc calling log_write rather than bio.Write directly
// for anything transactional.
func (c *Cache) Write(b *Buf) bool {
	b.Dirty = true
	return c.dev.WriteBlock(b.Blockno, b.Data[:]) == 0
}

// Release drops b's ref count and, if it reached zero, moves b to the
// MRU position. The sleep-lock is released first, matching spec.md
// §4.7 ("bio_release decrements the ref count... the sleep-lock is
// released first").
func (c *Cache) Release(b *Buf, who Caller) {
	if !b.lk.Holding() {
		panic("bio: release of buffer not locked by caller")
	}
	b.lk.Release(who.Table)

	c.mu.Lock()
	b.ref--
	if b.ref == 0 {
		c.moveToFront(b)
	}
	c.mu.Unlock()
}

// Pin increments the ref count without acquiring the sleep-lock, used
// by the journal to keep a dirty buffer resident between log_write and
// commit (spec.md §4.8 "pins the buffer with an extra ref").
func (c *Cache) Pin(b *Buf) {
	c.mu.Lock()
	b.ref++
	c.mu.Unlock()
}

// Unpin is Pin's inverse, used once the journal has copied a pinned
// buffer to its home location at commit time.
func (c *Cache) Unpin(b *Buf) {
	c.mu.Lock()
	b.ref--
	if b.ref == 0 {
		c.moveToFront(b)
	}
	c.mu.Unlock()
}
