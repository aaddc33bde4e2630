package blockdev

import (
	"sync"

	"github.com/jrmenzel/vimix/internal/common"
)

// MemDisk is an in-memory Device used by journal-recovery tests to
// simulate a crash mid-write: FailAfter arms a failure that starts at
// the Nth subsequent WriteBlock and repeats on every write after it
// until ClearFailure (returning common.EIO without mutating storage),
// modeling a power loss partway through a commit
// sequence (spec.md §4.8, §8 crash scenarios).
type MemDisk struct {
	mu     sync.Mutex
	blocks [][common.BSIZE]byte

	writesUntilFail int // -1 means disabled
}

func NewMemDisk(nblocks uint32) *MemDisk {
	return &MemDisk{blocks: make([][common.BSIZE]byte, nblocks), writesUntilFail: -1}
}

// FailAfter arms the device to fail the nth WriteBlock call from now
// (n==0 fails the very next write) and every call after that, until
// ClearFailure is called.
func (d *MemDisk) FailAfter(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writesUntilFail = n
}

func (d *MemDisk) ClearFailure() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writesUntilFail = -1
}

func (d *MemDisk) ReadBlock(blockno uint32, dst []byte) common.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(blockno) >= len(d.blocks) || len(dst) < common.BSIZE {
		return common.EINVAL
	}
	copy(dst[:common.BSIZE], d.blocks[blockno][:])
	return 0
}

func (d *MemDisk) WriteBlock(blockno uint32, src []byte) common.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(blockno) >= len(d.blocks) || len(src) < common.BSIZE {
		return common.EINVAL
	}
	if d.writesUntilFail == 0 {
		return common.EIO
	}
	if d.writesUntilFail > 0 {
		d.writesUntilFail--
	}
	copy(d.blocks[blockno][:], src[:common.BSIZE])
	return 0
}

func (d *MemDisk) NumBlocks() uint32 { return uint32(len(d.blocks)) }

// Snapshot returns a deep copy of every block, for crash-recovery tests
// that need to verify state survived a simulated reboot unchanged.
func (d *MemDisk) Snapshot() [][common.BSIZE]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][common.BSIZE]byte, len(d.blocks))
	copy(out, d.blocks)
	return out
}
