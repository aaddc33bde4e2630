package blockdev

import (
	"os"
	"sync"

	"github.com/jrmenzel/vimix/internal/common"
)

// FileDisk backs a Device with a regular host file, delegating each
// block transfer to ReadAt/WriteAt the way the teacher's nodefs
// LoopbackFile delegates file operations to the underlying os.File.
// os.File is safe for concurrent ReadAt/WriteAt (they don't share the
// file offset), but this module still serializes through mu: bio's
// design assumes a single in-flight transfer per device, matching one
// real disk controller queue.
type FileDisk struct {
	mu   sync.Mutex
	file *os.File
	nblk uint32
}

// OpenFileDisk opens (creating if necessary) a disk image of exactly
// nblocks*common.BSIZE bytes.
func OpenFileDisk(path string, nblocks uint32) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	size := int64(nblocks) * common.BSIZE
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDisk{file: f, nblk: nblocks}, nil
}

func (d *FileDisk) ReadBlock(blockno uint32, dst []byte) common.Err_t {
	if blockno >= d.nblk || len(dst) < common.BSIZE {
		return common.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.file.ReadAt(dst[:common.BSIZE], int64(blockno)*common.BSIZE); err != nil {
		return common.EIO
	}
	return 0
}

func (d *FileDisk) WriteBlock(blockno uint32, src []byte) common.Err_t {
	if blockno >= d.nblk || len(src) < common.BSIZE {
		return common.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.file.WriteAt(src[:common.BSIZE], int64(blockno)*common.BSIZE); err != nil {
		return common.EIO
	}
	return 0
}

func (d *FileDisk) NumBlocks() uint32 { return d.nblk }

func (d *FileDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}
