package syscall

import (
	"sync"

	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/pipe"
	"github.com/jrmenzel/vimix/internal/vfs"
	"github.com/jrmenzel/vimix/internal/vimixfs"
)

// CharDevice is a character device driver reachable through devfs: a
// process that opens a devfs node of kind TCharDev has its reads and
// writes routed here instead of through the node's own (always empty)
// Ops.Read/Write. Grounded on sys_file.c's FD_DEVICE dispatch through
// devsw[major]; console is the only driver expected to implement this.
type CharDevice interface {
	Read(dst []byte) (int, common.Err_t)
	Write(src []byte) (int, common.Err_t)
}

// kind classifies what a File dispatches reads and writes to (grounded
// on sys_file.c's FD_INODE/FD_DEVICE file_type enum).
type kind int

const (
	kindInode kind = iota
	kindDevice
	kindPipe
)

// File is the kernel-side open-file object a common.Fd_t's Fops points
// at. It outlives any single descriptor: dup shares one *File across
// several slots in (possibly several processes') file tables, exactly
// like file_dup bumping a shared struct file's reference count
// (spec.md §4.11 "File object").
type File struct {
	mu  sync.Mutex
	ref int

	node     vfs.Ref // valid when knd == kindInode
	dev      CharDevice
	pp       *pipe.Pipe // valid when knd == kindPipe
	pipeRead bool       // which end of pp this File is, when knd == kindPipe

	readable bool
	writable bool
	off      uint32
	knd      kind
}

// newInodeFile wraps an already-looked-up node in a File with ref
// count 1 (grounded on sys_open's "f->type = FD_INODE; f->off = 0").
func newInodeFile(node vfs.Ref, readable, writable bool) *File {
	return &File{node: node, readable: readable, writable: writable, knd: kindInode, ref: 1}
}

// newDeviceFile wraps a devfs character-device node's driver (grounded
// on sys_open's "f->type = FD_DEVICE; f->major = ip->major").
func newDeviceFile(dev CharDevice, readable, writable bool) *File {
	return &File{dev: dev, readable: readable, writable: writable, knd: kindDevice, ref: 1}
}

// newPipeFile wraps one end of a pipe. pipeRead selects which end: the
// read end is readable-only, the write end writable-only, matching
// sys_pipe's two descriptors (spec.md §3 "File object" Pipe variant).
func newPipeFile(pp *pipe.Pipe, pipeRead bool) *File {
	return &File{pp: pp, pipeRead: pipeRead, readable: pipeRead, writable: !pipeRead, knd: kindPipe, ref: 1}
}

// dup bumps f's reference count (grounded on file_dup).
func (f *File) dup() *File {
	f.mu.Lock()
	f.ref++
	f.mu.Unlock()
	return f
}

// Dup satisfies common.Dupper so a fork's fd-table copy shares this
// same File with its reference count correctly bumped, instead of
// silently aliasing it.
func (f *File) Dup() any { return f.dup() }

// close drops one reference. On the last reference to an inode file it
// releases the node through its own transaction, since the final put
// may free the inode's blocks (spec.md §4.11 "close... brackets the
// final put in a transaction"; grounded on file_close's ref-counted
// inode_put). Device files need no transaction.
func (f *File) close(who vimixfs.Caller, fs *vimixfs.FS) {
	f.mu.Lock()
	f.ref--
	last := f.ref == 0
	f.mu.Unlock()
	if !last {
		return
	}
	if f.knd == kindPipe {
		if f.pipeRead {
			f.pp.CloseRead(who.Table)
		} else {
			f.pp.CloseWrite(who.Table)
		}
		return
	}
	if f.knd != kindInode {
		return
	}
	if !fs.Begin(who, 16) {
		return
	}
	f.node.Ops.Put(who, f.node.Node)
	fs.End(who)
}

// read dispatches to the inode's Ops.Read or the device driver,
// advancing f's shared offset for inode reads (grounded on
// file_read's FD_INODE/FD_DEVICE split).
func (f *File) read(who vimixfs.Caller, dst []byte) (int, common.Err_t) {
	if !f.readable {
		return -1, common.EACCES
	}
	if f.knd == kindDevice {
		return f.dev.Read(dst)
	}
	if f.knd == kindPipe {
		return f.pp.Read(who.Proc, who.Table, who.Yield, dst)
	}

	f.mu.Lock()
	off := f.off
	f.mu.Unlock()
	n := f.node.Ops.Read(who, f.node.Node, dst, off, uint32(len(dst)))
	if n > 0 {
		f.mu.Lock()
		f.off += uint32(n)
		f.mu.Unlock()
	}
	return n, 0
}

// write dispatches to the inode's Ops.Write or the device driver. For
// an inode it brackets every chunk with its own transaction, splitting
// the overall request into pieces no larger than maxWriteBytes so a
// single write syscall never needs more log space than one
// transaction can reserve (spec.md §4.11 "write splits very large
// writes into sub-transactions"; grounded on sys_write's per-chunk
// begin_op/writei/end_op loop).
func (f *File) write(who vimixfs.Caller, fs *vimixfs.FS, src []byte) (int, common.Err_t) {
	if !f.writable {
		return -1, common.EACCES
	}
	if f.knd == kindDevice {
		return f.dev.Write(src)
	}
	if f.knd == kindPipe {
		return f.pp.Write(who.Proc, who.Table, who.Yield, src)
	}

	var total int
	for total < len(src) {
		chunk := src[total:]
		if len(chunk) > maxWriteBytes {
			chunk = chunk[:maxWriteBytes]
		}
		if !fs.Begin(who, writeBlocks) {
			break
		}
		f.mu.Lock()
		off := f.off
		f.mu.Unlock()
		n := f.node.Ops.Write(who, f.node.Node, chunk, off, uint32(len(chunk)))
		fs.End(who)
		if n <= 0 {
			break
		}
		f.mu.Lock()
		f.off += uint32(n)
		f.mu.Unlock()
		total += n
		if n < len(chunk) {
			break
		}
	}
	if total == 0 && len(src) > 0 {
		return -1, common.EIO
	}
	return total, 0
}

// stat copies the underlying node's metadata into a vfs.Stat (grounded
// on file_stat). A device file reports the fixed character-device
// shape its devfs node would, since the File itself holds no vfs.Ref
// once it has been routed to a CharDevice driver.
func (f *File) stat() (vfs.Stat, common.Err_t) {
	switch f.knd {
	case kindDevice:
		return vfs.Stat{Type: vfs.TCharDev, NLink: 1}, 0
	case kindPipe:
		return vfs.Stat{Type: vfs.TPipe, NLink: 1}, 0
	default:
		return f.node.Stat(), 0
	}
}
