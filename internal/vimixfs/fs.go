package vimixfs

import (
	"github.com/jrmenzel/vimix/internal/bio"
	"github.com/jrmenzel/vimix/internal/fslog"
)

// Caller bundles everything a vimixfs operation needs to block on a
// buffer or inode lock and to participate in a log transaction: the
// pid identifying it to the journal's reservation table, plus bio's
// own Caller for buffer acquisition.
type Caller struct {
	bio.Caller
	Pid int
}

// FS is one mounted vimixfs filesystem (spec.md §4.9 "A disk is laid
// out as: boot block, superblock, log, inode blocks, block bitmap,
// data blocks").
type FS struct {
	dev int
	sb  Superblock

	cache *bio.Cache
	log   *fslog.Log

	itable iTable
}

// Mount reads the superblock from dev, validates its magic, and runs
// journal recovery (spec.md §4.8 "Recovery runs once per mount"). The
// caller must have already registered dev's device with cache.
func Mount(cache *bio.Cache, dev int, who Caller) *FS {
	b, ok := cache.Read(dev, SBBlock, who.Caller)
	if !ok {
		panic("vimixfs: failed to read superblock")
	}
	fs := &FS{dev: dev, cache: cache}
	fs.sb.Decode(b.Data[:])
	cache.Release(b, who.Caller)

	if fs.sb.Magic != Magic {
		panic("vimixfs: invalid file system magic")
	}

	fs.log = fslog.New(cache, dev, fs.sb.LogStart, int(fs.sb.NLog), who.Caller)
	fs.itable.init()
	return fs
}

// Superblock returns a copy of the mounted filesystem's superblock.
func (fs *FS) Superblock() Superblock { return fs.sb }

// logWrite records b as part of the caller's current transaction
// instead of writing it to its home location immediately.
func (fs *FS) logWrite(who Caller, b *bio.Buf) {
	fs.log.Write(who.Pid, b)
}

// Begin/End bracket a filesystem-modifying operation, reserving
// blockCount log slots for who.Pid (spec.md §4.8).
func (fs *FS) Begin(who Caller, blockCount int) bool { return fs.log.Begin(who.Pid, blockCount, who.Caller) }
func (fs *FS) End(who Caller)                        { fs.log.End(who.Pid, who.Caller) }
