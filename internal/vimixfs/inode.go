package vimixfs

import (
	"unsafe"

	"github.com/jrmenzel/vimix/internal/sleep"
	"github.com/jrmenzel/vimix/internal/spinlock"
)

const numInodeSlots = 50

// Inode is the in-memory representation of one disk inode (spec.md §3
// "Inode"): ref/dev/inum are protected by the table's own lock; every
// other field is protected by the inode's sleep-lock and only valid
// once Valid is true. Mirrors the fs.c "iget/ilock" state machine.
type Inode struct {
	fs    *FS
	Dev   int
	Inum  uint32
	ref   int
	valid bool

	lk *sleep.SleepLock

	Dinode
}

func (ip *Inode) chan_() sleep.Chan { return sleep.Chan(uintptr(unsafe.Pointer(ip))) }

// iTable is the fixed-size in-memory inode cache (spec.md §4.9 "iget
// looks up or creates an in-memory inode").
type iTable struct {
	mu    *spinlock.Lock_t
	slots [numInodeSlots]*Inode
}

func (t *iTable) init() {
	t.mu = spinlock.New("itable")
	for i := range t.slots {
		t.slots[i] = &Inode{}
		t.slots[i].lk = sleep.NewSleepLock("inode", t.slots[i].chan_())
	}
}

// iget finds or creates the in-memory entry for (dev, inum), bumping
// its ref count. Does not touch the disk.
func (fs *FS) iget(dev int, inum uint32) *Inode {
	t := &fs.itable
	t.mu.Lock()
	defer t.mu.Unlock()

	var empty *Inode
	for _, ip := range t.slots {
		if ip.ref > 0 && ip.Dev == dev && ip.Inum == inum {
			ip.ref++
			return ip
		}
		if empty == nil && ip.ref == 0 {
			empty = ip
		}
	}
	if empty == nil {
		panic("vimixfs: iget: inode table exhausted")
	}
	empty.fs = fs
	empty.Dev = dev
	empty.Inum = inum
	empty.ref = 1
	empty.valid = false
	return empty
}

// IGetRoot returns the (unlocked) root inode of the filesystem.
func (fs *FS) IGetRoot() *Inode { return fs.iget(fs.dev, RootIno) }

// Dup increments ip's reference count, for the "ip = Dup(ip1)" idiom.
func (fs *FS) Dup(ip *Inode) *Inode {
	fs.itable.mu.Lock()
	ip.ref++
	fs.itable.mu.Unlock()
	return ip
}

// Lock acquires ip's sleep-lock, reading the on-disk record the first
// time it is locked.
func (fs *FS) Lock(ip *Inode, who Caller) {
	if ip.ref < 1 {
		panic("vimixfs: ilock: unreferenced inode")
	}
	ip.lk.Acquire(who.Proc, who.Yield)

	if !ip.valid {
		b, ok := fs.cache.Read(ip.Dev, fs.sb.IBlock(ip.Inum), who.Caller)
		if !ok {
			panic("vimixfs: ilock: failed to read inode block")
		}
		off := (ip.Inum % uint32(IPB)) * DinodeSize
		ip.Dinode.Decode(b.Data[off : off+DinodeSize])
		fs.cache.Release(b, who.Caller)
		ip.valid = true
		if ip.Type == TFree {
			panic("vimixfs: ilock: no type")
		}
	}
}

// Unlock releases ip's sleep-lock.
func (fs *FS) Unlock(ip *Inode, who Caller) {
	if !ip.lk.Holding() || ip.ref < 1 {
		panic("vimixfs: iunlock: not held")
	}
	ip.lk.Release(who.Table)
}

// Update writes ip's in-memory fields back to its on-disk record.
// Caller must hold ip's lock.
func (fs *FS) Update(who Caller, ip *Inode) {
	b, ok := fs.cache.Read(ip.Dev, fs.sb.IBlock(ip.Inum), who.Caller)
	if !ok {
		panic("vimixfs: iupdate: failed to read inode block")
	}
	off := (ip.Inum % uint32(IPB)) * DinodeSize
	ip.Dinode.Encode(b.Data[off : off+DinodeSize])
	fs.cache.Write(b)
	fs.logWrite(who, b)
	fs.cache.Release(b, who.Caller)
}

// Alloc allocates a free inode of the given type (spec.md §4.9 "ialloc
// scans inode blocks for a type == FREE slot"), returning an
// unlocked, referenced Inode, or nil if none are free.
func (fs *FS) Alloc(who Caller, typ FileType) *Inode {
	for inum := uint32(1); inum < fs.sb.NInodes; inum++ {
		b, ok := fs.cache.Read(fs.dev, fs.sb.IBlock(inum), who.Caller)
		if !ok {
			panic("vimixfs: ialloc: failed to read inode block")
		}
		off := (inum % uint32(IPB)) * DinodeSize
		var d Dinode
		d.Decode(b.Data[off : off+DinodeSize])
		if d.Type == TFree {
			d = Dinode{Type: typ}
			d.Encode(b.Data[off : off+DinodeSize])
			fs.cache.Write(b)
			fs.logWrite(who, b)
			fs.cache.Release(b, who.Caller)
			return fs.iget(fs.dev, inum)
		}
		fs.cache.Release(b, who.Caller)
	}
	return nil
}

// Put drops a reference to ip. If it was the last reference and the
// inode has no links, the inode and its content are freed on disk.
// Must be called inside a transaction, since that path calls Update.
func (fs *FS) Put(who Caller, ip *Inode) {
	t := &fs.itable
	t.mu.Lock()

	if ip.ref == 1 && ip.valid && ip.NLink == 0 {
		// No other process can have ip locked (ref==1), so Acquire
		// below cannot block.
		ip.lk.Acquire(who.Proc, who.Yield)
		t.mu.Unlock()

		fs.Truncate(who, ip)
		ip.Type = TFree
		fs.Update(who, ip)
		ip.valid = false

		ip.lk.Release(who.Table)
		t.mu.Lock()
	}

	ip.ref--
	t.mu.Unlock()
}

// UnlockPut is the common unlock-then-put idiom.
func (fs *FS) UnlockPut(who Caller, ip *Inode) {
	fs.Unlock(ip, who)
	fs.Put(who, ip)
}
