// Package vfs dispatches filesystem operations across several
// backends (the on-disk journaled filesystem, devfs, sysfs) without
// relying on struct embedding or a common base type: each mounted
// filesystem contributes an Ops table, and every node remembers which
// table created it, so dispatch is always node.Ops.Xxx(who, node.Node,
// ...) regardless of which filesystem actually backs it (spec.md
// §4.10 "a filesystem operations table bound to its device"; grounded
// on original_source/kernel/fs/vfs_operations.h's inode_operations/
// super_operations tagged dispatch).
package vfs

// FileType mirrors vimixfs.FileType at the VFS boundary so devfs and
// sysfs can describe their own nodes without importing vimixfs.
type FileType int

const (
	TFree FileType = iota
	TDir
	TFile
	TCharDev
	TBlockDev
	TPipe
)

// Stat is the filesystem-agnostic metadata surface exposed to a
// fstat-style syscall.
type Stat struct {
	Dev   int
	Ino   uint64
	Type  FileType
	NLink int16
	Size  uint32
	Major int16 // meaningful only when Type == TCharDev/TBlockDev
}

// DirEntry is one decoded directory entry returned by an Ops.GetDirent
// call, independent of how the backing filesystem stores it on disk.
type DirEntry struct {
	Ino  uint64
	Name string
}

// Node is an opaque, backend-owned in-memory inode handle. Callers
// never type-switch on it themselves; they always go through the Ops
// table that produced it.
type Node interface {
	Stat() Stat
}

// Ops is one filesystem's operation table (spec.md §4.10; grounded on
// original_source's inode_operations/super_operations split, collapsed
// into a single table since this port has no separate super_operations
// concerns beyond Root). who is an opaque per-call context (the
// concrete Caller type of whichever filesystem owns the node);
// backends type-assert it to their own Caller type.
type Ops struct {
	Root      func(who any) Node
	Lookup    func(who any, dir Node, name string) (Node, bool)
	Create    func(who any, dir Node, name string, typ FileType, major, minor int16) (Node, bool)
	Open      func(who any, dir Node, name string, truncate bool) (Node, bool)
	Link      func(who any, dir, target Node, name string) error
	Unlink    func(who any, dir Node, name string, allowFiles, allowDirs bool) error
	GetDirent func(who any, dir Node, pos uint32) (DirEntry, uint32, bool)
	Read      func(who any, n Node, dst []byte, off, length uint32) int
	Write     func(who any, n Node, src []byte, off, length uint32) int
	Unlock    func(who any, n Node)
	Put       func(who any, n Node)

	// DotDot answers ".." when dir is this filesystem's own root and
	// the lookup cannot be satisfied as a plain directory entry (devfs
	// and sysfs have no real "file" for their own parent; vimixfs
	// leaves this nil since its "." and ".." are ordinary entries
	// Lookup already resolves). Resolve calls this only after Lookup
	// itself reports no match.
	DotDot func(who any, dir Node) (Ref, bool)
}

// Ref pairs a Node with the Ops table that produced it, the unit that
// flows through every VFS call site (the Go analogue of a C inode
// carrying its own i_sb->i_op pointer).
type Ref struct {
	Node Node
	Ops  *Ops
}

func (r Ref) Stat() Stat { return r.Node.Stat() }
