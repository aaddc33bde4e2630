// Package sysfs synthesizes a read-only directory tree from
// registered show() callbacks, the same way a driver exposes a
// counter or a flag as a pseudo-file without ever touching a disk
// (internal/kernel registers one such file, free_pages, with the
// page-allocator's free-page count; grounded on
// original_source/kernel/fs/sysfs/sysfs.c).
package sysfs

import (
	"errors"
	"strings"
	"sync"

	"github.com/jrmenzel/vimix/internal/vfs"
)

// ErrNotSupported is returned by every mutating operation: sysfs's
// inode_operations table wires iops_create/iops_link/iops_unlink to
// the kernel's shared read-only stubs (iops_create_default_ro and
// friends), never a real implementation.
var ErrNotSupported = errors.New("sysfs: operation not supported")

// ShowFunc renders one attribute's current value on demand, mirroring
// struct sysfs_ops.show being called lazily from sysfs_iops_read
// rather than the value being cached in the node.
type ShowFunc func() (string, error)

// Node is one sysfs inode: either a directory (Show == nil) or a leaf
// attribute file. Nodes are created once at registration time and
// never freed, unlike vimixfs's on-disk inodes (grounded on
// sysfs_node_alloc_init's "created once, lives for the kobject's
// lifetime" discipline, simplified here since this port has no
// kobject hierarchy to unregister).
type Node struct {
	fs       *FS
	inum     uint64
	name     string
	parent   *Node
	children []*Node
	show     ShowFunc
}

// Stat satisfies vfs.Node. A directory reports Size 0; an attribute
// file reports a fixed placeholder size, matching
// sysfs_create_inode_from_node's literal "size = 1024" for attribute
// inodes (the real length is only known once Show is actually called).
func (n *Node) Stat() vfs.Stat {
	if n.show == nil {
		return vfs.Stat{Dev: n.fs.dev, Ino: n.inum, Type: vfs.TDir, NLink: 1}
	}
	return vfs.Stat{Dev: n.fs.dev, Ino: n.inum, Type: vfs.TFile, NLink: 1, Size: 1024}
}

// FS is one mounted sysfs tree.
type FS struct {
	mu        sync.RWMutex
	dev       int
	root      *Node
	nextInum  uint64
	mountedOn vfs.Ref
}

// New creates an empty sysfs tree mounted under mountedOn (grounded
// on sysfs_init_fs_super_block, which reserves inode 0 and starts
// allocating attribute inodes from 1).
func New(dev int, mountedOn vfs.Ref) *FS {
	fs := &FS{dev: dev, mountedOn: mountedOn, nextInum: 1}
	fs.root = &Node{fs: fs, inum: 0, name: "/"}
	return fs
}

// Root returns the tree's directory root.
func (fs *FS) Root() *Node { return fs.root }

// Dir registers a new directory under parent (root if parent is nil),
// grounded on sysfs_register_kobject_parent allocating one sysfs_node
// per kobject before its attributes.
func (fs *FS) Dir(parent *Node, name string) *Node {
	if parent == nil {
		parent = fs.root
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := &Node{fs: fs, inum: fs.nextInum, name: name, parent: parent}
	fs.nextInum++
	parent.children = append(parent.children, n)
	return n
}

// File registers a new read-only attribute file under parent, backed
// by show, grounded on sysfs_register_kobject_parent's per-attribute
// sysfs_node_alloc_init calls.
func (fs *FS) File(parent *Node, name string, show ShowFunc) *Node {
	if parent == nil {
		parent = fs.root
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := &Node{fs: fs, inum: fs.nextInum, name: name, parent: parent, show: show}
	fs.nextInum++
	parent.children = append(parent.children, n)
	return n
}

func asNode(n *Node) vfs.Node {
	if n == nil {
		return nil
	}
	return n
}

func asSysfsNode(n vfs.Node) *Node {
	if n == nil {
		return nil
	}
	return n.(*Node)
}

// Lookup resolves name inside dir (grounded on sysfs_iops_dir_lookup:
// "." dups dir itself, ".." walks to dir.parent or, for the tree
// root, escapes through the mount point's own lookup).
func (fs *FS) Lookup(dir *Node, name string) (*Node, bool) {
	switch name {
	case ".":
		return dir, true
	case "..":
		if dir.parent != nil {
			return dir.parent, true
		}
		return nil, false // caller must use LookupDotDot for the tree root
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()
	for _, c := range dir.children {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// LookupDotDot resolves ".." at the tree root by looking it up from
// the host directory sysfs is mounted on, not by returning that host
// directory itself (grounded on sysfs_iops_dir_lookup's
// "parent_inum == INVALID_INODE" branch: inode_lock(dir->i_sb->
// imounted_on) followed by VFS_INODE_DIR_LOOKUP(imounted_on, "..",
// NULL), escaping one level further than the mount point).
func (fs *FS) LookupDotDot(who any) (vfs.Ref, bool) {
	if fs.mountedOn.Node == nil {
		return vfs.Ref{}, false
	}
	n, ok := fs.mountedOn.Ops.Lookup(who, fs.mountedOn.Node, "..")
	if !ok {
		return vfs.Ref{}, false
	}
	return vfs.Ref{Node: n, Ops: fs.mountedOn.Ops}, true
}

// GetDirent enumerates "." at seek 0, ".." at seek 1, then one child
// per subsequent seek position (grounded on sysfs_iops_get_dirent).
func (fs *FS) GetDirent(dir *Node, pos uint32) (vfs.DirEntry, uint32, bool) {
	switch pos {
	case 0:
		return vfs.DirEntry{Ino: dir.inum, Name: "."}, 1, true
	case 1:
		parentIno := dir.inum
		switch {
		case dir.parent != nil:
			parentIno = dir.parent.inum
		case fs.mountedOn.Node != nil:
			parentIno = fs.mountedOn.Stat().Ino
		}
		return vfs.DirEntry{Ino: parentIno, Name: ".."}, 2, true
	default:
		fs.mu.RLock()
		defer fs.mu.RUnlock()
		i := int(pos) - 2
		if i >= len(dir.children) {
			return vfs.DirEntry{}, pos, false
		}
		return vfs.DirEntry{Ino: dir.children[i].inum, Name: dir.children[i].name}, pos + 1, true
	}
}

// Read renders n's current value via its Show callback and copies the
// slice starting at off into dst, clamping to what Show produced
// (grounded on sysfs_iops_read's copy-from-rendered-buffer logic).
func (fs *FS) Read(n *Node, dst []byte, off, length uint32) int {
	if n.show == nil {
		return 0
	}
	val, err := n.show()
	if err != nil {
		return 0
	}
	body := []byte(val)
	if uint32(len(body)) <= off {
		return 0
	}
	body = body[off:]
	if uint32(len(body)) > length {
		body = body[:length]
	}
	return copy(dst, body)
}

// Ops builds the vfs.Ops table for a mounted sysfs tree. Create,
// Link, Unlink, and Write are all refused, matching the read-only
// stubs sysfs wires into its inode_operations/file_operations tables.
func (fs *FS) Ops() *vfs.Ops {
	return &vfs.Ops{
		Root: func(who any) vfs.Node { return asNode(fs.root) },
		Lookup: func(who any, dir vfs.Node, name string) (vfs.Node, bool) {
			n, ok := fs.Lookup(asSysfsNode(dir), name)
			return asNode(n), ok
		},
		Create: func(who any, dir vfs.Node, name string, typ vfs.FileType, major, minor int16) (vfs.Node, bool) {
			return nil, false
		},
		Open: func(who any, dir vfs.Node, name string, truncate bool) (vfs.Node, bool) {
			n, ok := fs.Lookup(asSysfsNode(dir), name)
			return asNode(n), ok
		},
		Link: func(who any, dir, target vfs.Node, name string) error {
			return ErrNotSupported
		},
		Unlink: func(who any, dir vfs.Node, name string, allowFiles, allowDirs bool) error {
			return ErrNotSupported
		},
		GetDirent: func(who any, dir vfs.Node, pos uint32) (vfs.DirEntry, uint32, bool) {
			return fs.GetDirent(asSysfsNode(dir), pos)
		},
		Read: func(who any, n vfs.Node, dst []byte, off, length uint32) int {
			return fs.Read(asSysfsNode(n), dst, off, length)
		},
		Write: func(who any, n vfs.Node, src []byte, off, length uint32) int {
			return 0
		},
		Unlock: func(who any, n vfs.Node) {},
		Put:    func(who any, n vfs.Node) {},
		DotDot: func(who any, dir vfs.Node) (vfs.Ref, bool) {
			n := asSysfsNode(dir)
			if n.parent != nil {
				return vfs.Ref{}, false
			}
			return fs.LookupDotDot(who)
		},
	}
}

// Path registers nested directories for a slash-separated path under
// root, creating any that don't yet exist, then returns the final
// directory node. A convenience for grouping related attributes (e.g.
// "mm" before registering "mm/free_pages"); not present in the
// original, which always registers one kobject at a time.
func (fs *FS) Path(path string) *Node {
	dir := fs.root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		found := false
		fs.mu.RLock()
		for _, c := range dir.children {
			if c.name == part && c.show == nil {
				dir = c
				found = true
				break
			}
		}
		fs.mu.RUnlock()
		if !found {
			dir = fs.Dir(dir, part)
		}
	}
	return dir
}
