// Package devfs is a fixed-inode filesystem exposing one entry per
// registered device, with no dynamic inode creation (spec.md §5
// "devfs exposes one inode per registered driver major number";
// grounded on original_source/kernel/fs/devfs/devfs.c).
package devfs

import (
	"sync"

	"github.com/jrmenzel/vimix/internal/vfs"
)

// Device is one entry devfs exposes under its root directory,
// populated from the kernel's device registry at mount time
// (grounded on devfs_init_fs_super_block's walk of g_devices).
type Device struct {
	Name  string
	Major int16
	Minor int16
	Kind  vfs.FileType // TCharDev or TBlockDev
}

// Caller is the only context devfs operations need: nothing here
// blocks on a disk buffer or a journal transaction, so it carries no
// fields beyond a marker that a real caller is identified. Kept as a
// named type (rather than accepting who any directly in the package
// API) so call sites read the same way vimixfs.Caller's do.
type Caller struct{}

// Inode is devfs's in-memory node: either the fixed directory root
// (Index == rootIndex) or one of the registered devices (Index-2'th
// entry of the owning FS's device list), matching devfs_itable's
// fixed slot-per-device layout. Inodes are never allocated or freed
// after Mount.
type Inode struct {
	fs    *FS
	index uint32 // 0 = root; N>=2 = devices[N-2]
}

const rootIndex = 0

// Stat satisfies vfs.Node.
func (ip *Inode) Stat() vfs.Stat {
	if ip.index == rootIndex {
		return vfs.Stat{Dev: ip.fs.dev, Ino: uint64(rootIndex), Type: vfs.TDir, NLink: 1}
	}
	d := ip.fs.devices[ip.index-2]
	return vfs.Stat{Dev: ip.fs.dev, Ino: uint64(ip.index), Type: d.Kind, NLink: 1, Major: d.Major}
}

// FS is one mounted devfs instance.
type FS struct {
	mu        sync.Mutex
	dev       int
	devices   []Device
	root      *Inode
	mountedOn vfs.Ref // the directory devfs is mounted under, for ".."
}

// Mount builds a devfs instance exposing devices under dev, mounted
// as a subdirectory of mountedOn (grounded on
// devfs_init_fs_super_block: inode 0 is the directory root, followed
// by one inode per entry found walking the device registry).
func Mount(dev int, devices []Device, mountedOn vfs.Ref) *FS {
	fs := &FS{dev: dev, devices: devices, mountedOn: mountedOn}
	fs.root = &Inode{fs: fs, index: rootIndex}
	return fs
}

func (fs *FS) nodeForIndex(i uint32) *Inode {
	if i == rootIndex {
		return fs.root
	}
	if int(i-2) >= len(fs.devices) {
		return nil
	}
	return &Inode{fs: fs, index: i}
}

func asNode(ip *Inode) vfs.Node {
	if ip == nil {
		return nil
	}
	return ip
}

func asInode(n vfs.Node) *Inode {
	if n == nil {
		return nil
	}
	return n.(*Inode)
}

// Lookup resolves name inside dir: "." returns dir itself, ".."
// escapes through the mount point's own operations table, anything
// else is matched against the registered device names (grounded on
// devfs_iops_dir_lookup).
func (fs *FS) Lookup(dir *Inode, name string) (*Inode, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if dir.index != rootIndex {
		return nil, false
	}
	switch name {
	case ".":
		return dir, true
	case "..":
		return nil, false // caller must use LookupDotDot; devfs root has no sibling devfs inode
	}
	for i, d := range fs.devices {
		if d.Name == name {
			return fs.nodeForIndex(uint32(i + 2)), true
		}
	}
	return nil, false
}

// LookupDotDot resolves ".." by looking it up from the host directory
// devfs is mounted on, not by returning that directory itself
// (grounded on devfs_iops_dir_lookup's ".." branch:
// inode_lock(dir->i_sb->imounted_on) followed by
// VFS_INODE_DIR_LOOKUP(dir->i_sb->imounted_on, "..", NULL) — escaping
// the mount point one level further, the same as leaving any ordinary
// subdirectory).
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

// GetDirent enumerates "." at seek 0, ".." at seek 1, then one
// registered device per subsequent seek position (grounded on
// devfs_iops_get_dirent's seek-cursor scheme).
func (fs *FS) GetDirent(dir *Inode, pos uint32) (vfs.DirEntry, uint32, bool) {
	if dir.index != rootIndex {
		return vfs.DirEntry{}, pos, false
	}
	switch pos {
	case 0:
		return vfs.DirEntry{Ino: rootIndex, Name: "."}, 1, true
	case 1:
		parentIno := uint64(rootIndex)
		if fs.mountedOn.Node != nil {
			parentIno = fs.mountedOn.Stat().Ino
		}
		return vfs.DirEntry{Ino: parentIno, Name: ".."}, 2, true
	default:
		i := pos - 2
		if int(i) >= len(fs.devices) {
			return vfs.DirEntry{}, pos, false
		}
		return vfs.DirEntry{Ino: uint64(i + 2), Name: fs.devices[i].Name}, pos + 1, true
	}
}

// Ops builds the vfs.Ops table for a mounted devfs instance. Create,
// Link, Unlink, and Write are all refused: devfs has no dynamic
// inodes and no writable content of its own (grounded on
// devfs_sops_alloc_inode/devfs_iops_create returning NULL, and
// devfs_iops_link/devfs_iops_unlink/devfs_fops_write's printk-only
// stub bodies).
func (fs *FS) Ops() *vfs.Ops {
	return &vfs.Ops{
		Root: func(who any) vfs.Node { return asNode(fs.root) },
		Lookup: func(who any, dir vfs.Node, name string) (vfs.Node, bool) {
			ip, ok := fs.Lookup(asInode(dir), name)
			return asNode(ip), ok
		},
		Create: func(who any, dir vfs.Node, name string, typ vfs.FileType, major, minor int16) (vfs.Node, bool) {
			return nil, false
		},
		Open: func(who any, dir vfs.Node, name string, truncate bool) (vfs.Node, bool) {
			ip, ok := fs.Lookup(asInode(dir), name)
			return asNode(ip), ok
		},
		Link: func(who any, dir, target vfs.Node, name string) error {
			return ErrNotSupported
		},
		Unlink: func(who any, dir vfs.Node, name string, allowFiles, allowDirs bool) error {
			return ErrNotSupported
		},
		GetDirent: func(who any, dir vfs.Node, pos uint32) (vfs.DirEntry, uint32, bool) {
			return fs.GetDirent(asInode(dir), pos)
		},
		Read: func(who any, n vfs.Node, dst []byte, off, length uint32) int {
			return 0
		},
		Write: func(who any, n vfs.Node, src []byte, off, length uint32) int {
			return 0
		},
		Unlock: func(who any, n vfs.Node) {},
		Put:    func(who any, n vfs.Node) {},
		DotDot: func(who any, dir vfs.Node) (vfs.Ref, bool) {
			ip := asInode(dir)
			if ip.index != rootIndex {
				return vfs.Ref{}, false
			}
			return fs.LookupDotDot(who)
		},
	}
}

// DeviceOf reports the Device a devfs inode represents, for a driver
// opening its own device file to read back its registered
// major/minor pair. Ok is false for the root directory inode.
func DeviceOf(n vfs.Node) (Device, bool) {
	ip, ok := n.(*Inode)
	if !ok || ip.index == rootIndex {
		return Device{}, false
	}
	return ip.fs.devices[ip.index-2], true
}
