package vimixfs

import "github.com/jrmenzel/vimix/internal/vfs"

// Stat satisfies vfs.Node so an *Inode can flow through the generic
// VFS dispatch layer unchanged.
func (ip *Inode) Stat() vfs.Stat {
	return vfs.Stat{
		Dev:   ip.Dev,
		Ino:   uint64(ip.Inum),
		Type:  toVFSType(ip.Type),
		NLink: ip.NLink,
		Size:  ip.Size,
		Major: ip.Major,
	}
}

func toVFSType(t FileType) vfs.FileType {
	switch t {
	case TDir:
		return vfs.TDir
	case TFile:
		return vfs.TFile
	case TCharDev:
		return vfs.TCharDev
	case TBlockDev:
		return vfs.TBlockDev
	default:
		return vfs.TFree
	}
}

func fromVFSType(t vfs.FileType) FileType {
	switch t {
	case vfs.TDir:
		return TDir
	case vfs.TFile:
		return TFile
	case vfs.TCharDev:
		return TCharDev
	case vfs.TBlockDev:
		return TBlockDev
	default:
		return TFree
	}
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

// Ops builds the vfs.Ops table dispatching onto fs, binding every
// method to its concrete Caller type (spec.md §4.10 "tagged operation
// tables"; grounded on vimixfs.c's vimixfs_i_op/vimixfs_f_op struct
// literals, the same operation surface collapsed here into closures
// over fs instead of a struct of function pointers).
func (fs *FS) Ops() *vfs.Ops {
	return &vfs.Ops{
		Root: func(who any) vfs.Node {
			ip := fs.IGetRoot()
			// Validate eagerly so Stat() is safe on the returned node
			// even if the caller never locks it itself (mirrors namex
			// always ilock()ing before reading ip->type).
			if w, ok := who.(Caller); ok {
				fs.Lock(ip, w)
				fs.Unlock(ip, w)
			}
			return asNode(ip)
		},
		Lookup: func(who any, dir vfs.Node, name string) (vfs.Node, bool) {
			w := who.(Caller)
			d := asInode(dir)
			fs.Lock(d, w)
			ip, _ := fs.DirLookup(w, d, name)
			fs.Unlock(d, w)
			if ip == nil {
				return nil, false
			}
			// DirLookup returns ip unlocked and possibly never read
			// from disk; validate it the same way namex's next loop
			// iteration would via ilock(ip) before checking ip->type.
			fs.Lock(ip, w)
			fs.Unlock(ip, w)
			return asNode(ip), true
		},
		Create: func(who any, dir vfs.Node, name string, typ vfs.FileType, major, minor int16) (vfs.Node, bool) {
			w := who.(Caller)
			ip := fs.Create(w, asInode(dir), name, fromVFSType(typ), major, minor)
			return asNode(ip), ip != nil
		},
		Open: func(who any, dir vfs.Node, name string, truncate bool) (vfs.Node, bool) {
			w := who.(Caller)
			ip := fs.Open(w, asInode(dir), name, truncate)
			return asNode(ip), ip != nil
		},
		Link: func(who any, dir, target vfs.Node, name string) error {
			return fs.Link(who.(Caller), asInode(dir), asInode(target), name)
		},
		Unlink: func(who any, dir vfs.Node, name string, allowFiles, allowDirs bool) error {
			return fs.Unlink(who.(Caller), asInode(dir), name, allowFiles, allowDirs)
		},
		GetDirent: func(who any, dir vfs.Node, pos uint32) (vfs.DirEntry, uint32, bool) {
			entry, next, ok := fs.GetDirent(who.(Caller), asInode(dir), pos)
			return vfs.DirEntry{Ino: uint64(entry.Inum), Name: entry.Name}, next, ok
		},
		Read: func(who any, n vfs.Node, dst []byte, off, length uint32) int {
			w := who.(Caller)
			ip := asInode(n)
			fs.Lock(ip, w)
			defer fs.Unlock(ip, w)
			return fs.Read(w, ip, dst, off, length)
		},
		Write: func(who any, n vfs.Node, src []byte, off, length uint32) int {
			w := who.(Caller)
			ip := asInode(n)
			fs.Lock(ip, w)
			defer fs.Unlock(ip, w)
			return fs.Write(w, ip, src, off, length)
		},
		Unlock: func(who any, n vfs.Node) {
			fs.Unlock(asInode(n), who.(Caller))
		},
		Put: func(who any, n vfs.Node) {
			fs.Put(who.(Caller), asInode(n))
		},
	}
}
