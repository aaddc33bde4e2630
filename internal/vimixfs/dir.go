package vimixfs

import "strings"

// namecmp compares two names to NameMax significant bytes, mirroring
// file_name_cmp's strncmp(s, t, XV6_NAME_MAX) in the original.
func namecmp(a, b string) bool {
	if len(a) > NameMax {
		a = a[:NameMax]
	}
	if len(b) > NameMax {
		b = b[:NameMax]
	}
	return a == b
}

// DirLookup scans dir for name, returning the matching (unlocked,
// referenced) inode and its byte offset, or nil if absent (spec.md
// §4.9 "Lookup linearly scans for a name match"). Caller must hold
// dir's lock.
func (fs *FS) DirLookup(who Caller, dir *Inode, name string) (*Inode, uint32) {
	if dir.Type != TDir {
		panic("vimixfs: dirlookup: not a directory")
	}

	var de Dirent
	buf := make([]byte, DirentSize)
	for off := uint32(0); off < dir.Size; off += DirentSize {
		if fs.Read(who, dir, buf, off, DirentSize) != DirentSize {
			panic("vimixfs: dirlookup: short read")
		}
		de.Decode(buf)
		if de.Inum == 0 {
			continue
		}
		if namecmp(name, de.NameString()) {
			return fs.iget(dir.Dev, uint32(de.Inum)), off
		}
	}
	return nil, 0
}

// DirLink writes a new (name, inum) entry into dir, reusing the first
// empty slot. Returns false if name already exists or the directory
// could not be extended (spec.md §4.9 "link writes the first free
// slot"). Caller must hold dir's lock and have an open transaction.
func (fs *FS) DirLink(who Caller, dir *Inode, name string, inum uint32) bool {
	if existing, _ := fs.DirLookup(who, dir, name); existing != nil {
		fs.Put(who, existing)
		return false
	}

	var de Dirent
	buf := make([]byte, DirentSize)
	off := uint32(0)
	for ; off < dir.Size; off += DirentSize {
		if fs.Read(who, dir, buf, off, DirentSize) != DirentSize {
			panic("vimixfs: dirlink: short read")
		}
		de.Decode(buf)
		if de.Inum == 0 {
			break
		}
	}

	de = Dirent{Inum: uint16(inum)}
	de.SetName(name)
	de.Encode(buf)
	return fs.Write(who, dir, buf, off, DirentSize) == DirentSize
}

// DirUnlink clears the directory entry at off, the inverse of
// DirLink (spec.md §4.9 "An unlink zeroes the slot").
func (fs *FS) DirUnlink(who Caller, dir *Inode, off uint32) bool {
	empty := make([]byte, DirentSize)
	return fs.Write(who, dir, empty, off, DirentSize) == DirentSize
}

// skipelem copies the next path element from path into name and
// returns the remainder with leading slashes stripped, or ("", false)
// if path names nothing (spec.md §4.9, mirroring skipelem's examples).
func skipelem(path string) (name, rest string, ok bool) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "", "", false
	}
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return path, "", true
	}
	return path[:i], strings.TrimLeft(path[i+1:], "/"), true
}

// Namex resolves path to an inode, starting from root if path is
// absolute or from cwd otherwise. If getParent is true, it stops one
// level early and returns the parent directory (unlocked) plus the
// final path element's name, matching namex(path, 1, name).
func (fs *FS) Namex(who Caller, root, cwd *Inode, path string, getParent bool) (*Inode, string) {
	var ip *Inode
	if strings.HasPrefix(path, "/") {
		ip = fs.Dup(root)
	} else {
		ip = fs.Dup(cwd)
	}

	rest := path
	for {
		var name string
		var ok bool
		name, rest, ok = skipelem(rest)
		if !ok {
			break
		}

		fs.Lock(ip, who)
		if ip.Type != TDir {
			fs.UnlockPut(who, ip)
			return nil, ""
		}
		if getParent && rest == "" {
			fs.Unlock(ip, who)
			return ip, name
		}
		next, _ := fs.DirLookup(who, ip, name)
		if next == nil {
			fs.UnlockPut(who, ip)
			return nil, ""
		}
		fs.UnlockPut(who, ip)
		ip = next
	}

	if getParent {
		fs.Put(who, ip)
		return nil, ""
	}
	return ip, ""
}

// InodeFromPath resolves path to its inode (spec.md §4.10 path
// resolution).
func (fs *FS) InodeFromPath(who Caller, root, cwd *Inode, path string) *Inode {
	ip, _ := fs.Namex(who, root, cwd, path, false)
	return ip
}

// InodeOfParentFromPath resolves path's parent directory and returns
// the final element's name alongside it.
func (fs *FS) InodeOfParentFromPath(who Caller, root, cwd *Inode, path string) (*Inode, string) {
	return fs.Namex(who, root, cwd, path, true)
}
