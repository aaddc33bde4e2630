package vimixfs

import "errors"

var (
	ErrExist    = errors.New("vimixfs: name already exists")
	ErrNotExist = errors.New("vimixfs: no such file or directory")
	ErrIsDir    = errors.New("vimixfs: is a directory")
	ErrNotDir   = errors.New("vimixfs: not a directory")
	ErrNotEmpty = errors.New("vimixfs: directory not empty")
)

// Link adds a new name for ip inside dir, bumping ip's link count. On
// failure to link (e.g. name already exists) the link count is rolled
// back (spec.md §4.10; grounded on vimixfs_iops_link). Neither dir nor
// ip may be locked on entry.
func (fs *FS) Link(who Caller, dir, ip *Inode, name string) error {
	if !fs.Begin(who, 16) {
		return ErrNotExist
	}
	defer fs.End(who)

	fs.Lock(dir, who)
	fs.Lock(ip, who)
	ip.NLink++
	fs.Update(who, ip)
	fs.Unlock(ip, who)

	if !fs.DirLink(who, dir, name, ip.Inum) {
		fs.Unlock(dir, who)

		fs.Lock(ip, who)
		ip.NLink--
		fs.Update(who, ip)
		fs.Unlock(ip, who)
		return ErrExist
	}

	fs.Unlock(dir, who)
	return nil
}

// isDirEmpty reports whether dir contains nothing but "." and ".."
// (spec.md §4.10 "rmdir refuses a non-empty directory"; grounded on
// isdirempty). Caller must hold dir's lock.
func (fs *FS) isDirEmpty(who Caller, dir *Inode) bool {
	var de Dirent
	buf := make([]byte, DirentSize)
	for off := uint32(2 * DirentSize); off < dir.Size; off += DirentSize {
		if fs.Read(who, dir, buf, off, DirentSize) != DirentSize {
			panic("vimixfs: isdirempty: short read")
		}
		de.Decode(buf)
		if de.Inum != 0 {
			return false
		}
	}
	return true
}

// Unlink removes name from dir. allowFiles/allowDirs gate which kind
// of target is acceptable, and a non-empty directory is always
// refused (spec.md §4.10; grounded on vimixfs_iops_unlink).
func (fs *FS) Unlink(who Caller, dir *Inode, name string, allowFiles, allowDirs bool) error {
	if !fs.Begin(who, 16) {
		return ErrNotExist
	}
	defer fs.End(who)

	fs.Lock(dir, who)
	ip, off := fs.DirLookup(who, dir, name)
	if ip == nil {
		fs.Unlock(dir, who)
		return ErrNotExist
	}
	fs.Lock(ip, who)

	if ip.NLink < 1 {
		panic("vimixfs: unlink: nlink < 1")
	}

	var err error
	switch {
	case ip.Type == TDir && !allowDirs:
		err = ErrIsDir
	case ip.Type != TDir && !allowFiles:
		err = ErrNotDir
	case ip.Type == TDir && !fs.isDirEmpty(who, ip):
		err = ErrNotEmpty
	}
	if err != nil {
		fs.UnlockPut(who, ip)
		fs.UnlockPut(who, dir)
		return err
	}

	if !fs.DirUnlink(who, dir, off) {
		panic("vimixfs: unlink: failed to clear directory entry")
	}

	if ip.Type == TDir {
		dir.NLink--
		fs.Update(who, dir)
	}
	fs.UnlockPut(who, dir)

	ip.NLink--
	fs.Update(who, ip)
	fs.UnlockPut(who, ip)

	return nil
}
