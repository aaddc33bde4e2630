package vimixfs

// DirentEntry is one decoded directory entry, the payload returned by
// GetDirent for a getdents-style syscall.
type DirentEntry struct {
	Inum uint32
	Name string
}

// GetDirent reads the first used directory entry at or after seekPos,
// skipping over zeroed (unused) slots, and returns it alongside the
// seek position of the entry following it. ok is false once dir is
// exhausted (spec.md §4.10 "readdir enumerates entries one at a time
// via a seek cursor"; grounded on vimixfs_iops_get_dirent).
func (fs *FS) GetDirent(who Caller, dir *Inode, seekPos uint32) (entry DirentEntry, newSeekPos uint32, ok bool) {
	if dir.Type != TDir {
		return DirentEntry{}, seekPos, false
	}

	fs.Lock(dir, who)
	defer fs.Unlock(dir, who)

	var de Dirent
	buf := make([]byte, DirentSize)
	off := seekPos
	for {
		n := fs.Read(who, dir, buf, off, DirentSize)
		if n <= 0 {
			return DirentEntry{}, off, false
		}
		if n < DirentSize {
			return DirentEntry{}, off, false
		}
		de.Decode(buf)
		off += DirentSize
		if de.Inum != 0 {
			return DirentEntry{Inum: uint32(de.Inum), Name: de.NameString()}, off, true
		}
	}
}
