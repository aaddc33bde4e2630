package vimixfs

// Stat is the subset of inode metadata exposed to a fstat-style
// syscall (grounded on inode_stat).
type Stat struct {
	Dev   int
	Inum  uint32
	Type  FileType
	NLink int16
	Size  uint32
}

// GetStat copies ip's metadata into a Stat value. Caller must hold
// ip's lock.
func (fs *FS) GetStat(ip *Inode) Stat {
	return Stat{
		Dev:   ip.Dev,
		Inum:  ip.Inum,
		Type:  ip.Type,
		NLink: ip.NLink,
		Size:  ip.Size,
	}
}
