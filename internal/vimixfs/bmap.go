package vimixfs

import "encoding/binary"

// bmap returns the disk block address of the bn'th block of ip,
// allocating it (and any indirect block needed to address it) on
// demand. Returns 0 if the filesystem is out of space (spec.md §4.9
// "Addressing (bmap)").
func (fs *FS) bmap(who Caller, ip *Inode, bn uint32) uint32 {
	if bn < NDirect {
		addr := ip.Addrs[bn]
		if addr == 0 {
			addr = fs.balloc(who)
			if addr == 0 {
				return 0
			}
			ip.Addrs[bn] = addr
		}
		return addr
	}
	bn -= NDirect

	if bn < NIndirect {
		addr := ip.Addrs[NDirect]
		if addr == 0 {
			addr = fs.balloc(who)
			if addr == 0 {
				return 0
			}
			ip.Addrs[NDirect] = addr
		}
		b, ok := fs.cache.Read(ip.Dev, addr, who.Caller)
		if !ok {
			panic("vimixfs: bmap: failed to read indirect block")
		}
		entry := binary.LittleEndian.Uint32(b.Data[bn*4 : bn*4+4])
		if entry == 0 {
			entry = fs.balloc(who)
			if entry != 0 {
				binary.LittleEndian.PutUint32(b.Data[bn*4:bn*4+4], entry)
				fs.cache.Write(b)
				fs.logWrite(who, b)
			}
		}
		fs.cache.Release(b, who.Caller)
		return entry
	}

	panic("vimixfs: bmap: out of range")
}

// Truncate frees every block of ip's content (direct, indirect, and
// the indirect block itself), sets its size to zero, and rewrites the
// inode. Caller must hold ip's lock.
func (fs *FS) Truncate(who Caller, ip *Inode) {
	for i := 0; i < NDirect; i++ {
		if ip.Addrs[i] != 0 {
			fs.bfree(who, ip.Addrs[i])
			ip.Addrs[i] = 0
		}
	}

	if ip.Addrs[NDirect] != 0 {
		b, ok := fs.cache.Read(ip.Dev, ip.Addrs[NDirect], who.Caller)
		if !ok {
			panic("vimixfs: truncate: failed to read indirect block")
		}
		for j := 0; j < NIndirect; j++ {
			addr := binary.LittleEndian.Uint32(b.Data[j*4 : j*4+4])
			if addr != 0 {
				fs.bfree(who, addr)
			}
		}
		fs.cache.Release(b, who.Caller)
		fs.bfree(who, ip.Addrs[NDirect])
		ip.Addrs[NDirect] = 0
	}

	ip.Size = 0
	fs.Update(who, ip)
}
