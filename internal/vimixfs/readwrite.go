package vimixfs

import "github.com/jrmenzel/vimix/internal/common"

// Read copies up to n bytes of ip's content starting at off into dst,
// clamping n to the file's size. Caller must hold ip's lock. Returns
// the number of bytes actually read (spec.md §4.9 edge case "Reads
// past EOF yield zero bytes").
func (fs *FS) Read(who Caller, ip *Inode, dst []byte, off uint32, n uint32) int {
	if off > ip.Size || off+n < off {
		return 0
	}
	if off+n > ip.Size {
		n = ip.Size - off
	}

	var tot uint32
	for tot < n {
		addr := fs.bmap(who, ip, off/common.BSIZE)
		if addr == 0 {
			break
		}
		b, ok := fs.cache.Read(ip.Dev, addr, who.Caller)
		if !ok {
			break
		}
		m := n - tot
		if rem := common.BSIZE - off%common.BSIZE; m > rem {
			m = rem
		}
		copy(dst[tot:tot+m], b.Data[off%common.BSIZE:off%common.BSIZE+m])
		fs.cache.Release(b, who.Caller)

		tot += m
		off += m
	}
	return int(tot)
}

// Write copies n bytes from src into ip's content starting at off,
// extending the file and its block list as needed, and rewrites the
// inode even if size didn't change (bmap may have added a block).
// Fails (-1) for a write that would exceed the maximum file size
// (spec.md §4.9 edge case "writes past maximum file size fail").
// Caller must hold ip's lock and have an open transaction.
func (fs *FS) Write(who Caller, ip *Inode, src []byte, off uint32, n uint32) int {
	if off > ip.Size || off+n < off {
		return -1
	}
	if uint64(off)+uint64(n) > uint64(MaxFile)*common.BSIZE {
		return -1
	}

	var tot uint32
	for tot < n {
		addr := fs.bmap(who, ip, off/common.BSIZE)
		if addr == 0 {
			break
		}
		b, ok := fs.cache.Read(ip.Dev, addr, who.Caller)
		if !ok {
			break
		}
		m := n - tot
		if rem := common.BSIZE - off%common.BSIZE; m > rem {
			m = rem
		}
		copy(b.Data[off%common.BSIZE:off%common.BSIZE+m], src[tot:tot+m])
		fs.cache.Write(b)
		fs.logWrite(who, b)
		fs.cache.Release(b, who.Caller)

		tot += m
		off += m
	}

	if off > ip.Size {
		ip.Size = off
	}
	fs.Update(who, ip)
	return int(tot)
}
