package vimixfs

// zeroBlock overwrites a data block with zeros, logged as part of the
// caller's transaction (spec.md §4.9 "zeroes the data block").
func (fs *FS) zeroBlock(who Caller, bno uint32) {
	b := fs.cache.GetForOverwrite(fs.dev, bno, who.Caller)
	for i := range b.Data {
		b.Data[i] = 0
	}
	fs.cache.Write(b)
	fs.logWrite(who, b)
	fs.cache.Release(b, who.Caller)
}

// balloc scans the bitmap for the first clear bit, sets it under a
// logged buffer write, zeroes the data block, and returns its number;
// 0 means out of space (spec.md §4.9 "Block allocator").
func (fs *FS) balloc(who Caller) uint32 {
	for base := uint32(0); base < fs.sb.Size; base += BPB {
		b, ok := fs.cache.Read(fs.dev, fs.sb.BBlock(base), who.Caller)
		if !ok {
			panic("vimixfs: failed to read bitmap block")
		}
		for bi := uint32(0); bi < BPB && base+bi < fs.sb.Size; bi++ {
			mask := byte(1 << (bi % 8))
			if b.Data[bi/8]&mask == 0 {
				b.Data[bi/8] |= mask
				fs.cache.Write(b)
				fs.logWrite(who, b)
				fs.cache.Release(b, who.Caller)
				fs.zeroBlock(who, base+bi)
				return base + bi
			}
		}
		fs.cache.Release(b, who.Caller)
	}
	return 0
}

// bfree clears b's bitmap bit, logged as part of the caller's
// transaction. Panics if the block was already free, matching
// original_source's "freeing free block" invariant check.
func (fs *FS) bfree(who Caller, bno uint32) {
	b, ok := fs.cache.Read(fs.dev, fs.sb.BBlock(bno), who.Caller)
	if !ok {
		panic("vimixfs: failed to read bitmap block")
	}
	bi := bno % BPB
	mask := byte(1 << (bi % 8))
	if b.Data[bi/8]&mask == 0 {
		panic("vimixfs: freeing free block")
	}
	b.Data[bi/8] &^= mask
	fs.cache.Write(b)
	fs.logWrite(who, b)
	fs.cache.Release(b, who.Caller)
}
