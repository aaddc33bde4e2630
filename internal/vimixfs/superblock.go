// Package vimixfs implements the on-disk journaled filesystem of
// spec.md §4.9: superblock, bitmap-backed block allocator, inode
// table, directory entries, and path resolution, sitting on top of
// internal/bio and internal/fslog.
//
// Grounded on original_source/kernel/fs/vimixfs/vimixfs.c and
// vimixfs.h for semantics (balloc/bfree, inode_alloc/iget/ilock,
// bmap/truncate, directory lookup/link, namex path walk); the exact
// on-disk field order and sizes follow spec.md §4.9 directly since the
// vimixfs.h struct header itself was not part of the retrieval.
package vimixfs

import (
	"encoding/binary"

	"github.com/jrmenzel/vimix/internal/common"
)

const (
	Magic = 0x76366673 // "v6fs"-shaped sentinel, spec.md §4.9 "fixed 32-bit sentinel"

	RootIno = 1 // root inode number; inode 0 means "unused" in directory entries

	DinodeSize = 64 // bytes per on-disk inode record
	IPB        = common.BSIZE / DinodeSize

	NDirect   = 12
	NIndirect = common.BSIZE / 4 // 256 block-number slots per indirect block
	MaxFile   = NDirect + NIndirect

	DirentSize = 16
	NameMax    = 14

	BootBlock = 0
	SBBlock   = 1
)

// BPB is the number of blocks the bitmap tracks per bitmap block.
const BPB = common.BSIZE * 8

// Superblock is the on-disk filesystem descriptor (spec.md §4.9
// "On-disk superblock"), block 1 of the device. Field order is
// load-bearing for cross-compatibility with an external mkfs and is
// preserved byte-for-byte in encode/decode.
type Superblock struct {
	Magic      uint32
	Size       uint32 // total number of blocks on the filesystem
	NBlocks    uint32 // number of data blocks
	NInodes    uint32 // number of inodes
	NLog       uint32 // number of log blocks (excluding header)
	LogStart   uint32 // block number of the first log block (the header)
	InodeStart uint32 // block number of the first inode block
	BmapStart  uint32 // block number of the first bitmap block
}

const superblockWireSize = 4 * 8

func (sb *Superblock) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], sb.Size)
	binary.LittleEndian.PutUint32(buf[8:12], sb.NBlocks)
	binary.LittleEndian.PutUint32(buf[12:16], sb.NInodes)
	binary.LittleEndian.PutUint32(buf[16:20], sb.NLog)
	binary.LittleEndian.PutUint32(buf[20:24], sb.LogStart)
	binary.LittleEndian.PutUint32(buf[24:28], sb.InodeStart)
	binary.LittleEndian.PutUint32(buf[28:32], sb.BmapStart)
}

func (sb *Superblock) Decode(buf []byte) {
	sb.Magic = binary.LittleEndian.Uint32(buf[0:4])
	sb.Size = binary.LittleEndian.Uint32(buf[4:8])
	sb.NBlocks = binary.LittleEndian.Uint32(buf[8:12])
	sb.NInodes = binary.LittleEndian.Uint32(buf[12:16])
	sb.NLog = binary.LittleEndian.Uint32(buf[16:20])
	sb.LogStart = binary.LittleEndian.Uint32(buf[20:24])
	sb.InodeStart = binary.LittleEndian.Uint32(buf[24:28])
	sb.BmapStart = binary.LittleEndian.Uint32(buf[28:32])
}

// IBlock returns the block holding inode inum's on-disk record.
func (sb *Superblock) IBlock(inum uint32) uint32 {
	return inum/uint32(IPB) + sb.InodeStart
}

// BBlock returns the bitmap block tracking data block b.
func (sb *Superblock) BBlock(b uint32) uint32 {
	return b/BPB + sb.BmapStart
}
