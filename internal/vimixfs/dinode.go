package vimixfs

import "encoding/binary"

// FileType tags the kind of object an inode describes (spec.md §4.9
// "type (free/dir/file/char-dev/block-dev)").
type FileType int16

const (
	TFree FileType = iota
	TDir
	TFile
	TCharDev
	TBlockDev
)

// Dinode is the on-disk inode record (spec.md §4.9 "Disk inode"): 64
// bytes, 16 per block. The last entry of Addrs is the singly-indirect
// block pointer, not a direct block.
type Dinode struct {
	Type  FileType
	Major int16
	Minor int16
	NLink int16
	Size  uint32
	Addrs [NDirect + 1]uint32
}

func (d *Dinode) Encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(d.Type))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(d.Major))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(d.Minor))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(d.NLink))
	binary.LittleEndian.PutUint32(buf[8:12], d.Size)
	for i, a := range d.Addrs {
		off := 12 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], a)
	}
}

func (d *Dinode) Decode(buf []byte) {
	d.Type = FileType(binary.LittleEndian.Uint16(buf[0:2]))
	d.Major = int16(binary.LittleEndian.Uint16(buf[2:4]))
	d.Minor = int16(binary.LittleEndian.Uint16(buf[4:6]))
	d.NLink = int16(binary.LittleEndian.Uint16(buf[6:8]))
	d.Size = binary.LittleEndian.Uint32(buf[8:12])
	for i := range d.Addrs {
		off := 12 + i*4
		d.Addrs[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
}

// Dirent is one 16-byte directory entry: an inode number (0 means
// unused) followed by a name truncated/padded to NameMax bytes
// (spec.md §4.9 "Directory entries are 16 bytes").
type Dirent struct {
	Inum uint16
	Name [NameMax]byte
}

func (de *Dirent) Encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], de.Inum)
	copy(buf[2:2+NameMax], de.Name[:])
}

func (de *Dirent) Decode(buf []byte) {
	de.Inum = binary.LittleEndian.Uint16(buf[0:2])
	copy(de.Name[:], buf[2:2+NameMax])
}

// SetName truncates name to NameMax bytes (spec.md §4.9 "Maximum
// filename 14 bytes") and zero-pads the remainder.
func (de *Dirent) SetName(name string) {
	de.Name = [NameMax]byte{}
	copy(de.Name[:], name)
}

// NameString returns the entry's name with trailing NUL padding
// stripped.
func (de *Dirent) NameString() string {
	n := 0
	for n < NameMax && de.Name[n] != 0 {
		n++
	}
	return string(de.Name[:n])
}
