package syscall

import (
	"encoding/binary"

	"github.com/jrmenzel/vimix/internal/vfs"
)

// statSize is the on-wire layout fstat copies out to userspace: dev
// (int32), ino (uint64), type (int16), nlink (int16), size (uint64),
// little-endian throughout like every other on-disk/on-wire struct in
// this kernel (grounded on dinode.go's Encode/Decode convention; the
// field order mirrors struct stat's dev/ino/type/nlink/size).
const statSize = 4 + 8 + 2 + 2 + 8

func encodeStat(st vfs.Stat) []byte {
	buf := make([]byte, statSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(st.Dev)))
	binary.LittleEndian.PutUint64(buf[4:12], st.Ino)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(st.Type))
	binary.LittleEndian.PutUint16(buf[14:16], uint16(st.NLink))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(st.Size))
	return buf
}
