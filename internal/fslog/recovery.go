package fslog

import (
	"encoding/binary"

	"github.com/jrmenzel/vimix/internal/bio"
)

// encodeHeader packs the in-memory header (n followed by n block
// numbers) into one on-disk block using little-endian fields, matching
// the plain-C-struct layout of vimixfs_log_header (n:uint32 then a
// block array) that install_trans/read_head/write_head manipulate
// directly in the original.
func (l *Log) encodeHeader(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(l.lhN))
	for i := 0; i < l.lhN; i++ {
		binary.LittleEndian.PutUint32(buf[4+i*4:8+i*4], l.lhBlock[i])
	}
}

func (l *Log) decodeHeader(buf []byte) {
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	if n > l.size {
		panic("fslog: corrupt log header: n exceeds log capacity")
	}
	l.lhN = n
	for i := 0; i < n; i++ {
		l.lhBlock[i] = binary.LittleEndian.Uint32(buf[4+i*4 : 8+i*4])
	}
}

// readHead loads the on-disk header into l.lhN/l.lhBlock.
func (l *Log) readHead(who bio.Caller) {
	b, ok := l.cache.Read(l.dev, l.start, who)
	if !ok {
		panic("fslog: failed to read log header")
	}
	l.decodeHeader(b.Data[:])
	l.cache.Release(b, who)
}

// writeHead rewrites the on-disk header; this is the true commit point
// for a transaction, and (with lhN == 0) the point that erases one.
func (l *Log) writeHead(who bio.Caller) {
	b := l.cache.GetForOverwrite(l.dev, l.start, who)
	for i := range b.Data {
		b.Data[i] = 0
	}
	l.encodeHeader(b.Data[:])
	if !l.cache.Write(b) {
		l.cache.Release(b, who)
		panic("fslog: failed to write log header")
	}
	l.cache.Release(b, who)
}

// installTrans copies every block named in the header from its log
// slot to its home location. Every destination write is a full-block
// overwrite, so replaying it again after a crash mid-install is safe.
func (l *Log) installTrans(who bio.Caller) {
	for tail := 0; tail < l.lhN; tail++ {
		lbuf, ok := l.cache.Read(l.dev, l.start+uint32(tail)+1, who)
		if !ok {
			panic("fslog: failed to read log slot during install")
		}
		dbuf := l.cache.GetForOverwrite(l.dev, l.lhBlock[tail], who)
		copy(dbuf.Data[:], lbuf.Data[:])
		if !l.cache.Write(dbuf) {
			panic("fslog: failed to install transaction block")
		}
		l.cache.Release(dbuf, who)
		l.cache.Release(lbuf, who)
	}
}

// recoverFromLog runs once per mount (spec.md §4.8 "Recovery"): read
// the header; if n > 0, replay the committed transaction to its home
// locations, then erase the header. A crash before the header write
// never reached commit, so n == 0 and this is a no-op; a crash after
// the header write is completed here; a crash during installTrans is
// idempotent since every destination write is total-block-overwrite.
func (l *Log) recoverFromLog(who bio.Caller) {
	l.readHead(who)
	l.installTrans(who)
	l.lhN = 0
	l.writeHead(who)
}
