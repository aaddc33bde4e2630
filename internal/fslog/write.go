package fslog

import "github.com/jrmenzel/vimix/internal/bio"

// Write records that buffer b must be part of the current transaction
// instead of being written to its home location immediately (spec.md
// §4.8 "log_write absorption"): if b's block is already pinned in this
// transaction the slot is reused, otherwise a new slot is claimed and
// the buffer is pinned so it survives until commit copies it out.
func (l *Log) Write(pid int, b *bio.Buf) {
	l.lk.Lock()
	defer l.lk.Unlock()

	if l.lhN >= l.size {
		panic("fslog: transaction too big for log")
	}
	if l.outstanding < 1 {
		panic("fslog: Write called outside a transaction")
	}

	slot := l.clientFromPid(pid)
	if slot < 0 {
		panic("fslog: Write called for pid with no reservation")
	}

	absorbed := false
	for i := 0; i < l.lhN; i++ {
		if l.lhBlock[i] == b.Blockno {
			absorbed = true
			break
		}
	}
	if !absorbed {
		l.cache.Pin(b)
		l.lhBlock[l.lhN] = b.Blockno
		l.lhBuf[l.lhN] = b
		l.lhN++
		l.blocksUsed[slot]++
	}
}

// writeLog copies every pinned buffer from its in-memory contents into
// its log slot on disk, ahead of the header write that makes the
// transaction durable.
func (l *Log) writeLog(who bio.Caller) {
	for tail := 0; tail < l.lhN; tail++ {
		lbuf := l.cache.GetForOverwrite(l.dev, l.start+uint32(tail)+1, who)
		dbuf, ok := l.cache.Read(l.dev, l.lhBlock[tail], who)
		if !ok {
			panic("fslog: failed to read dirty block for log write")
		}
		copy(lbuf.Data[:], dbuf.Data[:])
		if !l.cache.Write(lbuf) {
			panic("fslog: failed to write log slot")
		}
		l.cache.Release(dbuf, who)
		l.cache.Release(lbuf, who)
	}
}

// commit is the two-phase commit at the heart of crash safety (spec.md
// §4.8 "commit sequence"): copy every dirty block into the log, make
// the transaction durable with one header write, install the blocks at
// their home locations, then erase the header so recovery never
// replays a transaction twice.
func (l *Log) commit(who bio.Caller) {
	if l.lhN == 0 {
		return
	}
	l.writeLog(who)
	l.writeHead(who)
	l.installTrans(who)

	for i := 0; i < l.lhN; i++ {
		l.cache.Unpin(l.lhBuf[i])
		l.lhBuf[i] = nil
	}
	l.lhN = 0
	l.writeHead(who)
}

// GetClientAvailableBlocks reports how many more blocks pid may write
// in its current transaction before exceeding its reservation,
// matching log_get_client_available_blocks.
func (l *Log) GetClientAvailableBlocks(pid int) int {
	l.lk.Lock()
	defer l.lk.Unlock()

	slot := l.clientFromPid(pid)
	if slot < 0 {
		return 0
	}
	avail := l.blocksReserved[slot] - l.blocksUsed[slot]
	if avail < 0 {
		return 0
	}
	return avail
}
