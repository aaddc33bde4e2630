// Package fslog implements the write-ahead journal of spec.md §4.8: a
// fixed log region (header block + n payload slots) that every
// filesystem-modifying syscall wraps its buffer writes in, with a
// multi-writer reservation table and a crash-safe two-phase commit.
//
// Grounded directly on
// original_source/kernel/fs/vimixfs/log.c (log_init, install_trans,
// read_head/write_head, recover_from_log,
// log_begin_fs_transaction_explicit, log_end_fs_transaction, write_log,
// commit, log_write, log_get_client_available_blocks), translated from
// C structs/spinlocks into a Go struct guarded by
// internal/spinlock.Lock_t and internal/sleep's sleep/wakeup.
package fslog

import (
	"github.com/jrmenzel/vimix/internal/bio"
	"github.com/jrmenzel/vimix/internal/sleep"
	"github.com/jrmenzel/vimix/internal/spinlock"
)

// MaxConcurrentClients bounds the reservation table (spec.md §4.8
// "fixed slot table").
const MaxConcurrentClients = 10

// Log is the in-memory journal state for one mounted filesystem. The
// on-disk header block it reads and writes is a count followed by that
// many block numbers (spec.md §3 "Log (journal) header"); encodeHeader
// and decodeHeader marshal it directly, so no separate Go type mirrors
// its layout.
type Log struct {
	lk  *spinlock.Lock_t
	dev int
	start uint32
	size  int // number of payload slots, excluding the header block

	cache *bio.Cache

	lhN     int
	lhBlock []uint32
	lhBuf   []*bio.Buf // buffer pinned for each active slot, parallel to lhBlock

	outstanding int
	committing  bool

	clients          [MaxConcurrentClients]int // pid, 0 == free slot
	blocksUsed       [MaxConcurrentClients]int
	blocksReserved   [MaxConcurrentClients]int
	blocksUsedOldClients int
}

// New creates the in-memory log for a mounted device and immediately
// runs crash recovery (spec.md §4.8 "Recovery runs once per mount").
func New(cache *bio.Cache, dev int, start uint32, size int, who bio.Caller) *Log {
	l := &Log{
		lk:    spinlock.New("log"),
		dev:   dev,
		start: start,
		size:  size,
		cache: cache,
		lhBlock: make([]uint32, size),
		lhBuf:   make([]*bio.Buf, size),
	}
	l.recoverFromLog(who)
	return l
}

func (l *Log) chan_() sleep.Chan { return sleep.Chan(uintptr(pointerOf(l))) }

func (l *Log) clientFromPid(pid int) int {
	for i, p := range l.clients {
		if p == pid {
			return i
		}
	}
	return -1
}
