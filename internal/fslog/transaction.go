package fslog

import "github.com/jrmenzel/vimix/internal/bio"

// Begin reserves blockCount log slots for pid, blocking while a commit
// is in progress or while the reservation table has no room (spec.md
// §4.8 "Begin/End transaction bracketing"). It mirrors
// log_begin_fs_transaction_explicit: a syscall that touches the
// filesystem calls Begin before its first buffer write and End after
// its last, and every write in between must go through l.Write so it
// lands in the log instead of its home location.
func (l *Log) Begin(pid int, blockCount int, who bio.Caller) bool {
	l.lk.Lock()
	defer l.lk.Unlock()

	for {
		full := l.committing
		if !full {
			used := l.blocksUsedOldClients
			for i := range l.clients {
				if l.clients[i] != 0 {
					used += l.blocksReserved[i]
				}
			}
			if used+blockCount > l.size {
				full = true
			}
		}
		slot := -1
		if !full {
			slot = l.clientFromPid(0)
			if slot < 0 {
				full = true
			}
		}
		if !full {
			l.clients[slot] = pid
			l.blocksReserved[slot] = blockCount
			l.blocksUsed[slot] = 0
			l.outstanding++
			return true
		}
		sleepOnLog(l, who, who.Yield)
	}
}

// End releases pid's reservation and, once every outstanding
// transaction has called End, commits the log to disk and erases it
// (spec.md §4.8 "commit once the last active writer finishes").
func (l *Log) End(pid int, who bio.Caller) {
	l.lk.Lock()
	committing := false
	slot := l.clientFromPid(pid)
	if slot < 0 {
		l.lk.Unlock()
		panic("fslog: End called for unknown pid")
	}
	l.blocksUsedOldClients += l.blocksUsed[slot]
	l.clients[slot] = 0
	l.blocksUsed[slot] = 0
	l.blocksReserved[slot] = 0
	l.outstanding--

	if l.committing {
		panic("fslog: commit already in progress")
	}
	if l.outstanding == 0 {
		committing = true
		l.committing = true
	} else {
		wakeupLog(l, who)
	}
	l.lk.Unlock()

	if committing {
		l.commit(who)
		l.lk.Lock()
		l.committing = false
		l.blocksUsedOldClients = 0
		wakeupLog(l, who)
		l.lk.Unlock()
	}
}
