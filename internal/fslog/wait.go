package fslog

import (
	"github.com/jrmenzel/vimix/internal/bio"
	"github.com/jrmenzel/vimix/internal/sleep"
)

// sleepOnLog blocks the calling process on l's channel. l.lk must
// already be held by the caller; sleep.Sleep drops it for the
// duration and reacquires it before returning, exactly like any other
// sleep/wakeup rendezvous in the kernel.
func sleepOnLog(l *Log, who bio.Caller, yield func()) {
	sleep.Sleep(who.Proc, l.chan_(), l.lk, yield)
}

// wakeupLog wakes every process sleeping on l's channel (a slot freed
// up in Begin's reservation table, or a commit just finished).
func wakeupLog(l *Log, who bio.Caller) {
	sleep.Wakeup(who.Table, l.chan_())
}
