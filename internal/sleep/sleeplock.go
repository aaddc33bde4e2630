package sleep

import "github.com/jrmenzel/vimix/internal/spinlock"

// SleepLock wraps sleep/wakeup over an inner spinlock and a boolean
// locked flag (spec.md §3 "Sleep-lock", §4.4). Used for buffer and
// inode locks, which must be held across blocking device I/O.
type SleepLock struct {
	name   string
	inner  *spinlock.Lock_t
	locked bool
	chan_  Chan
}

func NewSleepLock(name string, chan_ Chan) *SleepLock {
	return &SleepLock{name: name, inner: spinlock.New(name), chan_: chan_}
}

// Acquire blocks, via Sleep, until locked is false, then claims it.
// Attempting to sleep while holding any other spinlock is a fatal
// error (spec.md §4.4); callers are responsible for not already
// holding unrelated spinlocks, but Acquire itself never holds more
// than its own inner lock across the yield.
func (s *SleepLock) Acquire(p Sleeper, yield func()) {
	s.inner.Lock()
	for s.locked {
		Sleep(p, s.chan_, s.inner, yield)
	}
	s.locked = true
	s.inner.Unlock()
}

func (s *SleepLock) Release(t Table) {
	s.inner.Lock()
	s.locked = false
	s.inner.Unlock()
	Wakeup(t, s.chan_)
}

func (s *SleepLock) Holding() bool {
	s.inner.Lock()
	defer s.inner.Unlock()
	return s.locked
}

func (s *SleepLock) Name() string { return s.name }
