package proc

import "github.com/jrmenzel/vimix/internal/sleep"

// Wait blocks the caller on its own address as a wakeup channel,
// rescanning its children under WaitLock on every wakeup; if any child
// is Zombie it copies out the status via copyStatus, frees the child's
// resources, marks the slot Unused, and returns the child's pid. With no
// living children, or if the caller is killed while waiting, it returns
// -1 (spec.md §4.6).
func (t *Table) Wait(self *Proc_t, copyStatus func(xstate int) bool, yield func()) int {
	t.WaitLock.Lock()
	for {
		haveKids := false
		for _, c := range t.procs {
			if c.Parent != self {
				continue
			}
			c.lk.Lock()
			haveKids = true
			if c.State == Zombie {
				pid := c.Pid
				xstate := c.Xstate
				if copyStatus != nil && !copyStatus(xstate) {
					c.lk.Unlock()
					t.WaitLock.Unlock()
					return -1
				}
				t.freeLocked(c)
				c.lk.Unlock()
				t.WaitLock.Unlock()
				return pid
			}
			c.lk.Unlock()
		}

		if !haveKids || self.Killed {
			t.WaitLock.Unlock()
			return -1
		}

		sleep.Sleep(self, sleep.Chan(procAddr(self)), t.WaitLock, yield)
	}
}
