package proc

// Kill sets pid's killed flag and, if it is Sleeping, transitions it to
// Runnable so it observes the flag at its next user-mode return
// (spec.md §4.6: signals are limited to SIGKILL). Returns false if no
// process with that pid exists.
func (t *Table) Kill(pid int) bool {
	for _, p := range t.procs {
		p.lk.Lock()
		if p.Pid == pid && p.State != Unused {
			p.Killed = true
			if p.State == Sleeping {
				p.State = Runnable
			}
			p.lk.Unlock()
			return true
		}
		p.lk.Unlock()
	}
	return false
}
