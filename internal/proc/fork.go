package proc

import "github.com/jrmenzel/vimix/internal/common"

// Fork allocates a child process, copies the parent's user memory
// page-by-page through the VM layer, duplicates the trapframe with a0
// cleared (so fork returns 0 in the child), dup-refs open files, copies
// the parent's cwd value (no reference count is taken on it), links the child to the parent under WaitLock, and marks it
// Runnable. Returns the child's pid, or -1 (and no child) if the table
// is full or the memory copy fails.
func (t *Table) Fork(parent *Proc_t, entry Entry) int {
	child := t.AllocProc(parent.Name, entry)
	if child == nil {
		return -1
	}

	if !t.VM.CopyUserMem(parent.Pagetable, child.Pagetable, parent.Sz) {
		t.freeLocked(child)
		child.lk.Unlock()
		return -1
	}
	child.Sz = parent.Sz

	*child.Trapframe = *parent.Trapframe
	child.Trapframe.Regs[common.REG_A0] = 0

	for i := range parent.Files {
		if parent.Files[i] == nil {
			continue
		}
		fops := parent.Files[i].Fops
		if d, ok := fops.(common.Dupper); ok {
			fops = d.Dup()
		}
		child.Files[i] = &common.Fd_t{Fops: fops, Perms: parent.Files[i].Perms}
	}
	child.Cwd = parent.Cwd

	pid := child.Pid
	child.lk.Unlock()

	t.WaitLock.Lock()
	child.Parent = parent
	t.WaitLock.Unlock()

	child.lk.Lock()
	child.State = Runnable
	child.lk.Unlock()

	return pid
}
