package proc

import (
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/vm"
)

// InitFirstProcess creates the only process not created by fork (spec.md
// §4.6): it allocates a process slot, maps one zeroed user page at
// address 0 with the given program image, points the trapframe at
// entry/stack for the very first user-mode return, and marks it
// Runnable. Grounded on original_source/kernel/kernel/proc.c's
// userspace_init, generalized from a fixed embedded initcode blob to an
// arbitrary caller-supplied image since this module has no assembler to
// produce one.
func (t *Table) InitFirstProcess(name string, image []byte, entry Entry) *Proc_t {
	p := t.AllocProc(name, entry)
	if p == nil {
		return nil
	}
	t.Initial = p

	pa, ok := t.VM.Alloc.AllocPages(0, true)
	if !ok {
		t.freeLocked(p)
		p.lk.Unlock()
		return nil
	}
	page := t.VM.Alloc.Bytes(pa, common.PGSIZE)
	copy(page, image)
	t.VM.Map(p.Pagetable, 0, pa, common.PGSIZE, vm.PteR|vm.PteW|vm.PteX|vm.PteU)
	p.Sz = common.PGSIZE

	p.Trapframe.Epc = 0
	p.Trapframe.Regs[common.REG_SP] = common.PGSIZE

	p.State = Runnable
	p.lk.Unlock()
	return p
}
