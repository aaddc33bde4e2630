package proc

import (
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/vm"
)

// Program is the in-memory stand-in for an executable this port can
// exec: a flat image mapped read-write-exec-user at VA 0, and a
// builder that closes over a call's argv to produce the Entry the new
// address space will run. Real ELF loading is out of scope (spec.md
// §1 excludes the userspace C library and its loader); SPEC_FULL.md's
// exec scenario installs Programs into a fixture table keyed by path
// instead of loading real binaries off disk, the same simplification
// original_source's own usertests.c sidesteps by linking everything
// into one image.
type Program struct {
	Image []byte
	Build func(argv []string) Entry
}

// Exec replaces p's address space with prog's image plus a fresh
// argument stack (spec.md §4.3 "User-stack construction for exec"):
// the new page table is built and populated in full before anything
// belonging to the old address space is touched, so an allocation
// failure partway through leaves the caller's current image completely
// intact (spec.md §7 "partial work is unwound"). Only once the new
// image is known-good does Exec free the old page table and hand
// control to the new program.
//
// On success Exec calls the new Entry itself and does not return a
// zero Err_t to a waiting caller in the usual sense: exactly as after
// calling Exit, a caller's Entry must treat reaching the statement
// after Exec as "exec failed" and inspect the returned Err_t, because
// by the time Exec returns the process has already run to completion
// under the new program (which itself ends with Exit, per every
// Entry's contract).
func (t *Table) Exec(p *Proc_t, path string, argv []string, prog Program) common.Err_t {
	imgPages := (uint64(len(prog.Image)) + common.PGSIZE - 1) / common.PGSIZE
	if imgPages == 0 {
		imgPages = 1
	}
	imgSize := imgPages * common.PGSIZE

	newRoot := t.VM.NewPagetable()
	for i := uint64(0); i < imgPages; i++ {
		pa, ok := t.VM.Alloc.AllocPages(0, true)
		if !ok {
			t.VM.FreeUserMem(newRoot, i*common.PGSIZE)
			t.VM.FreePagetable(newRoot)
			return common.ENOMEM
		}
		page := t.VM.Alloc.Bytes(pa, common.PGSIZE)
		lo := i * common.PGSIZE
		hi := lo + common.PGSIZE
		if hi > uint64(len(prog.Image)) {
			hi = uint64(len(prog.Image))
		}
		if hi > lo {
			copy(page, prog.Image[lo:hi])
		}
		t.VM.Map(newRoot, lo, pa, common.PGSIZE, vm.PteR|vm.PteW|vm.PteX|vm.PteU)
	}

	stackTop := imgSize + 2*common.PGSIZE // room for BuildUserStack's guard + usable page
	argc, sp, err := t.VM.BuildUserStack(newRoot, stackTop, argv)
	if err != 0 {
		t.VM.FreeUserMem(newRoot, imgSize)
		t.VM.FreePagetable(newRoot)
		return err
	}

	oldRoot := p.Pagetable
	oldSz := p.Sz

	p.Pagetable = newRoot
	p.Sz = stackTop
	p.Trapframe.Epc = 0
	p.Trapframe.Regs[common.REG_SP] = sp
	p.Trapframe.Regs[common.REG_A0] = uint64(argc)
	p.Name = baseName(path)

	if oldSz > 0 {
		t.VM.FreeUserMem(oldRoot, oldSz)
	}
	t.VM.FreePagetable(oldRoot)

	prog.Build(argv)(p)
	return 0
}

// baseName strips every directory component, the way sys_exec reports
// only the final path element as the process name (proc_t.name).
func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
