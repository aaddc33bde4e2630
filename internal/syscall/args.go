package syscall

import (
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/proc"
	"github.com/jrmenzel/vimix/internal/vm"
)

// argraw returns the n'th syscall argument register: a0 for n==0, a1
// for n==1, and so on, matching argraw's "case 0: return
// tf->a0" switch (grounded on sys_file.c's argint/argaddr callers,
// which all bottom out through argraw; the register convention itself
// is spec.md §6's "the return value... is written back to the first
// argument register").
func argraw(p *proc.Proc_t, n int) uint64 {
	return p.Trapframe.Regs[common.REG_A0+common.RegID(n)]
}

// argint fetches the n'th argument as a signed 32-bit int (grounded
// on argint).
func argint(p *proc.Proc_t, n int) int32 {
	return int32(argraw(p, n))
}

// arguint fetches the n'th argument as an unsigned 32-bit int, used
// for syscalls whose C signature takes an unsigned count or offset
// (e.g. read/write's size_t n).
func arguint(p *proc.Proc_t, n int) uint32 {
	return uint32(argraw(p, n))
}

// argaddr fetches the n'th argument as a user virtual address
// (grounded on argaddr).
func argaddr(p *proc.Proc_t, n int) uint64 {
	return argraw(p, n)
}

// argstr copies a NUL-terminated string out of user memory at the
// n'th argument, refusing anything that doesn't fit in max bytes
// (grounded on argstr calling fetchstr/copyinstr).
func argstr(v *vm.VM, p *proc.Proc_t, n int, max int) (string, common.Err_t) {
	return v.CopyInStr(p.Pagetable, argaddr(p, n), max)
}

// argfd fetches the n'th argument as a file descriptor and resolves
// it against the calling process's open-file table (grounded on
// argfd: "parameter n: int fd" followed by a bounds and NULL check).
func argfd(p *proc.Proc_t, n int) (int, *File, common.Err_t) {
	fd := int(argint(p, n))
	if fd < 0 || fd >= common.NOFILE || p.Files[fd] == nil {
		return -1, nil, common.EINVAL
	}
	f, ok := p.Files[fd].Fops.(*File)
	if !ok {
		return -1, nil, common.EINVAL
	}
	return fd, f, 0
}
