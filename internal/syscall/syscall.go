// Package syscall implements the file-system system calls of spec.md
// §4.11: argument marshalling out of the trapframe's argument
// registers, fd-table lookups against a process's fixed-size open-file
// table, and transactional dispatch into the mounted filesystems
// through internal/vfs. Grounded function-for-function on
// original_source/kernel/syscalls/sys_file.c ("Mostly argument
// checking, since we don't trust user code, and calls into file.c and
// fs.c").
package syscall

import (
	"github.com/jrmenzel/vimix/internal/bio"
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/proc"
	"github.com/jrmenzel/vimix/internal/vfs"
	"github.com/jrmenzel/vimix/internal/vimixfs"
	"github.com/jrmenzel/vimix/internal/vm"
)

// Number identifies a system call the way a7 does on entry (grounded
// on syscall.h's SYS_* enum; sys_file.c only ever gives us the
// handlers, not the numbering, so the values here are this port's own
// and only need to agree between a caller's a7 and this table).
type Number int32

const (
	SysDup Number = iota
	SysRead
	SysWrite
	SysClose
	SysFstat
	SysLink
	SysUnlink
	SysOpen
	SysMkdir
	SysMknod
	SysChdir
	SysPipe
)

// writeBlocks is the log reservation every sys_write chunk makes, the
// same budget Create/Link/Unlink already reserve elsewhere in vimixfs.
// maxWriteBytes caps how much of a single write that budget can cover
// in one transaction, mirroring sys_write's "int max =
// ((MAXOPBLOCKS-1-1-2) / 2) * BSIZE" with MAXOPBLOCKS taken as
// writeBlocks.
const (
	writeBlocks   = 16
	maxWriteBytes = ((writeBlocks - 1 - 1 - 2) / 2) * common.BSIZE
)

// Syscalls bundles everything the file-system syscalls dispatch
// through: the process table (for argument fetch and the fd tables
// syscalls mutate), the virtual-memory copier (for user pointers), the
// single mounted vimixfs instance that owns the on-disk journal, the
// cross-filesystem mount table, and the system root every absolute
// path resolves from.
type Syscalls struct {
	Table   *proc.Table
	VM      *vm.VM
	FS      *vimixfs.FS
	Mount   *vfs.Mounts
	Root    vfs.Ref
	Devices map[int16]CharDevice // keyed by devfs major, populated at boot
}

// callerFor builds the vimixfs.Caller identifying p to the journal's
// reservation table and the buffer cache's sleep-locks. It is also
// handed, as the opaque "who" argument, to every devfs/sysfs Ops call
// a path resolution passes through: those backends never block and
// never type-assert who, so one concrete Caller type serves every
// backend this kernel mounts (spec.md §4.10's "who is opaque at the
// VFS boundary").
func (s *Syscalls) callerFor(p *proc.Proc_t, yield func()) vimixfs.Caller {
	return vimixfs.Caller{
		Caller: bio.Caller{Proc: p, Table: s.Table, Yield: yield},
		Pid:    p.Pid,
	}
}

// cwdRef returns p's current-directory Ref, defaulting to the system
// root for a process that hasn't chdir'd yet (grounded on proc_new
// seeding cwd from the parent / the initial process's root inode).
func (s *Syscalls) cwdRef(p *proc.Proc_t) vfs.Ref {
	if r, ok := p.Cwd.(vfs.Ref); ok {
		return r
	}
	return s.Root
}

// resolve walks path from the system root (leading "/") or the
// process's cwd otherwise (grounded on namex's root/cwd starting-point
// switch).
func (s *Syscalls) resolve(who any, p *proc.Proc_t, path string) (vfs.Ref, error) {
	start := s.Root
	if len(path) == 0 || path[0] != '/' {
		start = s.cwdRef(p)
	}
	return s.Mount.Resolve(who, start, path)
}

func (s *Syscalls) resolveParent(who any, p *proc.Proc_t, path string) (vfs.Ref, string, error) {
	start := s.Root
	if len(path) == 0 || path[0] != '/' {
		start = s.cwdRef(p)
	}
	return s.Mount.ResolveParent(who, start, path)
}

// fdAlloc installs f into the first free slot of p's open-file table
// (grounded on fd_alloc's linear scan of curproc->ofile).
func fdAlloc(p *proc.Proc_t, f *File, perms int) (int, common.Err_t) {
	for i := range p.Files {
		if p.Files[i] == nil {
			p.Files[i] = &common.Fd_t{Fops: f, Perms: perms}
			return i, 0
		}
	}
	return -1, common.EMFILE
}

// Dispatch reads the syscall number from a7, runs the matching
// handler, and writes its return value (or a negative error code)
// back into a0 (spec.md §6 "the return value, including negative
// error codes, is written back to the first argument register").
// Callers (cmd/kernel's init and the tests) invoke it directly with the
// process and its yield function; internal/trap does not import this
// package.
func (s *Syscalls) Dispatch(p *proc.Proc_t, yield func()) {
	num := Number(argraw(p, 7)) // a7 holds the syscall number
	var ret int64

	switch num {
	case SysDup:
		ret = int64(s.sysDup(p, yield))
	case SysRead:
		ret = int64(s.sysRead(p, yield))
	case SysWrite:
		ret = int64(s.sysWrite(p, yield))
	case SysClose:
		ret = int64(s.sysClose(p, yield))
	case SysFstat:
		ret = int64(s.sysFstat(p, yield))
	case SysLink:
		ret = int64(s.sysLink(p, yield))
	case SysUnlink:
		ret = int64(s.sysUnlink(p, yield))
	case SysOpen:
		ret = int64(s.sysOpen(p, yield))
	case SysMkdir:
		ret = int64(s.sysMkdir(p, yield))
	case SysMknod:
		ret = int64(s.sysMknod(p, yield))
	case SysChdir:
		ret = int64(s.sysChdir(p, yield))
	case SysPipe:
		ret = int64(s.sysPipe(p, yield))
	default:
		ret = -1
	}

	p.Trapframe.Regs[common.REG_A0] = uint64(ret)
}
