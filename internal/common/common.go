// Package common holds the types shared across every kernel subsystem:
// physical addresses, kernel error codes, the trapframe layout and the
// file-descriptor table entry. Mirrors the role of biscuit's "common"
// package, which exists so that packages which must not import each
// other directly (e.g. proc and vm) can still share the types that flow
// between them.
package common

import "golang.org/x/sys/unix"

// Pa_t is a physical address. It is never directly dereferenced outside
// of the mm/vm packages; everywhere else it is an opaque handle.
type Pa_t uintptr

// Err_t is a kernel error code: zero means success, negative values are
// errno-shaped (mirroring the syscall ABI convention of spec.md §6,
// "the return value, including negative error codes, is written back to
// the first argument register").
type Err_t int

// Errno constants reuse golang.org/x/sys/unix's errno table instead of a
// hand-rolled parallel one, so the syscall surface returns values a
// userspace libc would recognize.
const (
	EPERM   Err_t = -Err_t(unix.EPERM)
	ENOENT  Err_t = -Err_t(unix.ENOENT)
	ESRCH   Err_t = -Err_t(unix.ESRCH)
	EINTR   Err_t = -Err_t(unix.EINTR)
	EIO     Err_t = -Err_t(unix.EIO)
	ENOMEM  Err_t = -Err_t(unix.ENOMEM)
	EACCES  Err_t = -Err_t(unix.EACCES)
	EFAULT  Err_t = -Err_t(unix.EFAULT)
	EEXIST  Err_t = -Err_t(unix.EEXIST)
	ENOTDIR Err_t = -Err_t(unix.ENOTDIR)
	EISDIR  Err_t = -Err_t(unix.EISDIR)
	EINVAL  Err_t = -Err_t(unix.EINVAL)
	EMFILE  Err_t = -Err_t(unix.EMFILE)
	ENFILE  Err_t = -Err_t(unix.ENFILE)
	ENOSPC  Err_t = -Err_t(unix.ENOSPC)
	ENAMETOOLONG Err_t = -Err_t(unix.ENAMETOOLONG)
	ENOTEMPTY    Err_t = -Err_t(unix.ENOTEMPTY)
	EFBIG   Err_t = -Err_t(unix.EFBIG)
	EAGAIN  Err_t = -Err_t(unix.EAGAIN)
	EBUSY   Err_t = -Err_t(unix.EBUSY)
	ENXIO   Err_t = -Err_t(unix.ENXIO)
	EMLINK  Err_t = -Err_t(unix.EMLINK)
	EPIPE   Err_t = -Err_t(unix.EPIPE)
)

// Open flags, reusing the unix bit layout so user programs built against
// a conventional libc would see familiar numbers on the wire.
const (
	O_RDONLY = unix.O_RDONLY
	O_WRONLY = unix.O_WRONLY
	O_RDWR   = unix.O_RDWR
	O_CREAT  = unix.O_CREAT
	O_TRUNC  = unix.O_TRUNC
	O_APPEND = unix.O_APPEND
	O_EXCL   = unix.O_EXCL
)

// Fixed geometry constants (spec.md §6 "External interfaces").
const (
	PGSIZE   = 4096
	PGSHIFT  = 12
	BSIZE    = 1024 // on-disk block size
	NAMEMAX  = 14   // max file name length, incl. no NUL terminator on disk
	PATHMAX  = 256
)

// Process and file-table bounds (spec.md §3 "Process", "File object").
const (
	NPROC  = 64 // fixed size of the process table
	NOFILE = 16 // fixed size of a process's open-file table
)

// RegID names the general-purpose register slots of Trapframe, in the
// order the trampoline assembly (out of scope, §1) would save/restore
// them for RV64: ra, sp, gp, tp, t0-t2, s0-s1, a0-a7, s2-s11, t3-t6.
type RegID int

const (
	REG_RA RegID = iota
	REG_SP
	REG_GP
	REG_TP
	REG_T0
	REG_T1
	REG_T2
	REG_S0
	REG_S1
	REG_A0
	REG_A1
	REG_A2
	REG_A3
	REG_A4
	REG_A5
	REG_A6
	REG_A7
	REG_S2
	REG_S3
	REG_S4
	REG_S5
	REG_S6
	REG_S7
	REG_S8
	REG_S9
	REG_S10
	REG_S11
	REG_T3
	REG_T4
	REG_T5
	REG_T6
	NREGS
)

// Trapframe is the per-process save area described by spec.md §3. The
// kernel-side scratch fields are populated right before every
// kernel->user return (spec.md §4.5 path 3) and read by the trampoline
// on the next user->kernel transition.
type Trapframe struct {
	// kernel-side scratch, written by the kernel before sret
	KernelSatp  uint64 // kernel page-table root (satp value)
	KernelSp    uint64 // top of this process's kernel stack
	KernelTrap  uint64 // address of usertrap()
	KernelHartid uint64

	Epc uint64 // saved user program counter

	Regs [NREGS]uint64 // user general-purpose registers
}

// Fd_t is a single open-file-table entry. Fops is an opaque handle into
// whatever concrete file object (pipe/inode/device) backs the
// descriptor; it is typed as `any` here because common must not import
// the packages that define the concrete file types (they import
// common), matching the dependency direction the teacher enforces
// between its "common" package and everything built on top of it.
type Fd_t struct {
	Fops  any
	Perms int
}

// Dupper is implemented by a concrete Fops value (syscall.File) that
// needs its own reference count bumped whenever a descriptor pointing
// at it is duplicated rather than shallow-copied: fork's fd-table copy
// and sys_dup both go through this instead of copying the Fops value
// directly, matching filedup's "f->ref++" (grounded on sys_file.c's
// file_dup). common stays the only package both proc and syscall
// import, so this interface lives here rather than in either.
type Dupper interface {
	Dup() any
}

const (
	FD_READ  = 1
	FD_WRITE = 2
)
