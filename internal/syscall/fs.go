package syscall

import (
	"errors"

	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/devfs"
	"github.com/jrmenzel/vimix/internal/proc"
	"github.com/jrmenzel/vimix/internal/vfs"
	"github.com/jrmenzel/vimix/internal/vimixfs"
)

// mapResolveErr turns a path-resolution failure from internal/vfs into
// the errno sys_file.c's callers would see (grounded on namex/
// inode_of_parent_from_path always just returning NULL on any miss;
// this port keeps the distinction vfs.Resolve already makes instead of
// collapsing everything to ENOENT).
func mapResolveErr(err error) common.Err_t {
	if errors.Is(err, vfs.ErrNotDir) {
		return common.ENOTDIR
	}
	return common.ENOENT
}

// mapFSErr turns a vimixfs mutation error, or a backend's refusal
// (devfs/sysfs's ErrNotSupported), into an errno.
func mapFSErr(err error) common.Err_t {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, vimixfs.ErrExist):
		return common.EEXIST
	case errors.Is(err, vimixfs.ErrNotExist):
		return common.ENOENT
	case errors.Is(err, vimixfs.ErrIsDir):
		return common.EISDIR
	case errors.Is(err, vimixfs.ErrNotDir):
		return common.ENOTDIR
	case errors.Is(err, vimixfs.ErrNotEmpty):
		return common.ENOTEMPTY
	case errors.Is(err, devfs.ErrNotSupported):
		return common.EACCES
	default:
		return common.EACCES
	}
}

// sysDup shares fd's underlying File across a new descriptor (grounded
// on sys_dup: argfd, fd_alloc, file_dup).
func (s *Syscalls) sysDup(p *proc.Proc_t, yield func()) common.Err_t {
	oldFd, f, err := argfd(p, 0)
	if err != 0 {
		return err
	}
	perms := p.Files[oldFd].Perms
	fd, err := fdAlloc(p, f.dup(), perms)
	if err != 0 {
		return err
	}
	return common.Err_t(fd)
}

// sysRead reads into a user buffer (grounded on sys_read: argfd,
// argaddr, argint, file_read).
func (s *Syscalls) sysRead(p *proc.Proc_t, yield func()) common.Err_t {
	_, f, err := argfd(p, 0)
	if err != 0 {
		return err
	}
	addr := argaddr(p, 1)
	n := int(argint(p, 2))
	if n < 0 {
		return common.EINVAL
	}
	buf := make([]byte, n)
	who := s.callerFor(p, yield)
	got, rerr := f.read(who, buf)
	if rerr != 0 {
		return rerr
	}
	if got > 0 {
		if cerr := s.VM.CopyOut(p.Pagetable, addr, buf[:got]); cerr != 0 {
			return cerr
		}
	}
	return common.Err_t(got)
}

// sysWrite writes a user buffer out (grounded on sys_write: argfd,
// argaddr, argint, file_write).
func (s *Syscalls) sysWrite(p *proc.Proc_t, yield func()) common.Err_t {
	_, f, err := argfd(p, 0)
	if err != 0 {
		return err
	}
	addr := argaddr(p, 1)
	n := int(argint(p, 2))
	if n < 0 {
		return common.EINVAL
	}
	buf := make([]byte, n)
	if cerr := s.VM.CopyIn(p.Pagetable, buf, addr); cerr != 0 {
		return cerr
	}
	who := s.callerFor(p, yield)
	put, werr := f.write(who, s.FS, buf)
	if werr != 0 {
		return werr
	}
	return common.Err_t(put)
}

// sysClose drops p's descriptor and releases the File (grounded on
// sys_close: argfd, curproc->ofile[fd] = NULL, file_close).
func (s *Syscalls) sysClose(p *proc.Proc_t, yield func()) common.Err_t {
	fd, f, err := argfd(p, 0)
	if err != 0 {
		return err
	}
	p.Files[fd] = nil
	f.close(s.callerFor(p, yield), s.FS)
	return 0
}

// sysFstat copies a descriptor's metadata out to a user struct
// (grounded on sys_fstat: argfd, argaddr, file_stat).
func (s *Syscalls) sysFstat(p *proc.Proc_t, yield func()) common.Err_t {
	_, f, err := argfd(p, 0)
	if err != 0 {
		return err
	}
	addr := argaddr(p, 1)
	st, serr := f.stat()
	if serr != 0 {
		return serr
	}
	buf := encodeStat(st)
	if cerr := s.VM.CopyOut(p.Pagetable, addr, buf); cerr != 0 {
		return cerr
	}
	return 0
}

// sysLink adds a new name for an existing file (grounded on sys_link:
// resolve the source, bump nlink, link the new name in, roll the
// count back on failure).
func (s *Syscalls) sysLink(p *proc.Proc_t, yield func()) common.Err_t {
	from, err := argstr(s.VM, p, 0, common.PATHMAX)
	if err != 0 {
		return err
	}
	to, err := argstr(s.VM, p, 1, common.PATHMAX)
	if err != 0 {
		return err
	}
	who := s.callerFor(p, yield)

	target, rerr := s.resolve(who, p, from)
	if rerr != nil {
		return mapResolveErr(rerr)
	}
	if target.Node.Stat().Type == vfs.TDir {
		return common.EISDIR
	}
	dir, name, rerr := s.resolveParent(who, p, to)
	if rerr != nil {
		return mapResolveErr(rerr)
	}
	if ferr := dir.Ops.Link(who, dir.Node, target.Node, name); ferr != nil {
		return mapFSErr(ferr)
	}
	return 0
}

// sysUnlink removes a directory entry (grounded on sys_unlink:
// resolve the parent, refuse "." and "..", refuse a non-empty
// directory, clear the entry).
func (s *Syscalls) sysUnlink(p *proc.Proc_t, yield func()) common.Err_t {
	path, err := argstr(s.VM, p, 0, common.PATHMAX)
	if err != 0 {
		return err
	}
	who := s.callerFor(p, yield)
	dir, name, rerr := s.resolveParent(who, p, path)
	if rerr != nil {
		return mapResolveErr(rerr)
	}
	if name == "." || name == ".." {
		return common.EINVAL
	}
	if ferr := dir.Ops.Unlink(who, dir.Node, name, true, true); ferr != nil {
		return mapFSErr(ferr)
	}
	return 0
}

// sysOpen resolves or creates path and installs an open File under a
// new descriptor (grounded on sys_open: O_CREATE branch calls the
// static create() helper, otherwise inode_from_path; either way the
// inode comes back locked so type and device checks can run before
// fd_alloc). A device-typed inode is routed to its registered
// CharDevice driver instead of through the filesystem's own (empty)
// read/write.
func (s *Syscalls) sysOpen(p *proc.Proc_t, yield func()) common.Err_t {
	omode := int(argint(p, 1))
	path, err := argstr(s.VM, p, 0, common.PATHMAX)
	if err != 0 {
		return err
	}
	who := s.callerFor(p, yield)

	dir, name, rerr := s.resolveParent(who, p, path)
	if rerr != nil {
		return mapResolveErr(rerr)
	}

	var node vfs.Ref
	if omode&common.O_CREAT != 0 {
		n, ok := dir.Ops.Create(who, dir.Node, name, vfs.TFile, 0, 0)
		if !ok {
			return common.EACCES
		}
		node = vfs.Ref{Node: n, Ops: dir.Ops}
	} else {
		n, ok := dir.Ops.Open(who, dir.Node, name, omode&common.O_TRUNC != 0)
		if !ok {
			return common.ENOENT
		}
		node = vfs.Ref{Node: n, Ops: dir.Ops}
		if node.Node.Stat().Type == vfs.TDir && omode != common.O_RDONLY {
			node.Ops.Unlock(who, node.Node)
			return common.EISDIR
		}
	}

	readable := omode&common.O_WRONLY == 0
	writable := omode&common.O_WRONLY != 0 || omode&common.O_RDWR != 0

	st := node.Node.Stat()
	if st.Type == vfs.TCharDev {
		node.Ops.Unlock(who, node.Node)
		driver, ok := s.Devices[st.Major]
		if !ok {
			return common.ENXIO
		}
		fd, ferr := fdAlloc(p, newDeviceFile(driver, readable, writable), permsOf(readable, writable))
		if ferr != 0 {
			return ferr
		}
		return common.Err_t(fd)
	}

	node.Ops.Unlock(who, node.Node)
	fd, ferr := fdAlloc(p, newInodeFile(node, readable, writable), permsOf(readable, writable))
	if ferr != 0 {
		return ferr
	}
	return common.Err_t(fd)
}

func permsOf(readable, writable bool) int {
	perms := 0
	if readable {
		perms |= common.FD_READ
	}
	if writable {
		perms |= common.FD_WRITE
	}
	return perms
}

// sysMkdir creates a new directory (grounded on sys_mkdir: create()
// with XV6_FT_DIR).
func (s *Syscalls) sysMkdir(p *proc.Proc_t, yield func()) common.Err_t {
	path, err := argstr(s.VM, p, 0, common.PATHMAX)
	if err != 0 {
		return err
	}
	who := s.callerFor(p, yield)
	dir, name, rerr := s.resolveParent(who, p, path)
	if rerr != nil {
		return mapResolveErr(rerr)
	}
	n, ok := dir.Ops.Create(who, dir.Node, name, vfs.TDir, 0, 0)
	if !ok {
		return common.EACCES
	}
	dir.Ops.Unlock(who, n)
	return 0
}

// sysMknod creates a device-typed inode (grounded on sys_mknod:
// create() with XV6_FT_DEVICE and the caller's major/minor).
func (s *Syscalls) sysMknod(p *proc.Proc_t, yield func()) common.Err_t {
	major := int16(argint(p, 1))
	minor := int16(argint(p, 2))
	path, err := argstr(s.VM, p, 0, common.PATHMAX)
	if err != 0 {
		return err
	}
	who := s.callerFor(p, yield)
	dir, name, rerr := s.resolveParent(who, p, path)
	if rerr != nil {
		return mapResolveErr(rerr)
	}
	n, ok := dir.Ops.Create(who, dir.Node, name, vfs.TCharDev, major, minor)
	if !ok {
		return common.EACCES
	}
	dir.Ops.Unlock(who, n)
	return 0
}

// sysChdir resolves path and, if it names a directory, replaces p's
// cwd (grounded on sys_chdir: inode_from_path, check type, put the old
// cwd, install the new one).
func (s *Syscalls) sysChdir(p *proc.Proc_t, yield func()) common.Err_t {
	path, err := argstr(s.VM, p, 0, common.PATHMAX)
	if err != 0 {
		return err
	}
	who := s.callerFor(p, yield)
	ref, rerr := s.resolve(who, p, path)
	if rerr != nil {
		return mapResolveErr(rerr)
	}
	if ref.Node.Stat().Type != vfs.TDir {
		return common.ENOTDIR
	}
	p.Cwd = ref
	return 0
}
