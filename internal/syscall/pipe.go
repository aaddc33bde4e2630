package syscall

import (
	"encoding/binary"

	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/pipe"
	"github.com/jrmenzel/vimix/internal/proc"
)

// sysPipe allocates a Pipe, installs its read and write ends under two
// fresh descriptors, and copies the pair out to a user int[2] (grounded
// on sys_pipe: pipealloc, fd_alloc twice, copyout the two fds, unwind
// both descriptors on the second fd_alloc's failure).
func (s *Syscalls) sysPipe(p *proc.Proc_t, yield func()) common.Err_t {
	addr := argaddr(p, 0)

	pp := pipe.New()
	rfd, err := fdAlloc(p, newPipeFile(pp, true), common.FD_READ)
	if err != 0 {
		return err
	}
	wfd, err := fdAlloc(p, newPipeFile(pp, false), common.FD_WRITE)
	if err != 0 {
		p.Files[rfd] = nil
		return err
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rfd))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(wfd))
	if cerr := s.VM.CopyOut(p.Pagetable, addr, buf); cerr != 0 {
		p.Files[rfd] = nil
		p.Files[wfd] = nil
		return cerr
	}
	return 0
}
