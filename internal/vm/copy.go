package vm

import (
	"github.com/jrmenzel/vimix/internal/common"
)

// Translate returns the physical page backing a user VA, refusing to
// hand back a VA that is not mapped user-accessible (spec.md §4.3:
// "the kernel refuses to read/write through a VA that is not mapped
// user-accessible when performing copy-in/out"). writable additionally
// requires the PteW bit, checked for copy-out.
func (v *VM) Translate(root common.Pa_t, va uint64, writable bool) (common.Pa_t, bool) {
	base := va - va%common.PGSIZE
	pte, ok := v.Lookup(root, base)
	if !ok || pte.Perm()&PteU == 0 {
		return 0, false
	}
	if writable && pte.Perm()&PteW == 0 {
		return 0, false
	}
	return pte.PPN() + common.Pa_t(va%common.PGSIZE), true
}

// CopyOut copies len(src) bytes from kernel memory to user memory
// starting at dstva, one page at a time.
func (v *VM) CopyOut(root common.Pa_t, dstva uint64, src []byte) common.Err_t {
	for len(src) > 0 {
		pa, ok := v.Translate(root, dstva, true)
		if !ok {
			return common.EFAULT
		}
		pageOff := dstva % common.PGSIZE
		n := common.PGSIZE - pageOff
		if uint64(n) > uint64(len(src)) {
			n = uint64(len(src))
		}
		page := v.Alloc.Bytes(pa-common.Pa_t(pageOff), common.PGSIZE)
		copy(page[pageOff:uint64(pageOff)+n], src[:n])
		src = src[n:]
		dstva += n
	}
	return 0
}

// CopyIn copies len(dst) bytes from user memory starting at srcva into
// kernel memory.
func (v *VM) CopyIn(root common.Pa_t, dst []byte, srcva uint64) common.Err_t {
	for len(dst) > 0 {
		pa, ok := v.Translate(root, srcva, false)
		if !ok {
			return common.EFAULT
		}
		pageOff := srcva % common.PGSIZE
		n := common.PGSIZE - pageOff
		if uint64(n) > uint64(len(dst)) {
			n = uint64(len(dst))
		}
		page := v.Alloc.Bytes(pa-common.Pa_t(pageOff), common.PGSIZE)
		copy(dst[:n], page[pageOff:uint64(pageOff)+n])
		dst = dst[n:]
		srcva += n
	}
	return 0
}

// CopyInStr copies a NUL-terminated string from user memory, stopping
// at a NUL within max bytes. The absence of a NUL within max is an
// error (spec.md §4.3).
func (v *VM) CopyInStr(root common.Pa_t, srcva uint64, max int) (string, common.Err_t) {
	out := make([]byte, 0, 64)
	for len(out) < max {
		pa, ok := v.Translate(root, srcva, false)
		if !ok {
			return "", common.EFAULT
		}
		pageOff := srcva % common.PGSIZE
		page := v.Alloc.Bytes(pa-common.Pa_t(pageOff), common.PGSIZE)
		for _, b := range page[pageOff:] {
			if len(out) >= max {
				return "", common.EINVAL
			}
			if b == 0 {
				return string(out), 0
			}
			out = append(out, b)
		}
		srcva += common.PGSIZE - pageOff
	}
	return "", common.EINVAL
}
