package vm

import "github.com/jrmenzel/vimix/internal/common"

// BuildUserStack allocates one guard page (cleared of the User bit so
// any access faults) below the top of the user stack region, then grows
// the stack downward as argument strings are pushed with 16-byte
// alignment, then pushes the NULL-terminated pointer array. Returns
// argc and the final stack pointer (spec.md §4.3 "User-stack
// construction for exec").
func (v *VM) BuildUserStack(root common.Pa_t, stackTop uint64, args []string) (argc int, sp uint64, err common.Err_t) {
	guardVA := stackTop - common.PGSIZE
	pa, ok := v.Alloc.AllocPages(0, true)
	if !ok {
		return 0, 0, common.ENOMEM
	}
	v.Map(root, guardVA, pa, common.PGSIZE, PteR) // no PteU: any user access faults

	usableTop := guardVA
	pa2, ok := v.Alloc.AllocPages(0, true)
	if !ok {
		return 0, 0, common.ENOMEM
	}
	v.Map(root, usableTop-common.PGSIZE, pa2, common.PGSIZE, PteR|PteW|PteU)

	sp = usableTop
	uvas := make([]uint64, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		s := args[i]
		n := uint64(len(s) + 1)
		sp -= n
		sp -= sp % 16
		if sp < usableTop-common.PGSIZE {
			return 0, 0, common.ENOMEM // argument strings exceed one page
		}
		buf := make([]byte, n)
		copy(buf, s)
		if e := v.CopyOut(root, sp, buf); e != 0 {
			return 0, 0, e
		}
		uvas[i] = sp
	}

	// push the NULL-terminated pointer array
	sp -= uint64(len(uvas)+1) * 8
	sp -= sp % 16
	if sp < usableTop-common.PGSIZE {
		return 0, 0, common.ENOMEM
	}
	ptrBuf := make([]byte, (len(uvas)+1)*8)
	for i, uva := range uvas {
		putU64(ptrBuf[i*8:], uva)
	}
	putU64(ptrBuf[len(uvas)*8:], 0)
	if e := v.CopyOut(root, sp, ptrBuf); e != 0 {
		return 0, 0, e
	}
	return len(args), sp, 0
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
