package syscall_test

import (
	"testing"

	"github.com/jrmenzel/vimix/internal/bio"
	"github.com/jrmenzel/vimix/internal/blockdev"
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/cpu"
	"github.com/jrmenzel/vimix/internal/devfs"
	"github.com/jrmenzel/vimix/internal/mm"
	"github.com/jrmenzel/vimix/internal/proc"
	syscalls "github.com/jrmenzel/vimix/internal/syscall"
	"github.com/jrmenzel/vimix/internal/vfs"
	"github.com/jrmenzel/vimix/internal/vimixfs"
	"github.com/jrmenzel/vimix/internal/vm"
	"github.com/stretchr/testify/require"
)

func init() {
	cpu.BindCurrentHart(func() int { return 0 })
	cpu.BindSpinlocks()
}

// Fixture geometry, same shape as vimixfs's own test fixture: boot=0,
// sb=1, log header=2, log body=3..18, inodes=19..20, bitmap=21,
// data=22..45 (a 46-block filesystem on a 48-block disk).
const (
	fixtureLogStart   = 2
	fixtureLogBlocks  = 16
	fixtureInodeStart = 19
	fixtureBmapStart  = 21
	fixtureDiskBlocks = 48
	fixtureFSSize     = 46
)

type fakeDevice struct {
	written []byte
	toRead  []byte
}

func (d *fakeDevice) Read(dst []byte) (int, common.Err_t) {
	n := copy(dst, d.toRead)
	d.toRead = d.toRead[n:]
	return n, 0
}

func (d *fakeDevice) Write(src []byte) (int, common.Err_t) {
	d.written = append(d.written, src...)
	return len(src), 0
}

// fixture bundles a Syscalls ready to dispatch against, the device
// driver mounted at /dev/console, and the process all test syscalls
// run as.
type fixture struct {
	s      *syscalls.Syscalls
	p      *proc.Proc_t
	dev    *fakeDevice
	nextVA uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	a := mm.New(4096)
	v := vm.New(a, vm.Sv39Levels)
	tbl := proc.NewTable(v)

	disk := blockdev.NewMemDisk(fixtureDiskBlocks)
	sb := vimixfs.Superblock{
		Magic:      vimixfs.Magic,
		Size:       fixtureFSSize,
		NBlocks:    fixtureFSSize - fixtureBmapStart - 1,
		NInodes:    32,
		NLog:       fixtureLogBlocks,
		LogStart:   fixtureLogStart,
		InodeStart: fixtureInodeStart,
		BmapStart:  fixtureBmapStart,
	}
	sbBuf := make([]byte, common.BSIZE)
	sb.Encode(sbBuf)
	require.Zero(t, disk.WriteBlock(vimixfs.SBBlock, sbBuf))

	bm := make([]byte, common.BSIZE)
	for bno := uint32(0); bno < fixtureBmapStart+1; bno++ {
		bm[bno/8] |= 1 << (bno % 8)
	}
	require.Zero(t, disk.WriteBlock(fixtureBmapStart, bm))

	cache := bio.New(disk, 64)

	boot := tbl.AllocProc("boot", func(p *proc.Proc_t) {})
	require.NotNil(t, boot)
	boot.State = proc.Runnable
	boot.Lock().Unlock()
	noYield := func(t *testing.T) func() {
		return func() { t.Fatal("fixture setup must not block") }
	}(t)
	who := vimixfs.Caller{Caller: bio.Caller{Proc: boot, Table: tbl, Yield: noYield}, Pid: boot.Pid}

	fs := vimixfs.Mount(cache, 0, who)
	require.True(t, fs.Begin(who, 10))
	root := fs.Alloc(who, vimixfs.TDir)
	require.NotNil(t, root)
	fs.Lock(root, who)
	require.True(t, fs.DirLink(who, root, ".", root.Inum))
	require.True(t, fs.DirLink(who, root, "..", root.Inum))
	root.NLink = 1
	fs.Update(who, root)
	fs.Unlock(root, who)
	fs.End(who)

	devDir := fs.Create(who, root, "dev", vimixfs.TDir, 0, 0)
	require.NotNil(t, devDir)
	fs.Unlock(devDir, who) // kept referenced: a mount point's node identity must stay stable

	fsOps := fs.Ops()
	rootRef := vfs.Ref{Node: fsOps.Root(who), Ops: fsOps}
	devDirRef := vfs.Ref{Node: devDir, Ops: fsOps}

	dev := &fakeDevice{}
	devfsInstance := devfs.Mount(1, []devfs.Device{{Name: "console", Major: 1, Kind: vfs.TCharDev}}, devDirRef)
	devOps := devfsInstance.Ops()
	devRootRef := vfs.Ref{Node: devOps.Root(devfs.Caller{}), Ops: devOps}

	mounts := vfs.NewMounts()
	mounts.Mount(devDirRef, devRootRef)

	s := &syscalls.Syscalls{
		Table:   tbl,
		VM:      v,
		FS:      fs,
		Mount:   mounts,
		Root:    rootRef,
		Devices: map[int16]syscalls.CharDevice{1: dev},
	}

	p := tbl.AllocProc("test", func(*proc.Proc_t) {})
	require.NotNil(t, p)
	p.State = proc.Runnable
	p.Lock().Unlock()

	return &fixture{s: s, p: p, dev: dev, nextVA: 0x10000}
}

func (f *fixture) yield() {}

// putString writes a NUL-terminated string into a fresh page of the
// test process's user memory and returns its address.
func (f *fixture) putString(t *testing.T, s string) uint64 {
	t.Helper()
	va := f.mapPage(t)
	require.Zero(t, f.s.VM.CopyOut(f.p.Pagetable, va, append([]byte(s), 0)))
	return va
}

func (f *fixture) putBytes(t *testing.T, b []byte) uint64 {
	t.Helper()
	va := f.mapPage(t)
	require.Zero(t, f.s.VM.CopyOut(f.p.Pagetable, va, b))
	return va
}

func (f *fixture) mapPage(t *testing.T) uint64 {
	t.Helper()
	pa, ok := f.s.VM.Alloc.AllocPages(0, true)
	require.True(t, ok)
	va := f.nextVA
	f.nextVA += common.PGSIZE
	f.s.VM.Map(f.p.Pagetable, va, pa, common.PGSIZE, vm.PteR|vm.PteW|vm.PteU)
	return va
}

func (f *fixture) readBytes(t *testing.T, va uint64, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	require.Zero(t, f.s.VM.CopyIn(f.p.Pagetable, buf, va))
	return buf
}

// call sets a0..a5 and a7, dispatches, and returns the value written
// back to a0.
func (f *fixture) call(num syscalls.Number, args ...uint64) int64 {
	for i, a := range args {
		f.p.Trapframe.Regs[common.REG_A0+common.RegID(i)] = a
	}
	f.p.Trapframe.Regs[common.REG_A7] = uint64(num)
	f.s.Dispatch(f.p, f.yield)
	return int64(f.p.Trapframe.Regs[common.REG_A0])
}

func TestOpenCreateWriteReadRoundTrip(t *testing.T) {
	f := newFixture(t)
	pathVA := f.putString(t, "hello.txt")

	fd := f.call(syscalls.SysOpen, pathVA, uint64(common.O_CREAT|common.O_RDWR))
	require.GreaterOrEqual(t, fd, int64(0))

	dataVA := f.putBytes(t, []byte("hello, vimix"))
	n := f.call(syscalls.SysWrite, uint64(fd), dataVA, uint64(len("hello, vimix")))
	require.Equal(t, int64(len("hello, vimix")), n)

	readVA := f.mapPage(t)
	got := f.call(syscalls.SysRead, uint64(fd), readVA, uint64(len("hello, vimix")))
	require.Equal(t, int64(len("hello, vimix")), got)
	require.Equal(t, "hello, vimix", string(f.readBytes(t, readVA, int(got))))

	require.Zero(t, f.call(syscalls.SysClose, uint64(fd)))
}

func TestOpenMissingFileWithoutCreateFails(t *testing.T) {
	f := newFixture(t)
	pathVA := f.putString(t, "nope.txt")
	fd := f.call(syscalls.SysOpen, pathVA, uint64(common.O_RDONLY))
	require.Equal(t, int64(common.ENOENT), fd)
}

func TestMkdirAndChdirThenRelativeOpen(t *testing.T) {
	f := newFixture(t)

	dirVA := f.putString(t, "sub")
	require.Zero(t, f.call(syscalls.SysMkdir, dirVA))

	chdirVA := f.putString(t, "sub")
	require.Zero(t, f.call(syscalls.SysChdir, chdirVA))

	fileVA := f.putString(t, "inside.txt")
	fd := f.call(syscalls.SysOpen, fileVA, uint64(common.O_CREAT|common.O_RDWR))
	require.GreaterOrEqual(t, fd, int64(0))
	require.Zero(t, f.call(syscalls.SysClose, uint64(fd)))
}

func TestChdirOnNonDirectoryFails(t *testing.T) {
	f := newFixture(t)
	pathVA := f.putString(t, "afile")
	fd := f.call(syscalls.SysOpen, pathVA, uint64(common.O_CREAT|common.O_RDWR))
	require.GreaterOrEqual(t, fd, int64(0))
	require.Zero(t, f.call(syscalls.SysClose, uint64(fd)))

	chdirVA := f.putString(t, "afile")
	require.Equal(t, int64(common.ENOTDIR), f.call(syscalls.SysChdir, chdirVA))
}

func TestLinkAndUnlink(t *testing.T) {
	f := newFixture(t)
	origVA := f.putString(t, "orig.txt")
	fd := f.call(syscalls.SysOpen, origVA, uint64(common.O_CREAT|common.O_RDWR))
	require.GreaterOrEqual(t, fd, int64(0))
	require.Zero(t, f.call(syscalls.SysClose, uint64(fd)))

	fromVA := f.putString(t, "orig.txt")
	toVA := f.putString(t, "alias.txt")
	require.Zero(t, f.call(syscalls.SysLink, fromVA, toVA))

	aliasVA := f.putString(t, "alias.txt")
	fd2 := f.call(syscalls.SysOpen, aliasVA, uint64(common.O_RDONLY))
	require.GreaterOrEqual(t, fd2, int64(0))
	require.Zero(t, f.call(syscalls.SysClose, uint64(fd2)))

	unlinkVA := f.putString(t, "alias.txt")
	require.Zero(t, f.call(syscalls.SysUnlink, unlinkVA))

	reopenVA := f.putString(t, "alias.txt")
	require.Equal(t, int64(common.ENOENT), f.call(syscalls.SysOpen, reopenVA, uint64(common.O_RDONLY)))
}

func TestDupSharesOffsetAndRefcounting(t *testing.T) {
	f := newFixture(t)
	pathVA := f.putString(t, "dup.txt")
	fd := f.call(syscalls.SysOpen, pathVA, uint64(common.O_CREAT|common.O_RDWR))
	require.GreaterOrEqual(t, fd, int64(0))

	dataVA := f.putBytes(t, []byte("abc"))
	require.Equal(t, int64(3), f.call(syscalls.SysWrite, uint64(fd), dataVA, 3))

	fd2 := f.call(syscalls.SysDup, uint64(fd))
	require.GreaterOrEqual(t, fd2, int64(0))

	// dup shares the same File, offset included: reading via fd2 right
	// after the write through fd sees EOF, not the bytes just written.
	readVA := f.mapPage(t)
	got := f.call(syscalls.SysRead, uint64(fd2), readVA, 3)
	require.Equal(t, int64(0), got)

	moreVA := f.putBytes(t, []byte("de"))
	require.Equal(t, int64(2), f.call(syscalls.SysWrite, uint64(fd2), moreVA, 2))

	require.Zero(t, f.call(syscalls.SysClose, uint64(fd)))
	require.Zero(t, f.call(syscalls.SysClose, uint64(fd2)))

	reopenVA := f.putString(t, "dup.txt")
	fd3 := f.call(syscalls.SysOpen, reopenVA, uint64(common.O_RDONLY))
	require.GreaterOrEqual(t, fd3, int64(0))
	readVA2 := f.mapPage(t)
	got2 := f.call(syscalls.SysRead, uint64(fd3), readVA2, 5)
	require.Equal(t, int64(5), got2)
	require.Equal(t, "abcde", string(f.readBytes(t, readVA2, 5)))
	require.Zero(t, f.call(syscalls.SysClose, uint64(fd3)))
}

func TestFstatReportsTypeAndSize(t *testing.T) {
	f := newFixture(t)
	pathVA := f.putString(t, "stat.txt")
	fd := f.call(syscalls.SysOpen, pathVA, uint64(common.O_CREAT|common.O_RDWR))
	require.GreaterOrEqual(t, fd, int64(0))

	dataVA := f.putBytes(t, []byte("1234"))
	require.Equal(t, int64(4), f.call(syscalls.SysWrite, uint64(fd), dataVA, 4))

	statVA := f.mapPage(t)
	require.Zero(t, f.call(syscalls.SysFstat, uint64(fd), statVA))
	buf := f.readBytes(t, statVA, 24)
	size := uint64(buf[16]) | uint64(buf[17])<<8 | uint64(buf[18])<<16 | uint64(buf[19])<<24
	require.Equal(t, uint64(4), size)
}

func TestMknodAndOpenRoutesThroughDevice(t *testing.T) {
	f := newFixture(t)
	f.dev.toRead = []byte("from console")

	// A device special file created directly in the vimixfs tree (not
	// through devfs) still routes through the registered driver: the
	// major number travels on the inode itself, the way any FT_DEVICE
	// inode's ip->major does regardless of which directory holds it.
	pathVA := f.putString(t, "devnode")
	require.Zero(t, f.call(syscalls.SysMknod, pathVA, 1, 0))

	openVA := f.putString(t, "devnode")
	fd := f.call(syscalls.SysOpen, openVA, uint64(common.O_RDWR))
	require.GreaterOrEqual(t, fd, int64(0))

	readVA := f.mapPage(t)
	got := f.call(syscalls.SysRead, uint64(fd), readVA, uint64(len("from console")))
	require.Equal(t, int64(len("from console")), got)
	require.Equal(t, "from console", string(f.readBytes(t, readVA, int(got))))

	writeVA := f.putBytes(t, []byte("to console"))
	require.Equal(t, int64(len("to console")), f.call(syscalls.SysWrite, uint64(fd), writeVA, uint64(len("to console"))))
	require.Equal(t, "to console", string(f.dev.written))
}

func TestReadWithBadFdFails(t *testing.T) {
	f := newFixture(t)
	readVA := f.mapPage(t)
	require.Equal(t, int64(common.EINVAL), f.call(syscalls.SysRead, 9, readVA, 1))
	require.Equal(t, int64(common.EINVAL), f.call(syscalls.SysClose, ^uint64(0)))
}

func TestOpenWithBadPathPointerFails(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, int64(common.EFAULT), f.call(syscalls.SysOpen, 0, uint64(common.O_RDONLY)))
}

func TestMkdirOnExistingNameFails(t *testing.T) {
	f := newFixture(t)
	dirVA := f.putString(t, "again")
	require.Zero(t, f.call(syscalls.SysMkdir, dirVA))
	dirVA2 := f.putString(t, "again")
	require.Equal(t, int64(common.EACCES), f.call(syscalls.SysMkdir, dirVA2))
}

func TestUnlinkDotAndDotDotRefused(t *testing.T) {
	f := newFixture(t)
	dotVA := f.putString(t, ".")
	require.Equal(t, int64(common.EINVAL), f.call(syscalls.SysUnlink, dotVA))
	dotdotVA := f.putString(t, "..")
	require.Equal(t, int64(common.EINVAL), f.call(syscalls.SysUnlink, dotdotVA))
}

func TestChdirIntoDevfsAndBackOut(t *testing.T) {
	f := newFixture(t)
	inVA := f.putString(t, "/dev")
	require.Zero(t, f.call(syscalls.SysChdir, inVA))

	fileVA := f.putString(t, "console")
	fd := f.call(syscalls.SysOpen, fileVA, uint64(common.O_RDONLY))
	require.GreaterOrEqual(t, fd, int64(0))
	require.Zero(t, f.call(syscalls.SysClose, uint64(fd)))

	outVA := f.putString(t, "..")
	require.Zero(t, f.call(syscalls.SysChdir, outVA))

	rootFileVA := f.putString(t, "again")
	require.Zero(t, f.call(syscalls.SysMkdir, rootFileVA))
}

func TestOpenExistingDevfsConsoleAcrossMount(t *testing.T) {
	f := newFixture(t)
	f.dev.toRead = []byte("boot msg")

	openVA := f.putString(t, "/dev/console")
	fd := f.call(syscalls.SysOpen, openVA, uint64(common.O_RDONLY))
	require.GreaterOrEqual(t, fd, int64(0))

	readVA := f.mapPage(t)
	got := f.call(syscalls.SysRead, uint64(fd), readVA, uint64(len("boot msg")))
	require.Equal(t, int64(len("boot msg")), got)
	require.Equal(t, "boot msg", string(f.readBytes(t, readVA, int(got))))
}

func TestPipeWriteThenReadRoundTrip(t *testing.T) {
	f := newFixture(t)
	fdsVA := f.mapPage(t)
	require.Zero(t, f.call(syscalls.SysPipe, fdsVA))
	fds := f.readBytes(t, fdsVA, 8)
	rfd := uint64(uint32(fds[0]) | uint32(fds[1])<<8 | uint32(fds[2])<<16 | uint32(fds[3])<<24)
	wfd := uint64(uint32(fds[4]) | uint32(fds[5])<<8 | uint32(fds[6])<<16 | uint32(fds[7])<<24)

	dataVA := f.putBytes(t, []byte("ping"))
	require.Equal(t, int64(4), f.call(syscalls.SysWrite, wfd, dataVA, 4))

	readVA := f.mapPage(t)
	got := f.call(syscalls.SysRead, rfd, readVA, 4)
	require.Equal(t, int64(4), got)
	require.Equal(t, "ping", string(f.readBytes(t, readVA, 4)))

	require.Zero(t, f.call(syscalls.SysClose, wfd))
	// write end closed and drained: a further read observes EOF, not a block.
	got2 := f.call(syscalls.SysRead, rfd, readVA, 4)
	require.Equal(t, int64(0), got2)
	require.Zero(t, f.call(syscalls.SysClose, rfd))
}

func TestPipeWriteAfterReadCloseFails(t *testing.T) {
	f := newFixture(t)
	fdsVA := f.mapPage(t)
	require.Zero(t, f.call(syscalls.SysPipe, fdsVA))
	fds := f.readBytes(t, fdsVA, 8)
	rfd := uint64(uint32(fds[0]) | uint32(fds[1])<<8 | uint32(fds[2])<<16 | uint32(fds[3])<<24)
	wfd := uint64(uint32(fds[4]) | uint32(fds[5])<<8 | uint32(fds[6])<<16 | uint32(fds[7])<<24)

	require.Zero(t, f.call(syscalls.SysClose, rfd))

	dataVA := f.putBytes(t, []byte("x"))
	require.Equal(t, int64(common.EPIPE), f.call(syscalls.SysWrite, wfd, dataVA, 1))
	require.Zero(t, f.call(syscalls.SysClose, wfd))
}
