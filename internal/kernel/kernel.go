// Package kernel assembles every subsystem into one bootable instance:
// the page allocator, virtual memory, process table, buffer cache,
// vimixfs, the cross-filesystem mount table with devfs/sysfs grafted
// on, and the syscall dispatcher, then starts one scheduler goroutine
// per simulated hart. This is the Go-level equivalent of the teacher's
// main(): where biscuit's main.go inlines banner prints, cpuchk,
// dmap_init, cpus_start and a final exec of "bin/init" directly in
// func main, this kernel splits the "assemble everything" half into a
// reusable Boot so both cmd/kernel and internal/kernel's own
// integration tests build the identical stack.
package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jrmenzel/vimix/internal/bio"
	"github.com/jrmenzel/vimix/internal/blockdev"
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/console"
	"github.com/jrmenzel/vimix/internal/cpu"
	"github.com/jrmenzel/vimix/internal/devfs"
	"github.com/jrmenzel/vimix/internal/klog"
	"github.com/jrmenzel/vimix/internal/mm"
	"github.com/jrmenzel/vimix/internal/proc"
	"github.com/jrmenzel/vimix/internal/sysfs"
	"github.com/jrmenzel/vimix/internal/syscall"
	"github.com/jrmenzel/vimix/internal/vfs"
	"github.com/jrmenzel/vimix/internal/vimixfs"
	"github.com/jrmenzel/vimix/internal/vm"
)

// bindHarts wires internal/cpu and internal/spinlock exactly once per
// process, mirroring runtime.Install_traphandler's one-shot install in
// the teacher's main(). cpu.GoroutineAffinity resolves each goroutine's
// hart id from its own internal/cpu.SetHartAffinity binding rather than
// a single fixed value: proc.Table.RunScheduler binds one hart id per
// scheduler goroutine, and rebinds the process goroutine it resumes on
// every handoff, so spinlock.Lock_t's same-hart bookkeeping reflects
// which hart is genuinely driving which goroutine instead of treating
// every goroutine as hart 0.
var bindHarts sync.Once

func bindHartsOnce() {
	bindHarts.Do(func() {
		cpu.BindCurrentHart(cpu.GoroutineAffinity)
		cpu.BindSpinlocks()
		// The calling goroutine performs all of New/Attach's synchronous
		// boot-time setup (formatting, mounting, devfs/sysfs grafting)
		// strictly before any RunScheduler goroutine starts, so reusing
		// hart id 0 here is safe: there is no other goroutine yet to
		// contend with.
		cpu.SetHartAffinity(0)
	})
}

// Config bundles everything Boot needs beyond the block device itself:
// geometry independent of any one disk image's own superblock, and the
// number of simulated harts to bring up (grounded on biscuit's
// cpus_start(ncpu, aplim)).
type Config struct {
	NumHarts    int
	ArenaPages  int
	BufferSlots int
	Sink        console.Sink // nil disables the console device
}

func (c Config) withDefaults() Config {
	if c.NumHarts <= 0 {
		c.NumHarts = 1
	}
	if c.ArenaPages <= 0 {
		c.ArenaPages = 4096
	}
	if c.BufferSlots <= 0 {
		c.BufferSlots = 64
	}
	return c
}

// Boot is one fully assembled, running kernel instance.
type Boot struct {
	VM      *vm.VM
	Table   *proc.Table
	FS      *vimixfs.FS
	Mounts  *vfs.Mounts
	Root    vfs.Ref
	Syscall *syscall.Syscalls
	Console *console.Device

	stops []func()
}

// Programs installs this boot's fixture exec table (see
// internal/proc/exec.go's Program type), keyed by the absolute path a
// caller's execv would name.
type Programs map[string]proc.Program

// New formats dev fresh (boot block, superblock, a fully-marked
// prefix bitmap, an empty root directory with "." and "..") and
// assembles the running kernel over it, the same sequence
// cmd/mkvimixfs's run() follows, generalized here to also wire devfs,
// sysfs, and the syscall surface instead of stopping at "image
// written". sizeBlocks/ninodes/logBlocks size the on-disk layout.
func New(cfg Config, dev blockdev.Device, sizeBlocks, ninodes, logBlocks uint32) (*Boot, error) {
	bindHartsOnce()
	cfg = cfg.withDefaults()

	l, err := computeLayout(sizeBlocks, ninodes, logBlocks)
	if err != nil {
		return nil, err
	}

	sbBuf := make([]byte, common.BSIZE)
	l.sb.Encode(sbBuf)
	if e := dev.WriteBlock(vimixfs.SBBlock, sbBuf); e != 0 {
		return nil, fmt.Errorf("kernel: writing superblock: %v", e)
	}
	if err := writeBitmap(dev, l); err != nil {
		return nil, err
	}

	a := mm.New(cfg.ArenaPages)
	v := vm.New(a, vm.Sv39Levels)
	tbl := proc.NewTable(v)
	cache := bio.New(dev, cfg.BufferSlots)

	_, who, err := bootCaller(tbl)
	if err != nil {
		return nil, err
	}

	fs := vimixfs.Mount(cache, 0, who)
	if !fs.Begin(who, 10) {
		return nil, fmt.Errorf("kernel: could not start the root-directory transaction")
	}
	root := fs.Alloc(who, vimixfs.TDir)
	if root == nil || root.Inum != vimixfs.RootIno {
		return nil, fmt.Errorf("kernel: root directory did not land on inode %d", vimixfs.RootIno)
	}
	fs.Lock(root, who)
	if !fs.DirLink(who, root, ".", root.Inum) || !fs.DirLink(who, root, "..", root.Inum) {
		return nil, fmt.Errorf("kernel: could not link . and .. into the root directory")
	}
	root.NLink = 1
	fs.Update(who, root)
	fs.Unlock(root, who)
	fs.End(who)

	return assemble(cfg, v, tbl, fs, who, sizeBlocks)
}

// Attach mounts an already-formatted image (cmd/mkvimixfs's output)
// instead of writing a fresh superblock and bitmap, the boot path a
// real cmd/kernel invocation takes against a disk prepared ahead of
// time rather than formatted inline every run.
func Attach(cfg Config, dev blockdev.Device) (*Boot, error) {
	bindHartsOnce()
	cfg = cfg.withDefaults()

	a := mm.New(cfg.ArenaPages)
	v := vm.New(a, vm.Sv39Levels)
	tbl := proc.NewTable(v)
	cache := bio.New(dev, cfg.BufferSlots)

	_, who, err := bootCaller(tbl)
	if err != nil {
		return nil, err
	}

	fs := vimixfs.Mount(cache, 0, who)
	return assemble(cfg, v, tbl, fs, who, dev.NumBlocks())
}

// bootCaller allocates the single always-runnable process New/Attach
// issue their own formatting and directory-ensuring vimixfs calls
// from, the same never-blocks fixture role cmd/mkvimixfs's fixedProc
// plays, generalized to a real proc.Table so the harts started right
// after can share it as an ordinary (if permanently idle) table slot.
func bootCaller(tbl *proc.Table) (*proc.Proc_t, vimixfs.Caller, error) {
	boot := tbl.AllocProc("boot", func(p *proc.Proc_t) {})
	if boot == nil {
		return nil, vimixfs.Caller{}, fmt.Errorf("kernel: could not allocate the boot process")
	}
	boot.State = proc.Runnable
	boot.Lock().Unlock()
	who := vimixfs.Caller{
		Caller: bio.Caller{Proc: boot, Table: tbl, Yield: func() { panic("kernel: boot assembly must not block") }},
		Pid:    boot.Pid,
	}
	return boot, who, nil
}

// ensureDir looks up name under root, creating it as an empty
// directory if it isn't there yet: cmd/mkvimixfs never creates /dev or
// /sys itself, so whichever of New/Attach mounts an image for the
// first time is what brings them into existence. root must not be
// locked on entry (fs.Create locks it internally; DirLookup's own
// lock/unlock brackets the existence check the same way).
func ensureDir(fs *vimixfs.FS, who vimixfs.Caller, root *vimixfs.Inode, name string) (*vimixfs.Inode, error) {
	fs.Lock(root, who)
	existing, _ := fs.DirLookup(who, root, name)
	fs.Unlock(root, who)
	if existing != nil {
		fs.Lock(existing, who)
		fs.Unlock(existing, who)
		return existing, nil
	}

	n := fs.Create(who, root, name, vimixfs.TDir, 0, 0)
	if n == nil {
		return nil, fmt.Errorf("kernel: could not create /%s", name)
	}
	fs.Unlock(n, who)
	return n, nil
}

// assemble grafts devfs/sysfs onto an already-mounted fs, builds the
// syscall dispatcher, and starts cfg.NumHarts scheduler goroutines.
// Shared by New (fresh format) and Attach (existing image) so neither
// duplicates the other's devfs/sysfs/syscalls/scheduler wiring. who
// is the same boot caller New/Attach already allocated to mount fs.
func assemble(cfg Config, v *vm.VM, tbl *proc.Table, fs *vimixfs.FS, who vimixfs.Caller, sizeBlocks uint32) (*Boot, error) {
	fsOps := fs.Ops()
	rootNode := fsOps.Root(who)
	root, ok := rootNode.(*vimixfs.Inode)
	if !ok {
		return nil, fmt.Errorf("kernel: root node was not a vimixfs inode")
	}
	devDir, err := ensureDir(fs, who, root, "dev")
	if err != nil {
		return nil, err
	}
	sysDir, err := ensureDir(fs, who, root, "sys")
	if err != nil {
		return nil, err
	}
	rootRef := vfs.Ref{Node: rootNode, Ops: fsOps}
	devDirRef := vfs.Ref{Node: devDir, Ops: fsOps}
	sysDirRef := vfs.Ref{Node: sysDir, Ops: fsOps}

	devices := map[int16]syscall.CharDevice{}
	var devfsEntries []devfs.Device
	var consoleDev *console.Device
	if cfg.Sink != nil {
		consoleDev = console.New(cfg.Sink)
		devfsEntries = append(devfsEntries, devfs.Device{Name: "console", Major: 1, Kind: vfs.TCharDev})
		devices[1] = consoleDev
	}
	devfsInstance := devfs.Mount(1, devfsEntries, devDirRef)
	devOps := devfsInstance.Ops()
	devRootRef := vfs.Ref{Node: devOps.Root(nil), Ops: devOps}

	sysfsInstance := sysfs.New(2, sysDirRef)
	sysfsInstance.File(sysfsInstance.Root(), "free_pages", func() (string, error) {
		return fmt.Sprintf("%d\n", v.Alloc.FreePageCount()), nil
	})
	sysOps := sysfsInstance.Ops()
	sysRootRef := vfs.Ref{Node: sysOps.Root(nil), Ops: sysOps}

	mounts := vfs.NewMounts()
	mounts.Mount(devDirRef, devRootRef)
	mounts.Mount(sysDirRef, sysRootRef)

	sc := &syscall.Syscalls{
		Table:   tbl,
		VM:      v,
		FS:      fs,
		Mount:   mounts,
		Root:    rootRef,
		Devices: devices,
	}

	b := &Boot{VM: v, Table: tbl, FS: fs, Mounts: mounts, Root: rootRef, Syscall: sc, Console: consoleDev}

	for h := 0; h < cfg.NumHarts; h++ {
		var stopping atomic.Bool
		done := make(chan struct{})
		hartID := h
		go func() {
			tbl.RunScheduler(hartID, stopping.Load)
			close(done)
		}()
		b.stops = append(b.stops, func() {
			stopping.Store(true)
			<-done
		})
	}

	klog.Boot("kernel", fmt.Sprintf("booted: %d hart(s), %d-block disk, root at inode %d", cfg.NumHarts, sizeBlocks, vimixfs.RootIno))
	return b, nil
}

// Shutdown halts every scheduler goroutine and, if a console is
// attached, its input daemon. Blocks until all of them have returned.
func (b *Boot) Shutdown() {
	for _, stop := range b.stops {
		stop()
	}
	if b.Console != nil {
		b.Console.Stop()
	}
}

// Spawn allocates a process running entry and marks it Runnable,
// exactly like tbl.AllocProc followed by the Runnable transition
// InitFirstProcess and Fork both perform inline.
func (b *Boot) Spawn(name string, entry proc.Entry) *proc.Proc_t {
	p := b.Table.AllocProc(name, entry)
	if p == nil {
		return nil
	}
	p.State = proc.Runnable
	p.Lock().Unlock()
	return p
}
