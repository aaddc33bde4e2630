// Command kernel is the Go-level stand-in for biscuit's main(): parse
// boot configuration, open (or format, if missing) a vimixfs disk
// image, assemble the kernel over it, and bring the first process up
// the way main.go's final `exec("bin/init", nil)` does, except that it
// spawns a Go entry function (initEntry) directly since there is no ELF
// loader to exec a real binary (spec.md §1).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/jrmenzel/vimix/internal/blockdev"
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/config"
	"github.com/jrmenzel/vimix/internal/kernel"
	"github.com/jrmenzel/vimix/internal/klog"
	"github.com/jrmenzel/vimix/internal/proc"
	callnum "github.com/jrmenzel/vimix/internal/syscall"
	"github.com/jrmenzel/vimix/internal/vm"
)

// Default disk geometry for an image this command formats itself,
// matching cmd/mkvimixfs's own flag defaults so a freshly-formatted
// image and a pre-built one are interchangeable.
const (
	defaultSizeBlocks = 65536
	defaultNInodes    = 200
	defaultLogBlocks  = 30
)

func main() {
	fs := flag.NewFlagSet("kernel", flag.ExitOnError)
	cfg, err := config.Parse(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := klog.SetLevel(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	klog.Boot("kernel", fmt.Sprintf("vimix (%s), %d hart(s), %d arena page(s)", runtime.Version(), cfg.NumHarts, cfg.ArenaPages))

	boot, err := bootFrom(cfg)
	if err != nil {
		klog.Log().Error().Err(err).Msg("boot failed")
		os.Exit(1)
	}
	defer boot.Shutdown()

	if p := boot.Spawn("init", initEntry(boot)); p == nil {
		klog.Log().Error().Msg("could not spawn the init process")
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	klog.Boot("kernel", "shutting down")
}

// bootFrom attaches to cfg.DiskImage if it already exists (the normal
// case: an operator runs cmd/mkvimixfs once and cmd/kernel many times
// against its output), or formats a fresh default-sized image in place
// the first time, so a bare `kernel -disk vimix.img` works against an
// empty directory the same way booting biscuit off a freshly-dd'd
// disk does.
func bootFrom(cfg config.Config) (*kernel.Boot, error) {
	bcfg := kernel.Config{NumHarts: cfg.NumHarts, ArenaPages: cfg.ArenaPages, Sink: newStdioSink()}

	sizeBlocks := uint32(defaultSizeBlocks)
	fresh := true
	if info, statErr := os.Stat(cfg.DiskImage); statErr == nil {
		// OpenFileDisk truncates to exactly sizeBlocks*BSIZE bytes, so
		// an existing image's own size must be passed through instead
		// of the fresh-format default to avoid clobbering it.
		sizeBlocks = uint32(info.Size() / common.BSIZE)
		fresh = false
	}

	dev, err := blockdev.OpenFileDisk(cfg.DiskImage, sizeBlocks)
	if err != nil {
		return nil, fmt.Errorf("kernel: opening %s: %w", cfg.DiskImage, err)
	}

	if fresh {
		klog.Boot("kernel", fmt.Sprintf("formatting fresh image %s (%d blocks)", cfg.DiskImage, sizeBlocks))
		return kernel.New(bcfg, dev, sizeBlocks, defaultNInodes, defaultLogBlocks)
	}
	klog.Boot("kernel", fmt.Sprintf("attaching to existing image %s (%d blocks)", cfg.DiskImage, sizeBlocks))
	return kernel.Attach(bcfg, dev)
}

// initEntry is this port's "bin/init": it has no shell or userland C
// library to load (spec.md §1 excludes both), so instead of execing a
// real binary it opens the console directly through the ordinary
// syscall surface, announces that the kernel is up, then reaps its
// children until Wait reports that none are left, and exits.
func initEntry(b *kernel.Boot) proc.Entry {
	return func(p *proc.Proc_t) {
		yield := func() { proc.Sched(p) }
		io := &initIO{b: b, p: p, yield: yield}

		if fd := io.open("/dev/console", common.O_RDWR); fd == 0 {
			io.dup(0) // fd 1: stdout
			io.dup(0) // fd 2: stderr
			io.write(1, []byte("vimix: init running\n"))
		}

		for {
			if b.Table.Wait(p, nil, yield) < 0 {
				break
			}
		}
		b.Table.Exit(p, 0)
	}
}

// initIO issues raw syscalls through the trapframe's argument
// registers on behalf of initEntry, the same low-level calling
// convention internal/kernel's own integration tests drive the
// dispatcher with, since init has no libc wrapper to call through.
type initIO struct {
	b     *kernel.Boot
	p     *proc.Proc_t
	yield func()
}

func (io *initIO) regs(args ...uint64) {
	for i, a := range args {
		io.p.Trapframe.Regs[common.REG_A0+common.RegID(i)] = a
	}
}

func (io *initIO) call(num callnum.Number, args ...uint64) int64 {
	io.regs(args...)
	io.p.Trapframe.Regs[common.REG_A0+7] = uint64(num)
	io.b.Syscall.Dispatch(io.p, io.yield)
	return int64(io.p.Trapframe.Regs[common.REG_A0])
}

func (io *initIO) mapString(s string) uint64 {
	const va = 0x1000
	pa, ok := io.b.VM.Alloc.AllocPages(0, true)
	if !ok {
		return 0
	}
	io.b.VM.Map(io.p.Pagetable, va, pa, common.PGSIZE, vm.PteR|vm.PteW|vm.PteU)
	if err := io.b.VM.CopyOut(io.p.Pagetable, va, append([]byte(s), 0)); err != 0 {
		klog.Log().Error().Int("err", int(err)).Str("string", s).Msg("initIO: copyout failed")
		return 0
	}
	return va
}

func (io *initIO) open(path string, omode int) int {
	va := io.mapString(path)
	if va == 0 {
		return -1
	}
	return int(io.call(callnum.SysOpen, va, uint64(omode)))
}

func (io *initIO) dup(fd int) int {
	return int(io.call(callnum.SysDup, uint64(fd)))
}

func (io *initIO) write(fd int, msg []byte) int {
	const va = 0x2000
	pa, ok := io.b.VM.Alloc.AllocPages(0, true)
	if !ok {
		return -1
	}
	io.b.VM.Map(io.p.Pagetable, va, pa, common.PGSIZE, vm.PteR|vm.PteW|vm.PteU)
	if io.b.VM.CopyOut(io.p.Pagetable, va, msg) != 0 {
		return -1
	}
	return int(io.call(callnum.SysWrite, uint64(fd), va, uint64(len(msg))))
}
