// Command mkvimixfs formats a vimixfs disk image and populates its
// root directory with the files named on the command line, the same
// job original_source/tools/mkfs/mkfs.c does for xv6's file system but
// built by driving the real internal/vimixfs engine over a
// blockdev.FileDisk instead of poking raw sectors: write the
// superblock and a fully-marked bitmap, mount, Alloc the root
// directory, then Create/Write each input file through the ordinary
// journaled API, exactly as internal/vimixfs's own test fixture
// (newTestFS in vimixfs_test.go) formats its in-memory fixture image.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrmenzel/vimix/internal/bio"
	"github.com/jrmenzel/vimix/internal/blockdev"
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/klog"
	"github.com/jrmenzel/vimix/internal/sleep"
	"github.com/jrmenzel/vimix/internal/spinlock"
	"github.com/jrmenzel/vimix/internal/vimixfs"
)

// writeBlocks/maxWriteBytes mirror internal/syscall/syscall.go's own
// per-transaction write budget so a formatter-ingested file is
// chunked through the journal the same way a running kernel's
// sys_write would.
const (
	writeBlocks   = 16
	maxWriteBytes = ((writeBlocks - 1 - 1 - 2) / 2) * common.BSIZE
)

func main() {
	diskPath := flag.String("out", "vimix.img", "path of the disk image to create")
	sizeBlocks := flag.Uint("size-blocks", 65536, "total size of the image, in 1KiB blocks")
	ninodes := flag.Uint("ninodes", 200, "number of inodes the image reserves")
	logBlocks := flag.Uint("log-blocks", 30, "payload slots reserved for the journal, excluding its header block")
	flag.Parse()

	if err := klog.SetLevel("info"); err != nil {
		panic(err)
	}

	if err := run(*diskPath, uint32(*sizeBlocks), uint32(*ninodes), uint32(*logBlocks), flag.Args()); err != nil {
		klog.Log().Error().Err(err).Msg("mkvimixfs failed")
		os.Exit(1)
	}
}

// layout is the block-address computation original_source/tools/mkfs/
// mkfs.c's main() does inline against its FSSIZE/MAX_ACTIVE_INODESS
// constants, generalized here to whatever -size-blocks/-ninodes/
// -log-blocks were asked for.
type layout struct {
	sb          vimixfs.Superblock
	inodeBlocks uint32
	bmapBlocks  uint32
	dataStart   uint32
}

func computeLayout(sizeBlocks, ninodes, logBlocks uint32) (layout, error) {
	const metaBlocks = 2 // boot block + superblock
	logStart := uint32(metaBlocks)
	logTotal := 1 + logBlocks // header block plus payload slots

	inodeStart := logStart + logTotal
	inodeBlocks := (ninodes + vimixfs.IPB - 1) / vimixfs.IPB

	bmapStart := inodeStart + inodeBlocks
	bmapBlocks := (sizeBlocks + vimixfs.BPB - 1) / vimixfs.BPB

	dataStart := bmapStart + bmapBlocks
	if dataStart >= sizeBlocks {
		return layout{}, fmt.Errorf("mkvimixfs: size-blocks %d too small for %d inodes and %d log blocks (needs at least %d)",
			sizeBlocks, ninodes, logBlocks, dataStart+1)
	}

	return layout{
		sb: vimixfs.Superblock{
			Magic:      vimixfs.Magic,
			Size:       sizeBlocks,
			NBlocks:    sizeBlocks - dataStart,
			NInodes:    ninodes,
			NLog:       logBlocks,
			LogStart:   logStart,
			InodeStart: inodeStart,
			BmapStart:  bmapStart,
		},
		inodeBlocks: inodeBlocks,
		bmapBlocks:  bmapBlocks,
		dataStart:   dataStart,
	}, nil
}

// writeBitmap marks every block below dataStart (boot, superblock,
// log, inodes, the bitmap itself) as already allocated, spanning
// bmapBlocks bitmap blocks the way fs.balloc's BBlock addressing
// expects (grounded on mkfs.c's single-block bitmap write, generalized
// to more than one block since vimixfs.BBlock supports it).
func writeBitmap(dev *blockdev.FileDisk, l layout) error {
	buf := make([]byte, common.BSIZE)
	for i := uint32(0); i < l.bmapBlocks; i++ {
		for j := range buf {
			buf[j] = 0
		}
		for bno := uint32(0); bno < l.dataStart; bno++ {
			if bno/vimixfs.BPB != i {
				continue
			}
			bit := bno % vimixfs.BPB
			buf[bit/8] |= 1 << (bit % 8)
		}
		if err := errOf(dev.WriteBlock(l.sb.BmapStart+i, buf)); err != nil {
			return err
		}
	}
	return nil
}

func errOf(e common.Err_t) error {
	if e != 0 {
		return fmt.Errorf("block I/O failed: %v", e)
	}
	return nil
}

// fixedProc/fixedTable/fixedHart stand in for the scheduler a running
// kernel would supply: mkvimixfs issues every vimixfs call from one
// goroutine and never blocks, so a single always-runnable process
// with a table of one satisfies sleep.Sleeper/sleep.Table, the same
// role vimixfs_test.go's fakeProc/fakeTable/fakeHart fixture plays.
type fixedProc struct {
	lk *spinlock.Lock_t
	c  sleep.Chan
}

func (p *fixedProc) Lock() *spinlock.Lock_t { return p.lk }
func (p *fixedProc) SetChan(c sleep.Chan)   { p.c = c }
func (p *fixedProc) Chan() sleep.Chan       { return p.c }
func (p *fixedProc) SetSleeping()           {}
func (p *fixedProc) SetRunnable()           {}
func (p *fixedProc) IsSleeping() bool       { return false }

type fixedTable struct{ p *fixedProc }

func (t *fixedTable) ForEach(f func(sleep.Sleeper)) { f(t.p) }

type fixedHart struct{ enabled bool }

func (h *fixedHart) HartID() int                     { return 0 }
func (h *fixedHart) Hart(id int) *spinlock.HartState { return &spinlock.HartState{} }
func (h *fixedHart) InterruptsEnabled() bool         { return h.enabled }
func (h *fixedHart) SetInterrupts(e bool)            { h.enabled = e }

func newCaller() vimixfs.Caller {
	p := &fixedProc{lk: spinlock.New("mkvimixfs")}
	return vimixfs.Caller{
		Caller: bio.Caller{
			Proc:  p,
			Table: &fixedTable{p: p},
			Yield: func() { panic("mkvimixfs: must not block") },
		},
		Pid: 1,
	}
}

func run(diskPath string, sizeBlocks, ninodes, logBlocks uint32, files []string) error {
	spinlock.Bind(&fixedHart{enabled: false})

	l, err := computeLayout(sizeBlocks, ninodes, logBlocks)
	if err != nil {
		return err
	}

	dev, err := blockdev.OpenFileDisk(diskPath, sizeBlocks)
	if err != nil {
		return fmt.Errorf("mkvimixfs: creating %s: %w", diskPath, err)
	}
	defer dev.Close()

	sbBuf := make([]byte, common.BSIZE)
	l.sb.Encode(sbBuf)
	if err := errOf(dev.WriteBlock(vimixfs.SBBlock, sbBuf)); err != nil {
		return err
	}
	if err := writeBitmap(dev, l); err != nil {
		return err
	}

	cache := bio.New(dev, 128)
	who := newCaller()
	fs := vimixfs.Mount(cache, 0, who)

	if !fs.Begin(who, 10) {
		return fmt.Errorf("mkvimixfs: could not start the root-directory transaction")
	}
	root := fs.Alloc(who, vimixfs.TDir)
	if root == nil || root.Inum != vimixfs.RootIno {
		return fmt.Errorf("mkvimixfs: root directory did not land on inode %d", vimixfs.RootIno)
	}
	fs.Lock(root, who)
	if !fs.DirLink(who, root, ".", root.Inum) || !fs.DirLink(who, root, "..", root.Inum) {
		return fmt.Errorf("mkvimixfs: could not link . and .. into the root directory")
	}
	root.NLink = 1
	fs.Update(who, root)
	fs.Unlock(root, who)
	fs.End(who)

	for _, path := range files {
		if err := ingest(fs, who, root, path); err != nil {
			return err
		}
	}

	if !fs.Begin(who, 10) {
		return fmt.Errorf("mkvimixfs: could not start the final root-release transaction")
	}
	fs.Put(who, root)
	fs.End(who)

	klog.Log().Info().Str("image", diskPath).Int("files", len(files)).Msg("mkvimixfs: image written")
	return nil
}

// ingest streams one host file into a new root-directory entry,
// stripping its directory components and any leading underscore the
// way mkfs.c's main() strips a "build/root/" prefix and the "_" xv6
// prepends to user binaries, so a caller can point this tool straight
// at a build output directory's files.
func ingest(fs *vimixfs.FS, who vimixfs.Caller, root *vimixfs.Inode, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("mkvimixfs: reading %s: %w", path, err)
	}

	name := strings.TrimPrefix(filepath.Base(path), "_")
	if len(name) > vimixfs.NameMax {
		name = name[:vimixfs.NameMax]
	}

	// Create brackets its own transaction; root must not be locked here.
	ip := fs.Create(who, root, name, vimixfs.TFile, 0, 0)
	if ip == nil {
		return fmt.Errorf("mkvimixfs: could not create root entry %q for %s", name, path)
	}

	var off uint32
	for off < uint32(len(content)) {
		chunk := content[off:]
		if len(chunk) > maxWriteBytes {
			chunk = chunk[:maxWriteBytes]
		}
		if !fs.Begin(who, writeBlocks) {
			fs.UnlockPut(who, ip)
			return fmt.Errorf("mkvimixfs: could not start a write transaction for %s", name)
		}
		n := fs.Write(who, ip, chunk, off, uint32(len(chunk)))
		fs.End(who)
		if n <= 0 {
			fs.UnlockPut(who, ip)
			return fmt.Errorf("mkvimixfs: short write into %s (wrote %d of %d bytes)", name, off, len(content))
		}
		off += uint32(n)
	}
	fs.UnlockPut(who, ip)

	klog.Log().Debug().Str("name", name).Int("bytes", len(content)).Msg("mkvimixfs: ingested file")
	return nil
}
