package kernel

import (
	"fmt"

	"github.com/jrmenzel/vimix/internal/blockdev"
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/vimixfs"
)

// layout is the same block-address computation cmd/mkvimixfs's own
// layout type performs; kept as a second, small copy here rather than
// exported from cmd/mkvimixfs (a command package other packages should
// not import) so Boot can format a disk without shelling out to the
// formatter tool.
type layout struct {
	sb          vimixfs.Superblock
	bmapBlocks  uint32
	dataStart   uint32
}

func computeLayout(sizeBlocks, ninodes, logBlocks uint32) (layout, error) {
	const metaBlocks = 2
	logStart := uint32(metaBlocks)
	logTotal := 1 + logBlocks

	inodeStart := logStart + logTotal
	inodeBlocks := (ninodes + vimixfs.IPB - 1) / vimixfs.IPB

	bmapStart := inodeStart + inodeBlocks
	bmapBlocks := (sizeBlocks + vimixfs.BPB - 1) / vimixfs.BPB

	dataStart := bmapStart + bmapBlocks
	if dataStart >= sizeBlocks {
		return layout{}, fmt.Errorf("kernel: size-blocks %d too small for %d inodes and %d log blocks (needs at least %d)",
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
		bmapBlocks: bmapBlocks,
		dataStart:  dataStart,
	}, nil
}

func writeBitmap(dev blockdev.Device, l layout) error {
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
		if e := dev.WriteBlock(l.sb.BmapStart+i, buf); e != 0 {
			return fmt.Errorf("kernel: writing bitmap block %d: %v", i, e)
		}
	}
	return nil
}
