package blockdev

import (
	"testing"

	"github.com/jrmenzel/vimix/internal/common"
	"github.com/stretchr/testify/require"
)

func TestMemDiskReadWriteRoundTrip(t *testing.T) {
	d := NewMemDisk(4)
	buf := make([]byte, common.BSIZE)
	buf[0] = 0xAB
	require.Zero(t, d.WriteBlock(2, buf))

	out := make([]byte, common.BSIZE)
	require.Zero(t, d.ReadBlock(2, out))
	require.Equal(t, buf, out)
}

func TestMemDiskOutOfRangeIsError(t *testing.T) {
	d := NewMemDisk(2)
	buf := make([]byte, common.BSIZE)
	require.NotZero(t, d.ReadBlock(5, buf))
	require.NotZero(t, d.WriteBlock(5, buf))
}

func TestMemDiskFailAfterInjectsFault(t *testing.T) {
	d := NewMemDisk(2)
	buf := make([]byte, common.BSIZE)

	d.FailAfter(1)
	require.Zero(t, d.WriteBlock(0, buf), "first write still succeeds")
	require.NotZero(t, d.WriteBlock(0, buf), "second write is the injected failure")

	d.ClearFailure()
	require.Zero(t, d.WriteBlock(0, buf))
}

func TestFileDiskPersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/disk.img"
	d1, err := OpenFileDisk(path, 4)
	require.NoError(t, err)

	buf := make([]byte, common.BSIZE)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.Zero(t, d1.WriteBlock(3, buf))
	require.NoError(t, d1.Close())

	d2, err := OpenFileDisk(path, 4)
	require.NoError(t, err)
	defer d2.Close()

	out := make([]byte, common.BSIZE)
	require.Zero(t, d2.ReadBlock(3, out))
	require.Equal(t, buf, out)
}
