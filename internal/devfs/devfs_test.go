package devfs

import (
	"testing"

	"github.com/jrmenzel/vimix/internal/vfs"
	"github.com/stretchr/testify/require"
)

func testDevices() []Device {
	return []Device{
		{Name: "console", Major: 1, Minor: 0, Kind: vfs.TCharDev},
		{Name: "rdisk0", Major: 2, Minor: 0, Kind: vfs.TBlockDev},
	}
}

func TestRootLookupDot(t *testing.T) {
	fs := Mount(0, testDevices(), vfs.Ref{})
	ip, ok := fs.Lookup(fs.root, ".")
	require.True(t, ok)
	require.Equal(t, fs.root, ip)
}

func TestLookupDeviceByName(t *testing.T) {
	fs := Mount(0, testDevices(), vfs.Ref{})
	ip, ok := fs.Lookup(fs.root, "rdisk0")
	require.True(t, ok)
	d, ok := DeviceOf(ip)
	require.True(t, ok)
	require.Equal(t, "rdisk0", d.Name)
	require.Equal(t, int16(2), d.Major)
	require.Equal(t, vfs.TBlockDev, d.Kind)
}

func TestLookupUnknownNameFails(t *testing.T) {
	fs := Mount(0, testDevices(), vfs.Ref{})
	_, ok := fs.Lookup(fs.root, "nope")
	require.False(t, ok)
}

func TestLookupDotDotIsNotHandledByLookup(t *testing.T) {
	fs := Mount(0, testDevices(), vfs.Ref{})
	_, ok := fs.Lookup(fs.root, "..")
	require.False(t, ok)
}

func TestGetDirentEnumeratesDotDotDotThenDevices(t *testing.T) {
	fs := Mount(0, testDevices(), vfs.Ref{})

	e, pos, ok := fs.GetDirent(fs.root, 0)
	require.True(t, ok)
	require.Equal(t, ".", e.Name)

	e, pos, ok = fs.GetDirent(fs.root, pos)
	require.True(t, ok)
	require.Equal(t, "..", e.Name)

	e, pos, ok = fs.GetDirent(fs.root, pos)
	require.True(t, ok)
	require.Equal(t, "console", e.Name)

	e, pos, ok = fs.GetDirent(fs.root, pos)
	require.True(t, ok)
	require.Equal(t, "rdisk0", e.Name)

	_, _, ok = fs.GetDirent(fs.root, pos)
	require.False(t, ok)
}

func TestCreateIsRefused(t *testing.T) {
	fs := Mount(0, testDevices(), vfs.Ref{})
	ops := fs.Ops()
	n, ok := ops.Create(nil, fs.root, "newdev", vfs.TCharDev, 9, 0)
	require.False(t, ok)
	require.Nil(t, n)
}

func TestLinkAndWriteAreRefused(t *testing.T) {
	fs := Mount(0, testDevices(), vfs.Ref{})
	ops := fs.Ops()
	require.ErrorIs(t, ops.Link(nil, fs.root, fs.root, "x"), ErrNotSupported)
	require.ErrorIs(t, ops.Unlink(nil, fs.root, "x", true, true), ErrNotSupported)
	require.Equal(t, 0, ops.Write(nil, fs.root, []byte("x"), 0, 1))
}

func TestStatReportsDeviceKind(t *testing.T) {
	fs := Mount(3, testDevices(), vfs.Ref{})
	ip, ok := fs.Lookup(fs.root, "console")
	require.True(t, ok)
	st := ip.Stat()
	require.Equal(t, 3, st.Dev)
	require.Equal(t, vfs.TCharDev, st.Type)
}

func TestOpsRootReturnsRootNode(t *testing.T) {
	fs := Mount(0, testDevices(), vfs.Ref{})
	ops := fs.Ops()
	require.Equal(t, fs.root, ops.Root(nil))
}
