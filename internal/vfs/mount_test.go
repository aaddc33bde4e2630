package vfs_test

import (
	"testing"

	"github.com/jrmenzel/vimix/internal/devfs"
	"github.com/jrmenzel/vimix/internal/vfs"
	"github.com/stretchr/testify/require"
)

// fakeNode/fakeFS model a tiny single-directory filesystem, just
// enough to exercise vfs.Mounts without pulling in vimixfs's bio/log
// dependencies.
type fakeNode struct {
	name     string
	dir      bool
	parent   *fakeNode
	children []*fakeNode
}

func (n *fakeNode) Stat() vfs.Stat {
	t := vfs.TFile
	if n.dir {
		t = vfs.TDir
	}
	return vfs.Stat{Ino: nodeID(n), Type: t}
}

// nodeID gives every fakeNode a distinct, stable "inode number" for
// Stat without reaching for unsafe.Pointer in a test file.
var nodeIDs = map[*fakeNode]uint64{}
var nextNodeID uint64 = 1

func nodeID(n *fakeNode) uint64 {
	if id, ok := nodeIDs[n]; ok {
		return id
	}
	nodeIDs[n] = nextNodeID
	nextNodeID++
	return nodeIDs[n]
}

func fakeOps() *vfs.Ops {
	asNode := func(n *fakeNode) vfs.Node {
		if n == nil {
			return nil
		}
		return n
	}
	return &vfs.Ops{
		Root: func(who any) vfs.Node { return nil },
		Lookup: func(who any, dir vfs.Node, name string) (vfs.Node, bool) {
			d := dir.(*fakeNode)
			if name == "." {
				return d, true
			}
			if name == ".." {
				if d.parent != nil {
					return d.parent, true
				}
				return nil, false
			}
			for _, c := range d.children {
				if c.name == name {
					return asNode(c), true
				}
			}
			return nil, false
		},
	}
}

func TestResolveWalksPlainPath(t *testing.T) {
	ops := fakeOps()
	root := &fakeNode{name: "/", dir: true}
	a := &fakeNode{name: "a", dir: true, parent: root}
	root.children = []*fakeNode{a}
	b := &fakeNode{name: "b", dir: false, parent: a}
	a.children = []*fakeNode{b}

	m := vfs.NewMounts()
	start := vfs.Ref{Node: root, Ops: ops}

	got, err := m.Resolve(nil, start, "a/b")
	require.NoError(t, err)
	require.Equal(t, vfs.Ref{Node: b, Ops: ops}, got)
}

func TestResolveMissingComponentFails(t *testing.T) {
	ops := fakeOps()
	root := &fakeNode{name: "/", dir: true}
	m := vfs.NewMounts()
	_, err := m.Resolve(nil, vfs.Ref{Node: root, Ops: ops}, "nope")
	require.ErrorIs(t, err, vfs.ErrNotExist)
}

func TestResolveThroughNonDirectoryFails(t *testing.T) {
	ops := fakeOps()
	root := &fakeNode{name: "/", dir: true}
	leaf := &fakeNode{name: "leaf", dir: false, parent: root}
	root.children = []*fakeNode{leaf}

	m := vfs.NewMounts()
	_, err := m.Resolve(nil, vfs.Ref{Node: root, Ops: ops}, "leaf/anything")
	require.ErrorIs(t, err, vfs.ErrNotDir)
}

func TestMountCrossesIntoChildFilesystem(t *testing.T) {
	hostOps := fakeOps()
	hostRoot := &fakeNode{name: "/", dir: true}
	devDir := &fakeNode{name: "dev", dir: true, parent: hostRoot}
	hostRoot.children = []*fakeNode{devDir}

	childFS := devfs.Mount(7, []devfs.Device{{Name: "console", Kind: vfs.TCharDev}},
		vfs.Ref{Node: devDir, Ops: hostOps})
	childOps := childFS.Ops()

	childRoot := childOps.Root(devfs.Caller{})
	m := vfs.NewMounts()
	m.Mount(vfs.Ref{Node: devDir, Ops: hostOps}, vfs.Ref{Node: childRoot, Ops: childOps})

	got, err := m.Resolve(devfs.Caller{}, vfs.Ref{Node: hostRoot, Ops: hostOps}, "dev/console")
	require.NoError(t, err)
	require.Equal(t, vfs.TCharDev, got.Stat().Type)
}

func TestMountDotDotEscapesBackToHost(t *testing.T) {
	hostOps := fakeOps()
	hostRoot := &fakeNode{name: "/", dir: true}
	devDir := &fakeNode{name: "dev", dir: true, parent: hostRoot}
	hostRoot.children = []*fakeNode{devDir}

	childFS := devfs.Mount(7, []devfs.Device{{Name: "console", Kind: vfs.TCharDev}},
		vfs.Ref{Node: devDir, Ops: hostOps})
	childOps := childFS.Ops()
	childRoot := childOps.Root(devfs.Caller{})

	m := vfs.NewMounts()
	m.Mount(vfs.Ref{Node: devDir, Ops: hostOps}, vfs.Ref{Node: childRoot, Ops: childOps})

	mounted, err := m.Resolve(devfs.Caller{}, vfs.Ref{Node: hostRoot, Ops: hostOps}, "dev")
	require.NoError(t, err)
	require.Equal(t, vfs.Ref{Node: childRoot, Ops: childOps}, mounted)

	back, err := m.Resolve(devfs.Caller{}, mounted, "..")
	require.NoError(t, err)
	require.Equal(t, vfs.Ref{Node: devDir, Ops: hostOps}, back)
}
