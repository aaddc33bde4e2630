package vfs

import (
	"errors"
	"strings"
	"sync"
)

// ErrNotExist is returned by Resolve when a path component has no
// match in its directory (spec.md §4.10 "path resolution fails with
// ENOENT when any component is missing"; grounded on namex returning
// NULL).
var ErrNotExist = errors.New("vfs: no such file or directory")

// ErrNotDir is returned by Resolve when a non-final path component
// names something other than a directory.
var ErrNotDir = errors.New("vfs: not a directory")

// mountKey identifies a directory a child filesystem has been grafted
// onto. Node values are always backed by a pointer (*vimixfs.Inode,
// *devfs.Inode, *sysfs.Node), so the interface value is comparable.
type mountKey struct {
	ops  *Ops
	node Node
}

// Mounts is the system-wide table of filesystems grafted onto a
// directory of another filesystem (spec.md §4.10 "a mount table maps
// a directory onto another filesystem's root"; grounded on
// dir->i_sb->imounted_on, the reverse pointer original_source's sysfs
// and devfs superblocks carry back to the directory they replaced).
// Crossing a mount point is the one piece of path resolution none of
// vimixfs/devfs/sysfs can do on their own, since each only knows its
// own nodes.
type Mounts struct {
	mu sync.RWMutex
	at map[mountKey]Ref
}

// NewMounts returns an empty mount table.
func NewMounts() *Mounts {
	return &Mounts{at: map[mountKey]Ref{}}
}

// Mount grafts root onto under, so that resolving under from then on
// yields root instead.
func (m *Mounts) Mount(under, root Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.at[mountKey{under.Ops, under.Node}] = root
}

// substitute returns the filesystem root mounted on r, or r itself if
// nothing is mounted there.
func (m *Mounts) substitute(r Ref) Ref {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if root, ok := m.at[mountKey{r.Ops, r.Node}]; ok {
		return root
	}
	return r
}

// dotdot resolves ".." from cur: first as an ordinary directory entry
// (vimixfs answers this way everywhere), falling back to the
// filesystem's own DotDot hook when cur is that filesystem's root
// (devfs, sysfs).
func (m *Mounts) dotdot(who any, cur Ref) (Ref, bool) {
	if n, ok := cur.Ops.Lookup(who, cur.Node, ".."); ok {
		return m.substitute(Ref{Node: n, Ops: cur.Ops}), true
	}
	if cur.Ops.DotDot == nil {
		return cur, false
	}
	parent, ok := cur.Ops.DotDot(who, cur.Node)
	if !ok {
		return cur, false
	}
	return m.substitute(parent), true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Resolve walks path component by component starting at start,
// crossing mount points and ".." escapes along the way (spec.md §4.10
// path resolution). Absolute vs. relative is the caller's concern:
// pass the system root for a leading "/", the process's cwd
// otherwise, matching namex(path, root|cwd, ...).
func (m *Mounts) Resolve(who any, start Ref, path string) (Ref, error) {
	cur := m.substitute(start)
	for _, elem := range splitPath(path) {
		if elem == "." {
			continue
		}
		if elem == ".." {
			if next, ok := m.dotdot(who, cur); ok {
				cur = next
			}
			continue
		}
		if cur.Stat().Type != TDir {
			return Ref{}, ErrNotDir
		}
		n, ok := cur.Ops.Lookup(who, cur.Node, elem)
		if !ok {
			return Ref{}, ErrNotExist
		}
		cur = m.substitute(Ref{Node: n, Ops: cur.Ops})
	}
	return cur, nil
}

// ResolveParent walks every path component but the last, returning the
// parent directory plus the final element's name (spec.md §4.10,
// mirroring namex(path, 1, name)/inode_of_parent_from_path). An empty
// path, or a path with no final element, is an error.
func (m *Mounts) ResolveParent(who any, start Ref, path string) (Ref, string, error) {
	elems := splitPath(path)
	if len(elems) == 0 {
		return Ref{}, "", ErrNotExist
	}
	dir, err := m.Resolve(who, start, strings.Join(elems[:len(elems)-1], "/"))
	if err != nil {
		return Ref{}, "", err
	}
	return dir, elems[len(elems)-1], nil
}
