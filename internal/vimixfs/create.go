package vimixfs

// Create looks up name inside iparent, wrapped in its own transaction
// (spec.md §4.9/§4.10; grounded on
// vimixfs_iops_create/vimixfs_iops_create_internal). If the name
// already names a regular file and typ is TFile, that file is
// returned locked unchanged. Otherwise a new inode of typ is
// allocated and linked in under name. On directory creation, "." and
// ".." entries are added, and "." does not bump its own nlink, to
// avoid a cyclic reference count. Returns the new or existing inode,
// locked, or nil on failure (name busy with an incompatible type, or
// the filesystem is out of inodes or blocks). iparent must not be
// locked on entry.
func (fs *FS) Create(who Caller, iparent *Inode, name string, typ FileType, major, minor int16) *Inode {
	if !fs.Begin(who, 16) {
		return nil
	}
	defer fs.End(who)

	fs.Lock(iparent, who)

	if existing, _ := fs.DirLookup(who, iparent, name); existing != nil {
		fs.Unlock(iparent, who)
		fs.Lock(existing, who)
		if typ == TFile && existing.Type == TFile {
			return existing
		}
		fs.UnlockPut(who, existing)
		return nil
	}

	ip := fs.Alloc(who, typ)
	if ip == nil {
		fs.Unlock(iparent, who)
		return nil
	}

	fs.Lock(ip, who)
	ip.Major = major
	ip.Minor = minor
	ip.NLink = 1
	fs.Update(who, ip)

	if typ == TDir {
		if !fs.DirLink(who, ip, ".", ip.Inum) || !fs.DirLink(who, ip, "..", iparent.Inum) {
			goto fail
		}
	}

	if !fs.DirLink(who, iparent, name, ip.Inum) {
		goto fail
	}

	if typ == TDir {
		iparent.NLink++ // for ".."
		fs.Update(who, iparent)
	}

	fs.Unlock(iparent, who)
	return ip

fail:
	ip.NLink = 0
	fs.Update(who, ip)
	fs.UnlockPut(who, ip)
	fs.Unlock(iparent, who)
	return nil
}

// Open looks up name inside iparent and returns it locked, truncating
// it first if it is a regular file and truncate is set (spec.md §4.10
// O_TRUNC semantics; grounded on vimixfs_iops_open). iparent must not
// be locked on entry.
func (fs *FS) Open(who Caller, iparent *Inode, name string, truncate bool) *Inode {
	fs.Lock(iparent, who)
	ip, _ := fs.DirLookup(who, iparent, name)
	fs.Unlock(iparent, who)
	if ip == nil {
		return nil
	}

	if ip.Type == TFile && truncate {
		if !fs.Begin(who, 16) {
			fs.Put(who, ip)
			return nil
		}
		fs.Lock(ip, who)
		fs.Truncate(who, ip)
		fs.Update(who, ip)
		fs.End(who)
		return ip
	}

	fs.Lock(ip, who)
	return ip
}
