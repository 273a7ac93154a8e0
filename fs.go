package blockfs

import "fmt"

// FS is a mounted filesystem: a device, its inode allocator, and the
// in-memory directory tree loaded from it so far. Nothing is evicted from
// that tree during a mount; it all becomes eligible for garbage collection
// once the *FS value is dropped after Unmount.
type FS struct {
	dev   *Device
	alloc *INodeAllocator
	root  *Node
}

// Init creates a brand-new device and formats it with an empty root
// directory, persisting enough state that an immediate Unmount (with no
// further changes) round-trips cleanly through a later Mount.
func Init(name string, blockSize int, blocksTotal int64, opts ...Option) (*FS, error) {
	dev, err := CreateDevice(name, blockSize, blocksTotal, opts...)
	if err != nil {
		return nil, err
	}
	alloc, err := InitAllocator(blockSize)
	if err != nil {
		dev.Close()
		return nil, err
	}
	rootInode, err := createInode(dev, alloc, 0, StatusDirectory)
	if err != nil {
		dev.Close()
		return nil, err
	}
	root := &Node{inode: rootInode, Name: "/", flags: FlagDirCached}

	fsHandle := &FS{dev: dev, alloc: alloc, root: root}
	if err := fsHandle.persistRoots(); err != nil {
		dev.Close()
		return nil, err
	}
	return fsHandle, nil
}

// Mount opens an existing device, restores the inode allocator and the
// root inode, and loads the root directory's immediate children.
func Mount(name string, opts ...Option) (*FS, error) {
	dev, err := OpenDevice(name, opts...)
	if err != nil {
		return nil, err
	}
	alloc, err := mountAllocator(dev)
	if err != nil {
		dev.Close()
		return nil, err
	}

	buf := make([]byte, blockPidSize)
	if err := dev.readMaster(rootPidOffset(), buf); err != nil {
		dev.Close()
		return nil, err
	}
	rootPid := INodePid(byteOrder.Uint64(buf))
	rootInode, err := restoreInode(dev, rootPid)
	if err != nil {
		dev.Close()
		return nil, err
	}

	fsHandle := &FS{dev: dev, alloc: alloc, root: &Node{inode: rootInode, Name: "/"}}
	if err := fsHandle.restoreDir(fsHandle.root); err != nil {
		dev.Close()
		return nil, err
	}
	return fsHandle, nil
}

func (fs *FS) persistRoots() error {
	buf := make([]byte, blockPidSize)
	byteOrder.PutUint64(buf, uint64(fs.root.inode.Pid))
	if err := fs.dev.writeMaster(rootPidOffset(), buf); err != nil {
		return err
	}
	return fs.alloc.unmount(fs.dev)
}

// Root returns the mount's root directory node.
func (fs *FS) Root() *Node { return fs.root }

// Device exposes the underlying block device, mainly so collaborators (the
// shell, the FUSE front end) can report geometry without reaching into
// unexported fields.
func (fs *FS) Device() *Device { return fs.dev }

func (fs *FS) ensureCached(dir *Node) error {
	if !dir.IsDir() {
		return ErrNotDirectory
	}
	if dir.cached() {
		return nil
	}
	return fs.restoreDir(dir)
}

// restoreDir reads a directory's on-disk entries into dir.children. If the
// directory is already cached this is a no-op. On a partial failure the
// children parsed so far are kept in dir.children and the error is
// returned, matching the source behavior of not unwinding partial state.
func (fs *FS) restoreDir(dir *Node) error {
	if dir.cached() {
		return nil
	}
	if !dir.IsDir() {
		return ErrNotDirectory
	}

	buf := make([]byte, dir.inode.MemSize)
	if err := readAt(fs.dev, dir.inode, 0, buf); err != nil {
		return err
	}

	var children []*Node
	offset := 0
	for offset < len(buf) {
		childID, nameSize, err := decodeDirentHeader(buf[offset:])
		if err != nil {
			dir.children = children
			return err
		}
		offset += direntHeaderSize
		if offset+nameSize > len(buf) {
			dir.children = children
			return fmt.Errorf("%w: directory entry name runs past end of content", ErrInconsistent)
		}
		name := string(buf[offset : offset+nameSize])
		offset += nameSize

		childInode, err := restoreInode(fs.dev, childID)
		if err != nil {
			dir.children = children
			return err
		}
		children = append(children, &Node{inode: childInode, Name: name})
	}

	dir.children = children
	dir.flags |= FlagDirCached
	return nil
}

// saveDir serializes a directory's current children list into its inode
// content, shrinking or growing the inode to exactly that length.
func (fs *FS) saveDir(dir *Node) error {
	var buf []byte
	for _, c := range dir.children {
		var err error
		buf, err = encodeDirent(buf, c.inode.Pid, c.Name)
		if err != nil {
			return err
		}
	}
	if err := setSize(fs.dev, dir.inode, uint64(len(buf))); err != nil {
		return err
	}
	if err := writeAt(fs.dev, dir.inode, 0, buf); err != nil {
		return err
	}
	dir.flags &^= FlagDirty
	return dir.inode.save(fs.dev)
}

// saveAll recursively flushes every dirty node reachable from dir: dirty
// directories are re-serialized, dirty files have their inode record
// re-saved (their content is already on disk, written eagerly by WriteAt).
func (fs *FS) saveAll(dir *Node) error {
	if dir.dirty() {
		if err := fs.saveDir(dir); err != nil {
			return err
		}
	}
	for _, c := range dir.children {
		if c.IsDir() {
			if err := fs.saveAll(c); err != nil {
				return err
			}
			continue
		}
		if c.dirty() {
			if err := c.inode.save(fs.dev); err != nil {
				return err
			}
			c.flags &^= FlagDirty
		}
	}
	return nil
}

// GetAny returns dir's child named name, of either kind, or nil if none
// matches.
func (fs *FS) GetAny(dir *Node, name string) (*Node, error) {
	if err := fs.ensureCached(dir); err != nil {
		return nil, err
	}
	for _, c := range dir.children {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, nil
}

// GetFile returns dir's child file named name, or nil if absent or if the
// match is a directory.
func (fs *FS) GetFile(dir *Node, name string) (*Node, error) {
	n, err := fs.GetAny(dir, name)
	if err != nil || n == nil || !n.IsFile() {
		return nil, err
	}
	return n, nil
}

// GetDir returns dir's child directory named name, or nil if absent or if
// the match is a file.
func (fs *FS) GetDir(dir *Node, name string) (*Node, error) {
	n, err := fs.GetAny(dir, name)
	if err != nil || n == nil || !n.IsDir() {
		return nil, err
	}
	return n, nil
}

// OpenFile returns dir's existing file child named name, creating one if
// absent. It fails with ErrNameExists if name already names a directory.
func (fs *FS) OpenFile(dir *Node, name string) (*Node, error) {
	n, err := fs.GetAny(dir, name)
	if err != nil {
		return nil, err
	}
	if n != nil {
		if !n.IsFile() {
			return nil, ErrNameExists
		}
		return n, nil
	}
	return fs.createFile(dir, name, StatusRegularFile)
}

// OpenDir returns dir's existing subdirectory named name, creating one if
// absent. It fails with ErrNameExists if name already names a file.
func (fs *FS) OpenDir(dir *Node, name string) (*Node, error) {
	n, err := fs.GetAny(dir, name)
	if err != nil {
		return nil, err
	}
	if n != nil {
		if !n.IsDir() {
			return nil, ErrNameExists
		}
		return n, nil
	}
	return fs.createFile(dir, name, StatusDirectory)
}

// createFile allocates a new inode of the given status, links it into
// parent's children, and marks parent dirty. It rejects a name collision
// with ErrNameExists rather than letting two children share a name.
func (fs *FS) createFile(parent *Node, name string, status INodeStatus) (*Node, error) {
	if !parent.IsDir() {
		return nil, ErrNotDirectory
	}
	if err := fs.ensureCached(parent); err != nil {
		return nil, err
	}
	if existing, err := fs.GetAny(parent, name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrNameExists
	}

	inode, err := createInode(fs.dev, fs.alloc, 0, status)
	if err != nil {
		return nil, err
	}
	child := &Node{inode: inode, Name: name}
	if status == StatusDirectory {
		child.flags |= FlagDirCached
	}
	parent.children = append(parent.children, child)
	parent.markDirty()
	return child, nil
}

// Children returns dir's children, loading them from disk first if needed.
func (fs *FS) Children(dir *Node) ([]*Node, error) {
	if err := fs.ensureCached(dir); err != nil {
		return nil, err
	}
	return dir.children, nil
}

// ReadAt reads n's content starting at offset, zero-filling any sparse
// holes.
func (fs *FS) ReadAt(n *Node, offset int64, buf []byte) error {
	return readAt(fs.dev, n.inode, offset, buf)
}

// WriteAt writes buf into n's content starting at offset, growing n as
// needed, and marks n dirty.
func (fs *FS) WriteAt(n *Node, offset int64, buf []byte) error {
	if err := writeAt(fs.dev, n.inode, offset, buf); err != nil {
		return err
	}
	n.markDirty()
	return nil
}

// SetSize grows or shrinks n's logical content length and marks n dirty.
func (fs *FS) SetSize(n *Node, size uint64) error {
	if err := setSize(fs.dev, n.inode, size); err != nil {
		return err
	}
	n.markDirty()
	return nil
}

// Remove detaches the child named name from dir, destroys its inode (and
// everything it owns, recursively for directories), and marks dir dirty.
func (fs *FS) Remove(dir *Node, name string) error {
	if err := fs.ensureCached(dir); err != nil {
		return err
	}
	for i, c := range dir.children {
		if c.Name != name {
			continue
		}
		if c.IsDir() {
			if err := fs.ensureCached(c); err != nil {
				return err
			}
			for _, grandchild := range c.children {
				if err := fs.Remove(c, grandchild.Name); err != nil {
					return err
				}
			}
		}
		if err := destroyInode(fs.dev, fs.alloc, c.inode); err != nil {
			return err
		}
		dir.children = append(dir.children[:i:i], dir.children[i+1:]...)
		dir.markDirty()
		return nil
	}
	return nil
}

// Unmount persists the root inode id, flushes every dirty node, unmounts
// the inode allocator, and closes the device.
func (fs *FS) Unmount() error {
	buf := make([]byte, blockPidSize)
	byteOrder.PutUint64(buf, uint64(fs.root.inode.Pid))
	if err := fs.dev.writeMaster(rootPidOffset(), buf); err != nil {
		return err
	}
	if err := fs.saveAll(fs.root); err != nil {
		return err
	}
	if err := fs.alloc.unmount(fs.dev); err != nil {
		return err
	}
	return fs.dev.Close()
}

// Save flushes every dirty node to disk without closing the device,
// matching the source's separate fs_save entry point used between saves
// within a single long-lived mount.
func (fs *FS) Save() error {
	if err := fs.saveAll(fs.root); err != nil {
		return err
	}
	if err := fs.alloc.unmount(fs.dev); err != nil {
		return err
	}
	return fs.dev.Save()
}
