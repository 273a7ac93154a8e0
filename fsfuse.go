//go:build fuse

package blockfs

import (
	"context"
	"errors"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fsNode adapts a *Node to the go-fuse v2 high-level node API. The core
// filesystem has no locking of its own (it is specified single-threaded),
// so every fsNode sharing one mount shares one mutex, serializing kernel
// callbacks the same way a coarse lock around the filesystem handle would
// in a single-threaded-by-design adaptation.
type fsNode struct {
	fs.Inode
	handle *FS
	node   *Node
	mu     *sync.Mutex
}

var (
	_ fs.NodeLookuper  = (*fsNode)(nil)
	_ fs.NodeReaddirer = (*fsNode)(nil)
	_ fs.NodeGetattrer = (*fsNode)(nil)
	_ fs.NodeOpener    = (*fsNode)(nil)
	_ fs.NodeReader    = (*fsNode)(nil)
	_ fs.NodeWriter    = (*fsNode)(nil)
	_ fs.NodeCreater   = (*fsNode)(nil)
	_ fs.NodeMkdirer   = (*fsNode)(nil)
	_ fs.NodeSetattrer = (*fsNode)(nil)
)

// MountFuse exposes a mounted blockfs filesystem as a real directory tree
// at mountpoint, returning the running fuse.Server. Call server.Unmount
// and fsHandle.Unmount when done.
func MountFuse(fsHandle *FS, mountpoint string) (*fuse.Server, error) {
	root := &fsNode{handle: fsHandle, node: fsHandle.Root(), mu: &sync.Mutex{}}
	opts := &fs.Options{}
	opts.MountOptions.Name = "blockfs"
	opts.MountOptions.FsName = mountpoint
	return fs.Mount(mountpoint, root, opts)
}

func modeFor(n *Node) uint32 {
	if n.IsDir() {
		return syscall.S_IFDIR | 0755
	}
	return syscall.S_IFREG | 0644
}

func (n *fsNode) fillAttr(target *Node, out *fuse.Attr) {
	out.Mode = modeFor(target)
	out.Size = target.Size()
}

func (n *fsNode) child(target *Node) *fsNode {
	return &fsNode{handle: n.handle, node: target, mu: n.mu}
}

func (n *fsNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fillAttr(n.node, &out.Attr)
	return 0
}

func (n *fsNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.mu.Lock()
	defer n.mu.Unlock()

	child, err := n.handle.GetAny(n.node, name)
	if err != nil {
		return nil, syscall.EIO
	}
	if child == nil {
		return nil, syscall.ENOENT
	}
	n.fillAttr(child, &out.Attr)
	return n.NewInode(ctx, n.child(child), fs.StableAttr{Mode: modeFor(child)}), 0
}

func (n *fsNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	n.mu.Lock()
	defer n.mu.Unlock()

	children, err := n.handle.Children(n.node)
	if err != nil {
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(children))
	for _, c := range children {
		entries = append(entries, fuse.DirEntry{Name: c.Name, Mode: modeFor(c)})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *fsNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fsNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.mu.Lock()
	defer n.mu.Unlock()

	size := int64(n.node.Size())
	if off >= size {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > size {
		end = size
	}
	buf := dest[:end-off]
	if err := n.handle.ReadAt(n.node, off, buf); err != nil {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(buf), 0
}

func (n *fsNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.handle.WriteAt(n.node, off, data); err != nil {
		return 0, syscall.EIO
	}
	return uint32(len(data)), 0
}

func (n *fsNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	n.mu.Lock()
	defer n.mu.Unlock()

	child, err := n.handle.OpenFile(n.node, name)
	if errors.Is(err, ErrNameExists) {
		return nil, nil, 0, syscall.EEXIST
	}
	if err != nil {
		return nil, nil, 0, syscall.EIO
	}
	if child == nil {
		return nil, nil, 0, syscall.EEXIST
	}
	n.fillAttr(child, &out.Attr)
	inode := n.NewInode(ctx, n.child(child), fs.StableAttr{Mode: modeFor(child)})
	return inode, nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fsNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.mu.Lock()
	defer n.mu.Unlock()

	child, err := n.handle.OpenDir(n.node, name)
	if errors.Is(err, ErrNameExists) {
		return nil, syscall.EEXIST
	}
	if err != nil {
		return nil, syscall.EIO
	}
	if child == nil {
		return nil, syscall.EEXIST
	}
	n.fillAttr(child, &out.Attr)
	return n.NewInode(ctx, n.child(child), fs.StableAttr{Mode: modeFor(child)}), 0
}

func (n *fsNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	n.mu.Lock()
	defer n.mu.Unlock()

	if sz, ok := in.GetSize(); ok {
		if err := n.handle.SetSize(n.node, sz); err != nil {
			return syscall.EIO
		}
	}
	n.fillAttr(n.node, &out.Attr)
	return 0
}
