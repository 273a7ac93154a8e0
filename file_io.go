package blockfs

import (
	"io"
	iofs "io/fs"
	"time"
)

// NodeFile adapts a *Node to io.ReaderAt/io.WriterAt/io.Closer and to the
// standard io/fs.File interface, the same convenience wrapper the teacher
// codebase builds over its own inode type so callers can treat a node as an
// ordinary file without reaching into the filesystem handle directly.
type NodeFile struct {
	fs   *FS
	node *Node
	pos  int64
}

var _ iofs.File = (*NodeFile)(nil)
var _ io.ReaderAt = (*NodeFile)(nil)
var _ io.WriterAt = (*NodeFile)(nil)

// OpenNodeFile wraps node for I/O through fs. node must belong to fs.
func OpenNodeFile(fsHandle *FS, node *Node) *NodeFile {
	return &NodeFile{fs: fsHandle, node: node}
}

// ReadAt implements io.ReaderAt over the node's logical content.
func (f *NodeFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, iofs.ErrInvalid
	}
	size := int64(f.node.Size())
	if off >= size {
		return 0, io.EOF
	}
	n := len(p)
	if off+int64(n) > size {
		n = int(size - off)
	}
	if err := f.fs.ReadAt(f.node, off, p[:n]); err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt, growing the node's content as needed.
func (f *NodeFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, iofs.ErrInvalid
	}
	if err := f.fs.WriteAt(f.node, off, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read implements io.Reader (completing io/fs.File) by advancing f's own
// read cursor across calls.
func (f *NodeFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// sequentialNodeFile is an independent sequential view over the same node,
// with its own cursor separate from f's — useful when a caller needs a
// fresh stream (e.g. copying a file's content out) without disturbing f's
// own Read position.
type sequentialNodeFile struct {
	*NodeFile
	pos int64
}

// Reader returns a stateful io.Reader over f's content starting at offset
// 0, independent of f's own Read cursor.
func (f *NodeFile) Reader() io.Reader {
	return &sequentialNodeFile{NodeFile: f}
}

func (s *sequentialNodeFile) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// Stat returns a minimal fs.FileInfo for this node.
func (f *NodeFile) Stat() (iofs.FileInfo, error) {
	return &nodeInfo{node: f.node}, nil
}

// Close does nothing: WriteAt has already passed the content to the device
// (it becomes durable at FS.Save or Unmount), and the node itself is
// reclaimed only at Unmount.
func (f *NodeFile) Close() error { return nil }

type nodeInfo struct {
	node *Node
}

var _ iofs.FileInfo = (*nodeInfo)(nil)

func (i *nodeInfo) Name() string      { return i.node.Name }
func (i *nodeInfo) Size() int64       { return int64(i.node.Size()) }
func (i *nodeInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (i *nodeInfo) IsDir() bool       { return i.node.IsDir() }
func (i *nodeInfo) Sys() any          { return i.node }

func (i *nodeInfo) Mode() iofs.FileMode {
	if i.node.IsDir() {
		return iofs.ModeDir | 0755
	}
	return 0644
}
