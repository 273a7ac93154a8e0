package blockfs

// NodeFlags holds the in-memory status bits kept beside each loaded node
// (they are never written to disk): whether a directory's children have been read from disk
// yet, and whether a node's in-memory state has outrun what is on disk.
type NodeFlags uint8

const (
	// FlagDirCached marks a directory whose on-disk entries have already
	// been loaded into Node.children during this mount.
	FlagDirCached NodeFlags = 1 << iota
	// FlagDirty marks a node whose in-memory state differs from what is
	// currently on disk and must be written back before unmount.
	FlagDirty
)

func (f NodeFlags) String() string {
	s := ""
	if f&FlagDirCached != 0 {
		s += "cached,"
	}
	if f&FlagDirty != 0 {
		s += "dirty,"
	}
	if s == "" {
		return "none"
	}
	return s[:len(s)-1]
}

// Node is the in-memory representation of one loaded file or directory.
// Every Node reachable from an *FS's root lives for the lifetime of that
// mount; nothing is evicted and nothing is freed individually — the whole
// tree becomes garbage only once the *FS itself is dropped after Unmount.
type Node struct {
	inode    *INode
	Name     string
	flags    NodeFlags
	children []*Node // populated lazily for directories, see restoreDir
}

// IsDir reports whether this node is a directory.
func (n *Node) IsDir() bool { return n.inode.Status == StatusDirectory }

// IsFile reports whether this node is a regular file.
func (n *Node) IsFile() bool { return n.inode.Status == StatusRegularFile }

// Kind returns the node's on-disk status.
func (n *Node) Kind() INodeStatus { return n.inode.Status }

// Size returns the node's logical content length.
func (n *Node) Size() uint64 { return n.inode.MemSize }

// Children returns the loaded children of a directory node. The directory
// must already be cached (see FS.ensureCached); callers normally reach this
// only through FS.Children, which cares for that.
func (n *Node) Children() []*Node { return n.children }

func (n *Node) markDirty() { n.flags |= FlagDirty }

func (n *Node) dirty() bool { return n.flags&FlagDirty != 0 }

func (n *Node) cached() bool { return n.flags&FlagDirCached != 0 }
