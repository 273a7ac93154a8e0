package blockfs

import (
	"bytes"
	"fmt"
)

// INodePid is the id of an inode: the low 8 bits select a slot (0-255)
// within the block that holds it, and the remaining bits are the block id
// of that block. 0 means "no inode".
type INodePid int64

const (
	inodeSlotMask  = 0xFF
	inodeSlotShift = 8

	// blocksPerInode is the fixed size of the direct table inside every
	// inode: BLOCKS_PER_INODE in the original design.
	blocksPerInode = 13
)

// Block returns the block id holding this inode.
func (p INodePid) Block() BlockPid { return BlockPid(int64(p) >> inodeSlotShift) }

// Slot returns the slot index (0-255) of this inode within its block.
func (p INodePid) Slot() int { return int(int64(p) & inodeSlotMask) }

func newINodePid(block BlockPid, slot int) INodePid {
	return INodePid(int64(block)<<inodeSlotShift | int64(slot))
}

// INodeStatus classifies what an inode currently holds.
type INodeStatus uint16

const (
	StatusInvalid     INodeStatus = iota // free / never allocated content
	StatusBuffer                         // freshly created, not yet typed
	StatusDirectory                      // directory content
	StatusRegularFile                    // regular file content
)

func (s INodeStatus) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusBuffer:
		return "buffer"
	case StatusDirectory:
		return "directory"
	case StatusRegularFile:
		return "file"
	default:
		return "unknown"
	}
}

// INode is the fixed-size on-disk record describing one file or directory.
// Its Blocks table either holds data block ids directly (Level == 0) or the
// roots of Level-deep index trees (Level > 0); see blockpath.go for how the
// tree is addressed.
type INode struct {
	Pid     INodePid
	Level   uint16
	Status  INodeStatus
	MemSize uint64
	Blocks  [blocksPerInode]BlockPid
}

var inodeRecordSize = fieldsSize(&INode{})

// INodeAllocator is the persistent state of the inode allocator, mounted
// from and unmounted to block 0 right after the master header.
type INodeAllocator struct {
	NextInode      INodePid
	InodesPerBlock int32
}

var inodeAllocatorSize = fieldsSize(&INodeAllocator{})

// inodeAllocatorOffset is the byte offset of the allocator footer inside
// block 0, right after the master header.
func inodeAllocatorOffset() int { return masterHeaderSize() }

// rootPidOffset is the byte offset of the persisted root inode id, right
// after the allocator footer.
func rootPidOffset() int { return masterHeaderSize() + inodeAllocatorSize }

// InitAllocator initializes a fresh allocator for a device with the given
// block size; it does not touch the device.
func InitAllocator(blockSize int) (*INodeAllocator, error) {
	if blockSize < inodeRecordSize {
		return nil, fmt.Errorf("%w: block size %d smaller than inode record %d", ErrPrecondition, blockSize, inodeRecordSize)
	}
	if blockSize > (inodeSlotMask+1)*inodeRecordSize {
		return nil, fmt.Errorf("%w: block size %d too large for an 8-bit slot index", ErrPrecondition, blockSize)
	}
	return &INodeAllocator{
		NextInode:      0,
		InodesPerBlock: int32(blockSize / inodeRecordSize),
	}, nil
}

// mountAllocator restores the allocator footer from block 0.
func mountAllocator(dev *Device) (*INodeAllocator, error) {
	buf := make([]byte, inodeAllocatorSize)
	if err := dev.readMaster(inodeAllocatorOffset(), buf); err != nil {
		return nil, err
	}
	a := &INodeAllocator{}
	if err := decodeFields(bytes.NewReader(buf), a); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHostIO, err)
	}
	return a, nil
}

// unmount flushes the allocator footer to block 0.
func (a *INodeAllocator) unmount(dev *Device) error {
	var buf bytes.Buffer
	if err := encodeFields(&buf, a); err != nil {
		return fmt.Errorf("%w: %s", ErrHostIO, err)
	}
	return dev.writeMaster(inodeAllocatorOffset(), buf.Bytes())
}

// blockBase is B in the spec: the number of child block ids that fit in one
// index block.
func blockBase(blockSize int) int64 {
	return int64(blockSize) / blockPidSize
}

// requiredLevel returns the smallest level k such that
// blocksPerInode * blockSize * blockBase(blockSize)^k >= memSize.
func requiredLevel(memSize uint64, blockSize int) uint16 {
	capacity := uint64(blocksPerInode) * uint64(blockSize)
	base := uint64(blockBase(blockSize))
	var level uint16
	for capacity < memSize {
		capacity *= base
		level++
	}
	return level
}

// allocInode pops a free inode slot from the freelist, or allocates a fresh
// block and threads a new freelist chain through its slots, returning the
// first one.
func allocInode(dev *Device, a *INodeAllocator) (INodePid, error) {
	if a.NextInode != 0 {
		pid := a.NextInode
		buf := make([]byte, blockPidSize)
		if err := dev.ReadAt(pid.Block(), pid.Slot()*inodeRecordSize, buf); err != nil {
			return 0, err
		}
		a.NextInode = INodePid(byteOrder.Uint64(buf))
		return pid, nil
	}

	block, err := dev.AllocBlock()
	if err != nil {
		return 0, err
	}
	n := int(a.InodesPerBlock)
	for i := 1; i < n-1; i++ {
		next := newINodePid(block, i+1)
		buf := make([]byte, blockPidSize)
		byteOrder.PutUint64(buf, uint64(next))
		if err := dev.WriteAt(block, i*inodeRecordSize, buf); err != nil {
			dev.FreeBlock(block)
			return 0, err
		}
	}
	zero := make([]byte, blockPidSize)
	if err := dev.WriteAt(block, (n-1)*inodeRecordSize, zero); err != nil {
		dev.FreeBlock(block)
		return 0, err
	}
	a.NextInode = newINodePid(block, 1)
	return newINodePid(block, 0), nil
}

// freeInode pushes pid onto the inode freelist.
func freeInode(dev *Device, a *INodeAllocator, pid INodePid) error {
	buf := make([]byte, blockPidSize)
	byteOrder.PutUint64(buf, uint64(a.NextInode))
	if err := dev.WriteAt(pid.Block(), pid.Slot()*inodeRecordSize, buf); err != nil {
		return err
	}
	a.NextInode = pid
	return nil
}

// save writes this inode's record into its own slot.
func (n *INode) save(dev *Device) error {
	var buf bytes.Buffer
	if err := encodeFields(&buf, n); err != nil {
		return fmt.Errorf("%w: %s", ErrHostIO, err)
	}
	return dev.WriteAt(n.Pid.Block(), n.Pid.Slot()*inodeRecordSize, buf.Bytes())
}

// restoreInode reads the inode stored at pid.
func restoreInode(dev *Device, pid INodePid) (*INode, error) {
	buf := make([]byte, inodeRecordSize)
	if err := dev.ReadAt(pid.Block(), pid.Slot()*inodeRecordSize, buf); err != nil {
		return nil, err
	}
	n := &INode{}
	if err := decodeFields(bytes.NewReader(buf), n); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHostIO, err)
	}
	return n, nil
}

// createInode allocates a new inode slot, sizes its tree for memSize, sets
// status, and saves the record.
func createInode(dev *Device, a *INodeAllocator, memSize uint64, status INodeStatus) (*INode, error) {
	pid, err := allocInode(dev, a)
	if err != nil {
		return nil, err
	}
	n := &INode{
		Pid:     pid,
		Level:   requiredLevel(memSize, dev.BlockSize()),
		Status:  status,
		MemSize: memSize,
	}
	if err := n.save(dev); err != nil {
		return nil, err
	}
	return n, nil
}

// freeAll recursively frees every block reachable from pid at the given
// tree level (0 = pid is itself a data block).
func freeAll(dev *Device, pid BlockPid, level uint16) error {
	if pid == 0 {
		return nil
	}
	if level > 0 {
		base := blockBase(dev.BlockSize())
		buf := make([]byte, dev.BlockSize())
		if err := dev.ReadBlock(pid, buf); err != nil {
			return err
		}
		for i := int64(0); i < base; i++ {
			child := BlockPid(byteOrder.Uint64(buf[i*blockPidSize:]))
			if err := freeAll(dev, child, level-1); err != nil {
				return err
			}
		}
	}
	return dev.FreeBlock(pid)
}

// destroyInode frees every block owned by this inode's tree, invalidates
// the record, and returns the slot to the inode freelist.
func destroyInode(dev *Device, a *INodeAllocator, n *INode) error {
	for i := range n.Blocks {
		if err := freeAll(dev, n.Blocks[i], n.Level); err != nil {
			return err
		}
		n.Blocks[i] = 0
	}
	n.Level = 0
	n.Status = StatusInvalid
	n.MemSize = 0
	if err := n.save(dev); err != nil {
		return err
	}
	return freeInode(dev, a, n.Pid)
}
