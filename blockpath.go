package blockfs

import "fmt"

// cursorMode selects how locate behaves when it encounters a missing
// pointer along an inode's index tree.
type cursorMode int

const (
	// cursorRead returns a zero block id for any missing pointer instead
	// of allocating one; callers treat that as a sparse hole of zeros.
	cursorRead cursorMode = iota
	// cursorWrite allocates and links whatever blocks are missing along
	// the path so the caller always gets back a usable block id.
	cursorWrite
)

// spanForLevel returns B^level: the number of leaf data blocks reachable
// through one direct-table entry at the given tree depth.
func spanForLevel(level uint16, base int64) int64 {
	span := int64(1)
	for i := uint16(0); i < level; i++ {
		span *= base
	}
	return span
}

// locate walks an inode's index tree to the data block holding blockOffset,
// allocating missing index and data blocks in cursorWrite mode or reporting
// a hole (block id 0) in cursorRead mode. It never frees anything; shrink
// is handled separately by freeSubtreeRange since it operates over a whole
// trailing range rather than one offset at a time.
//
// dirty reports whether node.Blocks was modified (a new subtree root was
// linked directly into the direct table); the caller is responsible for
// calling node.save after a batch of these if dirty was ever true.
func locate(dev *Device, node *INode, blockOffset int64, mode cursorMode) (leaf BlockPid, dirty bool, err error) {
	base := blockBase(dev.BlockSize())
	span := spanForLevel(node.Level, base)

	direct := blockOffset / span
	if direct < 0 || direct >= blocksPerInode {
		return 0, false, fmt.Errorf("%w: block offset %d out of inode range", ErrPrecondition, blockOffset)
	}
	rem := blockOffset % span

	cur := node.Blocks[direct]
	parent := BlockPid(0) // 0 is a sentinel meaning "the inode's own direct table"
	slot := direct

	writePointer := func(value BlockPid) error {
		if parent == 0 {
			node.Blocks[direct] = value
			dirty = true
			return nil
		}
		buf := make([]byte, blockPidSize)
		byteOrder.PutUint64(buf, uint64(value))
		return dev.WriteAt(parent, int(slot)*blockPidSize, buf)
	}

	for d := uint16(0); d < node.Level; d++ {
		span /= base
		idx := rem / span
		rem %= span

		if cur == 0 {
			if mode == cursorRead {
				return 0, dirty, nil
			}
			nb, err := dev.AllocBlock()
			if err != nil {
				return 0, dirty, err
			}
			zero := make([]byte, dev.BlockSize())
			if err := dev.WriteBlock(nb, zero); err != nil {
				return 0, dirty, err
			}
			if err := writePointer(nb); err != nil {
				return 0, dirty, err
			}
			cur = nb
		}

		buf := make([]byte, blockPidSize)
		if err := dev.ReadAt(cur, int(idx)*blockPidSize, buf); err != nil {
			return 0, dirty, err
		}
		parent = cur
		slot = idx
		cur = BlockPid(byteOrder.Uint64(buf))
	}

	if cur == 0 {
		if mode == cursorRead {
			return 0, dirty, nil
		}
		nb, err := dev.AllocBlock()
		if err != nil {
			return 0, dirty, err
		}
		zero := make([]byte, dev.BlockSize())
		if err := dev.WriteBlock(nb, zero); err != nil {
			return 0, dirty, err
		}
		if err := writePointer(nb); err != nil {
			return 0, dirty, err
		}
		cur = nb
	}

	return cur, dirty, nil
}

// freeSubtreeRange frees every leaf data block whose offset (relative to
// the start of the subtree rooted at pid) falls in [from, to), recursing
// through index blocks and zeroing pointers to fully-emptied children as it
// unwinds. It reports freed=true when the entire subtree rooted at pid has
// no live children left, so the caller can zero its own pointer to pid.
func freeSubtreeRange(dev *Device, pid BlockPid, level uint16, base int64, from, to int64) (freed bool, err error) {
	if pid == 0 {
		return true, nil
	}
	span := spanForLevel(level, base)
	if from <= 0 && to >= span {
		if err := freeAll(dev, pid, level); err != nil {
			return false, err
		}
		return true, nil
	}
	if level == 0 {
		// A leaf is indivisible: callers only reach here with a partial
		// range when from/to already clamp to [0,1), which is a no-op.
		return false, nil
	}

	childSpan := span / base
	buf := make([]byte, dev.BlockSize())
	if err := dev.ReadBlock(pid, buf); err != nil {
		return false, err
	}

	anyRemaining := false
	for i := int64(0); i < base; i++ {
		childFrom := from - i*childSpan
		childTo := to - i*childSpan
		child := BlockPid(byteOrder.Uint64(buf[i*blockPidSize:]))
		if childTo <= 0 || childFrom >= childSpan {
			if child != 0 {
				anyRemaining = true
			}
			continue
		}
		if childFrom < 0 {
			childFrom = 0
		}
		if childTo > childSpan {
			childTo = childSpan
		}
		childFreed, err := freeSubtreeRange(dev, child, level-1, base, childFrom, childTo)
		if err != nil {
			return false, err
		}
		if childFreed {
			byteOrder.PutUint64(buf[i*blockPidSize:], 0)
		} else {
			anyRemaining = true
		}
	}

	if err := dev.WriteBlock(pid, buf); err != nil {
		return false, err
	}
	if !anyRemaining {
		if err := dev.FreeBlock(pid); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// promote adds one level of indirection by copying the current 13-slot
// direct table, as-is, into the first 13 children of one freshly allocated
// index block, then placing that block in slot 0 and zeroing every other
// direct slot. This mirrors the original design's single "push the inode
// struct array down to a block array" step rather than wrapping each
// direct slot behind its own index block: after promotion every lookup at
// the new level descends through slot 0 first, so the old per-slot
// subtrees must all live under that one slot's first 13 children, in the
// same positions they held in the direct table.
//
// Calling this once per extra level (as ensureLevel does) reproduces
// exactly the same tree a single multi-level jump builds: after the first
// call, slots 1-12 are already zero, so every later call just wraps slot 0
// behind a new single-child block, which is the "chain the extra levels
// through slot 0" behavior a multi-level jump needs.
func promote(dev *Device, node *INode) error {
	buf := make([]byte, dev.BlockSize())
	for d := 0; d < blocksPerInode; d++ {
		byteOrder.PutUint64(buf[d*blockPidSize:], uint64(node.Blocks[d]))
	}
	nb, err := dev.AllocBlock()
	if err != nil {
		return err
	}
	if err := dev.WriteBlock(nb, buf); err != nil {
		return err
	}
	for d := 1; d < blocksPerInode; d++ {
		node.Blocks[d] = 0
	}
	node.Blocks[0] = nb
	node.Level++
	return nil
}

// ensureLevel promotes the tree until it is at least target levels deep.
func ensureLevel(dev *Device, node *INode, target uint16) error {
	for node.Level < target {
		if err := promote(dev, node); err != nil {
			return err
		}
	}
	return nil
}
