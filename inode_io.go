package blockfs

import "fmt"

// readAt fills buf from the inode's content starting at byte offset,
// returning zeros for any range that falls inside a sparse hole.
func readAt(dev *Device, node *INode, offset int64, buf []byte) error {
	if offset < 0 || uint64(offset)+uint64(len(buf)) > node.MemSize {
		return fmt.Errorf("%w: read of %d bytes at offset %d exceeds size %d", ErrPrecondition, len(buf), offset, node.MemSize)
	}
	blockSize := int64(dev.BlockSize())
	for len(buf) > 0 {
		blockIdx := offset / blockSize
		inBlock := int(offset % blockSize)
		n := len(buf)
		if room := int(blockSize) - inBlock; n > room {
			n = room
		}

		leaf, _, err := locate(dev, node, blockIdx, cursorRead)
		if err != nil {
			return err
		}
		if leaf == 0 {
			for i := 0; i < n; i++ {
				buf[i] = 0
			}
		} else if err := dev.ReadAt(leaf, inBlock, buf[:n]); err != nil {
			return err
		}

		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}

// writeAt stores buf into the inode's content starting at byte offset,
// growing the tree and the recorded size as needed, then persists the
// (possibly resized) inode record.
func writeAt(dev *Device, node *INode, offset int64, buf []byte) error {
	if offset < 0 || offset+int64(len(buf)) < offset {
		return fmt.Errorf("%w: write of %d bytes at offset %d overflows", ErrPrecondition, len(buf), offset)
	}
	end := uint64(offset) + uint64(len(buf))
	grew := false
	if end > node.MemSize {
		target := requiredLevel(end, dev.BlockSize())
		if err := ensureLevel(dev, node, target); err != nil {
			return err
		}
		node.MemSize = end
		grew = true
	}

	blockSize := int64(dev.BlockSize())
	dirtyNode := grew
	for len(buf) > 0 {
		blockIdx := offset / blockSize
		inBlock := int(offset % blockSize)
		n := len(buf)
		if room := int(blockSize) - inBlock; n > room {
			n = room
		}

		leaf, dirty, err := locate(dev, node, blockIdx, cursorWrite)
		if err != nil {
			return err
		}
		if dirty {
			dirtyNode = true
		}
		if err := dev.WriteAt(leaf, inBlock, buf[:n]); err != nil {
			return err
		}

		buf = buf[n:]
		offset += int64(n)
	}

	if dirtyNode {
		return node.save(dev)
	}
	return nil
}

// setSize grows or shrinks an inode's recorded content length. Growing only
// deepens the tree enough to address the new length; shrinking reclaims
// every block that falls fully outside the new length, including index
// blocks left with no live children, and zeroes the bytes past the new
// length in the last kept block.
func setSize(dev *Device, node *INode, newSize uint64) error {
	if newSize == node.MemSize {
		return nil
	}
	if newSize > node.MemSize {
		target := requiredLevel(newSize, dev.BlockSize())
		if err := ensureLevel(dev, node, target); err != nil {
			return err
		}
		node.MemSize = newSize
		return node.save(dev)
	}

	blockSize := int64(dev.BlockSize())
	oldBlocks := (int64(node.MemSize) + blockSize - 1) / blockSize
	newBlocks := (int64(newSize) + blockSize - 1) / blockSize

	if oldBlocks > newBlocks {
		base := blockBase(dev.BlockSize())
		span := spanForLevel(node.Level, base)
		for d := int64(0); d < blocksPerInode; d++ {
			slotFrom := newBlocks - d*span
			slotTo := oldBlocks - d*span
			if slotTo <= 0 || slotFrom >= span {
				continue
			}
			if node.Blocks[d] == 0 {
				continue
			}
			if slotFrom < 0 {
				slotFrom = 0
			}
			if slotTo > span {
				slotTo = span
			}
			freed, err := freeSubtreeRange(dev, node.Blocks[d], node.Level, base, slotFrom, slotTo)
			if err != nil {
				return err
			}
			if freed {
				node.Blocks[d] = 0
			}
		}
	}

	// Zero the tail of the last kept block so a later grow reads it as a hole.
	if tail := int64(newSize) % blockSize; tail != 0 {
		leaf, _, err := locate(dev, node, int64(newSize)/blockSize, cursorRead)
		if err != nil {
			return err
		}
		if leaf != 0 {
			if err := dev.WriteAt(leaf, int(tail), make([]byte, blockSize-tail)); err != nil {
				return err
			}
		}
	}

	node.MemSize = newSize
	return node.save(dev)
}
