package blockfs

import "fmt"

// direntHeaderSize is the fixed portion of a directory entry: an 8-byte
// child inode id followed by a 2-byte name length.
const direntHeaderSize = 8 + 2

// maxNameSize bounds a single directory entry's name, matching the 16-bit
// name_size field in the on-disk layout.
const maxNameSize = 1<<16 - 1

// encodeDirent appends one directory entry (child id, name length, name
// bytes) to dst and returns the extended slice.
func encodeDirent(dst []byte, child INodePid, name string) ([]byte, error) {
	if len(name) > maxNameSize {
		return nil, fmt.Errorf("%w: name %q exceeds %d bytes", ErrPrecondition, name, maxNameSize)
	}
	hdr := make([]byte, direntHeaderSize)
	byteOrder.PutUint64(hdr[0:8], uint64(child))
	byteOrder.PutUint16(hdr[8:10], uint16(len(name)))
	dst = append(dst, hdr...)
	dst = append(dst, name...)
	return dst, nil
}

// decodeDirentHeader reads the fixed header at the start of buf, returning
// the child id and the name length that follows it.
func decodeDirentHeader(buf []byte) (child INodePid, nameSize int, err error) {
	if len(buf) < direntHeaderSize {
		return 0, 0, fmt.Errorf("%w: truncated directory entry header", ErrInconsistent)
	}
	child = INodePid(byteOrder.Uint64(buf[0:8]))
	nameSize = int(byteOrder.Uint16(buf[8:10]))
	return child, nameSize, nil
}
