package blockfs

import "errors"

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrHostIO is returned (wrapped) when an underlying host file read, write or
	// seek is short or errors out.
	ErrHostIO = errors.New("block device: host I/O failure")

	// ErrOutOfSpace is returned when a block or inode allocation fails because
	// the device or inode freelist is exhausted.
	ErrOutOfSpace = errors.New("block device: out of space")

	// ErrPrecondition is returned when a caller violates a documented
	// precondition: pid 0, a negative or out-of-range offset, or an
	// overflowed offset+length.
	ErrPrecondition = errors.New("blockfs: precondition violated")

	// ErrInconsistent is returned when an on-disk invariant is observed
	// violated while reading (e.g. a corrupt directory entry).
	ErrInconsistent = errors.New("blockfs: on-disk structure is inconsistent")

	// ErrNotDirectory is returned by operations that require a directory node.
	ErrNotDirectory = errors.New("blockfs: not a directory")

	// ErrNameExists is returned by OpenFile/OpenDir when a directory already
	// has a child with the requested name but of the other kind.
	ErrNameExists = errors.New("blockfs: name already exists in directory")

	// ErrInvalidSignature is returned by OpenDevice (and so by Mount) when the device's magic cookie
	// does not match, meaning the file is not a blockfs device image.
	ErrInvalidSignature = errors.New("blockfs: invalid device signature")
)
