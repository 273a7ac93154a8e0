package blockfs

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
)

// BlockPid is the 64-bit signed id of a block on a Device. 0 is reserved and
// never denotes a live block.
type BlockPid int64

// blockPidSize is sizeof(BlockPid) on disk; index blocks and freelist cells
// are built around this constant.
const blockPidSize = 8

// Device is a fixed-capacity block device backed by a regular host file.
// Block 0 is reserved for the persistent master header (see masterHeader)
// and is never handed out by AllocBlock; every other block is either live
// (owned by some inode tree or inode-slot block) or threaded onto the
// freelist rooted at master.FirstUnusedBlock.
type Device struct {
	f           *os.File
	blockSize   int
	blocksTotal int64
	master      masterHeader
	verbose     bool
}

// Option configures a Device or FS at open/mount time.
type Option func(*Device)

// WithVerbose turns on trace logging via the standard log package, matching
// the teacher codebase's use of log.Printf for low-level I/O tracing.
func WithVerbose(v bool) Option {
	return func(d *Device) { d.verbose = v }
}

func (d *Device) logf(format string, args ...interface{}) {
	if d.verbose {
		log.Printf("blockfs: "+format, args...)
	}
}

// CreateDevice creates or truncates the host file name to blockSize*blocksTotal
// bytes and initializes a fresh master block: cookie, geometry, an empty
// freelist, and a bump pointer starting at block 1 (block 0 is reserved).
func CreateDevice(name string, blockSize int, blocksTotal int64, opts ...Option) (*Device, error) {
	if blockSize < masterHeaderSize() {
		return nil, fmt.Errorf("%w: block size %d smaller than header %d", ErrPrecondition, blockSize, masterHeaderSize())
	}

	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHostIO, err)
	}
	if err := f.Truncate(int64(blockSize) * blocksTotal); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrHostIO, err)
	}

	d := &Device{
		f:           f,
		blockSize:   blockSize,
		blocksTotal: blocksTotal,
		master: masterHeader{
			Cookie:           masterCookie,
			BlockSize:        uint32(blockSize),
			BlocksTotal:      blocksTotal,
			FirstUnusedBlock: 0,
			LastBlock:        1,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.Save(); err != nil {
		f.Close()
		return nil, err
	}
	d.logf("created device %s: %d blocks of %d bytes", name, blocksTotal, blockSize)
	return d, nil
}

// OpenDevice opens an existing host file and restores the persistent header
// written by a prior Save/Close.
func OpenDevice(name string, opts ...Option) (*Device, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHostIO, err)
	}

	d := &Device{f: f}
	for _, opt := range opts {
		opt(d)
	}

	hdr := make([]byte, masterHeaderSize())
	if n, err := f.ReadAt(hdr, 0); err != nil || n != len(hdr) {
		f.Close()
		return nil, fmt.Errorf("%w: reading master header: %s", ErrHostIO, err)
	}
	if err := decodeFields(bytes.NewReader(hdr), &d.master); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrHostIO, err)
	}
	if d.master.Cookie != masterCookie {
		f.Close()
		return nil, ErrInvalidSignature
	}
	d.blockSize = int(d.master.BlockSize)
	d.blocksTotal = d.master.BlocksTotal

	d.logf("opened device %s: %d blocks of %d bytes", name, d.blocksTotal, d.blockSize)
	return d, nil
}

// Save writes the persistent master header back to block 0 at offset 0.
func (d *Device) Save() error {
	var buf bytes.Buffer
	if err := encodeFields(&buf, &d.master); err != nil {
		return fmt.Errorf("%w: %s", ErrHostIO, err)
	}
	return d.writeMaster(0, buf.Bytes())
}

// Close saves the device state and closes the host file.
func (d *Device) Close() error {
	if err := d.Save(); err != nil {
		return err
	}
	if err := d.f.Close(); err != nil {
		return fmt.Errorf("%w: %s", ErrHostIO, err)
	}
	return nil
}

// BlockSize returns the fixed block size of this device.
func (d *Device) BlockSize() int { return d.blockSize }

// BlocksTotal returns the device's fixed block capacity.
func (d *Device) BlocksTotal() int64 { return d.blocksTotal }

func (d *Device) checkRange(pid BlockPid) error {
	if pid <= 0 || int64(pid) >= d.blocksTotal {
		return fmt.Errorf("%w: block id %d out of range", ErrPrecondition, pid)
	}
	return nil
}

// ReadBlock reads exactly one full block into buf, which must be BlockSize()
// bytes long.
func (d *Device) ReadBlock(pid BlockPid, buf []byte) error {
	if err := d.checkRange(pid); err != nil {
		return err
	}
	return d.readAtUnchecked(pid, 0, buf)
}

// WriteBlock writes exactly one full block from buf, which must be
// BlockSize() bytes long.
func (d *Device) WriteBlock(pid BlockPid, buf []byte) error {
	if err := d.checkRange(pid); err != nil {
		return err
	}
	return d.writeAtUnchecked(pid, 0, buf)
}

// ReadAt reads len(buf) bytes from block pid starting at offset.
func (d *Device) ReadAt(pid BlockPid, offset int, buf []byte) error {
	if err := d.checkRange(pid); err != nil {
		return err
	}
	if offset < 0 || offset+len(buf) > d.blockSize {
		return fmt.Errorf("%w: offset %d + %d exceeds block size %d", ErrPrecondition, offset, len(buf), d.blockSize)
	}
	return d.readAtUnchecked(pid, offset, buf)
}

// WriteAt writes len(buf) bytes to block pid starting at offset.
func (d *Device) WriteAt(pid BlockPid, offset int, buf []byte) error {
	if err := d.checkRange(pid); err != nil {
		return err
	}
	if offset < 0 || offset+len(buf) > d.blockSize {
		return fmt.Errorf("%w: offset %d + %d exceeds block size %d", ErrPrecondition, offset, len(buf), d.blockSize)
	}
	return d.writeAtUnchecked(pid, offset, buf)
}

// readMaster and writeMaster are the unchecked variants permitted to touch
// block 0. They exist only so higher layers (the inode allocator, the
// filesystem root pointer) can persist their roots into the master block;
// they are never exported.
func (d *Device) readMaster(offset int, buf []byte) error {
	return d.readAtUnchecked(0, offset, buf)
}

func (d *Device) writeMaster(offset int, buf []byte) error {
	return d.writeAtUnchecked(0, offset, buf)
}

func (d *Device) readAtUnchecked(pid BlockPid, offset int, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	off := int64(pid)*int64(d.blockSize) + int64(offset)
	n, err := d.f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: %s", ErrHostIO, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: short read at block %d offset %d", ErrHostIO, pid, offset)
	}
	return nil
}

func (d *Device) writeAtUnchecked(pid BlockPid, offset int, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	off := int64(pid)*int64(d.blockSize) + int64(offset)
	n, err := d.f.WriteAt(buf, off)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrHostIO, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: short write at block %d offset %d", ErrHostIO, pid, offset)
	}
	return nil
}

// AllocBlock returns a fresh, non-zero block id, preferring the freelist
// over the bump pointer.
func (d *Device) AllocBlock() (BlockPid, error) {
	if d.master.FirstUnusedBlock != 0 {
		pid := d.master.FirstUnusedBlock
		buf := make([]byte, blockPidSize)
		if err := d.readAtUnchecked(pid, 0, buf); err != nil {
			return 0, err
		}
		d.master.FirstUnusedBlock = BlockPid(byteOrder.Uint64(buf))
		d.logf("alloc block %d from freelist", pid)
		return pid, nil
	}

	pid := d.master.LastBlock
	if int64(pid) >= d.blocksTotal {
		return 0, ErrOutOfSpace
	}
	d.master.LastBlock++
	d.logf("alloc block %d from bump pointer", pid)
	return pid, nil
}

// FreeBlock pushes pid onto the freelist.
func (d *Device) FreeBlock(pid BlockPid) error {
	if pid <= 0 || pid >= d.master.LastBlock {
		return fmt.Errorf("%w: cannot free block %d", ErrPrecondition, pid)
	}
	buf := make([]byte, blockPidSize)
	byteOrder.PutUint64(buf, uint64(d.master.FirstUnusedBlock))
	if err := d.writeAtUnchecked(pid, 0, buf); err != nil {
		return err
	}
	d.master.FirstUnusedBlock = pid
	d.logf("freed block %d", pid)
	return nil
}
