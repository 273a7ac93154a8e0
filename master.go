package blockfs

import (
	"encoding/binary"
	"io"
	"reflect"
)

// byteOrder is the wire encoding used for every persisted multi-byte value in
// a device image. The original format left this to host byte order; this
// implementation fixes it so device files are portable across machines.
var byteOrder = binary.LittleEndian

// masterCookie identifies a valid blockfs device image.
const masterCookie uint64 = 1234567890

// masterHeader is the persistent header stored at offset 0 of block 0. It is
// encoded field-by-field (never via struct punning) so its wire layout is
// stable regardless of Go's in-memory struct layout rules.
type masterHeader struct {
	Cookie           uint64
	BlockSize        uint32
	BlocksTotal      int64
	FirstUnusedBlock BlockPid
	LastBlock        BlockPid
}

// encodeFields writes every exported field of v (a pointer to a flat struct
// of fixed-size fields) to w in byteOrder, one field at a time.
func encodeFields(w io.Writer, v interface{}) error {
	rv := reflect.ValueOf(v).Elem()
	for i := 0; i < rv.NumField(); i++ {
		if err := binary.Write(w, byteOrder, rv.Field(i).Addr().Interface()); err != nil {
			return err
		}
	}
	return nil
}

// decodeFields is the symmetric read of encodeFields.
func decodeFields(r io.Reader, v interface{}) error {
	rv := reflect.ValueOf(v).Elem()
	for i := 0; i < rv.NumField(); i++ {
		if err := binary.Read(r, byteOrder, rv.Field(i).Addr().Interface()); err != nil {
			return err
		}
	}
	return nil
}

// fieldsSize returns the on-disk size in bytes of a struct encoded with
// encodeFields/decodeFields.
func fieldsSize(v interface{}) int {
	rv := reflect.ValueOf(v).Elem()
	n := 0
	for i := 0; i < rv.NumField(); i++ {
		n += int(rv.Field(i).Type().Size())
	}
	return n
}

func masterHeaderSize() int {
	return fieldsSize(&masterHeader{})
}
