package format

import "encoding/binary"

// Every multi-byte field in a header, record, slot, or cell is stored
// little-endian, so these accessors are the one place that byte order is
// decided. Grouped by width rather than by direction: the container header
// and dict slots are read and written often enough that a Put/Read pair for
// a given width is more useful kept side by side than split across separate
// "writers" and "readers" sections.

// PutU16 writes v at b[off:off+2].
func PutU16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:off+2], v)
}

// ReadU16 reads a uint16 from b[off:off+2].
func ReadU16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

// PutU32 writes v at b[off:off+4]. Used for record header sizes and dict
// entry key/value lengths.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// ReadU32 reads a uint32 from b[off:off+4].
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// PutU64 writes v at b[off:off+8]. Used for offsets, counters, and the
// dict's persisted per-slot hash.
func PutU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// ReadU64 reads a uint64 from b[off:off+8].
func ReadU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}
