package format

import "fmt"

// RecordHeader is the 8-byte header that precedes every slab allocation,
// free or in-use:
//
//	Offset  Size  Description
//	0x00    4     Size, including this header, in bytes.
//	0x04    1     Flags (FlagFree set when the record is on the free list).
//	0x05    3     Reserved, always zero.
//
// A free record stores the next-free offset as the first 8 payload bytes,
// forming the allocator's singly linked free list in place.
type RecordHeader struct {
	Size  uint32
	Flags uint8
}

// Free reports whether the record is currently on the allocator's free list.
func (h RecordHeader) Free() bool { return h.Flags&FlagFree != 0 }

// DecodeRecordHeader parses the record header at the start of b.
func DecodeRecordHeader(b []byte) (RecordHeader, error) {
	if len(b) < RecordHeaderSize {
		return RecordHeader{}, fmt.Errorf("record: %w", ErrTruncated)
	}
	size := ReadU32(b, 0)
	flags := b[4]
	if size < RecordHeaderSize {
		return RecordHeader{}, fmt.Errorf("record: declared size %d smaller than header: %w", size, ErrSanityLimit)
	}
	return RecordHeader{Size: size, Flags: flags}, nil
}

// EncodeRecordHeader writes h into b[:RecordHeaderSize]. b must have at least
// RecordHeaderSize bytes.
func EncodeRecordHeader(b []byte, h RecordHeader) {
	PutU32(b, 0, h.Size)
	b[4] = h.Flags
	b[5], b[6], b[7] = 0, 0, 0
}

// Payload returns the sub-slice of a record's backing buffer following its
// header, given the record's declared total size.
func Payload(b []byte, h RecordHeader) ([]byte, error) {
	if uint32(len(b)) < h.Size {
		return nil, fmt.Errorf("record: %w", ErrTruncated)
	}
	return b[RecordHeaderSize:h.Size], nil
}
