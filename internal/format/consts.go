// Package format houses the low-level, allocation-free codecs shared by every
// on-disk structure in emstore: the container header, the generic record
// header that precedes every slab allocation, and the opaque offset encoding
// that stitches extent index and in-extent byte offset into one uint64.
package format

const (
	// HeaderMagic is the four-byte signature at the start of every header file.
	HeaderMagic = "PRST"

	// HeaderSize is the fixed size of the header file in bytes.
	HeaderSize = 4096

	// HeaderVersion is the on-disk format version written by this package.
	HeaderVersion uint16 = 1

	// KindList and KindDict identify the container variant stored in a header's Kind field.
	KindList uint16 = 0
	KindDict uint16 = 1

	// RecordHeaderSize is the number of bytes preceding every record's payload:
	// a uint32 size and a 4-byte flags/reserved word.
	RecordHeaderSize = 8

	// RecordAlignment is the byte boundary every record is padded to.
	RecordAlignment = 8

	// RecordAlignmentMask is the bitmask used to round up to RecordAlignment (RecordAlignment - 1).
	RecordAlignmentMask = RecordAlignment - 1

	// FlagFree marks a record as residing on the allocator's free list.
	FlagFree uint8 = 1 << 0

	// MinRecordSize is the smallest valid record, header included: a free
	// record stores its next-free offset in the first 8 payload bytes, so
	// nothing smaller can ever be linked into the free list.
	MinRecordSize = RecordHeaderSize + 8

	// MinSplitSize is the minimum leftover worth carving off as a new free
	// record when an allocation is satisfied from an oversized free-list
	// entry (spec.md §4.3 steps 2-3). A remainder below this can't host a
	// record of its own, so the whole block is handed out unsplit instead.
	MinSplitSize = MinRecordSize

	// MinExtentSizeLog2 and MaxExtentSizeLog2 bound the configurable extent
	// size to the 1 MiB-16 MiB range spec.md requires.
	MinExtentSizeLog2 = 20 // 1 MiB
	MaxExtentSizeLog2 = 24 // 16 MiB

	// DefaultExtentSizeLog2 is the default extent size (4 MiB) used when Options
	// does not specify one.
	DefaultExtentSizeLog2 = 22
)
