package format

import (
	"bytes"
	"fmt"
	"hash/crc32"
)

// Field offsets within the 4 KiB header file. All integers are little-endian.
const (
	hdrMagicOffset          = 0x00 // 4 bytes, "PRST"
	hdrVersionOffset        = 0x04 // u16
	hdrKindOffset           = 0x06 // u16
	hdrExtentSizeLog2Offset = 0x08 // u8
	hdrReservedOffset       = 0x09 // 7 bytes, zero
	hdrExtentCountOffset    = 0x10 // u64
	hdrFreeListHeadOffset   = 0x18 // u64
	hdrHighWaterOffset      = 0x20 // u64
	hdrHashSeedOffset       = 0x28 // u64
	hdrRootOffset           = 0x30 // u64
	hdrLengthOrOccOffset    = 0x38 // u64
	hdrSlotCountOffset      = 0x40 // u64
	hdrTombstonesOffset     = 0x48 // u64
	hdrCRC32Offset          = 0x50 // u32
	hdrChecksumRegionLen    = hdrCRC32Offset // bytes covered by the checksum
)

// Header is the decoded contents of a container's fixed 4 KiB header file.
type Header struct {
	Version         uint16
	Kind            uint16 // KindList or KindDict
	ExtentSizeLog2  uint8
	ExtentCount     uint64
	FreeListHead    uint64 // offset, 0 means empty
	HighWater       uint64 // offset
	HashSeed        uint64 // dict only
	Root            uint64 // offset: list spine root / dict table root
	LengthOrOcc     uint64 // list length, or dict occupied count
	SlotCountOrZero uint64 // dict slot count, 0 for lists
	Tombstones      uint64 // dict tombstone count, 0 for lists
}

// Encode renders h into a fresh 4096-byte, zero-padded buffer with a valid
// trailing CRC32.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderSize)
	copy(b[hdrMagicOffset:], HeaderMagic)
	PutU16(b, hdrVersionOffset, h.Version)
	PutU16(b, hdrKindOffset, h.Kind)
	b[hdrExtentSizeLog2Offset] = h.ExtentSizeLog2
	PutU64(b, hdrExtentCountOffset, h.ExtentCount)
	PutU64(b, hdrFreeListHeadOffset, h.FreeListHead)
	PutU64(b, hdrHighWaterOffset, h.HighWater)
	PutU64(b, hdrHashSeedOffset, h.HashSeed)
	PutU64(b, hdrRootOffset, h.Root)
	PutU64(b, hdrLengthOrOccOffset, h.LengthOrOcc)
	PutU64(b, hdrSlotCountOffset, h.SlotCountOrZero)
	PutU64(b, hdrTombstonesOffset, h.Tombstones)
	sum := crc32.ChecksumIEEE(b[:hdrChecksumRegionLen])
	PutU32(b, hdrCRC32Offset, sum)
	return b
}

// ParseHeader validates the magic, version, and CRC32 of b and decodes its fields.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("header: %w", ErrTruncated)
	}
	if !bytes.Equal(b[hdrMagicOffset:hdrMagicOffset+4], []byte(HeaderMagic)) {
		return Header{}, fmt.Errorf("header: %w", ErrSignatureMismatch)
	}
	version := ReadU16(b, hdrVersionOffset)
	if version != HeaderVersion {
		return Header{}, fmt.Errorf("header: version %d: %w", version, ErrUnsupportedVersion)
	}
	want := ReadU32(b, hdrCRC32Offset)
	got := crc32.ChecksumIEEE(b[:hdrChecksumRegionLen])
	if want != got {
		return Header{}, fmt.Errorf("header: %w", ErrChecksumMismatch)
	}
	return Header{
		Version:         version,
		Kind:            ReadU16(b, hdrKindOffset),
		ExtentSizeLog2:  b[hdrExtentSizeLog2Offset],
		ExtentCount:     ReadU64(b, hdrExtentCountOffset),
		FreeListHead:    ReadU64(b, hdrFreeListHeadOffset),
		HighWater:       ReadU64(b, hdrHighWaterOffset),
		HashSeed:        ReadU64(b, hdrHashSeedOffset),
		Root:            ReadU64(b, hdrRootOffset),
		LengthOrOcc:     ReadU64(b, hdrLengthOrOccOffset),
		SlotCountOrZero: ReadU64(b, hdrSlotCountOffset),
		Tombstones:      ReadU64(b, hdrTombstonesOffset),
	}, nil
}
