package alloc_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grhack/emstore/internal/format"
	"github.com/grhack/emstore/store/alloc"
)

// memBacking is an in-memory Backing used only to exercise the allocator's
// bookkeeping without touching real extents.
type memBacking struct {
	extentSize int
	log2       uint8
	extents    [][]byte
}

func newMemBacking(extentSize int, log2 uint8) *memBacking {
	b := &memBacking{extentSize: extentSize, log2: log2}
	b.extents = append(b.extents, make([]byte, extentSize))
	return b
}

func (b *memBacking) Slice(off uint64, n int) ([]byte, error) {
	idx, byteOff := format.DecodeOffset(off, b.log2)
	if int(idx) >= len(b.extents) {
		return nil, fmt.Errorf("extent %d not present", idx)
	}
	ext := b.extents[idx]
	if int(byteOff)+n > len(ext) {
		return nil, fmt.Errorf("slice out of range")
	}
	return ext[byteOff : int(byteOff)+n], nil
}

func (b *memBacking) Grow() (uint64, error) {
	b.extents = append(b.extents, make([]byte, b.extentSize))
	return format.EncodeOffset(uint64(len(b.extents)-1), 0, b.log2), nil
}

func (b *memBacking) ExtentSize() int      { return b.extentSize }
func (b *memBacking) ExtentSizeLog2() uint8 { return b.log2 }

func TestAllocateBumpsHighWater(t *testing.T) {
	backing := newMemBacking(1<<20, 20)
	a := alloc.New(backing, alloc.State{})

	off1, buf1, err := a.Allocate(16)
	require.NoError(t, err)
	require.Equal(t, uint64(0), off1)
	require.Len(t, buf1, format.Align8(format.RecordHeaderSize+16))

	off2, _, err := a.Allocate(16)
	require.NoError(t, err)
	require.Greater(t, off2, off1)
}

func TestFreeThenReuseBestFit(t *testing.T) {
	backing := newMemBacking(1<<20, 20)
	a := alloc.New(backing, alloc.State{})

	off, buf, err := a.Allocate(64)
	require.NoError(t, err)
	hdr, err := format.DecodeRecordHeader(buf)
	require.NoError(t, err)

	require.NoError(t, a.Free(off, hdr.Size))
	require.Equal(t, off, a.State().FreeListHead)

	// The freed 64-byte-payload record is far larger than a 32-byte
	// request, so the remainder gets split off as a new free record
	// instead of the whole block being consumed.
	offReused, bufReused, err := a.Allocate(32)
	require.NoError(t, err)
	require.Equal(t, off, offReused)
	reusedHdr, err := format.DecodeRecordHeader(bufReused)
	require.NoError(t, err)
	require.False(t, reusedHdr.Free())
	require.Equal(t, format.Align8(format.RecordHeaderSize+32), int(reusedHdr.Size))
	require.NotEqual(t, uint64(0), a.State().FreeListHead)
	require.NotEqual(t, off, a.State().FreeListHead)

	tailHdrBuf, err := backing.Slice(a.State().FreeListHead, format.RecordHeaderSize)
	require.NoError(t, err)
	tailHdr, err := format.DecodeRecordHeader(tailHdrBuf)
	require.NoError(t, err)
	require.True(t, tailHdr.Free())
	require.Equal(t, int(hdr.Size)-int(reusedHdr.Size), int(tailHdr.Size))
}

func TestFreeThenReuseExactFitNoSplit(t *testing.T) {
	backing := newMemBacking(1<<20, 20)
	a := alloc.New(backing, alloc.State{})

	off, buf, err := a.Allocate(16)
	require.NoError(t, err)
	hdr, err := format.DecodeRecordHeader(buf)
	require.NoError(t, err)

	require.NoError(t, a.Free(off, hdr.Size))

	// A request whose total size leaves a remainder smaller than
	// format.MinSplitSize reuses the whole freed block unsplit.
	offReused, bufReused, err := a.Allocate(16)
	require.NoError(t, err)
	require.Equal(t, off, offReused)
	reusedHdr, err := format.DecodeRecordHeader(bufReused)
	require.NoError(t, err)
	require.False(t, reusedHdr.Free())
	require.Equal(t, hdr.Size, reusedHdr.Size)
	require.Equal(t, uint64(0), a.State().FreeListHead)
}

func TestAllocateGrowsExtentWhenFull(t *testing.T) {
	extentSize := 256
	backing := newMemBacking(extentSize, 8)
	a := alloc.New(backing, alloc.State{})

	var lastOff uint64
	for i := 0; i < 20; i++ {
		off, _, err := a.Allocate(16)
		require.NoError(t, err)
		lastOff = off
	}
	idx, _ := format.DecodeOffset(lastOff, 8)
	require.Greater(t, idx, uint64(0))
	require.Greater(t, len(backing.extents), 1)
}

func TestExtentRolloverRetiresTailAsFreeRecord(t *testing.T) {
	// Each Allocate(16) carves a 24-byte record. A 64-byte extent fits two
	// (48 bytes) with 16 bytes left over -- too little for a third record,
	// but exactly format.MinSplitSize, so it must be retired as a free
	// record rather than silently dropped (spec.md §4.3 step 4).
	extentSize := 64
	backing := newMemBacking(extentSize, 6)
	a := alloc.New(backing, alloc.State{})

	off0, _, err := a.Allocate(16)
	require.NoError(t, err)
	off1, _, err := a.Allocate(16)
	require.NoError(t, err)
	off2, _, err := a.Allocate(16)
	require.NoError(t, err)

	idx0, _ := format.DecodeOffset(off0, 6)
	idx2, _ := format.DecodeOffset(off2, 6)
	require.Equal(t, uint64(0), idx0)
	require.Greater(t, idx2, idx0, "third allocation should have rolled over into a new extent")

	tailOff := a.State().FreeListHead
	require.NotEqual(t, uint64(0), tailOff)
	tailIdx, tailByteOff := format.DecodeOffset(tailOff, 6)
	require.Equal(t, idx0, tailIdx, "retired tail should belong to the exhausted extent")
	require.Equal(t, uint64(48), tailByteOff, "two 24-byte records leave a 16-byte tail at offset 48")

	tailHdrBuf, err := backing.Slice(tailOff, format.RecordHeaderSize)
	require.NoError(t, err)
	tailHdr, err := format.DecodeRecordHeader(tailHdrBuf)
	require.NoError(t, err)
	require.True(t, tailHdr.Free())
	require.Equal(t, uint32(16), tailHdr.Size)
	require.Equal(t, uint64(24), off1-off0)
}
