// Package alloc implements the slab/free-list allocator every container uses
// to carve records out of its extents: round up to 8-byte alignment, scan a
// bounded prefix of the free list for the first fit, and otherwise bump-allocate
// from the high-water mark, growing the container by one extent when the
// current one is exhausted. Freed records are never coalesced, matching the
// simpler single-free-list design this format calls for (no segregated size
// classes, no neighbor merging).
package alloc

import (
	"fmt"

	"github.com/grhack/emstore/internal/format"
)

// scanLimit bounds how many free-list entries Allocate inspects before
// giving up on a fit and bump-allocating instead.
const scanLimit = 8

// Backing is the storage a container exposes to the allocator: raw bytes
// addressed by opaque offset, plus the ability to add one more extent when
// the high-water mark reaches the end of the current one.
type Backing interface {
	// Slice returns the n live bytes at off, valid until the next Grow.
	Slice(off uint64, n int) ([]byte, error)
	// Grow appends one new extent and returns its base offset.
	Grow() (base uint64, err error)
	// ExtentSize returns the configured extent size in bytes.
	ExtentSize() int
	// ExtentSizeLog2 returns log2 of ExtentSize.
	ExtentSizeLog2() uint8
}

// State is the allocator's persisted state, mirrored in the container
// header's free_list_head and high_water fields.
type State struct {
	FreeListHead uint64
	HighWater    uint64
}

// Allocator carves variable-length records out of a Backing's extents.
type Allocator struct {
	b     Backing
	state State
}

// New wraps an existing Backing with the allocator state read from the
// container header.
func New(b Backing, state State) *Allocator {
	return &Allocator{b: b, state: state}
}

// State returns the allocator's current persisted state.
func (a *Allocator) State() State { return a.state }

// Allocate reserves a record able to hold payload bytes of size payloadLen
// and returns its offset and the full record buffer (header + payload,
// aligned). The record is returned with FlagFree clear.
func (a *Allocator) Allocate(payloadLen int) (uint64, []byte, error) {
	if payloadLen < 0 {
		return 0, nil, fmt.Errorf("alloc: negative payload length")
	}
	total := format.Align8(format.RecordHeaderSize + payloadLen)

	if off, buf, ok, err := a.tryFreeList(total); err != nil {
		return 0, nil, err
	} else if ok {
		return off, buf, nil
	}
	return a.bumpAllocate(total)
}

// tryFreeList scans up to scanLimit free-list entries for the first one at
// least as large as need, unlinking it from the list on success. A hit
// larger than need by at least format.MinSplitSize is split: the head
// bytes become the returned record and the tail is relinked as a new,
// smaller free record (spec.md §4.3 steps 2-3). A hit too small to split
// is returned whole, unsplit (step 3).
func (a *Allocator) tryFreeList(need int) (uint64, []byte, bool, error) {
	var prevOff uint64 = 0
	cur := a.state.FreeListHead
	for i := 0; i < scanLimit && cur != 0; i++ {
		hdrBuf, err := a.b.Slice(cur, format.RecordHeaderSize)
		if err != nil {
			return 0, nil, false, err
		}
		hdr, err := format.DecodeRecordHeader(hdrBuf)
		if err != nil {
			return 0, nil, false, err
		}
		if !hdr.Free() {
			return 0, nil, false, fmt.Errorf("alloc: free-list entry at %d not marked free: corruption", cur)
		}

		full, err := a.b.Slice(cur, int(hdr.Size))
		if err != nil {
			return 0, nil, false, err
		}
		next := format.ReadU64(full, format.RecordHeaderSize)

		if int(hdr.Size) >= need {
			if prevOff == 0 {
				a.state.FreeListHead = next
			} else {
				prevFull, err := a.b.Slice(prevOff, format.RecordHeaderSize+8)
				if err != nil {
					return 0, nil, false, err
				}
				format.PutU64(prevFull, format.RecordHeaderSize, next)
			}

			remainder := int(hdr.Size) - need
			if remainder >= format.MinSplitSize {
				tailOff := cur + uint64(need)
				tailBuf, err := a.b.Slice(tailOff, remainder)
				if err != nil {
					return 0, nil, false, err
				}
				format.EncodeRecordHeader(tailBuf, format.RecordHeader{Size: uint32(remainder), Flags: format.FlagFree})
				format.PutU64(tailBuf, format.RecordHeaderSize, a.state.FreeListHead)
				a.state.FreeListHead = tailOff

				format.EncodeRecordHeader(full, format.RecordHeader{Size: uint32(need), Flags: 0})
				return cur, full[:need], true, nil
			}

			format.EncodeRecordHeader(full, format.RecordHeader{Size: hdr.Size, Flags: 0})
			return cur, full, true, nil
		}
		prevOff = cur
		cur = next
	}
	return 0, nil, false, nil
}

// bumpAllocate carves need bytes off the high-water mark, growing the
// backing store by one extent if the current one cannot fit the request.
// On ENOSPC-style growth failure, allocator state is left unchanged so the
// caller can retry or surface the error without corrupting bookkeeping.
func (a *Allocator) bumpAllocate(need int) (uint64, []byte, error) {
	log2 := a.b.ExtentSizeLog2()
	extentIdx, byteOff := format.DecodeOffset(a.state.HighWater, log2)
	extentSize := a.b.ExtentSize()

	if int(byteOff)+need > extentSize {
		savedHead := a.state.FreeListHead
		if err := a.retireExtentTail(extentIdx, byteOff, log2, extentSize); err != nil {
			return 0, nil, err
		}
		base, err := a.b.Grow()
		if err != nil {
			a.state.FreeListHead = savedHead
			return 0, nil, fmt.Errorf("alloc: grow: %w", err)
		}
		a.state.HighWater = base
		extentIdx, byteOff = format.DecodeOffset(a.state.HighWater, log2)
	}

	off := format.EncodeOffset(extentIdx, byteOff, log2)
	buf, err := a.b.Slice(off, need)
	if err != nil {
		return 0, nil, err
	}
	format.EncodeRecordHeader(buf, format.RecordHeader{Size: uint32(need), Flags: 0})
	a.state.HighWater = off + uint64(need)
	return off, buf, nil
}

// retireExtentTail converts the unused bytes remaining in the current
// extent into a free record before the allocator moves the high-water mark
// to a fresh extent (spec.md §4.3 step 4). A remainder smaller than
// format.MinRecordSize can never host a record of its own and is simply
// discarded, per the same step.
func (a *Allocator) retireExtentTail(extentIdx uint64, byteOff uint64, log2 uint8, extentSize int) error {
	remainder := extentSize - int(byteOff)
	if remainder < format.MinRecordSize {
		return nil
	}
	tailOff := format.EncodeOffset(extentIdx, byteOff, log2)
	buf, err := a.b.Slice(tailOff, remainder)
	if err != nil {
		return err
	}
	format.EncodeRecordHeader(buf, format.RecordHeader{Size: uint32(remainder), Flags: format.FlagFree})
	format.PutU64(buf, format.RecordHeaderSize, a.state.FreeListHead)
	a.state.FreeListHead = tailOff
	return nil
}

// Free marks the record at off as free and pushes it onto the head of the
// free list. size must be the record's original total size (including
// header), as read from its header before Free is called.
func (a *Allocator) Free(off uint64, size uint32) error {
	buf, err := a.b.Slice(off, int(size))
	if err != nil {
		return err
	}
	format.EncodeRecordHeader(buf, format.RecordHeader{Size: size, Flags: format.FlagFree})
	format.PutU64(buf, format.RecordHeaderSize, a.state.FreeListHead)
	a.state.FreeListHead = off
	return nil
}
