// Package emlist implements EMList: an ordered, disk-backed sequence with
// append/get/set/iterate semantics over a container's slab-allocated
// records. A list's root offset points at a segment-vector header (length
// plus an offset to a growable cell array); each cell is an 8-byte offset
// to a value record, or the unset sentinel.
package emlist

import (
	"fmt"

	"github.com/grhack/emstore/internal/format"
	"github.com/grhack/emstore/store"
	"github.com/grhack/emstore/store/codec"
)

const (
	spineHeaderSize = 16 // u64 length, u64 cellsOffset
	cellSize        = 8
	initialCells    = 8
)

// unsetCell marks a cell with no value record, distinguishable from a real
// offset because offset 0 is reserved (see format.NullOffset).
const unsetCell = format.NullOffset

// List is an open EMList container.
type List struct {
	c          *store.Container
	length     uint64
	cellsOff   uint64
	cellsCap   uint64 // capacity in cells, not bytes
}

// Create initializes a brand-new, empty EMList directory at path.
func Create(path string, opts store.Options) (*List, error) {
	c, err := store.CreateList(path, opts)
	if err != nil {
		return nil, err
	}
	l := &List{c: c}
	c.BeginOp()
	defer c.EndOp()
	if err := l.allocateSpine(initialCells); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.Flush(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return l, nil
}

// Open reopens an existing EMList directory at path. opts.WindowCapacity
// bounds the reopened container's mmap cache; every other field is
// ignored in favor of the persisted header (spec.md §6).
func Open(path string, opts store.Options) (*List, error) {
	c, err := store.Open(path, opts)
	if err != nil {
		return nil, err
	}
	if c.Kind() != format.KindList {
		_ = c.Close()
		return nil, fmt.Errorf("emlist: %s is not an EMList container", path)
	}
	l := &List{c: c}
	c.BeginOp()
	defer c.EndOp()
	if err := l.loadSpine(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return l, nil
}

// allocateSpine carves a fresh spine header and cell array of the given
// capacity, used only at Create time.
func (l *List) allocateSpine(capacity uint64) error {
	cellsPayload := int(capacity * cellSize)
	cellsOff, cellsBuf, err := l.c.Allocator().Allocate(cellsPayload)
	if err != nil {
		return store.WrapErr(store.KindOutOfSpace, "create", l.c, err)
	}
	payload, err := format.Payload(cellsBuf, recordHeaderOf(cellsBuf))
	if err != nil {
		return store.WrapErr(store.KindCorruption, "create", l.c, err)
	}
	for i := range payload {
		payload[i] = 0
	}

	spinePayload := spineHeaderSize
	spineOff, spineBuf, err := l.c.Allocator().Allocate(spinePayload)
	if err != nil {
		return store.WrapErr(store.KindOutOfSpace, "create", l.c, err)
	}
	sp, err := format.Payload(spineBuf, recordHeaderOf(spineBuf))
	if err != nil {
		return store.WrapErr(store.KindCorruption, "create", l.c, err)
	}
	format.PutU64(sp, 0, 0)
	format.PutU64(sp, 8, cellsOff)

	l.length = 0
	l.cellsOff = cellsOff
	l.cellsCap = capacity
	l.c.SetRoot(spineOff)
	l.c.SetLengthOrOccupied(0)
	return nil
}

func recordHeaderOf(buf []byte) format.RecordHeader {
	hdr, _ := format.DecodeRecordHeader(buf)
	return hdr
}

// loadSpine reads the persisted spine header and recovers the cell array's
// capacity from its own record header.
func (l *List) loadSpine() error {
	root := l.c.Root()
	if root == format.NullOffset {
		return store.WrapErr(store.KindCorruption, "open", l.c, fmt.Errorf("emlist: missing spine root"))
	}
	hdrBuf, err := l.c.Slice(root, format.RecordHeaderSize)
	if err != nil {
		return err
	}
	rh, err := format.DecodeRecordHeader(hdrBuf)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "open", l.c, err)
	}
	full, err := l.c.Slice(root, int(rh.Size))
	if err != nil {
		return err
	}
	sp, err := format.Payload(full, rh)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "open", l.c, err)
	}
	l.length = format.ReadU64(sp, 0)
	l.cellsOff = format.ReadU64(sp, 8)

	cellHdrBuf, err := l.c.Slice(l.cellsOff, format.RecordHeaderSize)
	if err != nil {
		return err
	}
	cellHdr, err := format.DecodeRecordHeader(cellHdrBuf)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "open", l.c, err)
	}
	payloadLen := int(cellHdr.Size) - format.RecordHeaderSize
	l.cellsCap = uint64(payloadLen / cellSize)
	return nil
}

func (l *List) persistSpine() error {
	root := l.c.Root()
	full, err := l.c.Slice(root, spineHeaderSize+format.RecordHeaderSize)
	if err != nil {
		return err
	}
	rh, err := format.DecodeRecordHeader(full)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}
	sp, err := format.Payload(full, rh)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}
	format.PutU64(sp, 0, l.length)
	format.PutU64(sp, 8, l.cellsOff)
	l.c.SetLengthOrOccupied(l.length)
	return nil
}

// Len returns the list's stored length.
func (l *List) Len() uint64 { return l.length }

func (l *List) cellOffset(i uint64) uint64 {
	return l.cellsOff + format.RecordHeaderSize + i*cellSize
}

func (l *List) readCell(i uint64) (uint64, error) {
	b, err := l.c.Slice(l.cellOffset(i), cellSize)
	if err != nil {
		return 0, err
	}
	return format.ReadU64(b, 0), nil
}

func (l *List) writeCell(i uint64, off uint64) error {
	b, err := l.c.Slice(l.cellOffset(i), cellSize)
	if err != nil {
		return err
	}
	format.PutU64(b, 0, off)
	return nil
}

// Append encodes v, allocates its value record, growing the cell array
// first if it is at capacity, and appends it as the new last element.
func (l *List) Append(v any) error {
	l.c.BeginOp()
	defer l.c.EndOp()

	if l.length >= l.cellsCap {
		if err := l.growCells(); err != nil {
			return err
		}
	}
	valOff, err := l.storeValue(v)
	if err != nil {
		return err
	}
	if err := l.writeCell(l.length, valOff); err != nil {
		return err
	}
	l.length++
	if err := l.persistSpine(); err != nil {
		return err
	}
	return l.c.Flush()
}

// Get decodes and returns the value stored at index i.
func (l *List) Get(i uint64) (any, error) {
	l.c.BeginOp()
	defer l.c.EndOp()

	if i >= l.length {
		return nil, store.WrapErr(store.KindIndexOutOfRange, "get", l.c,
			fmt.Errorf("emlist: index %d out of range (length %d)", i, l.length))
	}
	valOff, err := l.readCell(i)
	if err != nil {
		return nil, err
	}
	if valOff == unsetCell {
		return nil, store.WrapErr(store.KindIndexOutOfRange, "get", l.c,
			fmt.Errorf("emlist: index %d is unset", i))
	}
	return l.decodeValue(valOff)
}

// Set bounds-checks i, frees the previous value record if any, and stores v
// as the new value at that index.
func (l *List) Set(i uint64, v any) error {
	l.c.BeginOp()
	defer l.c.EndOp()

	if i >= l.length {
		return store.WrapErr(store.KindIndexOutOfRange, "set", l.c,
			fmt.Errorf("emlist: index %d out of range (length %d)", i, l.length))
	}
	oldOff, err := l.readCell(i)
	if err != nil {
		return err
	}
	newOff, err := l.storeValue(v)
	if err != nil {
		return err
	}
	if err := l.writeCell(i, newOff); err != nil {
		return err
	}
	if oldOff != unsetCell {
		if err := l.freeValue(oldOff); err != nil {
			return err
		}
	}
	return l.c.Flush()
}

// WithValue decodes the value at i, passes it to fn, and if fn returns a
// non-nil replacement, re-encodes and stores it via Set. This is the escape
// hatch for host-language in-place mutation (e.g. appending to a decoded
// list value). Values are decoded copies: mutating one obtained from Get
// changes nothing on disk, and only the value fn returns is written back.
func (l *List) WithValue(i uint64, fn func(v any) (any, error)) error {
	cur, err := l.Get(i)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return l.Set(i, next)
}

func (l *List) storeValue(v any) (uint64, error) {
	enc, err := codec.Encode(v)
	if err != nil {
		return 0, store.WrapErr(store.KindInvalidValue, "emlist", l.c, err)
	}
	off, buf, err := l.c.Allocator().Allocate(len(enc))
	if err != nil {
		return 0, store.WrapErr(store.KindOutOfSpace, "emlist", l.c, err)
	}
	rh, err := format.DecodeRecordHeader(buf)
	if err != nil {
		return 0, store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}
	payload, err := format.Payload(buf, rh)
	if err != nil {
		return 0, store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}
	copy(payload, enc)
	return off, nil
}

func (l *List) decodeValue(off uint64) (any, error) {
	hdrBuf, err := l.c.Slice(off, format.RecordHeaderSize)
	if err != nil {
		return nil, err
	}
	rh, err := format.DecodeRecordHeader(hdrBuf)
	if err != nil {
		return nil, store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}
	full, err := l.c.Slice(off, int(rh.Size))
	if err != nil {
		return nil, err
	}
	payload, err := format.Payload(full, rh)
	if err != nil {
		return nil, store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}
	v, _, err := codec.Decode(payload)
	if err != nil {
		return nil, store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}
	return v, nil
}

func (l *List) freeValue(off uint64) error {
	hdrBuf, err := l.c.Slice(off, format.RecordHeaderSize)
	if err != nil {
		return err
	}
	rh, err := format.DecodeRecordHeader(hdrBuf)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}
	return l.c.Allocator().Free(off, rh.Size)
}

// growCells doubles the cell array's capacity, copies live cells over, and
// frees the old array.
func (l *List) growCells() error {
	newCap := l.cellsCap * 2
	if newCap == 0 {
		newCap = initialCells
	}
	newOff, newBuf, err := l.c.Allocator().Allocate(int(newCap * cellSize))
	if err != nil {
		return store.WrapErr(store.KindOutOfSpace, "emlist", l.c, err)
	}
	rh, err := format.DecodeRecordHeader(newBuf)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}
	newPayload, err := format.Payload(newBuf, rh)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}
	for i := range newPayload {
		newPayload[i] = 0
	}
	for i := uint64(0); i < l.length; i++ {
		off, err := l.readCell(i)
		if err != nil {
			return err
		}
		format.PutU64(newPayload, int(i*cellSize), off)
	}

	oldOff := l.cellsOff
	oldHdrBuf, err := l.c.Slice(oldOff, format.RecordHeaderSize)
	if err != nil {
		return err
	}
	oldHdr, err := format.DecodeRecordHeader(oldHdrBuf)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "emlist", l.c, err)
	}

	l.cellsOff = newOff
	l.cellsCap = newCap
	if err := l.persistSpine(); err != nil {
		return err
	}
	return l.c.Allocator().Free(oldOff, oldHdr.Size)
}

// Iter calls yield for every index in [0, Len()) in ascending order,
// stopping early if yield returns false. Iteration is restartable but holds
// no lock across yields: mutating the list mid-iteration is best-effort
// (an element may be skipped or repeated).
func (l *List) Iter(yield func(i uint64, v any) bool) error {
	n := l.Len()
	for i := uint64(0); i < n; i++ {
		v, err := l.Get(i)
		if err != nil {
			return err
		}
		if !yield(i, v) {
			return nil
		}
	}
	return nil
}

// Container returns the underlying container, for diagnostics (cmd/emstorectl).
func (l *List) Container() *store.Container { return l.c }

// Flush persists the spine, cells, and every dirty extent.
func (l *List) Flush() error { return l.c.Flush() }

// Close flushes and releases the underlying container.
func (l *List) Close() error { return l.c.Close() }
