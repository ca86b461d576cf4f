// Package store implements the on-disk container lifecycle shared by EMList
// and EMDict: the 4 KiB header, the extent window cache, the slab allocator,
// and the error taxonomy every operation surfaces.
package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/grhack/emstore/internal/extentio"
	"github.com/grhack/emstore/internal/format"
	"github.com/grhack/emstore/store/alloc"
	"github.com/grhack/emstore/store/window"
)

const headerFileName = "header"

// Container is the shared lifecycle and storage substrate for an EMList or
// EMDict: header persistence, the extent window cache, and the slab
// allocator. EMList and EMDict wrap a *Container and add their own spine
// logic on top.
type Container struct {
	path           string
	absPath        string
	lock           *dirLock
	header         format.Header
	cache          *window.Cache
	alloc          *alloc.Allocator
	extentCount    int
	poisoned       bool
	poisonErr      error
	pinnedThisOp   map[int]bool
}

// OpenExtent implements window.Opener.
func (c *Container) OpenExtent(idx int) (*extentio.Extent, error) {
	size := 1 << c.header.ExtentSizeLog2
	if idx >= c.extentCount {
		return nil, fmt.Errorf("extent %d does not exist (have %d)", idx, c.extentCount)
	}
	return extentio.Open(c.path, idx, size)
}

// create initializes a brand-new container directory with a fresh header
// and a single extent, and returns the open Container.
func create(path string, kind uint16, opts Options) (*Container, error) {
	opts = opts.withDefaults()
	if err := format.ValidateExtentSizeLog2(opts.ExtentSizeLog2); err != nil {
		return nil, newErr(KindInvalidValue, "open", path, err)
	}
	abs, err := registerOpen(path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		unregisterOpen(abs)
		return nil, newErr(KindIO, "open", path, err)
	}
	lock, err := acquireLock(path)
	if err != nil {
		unregisterOpen(abs)
		return nil, newErr(KindAlreadyOpen, "open", path, err)
	}

	extentSize := 1 << opts.ExtentSizeLog2
	firstExtent, err := extentio.Create(path, 0, extentSize)
	if err != nil {
		_ = lock.release()
		unregisterOpen(abs)
		return nil, newErr(KindIO, "open", path, err)
	}
	_ = firstExtent.Close()

	firstRecordOff := format.EncodeOffset(0, uint64(format.RecordHeaderSize), opts.ExtentSizeLog2)
	hdr := format.Header{
		Version:        format.HeaderVersion,
		Kind:           kind,
		ExtentSizeLog2: opts.ExtentSizeLog2,
		ExtentCount:    1,
		FreeListHead:   0,
		HighWater:      firstRecordOff,
		Root:           0,
	}

	c := &Container{
		path:         path,
		absPath:      abs,
		lock:         lock,
		header:       hdr,
		extentCount:  1,
		pinnedThisOp: make(map[int]bool),
	}
	c.cache = window.New(c, opts.WindowCapacity)
	c.alloc = alloc.New(c, alloc.State{FreeListHead: hdr.FreeListHead, HighWater: hdr.HighWater})

	if err := c.writeHeader(); err != nil {
		_ = lock.release()
		unregisterOpen(abs)
		return nil, err
	}
	return c, nil
}

// open reopens an existing container directory, restoring its header.
// Everything persisted (extent size, root, counts) comes back from the
// header; opts.WindowCapacity is the one setting a reopen can still choose
// independently, since the mmap window is a runtime cache bound, not an
// on-disk property (spec.md §6).
func open(path string, opts Options) (*Container, error) {
	opts = opts.withDefaults()
	abs, err := registerOpen(path)
	if err != nil {
		return nil, err
	}
	lock, err := acquireLock(path)
	if err != nil {
		unregisterOpen(abs)
		return nil, newErr(KindAlreadyOpen, "open", path, err)
	}

	raw, err := os.ReadFile(filepath.Join(path, headerFileName))
	if err != nil {
		_ = lock.release()
		unregisterOpen(abs)
		return nil, newErr(KindIO, "open", path, err)
	}
	hdr, err := format.ParseHeader(raw)
	if err != nil {
		_ = lock.release()
		unregisterOpen(abs)
		return nil, newErr(KindCorruption, "open", path, err)
	}

	c := &Container{
		path:         path,
		absPath:      abs,
		lock:         lock,
		header:       hdr,
		extentCount:  int(hdr.ExtentCount),
		pinnedThisOp: make(map[int]bool),
	}
	c.cache = window.New(c, opts.WindowCapacity)
	c.alloc = alloc.New(c, alloc.State{FreeListHead: hdr.FreeListHead, HighWater: hdr.HighWater})
	return c, nil
}

// Kind returns the on-disk container kind (format.KindList or format.KindDict).
func (c *Container) Kind() uint16 { return c.header.Kind }

// Root returns the root offset (list spine root, or dict table root).
func (c *Container) Root() uint64 { return c.header.Root }

// SetRoot updates the root offset; callers must Flush to persist it.
func (c *Container) SetRoot(off uint64) { c.header.Root = off }

// LengthOrOccupied returns the list length, or dict occupied-entry count.
func (c *Container) LengthOrOccupied() uint64 { return c.header.LengthOrOcc }

// SetLengthOrOccupied updates the list length or dict occupied-entry count.
func (c *Container) SetLengthOrOccupied(v uint64) { c.header.LengthOrOcc = v }

// SlotCount returns the dict's current slot count (0 for a list).
func (c *Container) SlotCount() uint64 { return c.header.SlotCountOrZero }

// SetSlotCount updates the dict's slot count.
func (c *Container) SetSlotCount(v uint64) { c.header.SlotCountOrZero = v }

// Tombstones returns the dict's tombstone count (0 for a list).
func (c *Container) Tombstones() uint64 { return c.header.Tombstones }

// SetTombstones updates the dict's tombstone count.
func (c *Container) SetTombstones(v uint64) { c.header.Tombstones = v }

// HashSeed returns the dict's persisted hash seed.
func (c *Container) HashSeed() uint64 { return c.header.HashSeed }

// SetHashSeed sets the dict's persisted hash seed; only meaningful before
// the table is first populated.
func (c *Container) SetHashSeed(seed uint64) { c.header.HashSeed = seed }

// Allocator returns the container's slab allocator.
func (c *Container) Allocator() *alloc.Allocator { return c.alloc }

// HeaderSnapshot returns a copy of the container's current header fields,
// including live allocator state not yet written to disk. Intended for
// diagnostics (cmd/emstorectl); callers must not mutate container state
// through the returned value.
func (c *Container) HeaderSnapshot() format.Header {
	h := c.header
	st := c.alloc.State()
	h.FreeListHead = st.FreeListHead
	h.HighWater = st.HighWater
	h.ExtentCount = uint64(c.extentCount)
	return h
}

// Path returns the container's directory path.
func (c *Container) Path() string { return c.path }

// ResidentExtents returns how many extents are currently mmap'd, for
// diagnostics and for tests asserting the mmap window stays within its
// configured capacity (spec.md §4.2, TESTABLE PROPERTIES #7).
func (c *Container) ResidentExtents() int { return c.cache.Resident() }

// ExtentSize implements alloc.Backing.
func (c *Container) ExtentSize() int { return 1 << c.header.ExtentSizeLog2 }

// ExtentSizeLog2 implements alloc.Backing.
func (c *Container) ExtentSizeLog2() uint8 { return c.header.ExtentSizeLog2 }

// BeginOp starts a new logical operation; extents pinned via Slice during
// the operation stay resident (ineligible for eviction) until EndOp.
func (c *Container) BeginOp() {
	c.pinnedThisOp = make(map[int]bool)
}

// EndOp releases every extent pinned since the last BeginOp.
func (c *Container) EndOp() {
	for idx := range c.pinnedThisOp {
		c.cache.Unpin(idx)
	}
	c.pinnedThisOp = make(map[int]bool)
}

// Slice implements alloc.Backing: it returns the n live bytes at off,
// pinning (and, the first time, mapping) the extent that contains them for
// the remainder of the current operation.
func (c *Container) Slice(off uint64, n int) ([]byte, error) {
	if c.poisoned {
		return nil, newErr(KindPoisoned, "slice", c.path, c.poisonErr)
	}
	idx, byteOff := format.DecodeOffset(off, c.header.ExtentSizeLog2)
	ext, err := c.cache.Pin(int(idx))
	if err != nil {
		c.poison(err)
		return nil, newErr(KindIO, "slice", c.path, err)
	}
	if !c.pinnedThisOp[int(idx)] {
		c.pinnedThisOp[int(idx)] = true
	} else {
		c.cache.Unpin(int(idx)) // collapse the redundant ref Pin just added
	}
	data := ext.Bytes()
	out, err := format.BoundedSlice(data, int(byteOff), n)
	if err != nil {
		c.poison(fmt.Errorf("offset %d length %d exceeds extent bounds: %w", off, n, err))
		return nil, newErr(KindCorruption, "slice", c.path, c.poisonErr)
	}
	c.cache.MarkDirty(int(idx))
	return out, nil
}

// Grow implements alloc.Backing: it appends one new, fixed-size extent.
func (c *Container) Grow() (uint64, error) {
	idx := c.extentCount
	ext, err := extentio.Create(c.path, idx, c.ExtentSize())
	if err != nil {
		return 0, newErr(KindOutOfSpace, "grow", c.path, err)
	}
	_ = ext.Close()
	c.extentCount++
	c.header.ExtentCount = uint64(c.extentCount)
	base := format.EncodeOffset(uint64(idx), 0, c.header.ExtentSizeLog2)
	return base, nil
}

func (c *Container) poison(err error) {
	c.poisoned = true
	c.poisonErr = err
}

// Poisoned reports whether the container has suffered a fatal corruption
// error and must be closed and reopened.
func (c *Container) Poisoned() bool { return c.poisoned }

func (c *Container) writeHeader() error {
	st := c.alloc.State()
	c.header.FreeListHead = st.FreeListHead
	c.header.HighWater = st.HighWater
	c.header.ExtentCount = uint64(c.extentCount)
	encoded := c.header.Encode()
	if err := atomic.WriteFile(filepath.Join(c.path, headerFileName), bytes.NewReader(encoded)); err != nil {
		return newErr(KindIO, "flush", c.path, err)
	}
	return nil
}

// Flush persists the header atomically and msyncs every dirty extent.
// Repeated Flush calls with no intervening mutation write byte-identical
// headers.
func (c *Container) Flush() error {
	if c.poisoned {
		return newErr(KindPoisoned, "flush", c.path, c.poisonErr)
	}
	if err := c.cache.Flush(); err != nil {
		c.poison(err)
		return newErr(KindIO, "flush", c.path, err)
	}
	return c.writeHeader()
}

// Close flushes and releases every resource the container holds. The
// container must not be used afterward.
func (c *Container) Close() error {
	defer unregisterOpen(c.absPath)
	defer func() { _ = c.lock.release() }()
	if c.poisoned {
		_ = c.cache.CloseAll()
		return newErr(KindPoisoned, "close", c.path, c.poisonErr)
	}
	if err := c.Flush(); err != nil {
		_ = c.cache.CloseAll()
		return err
	}
	if err := c.cache.CloseAll(); err != nil {
		return newErr(KindIO, "close", c.path, err)
	}
	return nil
}
