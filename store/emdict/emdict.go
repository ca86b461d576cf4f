// Package emdict implements EMDict: a disk-backed, open-addressed hash
// table with put/get/delete/iterate semantics over a container's
// slab-allocated records. A dict's root offset points at a flat array of
// 16-byte slots (persisted hash plus entry offset); each occupied slot
// points at an entry record holding the codec-encoded key and value back to
// back.
package emdict

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/grhack/emstore/internal/format"
	"github.com/grhack/emstore/store"
	"github.com/grhack/emstore/store/codec"
)

const (
	slotSize     = 16 // u64 hash, u64 entry offset
	entryHdrSize = 8  // u32 key_len, u32 value_len
)

// Dict is an open EMDict container.
type Dict struct {
	c          *store.Container
	slotCount  uint64
	occupied   uint64
	tombstones uint64
	root       uint64 // offset of the slot array record
	seed       uint64
}

// Create initializes a brand-new, empty EMDict directory at path.
func Create(path string, opts store.Options) (*Dict, error) {
	c, err := store.CreateDict(path, opts)
	if err != nil {
		return nil, err
	}
	d := &Dict{c: c, slotCount: c.SlotCount()}
	c.BeginOp()
	defer c.EndOp()

	seed, err := randomSeed()
	if err != nil {
		_ = c.Close()
		return nil, store.WrapErr(store.KindIO, "create", c, err)
	}
	d.seed = seed
	c.SetHashSeed(seed)

	if err := d.allocateSlots(d.slotCount); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.SetRoot(d.root)
	c.SetLengthOrOccupied(0)
	c.SetTombstones(0)
	if err := c.Flush(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return d, nil
}

// Open reopens an existing EMDict directory at path. opts.WindowCapacity
// bounds the reopened container's mmap cache; every other field is
// ignored in favor of the persisted header (spec.md §6).
func Open(path string, opts store.Options) (*Dict, error) {
	c, err := store.Open(path, opts)
	if err != nil {
		return nil, err
	}
	if c.Kind() != format.KindDict {
		_ = c.Close()
		return nil, fmt.Errorf("emdict: %s is not an EMDict container", path)
	}
	d := &Dict{
		c:          c,
		slotCount:  c.SlotCount(),
		occupied:   c.LengthOrOccupied(),
		tombstones: c.Tombstones(),
		root:       c.Root(),
		seed:       c.HashSeed(),
	}
	if d.root == format.NullOffset {
		_ = c.Close()
		return nil, store.WrapErr(store.KindCorruption, "open", c, fmt.Errorf("emdict: missing table root"))
	}
	return d, nil
}

func randomSeed() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("emdict: read random seed: %w", err)
	}
	return format.ReadU64(b[:], 0), nil
}

// hashKey returns the persisted-seed 64-bit hash of a codec-encoded key
// blob, via xxhash64 seeded by folding the container's random seed into the
// digest ahead of the key bytes.
func (d *Dict) hashKey(keyBlob []byte) uint64 {
	var seedBuf [8]byte
	format.PutU64(seedBuf[:], 0, d.seed)
	h := xxhash.New()
	_, _ = h.Write(seedBuf[:])
	_, _ = h.Write(keyBlob)
	return h.Sum64()
}

// allocateSlots carves a fresh, zero-filled slot array of the given
// capacity and records its offset as the (not-yet-installed) root.
func (d *Dict) allocateSlots(capacity uint64) error {
	off, buf, err := d.c.Allocator().Allocate(int(capacity) * slotSize)
	if err != nil {
		return store.WrapErr(store.KindOutOfSpace, "emdict", d.c, err)
	}
	rh, err := format.DecodeRecordHeader(buf)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "emdict", d.c, err)
	}
	payload, err := format.Payload(buf, rh)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "emdict", d.c, err)
	}
	for i := range payload {
		payload[i] = 0
	}
	d.root = off
	d.slotCount = capacity
	return nil
}

func (d *Dict) slotOffset(i uint64) uint64 {
	return d.root + format.RecordHeaderSize + i*slotSize
}

func (d *Dict) readSlot(i uint64) (hash uint64, entryOff uint64, err error) {
	b, err := d.c.Slice(d.slotOffset(i), slotSize)
	if err != nil {
		return 0, 0, err
	}
	return format.ReadU64(b, 0), format.ReadU64(b, 8), nil
}

func (d *Dict) writeSlot(i uint64, hash uint64, entryOff uint64) error {
	b, err := d.c.Slice(d.slotOffset(i), slotSize)
	if err != nil {
		return err
	}
	format.PutU64(b, 0, hash)
	format.PutU64(b, 8, entryOff)
	return nil
}

// entry reads the key/value blobs stored at an entry record's offset.
func (d *Dict) entry(off uint64) (keyBlob, valBlob []byte, err error) {
	hdrBuf, err := d.c.Slice(off, format.RecordHeaderSize)
	if err != nil {
		return nil, nil, err
	}
	rh, err := format.DecodeRecordHeader(hdrBuf)
	if err != nil {
		return nil, nil, store.WrapErr(store.KindCorruption, "emdict", d.c, err)
	}
	full, err := d.c.Slice(off, int(rh.Size))
	if err != nil {
		return nil, nil, err
	}
	payload, err := format.Payload(full, rh)
	if err != nil {
		return nil, nil, store.WrapErr(store.KindCorruption, "emdict", d.c, err)
	}
	if len(payload) < entryHdrSize {
		return nil, nil, store.WrapErr(store.KindCorruption, "emdict", d.c,
			fmt.Errorf("emdict: entry at %d shorter than its header", off))
	}
	keyLen := format.ReadU32(payload, 0)
	valLen := format.ReadU32(payload, 4)
	rest := payload[entryHdrSize:]
	if uint64(keyLen)+uint64(valLen) > uint64(len(rest)) {
		return nil, nil, store.WrapErr(store.KindCorruption, "emdict", d.c,
			fmt.Errorf("emdict: entry at %d declares lengths beyond its payload", off))
	}
	return rest[:keyLen], rest[keyLen : keyLen+valLen], nil
}

// storeEntry allocates a new entry record holding keyBlob and valBlob back to back.
func (d *Dict) storeEntry(keyBlob, valBlob []byte) (uint64, error) {
	off, buf, err := d.c.Allocator().Allocate(entryHdrSize + len(keyBlob) + len(valBlob))
	if err != nil {
		return 0, store.WrapErr(store.KindOutOfSpace, "emdict", d.c, err)
	}
	rh, err := format.DecodeRecordHeader(buf)
	if err != nil {
		return 0, store.WrapErr(store.KindCorruption, "emdict", d.c, err)
	}
	payload, err := format.Payload(buf, rh)
	if err != nil {
		return 0, store.WrapErr(store.KindCorruption, "emdict", d.c, err)
	}
	format.PutU32(payload, 0, uint32(len(keyBlob)))
	format.PutU32(payload, 4, uint32(len(valBlob)))
	copy(payload[entryHdrSize:], keyBlob)
	copy(payload[entryHdrSize+len(keyBlob):], valBlob)
	return off, nil
}

func (d *Dict) freeEntry(off uint64) error {
	hdrBuf, err := d.c.Slice(off, format.RecordHeaderSize)
	if err != nil {
		return err
	}
	rh, err := format.DecodeRecordHeader(hdrBuf)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "emdict", d.c, err)
	}
	return d.c.Allocator().Free(off, rh.Size)
}

// probeResult describes where Put/Get/Delete landed after probing.
type probeResult struct {
	found        bool   // an occupied slot with a byte-equal key was found
	slot         uint64 // index of the match, or of the first empty/tombstone slot
	firstTomb    uint64 // index of the first tombstone seen, if any
	haveTomb     bool
	hash         uint64
	existingOff  uint64 // entry offset at slot, when found
}

// probe walks the linear-probe chain for keyBlob's hash, stopping at the
// first empty slot (not found) or the first hash-and-byte match (found).
// Tombstones are skipped but the first one seen is remembered so insertion
// can reuse it.
func (d *Dict) probe(keyBlob []byte) (probeResult, error) {
	h := d.hashKey(keyBlob)
	idx := h & (d.slotCount - 1)
	var res probeResult
	res.hash = h

	for i := uint64(0); i < d.slotCount; i++ {
		slotHash, entryOff, err := d.readSlot(idx)
		if err != nil {
			return probeResult{}, err
		}
		switch entryOff {
		case format.NullOffset:
			res.slot = idx
			if res.haveTomb {
				res.slot = res.firstTomb
			}
			return res, nil
		case format.TombstoneOffset:
			if !res.haveTomb {
				res.haveTomb = true
				res.firstTomb = idx
			}
		default:
			if slotHash == h {
				kb, _, err := d.entry(entryOff)
				if err != nil {
					return probeResult{}, err
				}
				if bytes.Equal(kb, keyBlob) {
					res.found = true
					res.slot = idx
					res.existingOff = entryOff
					return res, nil
				}
			}
		}
		idx = (idx + 1) & (d.slotCount - 1)
	}
	return probeResult{}, store.WrapErr(store.KindCorruption, "emdict", d.c,
		fmt.Errorf("emdict: probe exhausted all %d slots without an empty slot", d.slotCount))
}

func (d *Dict) persistCounts() {
	d.c.SetLengthOrOccupied(d.occupied)
	d.c.SetTombstones(d.tombstones)
	d.c.SetSlotCount(d.slotCount)
	d.c.SetRoot(d.root)
}

// Put inserts or updates the value stored at k.
func (d *Dict) Put(k, v any) error {
	d.c.BeginOp()
	defer d.c.EndOp()

	keyBlob, err := codec.Encode(k)
	if err != nil {
		return store.WrapErr(store.KindInvalidValue, "emdict", d.c, err)
	}
	valBlob, err := codec.Encode(v)
	if err != nil {
		return store.WrapErr(store.KindInvalidValue, "emdict", d.c, err)
	}

	res, err := d.probe(keyBlob)
	if err != nil {
		return err
	}

	newOff, err := d.storeEntry(keyBlob, valBlob)
	if err != nil {
		return err
	}

	if res.found {
		if err := d.writeSlot(res.slot, res.hash, newOff); err != nil {
			return err
		}
		if err := d.freeEntry(res.existingOff); err != nil {
			return err
		}
	} else {
		wasTombstone := res.haveTomb && res.slot == res.firstTomb
		if err := d.writeSlot(res.slot, res.hash, newOff); err != nil {
			return err
		}
		d.occupied++
		if wasTombstone {
			d.tombstones--
		}
	}
	d.persistCounts()

	if err := d.maybeRehash(); err != nil {
		return err
	}
	return d.c.Flush()
}

// Get decodes and returns the value stored at k, or a KeyMissing error.
func (d *Dict) Get(k any) (any, error) {
	d.c.BeginOp()
	defer d.c.EndOp()

	keyBlob, err := codec.Encode(k)
	if err != nil {
		return nil, store.WrapErr(store.KindInvalidValue, "emdict", d.c, err)
	}
	res, err := d.probe(keyBlob)
	if err != nil {
		return nil, err
	}
	if !res.found {
		return nil, store.WrapErr(store.KindKeyMissing, "get", d.c, fmt.Errorf("emdict: key missing"))
	}
	_, valBlob, err := d.entry(res.existingOff)
	if err != nil {
		return nil, err
	}
	v, _, err := codec.Decode(valBlob)
	if err != nil {
		return nil, store.WrapErr(store.KindCorruption, "emdict", d.c, err)
	}
	return v, nil
}

// Contains reports whether k is present, without decoding its value.
func (d *Dict) Contains(k any) (bool, error) {
	d.c.BeginOp()
	defer d.c.EndOp()

	keyBlob, err := codec.Encode(k)
	if err != nil {
		return false, store.WrapErr(store.KindInvalidValue, "emdict", d.c, err)
	}
	res, err := d.probe(keyBlob)
	if err != nil {
		return false, err
	}
	return res.found, nil
}

// Delete removes k, or raises KeyMissing if it is absent.
func (d *Dict) Delete(k any) error {
	d.c.BeginOp()
	defer d.c.EndOp()

	keyBlob, err := codec.Encode(k)
	if err != nil {
		return store.WrapErr(store.KindInvalidValue, "emdict", d.c, err)
	}
	res, err := d.probe(keyBlob)
	if err != nil {
		return err
	}
	if !res.found {
		return store.WrapErr(store.KindKeyMissing, "delete", d.c, fmt.Errorf("emdict: key missing"))
	}
	if err := d.freeEntry(res.existingOff); err != nil {
		return err
	}
	if err := d.writeSlot(res.slot, res.hash, format.TombstoneOffset); err != nil {
		return err
	}
	d.occupied--
	d.tombstones++
	d.persistCounts()

	if err := d.maybeRehash(); err != nil {
		return err
	}
	return d.c.Flush()
}

// WithValue decodes the value at k, passes it to fn, and if fn returns a
// non-nil replacement, re-encodes and stores it at k. The escape hatch for
// host-language in-place mutation described in spec.md's design notes.
// Values are decoded copies: mutating one obtained from Get changes nothing
// on disk, and only the value fn returns is written back.
func (d *Dict) WithValue(k any, fn func(v any) (any, error)) error {
	cur, err := d.Get(k)
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
	return d.Put(k, next)
}

// Len returns the number of live keys.
func (d *Dict) Len() uint64 { return d.occupied }

// maybeRehash rebuilds the table once occupancy plus tombstones reaches the
// 0.75 load-factor threshold: at double the size, or at the same size (which
// only clears tombstones) when live entries fill at most a quarter of the slots.
func (d *Dict) maybeRehash() error {
	if (d.occupied+d.tombstones)*4 < d.slotCount*3 {
		return nil
	}
	newN := d.slotCount * 2
	if d.occupied*4 <= d.slotCount {
		newN = d.slotCount
	}
	return d.rehash(newN)
}

// rehash allocates a slot array of size newN, re-inserts every live entry
// by its already-persisted hash (no key rehashing needed), and frees the
// old array.
func (d *Dict) rehash(newN uint64) error {
	oldRoot := d.root
	oldN := d.slotCount

	if err := d.allocateSlots(newN); err != nil {
		d.root = oldRoot
		d.slotCount = oldN
		return err
	}
	newRoot := d.root

	for i := uint64(0); i < oldN; i++ {
		slotHash, entryOff, err := d.readSlotAt(oldRoot, oldN, i)
		if err != nil {
			return err
		}
		if entryOff == format.NullOffset || entryOff == format.TombstoneOffset {
			continue
		}
		idx := slotHash & (newN - 1)
		for {
			_, eo, err := d.readSlotAt(newRoot, newN, idx)
			if err != nil {
				return err
			}
			if eo == format.NullOffset {
				if err := d.writeSlotAt(newRoot, idx, slotHash, entryOff); err != nil {
					return err
				}
				break
			}
			idx = (idx + 1) & (newN - 1)
		}
	}

	oldHdrBuf, err := d.c.Slice(oldRoot, format.RecordHeaderSize)
	if err != nil {
		return err
	}
	oldHdr, err := format.DecodeRecordHeader(oldHdrBuf)
	if err != nil {
		return store.WrapErr(store.KindCorruption, "emdict", d.c, err)
	}

	d.tombstones = 0
	d.persistCounts()
	return d.c.Allocator().Free(oldRoot, oldHdr.Size)
}

func (d *Dict) readSlotAt(root uint64, n uint64, i uint64) (hash uint64, entryOff uint64, err error) {
	b, err := d.c.Slice(root+format.RecordHeaderSize+i*slotSize, slotSize)
	if err != nil {
		return 0, 0, err
	}
	return format.ReadU64(b, 0), format.ReadU64(b, 8), nil
}

func (d *Dict) writeSlotAt(root uint64, i uint64, hash uint64, entryOff uint64) error {
	b, err := d.c.Slice(root+format.RecordHeaderSize+i*slotSize, slotSize)
	if err != nil {
		return err
	}
	format.PutU64(b, 0, hash)
	format.PutU64(b, 8, entryOff)
	return nil
}

// IterKeys calls yield for every live key in slot order 0..N-1. Restartable
// if the dict is untouched between calls; best-effort under concurrent
// mutation, matching EMList.Iter.
func (d *Dict) IterKeys(yield func(k any) bool) error {
	return d.iterate(func(keyBlob, _ []byte) (any, any, bool, error) {
		k, _, err := codec.Decode(keyBlob)
		return k, nil, false, err
	}, func(k, _ any) bool { return yield(k) })
}

// IterValues calls yield for every live value in slot order 0..N-1.
func (d *Dict) IterValues(yield func(v any) bool) error {
	return d.iterate(func(_, valBlob []byte) (any, any, bool, error) {
		v, _, err := codec.Decode(valBlob)
		return nil, v, false, err
	}, func(_, v any) bool { return yield(v) })
}

// IterItems calls yield for every live (key, value) pair in slot order 0..N-1.
func (d *Dict) IterItems(yield func(k, v any) bool) error {
	return d.iterate(func(keyBlob, valBlob []byte) (any, any, bool, error) {
		k, _, err := codec.Decode(keyBlob)
		if err != nil {
			return nil, nil, false, err
		}
		v, _, err := codec.Decode(valBlob)
		return k, v, false, err
	}, yield)
}

func (d *Dict) iterate(decode func(keyBlob, valBlob []byte) (any, any, bool, error), yield func(k, v any) bool) error {
	d.c.BeginOp()
	defer d.c.EndOp()

	for i := uint64(0); i < d.slotCount; i++ {
		_, entryOff, err := d.readSlot(i)
		if err != nil {
			return err
		}
		if entryOff == format.NullOffset || entryOff == format.TombstoneOffset {
			continue
		}
		keyBlob, valBlob, err := d.entry(entryOff)
		if err != nil {
			return err
		}
		k, v, _, err := decode(keyBlob, valBlob)
		if err != nil {
			return store.WrapErr(store.KindCorruption, "emdict", d.c, err)
		}
		if !yield(k, v) {
			return nil
		}
	}
	return nil
}

// Container returns the underlying container, for diagnostics (cmd/emstorectl).
func (d *Dict) Container() *store.Container { return d.c }

// Flush persists the table, every entry, and every dirty extent.
func (d *Dict) Flush() error { return d.c.Flush() }

// Close flushes and releases the underlying container.
func (d *Dict) Close() error { return d.c.Close() }
