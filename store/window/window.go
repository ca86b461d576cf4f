// Package window implements the bounded, pinnable LRU cache of resident
// (mmap'd) extents that every container reads and writes through. Extents
// beyond the cache's capacity stay registered (known to exist, on disk) but
// unmapped until something asks for them again.
package window

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/grhack/emstore/internal/extentio"
)

// Opener creates or reopens the extent at the given index. The cache calls
// this at most once per extent between evictions.
type Opener interface {
	OpenExtent(idx int) (*extentio.Extent, error)
}

// Cache is a bounded LRU of mapped extents. It is not safe for concurrent
// use; emstore containers are single-writer, single-threaded, per spec.
type Cache struct {
	mu       sync.Mutex
	opener   Opener
	capacity int

	order    *list.List // front = most recently used
	entries  map[int]*list.Element
	pins     map[int]int
	dirty    map[int]bool
}

type residency struct {
	idx int
	ext *extentio.Extent
}

// New creates a cache that keeps at most capacity extents mapped at once.
func New(opener Opener, capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		opener:   opener,
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[int]*list.Element),
		pins:     make(map[int]int),
		dirty:    make(map[int]bool),
	}
}

// Pin returns the mapped extent at idx, mapping it in (and evicting an
// unpinned LRU victim if the cache is full) if it is not already resident.
// The caller must call Unpin exactly once per successful Pin.
func (c *Cache) Pin(idx int) (*extentio.Extent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[idx]; ok {
		c.order.MoveToFront(el)
		c.pins[idx]++
		return el.Value.(*residency).ext, nil
	}

	if c.order.Len() >= c.capacity {
		if err := c.evictLocked(); err != nil {
			return nil, err
		}
	}

	ext, err := c.opener.OpenExtent(idx)
	if err != nil {
		return nil, err
	}
	el := c.order.PushFront(&residency{idx: idx, ext: ext})
	c.entries[idx] = el
	c.pins[idx] = 1
	return ext, nil
}

// Unpin releases a reference taken by Pin. If the cache went over capacity
// while every resident was pinned, Unpin evicts unpinned LRU residents until
// it is back within capacity. An eviction whose sync fails leaves that extent
// resident and dirty, so the error surfaces on the next Flush or eviction.
func (c *Cache) Unpin(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pins[idx] > 0 {
		c.pins[idx]--
	}
	for c.order.Len() > c.capacity {
		before := c.order.Len()
		if err := c.evictLocked(); err != nil || c.order.Len() == before {
			break
		}
	}
}

// MarkDirty records that idx has unflushed writes, to be msync'd before
// eviction or on an explicit Flush.
func (c *Cache) MarkDirty(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[idx] = true
}

// evictLocked picks the least-recently-used unpinned resident and evicts it.
// If every resident is pinned, the cache degrades gracefully: it leaves the
// window over capacity rather than deadlock, and the caller simply maps one
// extent beyond the configured limit.
func (c *Cache) evictLocked() error {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		r := el.Value.(*residency)
		if c.pins[r.idx] > 0 {
			continue
		}
		if c.dirty[r.idx] {
			if err := r.ext.Sync(); err != nil {
				return fmt.Errorf("window: evict sync extent %d: %w", r.idx, err)
			}
		}
		if err := r.ext.Close(); err != nil {
			return fmt.Errorf("window: evict close extent %d: %w", r.idx, err)
		}
		c.order.Remove(el)
		delete(c.entries, r.idx)
		delete(c.pins, r.idx)
		delete(c.dirty, r.idx)
		return nil
	}
	// Every resident is pinned: do not evict, caller proceeds over capacity.
	return nil
}

// Flush msyncs every dirty resident extent without evicting it.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Front(); el != nil; el = el.Next() {
		r := el.Value.(*residency)
		if !c.dirty[r.idx] {
			continue
		}
		if err := r.ext.Sync(); err != nil {
			return fmt.Errorf("window: flush extent %d: %w", r.idx, err)
		}
		c.dirty[r.idx] = false
	}
	return nil
}

// CloseAll flushes and unmaps every resident extent. The cache is empty and
// reusable afterward.
func (c *Cache) CloseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		r := el.Value.(*residency)
		if c.dirty[r.idx] {
			if err := r.ext.Sync(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := r.ext.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		el = next
	}
	c.order.Init()
	c.entries = make(map[int]*list.Element)
	c.pins = make(map[int]int)
	c.dirty = make(map[int]bool)
	return firstErr
}

// Resident reports how many extents are currently mapped, for diagnostics.
func (c *Cache) Resident() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
