// Package extentio maps the fixed-size extent files that back an EMList or
// EMDict container. Each extent is created once at its configured size and
// never grows or shrinks in place; a container grows by adding new extent
// files, not by resizing existing ones.
package extentio

import (
	"fmt"
	"os"
)

// Extent is one mmap'd, fixed-size extent file.
type Extent struct {
	Index int
	Path  string
	Size  int

	f    *os.File
	data []byte
}

// extentFileName renders the conventional "ext-NNNN" name for index idx.
func extentFileName(idx int) string {
	return fmt.Sprintf("ext-%04d", idx)
}

// Create makes a new, zero-filled extent file of exactly size bytes under
// dir and maps it read-write.
func Create(dir string, idx int, size int) (*Extent, error) {
	path := dir + string(os.PathSeparator) + extentFileName(idx)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("extentio: create %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("extentio: size %s: %w", path, err)
	}
	data, err := mapFile(f, size)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return &Extent{Index: idx, Path: path, Size: size, f: f, data: data}, nil
}

// Open maps an existing extent file of the expected size read-write.
func Open(dir string, idx int, size int) (*Extent, error) {
	path := dir + string(os.PathSeparator) + extentFileName(idx)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("extentio: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("extentio: stat %s: %w", path, err)
	}
	if info.Size() != int64(size) {
		_ = f.Close()
		return nil, fmt.Errorf("extentio: %s has size %d, expected %d", path, info.Size(), size)
	}
	data, err := mapFile(f, size)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := PreFaultPages(data); err != nil {
		_ = unmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("extentio: %s: %w", path, err)
	}
	return &Extent{Index: idx, Path: path, Size: size, f: f, data: data}, nil
}

// Bytes returns the extent's mapped contents.
func (e *Extent) Bytes() []byte { return e.data }

// Sync flushes the extent's dirty pages to disk via msync.
func (e *Extent) Sync() error {
	if e.data == nil {
		return nil
	}
	return msync(e.data)
}

// SyncRange flushes only the page-aligned range [off, off+n) covering the
// given byte span, so a caller can avoid syncing an entire extent when only
// a handful of records changed.
func (e *Extent) SyncRange(off, n int) error {
	if e.data == nil || n <= 0 {
		return nil
	}
	const pageSize = 4096
	start := (off / pageSize) * pageSize
	end := off + n
	if end%pageSize != 0 {
		end = ((end / pageSize) + 1) * pageSize
	}
	if start < 0 {
		start = 0
	}
	if end > len(e.data) {
		end = len(e.data)
	}
	if start >= end {
		return nil
	}
	return msync(e.data[start:end])
}

// Close unmaps the extent and closes its file descriptor.
func (e *Extent) Close() error {
	var err error
	if e.data != nil {
		err = unmap(e.data)
		e.data = nil
	}
	if e.f != nil {
		if cerr := e.f.Close(); err == nil {
			err = cerr
		}
		e.f = nil
	}
	return err
}

// Remove closes and deletes the extent file.
func Remove(e *Extent) error {
	path := e.Path
	if err := e.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
