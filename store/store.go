package store

import "github.com/grhack/emstore/internal/format"

// CreateList initializes a brand-new EMList container directory at path.
func CreateList(path string, opts Options) (*Container, error) {
	return create(path, format.KindList, opts)
}

// CreateDict initializes a brand-new EMDict container directory at path.
func CreateDict(path string, opts Options) (*Container, error) {
	c, err := create(path, format.KindDict, opts)
	if err != nil {
		return nil, err
	}
	c.SetSlotCount(nextPowerOfTwo(opts.withDefaults().InitialDictSlots))
	return c, nil
}

// Open reopens an existing EMList or EMDict container directory at path,
// restoring its persisted header. Every other setting in opts is ignored
// in favor of what was persisted at creation; only opts.WindowCapacity
// applies, since the mmap window is a runtime cache bound rather than an
// on-disk property. Callers should check Kind() to confirm they opened the
// container type they expected.
func Open(path string, opts Options) (*Container, error) {
	return open(path, opts)
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}
