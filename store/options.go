package store

import "github.com/grhack/emstore/internal/format"

// Options configures a freshly created container. Reopening an existing
// container restores its persisted settings and uses only WindowCapacity.
type Options struct {
	// ExtentSizeLog2 is log2 of the extent file size; 0 selects the default.
	// Values outside [format.MinExtentSizeLog2, format.MaxExtentSizeLog2]
	// (1 MiB-16 MiB) make creation fail with KindInvalidValue.
	ExtentSizeLog2 uint8
	// WindowCapacity bounds how many extents may be mmap'd resident at once.
	WindowCapacity int
	// InitialDictSlots is the starting slot count for a fresh EMDict; ignored for EMList.
	InitialDictSlots uint64
}

// DefaultOptions returns (4 MiB extents, 64-extent window, 1024 initial dict slots).
func DefaultOptions() Options {
	return Options{
		ExtentSizeLog2:   format.DefaultExtentSizeLog2,
		WindowCapacity:   64,
		InitialDictSlots: 1024,
	}
}

func (o Options) withDefaults() Options {
	if o.ExtentSizeLog2 == 0 {
		o.ExtentSizeLog2 = format.DefaultExtentSizeLog2
	}
	if o.WindowCapacity <= 0 {
		o.WindowCapacity = 64
	}
	if o.InitialDictSlots == 0 {
		o.InitialDictSlots = 1024
	}
	return o
}
