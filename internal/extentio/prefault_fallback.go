//go:build !unix

package extentio

// PreFaultPages is a no-op on platforms without mmap; the fallback mapper
// already reads the whole extent into a plain Go slice.
func PreFaultPages(data []byte) error { return nil }
