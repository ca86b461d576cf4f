//go:build unix && !linux

package extentio

// PreFaultPages touches every page of data so that a later SIGBUS from a
// truncated or corrupted backing file surfaces here as an error instead of
// crashing the process. Platforms without MADV_POPULATE_READ fall back
// straight to the manual touch-through.
func PreFaultPages(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return manualPreFault(data)
}
