//go:build unix

package extentio

import (
	"fmt"
	"runtime/debug"
)

// manualPreFault reads one byte per page to force every page to be resident,
// converting a SIGBUS from an inaccessible page into a recoverable panic.
func manualPreFault(data []byte) (retErr error) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("extentio: inaccessible page: %v", r)
		}
	}()

	const pageSize = 4096
	var sink byte
	for i := 0; i < len(data); i += pageSize {
		sink ^= data[i]
	}
	if len(data) > 0 {
		sink ^= data[len(data)-1]
	}
	_ = sink
	return nil
}
