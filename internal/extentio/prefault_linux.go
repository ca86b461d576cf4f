//go:build linux

package extentio

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// PreFaultPages pre-faults every page of data so that a later SIGBUS (caused
// by a truncated or corrupted backing file) is traded for a clean error here
// instead of crashing the process mid-access.
func PreFaultPages(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	err := unix.Madvise(data, unix.MADV_POPULATE_READ)
	if err == nil {
		return nil
	}
	if err != syscall.EINVAL && err != syscall.ENOSYS {
		return fmt.Errorf("extentio: madvise populate: %w", err)
	}
	return manualPreFault(data)
}
