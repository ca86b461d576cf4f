//go:build !unix

package extentio

import (
	"fmt"
	"os"
)

func mapFile(f *os.File, size int) ([]byte, error) {
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil && err.Error() != "EOF" {
		return nil, fmt.Errorf("extentio: read fallback buffer: %w", err)
	}
	return data, nil
}

func unmap(data []byte) error { return nil }

func msync(data []byte) error { return nil }
