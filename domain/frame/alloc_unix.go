//go:build unix

package frame

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocBacking maps anonymous memory outside the Go heap. The returned free
// function unmaps it; the collector never sees these pages.
func allocBacking(size int) ([]byte, func(), error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("frame: mmap %d bytes: %w", size, err)
	}
	return b, func() { _ = unix.Munmap(b) }, nil
}
