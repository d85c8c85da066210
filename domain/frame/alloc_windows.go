//go:build windows

package frame

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// allocBacking commits private pages with VirtualAlloc; free releases them.
func allocBacking(size int) ([]byte, func(), error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, fmt.Errorf("frame: VirtualAlloc %d bytes: %w", size, err)
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return b, func() { _ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE) }, nil
}
