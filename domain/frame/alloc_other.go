//go:build !unix && !windows

package frame

// allocBacking falls back to heap memory where no page allocator is wired.
func allocBacking(size int) ([]byte, func(), error) {
	return make([]byte, size), func() {}, nil
}
