// Package pagesize ceils byte counts to the host page-size multiple used by
// every shared-memory region ipcator maps.
package pagesize

import "golang.org/x/sys/unix"

// size is resolved once at process startup and assumed constant thereafter:
// the host page size does not change while the process runs.
var size = uintptr(unix.Getpagesize())

// Size returns the host page size in bytes.
func Size() uintptr {
	return size
}

// Ceil returns the smallest multiple of the host page size that is >= n.
// Ceil(0) == 0.
func Ceil(n uintptr) uintptr {
	if n == 0 {
		return 0
	}
	rem := n % size
	if rem == 0 {
		return n
	}
	return n + (size - rem)
}

// IsAligned reports whether align is a supported alignment for a
// page-aligned mapping, i.e. align <= the host page size.
func IsAligned(align uintptr) bool {
	return align <= size
}
