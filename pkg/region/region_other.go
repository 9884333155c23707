//go:build !unix

package region

import (
	"context"
	"time"
)

// Create is unimplemented on non-POSIX hosts: this library targets
// POSIX shm only.
func Create(name string, size int) (*Region, error) {
	return nil, ErrUnsupportedPlatform
}

// Open is unimplemented on non-POSIX hosts.
func Open(name string, writable bool) (*Region, error) {
	return nil, ErrUnsupportedPlatform
}

// OpenWithRetry is unimplemented on non-POSIX hosts.
func OpenWithRetry(ctx context.Context, name string, writable bool, timeout time.Duration) (*Region, error) {
	return nil, ErrUnsupportedPlatform
}

// Close is a no-op on non-POSIX hosts (no Region can ever be constructed).
func (r *Region) Close() error {
	return nil
}
