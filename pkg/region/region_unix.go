//go:build unix

package region

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"

	"github.com/shynur/ipcator/internal/logx"
)

const shmRoot = "/dev/shm"

var log = logx.New("region", nil)

// validateName enforces the shm naming convention: a single leading '/'
// and no other slashes, restricted to the portable filename character set,
// with the full path as materialized under shmRoot kept within POSIX's
// 255-byte path limit.
func validateName(name string) error {
	if len(name) == 0 || name[0] != '/' {
		return fmt.Errorf("%w: name must start with '/': %q", ErrInvalidArgument, name)
	}
	if strings.Count(name, "/") != 1 {
		return fmt.Errorf("%w: name must contain no other '/': %q", ErrInvalidArgument, name)
	}
	if len(shmRoot)+len(name) > 255 {
		return fmt.Errorf("%w: materialized path exceeds 255 bytes: %q", ErrInvalidArgument, name)
	}
	for _, c := range name[1:] {
		ok := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '.' || c == '_' || c == '-'
		if !ok {
			return fmt.Errorf("%w: disallowed character %q in name %q", ErrInvalidArgument, c, name)
		}
	}
	return nil
}

func shmPath(name string) string {
	return shmRoot + name
}

func mapErrno(err error) error {
	switch err {
	case unix.EEXIST:
		return ErrAlreadyExists
	case unix.ENOENT:
		return ErrNotFound
	case unix.EACCES, unix.EPERM:
		return ErrPermissionDenied
	case unix.ENOMEM, unix.ENOSPC:
		return ErrOutOfMemory
	default:
		return err
	}
}

// Create creates a brand-new shared-memory region of size bytes and maps
// it writable into this process. Fails with ErrAlreadyExists if name is
// taken, ErrInvalidArgument if size == 0, ErrPermissionDenied, or
// ErrOutOfMemory. A failed Create leaves no side effects: no file is
// created and no mapping is leaked.
func Create(name string, size int) (*Region, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be > 0", ErrInvalidArgument)
	}

	path := shmPath(name)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("region: create %q: %w", name, mapErrno(err))
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("region: ftruncate %q: %w", name, mapErrno(err))
	}

	prot := unix.PROT_READ | unix.PROT_WRITE
	data, err := unix.Mmap(fd, 0, size, prot|unix.PROT_EXEC, unix.MAP_SHARED)
	if err != nil {
		// Exec mapping denied: fall back to non-exec.
		data, err = unix.Mmap(fd, 0, size, prot, unix.MAP_SHARED)
	}
	unix.Close(fd)
	if err != nil {
		unix.Unlink(path)
		return nil, fmt.Errorf("region: mmap %q: %w", name, mapErrno(err))
	}

	return &Region{name: name, mode: Creator, data: data}, nil
}

// Open opens an already-created region by name. writable selects
// AccessorReadWrite vs AccessorReadOnly. Fails with ErrNotFound (fast, no
// wait) or ErrPermissionDenied.
func Open(name string, writable bool) (*Region, error) {
	return open(name, writable)
}

func open(name string, writable bool) (*Region, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	path := shmPath(name)

	flags := unix.O_RDONLY
	prot := unix.PROT_READ
	if writable {
		flags = unix.O_RDWR
		prot |= unix.PROT_WRITE
	}

	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("region: open %q: %w", name, mapErrno(err))
	}
	defer unix.Close(fd)

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return nil, fmt.Errorf("region: fstat %q: %w", name, mapErrno(err))
	}
	size := int(stat.Size)
	if size == 0 {
		return nil, fmt.Errorf("region: open %q: %w", name, ErrNotFound)
	}

	data, err := unix.Mmap(fd, 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("region: mmap %q: %w", name, mapErrno(err))
	}

	mode := AccessorReadOnly
	if writable {
		mode = AccessorReadWrite
	}
	return &Region{name: name, mode: mode, data: data}, nil
}

// OpenWithRetry polls for the creator's file to appear and become
// non-empty, bounded by timeout. Callers that must open a region before
// its creator is guaranteed to have finished Create should use this
// instead of a bare Open.
func OpenWithRetry(ctx context.Context, name string, writable bool, timeout time.Duration) (*Region, error) {
	b := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(20*time.Millisecond),
			uint64(timeout/(20*time.Millisecond))+1,
		),
		ctx,
	)

	deadline := time.Now().Add(timeout)
	var r *Region
	op := func() error {
		var err error
		r, err = open(name, writable)
		if err == nil {
			return nil
		}
		if !isNotFound(err) {
			return backoff.Permanent(err)
		}
		if time.Now().After(deadline) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, b); err != nil {
		log.Debugf("OpenWithRetry(%q): giving up after %s: %v", name, timeout, err)
		return nil, err
	}
	return r, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Close releases the region. A Creator first unlinks the shm object (so
// new accessors can no longer open it by name) then unmaps; other modes
// only unmap. Close on a moved-from/zero Region, or a second Close, is a
// no-op. Kernel errors from munmap/shm_unlink are logged, never returned.
func (r *Region) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		if len(r.data) == 0 {
			return
		}
		if r.mode == Creator {
			if err := unix.Unlink(shmPath(r.name)); err != nil {
				log.Warnf("unlink %q: %v", r.name, err)
			}
		}
		if err := unix.Munmap(r.data); err != nil {
			log.Warnf("munmap %q: %v", r.name, err)
		}
		r.data = nil
	})
	return r.closeErr
}
