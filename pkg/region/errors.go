package region

import "errors"

// Sentinel errors for this package and its callers. Compare with
// errors.Is; wrapped with call-site context via fmt.Errorf("...: %w", err)
// where useful.
var (
	// ErrAlreadyExists is returned when a Creator's chosen name is already
	// in use in the shm namespace.
	ErrAlreadyExists = errors.New("region: name already exists")
	// ErrNotFound is returned when an Accessor's target does not exist,
	// either immediately (Open) or after OpenWithRetry's bounded wait.
	ErrNotFound = errors.New("region: not found")
	// ErrPermissionDenied is returned when the shm/mmap subsystem refuses
	// the requested access.
	ErrPermissionDenied = errors.New("region: permission denied")
	// ErrOutOfMemory is returned when the kernel refuses to back a mapping.
	ErrOutOfMemory = errors.New("region: out of memory")
	// ErrAlignmentUnsupported is returned when a requested alignment
	// exceeds the host page size.
	ErrAlignmentUnsupported = errors.New("region: alignment exceeds page size")
	// ErrInvalidArgument is returned for a zero-size Creator request, or an
	// address that does not fall within any tracked region.
	ErrInvalidArgument = errors.New("region: invalid argument")
	// ErrOutOfBounds is returned when a reader's requested offset+size
	// exceeds a region's length.
	ErrOutOfBounds = errors.New("region: out of bounds")
	// ErrUnsupportedPlatform is returned on hosts without a POSIX shm
	// implementation.
	ErrUnsupportedPlatform = errors.New("region: unsupported platform")
)
