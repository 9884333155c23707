// Package regionset implements the coarse shared-memory allocator: a set of
// Creator regions supporting reverse address lookup (Ordered) or
// last-inserted tracking (Hashed).
package regionset

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shynur/ipcator/internal/logx"
	"github.com/shynur/ipcator/pkg/metrics"
	"github.com/shynur/ipcator/pkg/namegen"
	"github.com/shynur/ipcator/pkg/pagesize"
	"github.com/shynur/ipcator/pkg/region"
)

var log = logx.New("regionset", nil)

// Allocator is the shared contract Ordered and Hashed both implement:
// Allocate returns a base address for a fresh backing region, Deallocate
// releases one previously returned.
type Allocator interface {
	Allocate(size, align uintptr) (uintptr, error)
	Deallocate(ptr, size, align uintptr) error
	// IsEqual compares identity of the underlying collection: two distinct
	// RegionSets are never equal even with identical contents.
	IsEqual(other Allocator) bool
}

// maxNameCollisionRetries bounds the retry loop on the rare shm-name
// collision at creation time, favoring a bounded retry over surfacing the
// collision to the caller.
const maxNameCollisionRetries = 5

// nameGenerator is overridable in tests.
var nameGenerator = namegen.New

func isAlreadyExists(err error) bool {
	return errors.Is(err, region.ErrAlreadyExists)
}

func createWithRetry(size int) (*region.Region, error) {
	var r *region.Region
	attempt := 0
	op := func() error {
		attempt++
		name := nameGenerator()
		created, err := region.Create(name, size)
		if err != nil {
			if isAlreadyExists(err) && attempt < maxNameCollisionRetries {
				log.Warnf("name collision on %q, retrying (%d/%d)", name, attempt, maxNameCollisionRetries)
				return err
			}
			return backoff.Permanent(err)
		}
		r = created
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), maxNameCollisionRetries)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return r, nil
}

func checkAlign(align uintptr) error {
	if !pagesize.IsAligned(align) {
		return fmt.Errorf("regionset: %w: align=%d > pagesize=%d", region.ErrAlignmentUnsupported, align, pagesize.Size())
	}
	return nil
}

func checkSize(size uintptr) error {
	if size == 0 {
		return fmt.Errorf("regionset: %w: size must be > 0", region.ErrInvalidArgument)
	}
	return nil
}

// Option configures an Ordered or Hashed RegionSet.
type Option func(*commonOpts)

type commonOpts struct {
	metrics *metrics.Recorder
}

// WithMetrics attaches a metrics.Recorder that Allocate/Deallocate report
// region-creation/release events to. Passing nil (the default) makes
// metrics reporting a no-op.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *commonOpts) { o.metrics = m }
}

func buildOpts(opts []Option) commonOpts {
	var o commonOpts
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
