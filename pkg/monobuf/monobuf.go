// Package monobuf implements a monotonic bump allocator layered on top of a
// regionset.Hashed upstream: it bumps a cursor through the current region
// and fetches a fresh, larger region from upstream once the request no
// longer fits, never freeing individual allocations.
package monobuf

import (
	"context"
	"fmt"
	"sync"

	"github.com/shynur/ipcator/internal/logx"
	"github.com/shynur/ipcator/pkg/metrics"
	"github.com/shynur/ipcator/pkg/pagesize"
	"github.com/shynur/ipcator/pkg/region"
	"github.com/shynur/ipcator/pkg/regionset"
)

var log = logx.New("monobuf", nil)

// growthFactor is the geometric growth multiplier applied to the next
// chunk size each time the buffer must fetch a new region from upstream.
// The exact constant is an implementation detail, not part of the
// observable contract, beyond growing strictly and at least doubling.
const growthFactor = 2

// Buffer is a growing sequence of Creator regions bump-allocated through.
type Buffer struct {
	mu sync.Mutex

	upstream *regionset.Hashed

	initialSize uintptr
	nextChunk   uintptr

	current *region.Region
	cursor  uintptr // offset within current, not an absolute address

	metrics *metrics.Recorder
}

// Option configures a Buffer.
type Option func(*options)

type options struct {
	metrics *metrics.Recorder
}

// WithMetrics attaches a metrics.Recorder for Allocate spans and the
// upstream's region-creation events.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithInitialSize constructs an empty Buffer whose first chunk request will
// be at least size bytes (page-ceiled). A zero size is replaced with one
// page.
func WithInitialSize(size uintptr, opts ...Option) *Buffer {
	if size == 0 {
		size = pagesize.Size()
	}
	ceiled := pagesize.Ceil(size)

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &Buffer{
		upstream:    regionset.NewHashed(regionset.WithMetrics(o.metrics)),
		initialSize: ceiled,
		nextChunk:   ceiled,
		metrics:     o.metrics,
	}
}

// Allocate returns an address for size bytes aligned to align, bumping the
// cursor within the current region or fetching a new one from upstream
// (sized to max(size_ceiled, next_chunk), after which next_chunk grows by
// growthFactor) when it doesn't fit. align must be <= the host page size,
// since every region is naturally page-aligned and nothing here can
// satisfy a coarser alignment than that.
func (b *Buffer) Allocate(size, align uintptr) (uintptr, error) {
	if size == 0 {
		return 0, fmt.Errorf("monobuf: %w: size must be > 0", region.ErrInvalidArgument)
	}
	if align == 0 {
		align = 1
	}
	if !pagesize.IsAligned(align) {
		return 0, fmt.Errorf("monobuf: %w: align=%d > pagesize=%d", region.ErrAlignmentUnsupported, align, pagesize.Size())
	}

	_, span := b.metrics.StartSpan(context.Background(), "Allocate")
	defer span.End()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil {
		if addr, ok := b.tryBump(size, align); ok {
			return addr, nil
		}
	}

	need := size
	if ceiled := pagesize.Ceil(size); ceiled > need {
		need = ceiled
	}
	if b.nextChunk > need {
		need = b.nextChunk
	}

	if _, err := b.upstream.Allocate(need, 1); err != nil {
		return 0, fmt.Errorf("monobuf: %w", err)
	}
	r, err := b.upstream.LastInserted()
	if err != nil {
		return 0, fmt.Errorf("monobuf: %w", err)
	}

	b.current = r
	b.cursor = 0
	b.nextChunk *= growthFactor

	addr, ok := b.tryBump(size, align)
	if !ok {
		// Cannot happen: the region was sized to fit this exact request.
		return 0, fmt.Errorf("monobuf: %w: freshly allocated region too small", region.ErrOutOfMemory)
	}
	return addr, nil
}

// tryBump attempts to satisfy size bytes aligned to align from the current
// region without fetching a new one. Must be called with b.mu held.
func (b *Buffer) tryBump(size, align uintptr) (uintptr, bool) {
	base := b.current.Addr()
	aligned := alignUp(base+b.cursor, align)
	offset := aligned - base
	if offset+size > uintptr(b.current.Len()) {
		return 0, false
	}
	b.cursor = offset + size
	return aligned, true
}

func alignUp(addr, align uintptr) uintptr {
	if align <= 1 {
		return addr
	}
	return (addr + align - 1) &^ (align - 1)
}

// Deallocate is a no-op: a monotonic buffer never frees individual
// allocations, only the whole set via Release.
func (b *Buffer) Deallocate(ptr, size, align uintptr) error {
	return nil
}

// Release discards all regions and resets the next-chunk size to the
// construction-time initial size.
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.upstream.Close(); err != nil {
		log.Warnf("Release: %v", err)
	}
	b.upstream = regionset.NewHashed(regionset.WithMetrics(b.metrics))
	b.current = nil
	b.cursor = 0
	b.nextChunk = b.initialSize
}

// Upstream returns the RegionSet this Buffer allocates its chunks from.
func (b *Buffer) Upstream() *regionset.Hashed {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.upstream
}
