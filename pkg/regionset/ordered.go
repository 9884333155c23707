package regionset

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/shynur/ipcator/pkg/metrics"
	"github.com/shynur/ipcator/pkg/pagesize"
	"github.com/shynur/ipcator/pkg/region"
)

// Ordered is a RegionSet indexed by base address, supporting O(log n)
// reverse address lookup (FindArena), realized with a sorted slice +
// binary search.
type Ordered struct {
	mu      sync.RWMutex
	entries []*region.Region // sorted by Addr()
	metrics *metrics.Recorder
}

// NewOrdered constructs an empty Ordered RegionSet.
func NewOrdered(opts ...Option) *Ordered {
	o := buildOpts(opts)
	return &Ordered{metrics: o.metrics}
}

var _ Allocator = (*Ordered)(nil)

// Allocate creates one fresh Creator region of size bytes (page-ceiled) and
// inserts it into the set, returning its base address. align must be <=
// the host page size (every region is naturally page-aligned).
func (s *Ordered) Allocate(size, align uintptr) (uintptr, error) {
	if err := checkSize(size); err != nil {
		return 0, err
	}
	if err := checkAlign(align); err != nil {
		return 0, err
	}

	ctx, span := s.metrics.StartSpan(context.Background(), "Allocate")
	defer span.End()

	ceiled := int(pagesize.Ceil(size))
	r, err := createWithRetry(ceiled)
	if err != nil {
		return 0, fmt.Errorf("regionset.Ordered.Allocate: %w", err)
	}

	s.mu.Lock()
	addr := r.Addr()
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Addr() >= addr })
	s.entries = append(s.entries, nil)
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = r
	s.mu.Unlock()

	s.metrics.RegionCreated(ctx, r.Len())
	return addr, nil
}

// Deallocate locates and extracts the entry whose base equals ptr, then
// closes it (unlinking and unmapping).
func (s *Ordered) Deallocate(ptr, size, align uintptr) error {
	_, span := s.metrics.StartSpan(context.Background(), "Deallocate")
	defer span.End()

	s.mu.Lock()
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Addr() >= ptr })
	if i >= len(s.entries) || s.entries[i].Addr() != ptr {
		s.mu.Unlock()
		return fmt.Errorf("regionset.Ordered.Deallocate: %w: no region at %#x", region.ErrInvalidArgument, ptr)
	}
	r := s.entries[i]
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.mu.Unlock()

	regionLen := r.Len()
	if err := r.Close(); err != nil {
		return err
	}
	s.metrics.RegionReleased(regionLen)
	return nil
}

// FindArena returns the region whose byte range contains obj, or
// ErrInvalidArgument if obj is not within any tracked region.
func (s *Ordered) FindArena(obj uintptr) (*region.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Addr() > obj }) - 1
	if i < 0 || i >= len(s.entries) || !s.entries[i].Contains(obj) {
		return nil, fmt.Errorf("regionset.Ordered.FindArena: %w: %#x not in any region", region.ErrInvalidArgument, obj)
	}
	return s.entries[i], nil
}

// Iter yields every region currently tracked, in address order. The set is
// snapshotted under RLock before yielding starts, so a range body that
// calls back into s (e.g. Deallocate) cannot deadlock against Iter's own
// lock, though it may observe a region this particular Iter call already
// snapshotted after that region has since been deallocated.
func (s *Ordered) Iter() iter.Seq[*region.Region] {
	s.mu.RLock()
	snapshot := make([]*region.Region, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.RUnlock()

	return func(yield func(*region.Region) bool) {
		for _, r := range snapshot {
			if !yield(r) {
				return
			}
		}
	}
}

// Len returns the number of regions currently tracked.
func (s *Ordered) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IsEqual reports whether other is this exact RegionSet instance.
func (s *Ordered) IsEqual(other Allocator) bool {
	o, ok := other.(*Ordered)
	return ok && o == s
}

// Close drains the set, closing every tracked region.
func (s *Ordered) Close() error {
	s.mu.Lock()
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	for _, r := range entries {
		if err := r.Close(); err != nil {
			log.Warnf("Ordered.Close: %v", err)
		}
	}
	return nil
}
