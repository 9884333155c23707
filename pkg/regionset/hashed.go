package regionset

import (
	"context"
	"fmt"
	"iter"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/shynur/ipcator/pkg/metrics"
	"github.com/shynur/ipcator/pkg/pagesize"
	"github.com/shynur/ipcator/pkg/region"
)

// addrKey formats a base address as a concurrent-map key.
func addrKey(addr uintptr) string {
	return fmt.Sprintf("%x", addr)
}

// Hashed is a RegionSet indexed by base address with O(1) last-insert
// tracking, the kind a monotonic buffer's upstream needs. Backed by
// github.com/orcaman/concurrent-map/v2.
type Hashed struct {
	byAddr cmap.ConcurrentMap[string, *region.Region]

	mu   sync.Mutex // guards last
	last *region.Region

	metrics *metrics.Recorder
}

// NewHashed constructs an empty Hashed RegionSet.
func NewHashed(opts ...Option) *Hashed {
	o := buildOpts(opts)
	return &Hashed{byAddr: cmap.New[*region.Region](), metrics: o.metrics}
}

var _ Allocator = (*Hashed)(nil)

// Allocate creates one fresh Creator region of size bytes (page-ceiled),
// inserts it, records it as the most recent insertion, and returns its
// base address.
func (s *Hashed) Allocate(size, align uintptr) (uintptr, error) {
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
		return 0, fmt.Errorf("regionset.Hashed.Allocate: %w", err)
	}

	addr := r.Addr()
	s.byAddr.Set(addrKey(addr), r)

	s.mu.Lock()
	s.last = r
	s.mu.Unlock()

	s.metrics.RegionCreated(ctx, r.Len())
	return addr, nil
}

// Deallocate locates and extracts the entry whose base equals ptr.
func (s *Hashed) Deallocate(ptr, size, align uintptr) error {
	_, span := s.metrics.StartSpan(context.Background(), "Deallocate")
	defer span.End()

	key := addrKey(ptr)
	r, ok := s.byAddr.Get(key)
	if !ok {
		return fmt.Errorf("regionset.Hashed.Deallocate: %w: no region at %#x", region.ErrInvalidArgument, ptr)
	}
	s.byAddr.Remove(key)

	s.mu.Lock()
	if s.last == r {
		s.last = nil
	}
	s.mu.Unlock()

	regionLen := r.Len()
	if err := r.Close(); err != nil {
		return err
	}
	s.metrics.RegionReleased(regionLen)
	return nil
}

// LastInserted returns the most recently allocated region. It returns
// ErrInvalidArgument if the set is empty or if that region has since been
// deallocated; it does not fall back to an earlier region still tracked.
func (s *Hashed) LastInserted() (*region.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, fmt.Errorf("regionset.Hashed.LastInserted: %w: no last-inserted region", region.ErrInvalidArgument)
	}
	return s.last, nil
}

// Iter yields every region currently tracked, in no particular order.
// cmap.Items() already builds a full snapshot map, so a range body that
// calls back into s (e.g. Deallocate) sees a consistent view unaffected by
// concurrent mutation.
func (s *Hashed) Iter() iter.Seq[*region.Region] {
	items := s.byAddr.Items()
	return func(yield func(*region.Region) bool) {
		for _, r := range items {
			if !yield(r) {
				return
			}
		}
	}
}

// Len returns the number of regions currently tracked.
func (s *Hashed) Len() int {
	return s.byAddr.Count()
}

// IsEqual reports whether other is this exact RegionSet instance.
func (s *Hashed) IsEqual(other Allocator) bool {
	o, ok := other.(*Hashed)
	return ok && o == s
}

// Close drains the set, closing every tracked region.
func (s *Hashed) Close() error {
	items := s.byAddr.Items()
	s.byAddr.Clear()
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()

	for _, r := range items {
		if err := r.Close(); err != nil {
			log.Warnf("Hashed.Close: %v", err)
		}
	}
	return nil
}
