// Package readercache implements the accessor-side mapping cache: opening
// the same shared-memory region twice within one process is coalesced into
// a single mmap, refcounted by outstanding Borrows.
//
// Backed by github.com/orcaman/concurrent-map/v2 (already used the same way
// by pkg/regionset.Hashed) plus golang.org/x/sync/singleflight to coalesce
// concurrent first-opens of the same name.
package readercache

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/sync/singleflight"

	"github.com/shynur/ipcator/internal/logx"
	"github.com/shynur/ipcator/pkg/metrics"
	"github.com/shynur/ipcator/pkg/region"
)

var log = logx.New("readercache", nil)

// entry pairs a mapped Region with the number of outstanding Borrows.
type entry struct {
	region  *region.Region
	borrows atomic.Int32
}

// Cache maps region names to shared, refcounted mappings.
type Cache struct {
	byName cmap.ConcurrentMap[string, *entry]
	open   singleflight.Group
	writer bool // whether Select opens accessors read-write

	metrics *metrics.Recorder
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	writable bool
	metrics  *metrics.Recorder
}

// WithWritable makes Select open regions read-write instead of read-only.
func WithWritable() Option {
	return func(o *options) { o.writable = true }
}

// WithMetrics attaches a metrics.Recorder that traces each Read with a span.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *options) { o.metrics = m }
}

// New constructs an empty Cache.
func New(opts ...Option) *Cache {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache{
		byName:  cmap.New[*entry](),
		writer:  o.writable,
		metrics: o.metrics,
	}
}

// Select returns the cached mapping for name, opening it (and caching the
// result) on first use. Concurrent Selects of a not-yet-cached name are
// coalesced by singleflight into one region.Open call. Select is a raw,
// unrefcounted peek: it does not pin the entry against GC. Callers that
// need the mapping to outlive a GC pass should use Read instead, which
// returns a releasable Borrow.
func (c *Cache) Select(name string) (*region.Region, error) {
	e, err := c.selectEntry(name)
	if err != nil {
		return nil, err
	}
	return e.region, nil
}

func (c *Cache) selectEntry(name string) (*entry, error) {
	if e, ok := c.byName.Get(name); ok {
		return e, nil
	}

	v, err, _ := c.open.Do(name, func() (any, error) {
		if e, ok := c.byName.Get(name); ok {
			return e, nil
		}
		r, err := region.Open(name, c.writer)
		if err != nil {
			return nil, fmt.Errorf("readercache.Select(%q): %w", name, err)
		}
		e := &entry{region: r}
		c.byName.Set(name, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

// Borrow is a live handle on a value of type T that lives at offset bytes
// into a cached region. Its Release must be called exactly once.
type Borrow[T any] struct {
	cache  *Cache
	name   string
	value  *T
	region *region.Region
}

// Read maps name (opening/coalescing via Select) and returns a Borrow onto
// the T living at offset within it. Unlike a bare Select, Read pins the
// entry against GC until the returned Borrow is Released.
func Read[T any](c *Cache, name string, offset uintptr) (*Borrow[T], error) {
	_, span := c.metrics.StartSpan(context.Background(), "Read")
	defer span.End()

	e, err := c.selectEntry(name)
	if err != nil {
		return nil, err
	}
	e.borrows.Add(1)
	r := e.region

	var zero T
	size := unsafe.Sizeof(zero)
	if offset+size > uintptr(r.Len()) {
		c.release(name)
		return nil, fmt.Errorf("readercache.Read(%q): %w: offset %d + size %d exceeds region len %d",
			name, region.ErrOutOfBounds, offset, size, r.Len())
	}

	return &Borrow[T]{
		cache:  c,
		name:   name,
		value:  (*T)(unsafe.Pointer(&r.Bytes()[offset])),
		region: r,
	}, nil
}

// Value returns the borrowed pointer. It becomes invalid after Release.
func (b *Borrow[T]) Value() *T {
	if b == nil {
		return nil
	}
	return b.value
}

// Release decrements the borrow count. It is safe to call on a nil Borrow
// and safe to call more than once (subsequent calls are no-ops).
func (b *Borrow[T]) Release() {
	if b == nil || b.cache == nil {
		return
	}
	b.cache.release(b.name)
	b.cache = nil
}

func (c *Cache) release(name string) {
	e, ok := c.byName.Get(name)
	if !ok {
		return
	}
	e.borrows.Add(-1)
}

// GC evicts every cached entry with zero outstanding borrows, closing its
// mapping, and returns the number evicted. Entries with outstanding
// borrows are left untouched regardless of age.
func (c *Cache) GC() int {
	evicted := 0
	for name, e := range c.byName.Items() {
		if e.borrows.Load() > 0 {
			continue
		}
		if !c.byName.RemoveCb(name, func(_ string, v *entry, exists bool) bool {
			return exists && v.borrows.Load() == 0
		}) {
			continue
		}
		if err := e.region.Close(); err != nil {
			log.Warnf("GC: closing %q: %v", name, err)
		}
		evicted++
	}
	return evicted
}

// Len returns the number of names currently cached (borrowed or not).
func (c *Cache) Len() int {
	return c.byName.Count()
}
