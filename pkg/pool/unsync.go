package pool

import "github.com/shynur/ipcator/pkg/regionset"

// Unsync is a pool for single-writer use, mirroring
// std::pmr::unsynchronized_pool_resource: callers must externally
// serialize concurrent Allocate/Deallocate calls. The one exception is the
// background idle-chunk reclamation worker, which core's own internal
// mutex protects against regardless.
type Unsync struct {
	c *core
}

// NewUnsync constructs an Unsync pool.
func NewUnsync(opts Options, options ...Option) *Unsync {
	var ex extras
	for _, o := range options {
		o(&ex)
	}
	return &Unsync{c: newCore(opts, ex)}
}

// Allocate returns an address for size bytes aligned to align.
func (p *Unsync) Allocate(size, align uintptr) (uintptr, error) {
	return p.c.allocate(size, align)
}

// Deallocate returns a previously allocated block to the pool.
func (p *Unsync) Deallocate(ptr, size, align uintptr) error {
	return p.c.deallocate(ptr, size, align)
}

// Release returns all pool memory to the operating system.
func (p *Unsync) Release() {
	p.c.release()
}

// Upstream returns the RegionSet this pool fetches chunks from.
func (p *Unsync) Upstream() *regionset.Ordered {
	return p.c.upstream
}

// Options returns the normalized construction options.
func (p *Unsync) Options() Options {
	return p.c.opts
}

// Stats returns a point-in-time occupancy snapshot.
func (p *Unsync) Stats() Stats {
	return p.c.stats()
}
