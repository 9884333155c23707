package pool

import "github.com/shynur/ipcator/pkg/regionset"

// Sync is a pool safe for concurrent use by multiple goroutines, mirroring
// std::pmr::synchronized_pool_resource.
type Sync struct {
	c *core
}

// NewSync constructs a Sync pool.
func NewSync(opts Options, options ...Option) *Sync {
	var ex extras
	for _, o := range options {
		o(&ex)
	}
	return &Sync{c: newCore(opts, ex)}
}

// Allocate returns an address for size bytes aligned to align.
func (p *Sync) Allocate(size, align uintptr) (uintptr, error) {
	return p.c.allocate(size, align)
}

// Deallocate returns a previously allocated block to the pool.
func (p *Sync) Deallocate(ptr, size, align uintptr) error {
	return p.c.deallocate(ptr, size, align)
}

// Release returns all pool memory to the operating system.
func (p *Sync) Release() {
	p.c.release()
}

// Upstream returns the RegionSet this pool fetches chunks from.
func (p *Sync) Upstream() *regionset.Ordered {
	return p.c.upstream
}

// Options returns the normalized construction options.
func (p *Sync) Options() Options {
	return p.c.opts
}

// Stats returns a point-in-time occupancy snapshot.
func (p *Sync) Stats() Stats {
	return p.c.stats()
}
