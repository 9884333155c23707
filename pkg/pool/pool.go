// Package pool implements the segregated pool allocator: fixed-size free
// lists per size class backed by an Ordered RegionSet, with a dedicated
// bypass for oversized requests.
//
// The pools map[uint32][]*BufferSlice shape is generalized here into
// per-size-class chunks, each with its own LIFO free list (see freelist.go
// for why a plain slice stack replaces a FIFO queue as backing storage).
// Idle-chunk reclamation runs asynchronously on a github.com/panjf2000/ants/v2
// worker pool; callers never observe exactly when a chunk is released back
// to upstream.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/shynur/ipcator/internal/logx"
	"github.com/shynur/ipcator/pkg/metrics"
	"github.com/shynur/ipcator/pkg/pagesize"
	"github.com/shynur/ipcator/pkg/region"
	"github.com/shynur/ipcator/pkg/regionset"
)

var log = logx.New("pool", nil)

// Options configures a Sync or Unsync pool, mirroring
// std::pmr::pool_options's two knobs.
type Options struct {
	// MaxBlocksPerChunk sets the size requested for each new chunk of a
	// size class (MaxBlocksPerChunk * block size). The chunk's region is
	// page-ceiled and carved into as many blocks as fit in it, so a chunk
	// can hold more blocks than this number.
	MaxBlocksPerChunk uint32
	// LargestRequiredPoolBlock is the largest request size served from a
	// segregated free list; anything larger bypasses straight to a
	// dedicated upstream region.
	LargestRequiredPoolBlock uintptr
}

const (
	defaultMaxBlocksPerChunk        = 64
	defaultLargestRequiredPoolBlock = 4096
	minBlockSize                    = 8
)

func (o Options) normalized() Options {
	if o.MaxBlocksPerChunk == 0 {
		o.MaxBlocksPerChunk = defaultMaxBlocksPerChunk
	}
	if o.LargestRequiredPoolBlock == 0 {
		o.LargestRequiredPoolBlock = defaultLargestRequiredPoolBlock
	}
	return o
}

// Option configures construction-time extras orthogonal to Options.
type Option func(*extras)

type extras struct {
	metrics *metrics.Recorder
}

// WithMetrics attaches a metrics.Recorder for allocation/reclamation events.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *extras) { e.metrics = m }
}

func classSizeFor(required uintptr) uintptr {
	c := minBlockSize
	for uintptr(c) < required {
		c *= 2
	}
	return uintptr(c)
}

// core holds the state shared by Sync and Unsync. Its mutex protects
// bookkeeping (classes/chunks/oversize) against the background ants
// reclamation worker running asynchronously, and every entry point takes
// it. Sync has no lock of its own: its concurrency safety comes from this
// mutex. Unsync's contract still asks its callers to serialize concurrent
// Allocate/Deallocate calls themselves.
type core struct {
	mu sync.Mutex

	upstream *regionset.Ordered
	opts     Options
	metrics  *metrics.Recorder

	classes  map[uintptr]*sizeClass
	chunks   map[uintptr]*chunk  // keyed by chunk region base address
	oversize map[uintptr]uintptr // ptr -> size, for the dedicated bypass

	reclaimer *ants.Pool
}

func newCore(opts Options, ex extras) *core {
	opts = opts.normalized()
	reclaimer, err := ants.NewPool(4, ants.WithNonblocking(true))
	if err != nil {
		// ants.NewPool only fails on invalid size; 4 is always valid.
		log.Errorf("ants.NewPool: %v", err)
	}
	return &core{
		upstream:  regionset.NewOrdered(regionset.WithMetrics(ex.metrics)),
		opts:      opts,
		metrics:   ex.metrics,
		classes:   make(map[uintptr]*sizeClass),
		chunks:    make(map[uintptr]*chunk),
		oversize:  make(map[uintptr]uintptr),
		reclaimer: reclaimer,
	}
}

func (c *core) classFor(size uintptr) *sizeClass {
	sc, ok := c.classes[size]
	if !ok {
		sc = &sizeClass{blockSize: size}
		c.classes[size] = sc
	}
	return sc
}

// allocate returns an address for size bytes aligned to align.
func (c *core) allocate(size, align uintptr) (uintptr, error) {
	_, span := c.metrics.StartSpan(context.Background(), "Allocate")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocateLocked(size, align)
}

func (c *core) allocateLocked(size, align uintptr) (uintptr, error) {
	if size == 0 {
		return 0, fmt.Errorf("pool: %w: size must be > 0", region.ErrInvalidArgument)
	}
	if align == 0 {
		align = 1
	}
	if !pagesize.IsAligned(align) {
		return 0, fmt.Errorf("pool: %w: align=%d > pagesize=%d", region.ErrAlignmentUnsupported, align, pagesize.Size())
	}
	required := size
	if align > required {
		required = align
	}

	if required > c.opts.LargestRequiredPoolBlock {
		return c.allocateOversize(size, align)
	}

	cs := classSizeFor(required)
	sc := c.classFor(cs)

	for _, ch := range sc.chunks {
		if addr, ok := ch.free.pop(); ok {
			return addr, nil
		}
	}
	ch, err := c.refill(sc)
	if err != nil {
		return 0, err
	}
	addr, ok := ch.free.pop()
	if !ok {
		return 0, fmt.Errorf("pool: %w: refill produced no blocks", region.ErrOutOfMemory)
	}
	return addr, nil
}

func (c *core) allocateOversize(size, align uintptr) (uintptr, error) {
	addr, err := c.upstream.Allocate(size, align)
	if err != nil {
		return 0, fmt.Errorf("pool: dedicated allocation: %w", err)
	}
	c.oversize[addr] = size
	return addr, nil
}

// refill fetches one fresh chunk from upstream, splits it into blockSize
// blocks, and appends it to sc.
func (c *core) refill(sc *sizeClass) (*chunk, error) {
	blocks := uintptr(c.opts.MaxBlocksPerChunk)
	chunkSize := sc.blockSize * blocks

	base, err := c.upstream.Allocate(chunkSize, 1)
	if err != nil {
		return nil, fmt.Errorf("pool: refill: %w", err)
	}
	r, err := c.upstream.FindArena(base)
	if err != nil {
		return nil, fmt.Errorf("pool: refill: %w", err)
	}
	actualBlocks := uintptr(r.Len()) / sc.blockSize

	ch := &chunk{
		regionAddr: base,
		size:       uintptr(r.Len()),
		blockSize:  sc.blockSize,
		class:      sc,
		total:      int32(actualBlocks),
		free:       newFreeList(),
	}
	for i := uintptr(0); i < actualBlocks; i++ {
		ch.free.push(base + i*sc.blockSize)
	}

	c.chunks[base] = ch
	sc.chunks = append(sc.chunks, ch)
	return ch, nil
}

// deallocate returns ptr to its size class's free list, or to upstream
// directly if it was a dedicated (oversized) allocation.
func (c *core) deallocate(ptr, size, align uintptr) error {
	_, span := c.metrics.StartSpan(context.Background(), "Deallocate")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deallocateLocked(ptr, size, align)
}

func (c *core) deallocateLocked(ptr, size, align uintptr) error {
	if _, ok := c.oversize[ptr]; ok {
		delete(c.oversize, ptr)
		if err := c.upstream.Deallocate(ptr, size, 1); err != nil {
			return fmt.Errorf("pool: dedicated deallocation: %w", err)
		}
		return nil
	}

	r, err := c.upstream.FindArena(ptr)
	if err != nil {
		return fmt.Errorf("pool: deallocate: %w", err)
	}
	ch, ok := c.chunks[r.Addr()]
	if !ok {
		return fmt.Errorf("pool: deallocate: %w: %#x not tracked by any chunk", region.ErrInvalidArgument, ptr)
	}

	ch.free.push(ptr)

	if ch.isIdle() {
		c.scheduleReclaim(ch)
	}
	return nil
}

// scheduleReclaim submits ch for asynchronous reclamation. Reclamation is
// best-effort: if the pool is shutting down or the worker pool is
// saturated, the chunk simply stays resident until the next opportunity.
func (c *core) scheduleReclaim(ch *chunk) {
	if c.reclaimer == nil {
		return
	}
	addr := ch.regionAddr
	if err := c.reclaimer.Submit(func() { c.reclaim(addr) }); err != nil {
		log.Debugf("scheduleReclaim: %v (chunk stays resident)", err)
	}
}

// reclaim runs on a worker goroutine; callers of allocate/deallocate must
// not assume it has run by the time they return. It re-checks the chunk is
// still fully idle before releasing it, since a concurrent allocate may
// have already taken one of its blocks back.
func (c *core) reclaim(regionAddr uintptr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.chunks[regionAddr]
	if !ok || !ch.isIdle() {
		return
	}

	delete(c.chunks, regionAddr)
	for i, cch := range ch.class.chunks {
		if cch == ch {
			ch.class.chunks = append(ch.class.chunks[:i], ch.class.chunks[i+1:]...)
			break
		}
	}
	if err := c.upstream.Deallocate(regionAddr, ch.size, 1); err != nil {
		log.Warnf("reclaim: %v", err)
	}
}

// Stats is a point-in-time snapshot of pool occupancy, useful for polling
// idle-chunk reclamation in tests rather than asserting it happened by a
// particular wall-clock deadline.
type Stats struct {
	SizeClasses int
	Chunks      int
	Oversized   int
}

func (c *core) stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		SizeClasses: len(c.classes),
		Chunks:      len(c.chunks),
		Oversized:   len(c.oversize),
	}
}

func (c *core) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reclaimer != nil {
		c.reclaimer.Release()
	}
	if err := c.upstream.Close(); err != nil {
		log.Warnf("release: %v", err)
	}
	c.classes = make(map[uintptr]*sizeClass)
	c.chunks = make(map[uintptr]*chunk)
	c.oversize = make(map[uintptr]uintptr)
}
