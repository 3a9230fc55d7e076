// Package pool lends vertex, index and uniform buffers across frames.
//
// Buffers are bucketed by usage, dynamic-ness and a power-of-two size
// class. Each entry counts the frames since it was last lent; once per
// frame ClearPooledResources ages every entry and destroys those idle for
// longer than the configured maximum life.
package pool

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/resource"
	"github.com/gogpu/wgpu/hal"
)

// Default pool limits.
const (
	// DefaultMaxBytes is the default budget of pooled buffers (64 MB).
	DefaultMaxBytes = 64 << 20

	// DefaultMinClass is the smallest size class in bytes.
	DefaultMinClass = 256

	// DefaultMaxLife is the default number of idle frames before eviction.
	DefaultMaxLife = 30
)

// ErrInvalidLength is returned when a buffer of zero length is requested.
var ErrInvalidLength = errors.New("pool: invalid buffer length")

// Usage is the binding role of a pooled buffer.
type Usage uint8

// Buffer usages.
const (
	UsageVertex Usage = iota
	UsageIndex
	UsageUniform
)

// GPU returns the backend usage flags.
func (u Usage) GPU() gputypes.BufferUsage {
	switch u {
	case UsageIndex:
		return gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
	case UsageUniform:
		return gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	default:
		return gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	}
}

// String returns a human-readable name.
func (u Usage) String() string {
	switch u {
	case UsageVertex:
		return "vertex"
	case UsageIndex:
		return "index"
	case UsageUniform:
		return "uniform"
	default:
		return fmt.Sprintf("Usage(%d)", u)
	}
}

// Key identifies a pool bucket.
type Key struct {
	Usage   Usage
	Dynamic bool
	Class   uint64
}

// Entry is a pooled (or transient) buffer.
type Entry struct {
	buf         *resource.Buffer
	key         Key
	unusedSince uint32
	inUse       bool
	pooled      bool
}

// Buffer returns the backend buffer.
func (e *Entry) Buffer() hal.Buffer { return e.buf.Handle() }

// Resource returns the refcounted buffer. Holders that keep the buffer past
// the current frame must Retain it.
func (e *Entry) Resource() *resource.Buffer { return e.buf }

// Capacity returns the allocated size in bytes.
func (e *Entry) Capacity() uint64 { return e.buf.Size() }

// UnusedSince returns the number of frame boundaries since the entry was
// last lent.
func (e *Entry) UnusedSince() uint32 { return e.unusedSince }

// Pooled reports whether the entry lives in the pool; transient fallback
// buffers do not.
func (e *Entry) Pooled() bool { return e.pooled }

// Key returns the bucket key of the entry.
func (e *Entry) Key() Key { return e.key }

// idle reports whether the entry can be lent: not lent this frame and not
// retained by anything but the pool.
func (e *Entry) idle() bool {
	return !e.inUse && e.buf.Refs() == 1
}

// Config holds configuration for creating a Pool.
type Config struct {
	// MaxBytes is the budget of pooled buffers. Requests beyond it get an
	// unpooled transient buffer. Defaults to DefaultMaxBytes if zero.
	MaxBytes uint64

	// MinClass is the smallest size class. Defaults to DefaultMinClass.
	MinClass uint64

	Logger *slog.Logger
}

// Stats contains pool statistics.
type Stats struct {
	Entries     int
	Transient   int
	UsedBytes   uint64
	MaxBytes    uint64
	Allocations uint64
	Reuses      uint64
	Evictions   uint64
	Fallbacks   uint64
}

// String returns a human-readable string of pool stats.
func (s Stats) String() string {
	return fmt.Sprintf("Pool[%d entries, %d transient, %d/%d KB, %d allocs, %d reuses, %d evictions, %d fallbacks]",
		s.Entries, s.Transient, s.UsedBytes/1024, s.MaxBytes/1024,
		s.Allocations, s.Reuses, s.Evictions, s.Fallbacks)
}

// Pool lends buffers. It is owned by the render thread and is not safe for
// concurrent use.
type Pool struct {
	device hal.Device
	queue  hal.Queue
	log    *slog.Logger

	maxBytes uint64
	minClass uint64

	buckets   map[Key][]*Entry
	transient []*Entry
	usedBytes uint64

	allocations uint64
	reuses      uint64
	evictions   uint64
	fallbacks   uint64
}

// New creates an empty pool.
func New(device hal.Device, queue hal.Queue, cfg Config) *Pool {
	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = DefaultMaxBytes
	}
	minClass := cfg.MinClass
	if minClass == 0 {
		minClass = DefaultMinClass
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		device:   device,
		queue:    queue,
		log:      log,
		maxBytes: maxBytes,
		minClass: minClass,
		buckets:  make(map[Key][]*Entry),
	}
}

// SizeClass returns the bucket capacity for a request of n bytes.
func (p *Pool) SizeClass(n uint64) uint64 {
	c := p.minClass
	for c < n {
		c <<= 1
	}
	return c
}

// PrepareBuffer returns a buffer of at least length bytes holding data.
//
// An idle entry with matching usage, dynamic-ness and size class is reused
// and its idle counter reset; otherwise a new buffer is allocated. When the
// pool budget is exhausted the buffer is allocated unpooled; the pool drops
// its reference at the next ClearPooledResources and the buffer is destroyed
// once no command or in-flight frame retains it. Allocation failures wrap
// gpucore.ErrResourceExhausted.
func (p *Pool) PrepareBuffer(data []byte, length uint64, dynamic bool, usage Usage) (*Entry, error) {
	if length < uint64(len(data)) {
		length = uint64(len(data))
	}
	if length == 0 {
		return nil, ErrInvalidLength
	}
	key := Key{Usage: usage, Dynamic: dynamic, Class: p.SizeClass(length)}

	e := p.findIdle(key, length)
	if e != nil {
		p.reuses++
	} else {
		var err error
		e, err = p.allocate(key, length)
		if err != nil {
			return nil, err
		}
	}
	e.unusedSince = 0
	e.inUse = true

	if len(data) > 0 {
		if err := p.queue.WriteBuffer(e.Buffer(), 0, padded(data)); err != nil {
			return nil, fmt.Errorf("pool: write %s buffer: %w", usage, err)
		}
	}
	return e, nil
}

func (p *Pool) findIdle(key Key, length uint64) *Entry {
	for _, e := range p.buckets[key] {
		if e.idle() && e.Capacity() >= length {
			return e
		}
	}
	return nil
}

func (p *Pool) allocate(key Key, length uint64) (*Entry, error) {
	pooled := p.usedBytes+key.Class <= p.maxBytes
	size := key.Class
	if !pooled {
		size = align4(length)
	}

	buf, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("pool_%s_%d", key.Usage, size),
		Size:  size,
		Usage: key.Usage.GPU(),
	})
	if err != nil {
		p.log.Warn("pool: buffer allocation failed", "usage", key.Usage.String(), "size", size, "err", err)
		return nil, fmt.Errorf("%w: %s buffer of %d bytes: %w", gpucore.ErrResourceExhausted, key.Usage, size, err)
	}

	e := &Entry{
		buf:    resource.NewBuffer(p.device, buf, size),
		key:    key,
		pooled: pooled,
	}
	p.allocations++
	if pooled {
		p.buckets[key] = append(p.buckets[key], e)
		p.usedBytes += size
		p.log.Debug("pool: buffer allocated", "usage", key.Usage.String(), "class", key.Class, "dynamic", key.Dynamic)
	} else {
		p.transient = append(p.transient, e)
		p.fallbacks++
		p.log.Debug("pool: budget exceeded, transient buffer", "usage", key.Usage.String(), "size", size)
	}
	return e, nil
}

// ClearPooledResources ends a frame for the pool. It must run once per
// frame, before new commands are recorded.
//
// The pool's references on transient buffers are released. Entries still
// retained outside the pool, by commands or by frames the GPU has not
// finished, count as used and are never lent or evicted; every other entry ages by one frame and is destroyed once
// its idle counter exceeds maxLife.
func (p *Pool) ClearPooledResources(maxLife uint32) {
	for _, e := range p.transient {
		e.buf.Release()
	}
	p.transient = p.transient[:0]

	for key, bucket := range p.buckets {
		kept := bucket[:0]
		for _, e := range bucket {
			e.inUse = false
			if e.buf.Refs() > 1 {
				e.unusedSince = 0
				kept = append(kept, e)
				continue
			}
			e.unusedSince++
			if e.unusedSince > maxLife {
				p.evict(e)
				continue
			}
			kept = append(kept, e)
		}
		clear(bucket[len(kept):])
		if len(kept) == 0 {
			delete(p.buckets, key)
		} else {
			p.buckets[key] = kept
		}
	}
}

func (p *Pool) evict(e *Entry) {
	p.usedBytes -= e.Capacity()
	p.evictions++
	e.buf.Release()
	p.log.Debug("pool: buffer evicted", "usage", e.key.Usage.String(), "class", e.key.Class, "idle", e.unusedSince)
}

// Drain destroys every buffer regardless of age or outstanding references.
// Used when the device or resolution changes.
func (p *Pool) Drain() {
	n := 0
	for key, bucket := range p.buckets {
		for _, e := range bucket {
			e.buf.Invalidate()
			n++
		}
		delete(p.buckets, key)
	}
	for _, e := range p.transient {
		e.buf.Invalidate()
	}
	p.transient = p.transient[:0]
	p.usedBytes = 0
	if n > 0 {
		p.log.Debug("pool: drained", "entries", n)
	}
}

// Rebind points the pool at a new device and queue. The pool must have
// been drained first.
func (p *Pool) Rebind(device hal.Device, queue hal.Queue) {
	p.device = device
	p.queue = queue
}

// Len returns the number of pooled entries.
func (p *Pool) Len() int {
	n := 0
	for _, bucket := range p.buckets {
		n += len(bucket)
	}
	return n
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Entries:     p.Len(),
		Transient:   len(p.transient),
		UsedBytes:   p.usedBytes,
		MaxBytes:    p.maxBytes,
		Allocations: p.allocations,
		Reuses:      p.reuses,
		Evictions:   p.evictions,
		Fallbacks:   p.fallbacks,
	}
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}

// padded returns data extended to a multiple of four bytes, as queue
// writes require.
func padded(data []byte) []byte {
	n := align4(uint64(len(data)))
	if n == uint64(len(data)) {
		return data
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}
