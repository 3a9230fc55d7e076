// Package pipeline resolves pipeline contexts to compiled backend pipelines.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/shader"
	"github.com/gogpu/wgpu/hal"
)

// Pipeline cache errors.
var (
	// ErrNilDevice is returned when creating a cache without a device.
	ErrNilDevice = errors.New("pipeline: device is nil")

	// ErrPreviouslyFailed is returned for a context whose creation already
	// failed since the last Reset.
	ErrPreviouslyFailed = errors.New("pipeline: context previously failed")
)

// Pipeline is a compiled pipeline owned by a Cache.
type Pipeline struct {
	// ID is the arena index of the pipeline inside its cache.
	ID      int
	Context gpucore.PipelineContext
	Program *shader.Compiled

	handle hal.RenderPipeline
}

// Handle returns the backend pipeline.
func (p *Pipeline) Handle() hal.RenderPipeline {
	return p.handle
}

// Config configures a Cache.
type Config struct {
	Formats Formats
	Logger  *slog.Logger
}

// Stats contains cache statistics.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Size     int
	Failures int
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache maps pipeline contexts to pipelines. At most one pipeline exists
// per distinct context value. Pipelines are only destroyed together by
// Reset.
type Cache struct {
	mu sync.Mutex

	device  hal.Device
	shaders *shader.Table
	formats Formats
	log     *slog.Logger

	arena     []*Pipeline
	byContext map[gpucore.PipelineContext]*Pipeline
	failed    map[gpucore.PipelineContext]error

	hits   uint64
	misses uint64
}

// NewCache creates an empty cache building pipelines on device with
// programs from shaders.
func NewCache(device hal.Device, shaders *shader.Table, cfg Config) (*Cache, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	formats := cfg.Formats
	if formats == (Formats{}) {
		formats = DefaultFormats()
	}
	return &Cache{
		device:    device,
		shaders:   shaders,
		formats:   formats,
		log:       log,
		byContext: make(map[gpucore.PipelineContext]*Pipeline),
		failed:    make(map[gpucore.PipelineContext]error),
	}, nil
}

// Get returns the pipeline for ctx, creating it on first use.
//
// Creation failures wrap gpucore.ErrPipelineCreation. A failed context is
// remembered and fails immediately on later calls until Reset.
func (c *Cache) Get(ctx gpucore.PipelineContext) (*Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.byContext[ctx]; ok {
		c.hits++
		return p, nil
	}
	if err, ok := c.failed[ctx]; ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrPreviouslyFailed, ctx, err)
	}

	c.misses++
	p, err := c.create(ctx)
	if err != nil {
		c.failed[ctx] = err
		c.log.Warn("pipeline: creation failed", "context", ctx.String(), "err", err)
		return nil, err
	}
	c.byContext[ctx] = p
	c.log.Debug("pipeline: created", "context", ctx.String(), "id", p.ID)
	return p, nil
}

func (c *Cache) create(ctx gpucore.PipelineContext) (*Pipeline, error) {
	compiled, err := c.shaders.Get(ctx.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gpucore.ErrPipelineCreation, err)
	}
	desc, err := Descriptor(ctx, compiled, c.formats)
	if err != nil {
		return nil, err
	}
	handle, err := c.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", gpucore.ErrPipelineCreation, ctx, err)
	}
	p := &Pipeline{
		ID:      len(c.arena),
		Context: ctx,
		Program: compiled,
		handle:  handle,
	}
	c.arena = append(c.arena, p)
	return p, nil
}

// At returns the pipeline with arena index id, or nil.
func (c *Cache) At(id int) *Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id < 0 || id >= len(c.arena) {
		return nil
	}
	return c.arena[id]
}

// Len returns the number of live pipelines.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.arena)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Size:     len(c.arena),
		Failures: len(c.failed),
	}
}

// Reset destroys every pipeline and forgets failed contexts. Pipelines
// handed out before Reset must not be used afterwards.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.arena {
		if p.handle != nil {
			c.device.DestroyRenderPipeline(p.handle)
			p.handle = nil
		}
	}
	if n := len(c.arena); n > 0 {
		c.log.Debug("pipeline: cache reset", "destroyed", n)
	}
	c.arena = nil
	clear(c.byContext)
	clear(c.failed)
}

// Rebind points the cache at a new device. The cache must have been
// Reset first.
func (c *Cache) Rebind(device hal.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.device = device
}
