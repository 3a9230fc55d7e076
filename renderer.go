package rtsgfx

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/backend"
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/command"
	"github.com/gogpu/rtsgfx/internal/pipeline"
	"github.com/gogpu/rtsgfx/internal/pool"
	"github.com/gogpu/rtsgfx/internal/resource"
	"github.com/gogpu/rtsgfx/internal/shader"
	"github.com/gogpu/rtsgfx/internal/target"
	"github.com/gogpu/wgpu/hal"
)

// sceneState is the lifecycle state of a Renderer.
type sceneState uint8

const (
	stateUninitialized sceneState = iota
	stateReady
	stateScene
)

func (s sceneState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateReady:
		return "ready"
	case stateScene:
		return "in scene"
	default:
		return fmt.Sprintf("sceneState(%d)", s)
	}
}

// TargetStats describes one render pass of the last frame.
type TargetStats struct {
	Index    int
	Kind     string
	Commands int
}

// FrameStats describes the last submitted frame.
type FrameStats struct {
	Frame uint64

	// Targets lists the passes in submission order.
	Targets []TargetStats

	Commands      int
	Draws         int
	PipelineBinds int
	BindGroups    int
	UniformBytes  uint64
	Fallbacks     int

	Pipelines   int
	CacheHits   uint64
	CacheMisses uint64

	PoolEntries int
	PoolBytes   uint64
}

// Renderer batches draw calls into per-target command lists and submits
// them once per frame.
//
// A Renderer moves through three states: uninitialized, ready and in
// scene. Init makes it ready; BeginScene and EndScene bracket the
// recording of one frame; Flush presents it. The Renderer is owned by the
// render thread and is not safe for concurrent use.
type Renderer struct {
	dev     *backend.Device
	opts    options
	log     *slog.Logger
	formats pipeline.Formats

	state  sceneState
	width  int
	height int
	frame  uint64

	shaders *shader.Table
	cache   *pipeline.Cache
	pool    *pool.Pool
	targets *target.Manager
	rec     *command.Recorder

	sampler       hal.Sampler
	shadowSampler hal.Sampler
	white         *resource.Texture
	blankShadow   *resource.Texture

	textures map[*Texture]struct{}

	surfaceTex  hal.SurfaceTexture
	surfaceView hal.TextureView

	pending []*frameResources
	stats   FrameStats

	saved []savedState
}

// New creates a renderer drawing with dev. Init must be called before the
// first scene.
func New(dev *backend.Device, opts ...Option) *Renderer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}
	r := &Renderer{
		dev:      dev,
		opts:     o,
		log:      log,
		textures: make(map[*Texture]struct{}),
		// Only tracks state until Init builds the real recorder; draws
		// are rejected before then.
		rec: command.NewRecorder(command.Config{Logger: log}),
	}
	r.formats = r.resolveFormats()
	return r
}

func (r *Renderer) resolveFormats() pipeline.Formats {
	f := pipeline.DefaultFormats()
	switch {
	case r.opts.colorFormat != gputypes.TextureFormatUndefined:
		f.Color = r.opts.colorFormat
	case r.dev != nil && r.dev.SurfaceFormat != gputypes.TextureFormatUndefined:
		f.Color = r.dev.SurfaceFormat
	}
	return f
}

// Device returns the device the renderer draws with.
func (r *Renderer) Device() *backend.Device {
	return r.dev
}

// Size returns the size of the default target.
func (r *Renderer) Size() (width, height int) {
	return r.width, r.height
}

// Frame returns the number of scenes begun since creation.
func (r *Renderer) Frame() uint64 {
	return r.frame
}

// Init creates the device objects and sizes the default target.
func (r *Renderer) Init(width, height int) error {
	if r.state != stateUninitialized {
		return fmt.Errorf("%w: Init while %s", ErrSceneState, r.state)
	}
	if r.dev == nil || r.dev.Device == nil || r.dev.Queue == nil {
		return ErrNoDevice
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, width, height)
	}
	if err := r.setup(); err != nil {
		return err
	}
	if err := r.updateRenderMode(width, height); err != nil {
		r.release()
		return err
	}
	if err := r.restoreTextures(); err != nil {
		r.release()
		return err
	}
	r.state = stateReady
	r.log.Info("rtsgfx: renderer initialized",
		"backend", r.dev.Name,
		"adapter", r.dev.Info.Name,
		"width", width,
		"height", height,
		"format", r.formats.Color.String())
	return nil
}

// setup creates the per-device components, or points existing ones at a
// new device after a reset.
func (r *Renderer) setup() error {
	device, queue := r.dev.Device, r.dev.Queue
	if r.shaders != nil {
		r.shaders.Rebind(device)
		r.cache.Rebind(device)
		r.pool.Rebind(device, queue)
		r.targets.Rebind(device)
		return nil
	}

	shaders := shader.NewTable(device, r.dev.Variant, r.log)
	cache, err := pipeline.NewCache(device, shaders, pipeline.Config{Formats: r.formats, Logger: r.log})
	if err != nil {
		return err
	}
	r.shaders = shaders
	r.cache = cache
	r.pool = pool.New(device, queue, pool.Config{MaxBytes: r.opts.poolBudget, Logger: r.log})
	r.targets = target.NewManager(device, target.Config{
		ColorFormat:  r.formats.Color,
		DepthFormat:  r.formats.Depth,
		ShadowFormat: r.formats.Shadow,
		Logger:       r.log,
	})
	r.rec = command.NewRecorder(command.Config{
		Resolver: r.cache,
		Uploader: r.pool,
		Sink:     r.targets,
		Logger:   r.log,
	})
	return nil
}

// updateRenderMode (re)creates everything that depends on the output size.
func (r *Renderer) updateRenderMode(width, height int) error {
	if s := r.opts.surface; s != nil {
		err := s.Configure(r.dev.Device, &hal.SurfaceConfiguration{
			Width:       uint32(width),
			Height:      uint32(height),
			Format:      r.formats.Color,
			Usage:       gputypes.TextureUsageRenderAttachment,
			PresentMode: r.opts.presentMode,
		})
		if err != nil {
			return fmt.Errorf("rtsgfx: configure surface: %w", err)
		}
	}
	if err := r.targets.Resize(uint32(width), uint32(height)); err != nil {
		return err
	}
	r.width, r.height = width, height

	if r.sampler == nil {
		if err := r.createSamplers(); err != nil {
			return err
		}
	}
	if r.white == nil {
		if err := r.createPlaceholders(); err != nil {
			return err
		}
	}
	if size := r.opts.shadowSize; size > 0 {
		if shadow, _ := r.targets.ShadowMaps(); shadow == nil {
			if err := r.targets.CreateShadowMaps(size); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Renderer) createSamplers() error {
	device := r.dev.Device
	s, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "rtsgfx_sampler",
		AddressModeU: gputypes.AddressModeRepeat,
		AddressModeV: gputypes.AddressModeRepeat,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return fmt.Errorf("%w: sampler: %w", ErrResourceExhausted, err)
	}
	cs, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "rtsgfx_shadow_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Compare:      gputypes.CompareFunctionLessEqual,
		Anisotropy:   1,
	})
	if err != nil {
		device.DestroySampler(s)
		return fmt.Errorf("%w: shadow sampler: %w", ErrResourceExhausted, err)
	}
	r.sampler, r.shadowSampler = s, cs
	return nil
}

// createPlaceholders creates the 1x1 white texture bound to empty slots and
// the 1x1 depth texture sampled when no shadow map exists.
func (r *Renderer) createPlaceholders() error {
	device := r.dev.Device
	img, err := resource.CreateImage(device, "white", 1, 1, gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst)
	if err != nil {
		return fmt.Errorf("%w: placeholder: %w", ErrResourceExhausted, err)
	}
	white := resource.NewTexture(device, img)
	if err := r.writePixels(img, []byte{0xff, 0xff, 0xff, 0xff}); err != nil {
		white.Release()
		return err
	}

	img, err = resource.CreateImage(device, "blank_shadow", 1, 1, r.formats.Shadow,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageRenderAttachment)
	if err != nil {
		white.Release()
		return fmt.Errorf("%w: shadow placeholder: %w", ErrResourceExhausted, err)
	}
	r.white, r.blankShadow = white, resource.NewTexture(device, img)
	return nil
}

// release destroys every device object the renderer owns. Textures created
// by the caller are invalidated and recreated by the next Init.
func (r *Renderer) release() {
	if r.shaders == nil {
		return
	}
	r.reclaim(true)
	r.discardSurface()
	r.targets.ClearCommands()
	r.targets.Reset()
	r.rec.Reset(gpucore.Rect{})
	r.cache.Reset()
	r.pool.Drain()
	for t := range r.textures {
		t.res.Invalidate()
	}
	r.white.Release()
	r.blankShadow.Release()
	r.white, r.blankShadow = nil, nil
	if r.sampler != nil {
		r.dev.Device.DestroySampler(r.sampler)
		r.dev.Device.DestroySampler(r.shadowSampler)
		r.sampler, r.shadowSampler = nil, nil
	}
	r.shaders.Destroy()
	if s := r.opts.surface; s != nil {
		s.Unconfigure(r.dev.Device)
	}
	r.saved = r.saved[:0]
	r.state = stateUninitialized
}

// BeginScene starts recording a frame.
//
// Completed frames are reclaimed, pooled buffers age by one frame, the
// surface texture is acquired and the render state returns to its
// defaults.
func (r *Renderer) BeginScene() error {
	switch r.state {
	case stateScene:
		return fmt.Errorf("%w: BeginScene while in scene", ErrSceneState)
	case stateUninitialized:
		return fmt.Errorf("%w: BeginScene before Init", ErrSceneState)
	}

	r.reclaim(false)
	r.pool.ClearPooledResources(r.opts.maxLife)
	if err := r.acquireSurface(); err != nil {
		return r.deviceError(err)
	}
	r.targets.RestoreActive()
	r.rec.Reset(r.targets.Main().Bounds())
	r.saved = r.saved[:0]
	r.frame++
	r.state = stateScene
	return nil
}

// EndScene closes the frame and submits every target's commands: shadow
// map, light map, texture targets, then the default target.
//
// Any error abandons the frame: no part of it is submitted and the command
// lists are cleared. Device loss triggers a reset.
func (r *Renderer) EndScene() error {
	if r.state != stateScene {
		return fmt.Errorf("%w: EndScene while %s", ErrSceneState, r.state)
	}
	r.state = stateReady
	defer r.targets.ClearCommands()

	if err := r.rec.Finish(); err != nil {
		r.log.Warn("rtsgfx: frame abandoned", "frame", r.frame, "err", err)
		return r.deviceError(err)
	}
	if err := r.submit(); err != nil {
		r.log.Warn("rtsgfx: frame abandoned", "frame", r.frame, "err", err)
		return r.deviceError(err)
	}
	return nil
}

func (r *Renderer) submit() error {
	device := r.dev.Device
	ordered := r.targets.Ordered()

	lists := make([][]*command.Command, len(ordered))
	for i, t := range ordered {
		lists[i] = t.Commands()
	}

	f := newFrameResources(device)
	ok := false
	defer func() {
		if !ok {
			f.cleanup()
		}
	}()
	if err := f.packUniforms(r.pool, lists); err != nil {
		return err
	}

	enc, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "rtsgfx_frame"})
	if err != nil {
		return fmt.Errorf("rtsgfx: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("rtsgfx_frame"); err != nil {
		return fmt.Errorf("rtsgfx: begin encoding: %w", err)
	}

	stats := FrameStats{Frame: r.frame, Fallbacks: r.rec.Fallbacks()}
	for _, t := range ordered {
		if err := r.encodeTarget(enc, t, f, &stats); err != nil {
			enc.DiscardEncoding()
			return err
		}
	}

	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("rtsgfx: end encoding: %w", err)
	}
	f.cmdBuf = cmdBuf
	index, err := r.dev.Queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("rtsgfx: submit: %w", err)
	}
	f.index = index
	f.retain(ordered)
	if r.surfaceView != nil {
		f.views = append(f.views, r.surfaceView)
		r.surfaceView = nil
	}
	ok = true
	r.pending = append(r.pending, f)

	stats.BindGroups = len(f.bindGroups)
	if f.uniforms != nil {
		stats.UniformBytes = f.uniforms.Size()
	}
	cs := r.cache.Stats()
	stats.Pipelines, stats.CacheHits, stats.CacheMisses = cs.Size, cs.Hits, cs.Misses
	ps := r.pool.Stats()
	stats.PoolEntries, stats.PoolBytes = ps.Entries, ps.UsedBytes
	r.stats = stats
	return nil
}

// encodeTarget records one render pass. The pipeline is only rebound when
// it differs from the previous command's.
func (r *Renderer) encodeTarget(enc hal.CommandEncoder, t *target.Target, f *frameResources, stats *FrameStats) error {
	cmds := t.Commands()
	if t.Kind == target.KindTexture && len(cmds) == 0 {
		return nil
	}
	desc, err := t.PassDescriptor()
	if err != nil {
		return err
	}
	stats.Targets = append(stats.Targets, TargetStats{Index: t.Index, Kind: t.Kind.String(), Commands: len(cmds)})
	stats.Commands += len(cmds)

	samplers := samplerSet{
		sampler:       r.sampler,
		shadowSampler: r.shadowSampler,
		placeholder:   r.white,
		shadowMap:     r.shadowMap(),
	}
	bounds := t.Bounds()

	pass := enc.BeginRenderPass(desc)
	defer pass.End()

	var bound *pipeline.Pipeline
	for _, cmd := range cmds {
		scissor := cmd.Clip.Intersect(bounds)
		if scissor.Empty() {
			continue
		}
		if cmd.Pipeline != bound {
			pass.SetPipeline(cmd.Pipeline.Handle())
			bound = cmd.Pipeline
			stats.PipelineBinds++
		}

		ug, err := f.uniformGroup(cmd.Pipeline.Program)
		if err != nil {
			return err
		}
		pass.SetBindGroup(0, ug, []uint32{cmd.VSOffset, cmd.FSOffset})
		tg, err := f.textureGroup(cmd, samplers)
		if err != nil {
			return err
		}
		pass.SetBindGroup(1, tg, nil)

		vp := cmd.Viewport
		if vp.Empty() {
			vp = bounds
		}
		pass.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.W), float32(vp.H), 0, 1)
		pass.SetScissorRect(uint32(scissor.X), uint32(scissor.Y), uint32(scissor.W), uint32(scissor.H))

		pass.SetVertexBuffer(0, cmd.VertexBuffer.Handle(), 0)
		if cmd.Indexed() {
			pass.SetIndexBuffer(cmd.IndexBuffer.Handle(), gputypes.IndexFormatUint16, 0)
			pass.DrawIndexed(cmd.Indices, 1, cmd.BaseElement, 0, 0)
		} else {
			pass.Draw(cmd.Vertices, 1, cmd.BaseElement, 0)
		}
		stats.Draws++
	}
	return nil
}

func (r *Renderer) shadowMap() *resource.Texture {
	if shadow, _ := r.targets.ShadowMaps(); shadow != nil {
		return shadow.Depth()
	}
	return r.blankShadow
}

// reclaim destroys the objects of frames the queue has finished. With all
// set every pending frame is reclaimed.
func (r *Renderer) reclaim(all bool) {
	if len(r.pending) == 0 {
		return
	}
	var done uint64
	if !all {
		done = r.dev.Queue.PollCompleted()
	}
	kept := r.pending[:0]
	for _, f := range r.pending {
		if all || f.index <= done {
			f.cleanup()
			continue
		}
		kept = append(kept, f)
	}
	clear(r.pending[len(kept):])
	r.pending = kept
}

func (r *Renderer) acquireSurface() error {
	s := r.opts.surface
	if s == nil {
		return nil
	}
	r.discardSurface()

	acquired, err := s.AcquireTexture(nil)
	if err != nil {
		return fmt.Errorf("rtsgfx: acquire surface texture: %w", err)
	}
	view, err := r.dev.Device.CreateTextureView(acquired.Texture, &hal.TextureViewDescriptor{
		Label:           "surface_view",
		Format:          r.formats.Color,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		s.DiscardTexture(acquired.Texture)
		return fmt.Errorf("rtsgfx: surface view: %w", err)
	}
	if acquired.Suboptimal {
		r.log.Debug("rtsgfx: suboptimal surface texture")
	}
	r.surfaceTex, r.surfaceView = acquired.Texture, view
	r.targets.SetSurfaceView(view)
	return nil
}

// discardSurface drops an acquired surface texture that was never
// presented.
func (r *Renderer) discardSurface() {
	if r.surfaceView != nil {
		r.dev.Device.DestroyTextureView(r.surfaceView)
		r.surfaceView = nil
	}
	if r.surfaceTex != nil {
		r.opts.surface.DiscardTexture(r.surfaceTex)
		r.surfaceTex = nil
	}
	if r.targets != nil {
		r.targets.SetSurfaceView(nil)
	}
}

// Flush presents the last submitted frame when rendering to a surface.
// With present false the surface texture is discarded instead. Without a
// surface Flush does nothing.
func (r *Renderer) Flush(present bool) error {
	if r.state == stateScene {
		return fmt.Errorf("%w: Flush while in scene", ErrSceneState)
	}
	if r.surfaceTex == nil {
		return nil
	}
	if !present || r.surfaceView != nil {
		// A view still held here was never submitted.
		r.discardSurface()
		return nil
	}

	tex := r.surfaceTex
	r.surfaceTex = nil
	r.targets.SetSurfaceView(nil)
	if err := r.dev.Queue.Present(r.opts.surface, tex, nil); err != nil {
		return r.deviceError(fmt.Errorf("rtsgfx: present: %w", err))
	}
	return nil
}

// ChangeSize resizes the default target. Pipelines and pooled buffers are
// dropped and rebuilt on demand.
func (r *Renderer) ChangeSize(width, height int) error {
	switch r.state {
	case stateScene:
		return fmt.Errorf("%w: ChangeSize while in scene", ErrSceneState)
	case stateUninitialized:
		return fmt.Errorf("%w: ChangeSize before Init", ErrSceneState)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, width, height)
	}
	if err := r.dev.Device.WaitIdle(); err != nil {
		return r.deviceError(fmt.Errorf("rtsgfx: wait idle: %w", err))
	}
	r.reclaim(true)
	r.discardSurface()
	r.cache.Reset()
	r.pool.Drain()
	if err := r.updateRenderMode(width, height); err != nil {
		return r.deviceError(err)
	}
	r.log.Info("rtsgfx: size changed", "width", width, "height", height)
	return nil
}

// Done releases every device object. The device itself stays open; close
// it with backend.Device.Close. After Done the renderer can be initialized
// again.
func (r *Renderer) Done() {
	if r.state == stateUninitialized {
		return
	}
	if err := r.dev.Device.WaitIdle(); err != nil {
		r.log.Warn("rtsgfx: wait idle", "err", err)
	}
	r.release()
	for t := range r.textures {
		t.res.Release()
		t.res = nil
		t.deleted = true
	}
	clear(r.textures)
	r.log.Info("rtsgfx: renderer released")
}

// Rebind points an uninitialized renderer at a new device, then
// initializes it at the previous size. Textures are recreated from their
// pixel data; render targets must be created again.
func (r *Renderer) Rebind(dev *backend.Device) error {
	if r.state != stateUninitialized {
		return fmt.Errorf("%w: Rebind while %s", ErrSceneState, r.state)
	}
	r.dev = dev
	if r.width == 0 || r.height == 0 {
		return nil
	}
	return r.Init(r.width, r.height)
}

// deviceError resets the renderer when err reports device loss. The
// returned error wraps ErrDeviceLost in that case.
func (r *Renderer) deviceError(err error) error {
	if err == nil || !errors.Is(err, hal.ErrDeviceLost) {
		return err
	}
	lost := fmt.Errorf("%w: %w", ErrDeviceLost, err)
	if rerr := r.resetDevice(lost); rerr != nil {
		return errors.Join(lost, rerr)
	}
	return lost
}

func (r *Renderer) resetDevice(cause error) error {
	r.log.Warn("rtsgfx: device lost, resetting", "err", cause)
	r.release()
	if r.opts.resetter == nil {
		return nil
	}
	dev, err := r.opts.resetter()
	if err != nil {
		return fmt.Errorf("rtsgfx: reopen device: %w", err)
	}
	if dev != r.dev {
		r.dev.Close()
	}
	if err := r.Rebind(dev); err != nil {
		return err
	}
	r.log.Info("rtsgfx: device reset", "backend", dev.Name)
	return nil
}

// Stats returns statistics of the last submitted frame.
func (r *Renderer) Stats() FrameStats {
	return r.stats
}
