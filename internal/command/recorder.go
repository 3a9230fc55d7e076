package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/pipeline"
	"github.com/gogpu/rtsgfx/internal/pool"
	"github.com/gogpu/rtsgfx/internal/resource"
)

// Recorder errors.
var (
	// ErrInvalidDraw is returned for draws without vertices.
	ErrInvalidDraw = errors.New("command: draw has no vertices")

	// ErrInvalidSlot is returned for texture slots outside [0, MaxTextures).
	ErrInvalidSlot = errors.New("command: texture slot out of range")
)

// maxBatchVertices is the vertex ceiling of one batch; indices are 16-bit.
const maxBatchVertices = 1 << 16

// Resolver resolves pipeline contexts.
type Resolver interface {
	Get(ctx gpucore.PipelineContext) (*pipeline.Pipeline, error)
}

// Uploader lends buffers for batched geometry.
type Uploader interface {
	PrepareBuffer(data []byte, length uint64, dynamic bool, usage pool.Usage) (*pool.Entry, error)
}

// Sink receives finished commands for a render target.
type Sink interface {
	Append(target int, cmd *Command) error
}

// Config configures a Recorder.
type Config struct {
	Resolver Resolver
	Uploader Uploader
	Sink     Sink
	Logger   *slog.Logger
}

// Recorder turns state changes and draws into commands.
//
// Setters never fail. When closing a pending batch fails, the error is kept
// and returned by every later CreateCommand and by Finish, so a frame with
// a failed draw is never submitted partially.
type Recorder struct {
	resolver Resolver
	uploader Uploader
	sink     Sink
	log      *slog.Logger

	state State
	batch batch
	last  *pipeline.Pipeline
	err   error

	commands  int
	fallbacks int
}

// NewRecorder creates a recorder. Reset must be called before recording.
func NewRecorder(cfg Config) *Recorder {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		resolver: cfg.Resolver,
		uploader: cfg.Uploader,
		sink:     cfg.Sink,
		log:      log,
		state:    DefaultState(gpucore.Rect{}),
	}
}

// Reset restores the default state for a new scene and drops any pending
// batch and error.
func (r *Recorder) Reset(viewport gpucore.Rect) {
	r.state = DefaultState(viewport)
	r.batch.reset()
	r.last = nil
	r.err = nil
	r.commands = 0
	r.fallbacks = 0
}

// State returns a copy of the active state.
func (r *Recorder) State() State {
	return r.state
}

// Err returns the sticky recording error, if any.
func (r *Recorder) Err() error {
	return r.err
}

// Commands returns the number of commands recorded since Reset.
func (r *Recorder) Commands() int {
	return r.commands
}

// Fallbacks returns how many commands fell back to the default pipeline
// type since Reset.
func (r *Recorder) Fallbacks() int {
	return r.fallbacks
}

// Last returns the pipeline of the most recent command.
func (r *Recorder) Last() *pipeline.Pipeline {
	return r.last
}

// Finish closes the pending batch and returns the sticky error.
func (r *Recorder) Finish() error {
	r.flush()
	return r.err
}

// Flush closes the pending batch.
func (r *Recorder) Flush() {
	r.flush()
}

// set updates one state field, closing the pending batch first when the
// value changes.
func set[T comparable](r *Recorder, field *T, v T) {
	if *field == v {
		return
	}
	r.flush()
	*field = v
}

// SetVPMatrix sets the view-projection matrix.
func (r *Recorder) SetVPMatrix(m gpucore.Mat4) { set(r, &r.state.VP, m) }

// SetWorldMatrix sets the world matrix.
func (r *Recorder) SetWorldMatrix(m gpucore.Mat4) { set(r, &r.state.World, m) }

// UseOrthographic replaces VP * World with m; a nil m restores it.
func (r *Recorder) UseOrthographic(m *gpucore.Mat4) {
	if m == nil {
		set(r, &r.state.Ortho, false)
		return
	}
	set(r, &r.state.OrthoVP, *m)
	set(r, &r.state.Ortho, true)
}

// SetColorMode sets how texture and vertex colors combine.
func (r *Recorder) SetColorMode(m gpucore.ColorMode) { set(r, &r.state.ColorMode, m) }

// SetMaterial sets the active material.
func (r *Recorder) SetMaterial(m gpucore.Material) { set(r, &r.state.Material, m) }

// SetTex2Lerp sets the second texture mix factor; negative disables it.
func (r *Recorder) SetTex2Lerp(v float32) {
	if v < 0 {
		v = -1
	}
	set(r, &r.state.Tex2Lerp, v)
}

// SetAlphaTest sets the alpha discard mode.
func (r *Recorder) SetAlphaTest(m gpucore.AlphaTestMode) { set(r, &r.state.AlphaTest, m) }

// SetBlendMode sets the blend mode.
func (r *Recorder) SetBlendMode(m gpucore.BlendMode) { set(r, &r.state.Blend, m) }

// SetCullMode sets the cull mode.
func (r *Recorder) SetCullMode(m gpucore.CullMode) { set(r, &r.state.Cull, m) }

// SetDepthMode sets depth test and write.
func (r *Recorder) SetDepthMode(m gpucore.DepthMode) { set(r, &r.state.Depth, m) }

// SetPath sets the draw path.
func (r *Recorder) SetPath(p DrawPath) { set(r, &r.state.Path, p) }

// SetTileColor sets the tile map modulation color.
func (r *Recorder) SetTileColor(c gpucore.Color) { set(r, &r.state.TileColor, c) }

// SetLight sets the global directional light.
func (r *Recorder) SetLight(l gpucore.Light) { set(r, &r.state.Light, l) }

// SetShadowMatrix sets the light-space matrix used to sample the shadow map.
func (r *Recorder) SetShadowMatrix(m gpucore.Mat4) { set(r, &r.state.ShadowMatrix, m) }

// SetShadowIntensity sets how dark shadowed fragments get, in [0, 1].
func (r *Recorder) SetShadowIntensity(k float32) {
	set(r, &r.state.ShadowIntensity, min(max(k, 0), 1))
}

// SetWorldSize sets the world extent used to map the light map.
func (r *Recorder) SetWorldSize(w, h float32) {
	if w <= 0 || h <= 0 {
		return
	}
	set(r, &r.state.WorldSize, [2]float32{w, h})
}

// SetViewport sets the viewport rectangle.
func (r *Recorder) SetViewport(v gpucore.Rect) { set(r, &r.state.Viewport, v) }

// SetClip sets the scissor rectangle.
func (r *Recorder) SetClip(c gpucore.Rect) { set(r, &r.state.Clip, c) }

// SetTarget redirects recording to another render target.
func (r *Recorder) SetTarget(index int) { set(r, &r.state.Target, index) }

// SetTexture binds tex to slot. Bindings last until the next CreateCommand.
func (r *Recorder) SetTexture(slot int, tex *resource.Texture) error {
	if slot < 0 || slot >= gpucore.MaxTextures {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	set(r, &r.state.Textures[slot], tex)
	return nil
}

// SetTextureTransform sets the texture coordinate transform of slot.
func (r *Recorder) SetTextureTransform(slot int, m gpucore.Mat4) error {
	if slot < 0 || slot >= gpucore.MaxTextures {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	set(r, &r.state.TextureTransforms[slot], m)
	return nil
}

// CreateCommand closes the pending batch, then records d with a copy of the
// active state and appends it to the active target. Buffer and texture
// bindings are reset afterwards; transforms, material and modes carry over.
// Closing a batch leaves the texture bindings alone, so slots bound before
// the batch closed still reach d.
//
// If the pipeline for the derived type cannot be created, the default
// pipeline type is tried once before the error is returned.
func (r *Recorder) CreateCommand(d Draw) (*Command, error) {
	if d.Vertices == nil || d.VertexCount <= 0 {
		return nil, ErrInvalidDraw
	}
	r.flush()
	if r.err != nil {
		return nil, r.err
	}
	cmd, err := r.record(d)
	if err != nil {
		r.err = err
		return nil, err
	}
	r.state.Textures = [gpucore.MaxTextures]*resource.Texture{}
	return cmd, nil
}

func (r *Recorder) record(d Draw) (*Command, error) {
	if d.Vertices == nil || d.VertexCount <= 0 {
		return nil, ErrInvalidDraw
	}
	s := r.state
	p, err := r.resolve(s.Context(d.Primitive, d.Format))
	if err != nil {
		return nil, err
	}

	cmd := &Command{
		Pipeline:     p,
		Target:       s.Target,
		VertexBuffer: d.Vertices.Retain(),
		BaseElement:  uint32(d.Base),
		Vertices:     uint32(d.VertexCount),
		Viewport:     s.Viewport,
		Clip:         s.Clip,
		State:        s,
	}
	if d.Indices != nil && d.IndexCount > 0 {
		cmd.IndexBuffer = d.Indices.Retain()
		cmd.Indices = uint32(d.IndexCount)
	}
	for i, tex := range s.Textures {
		cmd.Textures[i] = tex.Retain()
	}
	cmd.VSParams, cmd.FSParams = EncodeParams(p.Program.Program, &s)

	if err := r.sink.Append(s.Target, cmd); err != nil {
		cmd.Release()
		return nil, err
	}
	r.last = p
	r.commands++
	return cmd, nil
}

func (r *Recorder) resolve(ctx gpucore.PipelineContext) (*pipeline.Pipeline, error) {
	p, err := r.resolver.Get(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gpucore.ErrPipelineCreation) || ctx.Type == gpucore.PipelineDefault {
		return nil, err
	}
	fallback := ctx
	fallback.Type = gpucore.PipelineDefault
	p, ferr := r.resolver.Get(fallback)
	if ferr != nil {
		return nil, err
	}
	r.fallbacks++
	r.log.Warn("command: pipeline fallback", "from", ctx.String(), "to", fallback.String(), "err", err)
	return p, nil
}

// Append adds geometry to the sprite batch. indices are relative to the
// first appended vertex. The batch is closed first when the primitive or
// format changes or the 16-bit index range would overflow.
func (r *Recorder) Append(prim gpucore.PrimitiveType, format gpucore.VertexFormat, vertices []byte, indices []uint16) {
	stride := int(format.Stride())
	if stride == 0 || len(vertices) < stride {
		return
	}
	n := len(vertices) / stride
	b := &r.batch
	if b.count > 0 && (b.primitive != prim || b.format != format || b.count+n > maxBatchVertices) {
		r.flush()
	}
	if b.count == 0 {
		b.primitive, b.format = prim, format
	}
	base := uint16(b.count)
	b.vertices = append(b.vertices, vertices[:n*stride]...)
	for _, i := range indices {
		b.indices = append(b.indices, base+i)
	}
	b.count += n
}

// Pending returns the number of vertices waiting in the batch.
func (r *Recorder) Pending() int {
	return r.batch.count
}

func (r *Recorder) flush() {
	b := &r.batch
	if b.count == 0 {
		return
	}
	defer b.reset()
	if r.err != nil {
		return
	}
	if err := r.flushBatch(b); err != nil {
		r.err = err
		r.log.Warn("command: batch flush failed", "err", err)
	}
}

func (r *Recorder) flushBatch(b *batch) error {
	vb, err := r.uploader.PrepareBuffer(b.vertices, uint64(len(b.vertices)), true, pool.UsageVertex)
	if err != nil {
		return fmt.Errorf("command: batch vertices: %w", err)
	}
	d := Draw{
		Primitive:   b.primitive,
		Format:      b.format,
		Vertices:    vb.Resource(),
		VertexCount: b.count,
	}
	if len(b.indices) > 0 {
		raw := make([]byte, len(b.indices)*2)
		for i, v := range b.indices {
			binary.LittleEndian.PutUint16(raw[i*2:], v)
		}
		ib, err := r.uploader.PrepareBuffer(raw, uint64(len(raw)), true, pool.UsageIndex)
		if err != nil {
			return fmt.Errorf("command: batch indices: %w", err)
		}
		d.Indices = ib.Resource()
		d.IndexCount = len(b.indices)
	}
	_, err = r.record(d)
	return err
}

// batch accumulates sprite geometry sharing one primitive and format.
type batch struct {
	primitive gpucore.PrimitiveType
	format    gpucore.VertexFormat
	vertices  []byte
	indices   []uint16
	count     int
}

func (b *batch) reset() {
	b.vertices = b.vertices[:0]
	b.indices = b.indices[:0]
	b.count = 0
}
