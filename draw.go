package rtsgfx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/command"
	"github.com/gogpu/rtsgfx/internal/resource"
)

// savedState is what BeginDrawMesh and BeginDrawShadow restore.
type savedState struct {
	path     command.DrawPath
	depth    gpucore.DepthMode
	cull     gpucore.CullMode
	material gpucore.Material
	target   int
	viewport gpucore.Rect
	clip     gpucore.Rect
}

func (r *Renderer) push() {
	s := r.rec.State()
	r.saved = append(r.saved, savedState{
		path:     s.Path,
		depth:    s.Depth,
		cull:     s.Cull,
		material: s.Material,
		target:   s.Target,
		viewport: s.Viewport,
		clip:     s.Clip,
	})
}

func (r *Renderer) pop() {
	if len(r.saved) == 0 {
		return
	}
	s := r.saved[len(r.saved)-1]
	r.saved = r.saved[:len(r.saved)-1]
	r.rec.SetPath(s.path)
	r.rec.SetDepthMode(s.depth)
	r.rec.SetCullMode(s.cull)
	r.rec.SetMaterial(s.material)
	r.rec.SetTarget(s.target)
	r.rec.SetViewport(s.viewport)
	r.rec.SetClip(s.clip)
	if r.state != stateUninitialized {
		_ = r.targets.SetActive(s.target)
	}
}

// SetVPMatrix sets the view-projection matrix.
func (r *Renderer) SetVPMatrix(m gpucore.Mat4) { r.rec.SetVPMatrix(m) }

// SetWorldMatrix sets the world matrix.
func (r *Renderer) SetWorldMatrix(m gpucore.Mat4) { r.rec.SetWorldMatrix(m) }

// UseOrthographicProjection replaces VP * World with m until called with
// nil.
func (r *Renderer) UseOrthographicProjection(m *gpucore.Mat4) { r.rec.UseOrthographic(m) }

// SetColorMode sets how texture and vertex colors combine.
func (r *Renderer) SetColorMode(m gpucore.ColorMode) { r.rec.SetColorMode(m) }

// SetMaterial sets the active material.
func (r *Renderer) SetMaterial(m gpucore.Material) { r.rec.SetMaterial(m) }

// SetTex2Lerp mixes texture slot 1 in by v; negative values disable it.
func (r *Renderer) SetTex2Lerp(v float32) { r.rec.SetTex2Lerp(v) }

// SetAlphaTest sets the alpha discard mode.
func (r *Renderer) SetAlphaTest(m gpucore.AlphaTestMode) { r.rec.SetAlphaTest(m) }

// SetBlendMode sets the blend mode.
func (r *Renderer) SetBlendMode(m gpucore.BlendMode) { r.rec.SetBlendMode(m) }

// SetCullMode sets the cull mode.
func (r *Renderer) SetCullMode(m gpucore.CullMode) { r.rec.SetCullMode(m) }

// SetDepthMode sets depth test and write.
func (r *Renderer) SetDepthMode(m gpucore.DepthMode) { r.rec.SetDepthMode(m) }

// SetTileColor sets the tile map modulation color.
func (r *Renderer) SetTileColor(c gpucore.Color) { r.rec.SetTileColor(c) }

// SetGlobalLight sets the directional light of lit materials.
func (r *Renderer) SetGlobalLight(l gpucore.Light) { r.rec.SetLight(l) }

// SetShadowMatrix sets the light-space matrix used to sample the shadow
// map.
func (r *Renderer) SetShadowMatrix(m gpucore.Mat4) { r.rec.SetShadowMatrix(m) }

// SetShadowIntensity sets how dark shadowed fragments get, in [0, 1].
func (r *Renderer) SetShadowIntensity(k float32) { r.rec.SetShadowIntensity(k) }

// SetWorldSize sets the world extent the light map covers.
func (r *Renderer) SetWorldSize(w, h float32) { r.rec.SetWorldSize(w, h) }

// SetViewport sets the viewport rectangle.
func (r *Renderer) SetViewport(v gpucore.Rect) { r.rec.SetViewport(v) }

// SetClipRect limits drawing to c.
func (r *Renderer) SetClipRect(c gpucore.Rect) { r.rec.SetClip(c) }

// GetClipRect returns the active clip rectangle.
func (r *Renderer) GetClipRect() gpucore.Rect { return r.rec.State().Clip }

// SetTexture binds t to slot for the next draw. Bindings are cleared
// after every command; a nil t samples white.
func (r *Renderer) SetTexture(slot int, t *Texture) error {
	res, err := r.bindable(t)
	if err != nil {
		return err
	}
	return r.rec.SetTexture(slot, res)
}

// SetTextureTransform sets the texture coordinate transform of slot.
func (r *Renderer) SetTextureTransform(slot int, m gpucore.Mat4) error {
	return r.rec.SetTextureTransform(slot, m)
}

// SetClearColor sets the color the active render target is cleared to at
// the start of its pass.
func (r *Renderer) SetClearColor(c gpucore.Color) error {
	if r.state == stateUninitialized {
		return fmt.Errorf("%w: SetClearColor before Init", ErrSceneState)
	}
	t, err := r.targets.Get(r.targets.Active())
	if err != nil {
		return err
	}
	t.ClearColor = c
	return nil
}

// BeginDrawMesh switches to the mesh path: depth tested and written,
// clockwise faces culled. With lit set the material becomes lit.
// EndDrawMesh restores the previous state.
func (r *Renderer) BeginDrawMesh(lit bool) {
	r.push()
	r.rec.SetPath(command.PathMesh)
	r.rec.SetDepthMode(gpucore.DepthTestWrite)
	r.rec.SetCullMode(gpucore.CullCW)
	if lit {
		m := r.rec.State().Material
		m.Type = gpucore.MaterialLit
		r.rec.SetMaterial(m)
	}
}

// EndDrawMesh ends the mesh path.
func (r *Renderer) EndDrawMesh() {
	r.rec.Flush()
	r.pop()
}

// BeginDrawShadow redirects drawing into the shadow map, or into the light
// map with lightMap set. Casters should be drawn with the light's
// view-projection. EndDrawShadow returns to the previous target.
func (r *Renderer) BeginDrawShadow(lightMap bool) error {
	if r.state == stateUninitialized {
		return fmt.Errorf("%w: BeginDrawShadow before Init", ErrSceneState)
	}
	shadow, light := r.targets.ShadowMaps()
	if shadow == nil || light == nil {
		return fmt.Errorf("%w: no shadow maps, call CreateShadowTexture", ErrSceneState)
	}
	t, path := shadow, command.PathShadow
	if lightMap {
		t, path = light, command.PathLight
	}
	r.push()
	r.rec.SetTarget(t.Index)
	r.rec.SetPath(path)
	r.rec.SetViewport(t.Bounds())
	r.rec.SetClip(t.Bounds())
	return r.targets.SetActive(t.Index)
}

// EndDrawShadow ends shadow or light map drawing.
func (r *Renderer) EndDrawShadow() {
	r.rec.Flush()
	r.pop()
}

// CreateShadowTexture creates (or recreates) square shadow and light maps.
func (r *Renderer) CreateShadowTexture(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: shadow map size %d", ErrInvalidConfig, size)
	}
	if r.state == stateUninitialized {
		return fmt.Errorf("%w: CreateShadowTexture before Init", ErrSceneState)
	}
	r.rec.Flush()
	if err := r.targets.CreateShadowMaps(uint32(size)); err != nil {
		return err
	}
	r.opts.shadowSize = uint32(size)
	return nil
}

// SetMaterialTilemap selects the tile map program for the next draw with
// tiles as its atlas. The light map, when present, is bound as the second
// texture.
func (r *Renderer) SetMaterialTilemap(tiles *Texture) error {
	if r.state == stateUninitialized {
		return fmt.Errorf("%w: SetMaterialTilemap before Init", ErrSceneState)
	}
	res, err := r.bindable(tiles)
	if err != nil {
		return err
	}
	m := r.rec.State().Material
	m.Type = gpucore.MaterialTileMap
	r.rec.SetMaterial(m)
	if err := r.rec.SetTexture(0, res); err != nil {
		return err
	}
	var lightMap *resource.Texture
	if _, light := r.targets.ShadowMaps(); light != nil {
		lightMap = light.Color()
	}
	return r.rec.SetTexture(1, lightMap)
}

// CreateRenderTarget makes a render texture drawable and returns its
// target index.
func (r *Renderer) CreateRenderTarget(color *Texture) (int, error) {
	if r.state == stateUninitialized {
		return -1, fmt.Errorf("%w: CreateRenderTarget before Init", ErrSceneState)
	}
	if color == nil || !color.render {
		return -1, fmt.Errorf("%w: not a render texture", ErrInvalidTexture)
	}
	res, err := r.bindable(color)
	if err != nil {
		return -1, err
	}
	return r.targets.Create(res, nil)
}

// SetRenderTarget redirects drawing into the target at index. Viewport and
// clip are set to the full target.
func (r *Renderer) SetRenderTarget(index int) error {
	if r.state == stateUninitialized {
		return fmt.Errorf("%w: SetRenderTarget before Init", ErrSceneState)
	}
	t, err := r.targets.Get(index)
	if err != nil {
		return err
	}
	if err := r.targets.SetActive(index); err != nil {
		return err
	}
	r.rec.SetTarget(index)
	r.rec.SetViewport(t.Bounds())
	r.rec.SetClip(t.Bounds())
	return nil
}

// RestoreRenderTarget returns drawing to the default target.
func (r *Renderer) RestoreRenderTarget() {
	_ = r.SetRenderTarget(0)
}

// DeleteRenderTarget removes a render target. Commands already recorded
// for it in the current frame are dropped.
func (r *Renderer) DeleteRenderTarget(index int) error {
	if r.state == stateUninitialized {
		return fmt.Errorf("%w: DeleteRenderTarget before Init", ErrSceneState)
	}
	if r.rec.State().Target == index {
		r.RestoreRenderTarget()
	}
	return r.targets.Delete(index)
}

// Sprite is a textured screen-space quad.
type Sprite struct {
	X, Y, W, H     float32
	U0, V0, U1, V1 float32
	Z              float32
	Color          gpucore.Color
}

var quadIndices = []uint16{0, 1, 2, 2, 1, 3}

// DrawSprite adds a quad to the sprite batch. Consecutive sprites with the
// same texture and state draw as one command.
func (r *Renderer) DrawSprite(tex *Texture, s Sprite) error {
	return r.DrawSprites(tex, []Sprite{s})
}

// DrawSprites adds quads sharing one texture to the sprite batch.
func (r *Renderer) DrawSprites(tex *Texture, sprites []Sprite) error {
	if r.state != stateScene {
		return fmt.Errorf("%w: draw outside a scene", ErrSceneState)
	}
	if err := r.SetTexture(0, tex); err != nil {
		return err
	}
	for _, s := range sprites {
		r.rec.Append(gpucore.PrimitiveTriangles, gpucore.VertexXYZDT1, spriteVertices(s), quadIndices)
	}
	return r.rec.Err()
}

// Fill covers the viewport with c, ignoring depth, blending and the
// current transforms.
func (r *Renderer) Fill(c gpucore.Color) error {
	if r.state != stateScene {
		return fmt.Errorf("%w: Fill outside a scene", ErrSceneState)
	}
	s := r.rec.State()
	identity := gpucore.Identity()
	r.rec.UseOrthographic(&identity)
	r.rec.SetDepthMode(gpucore.DepthNone)
	r.rec.SetBlendMode(gpucore.BlendNone)
	r.rec.SetCullMode(gpucore.CullNone)
	r.rec.SetMaterial(gpucore.DefaultMaterial())
	r.rec.SetTex2Lerp(-1)
	r.rec.SetPath(command.PathNormal)
	_ = r.rec.SetTexture(0, nil)

	r.rec.Append(gpucore.PrimitiveTriangles, gpucore.VertexXYZDT1, spriteVertices(Sprite{
		X: -1, Y: -1, W: 2, H: 2, U1: 1, V1: 1, Color: c,
	}), quadIndices)
	r.rec.Flush()

	if s.Ortho {
		r.rec.UseOrthographic(&s.OrthoVP)
	} else {
		r.rec.UseOrthographic(nil)
	}
	r.rec.SetDepthMode(s.Depth)
	r.rec.SetBlendMode(s.Blend)
	r.rec.SetCullMode(s.Cull)
	r.rec.SetMaterial(s.Material)
	r.rec.SetTex2Lerp(s.Tex2Lerp)
	r.rec.SetPath(s.Path)
	for i, tex := range s.Textures {
		_ = r.rec.SetTexture(i, tex)
	}
	return r.rec.Err()
}

// spriteVertices encodes the corners of s as XYZDT1 vertices: top-left,
// top-right, bottom-left, bottom-right.
func spriteVertices(s Sprite) []byte {
	col := packColor(s.Color)
	corners := [4][4]float32{
		{s.X, s.Y, s.U0, s.V0},
		{s.X + s.W, s.Y, s.U1, s.V0},
		{s.X, s.Y + s.H, s.U0, s.V1},
		{s.X + s.W, s.Y + s.H, s.U1, s.V1},
	}
	out := make([]byte, 0, 4*gpucore.VertexXYZDT1.Stride())
	for _, c := range corners {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(c[0]))
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(c[1]))
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(s.Z))
		out = append(out, col[:]...)
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(c[2]))
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(c[3]))
	}
	return out
}

// packColor converts c to Unorm8x4 bytes.
func packColor(c gpucore.Color) [4]byte {
	u8 := func(v float32) byte {
		return byte(min(max(v, 0), 1)*255 + 0.5)
	}
	return [4]byte{u8(c.R), u8(c.G), u8(c.B), u8(c.A)}
}
