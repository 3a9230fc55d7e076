package main

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/rtsgfx"
	"github.com/gogpu/rtsgfx/gpucore"
)

const (
	mapTiles = 16
	tileSize = 32
)

// scene holds the demo's GPU data: a tiled ground, a few lit unit boxes
// that cast shadows, glowing light blobs and a sprite overlay.
type scene struct {
	r   *rtsgfx.Renderer
	cfg rtsgfx.Config

	atlas  *rtsgfx.Texture
	glow   *rtsgfx.Texture
	icons  *rtsgfx.Texture
	ground *rtsgfx.VertexBuffer
	blob   *rtsgfx.VertexBuffer
	box    *rtsgfx.VertexBuffer
	caster *rtsgfx.VertexBuffer
	boxIdx *rtsgfx.IndexBuffer
	quad   *rtsgfx.IndexBuffer
}

func newScene(r *rtsgfx.Renderer, cfg rtsgfx.Config) (*scene, error) {
	s := &scene{r: r, cfg: cfg}
	var err error
	if s.atlas, err = r.CreateTextureFromImage(checker(64, 8,
		color.RGBA{70, 110, 60, 255}, color.RGBA{90, 130, 70, 255})); err != nil {
		return nil, err
	}
	if s.glow, err = r.CreateTextureFromImage(radial(32)); err != nil {
		return nil, err
	}
	if s.icons, err = r.CreateTextureFromImage(checker(16, 4,
		color.RGBA{220, 200, 80, 255}, color.RGBA{160, 40, 40, 255})); err != nil {
		return nil, err
	}

	world := float32(mapTiles * tileSize)
	if s.ground, err = r.NewVertexBuffer(gpucore.VertexXYZT1, quadXYZT1(0, 0, world, world, mapTiles), false); err != nil {
		return nil, err
	}
	if s.blob, err = r.NewVertexBuffer(gpucore.VertexXYZT1, quadXYZT1(0, 0, 1, 1, 1), false); err != nil {
		return nil, err
	}
	if s.quad, err = r.NewIndexBuffer([]uint16{0, 1, 2, 2, 1, 3}, false); err != nil {
		return nil, err
	}
	verts, indices := unitBox()
	if s.box, err = r.NewVertexBuffer(gpucore.VertexXYZNDT1, verts, false); err != nil {
		return nil, err
	}
	if s.caster, err = r.NewVertexBuffer(gpucore.VertexXYZT1, stripNormals(verts), false); err != nil {
		return nil, err
	}
	if s.boxIdx, err = r.NewIndexBuffer(indices, false); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *scene) release() {
	s.ground.Delete()
	s.blob.Delete()
	s.box.Delete()
	s.caster.Delete()
	s.boxIdx.Delete()
	s.quad.Delete()
	s.r.DeleteTexture(s.atlas)
	s.r.DeleteTexture(s.glow)
	s.r.DeleteTexture(s.icons)
}

// units are box positions in tiles.
var units = [][2]float32{{3, 4}, {5, 4}, {8, 9}, {12, 6}, {10, 12}}

func (s *scene) draw(frame int) error {
	r := s.r
	if err := r.BeginScene(); err != nil {
		return err
	}
	world := float32(mapTiles * tileSize)
	camera := gpucore.Ortho(0, world, world, 0, -64, 64)
	sun := gpucore.Ortho(-8, world+8, world+8, -8, -64, 64)
	r.SetWorldSize(world, world)

	if s.cfg.ShadowMapSize > 0 {
		if err := s.drawShadows(sun); err != nil {
			return err
		}
		if err := s.drawLights(camera, frame); err != nil {
			return err
		}
	}

	if err := r.Fill(gpucore.RGBA8(20, 24, 32, 255)); err != nil {
		return err
	}
	r.SetVPMatrix(camera)
	r.SetShadowMatrix(sun)
	r.SetShadowIntensity(0.6)
	if err := r.SetMaterialTilemap(s.atlas); err != nil {
		return err
	}
	if err := r.CreateCommand(s.ground, s.ground.Len(), s.quad, s.quad.Len()); err != nil {
		return err
	}
	r.SetMaterial(gpucore.DefaultMaterial())

	r.BeginDrawMesh(true)
	r.SetGlobalLight(gpucore.Light{
		Direction: gpucore.Vec3{X: 0.3, Y: 0.4, Z: -1},
		Diffuse:   gpucore.White,
		Ambient:   gpucore.Color{R: 0.35, G: 0.35, B: 0.4, A: 1},
	})
	for i, u := range units {
		r.SetWorldMatrix(unitMatrix(u, frame+i))
		if err := r.CreateCommand(s.box, s.box.Len(), s.boxIdx, s.boxIdx.Len()); err != nil {
			return err
		}
	}
	r.EndDrawMesh()

	hud := gpucore.Ortho2D(float32(s.cfg.Width), float32(s.cfg.Height))
	r.UseOrthographicProjection(&hud)
	r.SetBlendMode(gpucore.BlendAlpha)
	r.SetDepthMode(gpucore.DepthNone)
	icons := make([]rtsgfx.Sprite, len(units))
	for i := range icons {
		icons[i] = rtsgfx.Sprite{
			X: 8 + float32(i)*40, Y: 8, W: 32, H: 32,
			U1: 1, V1: 1, Color: gpucore.White,
		}
	}
	if err := r.DrawSprites(s.icons, icons); err != nil {
		return err
	}
	r.UseOrthographicProjection(nil)
	return r.EndScene()
}

func (s *scene) drawShadows(sun gpucore.Mat4) error {
	r := s.r
	if err := r.BeginDrawShadow(false); err != nil {
		return err
	}
	defer r.EndDrawShadow()
	r.SetVPMatrix(sun)
	for i, u := range units {
		r.SetWorldMatrix(unitMatrix(u, i))
		if err := r.CreateCommand(s.caster, s.caster.Len(), s.boxIdx, s.boxIdx.Len()); err != nil {
			return err
		}
	}
	return nil
}

func (s *scene) drawLights(camera gpucore.Mat4, frame int) error {
	r := s.r
	if err := r.BeginDrawShadow(true); err != nil {
		return err
	}
	defer r.EndDrawShadow()
	r.SetVPMatrix(camera)
	r.SetBlendMode(gpucore.BlendAdd)
	pulse := 1 + 0.25*float32(math.Sin(float64(frame)/4))
	for _, u := range units {
		size := 3 * tileSize * pulse
		m := gpucore.Translate(u[0]*tileSize-size/2, u[1]*tileSize-size/2, 0).Mul(gpucore.Scale(size, size, 1))
		r.SetWorldMatrix(m)
		if err := r.SetTexture(0, s.glow); err != nil {
			return err
		}
		if err := r.CreateCommand(s.blob, s.blob.Len(), s.quad, s.quad.Len()); err != nil {
			return err
		}
	}
	r.SetWorldMatrix(gpucore.Identity())
	return nil
}

func unitMatrix(tile [2]float32, phase int) gpucore.Mat4 {
	bob := float32(math.Sin(float64(phase)/3)) * 2
	return gpucore.Translate(tile[0]*tileSize, tile[1]*tileSize, bob).Mul(gpucore.Scale(tileSize*0.8, tileSize*0.8, tileSize*0.8))
}

// checker draws a w×w checkerboard with cells of n pixels.
func checker(w, n int, a, b color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, w))
	for y := range w {
		for x := range w {
			c := a
			if (x/n+y/n)%2 == 1 {
				c = b
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// radial draws a white disc fading out towards the edge.
func radial(w int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, w))
	half := float64(w) / 2
	for y := range w {
		for x := range w {
			d := math.Hypot(float64(x)+0.5-half, float64(y)+0.5-half) / half
			a := uint8(255 * math.Max(0, 1-d))
			img.SetRGBA(x, y, color.RGBA{a, a, a, a})
		}
	}
	return img
}

func putFloats(dst []byte, vs ...float32) []byte {
	for _, v := range vs {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// quadXYZT1 encodes a rectangle with texture coordinates repeating uv
// times: top-left, top-right, bottom-left, bottom-right.
func quadXYZT1(x, y, w, h, uv float32) []byte {
	out := make([]byte, 0, 4*gpucore.VertexXYZT1.Stride())
	out = putFloats(out, x, y, 0, 0, 0)
	out = putFloats(out, x+w, y, 0, uv, 0)
	out = putFloats(out, x, y+h, 0, 0, uv)
	out = putFloats(out, x+w, y+h, 0, uv, uv)
	return out
}

// unitBox returns a unit cube on the ground plane as XYZNDT1 vertices.
func unitBox() ([]byte, []uint16) {
	faces := [6]struct{ n, u, v [3]float32 }{
		{[3]float32{0, 0, 1}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
		{[3]float32{0, 0, -1}, [3]float32{0, 1, 0}, [3]float32{1, 0, 0}},
		{[3]float32{1, 0, 0}, [3]float32{0, 1, 0}, [3]float32{0, 0, 1}},
		{[3]float32{-1, 0, 0}, [3]float32{0, 0, 1}, [3]float32{0, 1, 0}},
		{[3]float32{0, 1, 0}, [3]float32{0, 0, 1}, [3]float32{1, 0, 0}},
		{[3]float32{0, -1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, 1}},
	}
	col := [4]byte{200, 190, 170, 255}
	var verts []byte
	var indices []uint16
	for i, f := range faces {
		for _, c := range [4][2]float32{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
			var p [3]float32
			for k := range p {
				// Cube spans [0,1] with the face at n.
				p[k] = 0.5 + 0.5*f.n[k] + (c[0]-0.5)*f.u[k] + (c[1]-0.5)*f.v[k]
			}
			verts = putFloats(verts, p[0], p[1], p[2], f.n[0], f.n[1], f.n[2])
			verts = append(verts, col[:]...)
			verts = putFloats(verts, c[0], c[1])
		}
		base := uint16(i * 4)
		indices = append(indices, base, base+1, base+2, base+2, base+1, base+3)
	}
	return verts, indices
}

// stripNormals converts XYZNDT1 vertices to XYZT1 for the shadow pass.
func stripNormals(src []byte) []byte {
	in := int(gpucore.VertexXYZNDT1.Stride())
	out := make([]byte, 0, len(src)/in*int(gpucore.VertexXYZT1.Stride()))
	for off := 0; off+in <= len(src); off += in {
		v := src[off : off+in]
		out = append(out, v[0:12]...)
		out = append(out, v[28:36]...)
	}
	return out
}
