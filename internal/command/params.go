package command

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/shader"
)

// block writes std140-compatible values into a uniform block.
type block struct {
	buf []byte
	off int
}

func newBlock(size uint64) *block {
	return &block{buf: make([]byte, size)}
}

func (b *block) f32(v float32) {
	binary.LittleEndian.PutUint32(b.buf[b.off:], math.Float32bits(v))
	b.off += 4
}

func (b *block) i32(v int32) {
	binary.LittleEndian.PutUint32(b.buf[b.off:], uint32(v))
	b.off += 4
}

func (b *block) vec4(x, y, z, w float32) {
	b.f32(x)
	b.f32(y)
	b.f32(z)
	b.f32(w)
}

func (b *block) color(c gpucore.Color) {
	b.vec4(c.R, c.G, c.B, c.A)
}

func (b *block) mat4(m gpucore.Mat4) {
	for _, v := range m {
		b.f32(v)
	}
}

// EncodeParams packs the vertex and fragment uniform blocks of prog from s.
// The layouts mirror the WGSL structs of the program table.
func EncodeParams(prog *shader.Program, s *State) (vs, fs []byte) {
	v := newBlock(prog.VSSize)
	f := newBlock(prog.FSSize)
	mvp := s.MVP()
	alpha := s.AlphaRef()

	switch prog.Type {
	case gpucore.PipelineColorTex1, gpucore.PipelineColorTex2:
		v.mat4(mvp)
		v.mat4(s.TextureTransforms[0])
		if prog.Type == gpucore.PipelineColorTex2 {
			v.mat4(s.TextureTransforms[1])
		}
		f.i32(int32(s.ColorMode))
		f.f32(alpha)
		f.f32(s.Tex2Lerp)

	case gpucore.PipelineNormal:
		v.mat4(mvp)
		v.mat4(s.World)
		v.mat4(s.ShadowMatrix)
		v.mat4(s.TextureTransforms[0])

		m, l := s.Material, s.Light
		f.color(m.Diffuse)
		f.color(m.Ambient)
		f.color(m.Specular)
		f.color(m.Emissive)
		f.vec4(l.Direction.X, l.Direction.Y, l.Direction.Z, 0)
		f.color(l.Diffuse)
		f.color(l.Ambient)
		f.color(l.Specular)
		f.f32(m.Power)
		f.f32(alpha)
		f.f32(s.ShadowIntensity)

	case gpucore.PipelineObjectShadow:
		v.mat4(mvp)
		v.mat4(s.TextureTransforms[0])
		f.f32(alpha)

	case gpucore.PipelineOnlyTexture:
		v.mat4(mvp)
		v.mat4(s.TextureTransforms[0])
		f.color(s.Material.Diffuse)
		f.f32(alpha)

	case gpucore.PipelineTileMap:
		v.mat4(mvp)
		v.mat4(s.ShadowMatrix)
		v.vec4(1/s.WorldSize[0], 1/s.WorldSize[1], 0, 0)
		f.color(s.TileColor)
		f.color(s.Light.Diffuse)
		f.f32(alpha)
		f.f32(s.ShadowIntensity)
	}
	return v.buf, f.buf
}
