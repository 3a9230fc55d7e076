// Package shader holds the fixed program table of the renderer.
//
// Each pipeline type maps to one embedded WGSL program. A program declares
// the vertex components it reads, the size of its vertex and fragment
// uniform blocks, and the textures it samples. Bind group layout is the
// same shape for every program:
//
//	group 0: binding 0 vertex params, binding 1 fragment params (dynamic offsets)
//	group 1: binding 0 sampler, bindings 1..N textures,
//	         then shadow map and comparison sampler when the program is shadowed
package shader

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/rtsgfx/gpucore"
)

//go:embed shaders/color_tex1.wgsl
var colorTex1Source string

//go:embed shaders/color_tex2.wgsl
var colorTex2Source string

//go:embed shaders/normal.wgsl
var normalSource string

//go:embed shaders/object_shadow.wgsl
var objectShadowSource string

//go:embed shaders/only_texture.wgsl
var onlyTextureSource string

//go:embed shaders/tile_map.wgsl
var tileMapSource string

// Entry points shared by all programs.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

// UniformAlign is the dynamic offset alignment of uniform blocks.
const UniformAlign = 256

// ErrUnknownProgram is returned for a pipeline type outside the table.
var ErrUnknownProgram = errors.New("shader: unknown program")

// Program describes one entry of the program table.
type Program struct {
	Type   gpucore.PipelineType
	Source string

	// Inputs are the vertex components the vertex stage reads.
	Inputs gpucore.VertexFormat

	// Textures is the number of sampled color textures.
	Textures int

	// Shadowed programs also bind the shadow map and a comparison sampler.
	Shadowed bool

	// DepthOnly programs have no color output.
	DepthOnly bool

	VSSize uint64
	FSSize uint64
}

var programs = [...]Program{
	gpucore.PipelineColorTex1: {
		Type:     gpucore.PipelineColorTex1,
		Source:   colorTex1Source,
		Inputs:   gpucore.VertexXYZDT1,
		Textures: 1,
		VSSize:   128,
		FSSize:   16,
	},
	gpucore.PipelineColorTex2: {
		Type:     gpucore.PipelineColorTex2,
		Source:   colorTex2Source,
		Inputs:   gpucore.VertexXYZDT2,
		Textures: 2,
		VSSize:   192,
		FSSize:   16,
	},
	gpucore.PipelineNormal: {
		Type:     gpucore.PipelineNormal,
		Source:   normalSource,
		Inputs:   gpucore.VertexXYZNT1,
		Textures: 1,
		Shadowed: true,
		VSSize:   256,
		FSSize:   144,
	},
	gpucore.PipelineObjectShadow: {
		Type:      gpucore.PipelineObjectShadow,
		Source:    objectShadowSource,
		Inputs:    gpucore.VertexXYZT1,
		Textures:  1,
		DepthOnly: true,
		VSSize:    128,
		FSSize:    16,
	},
	gpucore.PipelineOnlyTexture: {
		Type:     gpucore.PipelineOnlyTexture,
		Source:   onlyTextureSource,
		Inputs:   gpucore.VertexXYZT1,
		Textures: 1,
		VSSize:   128,
		FSSize:   32,
	},
	gpucore.PipelineTileMap: {
		Type:     gpucore.PipelineTileMap,
		Source:   tileMapSource,
		Inputs:   gpucore.VertexXYZT1,
		Textures: 2,
		Shadowed: true,
		VSSize:   144,
		FSSize:   48,
	},
}

// Lookup returns the program for a pipeline type.
func Lookup(t gpucore.PipelineType) (*Program, error) {
	if int(t) >= len(programs) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, t)
	}
	return &programs[t], nil
}

// Programs returns every program in pipeline type order.
func Programs() []*Program {
	out := make([]*Program, len(programs))
	for i := range programs {
		out[i] = &programs[i]
	}
	return out
}

// Accepts reports whether vertices of format f carry every input the
// program reads.
func (p *Program) Accepts(f gpucore.VertexFormat) bool {
	return f.Has(p.Inputs)
}

// TextureBinding returns the group 1 binding of texture slot i.
func (p *Program) TextureBinding(i int) uint32 {
	return uint32(1 + i)
}

// ShadowBindings returns the group 1 bindings of the shadow map and its
// comparison sampler.
func (p *Program) ShadowBindings() (texture, sampler uint32) {
	return uint32(1 + p.Textures), uint32(2 + p.Textures)
}

// AlignedSize rounds n up to the uniform offset alignment.
func AlignedSize(n uint64) uint64 {
	return (n + UniformAlign - 1) &^ (UniformAlign - 1)
}

// String returns the program name.
func (p *Program) String() string {
	return p.Type.String()
}
