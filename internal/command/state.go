package command

import (
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/resource"
)

// DrawPath selects how the active state maps to a pipeline type.
type DrawPath uint8

// Draw paths.
const (
	// PathNormal draws 2D and unlit geometry.
	PathNormal DrawPath = iota
	// PathMesh draws depth-tested 3D meshes.
	PathMesh
	// PathShadow draws casters into the shadow map.
	PathShadow
	// PathLight draws into the light map.
	PathLight
)

// String returns a human-readable name.
func (p DrawPath) String() string {
	switch p {
	case PathNormal:
		return "normal"
	case PathMesh:
		return "mesh"
	case PathShadow:
		return "shadow"
	case PathLight:
		return "light"
	default:
		return "unknown"
	}
}

// State is the active render state. Commands carry a copy of it.
type State struct {
	VP    gpucore.Mat4
	World gpucore.Mat4

	// Ortho replaces VP * World with OrthoVP.
	Ortho   bool
	OrthoVP gpucore.Mat4

	Textures          [gpucore.MaxTextures]*resource.Texture
	TextureTransforms [gpucore.MaxTextures]gpucore.Mat4

	Material  gpucore.Material
	Light     gpucore.Light
	TileColor gpucore.Color

	AlphaTest gpucore.AlphaTestMode
	ColorMode gpucore.ColorMode
	Blend     gpucore.BlendMode
	Cull      gpucore.CullMode
	Depth     gpucore.DepthMode
	Path      DrawPath

	// Tex2Lerp mixes texture slot 1 by a constant when >= 0.
	Tex2Lerp float32

	ShadowMatrix    gpucore.Mat4
	ShadowIntensity float32
	WorldSize       [2]float32

	Viewport gpucore.Rect
	Clip     gpucore.Rect
	Target   int
}

// DefaultState returns the state every scene starts from.
func DefaultState(viewport gpucore.Rect) State {
	s := State{
		VP:              gpucore.Identity(),
		World:           gpucore.Identity(),
		OrthoVP:         gpucore.Identity(),
		Material:        gpucore.DefaultMaterial(),
		Light:           gpucore.DefaultLight(),
		TileColor:       gpucore.White,
		ColorMode:       gpucore.ColorModulate,
		Tex2Lerp:        -1,
		ShadowMatrix:    gpucore.Identity(),
		ShadowIntensity: 0.5,
		WorldSize:       [2]float32{1, 1},
		Viewport:        viewport,
		Clip:            viewport,
	}
	for i := range s.TextureTransforms {
		s.TextureTransforms[i] = gpucore.Identity()
	}
	return s
}

// MVP returns the combined model-view-projection matrix.
func (s *State) MVP() gpucore.Mat4 {
	if s.Ortho {
		return s.OrthoVP
	}
	return s.VP.Mul(s.World)
}

// PipelineType derives the program from the draw path and material.
func (s *State) PipelineType() gpucore.PipelineType {
	switch s.Path {
	case PathShadow:
		return gpucore.PipelineObjectShadow
	case PathLight:
		return gpucore.PipelineOnlyTexture
	}
	switch s.Material.Type {
	case gpucore.MaterialLit:
		return gpucore.PipelineNormal
	case gpucore.MaterialTileMap:
		return gpucore.PipelineTileMap
	}
	if s.Tex2Lerp >= 0 {
		return gpucore.PipelineColorTex2
	}
	return gpucore.PipelineColorTex1
}

// Mode returns the fixed-function part of the pipeline context.
func (s *State) Mode() gpucore.PipelineMode {
	if s.Path == PathShadow {
		// Casters only write depth; blending has no effect.
		return gpucore.PipelineMode{Cull: s.Cull, Depth: gpucore.DepthTestWrite}
	}
	return gpucore.PipelineMode{Blend: s.Blend, Cull: s.Cull, Depth: s.Depth}
}

// Context builds the pipeline context of a draw with the given primitive
// and vertex format.
func (s *State) Context(prim gpucore.PrimitiveType, format gpucore.VertexFormat) gpucore.PipelineContext {
	return gpucore.PipelineContext{
		Primitive:    prim,
		VertexFormat: format,
		Type:         s.PipelineType(),
		Mode:         s.Mode(),
	}
}

// AlphaRef returns the alpha discard threshold. Alpha-test blending with no
// explicit mode discards fully transparent fragments.
func (s *State) AlphaRef() float32 {
	if s.AlphaTest == gpucore.AlphaTestNone && s.Blend == gpucore.BlendAlphaTest {
		return gpucore.AlphaTestGreater0.Threshold()
	}
	return s.AlphaTest.Threshold()
}
