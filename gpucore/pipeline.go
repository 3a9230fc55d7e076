package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// PipelineType selects the shader program of a pipeline.
type PipelineType uint8

// Pipeline types.
const (
	PipelineColorTex1 PipelineType = iota
	PipelineColorTex2
	PipelineNormal
	PipelineObjectShadow
	PipelineOnlyTexture
	PipelineTileMap

	pipelineTypeCount
)

// PipelineDefault is the type used when a pipeline cannot be created for
// the requested type.
const PipelineDefault = PipelineColorTex1

// PipelineTypes returns all pipeline types.
func PipelineTypes() []PipelineType {
	out := make([]PipelineType, 0, pipelineTypeCount)
	for t := PipelineType(0); t < pipelineTypeCount; t++ {
		out = append(out, t)
	}
	return out
}

// String returns the program name of the type.
func (t PipelineType) String() string {
	switch t {
	case PipelineColorTex1:
		return "color_tex1"
	case PipelineColorTex2:
		return "color_tex2"
	case PipelineNormal:
		return "normal"
	case PipelineObjectShadow:
		return "object_shadow"
	case PipelineOnlyTexture:
		return "only_texture"
	case PipelineTileMap:
		return "tile_map"
	default:
		return fmt.Sprintf("PipelineType(%d)", t)
	}
}

// BlendMode selects the color blend equation.
type BlendMode uint8

// Blend modes.
const (
	BlendNone BlendMode = iota
	BlendAlphaTest
	BlendAddAlpha
	BlendAlpha
	BlendAdd
	BlendSubtract
	BlendMultiply
)

// State returns the backend blend state, or nil for opaque modes.
func (b BlendMode) State() *gputypes.BlendState {
	comp := func(src, dst gputypes.BlendFactor, op gputypes.BlendOperation) gputypes.BlendComponent {
		return gputypes.BlendComponent{SrcFactor: src, DstFactor: dst, Operation: op}
	}
	var s gputypes.BlendState
	switch b {
	case BlendAlpha:
		s.Color = comp(gputypes.BlendFactorSrcAlpha, gputypes.BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd)
		s.Alpha = comp(gputypes.BlendFactorOne, gputypes.BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd)
	case BlendAddAlpha:
		s.Color = comp(gputypes.BlendFactorSrcAlpha, gputypes.BlendFactorOne, gputypes.BlendOperationAdd)
		s.Alpha = comp(gputypes.BlendFactorZero, gputypes.BlendFactorOne, gputypes.BlendOperationAdd)
	case BlendAdd:
		s.Color = comp(gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationAdd)
		s.Alpha = comp(gputypes.BlendFactorZero, gputypes.BlendFactorOne, gputypes.BlendOperationAdd)
	case BlendSubtract:
		s.Color = comp(gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationReverseSubtract)
		s.Alpha = comp(gputypes.BlendFactorZero, gputypes.BlendFactorOne, gputypes.BlendOperationAdd)
	case BlendMultiply:
		s.Color = comp(gputypes.BlendFactorDst, gputypes.BlendFactorZero, gputypes.BlendOperationAdd)
		s.Alpha = comp(gputypes.BlendFactorZero, gputypes.BlendFactorOne, gputypes.BlendOperationAdd)
	default:
		return nil
	}
	return &s
}

// String returns a human-readable name.
func (b BlendMode) String() string {
	switch b {
	case BlendNone:
		return "none"
	case BlendAlphaTest:
		return "alphatest"
	case BlendAddAlpha:
		return "addalpha"
	case BlendAlpha:
		return "alpha"
	case BlendAdd:
		return "add"
	case BlendSubtract:
		return "sub"
	case BlendMultiply:
		return "mul"
	default:
		return fmt.Sprintf("BlendMode(%d)", b)
	}
}

// CullMode selects which triangle winding is discarded.
type CullMode uint8

// Cull modes.
const (
	CullNone CullMode = iota
	CullCW
	CullCCW
)

// Primitive returns the front face and cull mode for the backend.
func (c CullMode) Primitive() (gputypes.FrontFace, gputypes.CullMode) {
	switch c {
	case CullCW:
		return gputypes.FrontFaceCCW, gputypes.CullModeBack
	case CullCCW:
		return gputypes.FrontFaceCW, gputypes.CullModeBack
	default:
		return gputypes.FrontFaceCCW, gputypes.CullModeNone
	}
}

// DepthMode selects depth test and write behavior.
type DepthMode uint8

// Depth modes.
const (
	DepthNone DepthMode = iota
	DepthTest
	DepthTestWrite
)

// Compare returns the depth compare function and write flag.
func (d DepthMode) Compare() (gputypes.CompareFunction, bool) {
	switch d {
	case DepthTest:
		return gputypes.CompareFunctionLessEqual, false
	case DepthTestWrite:
		return gputypes.CompareFunctionLessEqual, true
	default:
		return gputypes.CompareFunctionAlways, false
	}
}

// PipelineMode is the fixed-function state of a pipeline.
type PipelineMode struct {
	Blend BlendMode
	Cull  CullMode
	Depth DepthMode
}

// PipelineContext identifies a unique pipeline configuration. It is
// comparable; equal contexts must resolve to the same pipeline.
type PipelineContext struct {
	Primitive    PrimitiveType
	VertexFormat VertexFormat
	Type         PipelineType
	Mode         PipelineMode
}

// String returns a compact label used for backend debug names.
func (c PipelineContext) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/c%d/d%d",
		c.Type, c.Primitive, c.VertexFormat, c.Mode.Blend, c.Mode.Cull, c.Mode.Depth)
}
