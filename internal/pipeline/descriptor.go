package pipeline

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/shader"
	"github.com/gogpu/wgpu/hal"
)

// Formats are the attachment formats pipelines are built against.
type Formats struct {
	Color  gputypes.TextureFormat
	Depth  gputypes.TextureFormat
	Shadow gputypes.TextureFormat
}

// DefaultFormats returns the formats used by the default render target.
func DefaultFormats() Formats {
	return Formats{
		Color:  gputypes.TextureFormatBGRA8Unorm,
		Depth:  gputypes.TextureFormatDepth24PlusStencil8,
		Shadow: gputypes.TextureFormatDepth32Float,
	}
}

// VertexLayout returns the single interleaved buffer layout for f.
func VertexLayout(f gpucore.VertexFormat) gputypes.VertexBufferLayout {
	comps := f.Components()
	attrs := make([]gputypes.VertexAttribute, 0, len(comps))
	var offset uint64
	for _, c := range comps {
		attrs = append(attrs, gputypes.VertexAttribute{
			Format:         c.Format,
			Offset:         offset,
			ShaderLocation: c.Location,
		})
		offset += c.Size
	}
	return gputypes.VertexBufferLayout{
		ArrayStride: offset,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}
}

// Descriptor synthesizes the backend descriptor for ctx. It fails with
// gpucore.ErrPipelineCreation when the vertex format cannot feed the
// program.
func Descriptor(ctx gpucore.PipelineContext, c *shader.Compiled, f Formats) (*hal.RenderPipelineDescriptor, error) {
	prog := c.Program
	if !prog.Accepts(ctx.VertexFormat) {
		return nil, fmt.Errorf("%w: %s needs %s, got %s",
			gpucore.ErrPipelineCreation, prog, prog.Inputs, ctx.VertexFormat)
	}

	front, cull := ctx.Mode.Cull.Primitive()
	compare, write := ctx.Mode.Depth.Compare()

	desc := &hal.RenderPipelineDescriptor{
		Label:  ctx.String(),
		Layout: c.Layout,
		Vertex: hal.VertexState{
			Module:     c.Module,
			EntryPoint: shader.VertexEntry,
			Buffers:    []gputypes.VertexBufferLayout{VertexLayout(ctx.VertexFormat)},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  ctx.Primitive.Topology(),
			FrontFace: front,
			CullMode:  cull,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		Fragment: &hal.FragmentState{
			Module:     c.Module,
			EntryPoint: shader.FragmentEntry,
		},
	}

	if prog.DepthOnly {
		desc.DepthStencil = &hal.DepthStencilState{
			Format:              f.Shadow,
			DepthWriteEnabled:   true,
			DepthCompare:        gputypes.CompareFunctionLessEqual,
			StencilFront:        keepStencil(),
			StencilBack:         keepStencil(),
			DepthBias:           2,
			DepthBiasSlopeScale: 1.5,
		}
		return desc, nil
	}

	desc.Fragment.Targets = []gputypes.ColorTargetState{
		{
			Format:    f.Color,
			Blend:     ctx.Mode.Blend.State(),
			WriteMask: gputypes.ColorWriteMaskAll,
		},
	}
	desc.DepthStencil = &hal.DepthStencilState{
		Format:            f.Depth,
		DepthWriteEnabled: write,
		DepthCompare:      compare,
		StencilFront:      keepStencil(),
		StencilBack:       keepStencil(),
	}
	return desc, nil
}

func keepStencil() hal.StencilFaceState {
	return hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
}
