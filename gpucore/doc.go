// Package gpucore provides the shared rendering vocabulary for rtsgfx.
//
// Every other package in the module speaks in these types: colors,
// matrices, rectangles, primitive and vertex formats, pipeline types and
// modes, materials, and the [PipelineContext] key that identifies a
// compiled pipeline. The package depends only on gputypes so that the
// internal packages and the root renderer can share it without cycles.
//
// # Pipeline Identity
//
// A [PipelineContext] is a comparable value. Two contexts that compare
// equal with == describe the same pipeline, so the context is used
// directly as a map key by the pipeline cache:
//
//	ctx := gpucore.PipelineContext{
//	    Primitive:    gpucore.PrimitiveTriangles,
//	    VertexFormat: gpucore.VertexXYZDT1,
//	    Type:         gpucore.PipelineColorTex1,
//	    Mode:         gpucore.PipelineMode{Blend: gpucore.BlendAlpha},
//	}
//
// Shader programs are derived from [PipelineType] and are not part of
// the identity.
//
// # Errors
//
// The error taxonomy shared by all packages is defined here:
// [ErrPipelineCreation], [ErrSceneState], [ErrResourceExhausted] and
// [ErrDeviceLost]. Callers test for them with errors.Is.
package gpucore
