// Package command records draw calls into per-target command lists.
//
// Game code mutates the active State through the Recorder's setters and
// submits geometry with CreateCommand or the sprite batch. Each command is
// a self-contained snapshot: resolved pipeline, buffers, draw range,
// textures, encoded uniforms, viewport and clip. Commands hold references
// on the buffers and textures they use and release them when the owning
// target clears its list at the end of the frame.
package command

import (
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/pipeline"
	"github.com/gogpu/rtsgfx/internal/resource"
)

// Command is one recorded draw call.
type Command struct {
	Pipeline *pipeline.Pipeline
	Target   int

	VertexBuffer *resource.Buffer
	IndexBuffer  *resource.Buffer

	// BaseElement is the first index for indexed draws, or the first
	// vertex otherwise.
	BaseElement uint32
	Vertices    uint32
	Indices     uint32

	Textures [gpucore.MaxTextures]*resource.Texture

	VSParams []byte
	FSParams []byte

	// Dynamic offsets of the uniform blocks, assigned at submission.
	VSOffset uint32
	FSOffset uint32

	Viewport gpucore.Rect
	Clip     gpucore.Rect

	State State
}

// Indexed reports whether the command draws from an index buffer.
func (c *Command) Indexed() bool {
	return c.IndexBuffer != nil && c.Indices > 0
}

// Release drops the command's references on buffers and textures.
func (c *Command) Release() {
	c.VertexBuffer.Release()
	c.IndexBuffer.Release()
	c.VertexBuffer, c.IndexBuffer = nil, nil
	for i, tex := range c.Textures {
		tex.Release()
		c.Textures[i] = nil
	}
}

// Draw describes geometry submitted by CreateCommand.
type Draw struct {
	Primitive gpucore.PrimitiveType
	Format    gpucore.VertexFormat

	Vertices    *resource.Buffer
	VertexCount int

	Indices    *resource.Buffer
	IndexCount int

	// Base is the first index (or vertex, without indices) to draw.
	Base int
}
