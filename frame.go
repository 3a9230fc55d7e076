package rtsgfx

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/command"
	"github.com/gogpu/rtsgfx/internal/pool"
	"github.com/gogpu/rtsgfx/internal/resource"
	"github.com/gogpu/rtsgfx/internal/shader"
	"github.com/gogpu/rtsgfx/internal/target"
	"github.com/gogpu/wgpu/hal"
)

// textureKey identifies the group 1 bind group of a command: its program
// and the textures bound to the program's slots.
type textureKey struct {
	program  *shader.Compiled
	textures [gpucore.MaxTextures]*resource.Texture
}

// frameResources holds the device objects a submitted frame references.
// They are destroyed, or their references dropped, once the queue reports
// the submission complete.
type frameResources struct {
	device hal.Device
	index  uint64

	cmdBuf     hal.CommandBuffer
	bindGroups []hal.BindGroup
	views      []hal.TextureView

	buffers  []*resource.Buffer
	textures []*resource.Texture

	uniforms      *resource.Buffer
	uniformGroups map[*shader.Compiled]hal.BindGroup
	textureGroups map[textureKey]hal.BindGroup
}

func newFrameResources(device hal.Device) *frameResources {
	return &frameResources{
		device:        device,
		uniformGroups: make(map[*shader.Compiled]hal.BindGroup),
		textureGroups: make(map[textureKey]hal.BindGroup),
	}
}

// cleanup destroys every object of the frame. Safe to call more than once.
func (f *frameResources) cleanup() {
	for _, bg := range f.bindGroups {
		f.device.DestroyBindGroup(bg)
	}
	f.bindGroups = nil
	for _, v := range f.views {
		f.device.DestroyTextureView(v)
	}
	f.views = nil
	if f.cmdBuf != nil {
		f.device.FreeCommandBuffer(f.cmdBuf)
		f.cmdBuf = nil
	}
	f.uniforms.Release()
	f.uniforms = nil
	for _, b := range f.buffers {
		b.Release()
	}
	f.buffers = nil
	for _, t := range f.textures {
		t.Release()
	}
	f.textures = nil
	clear(f.uniformGroups)
	clear(f.textureGroups)
}

// retain keeps the attachments of every pass and the buffers and textures
// of every command alive until the frame is reclaimed.
func (f *frameResources) retain(targets []*target.Target) {
	for _, t := range targets {
		if c := t.Color(); c != nil {
			f.textures = append(f.textures, c.Retain())
		}
		if d := t.Depth(); d != nil {
			f.textures = append(f.textures, d.Retain())
		}
		for _, cmd := range t.Commands() {
			f.buffers = append(f.buffers, cmd.VertexBuffer.Retain())
			if cmd.IndexBuffer != nil {
				f.buffers = append(f.buffers, cmd.IndexBuffer.Retain())
			}
			for _, tex := range cmd.Textures {
				if tex != nil {
					f.textures = append(f.textures, tex.Retain())
				}
			}
		}
	}
}

// packUniforms writes the parameter blocks of every command into one
// uniform buffer at aligned offsets and records the offsets on the
// commands.
func (f *frameResources) packUniforms(p *pool.Pool, targets [][]*command.Command) error {
	var size uint64
	for _, cmds := range targets {
		for _, c := range cmds {
			size += shader.AlignedSize(uint64(len(c.VSParams)))
			size += shader.AlignedSize(uint64(len(c.FSParams)))
		}
	}
	if size == 0 {
		return nil
	}

	data := make([]byte, size)
	var off uint64
	for _, cmds := range targets {
		for _, c := range cmds {
			c.VSOffset = uint32(off)
			copy(data[off:], c.VSParams)
			off += shader.AlignedSize(uint64(len(c.VSParams)))
			c.FSOffset = uint32(off)
			copy(data[off:], c.FSParams)
			off += shader.AlignedSize(uint64(len(c.FSParams)))
		}
	}

	e, err := p.PrepareBuffer(data, size, true, pool.UsageUniform)
	if err != nil {
		return fmt.Errorf("rtsgfx: uniforms: %w", err)
	}
	f.uniforms = e.Resource().Retain()
	return nil
}

// uniformGroup returns the group 0 bind group of a program. One group per
// program serves every command through dynamic offsets.
func (f *frameResources) uniformGroup(c *shader.Compiled) (hal.BindGroup, error) {
	if g, ok := f.uniformGroups[c]; ok {
		return g, nil
	}
	if f.uniforms == nil {
		return nil, fmt.Errorf("rtsgfx: uniform buffer missing")
	}
	buf := f.uniforms.Handle().NativeHandle()
	g, err := f.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "uniforms_" + c.Program.String(),
		Layout: c.UniformLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: buf, Size: c.Program.VSSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: buf, Size: c.Program.FSSize}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: uniform bind group: %w", ErrResourceExhausted, err)
	}
	f.bindGroups = append(f.bindGroups, g)
	f.uniformGroups[c] = g
	return g, nil
}

// samplerSet is what a texture group binds besides the command's textures.
type samplerSet struct {
	sampler       hal.Sampler
	shadowSampler hal.Sampler
	placeholder   *resource.Texture
	shadowMap     *resource.Texture
}

// textureGroup returns the group 1 bind group of cmd. Empty or destroyed
// slots sample the placeholder.
func (f *frameResources) textureGroup(cmd *command.Command, s samplerSet) (hal.BindGroup, error) {
	c := cmd.Pipeline.Program
	p := c.Program
	key := textureKey{program: c}
	copy(key.textures[:p.Textures], cmd.Textures[:p.Textures])
	if g, ok := f.textureGroups[key]; ok {
		return g, nil
	}

	entries := []gputypes.BindGroupEntry{
		{Binding: 0, Resource: gputypes.SamplerBinding{Sampler: s.sampler.NativeHandle()}},
	}
	for i := 0; i < p.Textures; i++ {
		tex := key.textures[i]
		if tex == nil || !tex.Valid() {
			tex = s.placeholder
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  p.TextureBinding(i),
			Resource: gputypes.TextureViewBinding{TextureView: tex.Handle().View.NativeHandle()},
		})
	}
	if p.Shadowed {
		texBinding, samplerBinding := p.ShadowBindings()
		entries = append(entries,
			gputypes.BindGroupEntry{
				Binding:  texBinding,
				Resource: gputypes.TextureViewBinding{TextureView: s.shadowMap.Handle().View.NativeHandle()},
			},
			gputypes.BindGroupEntry{
				Binding:  samplerBinding,
				Resource: gputypes.SamplerBinding{Sampler: s.shadowSampler.NativeHandle()},
			},
		)
	}

	g, err := f.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "textures_" + p.String(),
		Layout:  c.TextureLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: texture bind group: %w", ErrResourceExhausted, err)
	}
	f.bindGroups = append(f.bindGroups, g)
	f.textureGroups[key] = g
	return g, nil
}
