package shader

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// Compiled holds the device objects of one program.
type Compiled struct {
	Program       *Program
	Module        hal.ShaderModule
	UniformLayout hal.BindGroupLayout
	TextureLayout hal.BindGroupLayout
	Layout        hal.PipelineLayout
}

// Table compiles programs on first use and owns the resulting modules and
// layouts for one device.
type Table struct {
	device hal.Device
	spirv  bool
	log    *slog.Logger

	compiled map[gpucore.PipelineType]*Compiled
	words    map[gpucore.PipelineType][]uint32
}

// NewTable creates an empty program table. Programs for the Vulkan variant
// are translated to SPIR-V with naga; other backends take WGSL.
func NewTable(device hal.Device, variant gputypes.Backend, log *slog.Logger) *Table {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Table{
		device:   device,
		spirv:    variant == gputypes.BackendVulkan,
		log:      log,
		compiled: make(map[gpucore.PipelineType]*Compiled),
		words:    make(map[gpucore.PipelineType][]uint32),
	}
}

// Get returns the compiled program for t, compiling it if needed.
func (t *Table) Get(pt gpucore.PipelineType) (*Compiled, error) {
	if c, ok := t.compiled[pt]; ok {
		return c, nil
	}
	prog, err := Lookup(pt)
	if err != nil {
		return nil, err
	}
	c, err := t.compile(prog)
	if err != nil {
		return nil, err
	}
	t.compiled[pt] = c
	t.log.Debug("shader: program compiled", "program", prog.String(), "spirv", t.spirv)
	return c, nil
}

func (t *Table) compile(p *Program) (*Compiled, error) {
	src, err := t.source(p)
	if err != nil {
		return nil, err
	}
	c := &Compiled{Program: p}

	c.Module, err = t.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  p.String(),
		Source: src,
	})
	if err != nil {
		return nil, fmt.Errorf("shader: create module %s: %w", p, err)
	}

	c.UniformLayout, err = t.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   p.String() + "_uniforms",
		Entries: UniformLayoutEntries(p),
	})
	if err != nil {
		t.destroy(c)
		return nil, fmt.Errorf("shader: uniform layout %s: %w", p, err)
	}

	c.TextureLayout, err = t.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   p.String() + "_textures",
		Entries: TextureLayoutEntries(p),
	})
	if err != nil {
		t.destroy(c)
		return nil, fmt.Errorf("shader: texture layout %s: %w", p, err)
	}

	c.Layout, err = t.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.String() + "_layout",
		BindGroupLayouts: []hal.BindGroupLayout{c.UniformLayout, c.TextureLayout},
	})
	if err != nil {
		t.destroy(c)
		return nil, fmt.Errorf("shader: pipeline layout %s: %w", p, err)
	}
	return c, nil
}

func (t *Table) source(p *Program) (hal.ShaderSource, error) {
	if !t.spirv {
		return hal.ShaderSource{WGSL: p.Source}, nil
	}
	if w, ok := t.words[p.Type]; ok {
		return hal.ShaderSource{SPIRV: w}, nil
	}
	w, err := CompileSPIRV(p.Source)
	if err != nil {
		return hal.ShaderSource{}, fmt.Errorf("shader: %s: %w", p, err)
	}
	t.words[p.Type] = w
	return hal.ShaderSource{SPIRV: w}, nil
}

// Len returns the number of compiled programs.
func (t *Table) Len() int {
	return len(t.compiled)
}

// Destroy releases every compiled program. Translated SPIR-V is kept so a
// table reused after a device reset does not translate again.
func (t *Table) Destroy() {
	for pt, c := range t.compiled {
		t.destroy(c)
		delete(t.compiled, pt)
	}
}

// Rebind points the table at a new device. Compiled programs must have
// been destroyed first.
func (t *Table) Rebind(device hal.Device) {
	t.device = device
}

func (t *Table) destroy(c *Compiled) {
	if c.Layout != nil {
		t.device.DestroyPipelineLayout(c.Layout)
	}
	if c.TextureLayout != nil {
		t.device.DestroyBindGroupLayout(c.TextureLayout)
	}
	if c.UniformLayout != nil {
		t.device.DestroyBindGroupLayout(c.UniformLayout)
	}
	if c.Module != nil {
		t.device.DestroyShaderModule(c.Module)
	}
}

// CompileSPIRV translates WGSL source to little-endian SPIR-V words.
func CompileSPIRV(source string) ([]uint32, error) {
	b, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("naga compile: %w", err)
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}

// UniformLayoutEntries returns the group 0 layout of p.
func UniformLayoutEntries(p *Program) []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex,
			Buffer: &gputypes.BufferBindingLayout{
				Type:             gputypes.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   p.VSSize,
			},
		},
		{
			Binding:    1,
			Visibility: gputypes.ShaderStageFragment,
			Buffer: &gputypes.BufferBindingLayout{
				Type:             gputypes.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   p.FSSize,
			},
		},
	}
}

// TextureLayoutEntries returns the group 1 layout of p.
func TextureLayoutEntries(p *Program) []gputypes.BindGroupLayoutEntry {
	entries := []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		},
	}
	for i := 0; i < p.Textures; i++ {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    p.TextureBinding(i),
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	if p.Shadowed {
		tex, samp := p.ShadowBindings()
		entries = append(entries,
			gputypes.BindGroupLayoutEntry{
				Binding:    tex,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeDepth,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			gputypes.BindGroupLayoutEntry{
				Binding:    samp,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeComparison},
			},
		)
	}
	return entries
}
