// Package target manages render targets and their per-frame command lists.
//
// Index 0 is the default target: the window surface when one is attached,
// otherwise an offscreen color image owned by the manager. Shadow and
// light maps and render-to-texture targets are ordinary targets with their
// own command lists. Ordered returns them in submission order:
// shadow map, light map, texture targets, then the default target, since
// the default target samples the others.
package target

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/command"
	"github.com/gogpu/rtsgfx/internal/resource"
	"github.com/gogpu/wgpu/hal"
)

// Kind is the role of a render target.
type Kind uint8

// Target kinds.
const (
	KindMain Kind = iota
	KindShadow
	KindLight
	KindTexture
)

// String returns a human-readable name.
func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindShadow:
		return "shadow"
	case KindLight:
		return "light"
	case KindTexture:
		return "texture"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Target is a render destination with its own command list.
type Target struct {
	Index int
	Kind  Kind

	ClearColor gpucore.Color
	ClearDepth float32

	color   *resource.Texture
	depth   *resource.Texture
	surface hal.TextureView

	commands []*command.Command
}

// Commands returns the commands recorded this frame, in order.
func (t *Target) Commands() []*command.Command {
	return t.commands
}

// Color returns the color image, or nil for depth-only targets and the
// default target while it renders to a surface.
func (t *Target) Color() *resource.Texture {
	if t.surface != nil {
		return nil
	}
	return t.color
}

// Depth returns the depth image.
func (t *Target) Depth() *resource.Texture {
	return t.depth
}

// Size returns the pixel size of the target.
func (t *Target) Size() (w, h uint32) {
	img := t.color
	if img == nil {
		img = t.depth
	}
	if img == nil {
		return 0, 0
	}
	return img.Handle().Width, img.Handle().Height
}

// Bounds returns the full target rectangle.
func (t *Target) Bounds() gpucore.Rect {
	w, h := t.Size()
	return gpucore.Rect{W: int32(w), H: int32(h)}
}

func (t *Target) clearCommands() {
	for i, cmd := range t.commands {
		cmd.Release()
		t.commands[i] = nil
	}
	t.commands = t.commands[:0]
}

func (t *Target) release() {
	t.clearCommands()
	t.color.Release()
	t.depth.Release()
	t.color, t.depth, t.surface = nil, nil, nil
}

// PassDescriptor builds the render pass that clears and draws the target.
func (t *Target) PassDescriptor() (*hal.RenderPassDescriptor, error) {
	desc := &hal.RenderPassDescriptor{Label: t.Kind.String()}

	if t.Kind != KindShadow {
		view := t.surface
		if view == nil && t.color != nil {
			view = t.color.Handle().View
		}
		if view == nil {
			return nil, fmt.Errorf("%w: %s target %d has no color attachment", ErrNoAttachment, t.Kind, t.Index)
		}
		desc.ColorAttachments = []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: t.ClearColor.GPU(),
		}}
	}

	if t.depth != nil {
		img := t.depth.Handle()
		ds := &hal.RenderPassDepthStencilAttachment{
			View:            img.View,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: t.ClearDepth,
		}
		if hasStencil(img.Format) {
			ds.StencilLoadOp = gputypes.LoadOpClear
			ds.StencilStoreOp = gputypes.StoreOpDiscard
		}
		desc.DepthStencilAttachment = ds
	} else if t.Kind == KindShadow {
		return nil, fmt.Errorf("%w: shadow target has no depth image", ErrNoAttachment)
	}
	return desc, nil
}

func hasStencil(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth24PlusStencil8 || f == gputypes.TextureFormatDepth32FloatStencil8
}
