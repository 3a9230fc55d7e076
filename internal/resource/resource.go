// Package resource wraps backend GPU handles with reference counting and
// dirty/valid state.
//
// A Resource starts with one reference owned by its creator. Commands and
// other holders Retain it for as long as they need the handle; the final
// Release runs the destroy function exactly once.
package resource

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Resource is a reference-counted backend handle.
type Resource[T any] struct {
	handle  T
	size    uint64
	refs    int
	dirty   bool
	valid   bool
	destroy func(T)
}

// New wraps handle with a single reference. destroy may be nil.
func New[T any](handle T, size uint64, destroy func(T)) *Resource[T] {
	return &Resource[T]{
		handle:  handle,
		size:    size,
		refs:    1,
		valid:   true,
		destroy: destroy,
	}
}

// Handle returns the wrapped backend handle.
func (r *Resource[T]) Handle() T { return r.handle }

// Size returns the size in bytes given at creation.
func (r *Resource[T]) Size() uint64 { return r.size }

// Refs returns the current reference count.
func (r *Resource[T]) Refs() int { return r.refs }

// Valid reports whether the handle is still alive.
func (r *Resource[T]) Valid() bool { return r.valid }

// Dirty reports whether CPU-side data must be uploaded before use.
func (r *Resource[T]) Dirty() bool { return r.dirty }

// MarkDirty flags the resource for re-upload.
func (r *Resource[T]) MarkDirty() { r.dirty = true }

// ClearDirty clears the re-upload flag.
func (r *Resource[T]) ClearDirty() { r.dirty = false }

// Retain adds a reference and returns r for chaining.
// Nil receivers are allowed so optional bindings can be retained blindly.
func (r *Resource[T]) Retain() *Resource[T] {
	if r != nil {
		r.refs++
	}
	return r
}

// Release drops a reference. It returns true when this call destroyed
// the handle.
func (r *Resource[T]) Release() bool {
	if r == nil || r.refs <= 0 {
		return false
	}
	r.refs--
	if r.refs > 0 {
		return false
	}
	r.free()
	return true
}

// Invalidate destroys the handle immediately regardless of outstanding
// references. Later releases are no-ops for the destroy function.
func (r *Resource[T]) Invalidate() {
	if r == nil {
		return
	}
	r.free()
}

func (r *Resource[T]) free() {
	if !r.valid {
		return
	}
	r.valid = false
	if r.destroy != nil {
		r.destroy(r.handle)
	}
}

// Buffer is a refcounted backend buffer.
type Buffer = Resource[hal.Buffer]

// NewBuffer wraps a buffer created on device.
func NewBuffer(device hal.Device, buf hal.Buffer, size uint64) *Buffer {
	return New(buf, size, device.DestroyBuffer)
}

// Image is a sampled or renderable texture together with its default view.
type Image struct {
	Texture hal.Texture
	View    hal.TextureView
	Width   uint32
	Height  uint32
	Format  gputypes.TextureFormat
}

// Texture is a refcounted image.
type Texture = Resource[Image]

// NewTexture wraps img. Releasing the last reference destroys both the view
// and the texture.
func NewTexture(device hal.Device, img Image) *Texture {
	size := uint64(img.Width) * uint64(img.Height) * 4
	return New(img, size, func(img Image) {
		if img.View != nil {
			device.DestroyTextureView(img.View)
		}
		if img.Texture != nil {
			device.DestroyTexture(img.Texture)
		}
	})
}

// CreateImage allocates a 2D texture and its view.
func CreateImage(device hal.Device, label string, w, h uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) (Image, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return Image{}, err
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           label + "_view",
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return Image{}, err
	}
	return Image{Texture: tex, View: view, Width: w, Height: h, Format: format}, nil
}
