package rtsgfx

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/internal/resource"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/draw"
)

// Texture is a sampled texture owned by a Renderer.
//
// Textures created from pixels keep a CPU copy, so they survive a device
// reset. Render textures come back cleared.
type Texture struct {
	res     *resource.Texture
	width   int
	height  int
	pixels  []byte
	render  bool
	deleted bool
}

// Size returns the texture size in pixels.
func (t *Texture) Size() (width, height int) {
	return t.width, t.height
}

// Valid reports whether the texture can be bound.
func (t *Texture) Valid() bool {
	return t != nil && !t.deleted && t.res != nil && t.res.Valid()
}

// IsRenderTexture reports whether the texture can be a render target.
func (t *Texture) IsRenderTexture() bool {
	return t.render
}

// CreateTexture uploads RGBA8 pixels (4 bytes per pixel, rows tightly
// packed) into a new texture.
func (r *Renderer) CreateTexture(width, height int, pixels []byte) (*Texture, error) {
	if width <= 0 || height <= 0 || len(pixels) != width*height*4 {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrInvalidTexture, width, height, len(pixels))
	}
	if r.state == stateUninitialized {
		return nil, fmt.Errorf("%w: CreateTexture before Init", ErrSceneState)
	}
	t := &Texture{
		width:  width,
		height: height,
		pixels: append([]byte(nil), pixels...),
	}
	if err := r.createTextureImage(t); err != nil {
		return nil, r.deviceError(err)
	}
	r.textures[t] = struct{}{}
	return t, nil
}

// CreateTextureFromImage converts img to RGBA and uploads it.
func (r *Renderer) CreateTextureFromImage(img image.Image) (*Texture, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidTexture)
	}
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return r.CreateTexture(b.Dx(), b.Dy(), rgba.Pix)
}

// CreateRenderTexture creates a texture that can be drawn into through
// CreateRenderTarget and sampled afterwards.
func (r *Renderer) CreateRenderTexture(width, height int) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidTexture, width, height)
	}
	if r.state == stateUninitialized {
		return nil, fmt.Errorf("%w: CreateRenderTexture before Init", ErrSceneState)
	}
	t := &Texture{width: width, height: height, render: true}
	if err := r.createTextureImage(t); err != nil {
		return nil, err
	}
	r.textures[t] = struct{}{}
	return t, nil
}

// UpdateTexture replaces the pixels of a texture created with
// CreateTexture. Commands recorded earlier in the frame see the new
// pixels, as the upload happens before the frame is submitted.
func (r *Renderer) UpdateTexture(t *Texture, pixels []byte) error {
	if t == nil || t.deleted || t.render {
		return ErrInvalidTexture
	}
	if len(pixels) != t.width*t.height*4 {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidTexture, t.width*t.height*4, len(pixels))
	}
	t.pixels = append(t.pixels[:0], pixels...)
	if !t.res.Valid() {
		return r.deviceError(r.createTextureImage(t))
	}
	return r.deviceError(r.writePixels(t.res.Handle(), t.pixels))
}

// DeleteTexture releases t. Commands already recorded keep the texture
// alive until the end of the frame.
func (r *Renderer) DeleteTexture(t *Texture) {
	if t == nil || t.deleted {
		return
	}
	t.deleted = true
	t.res.Release()
	t.res = nil
	t.pixels = nil
	delete(r.textures, t)
}

func (r *Renderer) createTextureImage(t *Texture) error {
	usage := gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst
	format := gputypes.TextureFormatRGBA8Unorm
	label := "texture"
	if t.render {
		usage |= gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc
		format = r.formats.Color
		label = "render_texture"
	}
	img, err := resource.CreateImage(r.dev.Device, label, uint32(t.width), uint32(t.height), format, usage)
	if err != nil {
		return fmt.Errorf("%w: %s %dx%d: %w", ErrResourceExhausted, label, t.width, t.height, err)
	}
	res := resource.NewTexture(r.dev.Device, img)
	if t.pixels != nil {
		if err := r.writePixels(img, t.pixels); err != nil {
			res.Release()
			return err
		}
	}
	if t.res != nil {
		t.res.Release()
	}
	t.res = res
	return nil
}

func (r *Renderer) writePixels(img resource.Image, pixels []byte) error {
	err := r.dev.Queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: img.Texture, Aspect: gputypes.TextureAspectAll},
		pixels,
		&hal.ImageDataLayout{BytesPerRow: img.Width * 4, RowsPerImage: img.Height},
		&hal.Extent3D{Width: img.Width, Height: img.Height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("rtsgfx: write texture: %w", err)
	}
	return nil
}

// restoreTextures recreates textures invalidated by a device reset.
func (r *Renderer) restoreTextures() error {
	n := 0
	for t := range r.textures {
		if t.res != nil && t.res.Valid() {
			continue
		}
		if err := r.createTextureImage(t); err != nil {
			return err
		}
		n++
	}
	if n > 0 {
		r.log.Info("rtsgfx: textures restored", "count", n)
	}
	return nil
}

// bindable returns the resource to bind for t, recreating it when a device
// reset invalidated it.
func (r *Renderer) bindable(t *Texture) (*resource.Texture, error) {
	if t == nil {
		return nil, nil
	}
	if t.deleted {
		return nil, fmt.Errorf("%w: deleted", ErrInvalidTexture)
	}
	if !t.res.Valid() {
		if err := r.createTextureImage(t); err != nil {
			return nil, err
		}
	}
	return t.res, nil
}
