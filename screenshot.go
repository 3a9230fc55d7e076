package rtsgfx

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// copyPitchAlignment is the BytesPerRow alignment of texture to buffer
// copies.
const copyPitchAlignment = 256

// ReadPixels copies the default target of the last frame back to the CPU.
// It waits for the GPU. Rendering into a window surface cannot be read
// back.
func (r *Renderer) ReadPixels() (*image.RGBA, error) {
	if r.state != stateReady {
		return nil, fmt.Errorf("%w: ReadPixels while %s", ErrSceneState, r.state)
	}
	color := r.targets.Main().Color()
	if color == nil || r.opts.surface != nil {
		return nil, ErrNoReadback
	}
	img := color.Handle()
	w, h := img.Width, img.Height

	bytesPerRow := w * 4
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	size := uint64(alignedBytesPerRow) * uint64(h)

	device := r.dev.Device
	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "screenshot_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: staging buffer: %w", ErrResourceExhausted, err)
	}
	defer device.DestroyBuffer(staging)

	enc, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "screenshot"})
	if err != nil {
		return nil, fmt.Errorf("rtsgfx: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("screenshot"); err != nil {
		return nil, fmt.Errorf("rtsgfx: begin encoding: %w", err)
	}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: img.Texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	enc.CopyTextureToBuffer(img.Texture, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: img.Texture, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: img.Texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("rtsgfx: end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	if _, err := r.dev.Queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return nil, r.deviceError(fmt.Errorf("rtsgfx: submit readback: %w", err))
	}
	if err := device.WaitIdle(); err != nil {
		return nil, r.deviceError(fmt.Errorf("rtsgfx: wait idle: %w", err))
	}

	mapping, err := device.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("rtsgfx: map staging buffer: %w", err)
	}
	raw := unsafe.Slice((*byte)(mapping.Ptr), size)
	out := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	bgra := img.Format == gputypes.TextureFormatBGRA8Unorm || img.Format == gputypes.TextureFormatBGRA8UnormSrgb
	for row := 0; row < int(h); row++ {
		src := raw[row*int(alignedBytesPerRow) : row*int(alignedBytesPerRow)+int(bytesPerRow)]
		dst := out.Pix[row*out.Stride : row*out.Stride+int(bytesPerRow)]
		copy(dst, src)
		if bgra {
			swapRB(dst)
		}
	}
	if err := device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("rtsgfx: unmap staging buffer: %w", err)
	}
	return out, nil
}

// swapRB converts BGRA pixels to RGBA in place.
func swapRB(p []byte) {
	for i := 0; i+3 < len(p); i += 4 {
		p[i], p[i+2] = p[i+2], p[i]
	}
}

// Screenshot writes the default target of the last frame to path. The
// encoding follows the extension: .png, .bmp, .tif or .tiff.
func (r *Renderer) Screenshot(path string) error {
	encode, err := encoderFor(path)
	if err != nil {
		return err
	}
	img, err := r.ReadPixels()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rtsgfx: screenshot: %w", err)
	}
	if err := encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("rtsgfx: encode %s: %w", path, err)
	}
	return f.Close()
}

func encoderFor(path string) (func(io.Writer, image.Image) error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode, nil
	case ".bmp":
		return bmp.Encode, nil
	case ".tif", ".tiff":
		return func(w io.Writer, m image.Image) error {
			return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate})
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrImageFormat, filepath.Ext(path))
	}
}
