package rtsgfx

import (
	"errors"

	"github.com/gogpu/rtsgfx/gpucore"
)

// Error taxonomy, shared with the internal packages.
var (
	ErrPipelineCreation  = gpucore.ErrPipelineCreation
	ErrSceneState        = gpucore.ErrSceneState
	ErrResourceExhausted = gpucore.ErrResourceExhausted
	ErrDeviceLost        = gpucore.ErrDeviceLost
)

// Renderer errors.
var (
	// ErrNoDevice is returned by Init when the renderer has no device.
	ErrNoDevice = errors.New("rtsgfx: no device")

	// ErrNoReadback is returned by Screenshot while the default target
	// renders into a window surface.
	ErrNoReadback = errors.New("rtsgfx: default target cannot be read back")

	// ErrImageFormat is returned by Screenshot for an unsupported file
	// extension.
	ErrImageFormat = errors.New("rtsgfx: unsupported image format")

	// ErrInvalidTexture is returned for nil, deleted or mis-sized textures
	// and texture data.
	ErrInvalidTexture = errors.New("rtsgfx: invalid texture")

	// ErrInvalidBuffer is returned for nil or deleted vertex and index
	// buffers and for data that does not match the vertex format.
	ErrInvalidBuffer = errors.New("rtsgfx: invalid buffer")

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("rtsgfx: invalid config")
)
