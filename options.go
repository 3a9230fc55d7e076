package rtsgfx

import (
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/backend"
	"github.com/gogpu/rtsgfx/internal/pool"
	"github.com/gogpu/wgpu/hal"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	r := rtsgfx.New(dev,
//		rtsgfx.WithMaxBufferLife(60),
//		rtsgfx.WithShadowMapSize(2048),
//	)
type Option func(*options)

// DeviceResetter reopens a device after the current one was lost. The
// renderer closes the lost device itself.
type DeviceResetter func() (*backend.Device, error)

// options holds optional configuration for Renderer creation.
type options struct {
	logger      *slog.Logger
	maxLife     uint32
	poolBudget  uint64
	colorFormat gputypes.TextureFormat
	surface     hal.Surface
	presentMode gputypes.PresentMode
	resetter    DeviceResetter
	shadowSize  uint32
}

// defaultOptions returns the default renderer options.
func defaultOptions() options {
	return options{
		maxLife:     pool.DefaultMaxLife,
		poolBudget:  pool.DefaultMaxBytes,
		presentMode: gputypes.PresentModeFifo,
	}
}

// WithLogger sets the logger of one renderer, overriding the package
// logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxBufferLife sets how many frames an unused pooled buffer survives
// before it is destroyed.
func WithMaxBufferLife(frames uint32) Option {
	return func(o *options) {
		o.maxLife = frames
	}
}

// WithPoolBudget caps the bytes held by the buffer pool. Requests beyond
// the budget get short-lived unpooled buffers.
func WithPoolBudget(bytes uint64) Option {
	return func(o *options) {
		if bytes > 0 {
			o.poolBudget = bytes
		}
	}
}

// WithColorFormat sets the color format of the default target and every
// pipeline. It defaults to the device's surface format, or BGRA8Unorm.
func WithColorFormat(f gputypes.TextureFormat) Option {
	return func(o *options) {
		o.colorFormat = f
	}
}

// WithSurface renders the default target into a window surface. The
// renderer configures it on Init and ChangeSize, acquires a texture in
// BeginScene and presents it in Flush.
func WithSurface(s hal.Surface) Option {
	return func(o *options) {
		o.surface = s
	}
}

// WithPresentMode sets the surface present mode. FIFO by default.
func WithPresentMode(m gputypes.PresentMode) Option {
	return func(o *options) {
		o.presentMode = m
	}
}

// WithDeviceResetter installs a hook that reopens the device after device
// loss. Without one the renderer returns to the uninitialized state and
// must be given a new device through Rebind.
func WithDeviceResetter(fn DeviceResetter) Option {
	return func(o *options) {
		o.resetter = fn
	}
}

// WithShadowMapSize creates square shadow and light maps of the given size
// on Init. Zero leaves shadows off until CreateShadowTexture.
func WithShadowMapSize(size uint32) Option {
	return func(o *options) {
		o.shadowSize = size
	}
}
