package target

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/command"
	"github.com/gogpu/rtsgfx/internal/resource"
	"github.com/gogpu/wgpu/hal"
)

// Render target errors.
var (
	// ErrInvalidTarget is returned for an unknown or protected target index.
	ErrInvalidTarget = errors.New("target: invalid render target")

	// ErrNoAttachment is returned when a target has nothing to render into.
	ErrNoAttachment = errors.New("target: missing attachment")

	// ErrFormatMismatch is returned when a color texture does not use the
	// format pipelines are built for.
	ErrFormatMismatch = errors.New("target: color format mismatch")
)

// Config configures a Manager.
type Config struct {
	ColorFormat  gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat
	ShadowFormat gputypes.TextureFormat
	Logger       *slog.Logger
}

// Manager owns the render targets of a renderer. Targets live in an arena
// and keep their index until deleted.
type Manager struct {
	device hal.Device
	cfg    Config
	log    *slog.Logger

	targets []*Target
	active  int
	shadow  int
	light   int
}

// NewManager creates a manager holding only the default target. Resize
// must be called before the default target can be drawn offscreen.
func NewManager(device hal.Device, cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		device:  device,
		cfg:     cfg,
		log:     log,
		targets: []*Target{{Index: 0, Kind: KindMain, ClearDepth: 1, ClearColor: gpucore.Black}},
		shadow:  -1,
		light:   -1,
	}
}

// Main returns the default target.
func (m *Manager) Main() *Target {
	return m.targets[0]
}

// Get returns the target at index.
func (m *Manager) Get(index int) (*Target, error) {
	if index < 0 || index >= len(m.targets) || m.targets[index] == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTarget, index)
	}
	return m.targets[index], nil
}

// Len returns the number of live targets.
func (m *Manager) Len() int {
	n := 0
	for _, t := range m.targets {
		if t != nil {
			n++
		}
	}
	return n
}

// Append adds cmd to the command list of the target at index.
func (m *Manager) Append(index int, cmd *command.Command) error {
	t, err := m.Get(index)
	if err != nil {
		return err
	}
	t.commands = append(t.commands, cmd)
	return nil
}

// Resize recreates the offscreen color and depth images of the default
// target.
func (m *Manager) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: size %dx%d", ErrNoAttachment, width, height)
	}
	main := m.Main()
	main.release()

	color, err := m.image("main_color", width, height, m.cfg.ColorFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc|gputypes.TextureUsageTextureBinding)
	if err != nil {
		return err
	}
	depth, err := m.image("main_depth", width, height, m.cfg.DepthFormat, gputypes.TextureUsageRenderAttachment)
	if err != nil {
		color.Release()
		return err
	}
	main.color, main.depth = color, depth
	m.log.Debug("target: default target resized", "width", width, "height", height)
	return nil
}

// SetSurfaceView makes the default target render into view for the current
// frame. A nil view restores the offscreen image.
func (m *Manager) SetSurfaceView(view hal.TextureView) {
	m.Main().surface = view
}

// Create registers a render-to-texture target drawing into color. When
// depth is nil the manager allocates a depth image of matching size. The
// target holds references on both textures until deleted.
func (m *Manager) Create(color, depth *resource.Texture) (int, error) {
	if color == nil || !color.Valid() {
		return -1, fmt.Errorf("%w: texture target needs a color texture", ErrNoAttachment)
	}
	img := color.Handle()
	if img.Format != m.cfg.ColorFormat {
		return -1, fmt.Errorf("%w: %v, want %v", ErrFormatMismatch, img.Format, m.cfg.ColorFormat)
	}

	t := &Target{Kind: KindTexture, ClearDepth: 1, ClearColor: gpucore.Transparent}
	t.color = color.Retain()
	if depth != nil {
		t.depth = depth.Retain()
	} else {
		d, err := m.image("texture_depth", img.Width, img.Height, m.cfg.DepthFormat, gputypes.TextureUsageRenderAttachment)
		if err != nil {
			t.color.Release()
			return -1, err
		}
		t.depth = d
	}
	return m.insert(t), nil
}

func (m *Manager) insert(t *Target) int {
	for i := 1; i < len(m.targets); i++ {
		if m.targets[i] == nil {
			t.Index = i
			m.targets[i] = t
			return i
		}
	}
	t.Index = len(m.targets)
	m.targets = append(m.targets, t)
	return t.Index
}

// Delete removes a render-to-texture target. The default target and the
// shadow maps cannot be deleted here.
func (m *Manager) Delete(index int) error {
	t, err := m.Get(index)
	if err != nil {
		return err
	}
	if t.Kind != KindTexture {
		return fmt.Errorf("%w: cannot delete %s target", ErrInvalidTarget, t.Kind)
	}
	m.remove(index)
	return nil
}

func (m *Manager) remove(index int) {
	m.targets[index].release()
	m.targets[index] = nil
	if m.active == index {
		m.active = 0
	}
}

// SetActive selects the target new commands are recorded against.
func (m *Manager) SetActive(index int) error {
	if _, err := m.Get(index); err != nil {
		return err
	}
	m.active = index
	return nil
}

// RestoreActive selects the default target.
func (m *Manager) RestoreActive() {
	m.active = 0
}

// Active returns the active target index.
func (m *Manager) Active() int {
	return m.active
}

// CreateShadowMaps creates the shadow map (depth) and light map (color)
// targets, both size x size and sampleable. Existing maps are replaced.
func (m *Manager) CreateShadowMaps(size uint32) error {
	if size == 0 {
		return fmt.Errorf("%w: shadow map size 0", ErrNoAttachment)
	}
	m.DeleteShadowMaps()

	sampled := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	shadowDepth, err := m.image("shadow_map", size, size, m.cfg.ShadowFormat, sampled)
	if err != nil {
		return err
	}
	lightColor, err := m.image("light_map", size, size, m.cfg.ColorFormat, sampled)
	if err != nil {
		shadowDepth.Release()
		return err
	}
	lightDepth, err := m.image("light_depth", size, size, m.cfg.DepthFormat, gputypes.TextureUsageRenderAttachment)
	if err != nil {
		shadowDepth.Release()
		lightColor.Release()
		return err
	}

	m.shadow = m.insert(&Target{Kind: KindShadow, ClearDepth: 1, depth: shadowDepth})
	m.light = m.insert(&Target{Kind: KindLight, ClearDepth: 1, ClearColor: gpucore.White, color: lightColor, depth: lightDepth})
	m.log.Debug("target: shadow maps created", "size", size, "shadow", m.shadow, "light", m.light)
	return nil
}

// DeleteShadowMaps removes the shadow and light targets if present.
func (m *Manager) DeleteShadowMaps() {
	if m.shadow >= 0 {
		m.remove(m.shadow)
		m.shadow = -1
	}
	if m.light >= 0 {
		m.remove(m.light)
		m.light = -1
	}
}

// ShadowMaps returns the shadow and light targets, or nil when absent.
func (m *Manager) ShadowMaps() (shadow, light *Target) {
	if m.shadow >= 0 {
		shadow = m.targets[m.shadow]
	}
	if m.light >= 0 {
		light = m.targets[m.light]
	}
	return shadow, light
}

// Ordered returns the targets in submission order: shadow map, light map,
// texture targets by index, then the default target.
func (m *Manager) Ordered() []*Target {
	out := make([]*Target, 0, len(m.targets))
	if m.shadow >= 0 {
		out = append(out, m.targets[m.shadow])
	}
	if m.light >= 0 {
		out = append(out, m.targets[m.light])
	}
	for _, t := range m.targets[1:] {
		if t != nil && t.Kind == KindTexture {
			out = append(out, t)
		}
	}
	return append(out, m.Main())
}

// ClearCommands releases and empties every command list.
func (m *Manager) ClearCommands() {
	for _, t := range m.targets {
		if t != nil {
			t.clearCommands()
		}
	}
}

// Reset destroys every target image and drops all targets but the default
// one, which keeps no images until the next Resize.
func (m *Manager) Reset() {
	for i := len(m.targets) - 1; i > 0; i-- {
		if m.targets[i] != nil {
			m.targets[i].release()
		}
	}
	m.targets = m.targets[:1]
	m.Main().release()
	m.active, m.shadow, m.light = 0, -1, -1
}

// Rebind points the manager at a new device. Reset must be called first.
func (m *Manager) Rebind(device hal.Device) {
	m.device = device
}

func (m *Manager) image(label string, w, h uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) (*resource.Texture, error) {
	img, err := resource.CreateImage(m.device, label, w, h, format, usage)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %dx%d: %w", gpucore.ErrResourceExhausted, label, w, h, err)
	}
	return resource.NewTexture(m.device, img), nil
}
