package rtsgfx

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/backend"
	"github.com/pelletier/go-toml/v2"
)

// Config is the file-loadable renderer configuration.
//
//	backend = "vulkan"
//	width = 1280
//	height = 720
//	max_buffer_life = 30
//	pool_budget_mb = 64
//	shadow_map_size = 2048
//	color_format = "bgra8unorm"
type Config struct {
	// Backend names the device backend; empty selects the best available.
	Backend string `toml:"backend"`

	Width  int `toml:"width"`
	Height int `toml:"height"`

	// MaxBufferLife is the idle-frame limit of pooled buffers.
	MaxBufferLife uint32 `toml:"max_buffer_life"`

	// PoolBudgetMB caps the buffer pool, in MiB.
	PoolBudgetMB uint64 `toml:"pool_budget_mb"`

	// ShadowMapSize is the edge of the shadow and light maps; 0 disables
	// them.
	ShadowMapSize uint32 `toml:"shadow_map_size"`

	// ColorFormat is "bgra8unorm" or "rgba8unorm".
	ColorFormat string `toml:"color_format"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Width:         1024,
		Height:        768,
		MaxBufferLife: 30,
		PoolBudgetMB:  64,
		ShadowMapSize: 1024,
		ColorFormat:   "bgra8unorm",
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("rtsgfx: read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML data on top of DefaultConfig. Unknown keys are
// rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and names.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.Backend != "" {
		if _, ok := backend.Variant(c.Backend); !ok {
			return fmt.Errorf("%w: backend %q (want one of %s)", ErrInvalidConfig, c.Backend, strings.Join(backend.Names(), ", "))
		}
	}
	if _, err := c.colorFormat(); err != nil {
		return err
	}
	return nil
}

func (c Config) colorFormat() (gputypes.TextureFormat, error) {
	switch strings.ToLower(c.ColorFormat) {
	case "", "bgra8unorm":
		return gputypes.TextureFormatBGRA8Unorm, nil
	case "rgba8unorm":
		return gputypes.TextureFormatRGBA8Unorm, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: color format %q", ErrInvalidConfig, c.ColorFormat)
	}
}

// Options converts the configuration into renderer options. The backend
// and size are not options; pass them to backend.OpenByName and Init.
func (c Config) Options() []Option {
	opts := []Option{
		WithMaxBufferLife(c.MaxBufferLife),
		WithPoolBudget(c.PoolBudgetMB << 20),
		WithShadowMapSize(c.ShadowMapSize),
	}
	if f, err := c.colorFormat(); err == nil {
		opts = append(opts, WithColorFormat(f))
	}
	return opts
}

// Marshal encodes the configuration as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
