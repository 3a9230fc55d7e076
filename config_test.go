package rtsgfx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
backend = "noop"
width = 1280
height = 720
shadow_map_size = 2048
color_format = "rgba8unorm"
`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Backend != "noop" || cfg.Width != 1280 || cfg.Height != 720 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ShadowMapSize != 2048 {
		t.Errorf("ShadowMapSize = %d, want 2048", cfg.ShadowMapSize)
	}
	// Unset keys keep their defaults.
	if cfg.MaxBufferLife != DefaultConfig().MaxBufferLife {
		t.Errorf("MaxBufferLife = %d, want default", cfg.MaxBufferLife)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", `fullscreen = true`},
		{"bad backend", `backend = "glide"`},
		{"bad size", `width = 0`},
		{"bad color format", `color_format = "r5g6b5"`},
		{"syntax", `width = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.data)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ParseConfig(%q) = %v, want ErrInvalidConfig", tt.data, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.toml")
	if err := os.WriteFile(path, []byte("width = 640\nheight = 480\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("size = %dx%d, want 640x480", cfg.Width, cfg.Height)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadConfig(missing) succeeded")
	}
}

func TestConfigMarshal(t *testing.T) {
	want := DefaultConfig()
	want.Backend = "vulkan"
	want.PoolBudgetMB = 16

	data, err := want.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig(Marshal()): %v\n%s", err, data)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ColorFormat = "rgba8unorm"
	cfg.PoolBudgetMB = 8
	cfg.ShadowMapSize = 512

	o := defaultOptions()
	for _, opt := range cfg.Options() {
		opt(&o)
	}
	if o.colorFormat != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("colorFormat = %v, want RGBA8Unorm", o.colorFormat)
	}
	if o.poolBudget != 8<<20 {
		t.Errorf("poolBudget = %d, want %d", o.poolBudget, 8<<20)
	}
	if o.shadowSize != 512 || o.maxLife != cfg.MaxBufferLife {
		t.Errorf("shadowSize = %d, maxLife = %d", o.shadowSize, o.maxLife)
	}
}
