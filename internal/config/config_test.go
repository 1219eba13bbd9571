package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Match.Tolerance != 0.6 {
		t.Errorf("expected tolerance 0.6, got %v", cfg.Match.Tolerance)
	}
	if cfg.Stream.ProcessEveryN != 2 {
		t.Errorf("expected process_every_n 2, got %d", cfg.Stream.ProcessEveryN)
	}
	if cfg.Stream.Scale != 0.25 {
		t.Errorf("expected scale 0.25, got %v", cfg.Stream.Scale)
	}
	if !slices.Equal(cfg.Camera.Indices, []int{0, 1, 2, 3, 4}) {
		t.Errorf("expected camera indices 0..4, got %v", cfg.Camera.Indices)
	}
	if cfg.Camera.Width != 640 || cfg.Camera.Height != 480 || cfg.Camera.FPS != 15 {
		t.Errorf("unexpected camera settings %dx%d@%d", cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
	}
	if cfg.Embedding.Timeout != 30*time.Second {
		t.Errorf("expected embedding timeout 30s, got %v", cfg.Embedding.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FACECAM_CONFIG", "")
	t.Setenv("EMBEDDING_URL", "http://embed:9000")
	t.Setenv("MATCH_TOLERANCE", "0.45")
	t.Setenv("PROCESS_EVERY_N", "3")
	t.Setenv("CAMERA_INDICES", "2, 0")
	t.Setenv("GALLERY_PATH", "/tmp/g.gob.zst")
	t.Setenv("PREVIEW_ALLOWED_ORIGINS", "https://cam.example.com, ,http://nas:8080")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Embedding.URL != "http://embed:9000" {
		t.Errorf("expected embedding URL override, got %s", cfg.Embedding.URL)
	}
	if cfg.Match.Tolerance != 0.45 {
		t.Errorf("expected tolerance 0.45, got %v", cfg.Match.Tolerance)
	}
	if cfg.Stream.ProcessEveryN != 3 {
		t.Errorf("expected process_every_n 3, got %d", cfg.Stream.ProcessEveryN)
	}
	if !slices.Equal(cfg.Camera.Indices, []int{2, 0}) {
		t.Errorf("expected indices [2 0], got %v", cfg.Camera.Indices)
	}
	if cfg.Gallery.Path != "/tmp/g.gob.zst" {
		t.Errorf("expected gallery path override, got %s", cfg.Gallery.Path)
	}
	if !slices.Equal(cfg.Preview.AllowedOrigins, []string{"https://cam.example.com", "http://nas:8080"}) {
		t.Errorf("unexpected allowed origins %v", cfg.Preview.AllowedOrigins)
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("MATCH_TOLERANCE", "")
	path := filepath.Join(t.TempDir(), "facecam.yaml")
	content := "match:\n  tolerance: 0.5\nstream:\n  process_every_n: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if cfg.Match.Tolerance != 0.5 {
		t.Errorf("expected tolerance 0.5, got %v", cfg.Match.Tolerance)
	}
	if cfg.Stream.ProcessEveryN != 3 {
		t.Errorf("expected process_every_n 3, got %d", cfg.Stream.ProcessEveryN)
	}
	// untouched keys keep their defaults
	if cfg.Stream.Scale != 0.25 {
		t.Errorf("expected default scale 0.25, got %v", cfg.Stream.Scale)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative tolerance", func(c *Config) { c.Match.Tolerance = -0.1 }},
		{"zero every n", func(c *Config) { c.Stream.ProcessEveryN = 0 }},
		{"zero scale", func(c *Config) { c.Stream.Scale = 0 }},
		{"scale above one", func(c *Config) { c.Stream.Scale = 1.5 }},
		{"unknown strategy", func(c *Config) { c.Gallery.Strategy = "median" }},
		{"zero concurrency", func(c *Config) { c.Gallery.Concurrency = 0 }},
		{"no cameras", func(c *Config) { c.Camera.Indices = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestEnvInt(t *testing.T) {
	tests := []struct {
		value    string
		expected int
	}{
		{"", 7},
		{"12", 12},
		{"-3", 7},
		{"abc", 7},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("FACECAM_TEST_INT", tt.value)
			if got := envInt("FACECAM_TEST_INT", 7); got != tt.expected {
				t.Errorf("envInt(%q) = %d, want %d", tt.value, got, tt.expected)
			}
		})
	}
}
