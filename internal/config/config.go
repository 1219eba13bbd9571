package config

import (
	_ "embed"
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is returned by Validate for out of range settings.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Gallery   GalleryConfig   `yaml:"gallery"`
	Match     MatchConfig     `yaml:"match"`
	Camera    CameraConfig    `yaml:"camera"`
	Stream    StreamConfig    `yaml:"stream"`
	Preview   PreviewConfig   `yaml:"preview"`
	Log       LogConfig       `yaml:"log"`
}

type EmbeddingConfig struct {
	URL     string        `yaml:"url"`     // face embedding server, defaults to http://localhost:8000
	Timeout time.Duration `yaml:"timeout"` // per request timeout
}

type GalleryConfig struct {
	Path        string `yaml:"path"`        // gallery file written by enroll and read by recognize
	DatasetDir  string `yaml:"dataset_dir"` // root of <identity>/<image> tree
	Strategy    string `yaml:"strategy"`    // "mean" or "multi"
	Concurrency int    `yaml:"concurrency"` // parallel provider calls during enrollment
}

type MatchConfig struct {
	Tolerance      float64 `yaml:"tolerance"`       // max Euclidean distance for a match
	HNSWThreshold  int     `yaml:"hnsw_threshold"`  // use HNSW above this many references (0 = never)
	HNSWCandidates int     `yaml:"hnsw_candidates"` // neighbours fetched from HNSW before exact re-rank
}

type CameraConfig struct {
	Indices     []int  `yaml:"indices"` // device indices probed in order
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	FPS         int    `yaml:"fps"`
	BufferSize  int    `yaml:"buffer_size"`
	SnapshotURL string `yaml:"snapshot_url"` // HTTP JPEG snapshot camera, used instead of a local device when set
}

type StreamConfig struct {
	ProcessEveryN int     `yaml:"process_every_n"`
	Scale         float64 `yaml:"scale"` // downscale factor applied before detection
	ScreenshotDir string  `yaml:"screenshot_dir"`
	WindowTitle   string  `yaml:"window_title"`
}

type PreviewConfig struct {
	Addr           string   `yaml:"addr"`            // listen address for the preview server, empty disables it
	AllowedOrigins []string `yaml:"allowed_origins"` // extra CORS origins, localhost is always allowed
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float64, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInts parses a comma separated list of integers (e.g. "0,2,4").
func envInts(key string, defaultVal []int) []int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []int
	for part := range strings.SplitSeq(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return defaultVal
		}
		out = append(out, n)
	}
	return out
}

// envStrings parses a comma separated list, dropping empty entries.
func envStrings(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Defaults returns the embedded default configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration from the embedded defaults, an optional YAML
// file and the environment. An empty path falls back to FACECAM_CONFIG.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("FACECAM_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Embedding.URL = envString("EMBEDDING_URL", c.Embedding.URL)
	if s := os.Getenv("EMBEDDING_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.Embedding.Timeout = d
		}
	}

	c.Gallery.Path = envString("GALLERY_PATH", c.Gallery.Path)
	c.Gallery.DatasetDir = envString("DATASET_DIR", c.Gallery.DatasetDir)
	c.Gallery.Strategy = envString("ENROLL_STRATEGY", c.Gallery.Strategy)
	c.Gallery.Concurrency = envInt("ENROLL_CONCURRENCY", c.Gallery.Concurrency)

	c.Match.Tolerance = envFloat("MATCH_TOLERANCE", c.Match.Tolerance)
	c.Match.HNSWThreshold = envInt("HNSW_THRESHOLD", c.Match.HNSWThreshold)
	c.Match.HNSWCandidates = envInt("HNSW_CANDIDATES", c.Match.HNSWCandidates)

	c.Camera.Indices = envInts("CAMERA_INDICES", c.Camera.Indices)
	c.Camera.Width = envInt("CAMERA_WIDTH", c.Camera.Width)
	c.Camera.Height = envInt("CAMERA_HEIGHT", c.Camera.Height)
	c.Camera.FPS = envInt("CAMERA_FPS", c.Camera.FPS)
	c.Camera.SnapshotURL = envString("SNAPSHOT_URL", c.Camera.SnapshotURL)

	c.Stream.ProcessEveryN = envInt("PROCESS_EVERY_N", c.Stream.ProcessEveryN)
	c.Stream.Scale = envFloat("FRAME_SCALE", c.Stream.Scale)
	c.Stream.ScreenshotDir = envString("SCREENSHOT_DIR", c.Stream.ScreenshotDir)

	c.Preview.Addr = envString("PREVIEW_ADDR", c.Preview.Addr)
	c.Preview.AllowedOrigins = envStrings("PREVIEW_ALLOWED_ORIGINS", c.Preview.AllowedOrigins)
	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
}

// Validate rejects settings the matcher and stream loop cannot work with.
func (c *Config) Validate() error {
	switch {
	case math.IsNaN(c.Match.Tolerance) || c.Match.Tolerance < 0:
		return goerr.Wrap(ErrInvalidConfig, "tolerance must be a non-negative number", goerr.V("tolerance", c.Match.Tolerance))
	case c.Stream.ProcessEveryN < 1:
		return goerr.Wrap(ErrInvalidConfig, "process_every_n must be at least 1", goerr.V("process_every_n", c.Stream.ProcessEveryN))
	case c.Stream.Scale <= 0 || c.Stream.Scale > 1:
		return goerr.Wrap(ErrInvalidConfig, "scale must be in (0, 1]", goerr.V("scale", c.Stream.Scale))
	case c.Gallery.Strategy != "mean" && c.Gallery.Strategy != "multi":
		return goerr.Wrap(ErrInvalidConfig, "strategy must be mean or multi", goerr.V("strategy", c.Gallery.Strategy))
	case c.Gallery.Concurrency < 1:
		return goerr.Wrap(ErrInvalidConfig, "concurrency must be at least 1", goerr.V("concurrency", c.Gallery.Concurrency))
	case len(c.Camera.Indices) == 0 && c.Camera.SnapshotURL == "":
		return goerr.Wrap(ErrInvalidConfig, "no camera indices configured")
	}
	return nil
}
