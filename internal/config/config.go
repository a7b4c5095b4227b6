package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is looked up in the working directory when no path is given.
const DefaultPath = "clipforge.toml"

// Paths contains directory configuration.
type Paths struct {
	OutputDir  string `toml:"output_dir"`
	PromptsDir string `toml:"prompts_dir"`
}

// Tools names the external binaries.
type Tools struct {
	FFmpeg      string `toml:"ffmpeg"`
	FFprobe     string `toml:"ffprobe"`
	YtDlp       string `toml:"yt_dlp"`
	YtDlpFormat string `toml:"yt_dlp_format"`
}

type Whisper struct {
	Bin      string `toml:"bin"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// LLM selects and configures the segment selector. Provider is "openrouter" or "heuristic".
type LLM struct {
	Provider       string   `toml:"provider"`
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	AllowedHosts   []string `toml:"allowed_hosts"`
	Model          string   `toml:"model"`
	Referer        string   `toml:"referer"`
	Title          string   `toml:"title"`
	TimeoutSeconds int      `toml:"timeout_seconds"`

	// heuristic provider
	Clips          int     `toml:"clips"`
	MinClipSeconds float64 `toml:"min_clip_seconds"`
	MaxClipSeconds float64 `toml:"max_clip_seconds"`
}

// Database holds the job store DSN: a SQLite file path or a postgres:// URL.
type Database struct {
	URL string `toml:"url"`
}

type API struct {
	Bind        string   `toml:"bind"`
	CORSOrigins []string `toml:"cors_origins"`
}

type Worker struct {
	Concurrency         int `toml:"concurrency"`
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	LeaseSeconds        int `toml:"lease_seconds"`
}

type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is built once at process start and passed down to every component.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Tools    Tools    `toml:"tools"`
	Whisper  Whisper  `toml:"whisper"`
	LLM      LLM      `toml:"llm"`
	Database Database `toml:"database"`
	API      API      `toml:"api"`
	Worker   Worker   `toml:"worker"`
	Logging  Logging  `toml:"logging"`
}

// Load parses the config file at path (DefaultPath when empty), applies environment
// overrides and validates the result. A missing file yields the defaults. It returns the
// resolved path and whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, "", false, fmt.Errorf("resolve config path: %w", err)
	}

	exists := true
	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		exists = false
	case err != nil:
		return nil, "", false, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// LLMTimeout is the request timeout for the selector.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.PollIntervalSeconds) * time.Second
}

func (c *Config) Lease() time.Duration {
	return time.Duration(c.Worker.LeaseSeconds) * time.Second
}
