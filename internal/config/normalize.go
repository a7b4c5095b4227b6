package config

import (
	"os"
	"path/filepath"
	"strings"
)

// applyEnv lets the environment (and a .env file loaded by the CLI) override file values.
func (c *Config) applyEnv() {
	setFromEnv(&c.LLM.APIKey, "OPENROUTER_API_KEY")
	setFromEnv(&c.LLM.Model, "OPENROUTER_MODEL")
	setFromEnv(&c.LLM.BaseURL, "OPENROUTER_BASE_URL")
	if v, ok := lookupEnv("OPENROUTER_ALLOWED_HOSTS"); ok {
		c.LLM.AllowedHosts = splitList(v)
	}
	setFromEnv(&c.Database.URL, "DATABASE_URL")
	setFromEnv(&c.Paths.OutputDir, "CLIPFORGE_OUTPUT_DIR")
	setFromEnv(&c.Logging.Level, "CLIPFORGE_LOG_LEVEL")
	setFromEnv(&c.Whisper.Model, "WHISPER_MODEL")
}

func (c *Config) normalize() {
	def := Default()
	trimDefault(&c.Paths.OutputDir, def.Paths.OutputDir)
	trimDefault(&c.Paths.PromptsDir, def.Paths.PromptsDir)
	c.Paths.OutputDir = filepath.Clean(c.Paths.OutputDir)
	c.Paths.PromptsDir = filepath.Clean(c.Paths.PromptsDir)

	trimDefault(&c.Tools.FFmpeg, def.Tools.FFmpeg)
	trimDefault(&c.Tools.FFprobe, def.Tools.FFprobe)
	trimDefault(&c.Tools.YtDlp, def.Tools.YtDlp)
	trimDefault(&c.Tools.YtDlpFormat, def.Tools.YtDlpFormat)

	trimDefault(&c.Whisper.Bin, def.Whisper.Bin)
	trimDefault(&c.Whisper.Language, def.Whisper.Language)
	c.Whisper.Model = strings.TrimSpace(c.Whisper.Model)

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	trimDefault(&c.LLM.Provider, def.LLM.Provider)
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	trimDefault(&c.LLM.Model, def.LLM.Model)
	trimDefault(&c.LLM.Referer, def.LLM.Referer)
	trimDefault(&c.LLM.Title, def.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = def.LLM.TimeoutSeconds
	}

	trimDefault(&c.Database.URL, def.Database.URL)
	trimDefault(&c.API.Bind, def.API.Bind)

	if c.Worker.PollIntervalSeconds <= 0 {
		c.Worker.PollIntervalSeconds = def.Worker.PollIntervalSeconds
	}
	if c.Worker.LeaseSeconds <= 0 {
		c.Worker.LeaseSeconds = def.Worker.LeaseSeconds
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	trimDefault(&c.Logging.Format, def.Logging.Format)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	trimDefault(&c.Logging.Level, def.Logging.Level)
}

func setFromEnv(dst *string, key string) {
	if v, ok := lookupEnv(key); ok {
		*dst = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func trimDefault(dst *string, def string) {
	*dst = strings.TrimSpace(*dst)
	if *dst == "" {
		*dst = def
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
