package config

import (
	"errors"
	"fmt"

	"github.com/forPelevin/clipforge/internal/ports/adapters/openrouter"
)

// Validate ensures the configuration is usable. Credentials needed only by the pipeline
// (API key, whisper model) are checked by RequirePipeline so the API server can start
// without them.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequirePipeline reports missing settings that video processing needs.
func (c *Config) RequirePipeline() error {
	if c.Whisper.Model == "" {
		return errors.New("whisper.model is required. Set WHISPER_MODEL or edit the config file")
	}
	if c.LLM.Provider == ProviderOpenRouter && c.LLM.APIKey == "" {
		return errors.New("llm.api_key is required for the openrouter provider. Set OPENROUTER_API_KEY or use provider \"heuristic\"")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderOpenRouter:
		if err := openrouter.ValidateBaseURL(c.LLM.BaseURL, c.LLM.AllowedHosts); err != nil {
			return fmt.Errorf("llm.base_url: %w", err)
		}
	case ProviderHeuristic:
		if c.LLM.Clips <= 0 {
			return errors.New("llm.clips must be > 0")
		}
		if c.LLM.MinClipSeconds <= 0 || c.LLM.MaxClipSeconds <= 0 {
			return errors.New("llm.min_clip_seconds and llm.max_clip_seconds must be > 0")
		}
		if c.LLM.MinClipSeconds > c.LLM.MaxClipSeconds {
			return errors.New("llm.min_clip_seconds must be <= llm.max_clip_seconds")
		}
	default:
		return fmt.Errorf("llm.provider %q is not supported (use %q or %q)", c.LLM.Provider, ProviderOpenRouter, ProviderHeuristic)
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be > 0")
	}
	if c.Worker.LeaseSeconds < 2*c.Worker.PollIntervalSeconds {
		return errors.New("worker.lease_seconds must be at least twice worker.poll_interval_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use text or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}
