package config

import "github.com/forPelevin/clipforge/internal/ports/adapters/ytdlp"

const (
	defaultOutputDir      = "output"
	defaultPromptsDir     = "prompts"
	defaultProvider       = ProviderOpenRouter
	defaultLLMModel       = "google/gemini-2.5-pro"
	defaultLLMReferer     = "https://github.com/forPelevin/clipforge"
	defaultLLMTitle       = "clipforge"
	defaultLLMTimeout     = 300
	defaultHeuristicClips = 5
	defaultMinClipSeconds = 20
	defaultMaxClipSeconds = 60
	defaultDatabaseURL    = "clipforge.db"
	defaultAPIBind        = "127.0.0.1:8000"
	defaultConcurrency    = 1
	defaultPollInterval   = 2
	defaultLeaseSeconds   = 120
	defaultLogFormat      = "text"
	defaultLogLevel       = "info"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderHeuristic  = "heuristic"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:  defaultOutputDir,
			PromptsDir: defaultPromptsDir,
		},
		Tools: Tools{
			FFmpeg:      "ffmpeg",
			FFprobe:     "ffprobe",
			YtDlp:       "yt-dlp",
			YtDlpFormat: ytdlp.DefaultFormat,
		},
		Whisper: Whisper{
			Bin:      "whisper-cli",
			Language: "en",
		},
		LLM: LLM{
			Provider:       defaultProvider,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeout,
			Clips:          defaultHeuristicClips,
			MinClipSeconds: defaultMinClipSeconds,
			MaxClipSeconds: defaultMaxClipSeconds,
		},
		Database: Database{URL: defaultDatabaseURL},
		API:      API{Bind: defaultAPIBind},
		Worker: Worker{
			Concurrency:         defaultConcurrency,
			PollIntervalSeconds: defaultPollInterval,
			LeaseSeconds:        defaultLeaseSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
