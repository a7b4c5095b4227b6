package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/forPelevin/clipforge/internal/config"
	"github.com/forPelevin/clipforge/internal/logging"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/clipforge/internal/ports/adapters/heuristic"
	"github.com/forPelevin/clipforge/internal/ports/adapters/openrouter"
	"github.com/forPelevin/clipforge/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/clipforge/internal/ports/adapters/ytdlp"
	"github.com/forPelevin/clipforge/internal/prompts"
	"github.com/forPelevin/clipforge/internal/stagecache"
	"github.com/forPelevin/clipforge/internal/types"
	"github.com/forPelevin/clipforge/internal/usecase"
)

// ShowPrompt is the preset that also enables tracklist detection in the description.
const ShowPrompt = "show"

var reVideoID = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})`)

// VideoID extracts the 11 character YouTube video id from a watch, short or embed URL.
func VideoID(url string) (string, error) {
	m := reVideoID.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", fmt.Errorf("could not extract a video id from %q", url)
	}
	return m[1], nil
}

// Request is one pipeline invocation.
type Request struct {
	URL          string
	PromptKey    string
	ExtraContext string
	Captions     bool
	ShowMode     bool
	// Tracklist is manual tracklist text (the CLI reads it from --setlist).
	Tracklist string
	// RunID names the run folder; empty lets the metadata mode name it.
	RunID   string
	Observe func(usecase.State)
	Logger  *slog.Logger
}

type Runner struct {
	cfg     *config.Config
	uc      usecase.Usecase
	presets prompts.Presets
	logger  *slog.Logger
}

// New wires production adapters from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if err := cfg.RequirePipeline(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	presets, err := prompts.Load(cfg.Paths.PromptsDir)
	if err != nil {
		return nil, err
	}
	if len(presets) == 0 {
		logger.Warn("no prompt presets found", "dir", cfg.Paths.PromptsDir)
	}
	return NewWithDeps(cfg, Adapters(cfg, logger), presets, logger), nil
}

// NewWithDeps builds a Runner around already constructed adapters.
func NewWithDeps(cfg *config.Config, deps usecase.Deps, presets prompts.Presets, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{cfg: cfg, uc: usecase.New(deps), presets: presets, logger: logger}
}

// Adapters builds the production capability adapters.
func Adapters(cfg *config.Config, logger *slog.Logger) usecase.Deps {
	var selector ports.SegmentSelector
	switch cfg.LLM.Provider {
	case config.ProviderHeuristic:
		selector = heuristic.New(cfg.LLM.Clips, cfg.LLM.MinClipSeconds, cfg.LLM.MaxClipSeconds)
	default:
		selector = openrouter.New(openrouter.Options{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			Referer: cfg.LLM.Referer,
			Title:   cfg.LLM.Title,
			Timeout: cfg.LLMTimeout(),
		})
	}
	return usecase.Deps{
		Downloader: ytdlp.New(cfg.Tools.YtDlp, cfg.Tools.YtDlpFormat),
		Video:      ffmpeg.New(cfg.Tools.FFmpeg, cfg.Tools.FFprobe),
		ASR:        whispercpp.New(cfg.Whisper.Bin, cfg.Whisper.Model, cfg.Whisper.Language),
		Selector:   selector,
		Cache:      stagecache.New(logger),
	}
}

// Layout returns the on-disk layout for a video id under the configured output dir.
func (r *Runner) Layout(videoID string) usecase.Layout {
	return usecase.Layout{Root: filepath.Join(r.cfg.Paths.OutputDir, videoID)}
}

// Presets exposes the loaded prompt presets.
func (r *Runner) Presets() prompts.Presets { return r.presets }

// Run processes one video.
func (r *Runner) Run(ctx context.Context, req Request) (usecase.Result, error) {
	videoID, err := VideoID(req.URL)
	if err != nil {
		return usecase.Result{}, types.StageErr(types.KindDownload, err)
	}
	key := req.PromptKey
	if key == "" {
		key = prompts.DefaultKey
	}
	if err := prompts.CheckKey(key); err != nil {
		return usecase.Result{}, types.StageErr(types.KindAnalysis, err)
	}
	prompt, err := r.presets.Get(key)
	if err != nil && r.cfg.LLM.Provider != config.ProviderHeuristic {
		return usecase.Result{}, types.StageErr(types.KindAnalysis, err)
	}

	logger := req.Logger
	if logger == nil {
		logger = r.logger.With(slog.String("video_id", videoID))
	}
	return r.uc.Run(ctx, usecase.Input{
		URL:          req.URL,
		Layout:       r.Layout(videoID),
		RunID:        req.RunID,
		PromptKey:    key,
		Prompt:       prompt,
		ExtraContext: req.ExtraContext,
		Captions:     req.Captions,
		ShowMode:     req.ShowMode || key == ShowPrompt,
		Tracklist:    req.Tracklist,
		Logf:         logging.Logf(logger),
		Observe:      req.Observe,
	})
}

// Process runs a queued job; its run folder is named after the job id.
func (r *Runner) Process(ctx context.Context, job types.Job) ([]string, error) {
	videoID, _ := VideoID(job.SourceURL)
	res, err := r.Run(ctx, Request{
		URL:          job.SourceURL,
		PromptKey:    job.Options.Prompt,
		ExtraContext: job.Options.ExtraContext,
		Captions:     job.Options.Captions,
		ShowMode:     job.Options.ShowMode,
		RunID:        strconv.FormatInt(job.ID, 10),
		Logger:       logging.WithJob(r.logger, job.ID, videoID),
	})
	if err != nil {
		return nil, err
	}
	return res.Artifacts, nil
}

// Cleanup removes the downloaded video, audio and transcription of a finished run.
// Source info, analysis results and run folders are kept.
func Cleanup(l usecase.Layout) ([]string, error) {
	var removed []string
	var errs []error
	for _, p := range l.Intermediates() {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = append(removed, p)
		case errors.Is(err, fs.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

// ensure adapters implement ports
var _ ports.Downloader = (*ytdlp.Adapter)(nil)
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.SegmentSelector = (*openrouter.Adapter)(nil)
var _ ports.SegmentSelector = (*heuristic.Adapter)(nil)
