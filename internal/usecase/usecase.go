package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/forPelevin/clipforge/internal/domain/tracklist"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/render"
	"github.com/forPelevin/clipforge/internal/stagecache"
	"github.com/forPelevin/clipforge/internal/types"
)

// State is a step of one pipeline run.
type State string

const (
	StateStarted        State = "STARTED"
	StateDownloaded     State = "DOWNLOADED"
	StateDirectMetadata State = "DIRECT_METADATA"
	StateTranscribing   State = "TRANSCRIBING"
	StateAnalyzing      State = "ANALYZING"
	StateMetadataReady  State = "METADATA_READY"
	StateRendering      State = "RENDERING"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

type Deps struct {
	Downloader ports.Downloader
	Video      ports.VideoTool
	ASR        ports.ASR
	Selector   ports.SegmentSelector
	Cache      *stagecache.Cache
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Cache == nil {
		d.Cache = stagecache.New(nil)
	}
	return Usecase{d: d}
}

type Input struct {
	URL    string
	Layout Layout
	// RunID names the run folder. Empty means the metadata mode (direct or ai_<prompt>).
	RunID string

	PromptKey    string
	Prompt       string
	ExtraContext string
	Captions     bool
	// ShowMode looks for a tracklist in the video description.
	ShowMode bool
	// Tracklist is manually supplied tracklist text; it takes precedence over the description.
	Tracklist string

	Logf    func(format string, args ...any)
	Observe func(State)
}

type Result struct {
	Mode      string
	RunDir    string
	Metadata  types.Metadata
	Artifacts []string
}

// Run executes download, metadata (direct or AI) and rendering in order. Every stage output
// is cached, so a failed run is resumed by calling Run again with the same input.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	r := &run{u: u, in: in, logf: in.Logf, observe: in.Observe}
	if r.logf == nil {
		r.logf = func(string, ...any) {}
	}
	if r.observe == nil {
		r.observe = func(State) {}
	}
	res, err := r.exec(ctx)
	if err != nil {
		r.enter(StateFailed)
		return Result{}, err
	}
	return res, nil
}

type run struct {
	u       Usecase
	in      Input
	logf    func(format string, args ...any)
	observe func(State)

	segments []types.Segment
}

func (r *run) enter(s State) {
	r.logf("state: %s", s)
	r.observe(s)
}

func (r *run) exec(ctx context.Context) (Result, error) {
	in, d, l := r.in, r.u.d, r.in.Layout
	r.enter(StateStarted)

	info, err := stagecache.JSON(ctx, d.Cache, l.SourceInfo(), func(ctx context.Context) (types.SourceInfo, error) {
		r.logf("probing %s", in.URL)
		info, err := d.Downloader.Probe(ctx, in.URL)
		return info, types.StageErr(types.KindDownload, err)
	})
	if err != nil {
		return Result{}, types.StageErr(types.KindDownload, err)
	}
	r.logf("source: %q", info.Title)

	hit, err := d.Cache.File(ctx, l.Video(), func(ctx context.Context, tmp string) error {
		r.logf("downloading video")
		return d.Downloader.Download(ctx, in.URL, tmp)
	})
	if err != nil {
		return Result{}, types.StageErr(types.KindDownload, fmt.Errorf("download: %w", err))
	}
	if hit {
		r.logf("video already downloaded: %s", l.Video())
	}
	r.enter(StateDownloaded)

	entries, source, err := r.tracklist(info)
	if err != nil {
		return Result{}, err
	}
	mode := AIMode(in.PromptKey, in.ExtraContext)
	runName := mode
	if entries != nil {
		mode, runName = DirectMode, DirectRun(source)
	}
	if in.RunID != "" {
		runName = in.RunID
	}

	md, err := stagecache.JSON(ctx, d.Cache, l.Metadata(runName), func(ctx context.Context) (types.Metadata, error) {
		if entries != nil {
			r.enter(StateDirectMetadata)
			r.logf("tracklist with %d entries, clipping directly", len(entries))
			md := types.Metadata{
				OriginalURL:   in.URL,
				OriginalTitle: info.Title,
				Clips:         tracklist.ToClips(entries, info.Title),
			}
			return md, checkMetadata(md)
		}
		return r.analyze(ctx, info)
	})
	if err != nil {
		return Result{}, types.StageErr(types.KindAnalysis, err)
	}
	r.enter(StateMetadataReady)
	r.logf("metadata: %d clips (%s)", len(md.Clips), mode)

	if in.Captions {
		if _, err := r.transcription(ctx); err != nil {
			return Result{}, err
		}
	}

	r.enter(StateRendering)
	runDir := l.RunDir(runName)
	paths, err := render.New(d.Video, d.Cache, r.logf).Render(ctx, render.Request{
		Source:   l.Video(),
		Clips:    md.Clips,
		OutDir:   runDir,
		Captions: in.Captions,
		Segments: r.segments,
	})
	if err != nil {
		return Result{}, err
	}
	r.enter(StateDone)
	return Result{Mode: mode, RunDir: runDir, Metadata: md, Artifacts: paths}, nil
}

// tracklist returns nil entries when clips must be selected by analysis, otherwise the
// entries and the text they were parsed from.
func (r *run) tracklist(info types.SourceInfo) ([]types.TrackEntry, string, error) {
	if strings.TrimSpace(r.in.Tracklist) != "" {
		entries, err := tracklist.Parse(r.in.Tracklist)
		if err != nil {
			return nil, "", types.StageErr(types.KindParse, fmt.Errorf("manual tracklist: %w", err))
		}
		if entries == nil {
			r.logf("warning: manual tracklist has fewer than two usable entries, using AI analysis")
		}
		return entries, r.in.Tracklist, nil
	}
	if !r.in.ShowMode {
		return nil, "", nil
	}
	entries, err := tracklist.Parse(info.Description)
	if err != nil {
		r.logf("description tracklist unusable (%v), using AI analysis", err)
		return nil, "", nil
	}
	if entries == nil {
		r.logf("no tracklist in the description, using AI analysis")
	}
	return entries, info.Description, nil
}

func (r *run) analyze(ctx context.Context, info types.SourceInfo) (types.Metadata, error) {
	in, d := r.in, r.u.d
	r.enter(StateTranscribing)
	segs, err := r.transcription(ctx)
	if err != nil {
		return types.Metadata{}, err
	}

	r.enter(StateAnalyzing)
	return stagecache.JSON(ctx, d.Cache, in.Layout.Analysis(in.PromptKey, in.ExtraContext), func(ctx context.Context) (types.Metadata, error) {
		r.logf("selecting clips from %d transcription segments (prompt %q)", len(segs), in.PromptKey)
		md, err := d.Selector.Select(ctx, types.SelectionRequest{
			Segments:     segs,
			SourceTitle:  info.Title,
			SourceURL:    in.URL,
			Prompt:       in.Prompt,
			ExtraContext: in.ExtraContext,
		})
		if err != nil {
			return types.Metadata{}, types.StageErr(types.KindAnalysis, err)
		}
		md.OriginalURL = in.URL
		if md.OriginalTitle == "" {
			md.OriginalTitle = info.Title
		}
		return md, checkMetadata(md)
	})
}

// transcription extracts audio and transcribes it, both cached, at most once per run.
func (r *run) transcription(ctx context.Context) ([]types.Segment, error) {
	if r.segments != nil {
		return r.segments, nil
	}
	d, l := r.u.d, r.in.Layout

	if _, err := d.Cache.File(ctx, l.Audio(), func(ctx context.Context, tmp string) error {
		r.logf("extracting audio")
		return d.Video.ExtractAudio(ctx, l.Video(), tmp)
	}); err != nil {
		return nil, types.StageErr(types.KindExtraction, fmt.Errorf("extract audio: %w", err))
	}

	segs, err := stagecache.JSON(ctx, d.Cache, l.Transcription(), func(ctx context.Context) ([]types.Segment, error) {
		r.logf("transcribing audio")
		segs, err := d.ASR.Transcribe(ctx, l.Audio(), l.CacheDir())
		if err != nil {
			return nil, err
		}
		if segs == nil {
			segs = []types.Segment{}
		}
		return segs, nil
	})
	if err != nil {
		return nil, types.StageErr(types.KindTranscription, fmt.Errorf("transcribe: %w", err))
	}
	if segs == nil {
		segs = []types.Segment{}
	}
	r.segments = segs
	return segs, nil
}

// checkMetadata keeps unusable clip lists out of the cache.
func checkMetadata(md types.Metadata) error {
	if len(md.Clips) == 0 {
		return types.StageErr(types.KindAnalysis, errors.New("metadata has no clips"))
	}
	for i, c := range md.Clips {
		if c.EndSec <= c.StartSec {
			return types.StageErr(types.KindAnalysis, fmt.Errorf("clip %d %q ends at %.2fs, not after its start %.2fs", i+1, c.Title, c.EndSec, c.StartSec))
		}
		if c.StartSec < 0 {
			return types.StageErr(types.KindAnalysis, fmt.Errorf("clip %d %q starts before the video", i+1, c.Title))
		}
	}
	return nil
}
