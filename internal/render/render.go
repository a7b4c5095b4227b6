// Package render cuts clips out of a source video, one output file per clip, optionally with
// burned-in captions. A clip that already exists on disk is reused as is.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/clipforge/internal/domain/subtitles"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/stagecache"
	"github.com/forPelevin/clipforge/internal/types"
)

// CaptionBuffer extends captioned clips so the last caption is not cut mid-display.
const CaptionBuffer = time.Second

type Request struct {
	Source   string
	Clips    []types.ClipSpec
	OutDir   string
	Captions bool
	// Segments is the source transcription; required when Captions is set.
	Segments []types.Segment
}

type Renderer struct {
	video ports.VideoTool
	cache *stagecache.Cache
	logf  func(format string, args ...any)
}

func New(video ports.VideoTool, cache *stagecache.Cache, logf func(format string, args ...any)) *Renderer {
	if cache == nil {
		cache = stagecache.New(nil)
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Renderer{video: video, cache: cache, logf: logf}
}

// Render produces every clip of req in order and returns their paths. The first failure
// aborts the remaining clips; clips finished before it stay on disk for the next attempt.
func (r *Renderer) Render(ctx context.Context, req Request) ([]string, error) {
	if len(req.Clips) == 0 {
		return nil, types.StageErr(types.KindRender, errors.New("no clips to render"))
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return nil, types.StageErr(types.KindRender, fmt.Errorf("ensure output dir: %w", err))
	}

	var (
		duration time.Duration
		probed   bool
	)
	sourceDuration := func(ctx context.Context) (time.Duration, error) {
		if probed {
			return duration, nil
		}
		d, err := r.video.ProbeDuration(ctx, req.Source)
		if err != nil {
			return 0, fmt.Errorf("probe source duration: %w", err)
		}
		duration, probed = d, true
		return d, nil
	}

	out := make([]string, 0, len(req.Clips))
	for i, c := range req.Clips {
		path := filepath.Join(req.OutDir, ClipFilename(i+1, c.Title))
		hit, err := r.cache.File(ctx, path, func(ctx context.Context, tmp string) error {
			return r.renderOne(ctx, req, c, tmp, sourceDuration)
		})
		if err != nil {
			return nil, types.StageErr(types.KindRender, fmt.Errorf("clip %d %q: %w", i+1, c.Title, err))
		}
		if hit {
			r.logf("clip %d/%d exists, skipping: %s", i+1, len(req.Clips), path)
		} else {
			r.logf("clip %d/%d rendered: %s", i+1, len(req.Clips), path)
		}
		out = append(out, path)
	}
	return out, nil
}

func (r *Renderer) renderOne(ctx context.Context, req Request, c types.ClipSpec, tmp string, sourceDuration func(context.Context) (time.Duration, error)) error {
	start, end := c.Start(), c.End()
	if !req.Captions {
		return r.video.RenderClip(ctx, req.Source, start, end, tmp, "")
	}

	d, err := sourceDuration(ctx)
	if err != nil {
		return err
	}
	start, end = EffectiveRange(start, end, d, true)
	if end <= start {
		return fmt.Errorf("clip starts at %s, past the end of the source (%s)", start, d)
	}

	ass, n := subtitles.ClipASS(req.Segments, start, end)
	if n == 0 {
		r.logf("no captions fall inside %s-%s, rendering without", start, end)
		return r.video.RenderClip(ctx, req.Source, start, end, tmp, "")
	}
	assPath := strings.TrimSuffix(tmp, filepath.Ext(tmp)) + ".ass"
	if err := os.WriteFile(assPath, []byte(ass), 0o644); err != nil {
		return fmt.Errorf("write captions: %w", err)
	}
	defer os.Remove(assPath)
	return r.video.RenderClip(ctx, req.Source, start, end, tmp, assPath)
}

// EffectiveRange returns the range actually cut for a clip. Captioned clips get CaptionBuffer
// added to the end; the end never exceeds a known (positive) source duration.
func EffectiveRange(start, end, duration time.Duration, captions bool) (time.Duration, time.Duration) {
	if captions {
		end += CaptionBuffer
	}
	if duration > 0 && end > duration {
		end = duration
	}
	return start, end
}

// ClipFilename names the n-th (1-based) clip of a run.
func ClipFilename(n int, title string) string {
	return fmt.Sprintf("clip_%d_%s.mp4", n, Sanitize(title))
}

// Sanitize keeps letters, digits, spaces, underscores and hyphens, then trims trailing spaces.
func Sanitize(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}
