package ports

import (
	"context"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

type Downloader interface {
	Probe(ctx context.Context, url string) (types.SourceInfo, error)
	Download(ctx context.Context, url, outMP4 string) error
}

type VideoTool interface {
	ExtractAudio(ctx context.Context, inMP4, outAudio string) error
	RenderClip(ctx context.Context, inMP4 string, start, end time.Duration, outMP4 string, burnASS string) error
	ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error)
}

type ASR interface {
	Transcribe(ctx context.Context, audioPath, workDir string) ([]types.Segment, error)
}

type SegmentSelector interface {
	Select(ctx context.Context, req types.SelectionRequest) (types.Metadata, error)
}
