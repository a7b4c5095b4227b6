package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/forPelevin/clipforge/internal/types"
)

// DefaultFormat caps downloads at 1080p and prefers streams that merge into MP4 without
// re-encoding.
const DefaultFormat = "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[height<=1080][ext=mp4]/best[height<=1080]"

type Adapter struct {
	bin    string
	format string
}

func New(binPath, format string) *Adapter {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	if format == "" {
		format = DefaultFormat
	}
	return &Adapter{bin: binPath, format: format}
}

func (a *Adapter) Probe(ctx context.Context, url string) (types.SourceInfo, error) {
	cmd := exec.CommandContext(ctx, a.bin,
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		url,
	)
	b, err := cmd.Output()
	if err != nil {
		return types.SourceInfo{}, fmt.Errorf("yt-dlp probe: %w%s", err, stderr(err))
	}
	return decodeInfo(b)
}

func (a *Adapter) Download(ctx context.Context, url, outMP4 string) error {
	cmd := exec.CommandContext(ctx, a.bin, downloadArgs(a.format, url, outMP4)...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("yt-dlp download: %w\n%s", err, string(b))
	}
	return nil
}

func downloadArgs(format, url, outMP4 string) []string {
	return []string{
		"--quiet",
		"--no-warnings",
		"--no-playlist",
		"--no-part",
		"-f", format,
		"--merge-output-format", "mp4",
		"-o", outMP4,
		url,
	}
}

func decodeInfo(b []byte) (types.SourceInfo, error) {
	var info types.SourceInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return types.SourceInfo{}, fmt.Errorf("decode yt-dlp info: %w", err)
	}
	info.Title = strings.TrimSpace(info.Title)
	if info.Title == "" {
		info.Title = "Unknown Title"
	}
	return info, nil
}

func stderr(err error) string {
	var ee *exec.ExitError
	if errors.As(err, &ee) && len(ee.Stderr) > 0 {
		return "\n" + string(ee.Stderr)
	}
	return ""
}
