package usecase

import (
	"path/filepath"
	"strings"

	"github.com/forPelevin/clipforge/internal/stagecache"
)

// DirectMode names runs whose clips come from a tracklist.
const DirectMode = "direct"

// Layout is the on-disk contract for one source video:
//
//	<root>/_cache/{source_info.json,downloaded_video.mp4,audio.mp3,transcription_segments.json}
//	<root>/_cache/analysis_<prompt>[_<ctxhash>].json
//	<root>/<run>/metadata.json    (run: job id, ai_<prompt>[_<ctxhash>] or direct_<tracklisthash>)
//	<root>/<run>/clip_<n>_<title>.mp4
type Layout struct {
	Root string
}

func (l Layout) CacheDir() string      { return filepath.Join(l.Root, "_cache") }
func (l Layout) SourceInfo() string    { return filepath.Join(l.CacheDir(), "source_info.json") }
func (l Layout) Video() string         { return filepath.Join(l.CacheDir(), "downloaded_video.mp4") }
func (l Layout) Audio() string         { return filepath.Join(l.CacheDir(), "audio.mp3") }
func (l Layout) Transcription() string { return filepath.Join(l.CacheDir(), "transcription_segments.json") }

// Analysis is keyed by the prompt preset and a hash of the extra context, the only selector
// inputs that vary for a fixed transcription.
func (l Layout) Analysis(promptKey, extraContext string) string {
	return filepath.Join(l.CacheDir(), "analysis_"+variant(promptKey, extraContext)+".json")
}

func (l Layout) RunDir(run string) string   { return filepath.Join(l.Root, run) }
func (l Layout) Metadata(run string) string { return filepath.Join(l.RunDir(run), "metadata.json") }

// Intermediates are the large cache files that a finished run no longer needs.
func (l Layout) Intermediates() []string {
	return []string{l.Video(), l.Audio(), l.Transcription()}
}

// AIMode names runs whose clips were selected from the transcription.
func AIMode(promptKey, extraContext string) string {
	return "ai_" + variant(promptKey, extraContext)
}

// DirectRun names the run folder of a tracklist run; a different tracklist gets its own folder.
func DirectRun(tracklistText string) string {
	return DirectMode + "_" + stagecache.Key(strings.TrimSpace(tracklistText))
}

func variant(promptKey, extraContext string) string {
	if promptKey == "" {
		promptKey = "default"
	}
	if strings.TrimSpace(extraContext) == "" {
		return promptKey
	}
	return promptKey + "_" + stagecache.Key(extraContext)
}
