// Package heuristic selects clips without a model: transcript windows are scored with
// keyword heuristics and the best non-overlapping ones win. Output is deterministic for a
// given transcription.
package heuristic

import (
	"context"
	"errors"
	"strings"

	"github.com/forPelevin/clipforge/internal/domain/highlights"
	"github.com/forPelevin/clipforge/internal/types"
)

type Adapter struct {
	clips  int
	minSec float64
	maxSec float64
}

func New(clips int, minSec, maxSec float64) *Adapter {
	if clips <= 0 {
		clips = 5
	}
	if minSec <= 0 {
		minSec = 20
	}
	if maxSec < minSec {
		maxSec = minSec * 3
	}
	return &Adapter{clips: clips, minSec: minSec, maxSec: maxSec}
}

func (a *Adapter) Select(_ context.Context, req types.SelectionRequest) (types.Metadata, error) {
	cands := highlights.BuildCandidates(req.Segments, a.minSec, a.maxSec)
	picked := highlights.Pick(cands, a.clips, 2)
	if len(picked) == 0 {
		return types.Metadata{}, errors.New("heuristic: no window fits the clip length bounds")
	}
	md := types.Metadata{OriginalURL: req.SourceURL, OriginalTitle: req.SourceTitle}
	for _, c := range picked {
		md.Clips = append(md.Clips, types.ClipSpec{
			Title:       titleFrom(c.Text),
			Description: c.Text,
			StartSec:    c.StartSec,
			EndSec:      c.EndSec,
		})
	}
	return md, nil
}

// titleFrom uses the first few words of the window.
func titleFrom(text string) string {
	words := strings.Fields(text)
	if len(words) > 6 {
		words = words[:6]
	}
	t := strings.TrimRight(strings.Join(words, " "), ".,!?;:")
	if t == "" {
		return "Highlight"
	}
	return t
}
