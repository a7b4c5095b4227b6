package highlights

import (
	"sort"
	"strings"

	"github.com/forPelevin/clipforge/internal/types"
)

type Candidate struct {
	StartSec float64
	EndSec   float64
	Text     string
	Info     float64
	Hook     float64
}

func (c Candidate) Total() float64 { return c.Info + c.Hook }

// maxCandidates bounds work on very long transcripts.
const maxCandidates = 2000

// BuildCandidates grows windows of consecutive transcription segments from every start
// segment and keeps those whose span falls within [minSec, maxSec].
func BuildCandidates(segs []types.Segment, minSec, maxSec float64) []Candidate {
	if minSec <= 0 {
		minSec = 1
	}
	if maxSec <= 0 || maxSec < minSec || len(segs) == 0 {
		return nil
	}

	var out []Candidate
	for i := range segs {
		start := segs[i].Start
		var parts []string
		for j := i; j < len(segs); j++ {
			win := segs[j].End - start
			if win > maxSec {
				break
			}
			if text := strings.TrimSpace(segs[j].Text); text != "" {
				parts = append(parts, text)
			}
			if win < minSec || len(parts) == 0 {
				continue
			}
			text := strings.Join(parts, " ")
			info, hook := Score(text)
			out = append(out, Candidate{StartSec: start, EndSec: segs[j].End, Text: text, Info: info, Hook: hook})
			if len(out) >= maxCandidates {
				return out
			}
		}
	}
	return out
}

// Pick returns up to n best-scoring candidates that do not overlap each other (with at
// least gapSec between them), ordered along the timeline. Ties prefer earlier windows.
func Pick(cands []Candidate, n int, gapSec float64) []Candidate {
	if n <= 0 || len(cands) == 0 {
		return nil
	}
	best := make([]Candidate, len(cands))
	copy(best, cands)
	sort.SliceStable(best, func(i, j int) bool {
		if best[i].Total() == best[j].Total() {
			return best[i].StartSec < best[j].StartSec
		}
		return best[i].Total() > best[j].Total()
	})

	out := make([]Candidate, 0, n)
	for _, c := range best {
		if len(out) >= n {
			break
		}
		if overlaps(out, c, gapSec) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartSec < out[j].StartSec })
	return out
}

func overlaps(existing []Candidate, c Candidate, gapSec float64) bool {
	for _, e := range existing {
		if c.StartSec < e.EndSec+gapSec && c.EndSec > e.StartSec-gapSec {
			return true
		}
	}
	return false
}
