package tracklist

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/forPelevin/clipforge/internal/types"
)

// LastTrackFallbackSec is the length given to the final entry, which has no successor.
const LastTrackFallbackSec = 180

const ts = `(\d+(?::\d+){1,2})`

var (
	// "Song title - 1:02:03"
	reTitleFirst = regexp.MustCompile(`^(.*?)\s*[-–—|]\s*` + ts + `$`)
	// "1:02:03 - Song title"
	reTimeFirst   = regexp.MustCompile(`^` + ts + `\s*[-–—|]?\s*(.*)$`)
	reTrackNumber = regexp.MustCompile(`^\d+\s*[.\-]?\s*`)
)

type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tracklist line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TimestampToSeconds converts "H:MM:SS" or "MM:SS" to seconds.
func TimestampToSeconds(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("timestamp %q: want 2 or 3 fields, got %d", s, len(parts))
	}
	total := 0
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return 0, fmt.Errorf("timestamp %q: field %q is not a number", s, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: %w", s, err)
		}
		if i > 0 && (len(p) != 2 || n >= 60) {
			return 0, fmt.Errorf("timestamp %q: field %q must be two digits below 60", s, p)
		}
		total = total*60 + n
	}
	return total, nil
}

// Parse extracts a tracklist from free text. It returns nil when fewer than two entries
// are found; a single match is treated as noise.
func Parse(description string) ([]types.TrackEntry, error) {
	lines := strings.Split(description, "\n")
	var out []types.TrackEntry

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		m := reTitleFirst.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sec, err := TimestampToSeconds(m[2])
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: err}
		}
		title := strings.TrimSpace(reTrackNumber.ReplaceAllString(m[1], ""))
		out = append(out, types.TrackEntry{StartSec: sec, Title: title})
	}

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		m := reTimeFirst.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[2])
		if captured(out, title) {
			continue
		}
		sec, err := TimestampToSeconds(m[1])
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: err}
		}
		out = append(out, types.TrackEntry{StartSec: sec, Title: title})
	}

	if len(out) < 2 {
		return nil, nil
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartSec < out[j].StartSec })
	return out, nil
}

func captured(existing []types.TrackEntry, title string) bool {
	for _, e := range existing {
		if e.Title != "" && strings.Contains(title, e.Title) {
			return true
		}
	}
	return false
}

// ToClips turns a sorted tracklist into clip specs: each entry runs until the next one starts.
// Entries sharing a start offset with their successor are skipped.
func ToClips(entries []types.TrackEntry, sourceTitle string) []types.ClipSpec {
	out := make([]types.ClipSpec, 0, len(entries))
	for i, e := range entries {
		end := e.StartSec + LastTrackFallbackSec
		if i+1 < len(entries) {
			end = entries[i+1].StartSec
		}
		if end <= e.StartSec {
			continue
		}
		out = append(out, types.ClipSpec{
			Title:       e.Title,
			Description: fmt.Sprintf("Clip of the song %s from the show %s.", e.Title, sourceTitle),
			StartSec:    float64(e.StartSec),
			EndSec:      float64(end),
		})
	}
	return out
}
