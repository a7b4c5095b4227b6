package highlights

import (
	"regexp"
	"strings"
)

var (
	// Whisper marks non-speech audio as [Applause], (laughing), [MUSIC] and so on.
	reCue      = regexp.MustCompile(`[\[(]([^\])]{1,24})[\])]`)
	reReaction = regexp.MustCompile(`(?i)applause|laugh|cheer|crowd|scream|clap`)
	reMusic    = regexp.MustCompile(`(?i)music|sing|♪`)

	reNumber  = regexp.MustCompile(`\b\d+(?:[\.,]\d+)?\b`)
	reExplain = regexp.MustCompile(`(?i)\b(how\s+to|step\s+\d+|first|second|third|because|the\s+reason|this\s+song\s+is\s+about|we\s+wrote)\b`)
	reHook    = regexp.MustCompile(`(?i)\b(important|secret|mistake|never|always|here\s+is\s+why|remember|listen|watch\s+this|sing\s+along|one\s+more)\b`)
	reFiller  = regexp.MustCompile(`(?i)\b(um+|uh+|erm|you\s+know|i\s+mean|kind\s+of)\b`)
)

// Score rates a transcript window on two axes in [0..10]. info grows with concrete spoken
// content and shrinks with filler words. hook grows with audience reactions, music cues and
// attention-grabbing phrasing.
func Score(text string) (info, hook float64) {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0, 0
	}

	for _, m := range reCue.FindAllStringSubmatch(t, -1) {
		switch {
		case reReaction.MatchString(m[1]):
			hook += 1.1
		case reMusic.MatchString(m[1]):
			hook += 0.5
		}
	}
	spoken := strings.TrimSpace(reCue.ReplaceAllString(t, " "))
	if spoken == "" {
		return 0, clamp(hook, 0, 10)
	}
	lower := strings.ToLower(spoken)

	info = float64(len(reNumber.FindAllStringIndex(spoken, -1))) * 0.4
	if reExplain.MatchString(lower) {
		info += 1.2
	}
	info -= 0.3 * float64(len(reFiller.FindAllStringIndex(lower, -1)))
	info -= 0.0006 * float64(len([]rune(spoken)))

	hook += float64(len(reHook.FindAllStringIndex(lower, -1))) * 0.9
	hook += float64(strings.Count(spoken, "?")) * 0.7
	hook += float64(strings.Count(spoken, "!")) * 0.3

	return clamp(info, 0, 10), clamp(hook, 0, 10)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
