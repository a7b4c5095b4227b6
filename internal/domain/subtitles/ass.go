package subtitles

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/forPelevin/clipforge/internal/types"
)

// Event is one caption, timed relative to the clip start.
type Event struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Events selects transcription segments that lie fully inside [start, end] and shifts them
// to clip-local time. Segments straddling either boundary are left out.
func Events(segs []types.Segment, start, end time.Duration) []Event {
	upper := cases.Upper(language.Und)
	var out []Event
	for _, s := range segs {
		ss, se := types.Dur(s.Start), types.Dur(s.End)
		if ss < start || se > end || se <= ss {
			continue
		}
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, Event{Start: ss - start, End: se - start, Text: upper.String(text)})
	}
	return out
}

// RenderASS renders events as centered white captions with a black outline.
func RenderASS(events []Event) string {
	var b strings.Builder
	b.WriteString(assHeader())
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, e := range events {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Caption,,0,0,0,,%s\n", assTime(e.Start), assTime(e.End), sanitizeASS(e.Text))
	}
	return b.String()
}

// ClipASS is Events followed by RenderASS.
func ClipASS(segs []types.Segment, start, end time.Duration) (string, int) {
	ev := Events(segs, start, end)
	return RenderASS(ev), len(ev)
}

// Margins keep the wrapped block within the middle 80% of a 1920 wide frame.
func assHeader() string {
	return strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1920
PlayResY: 1080
WrapStyle: 0
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, Arial, 70, &H00FFFFFF, &H00FFFFFF, &H00000000, &H00000000, -1,0,0,0,100,100,0,0,1,3,0,5, 192,192,0,1
`)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
