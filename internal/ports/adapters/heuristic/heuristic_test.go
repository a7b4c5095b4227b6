package heuristic

import (
	"context"
	"reflect"
	"testing"

	"github.com/forPelevin/clipforge/internal/types"
)

func testSegments() []types.Segment {
	return []types.Segment{
		{Start: 0, End: 10, Text: "Hi everyone, welcome back to the channel."},
		{Start: 10, End: 25, Text: "Step 1: tune the low string down."},
		{Start: 25, End: 40, Text: "This is the secret! Never skip it."},
		{Start: 40, End: 60, Text: "Okay, moving on."},
		{Start: 60, End: 80, Text: "Why does it matter? Here is why it is important."},
		{Start: 80, End: 95, Text: "Thanks for watching."},
	}
}

func TestSelect_Deterministic(t *testing.T) {
	a := New(2, 15, 40)
	req := types.SelectionRequest{Segments: testSegments(), SourceTitle: "Lesson", SourceURL: "u"}

	first, err := a.Select(context.Background(), req)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	second, err := a.Select(context.Background(), req)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("selection is not deterministic")
	}
	if len(first.Clips) != 2 || first.OriginalTitle != "Lesson" || first.OriginalURL != "u" {
		t.Fatalf("unexpected metadata: %+v", first)
	}
	for i, c := range first.Clips {
		if d := c.EndSec - c.StartSec; d < 15 || d > 40 {
			t.Fatalf("clip %d duration %.1f out of bounds", i, d)
		}
		if i > 0 && c.StartSec < first.Clips[i-1].EndSec {
			t.Fatalf("clips overlap: %+v", first.Clips)
		}
	}
}

func TestSelect_NothingFits(t *testing.T) {
	a := New(1, 500, 600)
	if _, err := a.Select(context.Background(), types.SelectionRequest{Segments: testSegments()}); err == nil {
		t.Fatalf("expected error when no window fits")
	}
}

func TestTitleFrom(t *testing.T) {
	if got := titleFrom("This is the secret! Never skip it, ok?"); got != "This is the secret! Never skip" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := titleFrom("Done."); got != "Done" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := titleFrom("  "); got != "Highlight" {
		t.Fatalf("unexpected title %q", got)
	}
}
