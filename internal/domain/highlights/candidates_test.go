package highlights

import (
	"testing"

	"github.com/forPelevin/clipforge/internal/types"
)

func TestBuildCandidates_RespectsBounds(t *testing.T) {
	segs := []types.Segment{
		{Start: 0, End: 40, Text: "A"},
		{Start: 40, End: 90, Text: "B"},
		{Start: 90, End: 100, Text: "C"},
	}
	cands := BuildCandidates(segs, 30, 60)
	if len(cands) == 0 {
		t.Fatalf("expected candidates")
	}
	for _, c := range cands {
		d := c.EndSec - c.StartSec
		if d > 60 || d < 30 {
			t.Fatalf("candidate out of bounds: %+v", c)
		}
	}
}

func TestBuildCandidates_InvalidBounds(t *testing.T) {
	segs := []types.Segment{{Start: 0, End: 10, Text: "x"}}
	if got := BuildCandidates(segs, 20, 10); got != nil {
		t.Fatalf("expected nil for min > max, got %+v", got)
	}
	if got := BuildCandidates(nil, 1, 10); got != nil {
		t.Fatalf("expected nil for empty transcript, got %+v", got)
	}
}

func TestPick_NonOverlappingTimelineOrder(t *testing.T) {
	cands := []Candidate{
		{StartSec: 100, EndSec: 130, Info: 5},
		{StartSec: 0, EndSec: 30, Info: 3},
		{StartSec: 110, EndSec: 140, Info: 4},
		{StartSec: 200, EndSec: 230, Hook: 1},
	}
	got := Pick(cands, 2, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 picks, got %d", len(got))
	}
	if got[0].StartSec != 0 || got[1].StartSec != 100 {
		t.Fatalf("unexpected picks: %+v", got)
	}
}

func TestPick_Empty(t *testing.T) {
	if Pick(nil, 3, 0) != nil || Pick([]Candidate{{}}, 0, 0) != nil {
		t.Fatalf("expected nil")
	}
}
