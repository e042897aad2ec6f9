package availability

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 1, 5, h, m, 0, 0, time.UTC)
}

func TestIntervalOverlaps(t *testing.T) {
	a := Interval{Start: at(9, 0), End: at(10, 0)}

	if !a.Overlaps(Interval{Start: at(9, 30), End: at(10, 30)}) {
		t.Fatal("expected partial overlap")
	}
	if !a.Overlaps(Interval{Start: at(9, 15), End: at(9, 45)}) {
		t.Fatal("expected contained interval to overlap")
	}
	// Half-open: touching endpoints do not overlap.
	if a.Overlaps(Interval{Start: at(10, 0), End: at(11, 0)}) {
		t.Fatal("touching intervals must not overlap")
	}
	if a.Overlaps(Interval{Start: at(8, 0), End: at(9, 0)}) {
		t.Fatal("touching intervals must not overlap")
	}
}

func TestSubtract_NoBlocksReturnsBase(t *testing.T) {
	base := Interval{Start: at(9, 0), End: at(17, 0)}
	got := Subtract(base, nil)
	if len(got) != 1 || !got[0].Start.Equal(base.Start) || !got[0].End.Equal(base.End) {
		t.Fatalf("expected base back, got %v", got)
	}
}

func TestSubtract_SplitsAroundBlock(t *testing.T) {
	base := Interval{Start: at(9, 0), End: at(17, 0)}
	got := Subtract(base, []Interval{{Start: at(12, 0), End: at(13, 0)}})
	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got))
	}
	if !got[0].End.Equal(at(12, 0)) || !got[1].Start.Equal(at(13, 0)) {
		t.Fatalf("unexpected windows %v", got)
	}
}

func TestSubtract_MergesOverlappingBlocks(t *testing.T) {
	base := Interval{Start: at(9, 0), End: at(17, 0)}
	blocks := []Interval{
		{Start: at(11, 0), End: at(13, 0)},
		{Start: at(12, 30), End: at(14, 0)},
		{Start: at(8, 0), End: at(9, 30)},
	}
	got := Subtract(base, blocks)
	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got))
	}
	if !got[0].Start.Equal(at(9, 30)) || !got[0].End.Equal(at(11, 0)) {
		t.Fatalf("unexpected first window %v", got[0])
	}
	if !got[1].Start.Equal(at(14, 0)) || !got[1].End.Equal(at(17, 0)) {
		t.Fatalf("unexpected second window %v", got[1])
	}
}

func TestSubtract_BlockCoveringBaseLeavesNothing(t *testing.T) {
	base := Interval{Start: at(9, 0), End: at(17, 0)}
	if got := Subtract(base, []Interval{{Start: at(8, 0), End: at(18, 0)}}); len(got) != 0 {
		t.Fatalf("expected no windows, got %v", got)
	}
}

func TestSubtract_EmptyBase(t *testing.T) {
	if got := Subtract(Interval{Start: at(9, 0), End: at(9, 0)}, nil); got != nil {
		t.Fatalf("expected nil for empty base, got %v", got)
	}
}
