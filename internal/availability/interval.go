package availability

import "time"

// Interval is a half-open span [Start, End) of absolute time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals share any instant:
// [a.Start,a.End) overlaps [b.Start,b.End) iff a.Start < b.End && b.Start < a.End.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// OverlapsAny reports whether the interval overlaps any element of busy.
func (iv Interval) OverlapsAny(busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}

// Subtract returns the parts of base not covered by blocks, ascending.
// Blocks may overlap each other and may extend beyond base; both are
// tolerated. An empty base yields nil.
func Subtract(base Interval, blocks []Interval) []Interval {
	if !base.End.After(base.Start) {
		return nil
	}
	var clipped []Interval
	for _, blk := range blocks {
		s, e := blk.Start, blk.End
		if e.Before(base.Start) || !s.Before(base.End) {
			continue
		}
		if s.Before(base.Start) {
			s = base.Start
		}
		if e.After(base.End) {
			e = base.End
		}
		if e.After(s) {
			clipped = append(clipped, Interval{Start: s, End: e})
		}
	}
	if len(clipped) == 0 {
		return []Interval{base}
	}

	sortIntervals(clipped)
	merged := make([]Interval, 0, len(clipped))
	for _, cur := range clipped {
		if len(merged) == 0 {
			merged = append(merged, cur)
			continue
		}
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}

	var out []Interval
	cursor := base.Start
	for _, m := range merged {
		if m.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: m.Start})
		}
		if m.End.After(cursor) {
			cursor = m.End
		}
	}
	if base.End.After(cursor) {
		out = append(out, Interval{Start: cursor, End: base.End})
	}
	return out
}

func sortIntervals(in []Interval) {
	// Small n; insertion sort is enough.
	for i := 1; i < len(in); i++ {
		j := i
		for j > 0 && (in[j].Start.Before(in[j-1].Start) || (in[j].Start.Equal(in[j-1].Start) && in[j].End.Before(in[j-1].End))) {
			in[j], in[j-1] = in[j-1], in[j]
			j--
		}
	}
}
