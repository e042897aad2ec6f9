package availability

import (
	"slices"
	"sort"
	"time"
)

// SchedulingMode selects how a host is resolved at commit time.
type SchedulingMode string

const (
	// ModeSingle books the one configured host directly.
	ModeSingle SchedulingMode = "single"
	// ModeRoundRobin rotates commits across the team via the rotation cursor.
	ModeRoundRobin SchedulingMode = "round_robin"
)

// TypeConfig is the slice of an appointment type the slot math needs.
type TypeConfig struct {
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	Mode                SchedulingMode
	HostIDs             []string
	RotationCursor      int
}

// BufferedSpan is the full half-open range a booking starting at start would
// reserve for its host, buffers included. No other booking for the host may
// overlap it.
func (c TypeConfig) BufferedSpan(start time.Time) Interval {
	return Interval{
		Start: start.Add(-time.Duration(c.BufferBeforeMinutes) * time.Minute),
		End:   start.Add(time.Duration(c.DurationMinutes+c.BufferAfterMinutes) * time.Minute),
	}
}

// Window bounds one generation request.
type Window struct {
	From        time.Time
	To          time.Time
	StepMinutes int
	MaxSlots    int
}

// Slot is a candidate bookable start. End is the appointment end, buffers
// excluded. HostIDs lists every team member the slot survived filtering for,
// sorted; it is advisory only, the binding host choice happens at commit.
type Slot struct {
	Start   time.Time
	End     time.Time
	HostIDs []string
}

// GenerateSlots computes the bookable slots for an appointment type within
// the window. rules holds each host's weekly availability and busy holds each
// host's already-reserved spans, buffers included, both keyed by host id.
//
// The result is strictly ascending by start, at most win.MaxSlots long, and
// contains only starts strictly after now. Hosts with no rule entry, an
// unknown timezone, or disabled/malformed day rules contribute nothing;
// an empty team or an empty window yields an empty result, never an error.
//
// The computation is pure: identical inputs, including now, yield identical
// output, so results may be cached until the next committed booking.
func GenerateSlots(rules map[string]WeeklyAvailability, busy map[string][]Interval, cfg TypeConfig, win Window, now time.Time) []Slot {
	if len(cfg.HostIDs) == 0 || cfg.DurationMinutes <= 0 {
		return nil
	}
	if win.StepMinutes <= 0 || win.MaxSlots <= 0 || !win.To.After(win.From) {
		return nil
	}

	duration := time.Duration(cfg.DurationMinutes) * time.Minute

	hostsByStart := make(map[int64][]string)
	var order []int64
	for _, h := range cfg.HostIDs {
		av, ok := rules[h]
		if !ok {
			continue
		}
		for _, t := range hostStarts(av, busy[h], cfg, win, now) {
			k := t.Unix()
			if _, seen := hostsByStart[k]; !seen {
				order = append(order, k)
			}
			hostsByStart[k] = append(hostsByStart[k], h)
		}
	}
	if len(order) == 0 {
		return nil
	}
	slices.Sort(order)
	if len(order) > win.MaxSlots {
		order = order[:win.MaxSlots]
	}

	out := make([]Slot, 0, len(order))
	for _, k := range order {
		start := time.Unix(k, 0).UTC()
		hosts := hostsByStart[k]
		sort.Strings(hosts)
		out = append(out, Slot{Start: start, End: start.Add(duration), HostIDs: hosts})
	}
	return out
}

// hostStarts enumerates the surviving candidate starts for one host in
// ascending order, capped at win.MaxSlots.
//
// Days are resolved in the host's own timezone. Candidates step through each
// day window by win.StepMinutes of absolute time from the window's start, so
// a day shortened or lengthened by a daylight-saving transition yields fewer
// or more candidates and a start can never name a local time that does not
// exist. A candidate survives when its buffered span stays inside the day
// window, its appointment span stays inside the generation window, and the
// span overlaps none of the host's busy intervals.
func hostStarts(av WeeklyAvailability, busy []Interval, cfg TypeConfig, win Window, now time.Time) []time.Time {
	loc, err := av.Location()
	if err != nil {
		return nil
	}

	duration := time.Duration(cfg.DurationMinutes) * time.Minute
	step := time.Duration(win.StepMinutes) * time.Minute

	var out []time.Time
	fromLocal := win.From.In(loc)
	day := time.Date(fromLocal.Year(), fromLocal.Month(), fromLocal.Day(), 0, 0, 0, 0, loc)
	for ; day.Before(win.To); day = day.AddDate(0, 0, 1) {
		dayWin, ok := av.DayWindow(day, loc)
		if !ok {
			continue
		}
		for t := dayWin.Start; t.Before(dayWin.End); t = t.Add(step) {
			span := cfg.BufferedSpan(t)
			if span.End.After(dayWin.End) || t.Add(duration).After(win.To) {
				break
			}
			if span.Start.Before(dayWin.Start) || t.Before(win.From) {
				continue
			}
			if !t.After(now) {
				continue
			}
			if span.OverlapsAny(busy) {
				continue
			}
			out = append(out, t)
			if len(out) == win.MaxSlots {
				return out
			}
		}
	}
	return out
}
