package availability

import (
	"reflect"
	"slices"
	"testing"
	"time"
)

func nineToFiveMonday(tz string) WeeklyAvailability {
	w := WeeklyAvailability{TimeZone: tz}
	w.Days[time.Monday] = DayRule{Weekday: time.Monday, Enabled: true, StartMinute: 540, EndMinute: 1020}
	return w
}

func singleHost(duration, bufBefore, bufAfter int) TypeConfig {
	return TypeConfig{
		DurationMinutes:     duration,
		BufferBeforeMinutes: bufBefore,
		BufferAfterMinutes:  bufAfter,
		Mode:                ModeSingle,
		HostIDs:             []string{"h1"},
	}
}

func TestGenerateSlots_FullMonday(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rules := map[string]WeeklyAvailability{"h1": nineToFiveMonday("UTC")}
	win := Window{From: monday, To: monday.AddDate(0, 0, 1), StepMinutes: 15, MaxSlots: 100}

	slots := GenerateSlots(rules, nil, singleHost(30, 0, 0), win, monday.Add(-time.Hour))
	if len(slots) != 31 {
		t.Fatalf("expected 31 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(monday.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(monday.Add(16*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected last slot 16:30, got %s", last.Start.Format(time.RFC3339))
	}
	if !last.End.Equal(monday.Add(17 * time.Hour)) {
		t.Fatalf("expected last slot to end exactly at 17:00, got %s", last.End.Format(time.RFC3339))
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i].Start.After(slots[i-1].Start) {
			t.Fatalf("slots not strictly ascending at %d", i)
		}
	}
}

func TestGenerateSlots_ExistingBookingExcludesOverlaps(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rules := map[string]WeeklyAvailability{"h1": nineToFiveMonday("UTC")}
	busy := map[string][]Interval{
		"h1": {{Start: monday.Add(10 * time.Hour), End: monday.Add(10*time.Hour + 30*time.Minute)}},
	}
	win := Window{From: monday, To: monday.AddDate(0, 0, 1), StepMinutes: 15, MaxSlots: 100}

	slots := GenerateSlots(rules, busy, singleHost(30, 0, 0), win, monday.Add(-time.Hour))
	if len(slots) != 28 {
		t.Fatalf("expected 28 slots, got %d", len(slots))
	}
	starts := make(map[string]bool, len(slots))
	for _, s := range slots {
		starts[s.Start.Format("15:04")] = true
	}
	// 09:30 ends at 10:00, touching the booking is not an overlap.
	for _, want := range []string{"09:30", "10:30"} {
		if !starts[want] {
			t.Fatalf("expected slot at %s", want)
		}
	}
	for _, excluded := range []string{"09:45", "10:00", "10:15"} {
		if starts[excluded] {
			t.Fatalf("slot at %s should be excluded by the booking", excluded)
		}
	}
}

func TestGenerateSlots_DisabledDayYieldsNothing(t *testing.T) {
	w := nineToFiveMonday("UTC")
	w.Days[time.Tuesday] = DayRule{Weekday: time.Tuesday, Enabled: false, StartMinute: 540, EndMinute: 1020}
	rules := map[string]WeeklyAvailability{"h1": w}

	tuesday := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	win := Window{From: tuesday, To: tuesday.AddDate(0, 0, 1), StepMinutes: 15, MaxSlots: 100}
	slots := GenerateSlots(rules, nil, singleHost(30, 0, 0), win, tuesday.Add(-time.Hour))
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a disabled day, got %d", len(slots))
	}
}

func TestGenerateSlots_MalformedRuleDegradesSilently(t *testing.T) {
	w := WeeklyAvailability{TimeZone: "UTC"}
	w.Days[time.Monday] = DayRule{Weekday: time.Monday, Enabled: true, StartMinute: 600, EndMinute: 540}
	rules := map[string]WeeklyAvailability{"h1": w}

	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	win := Window{From: monday, To: monday.AddDate(0, 0, 1), StepMinutes: 15, MaxSlots: 100}
	if got := GenerateSlots(rules, nil, singleHost(30, 0, 0), win, monday.Add(-time.Hour)); len(got) != 0 {
		t.Fatalf("expected no slots for malformed rule, got %d", len(got))
	}

	rules["h1"] = nineToFiveMonday("Mars/Olympus")
	if got := GenerateSlots(rules, nil, singleHost(30, 0, 0), win, monday.Add(-time.Hour)); len(got) != 0 {
		t.Fatalf("expected no slots for unknown timezone, got %d", len(got))
	}
}

func TestGenerateSlots_BuffersStayInsideDayWindow(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rules := map[string]WeeklyAvailability{"h1": nineToFiveMonday("UTC")}
	win := Window{From: monday, To: monday.AddDate(0, 0, 1), StepMinutes: 15, MaxSlots: 100}

	slots := GenerateSlots(rules, nil, singleHost(30, 15, 15), win, monday.Add(-time.Hour))
	if len(slots) != 29 {
		t.Fatalf("expected 29 slots, got %d", len(slots))
	}
	// 09:00 would push its leading buffer to 08:45; 16:30 would push its
	// trailing buffer to 17:15. Both stay out.
	if !slots[0].Start.Equal(monday.Add(9*time.Hour + 15*time.Minute)) {
		t.Fatalf("expected first slot 09:15, got %s", slots[0].Start.Format(time.RFC3339))
	}
	if !slots[len(slots)-1].Start.Equal(monday.Add(16*time.Hour + 15*time.Minute)) {
		t.Fatalf("expected last slot 16:15, got %s", slots[len(slots)-1].Start.Format(time.RFC3339))
	}
}

func TestGenerateSlots_SkipsStartsNotAfterNow(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rules := map[string]WeeklyAvailability{"h1": nineToFiveMonday("UTC")}
	win := Window{From: monday, To: monday.AddDate(0, 0, 1), StepMinutes: 15, MaxSlots: 100}

	now := monday.Add(12 * time.Hour)
	slots := GenerateSlots(rules, nil, singleHost(30, 0, 0), win, now)
	if len(slots) == 0 {
		t.Fatal("expected afternoon slots")
	}
	// 12:00 equals now and is excluded; starts must be strictly after.
	if !slots[0].Start.Equal(monday.Add(12*time.Hour + 15*time.Minute)) {
		t.Fatalf("expected first slot 12:15, got %s", slots[0].Start.Format(time.RFC3339))
	}
}

func TestGenerateSlots_MaxSlotsBoundsOutput(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rules := map[string]WeeklyAvailability{"h1": nineToFiveMonday("UTC")}
	win := Window{From: monday, To: monday.AddDate(0, 0, 14), StepMinutes: 15, MaxSlots: 5}

	slots := GenerateSlots(rules, nil, singleHost(30, 0, 0), win, monday.Add(-time.Hour))
	if len(slots) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(slots))
	}
	if !slots[4].Start.Equal(monday.Add(10 * time.Hour)) {
		t.Fatalf("expected fifth slot 10:00, got %s", slots[4].Start.Format(time.RFC3339))
	}
}

func TestGenerateSlots_EmptyInputs(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rules := map[string]WeeklyAvailability{"h1": nineToFiveMonday("UTC")}

	cfg := singleHost(30, 0, 0)
	win := Window{From: monday, To: monday, StepMinutes: 15, MaxSlots: 100}
	if got := GenerateSlots(rules, nil, cfg, win, monday); got != nil {
		t.Fatalf("expected nil for empty window, got %v", got)
	}

	cfg.HostIDs = nil
	win.To = monday.AddDate(0, 0, 1)
	if got := GenerateSlots(rules, nil, cfg, win, monday); got != nil {
		t.Fatalf("expected nil for empty team, got %v", got)
	}

	cfg.HostIDs = []string{"h1"}
	win.StepMinutes = 0
	if got := GenerateSlots(rules, nil, cfg, win, monday); got != nil {
		t.Fatalf("expected nil for zero step, got %v", got)
	}
}

func TestGenerateSlots_TeamUnionMergesHosts(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	narrow := WeeklyAvailability{TimeZone: "UTC"}
	narrow.Days[time.Monday] = DayRule{Weekday: time.Monday, Enabled: true, StartMinute: 600, EndMinute: 720}
	rules := map[string]WeeklyAvailability{
		"h1": nineToFiveMonday("UTC"),
		"h2": narrow,
	}
	cfg := TypeConfig{
		DurationMinutes: 30,
		Mode:            ModeRoundRobin,
		HostIDs:         []string{"h2", "h1"},
	}
	win := Window{From: monday, To: monday.AddDate(0, 0, 1), StepMinutes: 60, MaxSlots: 100}

	slots := GenerateSlots(rules, nil, cfg, win, monday.Add(-time.Hour))
	if len(slots) != 8 {
		t.Fatalf("expected 8 hourly slots, got %d", len(slots))
	}
	byStart := make(map[string][]string)
	for _, s := range slots {
		byStart[s.Start.Format("15:04")] = s.HostIDs
	}
	if !slices.Equal(byStart["10:00"], []string{"h1", "h2"}) {
		t.Fatalf("expected 10:00 eligible for both hosts, got %v", byStart["10:00"])
	}
	if !slices.Equal(byStart["12:00"], []string{"h1"}) {
		t.Fatalf("expected 12:00 eligible for h1 only, got %v", byStart["12:00"])
	}
}

func TestGenerateSlots_SpringForwardSkipsMissingHour(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 2026-03-08: clocks jump from 02:00 to 03:00, the day is 23 hours long.
	w := WeeklyAvailability{TimeZone: "America/New_York"}
	w.Days[time.Sunday] = DayRule{Weekday: time.Sunday, Enabled: true, StartMinute: 0, EndMinute: 1439}
	rules := map[string]WeeklyAvailability{"h1": w}

	from := time.Date(2026, 3, 8, 0, 0, 0, 0, loc)
	win := Window{From: from, To: from.AddDate(0, 0, 1), StepMinutes: 30, MaxSlots: 200}

	slots := GenerateSlots(rules, nil, singleHost(30, 0, 0), win, from.Add(-time.Hour))
	if len(slots) != 45 {
		t.Fatalf("expected 45 slots on the 23-hour day, got %d", len(slots))
	}
	for i, s := range slots {
		local := s.Start.In(loc)
		if local.Hour() == 2 {
			t.Fatalf("slot %d requests nonexistent local time %s", i, local.Format(time.RFC3339))
		}
		if i > 0 && !s.Start.After(slots[i-1].Start) {
			t.Fatalf("slots not strictly ascending at %d", i)
		}
	}
}

func TestGenerateSlots_FallBackGainsAnHour(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 2026-11-01: clocks fall back at 02:00, the day is 25 hours long.
	w := WeeklyAvailability{TimeZone: "America/New_York"}
	w.Days[time.Sunday] = DayRule{Weekday: time.Sunday, Enabled: true, StartMinute: 0, EndMinute: 1439}
	rules := map[string]WeeklyAvailability{"h1": w}

	from := time.Date(2026, 11, 1, 0, 0, 0, 0, loc)
	win := Window{From: from, To: from.AddDate(0, 0, 1), StepMinutes: 30, MaxSlots: 200}

	slots := GenerateSlots(rules, nil, singleHost(30, 0, 0), win, from.Add(-time.Hour))
	if len(slots) != 49 {
		t.Fatalf("expected 49 slots on the 25-hour day, got %d", len(slots))
	}
}

func TestGenerateSlots_Idempotent(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rules := map[string]WeeklyAvailability{
		"h1": nineToFiveMonday("UTC"),
		"h2": nineToFiveMonday("America/Chicago"),
	}
	busy := map[string][]Interval{
		"h1": {{Start: monday.Add(10 * time.Hour), End: monday.Add(11 * time.Hour)}},
	}
	cfg := TypeConfig{DurationMinutes: 45, BufferAfterMinutes: 10, Mode: ModeRoundRobin, HostIDs: []string{"h1", "h2"}}
	win := Window{From: monday, To: monday.AddDate(0, 0, 3), StepMinutes: 20, MaxSlots: 40}
	now := monday.Add(30 * time.Minute)

	first := GenerateSlots(rules, busy, cfg, win, now)
	second := GenerateSlots(rules, busy, cfg, win, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical inputs produced different slot lists")
	}
}
