package availability

import "time"

const minutesPerDay = 24 * 60

// DayRule is one weekday's bookable range, in minutes since local midnight.
// EndMinute may be 1440 to mean the following local midnight.
type DayRule struct {
	Weekday     time.Weekday
	Enabled     bool
	StartMinute int
	EndMinute   int
}

// bookable reports whether the rule can yield any availability. Disabled and
// malformed rules read as "no availability that day", never an error.
func (r DayRule) bookable() bool {
	if !r.Enabled {
		return false
	}
	if r.StartMinute < 0 || r.EndMinute > minutesPerDay {
		return false
	}
	return r.StartMinute < r.EndMinute
}

// WeeklyAvailability is a host's recurring week, expressed in the host's own
// IANA timezone. Days is indexed by time.Weekday (Sunday = 0).
type WeeklyAvailability struct {
	TimeZone string
	Days     [7]DayRule
}

func (w WeeklyAvailability) Rule(d time.Weekday) DayRule {
	return w.Days[int(d)%7]
}

// Location resolves the schedule's timezone. Callers treat an error as zero
// availability for the host rather than failing the whole request.
func (w WeeklyAvailability) Location() (*time.Location, error) {
	return time.LoadLocation(w.TimeZone)
}

// atMinute returns the instant m minutes after local midnight of day's date
// in loc. The wall clock is anchored first and converted to an absolute
// instant after, so the result tracks the UTC offset in effect on that date;
// minutes falling inside a daylight-saving gap normalize to a real instant.
func atMinute(day time.Time, m int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, m, 0, 0, loc)
}

// DayWindow resolves the absolute span of the rule in effect on the given
// local date. The second return is false when the day is not bookable.
func (w WeeklyAvailability) DayWindow(day time.Time, loc *time.Location) (Interval, bool) {
	r := w.Rule(day.Weekday())
	if !r.bookable() {
		return Interval{}, false
	}
	win := Interval{Start: atMinute(day, r.StartMinute, loc), End: atMinute(day, r.EndMinute, loc)}
	if !win.End.After(win.Start) {
		return Interval{}, false
	}
	return win, true
}
