package datetime

import (
	"fmt"
	"time"
)

// endOfDayNanos keeps day ends at millisecond precision (23:59:59.999).
const endOfDayNanos = 999 * int(time.Millisecond)

// StartOfDay returns 00:00:00.000 of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, endOfDayNanos, t.Location())
}

// Window is an inclusive time range.  A nil bound is open.
type Window struct {
	Start *time.Time `json:"startDate,omitempty"`
	End   *time.Time `json:"endDate,omitempty"`
}

// Between builds a closed window.
func Between(start, end time.Time) Window { return Window{Start: &start, End: &end} }

// IsZero reports whether both bounds are open.
func (w Window) IsZero() bool { return w.Start == nil && w.End == nil }

// Normalize applies the reporting clamp.  A single bound becomes the whole
// calendar day of that date.  With two bounds only End moves, to the end
// of its day; Start is kept as given.
func (w Window) Normalize() Window {
	switch {
	case w.Start != nil && w.End != nil:
		start, end := *w.Start, EndOfDay(*w.End)
		return Window{Start: &start, End: &end}
	case w.Start != nil:
		return DayInterval(*w.Start)
	case w.End != nil:
		return DayInterval(*w.End)
	}
	return Window{}
}

// NormalizeOpen is the one-sided variant used by the per-place revenue
// report: a lone Start filters from the start of its day onwards and a
// lone End filters up to the end of its day.
func (w Window) NormalizeOpen() Window {
	switch {
	case w.Start != nil && w.End != nil:
		return w.Normalize()
	case w.Start != nil:
		start := StartOfDay(*w.Start)
		return Window{Start: &start}
	case w.End != nil:
		end := EndOfDay(*w.End)
		return Window{End: &end}
	}
	return Window{}
}

// Contains reports whether t lies inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil && t.After(*w.End) {
		return false
	}
	return true
}

func (w Window) String() string {
	bound := func(t *time.Time) string {
		if t == nil {
			return "*"
		}
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("[%s, %s]", bound(w.Start), bound(w.End))
}

// DayInterval is the calendar day containing t.
func DayInterval(t time.Time) Window {
	return Between(StartOfDay(t), EndOfDay(t))
}

// WeekInterval runs from Monday 00:00:00.000 to Sunday 23:59:59.999 of
// the week containing t.
func WeekInterval(t time.Time) Window {
	sinceMonday := (int(t.Weekday()) + 6) % 7
	monday := StartOfDay(t).AddDate(0, 0, -sinceMonday)
	return Between(monday, EndOfDay(monday.AddDate(0, 0, 6)))
}

// MonthInterval runs from the first to the last calendar day of t's month.
func MonthInterval(t time.Time) Window {
	y, m, _ := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	return Between(first, EndOfDay(first.AddDate(0, 1, -1)))
}
