package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - Calendar date with no time component
// =============================================================================

// Day is a local calendar date. Attendance, plan completion and every
// daily/weekly/monthly bucket is computed on Days, never on instants.
type Day struct {
	Year  int
	Month time.Month
	Dom   int
}

const dayLayout = "2006-01-02"

// NewDay builds a Day, normalising overflow (Jan 32 -> Feb 1).
func NewDay(year int, month time.Month, dom int) Day {
	return DayOf(time.Date(year, month, dom, 0, 0, 0, 0, time.UTC))
}

// DayOf returns the calendar date of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Dom: d}
}

// DayIn returns the calendar date of t as seen from loc.
func DayIn(t time.Time, loc *time.Location) Day {
	if loc == nil {
		return DayOf(t)
	}
	return DayOf(t.In(loc))
}

// ParseDay parses YYYY-MM-DD.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, &InvalidInputError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", s)}
	}
	return DayOf(t), nil
}

// Start returns local midnight of the day in loc.
func (d Day) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Dom, 0, 0, 0, 0, loc)
}

func (d Day) utc() time.Time { return d.Start(time.UTC) }

func (d Day) AddDays(n int) Day { return DayOf(d.utc().AddDate(0, 0, n)) }
func (d Day) Weekday() time.Weekday { return d.utc().Weekday() }
func (d Day) Before(o Day) bool { return d.utc().Before(o.utc()) }
func (d Day) After(o Day) bool { return d.utc().After(o.utc()) }
func (d Day) IsZero() bool { return d == Day{} }
func (d Day) String() string { return d.utc().Format(dayLayout) }
func (d Day) SameMonth(o Day) bool { return d.Year == o.Year && d.Month == o.Month }

// =============================================================================
// PERIOD - Inclusive range of days
// =============================================================================

// Period is an inclusive [Start, End] range of days.
type Period struct {
	Start Day
	End   Day
}

// Contains reports whether d falls inside the period.
func (p Period) Contains(d Day) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// WeekStart returns the Monday of the ISO week containing d.
func WeekStart(d Day) Day {
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDays(-offset)
}

// WeekOf returns the Monday-to-Sunday week containing now's local date.
func WeekOf(now time.Time) Period {
	start := WeekStart(DayOf(now))
	return Period{Start: start, End: start.AddDays(6)}
}

// MonthOf returns the calendar month containing now's local date.
func MonthOf(now time.Time) Period {
	d := DayOf(now)
	start := Day{Year: d.Year, Month: d.Month, Dom: 1}
	end := DayOf(start.utc().AddDate(0, 1, -1))
	return Period{Start: start, End: end}
}
