/*
progress.go - ProgressCalculator

PURPOSE:
  Derives the numbers a goal is judged against from raw logs, as of "now".

METRICS:
  TodayBestScore:       best single session today (not a sum, not an average)
  ShotCounter.Current:  today's shot volume, reads as 0 once the day changes
  WeekAttendanceCount:  check-ins from this Monday through Sunday
  MonthAttendanceCount: check-ins in this calendar month
  WeeklyAverageScore:   mean session score since this Monday, rounded

BUCKETING:
  Everything is compared at day granularity in now's location. Session
  instants are converted to that location before taking their date.
  Empty logs give zero, never an error.
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// TodayBestScore returns the highest session score recorded on now's day.
func TodayBestScore(sessions []ShotSession, now time.Time) int {
	today := DayOf(now)
	best := 0
	for _, s := range sessions {
		if DayIn(s.At, now.Location()) == today && s.Score > best {
			best = s.Score
		}
	}
	return best
}

// Current returns the shot volume for now's day. A counter last touched on
// another day reads as zero.
func (c ShotCounter) Current(now time.Time) int {
	if c.UpdatedAt.IsZero() || DayIn(c.UpdatedAt, now.Location()) != DayOf(now) {
		return 0
	}
	return c.Count
}

// Stale reports whether the counter must be reset before use on now's day.
func (c ShotCounter) Stale(now time.Time) bool {
	return c.Count != 0 && c.Current(now) == 0
}

// Add applies n (which may be negative) to today's volume, restarting from
// zero on a new day and clamping at zero.
func (c ShotCounter) Add(n int, now time.Time) ShotCounter {
	count := c.Current(now) + n
	if count < 0 {
		count = 0
	}
	return ShotCounter{Count: count, UpdatedAt: now}
}

// WeekAttendanceCount counts check-ins in the Monday-start week of now.
func WeekAttendanceCount(records []AttendanceRecord, now time.Time) int {
	return countIn(records, WeekOf(now))
}

// MonthAttendanceCount counts check-ins in the calendar month of now.
func MonthAttendanceCount(records []AttendanceRecord, now time.Time) int {
	return countIn(records, MonthOf(now))
}

func countIn(records []AttendanceRecord, p Period) int {
	seen := make(map[Day]bool, len(records))
	for _, r := range records {
		if p.Contains(r.Day) {
			seen[r.Day] = true
		}
	}
	return len(seen)
}

// CheckedInOn reports whether any record falls on d.
func CheckedInOn(records []AttendanceRecord, d Day) bool {
	for _, r := range records {
		if r.Day == d {
			return true
		}
	}
	return false
}

// WeeklyAverageScore averages session scores since this Monday's midnight,
// rounded to a whole point.
func WeeklyAverageScore(sessions []ShotSession, now time.Time) decimal.Decimal {
	week := WeekOf(now)
	sum, n := decimal.Zero, int64(0)
	for _, s := range sessions {
		if week.Contains(DayIn(s.At, now.Location())) {
			sum = sum.Add(decimal.NewFromInt(int64(s.Score)))
			n++
		}
	}
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(n)).Round(0)
}

// =============================================================================
// PROGRESS SNAPSHOT
// =============================================================================

// Progress is the per-athlete current-period state goals are judged on.
type Progress struct {
	AsOf            time.Time
	TodayBestScore  int
	TodayShots      int
	WeekAttendance  int
	MonthAttendance int
	WeeklyAverage   decimal.Decimal
	CheckedInToday  bool
}

// Compute derives every metric from one athlete's logs.
func Compute(sessions []ShotSession, counter ShotCounter, attendance []AttendanceRecord, now time.Time) Progress {
	return Progress{
		AsOf:            now,
		TodayBestScore:  TodayBestScore(sessions, now),
		TodayShots:      counter.Current(now),
		WeekAttendance:  WeekAttendanceCount(attendance, now),
		MonthAttendance: MonthAttendanceCount(attendance, now),
		WeeklyAverage:   WeeklyAverageScore(sessions, now),
		CheckedInToday:  CheckedInOn(attendance, DayOf(now)),
	}
}
