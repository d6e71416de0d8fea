// Package calendar holds the pure date arithmetic the projection and
// materialization code is built on. Everything here works on whole calendar
// days in UTC; there is no I/O and no failure case.
package calendar

import "time"

// Noon normalizes t to 12:00:00 UTC on the same calendar day. Comparing
// noon-normalized dates sidesteps daylight-saving and millisecond-boundary
// artifacts when only the day matters.
func Noon(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of t's month at noon UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 12, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of t's month at noon UTC.
func MonthEnd(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), DaysInMonth(t.Year(), t.Month()), 12, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// ClampDayOfMonth returns day limited to the last day of the given month, so
// a rule anchored on the 31st lands on Feb 28/29 rather than never.
func ClampDayOfMonth(year int, month time.Month, day int) int {
	if last := DaysInMonth(year, month); day > last {
		return last
	}
	return day
}

// CountWeekdayOccurrences counts the dates in [start, end] (inclusive) that
// fall on weekday w. Both bounds are noon-normalized before comparison.
// Returns 0 when start is after end.
func CountWeekdayOccurrences(start, end time.Time, w time.Weekday) int {
	start = Noon(start)
	end = Noon(end)
	if start.After(end) {
		return 0
	}

	// Walk forward to the first matching weekday, then count whole weeks.
	first := start
	for first.Weekday() != w {
		first = first.AddDate(0, 0, 1)
	}
	if first.After(end) {
		return 0
	}
	return int(end.Sub(first).Hours()/(24*7)) + 1
}

// AdvanceWeeks returns origin plus n*7 calendar days. Day-count addition
// preserves the weekday by construction, including across month and year
// boundaries.
func AdvanceWeeks(origin time.Time, n int) time.Time {
	return origin.AddDate(0, 0, 7*n)
}

// SameDay reports whether a and b fall on the same calendar day in UTC.
func SameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
