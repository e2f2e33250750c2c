package domain

import "time"

// MonthStart truncates t to midnight UTC on the first of its month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateOnDay returns day of the month containing t, clamped to the month length.
func DateOnDay(t time.Time, day int) time.Time {
	t = t.UTC()
	if day < 1 {
		day = 1
	}
	if last := DaysInMonth(t.Year(), t.Month()); day > last {
		day = last
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last calendar day of t's month.
func EndOfMonth(t time.Time) time.Time {
	return DateOnDay(t, 31)
}

// AddMonthsClamped shifts anchor by n months keeping the anchor's day,
// clamped to the target month length. Jan 31 + 1 month is Feb 28/29.
func AddMonthsClamped(anchor time.Time, n int) time.Time {
	anchor = anchor.UTC()
	target := MonthStart(anchor).AddDate(0, n, 0)
	return DateOnDay(target, anchor.Day())
}
