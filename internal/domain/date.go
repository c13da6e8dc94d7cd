package domain

import "time"

// DayFormat is the canonical calendar-day layout used in history tables.
const DayFormat = "2006-01-02"

// DayOf truncates a timestamp to its calendar day at midnight UTC.
// All snapshot and rebuild logic operates on these normalized days.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextDay returns the calendar day after d.
func NextDay(d time.Time) time.Time {
	return DayOf(d).AddDate(0, 0, 1)
}

// PrevDay returns the calendar day before d.
func PrevDay(d time.Time) time.Time {
	return DayOf(d).AddDate(0, 0, -1)
}

// FormatDay renders a day as YYYY-MM-DD.
func FormatDay(d time.Time) string {
	return DayOf(d).Format(DayFormat)
}

// ParseDay parses a YYYY-MM-DD string into a midnight-UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayFormat, s, time.UTC)
}

// SameDay reports whether two timestamps fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return DayOf(a).Equal(DayOf(b))
}
