package timeutil

import "time"

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// ParseDate parses a date string and returns a UTC time
func ParseDate(layout, value string) (time.Time, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// StartOfDay returns the start of the day (midnight) in UTC
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in UTC
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 23, 59, 59, 999999999, time.UTC)
}

// ToUTC converts a time.Time to UTC if it isn't already
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// StartOfMonth returns midnight UTC on the first day of t's month
func StartOfMonth(t time.Time) time.Time {
	year, month, _ := t.UTC().Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// PreviousMonth returns the half-open range [start, end) of the calendar month before t
func PreviousMonth(t time.Time) (start, end time.Time) {
	end = StartOfMonth(t)
	return end.AddDate(0, -1, 0), end
}

// ParsePeriodBound accepts a date ("2026-02-01", midnight UTC) or an RFC 3339 timestamp
func ParsePeriodBound(value string) (time.Time, error) {
	if t, err := ParseDate("2006-01-02", value); err == nil {
		return t, nil
	}
	return ParseDate(time.RFC3339, value)
}
