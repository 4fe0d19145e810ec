package database

import "time"

// TimeFormat is the layout sqlite's datetime('now') produces.
const TimeFormat = "2006-01-02 15:04:05"

// ParseTime parses a sqlite datetime string, returning the zero time on
// malformed input.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// FormatTime renders a time in sqlite's datetime format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// BoolToInt converts a bool for storage in an INTEGER column.
func BoolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
