package database

import (
	"database/sql"
	"time"
)

// TimeLayout is fixed-width so stored strings sort chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime, falling back to RFC 3339.
func ParseTime(value string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

// NullableTime converts an optional time into a bind argument.
func NullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

// ScanTime converts a nullable column into an optional time.
func ScanTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t, err := ParseTime(value.String)
	if err != nil {
		return nil
	}
	return &t
}

// NullableString maps the empty string to SQL NULL.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// BoolToInt encodes booleans for SQLite integer columns.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
