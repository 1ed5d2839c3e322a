package jira

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ParseTimestamp parses Jira's timestamp format into a time.Time.
// Jira uses ISO 8601 with timezone: 2024-01-15T10:30:00.000+0000 or
// 2024-01-15T10:30:00.000Z.
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	formats := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %s", ts)
}

// ParseTimestampUTC parses and converts to UTC; staging stores every
// timestamp in UTC. Empty input yields nil.
func ParseTimestampUTC(ts string) (*time.Time, error) {
	if ts == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(ts)
	if err != nil {
		return nil, err
	}
	u := t.UTC()
	return &u, nil
}

// ParseDate parses Jira's duedate format (YYYY-MM-DD). Empty input yields nil.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("unrecognized date format: %s", s)
	}
	return &t, nil
}

// ParseSeconds normalizes a Jira time-tracking value to whole seconds.
// Accepted: a JSON integer, a float with zero fractional part, or a string of
// decimal digits. Everything else (fractional floats, "3h", "") yields nil.
func ParseSeconds(raw json.RawMessage) *int64 {
	v := NewValue(raw)
	switch v.Kind() {
	case KindString:
		s, _ := v.AsString()
		if s == "" || !allDigits(s) {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		return &n
	case KindNumber:
		f, _ := v.AsNumber()
		if f != math.Trunc(f) {
			return nil
		}
		n := int64(f)
		return &n
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
