package utils

import (
	"fmt"
	"time"
)

// DateLayout is the YYYY-MM-DD form used by GET /stats.
const DateLayout = "2006-01-02"

// DayWindow returns the inclusive UTC bounds of the day containing t:
// 00:00:00.000 and 23:59:59.999.
func DayWindow(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	end = start.Add(24*time.Hour - time.Millisecond)
	return start, end
}

// ParseDay parses a YYYY-MM-DD date. An empty string yields the current UTC
// day according to now.
func ParseDay(s string, now func() time.Time) (time.Time, error) {
	if s == "" {
		return now().UTC(), nil
	}
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}
