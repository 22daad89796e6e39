package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayWindow(t *testing.T) {
	start, end := DayWindow(time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC))

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 1, 1, 23, 59, 59, 999000000, time.UTC), end)
}

func TestDayWindow_ConvertsToUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2024-01-02 03:00 JST is 2024-01-01 18:00 UTC.
	start, _ := DayWindow(time.Date(2024, 1, 2, 3, 0, 0, 0, tokyo))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestDayWindow_BoundariesAreDisjoint(t *testing.T) {
	lastMs := time.Date(2024, 1, 1, 23, 59, 59, 999000000, time.UTC)
	nextDay := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	s1, e1 := DayWindow(lastMs)
	s2, e2 := DayWindow(nextDay)

	in := func(ts, s, e time.Time) bool { return !ts.Before(s) && !ts.After(e) }
	assert.True(t, in(lastMs, s1, e1))
	assert.False(t, in(lastMs, s2, e2))
	assert.True(t, in(nextDay, s2, e2))
	assert.False(t, in(nextDay, s1, e1))
}

func TestParseDay(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC) }

	d, err := ParseDay("2024-01-01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDay("", now)
	require.NoError(t, err)
	assert.Equal(t, now(), d)

	for _, bad := range []string{"2024-13-01", "01/01/2024", "2024-01-01T00:00:00Z", "yesterday"} {
		_, err := ParseDay(bad, now)
		assert.Error(t, err, bad)
	}
}
