package marketclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEasternParts(t *testing.T) {
	// 2024-02-16T14:30:00Z is 09:30 Eastern (EST, UTC-5)
	instant := time.Date(2024, 2, 16, 14, 30, 0, 0, time.UTC)
	parts := EasternParts(instant)

	assert.Equal(t, 2024, parts.Year)
	assert.Equal(t, time.February, parts.Month)
	assert.Equal(t, 16, parts.Day)
	assert.Equal(t, 9, parts.Hour)
	assert.Equal(t, 30, parts.Minute)
}

func TestEasternParts_DuringDST(t *testing.T) {
	// 2024-07-01T14:30:00Z is 10:30 Eastern (EDT, UTC-4)
	instant := time.Date(2024, 7, 1, 14, 30, 0, 0, time.UTC)
	parts := EasternParts(instant)

	assert.Equal(t, 10, parts.Hour)
	assert.Equal(t, 30, parts.Minute)
}

func TestDateKeyRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		y       int
		m       time.Month
		d       int
		wantKey string
	}{
		{"regular winter day", 2024, time.February, 16, "2024-02-16"},
		{"spring-forward day", 2024, time.March, 10, "2024-03-10"},
		{"fall-back day", 2024, time.November, 3, "2024-11-03"},
		{"year boundary", 2023, time.December, 31, "2023-12-31"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			instant := Date(tc.y, tc.m, tc.d, 0, 0, 0, 0)
			assert.Equal(t, tc.wantKey, DateKey(instant))
		})
	}
}

func TestStartAndEndOfDay(t *testing.T) {
	// Late evening UTC is still the same civil day in New York.
	instant := time.Date(2024, 2, 17, 3, 0, 0, 0, time.UTC) // 22:00 Feb 16 ET
	start := StartOfDay(instant)
	end := EndOfDay(instant)

	assert.Equal(t, "2024-02-16", DateKey(start))
	assert.Equal(t, "2024-02-16", DateKey(end))
	assert.True(t, start.Before(instant))
	assert.True(t, end.After(instant))

	parts := EasternParts(start)
	assert.Equal(t, 0, parts.Hour)
	assert.Equal(t, 0, parts.Minute)
}

func TestAddDays_PreservesWallTimeAcrossDST(t *testing.T) {
	// 2024-03-09 09:30 ET, the day before spring-forward.
	before := Date(2024, time.March, 9, 9, 30, 0, 0)
	after := AddDays(before, 1)

	parts := EasternParts(after)
	assert.Equal(t, 10, parts.Day)
	assert.Equal(t, 9, parts.Hour)
	assert.Equal(t, 30, parts.Minute)

	// The elapsed duration is 23 hours because an hour was skipped.
	assert.Equal(t, 23*time.Hour, after.Sub(before))
}

func TestCompactDateKey(t *testing.T) {
	instant := Date(2024, time.February, 16, 9, 30, 0, 0)
	assert.Equal(t, "20240216", CompactDateKey(instant))
}

func TestParseDate_DateOnly(t *testing.T) {
	parsed, ok := ParseDate("2024-02-16")
	require.True(t, ok)

	parts := EasternParts(parsed)
	assert.Equal(t, 2024, parts.Year)
	assert.Equal(t, time.February, parts.Month)
	assert.Equal(t, 16, parts.Day)
	assert.Equal(t, 0, parts.Hour)
}

func TestParseDate_RFC3339(t *testing.T) {
	parsed, ok := ParseDate("2024-02-16T14:30:00Z")
	require.True(t, ok)
	assert.Equal(t, "2024-02-16", DateKey(parsed))
}

func TestParseDate_Invalid(t *testing.T) {
	for _, input := range []string{"", "not-a-date", "2024/02/16", "16-02-2024"} {
		_, ok := ParseDate(input)
		assert.False(t, ok, "input %q should not parse", input)
	}
}

func TestEnsureDate(t *testing.T) {
	_, err := EnsureDate("bogus")
	assert.Error(t, err)

	parsed, err := EnsureDate("2024-02-16")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-16", DateKey(parsed))
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, 2, 16, 14, 30, 0, 0, time.UTC) // Feb 16 ET
	b := time.Date(2024, 2, 17, 3, 0, 0, 0, time.UTC)   // still Feb 16 ET
	c := time.Date(2024, 2, 17, 14, 0, 0, 0, time.UTC)  // Feb 17 ET

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(a, c))
}
