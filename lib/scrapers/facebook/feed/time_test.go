package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFeedTime(t *testing.T) {
	now := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)

	table := []struct {
		name string
		raw  string
		want int64
		ok   bool
	}{
		{"unix seconds", "1715342400", 1715342400, true},
		{"unix milliseconds", "1715342400123", 1715342400, true},
		{"now keyword", "Now", now.Unix(), true},
		{"relative hours", "3 hrs", now.Add(-3 * time.Hour).Unix(), true},
		{"relative compact", "5m", now.Add(-5 * time.Minute).Unix(), true},
		{"relative days", "2 days ago", now.Add(-48 * time.Hour).Unix(), true},
		{"relative weeks", "1w", now.Add(-7 * 24 * time.Hour).Unix(), true},
		{"rfc3339", "2024-05-10T08:30:00Z", 1715329800, true},
		{"long form", "May 9, 2024 at 6:15 PM", time.Date(2024, time.May, 9, 18, 15, 0, 0, time.UTC).Unix(), true},
		{"date only", "2024-05-09", time.Date(2024, time.May, 9, 0, 0, 0, 0, time.UTC).Unix(), true},
		{"empty", "", 0, false},
		{"garbage", "just now-ish maybe", 0, false},
	}
	for _, test := range table {
		t.Run(test.name, func(t *testing.T) {
			got, ok := parseFeedTime(test.raw, now)
			require.Equal(t, test.ok, ok)
			if test.ok {
				require.Equal(t, test.want, got)
			}
		})
	}
}
