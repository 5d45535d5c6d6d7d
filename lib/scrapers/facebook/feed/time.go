package feed

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var unixRegex = regexp.MustCompile(`^\d{9,13}$`)
var relativeRegex = regexp.MustCompile(`(\d+)\s*(s|sec|secs|second|seconds|m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days|w|week|weeks)\b`)

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.RFC1123,
	time.RFC1123Z,
	"January 2, 2006 at 3:04 PM",
	"January 2, 2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseFeedTime converts the timestamp formats the feed exposes into unix
// seconds: raw unix second/millisecond strings, a handful of absolute
// layouts, relative forms like "3 h" or "2 days", and the keyword "now".
func parseFeedTime(raw string, now time.Time) (int64, bool) {
	if raw == "" {
		return 0, false
	}

	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "now" {
		return now.Unix(), true
	}

	if unixRegex.MatchString(text) {
		ts, err := strconv.ParseInt(text, 10, 64)
		if err == nil {
			// anything past the year 2286 in seconds is milliseconds
			if ts > 10_000_000_000 {
				ts = ts / 1000
			}
			return ts, true
		}
	}

	if groups := relativeRegex.FindStringSubmatch(text); groups != nil {
		amount, err := strconv.Atoi(groups[1])
		if err == nil {
			var unit time.Duration
			switch groups[2][0] {
			case 's':
				unit = time.Second
			case 'm':
				unit = time.Minute
			case 'h':
				unit = time.Hour
			case 'd':
				unit = time.Hour * 24
			case 'w':
				unit = time.Hour * 24 * 7
			}
			if unit != 0 {
				return now.Add(-time.Duration(amount) * unit).Unix(), true
			}
		}
	}

	for _, layout := range absoluteLayouts {
		t, err := time.Parse(layout, strings.TrimSpace(raw))
		if err == nil {
			return t.Unix(), true
		}
	}

	return 0, false
}
