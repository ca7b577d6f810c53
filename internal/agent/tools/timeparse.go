package tools

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

// parseSince converts a user-supplied time expression into an absolute time.
// Supports unix timestamps (seconds or milliseconds), Go durations relative
// to now ("15m", "2h"), and human-readable expressions ("2 hours ago",
// "yesterday") via dateparser.
func parseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		// Millisecond timestamps are 13 digits for current dates.
		if unix > 1e12 {
			return time.UnixMilli(unix), nil
		}
		return time.Unix(unix, 0), nil
	}

	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(-d), nil
	}

	cfg := &dateparser.Configuration{
		CurrentTime: now,
	}
	parsed, err := dateparser.Parse(cfg, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse time expression %q: %w", value, err)
	}
	return parsed.Time, nil
}
