package message

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/errors"
)

// Layouts the backend has been seen to emit. The slash form is what the site
// clock writes (local wall time, no zone).
var naiveLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 / RFC 3339 timestamp. Timestamps without a
// zone are wall time at the site and are interpreted in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, &errors.InvalidTimestamp{Value: value}
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}

	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, &errors.InvalidTimestamp{Value: value}
}
