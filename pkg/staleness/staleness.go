package staleness

import (
	"time"
)

// DefaultTolerance is how late a shot may be before the operator is warned.
const DefaultTolerance = 3 * time.Second

type State uint8

const (
	Fresh State = iota
	Late
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Late:
		return "late"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Staleness struct {
	State State
	// LateBy is how far past the tolerance the next shot is. Zero when Fresh.
	LateBy time.Duration
	// NextShotIn counts down to the expected next shot; negative once overdue.
	NextShotIn time.Duration
}

// Evaluate classifies a frame shot at shotTime with the given period against
// the site time now.
func Evaluate(shotTime time.Time, period time.Duration, now time.Time, tolerance time.Duration) Staleness {
	nextExpected := shotTime.Add(period)
	lateBy := now.Sub(nextExpected)

	s := Staleness{State: Fresh, NextShotIn: -lateBy}
	if lateBy > tolerance {
		s.State = Late
		s.LateBy = lateBy - tolerance
	}
	return s
}
