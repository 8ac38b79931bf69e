package clock

import "time"

// Anchor pairs an authoritative site time with the local time at which it was
// observed.
type Anchor struct {
	Authoritative time.Time
	Local         time.Time
}

// Extrapolate maps a local instant onto the site clock.
func (a Anchor) Extrapolate(localNow time.Time) time.Time {
	return a.Authoritative.Add(localNow.Sub(a.Local))
}
