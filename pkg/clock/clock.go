package clock

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock extrapolates the site time from the latest anchor. Readings never go
// backwards: a sync that would move the clock back is absorbed by holding the
// previous reading until the new anchor catches up.
type Clock struct {
	mut sync.Mutex

	anchor Anchor
	known  bool
	last   time.Time

	log *zap.Logger
}

func New(logger *zap.Logger) *Clock {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	return &Clock{
		mut: sync.Mutex{},
		log: logger.With(zap.String("component", "Clock")),
	}
}

// OnSync replaces the anchor wholesale.
func (c *Clock) OnSync(authoritative, localNow time.Time) {
	c.mut.Lock()
	defer c.mut.Unlock()

	next := Anchor{Authoritative: authoritative, Local: localNow}
	if c.known {
		drift := next.Extrapolate(localNow).Sub(c.anchor.Extrapolate(localNow))
		if drift < 0 {
			c.log.Debug("Site clock sync moved backwards, holding display time", zap.Duration("drift", drift))
		}
	}

	c.anchor = next
	c.known = true
}

// Now returns the extrapolated site time for localNow, or the zero time before
// the first sync.
func (c *Clock) Now(localNow time.Time) time.Time {
	c.mut.Lock()
	defer c.mut.Unlock()

	if !c.known {
		return time.Time{}
	}

	t := c.anchor.Extrapolate(localNow)
	if t.Before(c.last) {
		return c.last
	}
	c.last = t
	return t
}

func (c *Clock) Known() bool {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.known
}

func (c *Clock) Anchor() (Anchor, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.anchor, c.known
}

// SinceSync is the local time elapsed since the anchor was taken.
func (c *Clock) SinceSync(localNow time.Time) time.Duration {
	c.mut.Lock()
	defer c.mut.Unlock()

	if !c.known {
		return 0
	}
	return localNow.Sub(c.anchor.Local)
}
