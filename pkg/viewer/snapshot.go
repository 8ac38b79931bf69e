package viewer

import (
	"time"

	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/frame"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/message"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/staleness"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/transport"
)

// Snapshot is everything the display needs at one instant. It is an
// immutable value: the session builds a fresh one on every change.
type Snapshot struct {
	Mode       Mode
	Connection transport.ConnectionState

	// FeedStarted is false until the first metadata or image message.
	FeedStarted  bool
	Metadata     *message.Metadata
	Image        *frame.ImageRef
	ImageLoading bool

	// SiteTime is the zero time until the first clock sync.
	SiteTime  time.Time
	SyncedAgo time.Duration

	// Staleness is nil while there is no metadata to judge.
	Staleness *staleness.Staleness

	// Conditions is nil until the first successful poll.
	Conditions *message.ObservationConditions

	Texts     Texts
	UpdatedAt time.Time
}

func (s Snapshot) SiteTimeKnown() bool {
	return !s.SiteTime.IsZero()
}
