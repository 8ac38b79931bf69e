package display

import (
	"time"

	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/frame"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/message"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/staleness"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/transport"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/viewer"
)

type stalenessView struct {
	State       staleness.State `json:"state"`
	LateByS     float64         `json:"late_by_s"`
	NextShotInS float64         `json:"next_shot_in_s"`
}

// stateView is the wire form of a viewer.Snapshot.
type stateView struct {
	Mode         viewer.Mode                    `json:"mode"`
	Connection   transport.ConnectionState      `json:"connection"`
	Metadata     *message.Metadata              `json:"metadata"`
	Image        *frame.ImageRef                `json:"image"`
	ImageURL     string                         `json:"image_url,omitempty"`
	ImageLoading bool                           `json:"image_loading"`
	SiteTime     *time.Time                     `json:"site_time"`
	SyncedAgoS   *float64                       `json:"synced_ago_s"`
	Staleness    *stalenessView                 `json:"staleness"`
	Conditions   *message.ObservationConditions `json:"conditions"`
	Texts        viewer.Texts                   `json:"texts"`
	UpdatedAt    time.Time                      `json:"updated_at"`
}

func frameURL(ref *frame.ImageRef) string {
	return "/api/frame/" + ref.ID.String()
}

func newStateView(s viewer.Snapshot) stateView {
	v := stateView{
		Mode:         s.Mode,
		Connection:   s.Connection,
		Metadata:     s.Metadata,
		Image:        s.Image,
		ImageLoading: s.ImageLoading,
		Conditions:   s.Conditions,
		Texts:        s.Texts,
		UpdatedAt:    s.UpdatedAt,
	}

	if s.Image != nil {
		v.ImageURL = frameURL(s.Image)
	}
	if s.SiteTimeKnown() {
		siteTime := s.SiteTime
		syncedAgo := s.SyncedAgo.Seconds()
		v.SiteTime = &siteTime
		v.SyncedAgoS = &syncedAgo
	}
	if s.Staleness != nil {
		v.Staleness = &stalenessView{
			State:       s.Staleness.State,
			LateByS:     s.Staleness.LateBy.Seconds(),
			NextShotInS: s.Staleness.NextShotIn.Seconds(),
		}
	}
	return v
}
