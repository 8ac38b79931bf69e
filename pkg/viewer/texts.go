package viewer

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/message"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/staleness"
)

const (
	TextLoading     = "Loading..."
	TextUnavailable = "Unavailable"
)

// Texts are the operator-facing lines, already formatted.
type Texts struct {
	Clock       string `json:"clock"`
	SyncedAgo   string `json:"synced_ago"`
	NextShot    string `json:"next_shot"`
	Camera      string `json:"camera"`
	Recording   string `json:"recording"`
	Sun         string `json:"sun"`
	Moon        string `json:"moon"`
	Temperature string `json:"temperature"`
	Humidity    string `json:"humidity"`
}

const (
	clockLayout    = "02.01.2006, 15:04:05"
	crossingLayout = "15:04:05"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func roundSeconds(d time.Duration) int64 {
	return int64(math.Round(d.Seconds()))
}

// RenderTexts formats s for the operator. Times are shown in loc.
func RenderTexts(s Snapshot, siteName string, loc *time.Location) Texts {
	if loc == nil {
		loc = time.UTC
	}

	t := Texts{}

	if s.SiteTimeKnown() {
		t.Clock = fmt.Sprintf("%s %s time", s.SiteTime.In(loc).Format(clockLayout), siteName)
		t.SyncedAgo = fmt.Sprintf("synchronized %ds ago", roundSeconds(s.SyncedAgo))
	} else {
		t.Clock = TextLoading
		t.SyncedAgo = TextLoading
	}

	renderMetadata(&t, s, loc)
	renderConditions(&t, s.Conditions, loc)
	return t
}

func renderMetadata(t *Texts, s Snapshot, loc *time.Location) {
	if !s.FeedStarted {
		t.NextShot = TextLoading
		t.Camera = TextLoading
		t.Recording = TextLoading
		return
	}

	m := s.Metadata
	if m == nil {
		t.NextShot = TextUnavailable
		t.Camera = TextUnavailable
		t.Recording = TextUnavailable
		return
	}

	switch {
	case s.Staleness == nil:
		t.NextShot = fmt.Sprintf("shot at %s, period %s s", m.ShotDatetime.In(loc).Format(crossingLayout), formatFloat(m.Period))
	case s.Staleness.State == staleness.Late:
		t.NextShot = fmt.Sprintf("shot is %ds late, network problems?", roundSeconds(s.Staleness.LateBy))
	default:
		t.NextShot = fmt.Sprintf("next shot in %ds, period %ss", roundSeconds(s.Staleness.NextShotIn), formatFloat(m.Period))
	}

	temperature := TextUnavailable
	if m.DeviceTemperature != nil {
		temperature = formatFloat(*m.DeviceTemperature) + "°C"
	}
	t.Camera = fmt.Sprintf("exposure = %ss, gain = %s, camera T = %s", formatFloat(m.Exposure), formatFloat(m.Gain), temperature)

	if m.SaveToDisk.Enabled {
		t.Recording = fmt.Sprintf("recording each %s s", formatFloat(m.SaveToDisk.Period))
	} else {
		t.Recording = "not recording"
	}
}

func renderConditions(t *Texts, c *message.ObservationConditions, loc *time.Location) {
	if c == nil {
		t.Sun = TextLoading
		t.Moon = TextLoading
		t.Temperature = TextLoading
		t.Humidity = TextLoading
		return
	}

	switch {
	case !c.IsNight:
		t.Sun = "Day, sunset at " + c.Sunset.Next.In(loc).Format(crossingLayout)
	case c.IsAstronomicalNight:
		t.Sun = "Night (astronomical), sunrise at " + c.Sunrise.Next.In(loc).Format(crossingLayout)
	default:
		t.Sun = "Night, sunrise at " + c.Sunrise.Next.In(loc).Format(crossingLayout)
	}

	if c.IsMoonless {
		t.Moon = "Moonless, rises at " + c.Moonrise.Next.In(loc).Format(crossingLayout)
	} else {
		t.Moon = "Moonlit, sets at " + c.Moonset.Next.In(loc).Format(crossingLayout)
	}

	t.Temperature = TextUnavailable
	if c.ExternalTemperature != nil {
		t.Temperature = formatFloat(*c.ExternalTemperature) + " °C"
	}
	t.Humidity = TextUnavailable
	if c.ExternalHumidity != nil {
		t.Humidity = formatFloat(*c.ExternalHumidity) + " %"
	}
}
