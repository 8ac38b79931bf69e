package message

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/errors"
)

// Parser decodes the backend's JSON documents. Location is the site time zone
// used for timestamps that carry no zone.
type Parser struct {
	Location *time.Location
}

func wrapMalformed(name string, data []byte, err error) error {
	return errors.Categorize(&errors.MalformedMessage{
		MessageName: name,
		Size:        len(data),
		Err:         err,
	}, errors.CategoryMalformed)
}

// ParseMetadata decodes a shot metadata document. An empty object or null
// yields (nil, nil): metadata is unavailable for that shot.
func (p Parser) ParseMetadata(data []byte) (*Metadata, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, wrapMalformed("Metadata", data, fmt.Errorf("empty payload"))
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var w metadataWire
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, wrapMalformed("Metadata", data, err)
	}
	if w.empty() {
		return nil, nil
	}

	if w.ShotDatetime == nil {
		return nil, wrapMalformed("Metadata", data, &errors.MissingFieldError{MessageName: "Metadata", FieldName: "shot_datetime"})
	}
	if w.Period == nil {
		return nil, wrapMalformed("Metadata", data, &errors.MissingFieldError{MessageName: "Metadata", FieldName: "period"})
	}

	shot, err := ParseTimestamp(*w.ShotDatetime, p.Location)
	if err != nil {
		return nil, wrapMalformed("Metadata", data, err)
	}

	m := &Metadata{
		ShotDatetime:      shot,
		Period:            float64(*w.Period),
		DeviceTemperature: w.DeviceTemperature.Ptr(),
	}
	if w.Exposure != nil {
		m.Exposure = float64(*w.Exposure)
	}
	if w.Gain != nil {
		m.Gain = float64(*w.Gain)
	}
	if w.SaveToDisk != nil {
		m.SaveToDisk = SaveToDisk{Enabled: w.SaveToDisk.Enabled, Period: float64(w.SaveToDisk.Period)}
	}
	return m, nil
}

func (p Parser) parseCrossing(name string, data []byte, c crossingWire, required bool) (Crossing, error) {
	var out Crossing
	if c.Next == "" {
		if required {
			return out, wrapMalformed("ObservationConditions", data, &errors.MissingFieldError{MessageName: "ObservationConditions", FieldName: name + ".next"})
		}
		return out, nil
	}

	next, err := ParseTimestamp(c.Next, p.Location)
	if err != nil {
		return out, wrapMalformed("ObservationConditions", data, err)
	}
	out.Next = next

	if c.Previous != "" {
		if prev, err := ParseTimestamp(c.Previous, p.Location); err == nil {
			out.Previous = prev
		}
	}
	return out, nil
}

// ParseConditions decodes an observation conditions document. local_time is
// required since it anchors the site clock.
func (p Parser) ParseConditions(data []byte) (*ObservationConditions, error) {
	var w conditionsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, wrapMalformed("ObservationConditions", data, err)
	}
	if w.LocalTime == nil {
		return nil, wrapMalformed("ObservationConditions", data, &errors.MissingFieldError{MessageName: "ObservationConditions", FieldName: "local_time"})
	}

	localTime, err := ParseTimestamp(*w.LocalTime, p.Location)
	if err != nil {
		return nil, wrapMalformed("ObservationConditions", data, err)
	}

	oc := &ObservationConditions{
		LocalTime:           localTime,
		IsNight:             w.IsNight,
		IsAstronomicalNight: w.IsAstronomicalNight,
		IsMoonless:          w.IsMoonless,
		ExternalTemperature: w.ExternalTemperature.Ptr(),
		ExternalHumidity:    w.ExternalHumidity.Ptr(),
	}

	// Only the crossing the display actually shows is required.
	if oc.Sunrise, err = p.parseCrossing("sunrise", data, w.Sunrise, w.IsNight); err != nil {
		return nil, err
	}
	if oc.Sunset, err = p.parseCrossing("sunset", data, w.Sunset, !w.IsNight); err != nil {
		return nil, err
	}
	if oc.Moonrise, err = p.parseCrossing("moonrise", data, w.Moonrise, w.IsMoonless); err != nil {
		return nil, err
	}
	if oc.Moonset, err = p.parseCrossing("moonset", data, w.Moonset, !w.IsMoonless); err != nil {
		return nil, err
	}

	return oc, nil
}
