package message

import (
	"time"
)

type SaveToDisk struct {
	Enabled bool    `json:"enabled"`
	Period  float64 `json:"period"`
}

// Metadata describes one shot. A nil *Metadata means metadata is unavailable.
type Metadata struct {
	Exposure          float64    `json:"exposure"`
	Gain              float64    `json:"gain"`
	DeviceTemperature *float64   `json:"device_temperature"`
	ShotDatetime      time.Time  `json:"shot_datetime"`
	Period            float64    `json:"period"`
	SaveToDisk        SaveToDisk `json:"save_to_disk"`
}

func (m *Metadata) PeriodDuration() time.Duration {
	return time.Duration(m.Period * float64(time.Second))
}

type metadataWire struct {
	Exposure          *FlexFloat `json:"exposure"`
	Gain              *FlexFloat `json:"gain"`
	DeviceTemperature *FlexFloat `json:"device_temperature"`
	ShotDatetime      *string    `json:"shot_datetime"`
	Period            *FlexFloat `json:"period"`
	SaveToDisk        *struct {
		Enabled bool      `json:"enabled"`
		Period  FlexFloat `json:"period"`
	} `json:"save_to_disk"`
}

func (w *metadataWire) empty() bool {
	return w.Exposure == nil && w.Gain == nil && w.DeviceTemperature == nil &&
		w.ShotDatetime == nil && w.Period == nil && w.SaveToDisk == nil
}
