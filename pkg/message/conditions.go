package message

import (
	"time"
)

// Crossing holds the neighbouring rise or set times of a body.
type Crossing struct {
	Previous time.Time `json:"previous,omitempty"`
	Next     time.Time `json:"next"`
}

type ObservationConditions struct {
	LocalTime           time.Time `json:"local_time"`
	IsNight             bool      `json:"is_night"`
	IsAstronomicalNight bool      `json:"is_astronomical_night"`
	Sunrise             Crossing  `json:"sunrise"`
	Sunset              Crossing  `json:"sunset"`
	IsMoonless          bool      `json:"is_moonless"`
	Moonrise            Crossing  `json:"moonrise"`
	Moonset             Crossing  `json:"moonset"`
	ExternalTemperature *float64  `json:"external_temperature,omitempty"`
	ExternalHumidity    *float64  `json:"external_humidity,omitempty"`
}

type crossingWire struct {
	Previous string `json:"previous"`
	Next     string `json:"next"`
}

type conditionsWire struct {
	LocalTime           *string      `json:"local_time"`
	IsNight             bool         `json:"is_night"`
	IsAstronomicalNight bool         `json:"is_astronomical_night"`
	Sunrise             crossingWire `json:"sunrise"`
	Sunset              crossingWire `json:"sunset"`
	IsMoonless          bool         `json:"is_moonless"`
	Moonrise            crossingWire `json:"moonrise"`
	Moonset             crossingWire `json:"moonset"`
	ExternalTemperature *FlexFloat   `json:"external_temperature"`
	ExternalHumidity    *FlexFloat   `json:"external_humidity"`
}
