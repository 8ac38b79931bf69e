package message

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// FlexFloat accepts a JSON number or a numeric string. Sensor readings coming
// from the serial controller are forwarded as strings.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexFloat(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimRight(s, "°C%W ")), 64)
	if err != nil {
		return err
	}
	*f = FlexFloat(n)
	return nil
}

func (f *FlexFloat) Ptr() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}
