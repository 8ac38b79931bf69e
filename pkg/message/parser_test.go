package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/errors"
)

func irkutsk(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Irkutsk")
	require.NoError(t, err)
	return loc
}

func TestParseTimestamp_formats(t *testing.T) {
	loc := irkutsk(t)

	rfc, err := ParseTimestamp("2021-02-03T04:05:06Z", loc)
	require.NoError(t, err)
	assert.True(t, rfc.Equal(time.Date(2021, 2, 3, 4, 5, 6, 0, time.UTC)))

	site, err := ParseTimestamp("2021/02/03 12:05:06", loc)
	require.NoError(t, err)
	// Irkutsk is UTC+8
	assert.True(t, site.Equal(time.Date(2021, 2, 3, 4, 5, 6, 0, time.UTC)), "got %s", site)

	frac, err := ParseTimestamp("2021-02-03T12:05:06.250", loc)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, time.Duration(frac.Nanosecond()))
}

func TestParseTimestamp_invalid(t *testing.T) {
	_, err := ParseTimestamp("yesterday", time.UTC)
	var invalid *errors.InvalidTimestamp
	assert.ErrorAs(t, err, &invalid)

	_, err = ParseTimestamp("  ", time.UTC)
	assert.Error(t, err)
}

func TestParser_ParseMetadata(t *testing.T) {
	p := Parser{Location: time.UTC}
	m, err := p.ParseMetadata([]byte(`{
		"exposure": 0.5, "gain": 120, "device_temperature": "-12.5",
		"shot_datetime": "2021-02-03T04:05:06Z", "period": 10,
		"save_to_disk": {"enabled": true, "period": 300}
	}`))
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, 0.5, m.Exposure)
	assert.Equal(t, 120.0, m.Gain)
	require.NotNil(t, m.DeviceTemperature)
	assert.Equal(t, -12.5, *m.DeviceTemperature)
	assert.Equal(t, 10*time.Second, m.PeriodDuration())
	assert.True(t, m.SaveToDisk.Enabled)
	assert.Equal(t, 300.0, m.SaveToDisk.Period)
}

func TestParser_ParseMetadata_emptyIsUnavailable(t *testing.T) {
	p := Parser{}
	for _, doc := range []string{`{}`, `null`, ` { } `} {
		m, err := p.ParseMetadata([]byte(doc))
		assert.NoError(t, err, doc)
		assert.Nil(t, m, doc)
	}
}

func TestParser_ParseMetadata_malformed(t *testing.T) {
	p := Parser{}
	for _, doc := range []string{``, `not json`, `[1,2]`, `{"gain": 1}`, `{"shot_datetime": "nope", "period": 1}`} {
		m, err := p.ParseMetadata([]byte(doc))
		assert.Nil(t, m, doc)
		assert.True(t, errors.IsMalformed(err), "expected malformed for %q, got %v", doc, err)
	}
}

func TestParser_ParseConditions(t *testing.T) {
	loc := irkutsk(t)
	p := Parser{Location: loc}
	oc, err := p.ParseConditions([]byte(`{
		"local_time": "2021/02/03 23:00:00",
		"is_night": true, "is_astronomical_night": false,
		"sunrise": {"previous": "2021/02/03 08:50:00", "next": "2021/02/04 08:49:00"},
		"sunset": {"next": "2021/02/04 17:40:00"},
		"is_moonless": false,
		"moonrise": {"next": "2021/02/04 01:00:00"},
		"moonset": {"next": "2021/02/04 11:00:00"},
		"external_temperature": "-23.5"
	}`))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2021, 2, 3, 23, 0, 0, 0, loc), oc.LocalTime)
	assert.True(t, oc.IsNight)
	assert.Equal(t, time.Date(2021, 2, 4, 8, 49, 0, 0, loc), oc.Sunrise.Next)
	assert.False(t, oc.Sunrise.Previous.IsZero())
	require.NotNil(t, oc.ExternalTemperature)
	assert.Equal(t, -23.5, *oc.ExternalTemperature)
	assert.Nil(t, oc.ExternalHumidity)
}

func TestParser_ParseConditions_missingLocalTime(t *testing.T) {
	_, err := Parser{}.ParseConditions([]byte(`{"is_night": false, "sunset": {"next": "2021/02/04 17:40:00"}}`))
	var missing *errors.MissingFieldError
	assert.ErrorAs(t, err, &missing)
	assert.True(t, errors.IsMalformed(err))
}

func TestFlexFloat_UnmarshalJSON(t *testing.T) {
	var f FlexFloat
	require.NoError(t, f.UnmarshalJSON([]byte(`"81 %"`)))
	assert.Equal(t, FlexFloat(81), f)
	require.NoError(t, f.UnmarshalJSON([]byte(`3.25`)))
	assert.Equal(t, FlexFloat(3.25), f)
	assert.Error(t, f.UnmarshalJSON([]byte(`"warm"`)))
}
