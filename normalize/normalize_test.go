package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/timestamp"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

var bangkok = timestamp.FixedZone("+07:00")

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	table := NewTable()
	require.NoError(t, table.Validate())
	return NewNormalizer(table, bangkok)
}

func TestNormalizeMoistureReport(t *testing.T) {
	n := newTestNormalizer(t)
	receivedAt := time.Now().UTC()

	raw := []byte(`{"gatewayId":"0003","sensor":[{"sensorId":"13","humidHi":"35","humidLow":"38"}]}`)
	res, err := n.Normalize(telemetry.FamilyMoisture, raw, receivedAt)
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)
	assert.Equal(t, "0003", res.GatewayID)
	assert.Zero(t, res.Skipped)

	r := res.Samples[0].Reading
	assert.Equal(t, "0003-13", r.SensorID)
	assert.Equal(t, "moisture", r.Family)

	m := r.Measurements.Data()
	surface, ok := m.Get(telemetry.KeyMoistureSurfacePct)
	require.True(t, ok)
	assert.Equal(t, 35.0, surface)
	deep, ok := m.Get(telemetry.KeyMoistureDeepPct)
	require.True(t, ok)
	assert.Equal(t, 38.0, deep)

	// Both required channels present and fresh: full score.
	assert.Equal(t, 1.0, r.QualityScore)

	// No GPS, no battery in the payload: columns stay NULL.
	assert.Nil(t, r.Lat)
	assert.Nil(t, r.Lng)
	assert.Nil(t, r.BatteryVolt)

	// No device timestamp anywhere: receipt time is the fallback.
	assert.Equal(t, receivedAt.UTC(), r.Time)
}

func TestNormalizeMissingRequiredBecomesZeroWithPenalty(t *testing.T) {
	n := newTestNormalizer(t)

	raw := []byte(`{"gatewayId":"0003","sensor":[{"sensorId":"13","humidHi":40}]}`)
	res, err := n.Normalize(telemetry.FamilyMoisture, raw, time.Now())
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)

	r := res.Samples[0].Reading
	m := r.Measurements.Data()
	deep, ok := m.Get(telemetry.KeyMoistureDeepPct)
	require.True(t, ok, "missing required measurement must be stored as explicit 0")
	assert.Zero(t, deep)
	assert.InDelta(t, 0.75, r.QualityScore, 1e-9)
}

func TestNormalizeZeroRequiredScoresLikeMissing(t *testing.T) {
	n := newTestNormalizer(t)

	raw := []byte(`{"deviceID":"WL-9","level":0,"voltage":3.7}`)
	res, err := n.Normalize(telemetry.FamilyWaterLevel, raw, time.Now())
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)

	r := res.Samples[0].Reading
	assert.Equal(t, "WL-9-0", r.SensorID, "flat payload lifts onto the implied probe id")
	assert.InDelta(t, 0.75, r.QualityScore, 1e-9)

	// Voltage doubles as battery metadata for this family.
	require.NotNil(t, r.BatteryVolt)
	assert.Equal(t, 3.7, *r.BatteryVolt)
}

func TestNormalizeTimestampLadder(t *testing.T) {
	n := newTestNormalizer(t)
	receivedAt := time.Date(2025, 5, 28, 4, 0, 0, 0, time.UTC)

	// Gateway-level split date/time, zone-less, interpreted at +07:00.
	raw := []byte(`{"gatewayId":"0003","date":"2025/05/28","time":"10:30:00","sensor":[{"sensorId":"13","humidHi":35,"humidLow":38}]}`)
	res, err := n.Normalize(telemetry.FamilyMoisture, raw, receivedAt)
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)

	want := time.Date(2025, 5, 28, 3, 30, 0, 0, time.UTC)
	assert.True(t, res.Samples[0].Reading.Time.Equal(want), "got %v", res.Samples[0].Reading.Time)
	assert.Equal(t, 1.0, res.Samples[0].Reading.QualityScore, "30 minutes of lag is not stale")
}

func TestNormalizeStalePenalty(t *testing.T) {
	n := newTestNormalizer(t)
	receivedAt := time.Date(2025, 5, 28, 10, 0, 0, 0, time.UTC)

	// Sample timestamp three hours before receipt.
	raw := []byte(`{"gatewayId":"0003","sensor":[{"sensorId":"13","humidHi":35,"humidLow":38,"timestamp":"2025-05-28T07:00:00Z"}]}`)
	res, err := n.Normalize(telemetry.FamilyMoisture, raw, receivedAt)
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)
	assert.InDelta(t, 0.75, res.Samples[0].Reading.QualityScore, 1e-9)
}

func TestSetStaleAfterTightensWindow(t *testing.T) {
	n := newTestNormalizer(t)
	n.SetStaleAfter(15 * time.Minute)
	receivedAt := time.Date(2025, 5, 28, 10, 0, 0, 0, time.UTC)

	// Thirty minutes of lag is fresh under the default window but stale
	// under the tightened one.
	raw := []byte(`{"gatewayId":"0003","sensor":[{"sensorId":"13","humidHi":35,"humidLow":38,"timestamp":"2025-05-28T09:30:00Z"}]}`)
	res, err := n.Normalize(telemetry.FamilyMoisture, raw, receivedAt)
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)
	assert.InDelta(t, 0.75, res.Samples[0].Reading.QualityScore, 1e-9)

	n.SetStaleAfter(0)
	res, err = n.Normalize(telemetry.FamilyMoisture, raw, receivedAt)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, res.Samples[0].Reading.QualityScore, 1e-9, "non-positive override is ignored")
}

func TestNormalizeSkipsSamplesWithoutSensorID(t *testing.T) {
	n := newTestNormalizer(t)

	raw := []byte(`{"gatewayId":"0003","sensor":[{"humidHi":35},{"sensorId":"13","humidHi":35,"humidLow":38}]}`)
	res, err := n.Normalize(telemetry.FamilyMoisture, raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Samples, 1)
	assert.Equal(t, "0003-13", res.Samples[0].Reading.SensorID)
}

func TestNormalizeRejectsSeparatorInProbeID(t *testing.T) {
	n := newTestNormalizer(t)

	// A probe id carrying the compound separator would make the stored
	// sensor id ambiguous, so the sample is dropped.
	raw := []byte(`{"gatewayId":"0003","sensor":[{"sensorId":"13-2","humidHi":35},{"sensorId":"13","humidHi":35,"humidLow":38}]}`)
	res, err := n.Normalize(telemetry.FamilyMoisture, raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Samples, 1)
	assert.Equal(t, "0003-13", res.Samples[0].Reading.SensorID)

	// A flat payload falls back to the implied probe id when its explicit
	// sensor id contains the separator.
	raw = []byte(`{"deviceID":"WL-9","sensorId":"9-b","level":12,"voltage":3.7}`)
	res, err = n.Normalize(telemetry.FamilyWaterLevel, raw, time.Now())
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)
	assert.Equal(t, "WL-9-0", res.Samples[0].Reading.SensorID)
}

func TestNormalizeGatewayLocationAndNumericIDs(t *testing.T) {
	n := newTestNormalizer(t)

	raw := []byte(`{"gw_id":3,"latitude":14.88,"longitude":103.49,"gw_batt":12.4,"sensor":[{"id":7,"humidHi":35,"humidLow":38}]}`)
	res, err := n.Normalize(telemetry.FamilyMoisture, raw, time.Now())
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)

	r := res.Samples[0].Reading
	assert.Equal(t, "3-7", r.SensorID, "numeric ids keep their integer form")
	require.NotNil(t, r.Lat)
	require.NotNil(t, r.Lng)
	assert.Equal(t, 14.88, *r.Lat)
	assert.Equal(t, 103.49, *r.Lng)
	require.NotNil(t, r.BatteryVolt)
	assert.Equal(t, 12.4, *r.BatteryVolt)
}

func TestNormalizeNullIslandIsAbsent(t *testing.T) {
	n := newTestNormalizer(t)

	raw := []byte(`{"gatewayId":"0003","latitude":0,"longitude":0,"sensor":[{"sensorId":"13","humidHi":35,"humidLow":38}]}`)
	res, err := n.Normalize(telemetry.FamilyMoisture, raw, time.Now())
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)
	assert.Nil(t, res.Samples[0].Reading.Lat)
	assert.Nil(t, res.Samples[0].Reading.Lng)
}

func TestNormalizeEmptyAndUnattributablePayloads(t *testing.T) {
	n := newTestNormalizer(t)

	_, err := n.Normalize(telemetry.FamilyMoisture, []byte(`{}`), time.Now())
	assert.True(t, errors.IsInvalid(err))

	_, err = n.Normalize(telemetry.FamilyMoisture, []byte(`{"sensor":[]}`), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoGatewayID)

	_, err = n.Normalize(telemetry.Family("pressure"), []byte(`{"gatewayId":"1"}`), time.Now())
	assert.ErrorIs(t, err, errors.ErrUnknownFamily)
}

func TestNormalizeWellFormedButEmptyReport(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.Normalize(telemetry.FamilyMoisture, []byte(`{"gatewayId":"0003"}`), time.Now())
	require.NoError(t, err)
	assert.Empty(t, res.Samples)
}

func TestNormalizeWeatherFlags(t *testing.T) {
	n := newTestNormalizer(t)

	raw := []byte(`{"stationId":"AWS-01","temperature":31.2,"humidity":68,"pressure":1009.1,"rain":"0.5"}`)
	res, err := n.Normalize(telemetry.FamilyWeather, raw, time.Now())
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)

	m := res.Samples[0].Reading.Measurements.Data()
	rain, ok := m.Get(telemetry.KeyRainMm)
	require.True(t, ok)
	assert.Equal(t, 0.5, rain)
	_, ok = m.Get(telemetry.KeyWindSpeedMs)
	assert.False(t, ok, "optional measurements are omitted, not zero-filled")
	assert.Equal(t, 1.0, res.Samples[0].Reading.QualityScore)
}

func TestCoerceFloat(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{35.5, 35.5, true},
		{"35", 35, true},
		{" 3.7 ", 3.7, true},
		{true, 1, true},
		{"no", 0, true},
		{"n/a", 0, false},
		{"", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := toFloat(tc.in)
		assert.Equal(t, tc.ok, ok, "input %v", tc.in)
		if ok {
			assert.Equal(t, tc.want, got, "input %v", tc.in)
		}
	}
}
