package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/timestamp"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// ParseReport decodes a raw vendor payload into a GatewayReport using the
// family's mapping table. Samples carrying no resolvable sensor id are not
// included; the second return value counts them so the caller can account
// for the skips. A payload with no device-identifying field fails with
// ErrNoGatewayID.
func ParseReport(m *FamilyMapping, raw []byte, loc *time.Location) (*telemetry.GatewayReport, int, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, 0, errors.WrapInvalid(errors.ErrInvalidPayload, "normalize", "ParseReport", "decode payload")
	}
	if len(fields) == 0 {
		return nil, 0, errors.WrapInvalid(errors.ErrEmptyPayload, "normalize", "ParseReport", "decode payload")
	}

	gatewayID, ok := lookupString(fields, m.GatewayIDAliases)
	if !ok {
		return nil, 0, errors.WrapInvalid(errors.ErrNoGatewayID, "normalize", "ParseReport", "resolve gateway id")
	}

	report := &telemetry.GatewayReport{
		GatewayID: gatewayID,
		Family:    m.Family,
		Time:      resolveFieldTime(fields, m, loc),
		Location:  resolveLocation(fields, m),
		Battery:   resolveBattery(fields, m),
		Fields:    fields,
	}

	if len(m.SampleListAliases) == 0 {
		// Flat single-probe payload: the top level is the sample.
		report.Samples = []telemetry.SensorSample{{
			SensorID: flatSensorID(fields, m),
			Fields:   fields,
		}}
		return report, 0, nil
	}

	rawList, found := lookup(fields, m.SampleListAliases)
	if !found {
		return report, 0, nil
	}
	list, ok := rawList.([]any)
	if !ok {
		return nil, 0, errors.WrapInvalid(errors.ErrInvalidPayload, "normalize", "ParseReport", "decode sample list")
	}

	skipped := 0
	for _, entry := range list {
		sampleFields, ok := entry.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		sensorID, ok := lookupString(sampleFields, m.SensorIDAliases)
		if !ok {
			if m.ImpliedProbeID == "" {
				skipped++
				continue
			}
			sensorID = m.ImpliedProbeID
		}
		if strings.Contains(sensorID, telemetry.IDSeparator) {
			// The probe part of a compound id must stay separator-free or
			// the gateway cannot be recovered from it later.
			skipped++
			continue
		}
		report.Samples = append(report.Samples, telemetry.SensorSample{
			SensorID: sensorID,
			Time:     resolveFieldTime(sampleFields, m, loc),
			Fields:   sampleFields,
		})
	}
	return report, skipped, nil
}

// flatSensorID picks the probe id for a lifted flat payload: an explicit
// sensor id field wins, otherwise the family's implied probe id. An explicit
// id containing the compound separator is unusable as a probe part, so it
// falls back to the implied id too.
func flatSensorID(fields map[string]any, m *FamilyMapping) string {
	if id, ok := lookupString(fields, m.SensorIDAliases); ok && !strings.Contains(id, telemetry.IDSeparator) {
		return id
	}
	return m.ImpliedProbeID
}

// resolveFieldTime extracts a device timestamp from a field map. Split
// date/time pairs win over single-field timestamps because they are more
// specific; zone-less wall clocks are interpreted in loc.
func resolveFieldTime(fields map[string]any, m *FamilyMapping, loc *time.Location) *time.Time {
	if dateStr, ok := lookupString(fields, m.DateAliases); ok {
		clockStr, _ := lookupString(fields, m.ClockAliases)
		if t, ok := timestamp.CombineDateTime(dateStr, clockStr, loc); ok {
			return &t
		}
	}
	if v, ok := lookup(fields, m.TimeAliases); ok {
		if t, ok := timestamp.ParseInZone(v, loc); ok {
			return &t
		}
	}
	return nil
}

func resolveLocation(fields map[string]any, m *FamilyMapping) *telemetry.Location {
	lat, latOK := lookupFloat(fields, m.LatAliases)
	lng, lngOK := lookupFloat(fields, m.LngAliases)
	if !latOK || !lngOK {
		return nil
	}
	// (0,0) is the null island a misconfigured GPS module reports; treat it
	// as absent rather than storing a coordinate in the Gulf of Guinea.
	if lat == 0 && lng == 0 {
		return nil
	}
	return &telemetry.Location{Lat: lat, Lng: lng}
}

func resolveBattery(fields map[string]any, m *FamilyMapping) *float64 {
	v, ok := lookupFloat(fields, m.BatteryAliases)
	if !ok {
		return nil
	}
	return &v
}
