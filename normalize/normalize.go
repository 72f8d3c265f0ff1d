package normalize

import (
	"time"

	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// DefaultStaleAfter is how far a reading's resolved time may lag its receipt
// before the staleness penalty applies. Field gateways buffer during cellular
// outages, so an hour of lag is routine; beyond that the reading is suspect.
const DefaultStaleAfter = time.Hour

// Normalizer turns raw vendor payloads into canonical readings using the
// family mapping tables. It is stateless and safe for concurrent use.
type Normalizer struct {
	table      *Table
	zone       *time.Location
	staleAfter time.Duration
}

// NewNormalizer builds a normalizer over the mapping table. Zone-less device
// wall clocks are interpreted in zone; pass the deployment's fixed offset.
func NewNormalizer(table *Table, zone *time.Location) *Normalizer {
	if zone == nil {
		zone = time.UTC
	}
	return &Normalizer{table: table, zone: zone, staleAfter: DefaultStaleAfter}
}

// SetStaleAfter overrides the staleness window. Non-positive values are
// ignored.
func (n *Normalizer) SetStaleAfter(d time.Duration) {
	if d > 0 {
		n.staleAfter = d
	}
}

// NormalizedSample pairs a canonical reading with the vendor fields it came
// from. The raw fields are captured as registry metadata when the device is
// first seen.
type NormalizedSample struct {
	Reading telemetry.CanonicalReading
	Raw     map[string]any
}

// Result is the outcome of normalizing one payload.
type Result struct {
	GatewayID string
	Samples   []NormalizedSample
	// Skipped counts samples dropped for lacking a sensor id. The rest of
	// the report is still processed.
	Skipped int
}

// Normalize decodes, maps and scores one raw payload. receivedAt is the
// ingress receipt instant: it is the timestamp of last resort and the
// reference point for staleness. A Result with zero readings and a nil error
// means the payload was well-formed but carried nothing usable.
func (n *Normalizer) Normalize(family telemetry.Family, raw []byte, receivedAt time.Time) (*Result, error) {
	mapping, err := n.table.Lookup(family)
	if err != nil {
		return nil, err
	}

	report, skipped, err := ParseReport(mapping, raw, n.zone)
	if err != nil {
		return nil, err
	}

	res := &Result{GatewayID: report.GatewayID, Skipped: skipped}
	for i := range report.Samples {
		sample := &report.Samples[i]
		res.Samples = append(res.Samples, NormalizedSample{
			Reading: n.normalizeSample(mapping, report, sample, receivedAt),
			Raw:     sample.Fields,
		})
	}
	return res, nil
}

// normalizeSample maps one probe sample onto a canonical reading.
//
// Missing required measurements become an explicit 0 with a quality penalty;
// missing optional metadata (location, battery) stays NULL. The reading time
// resolves down a ladder: sample timestamp, then gateway timestamp, then the
// receipt instant.
func (n *Normalizer) normalizeSample(m *FamilyMapping, report *telemetry.GatewayReport, sample *telemetry.SensorSample, receivedAt time.Time) telemetry.CanonicalReading {
	measurements := make(telemetry.Measurements, len(m.Fields))
	missing := 0
	for _, f := range m.Fields {
		v, ok := lookupFloat(sample.Fields, f.Aliases)
		if !ok {
			if !f.Required {
				continue
			}
			measurements[f.Key] = 0
			missing++
			continue
		}
		measurements[f.Key] = v
		if f.Required && v == 0 {
			// A hard zero on a required channel is indistinguishable from a
			// dead probe; score it like an absence.
			missing++
		}
	}

	at := resolveReadingTime(sample, report, receivedAt)
	quality := Score(m, missing, at, receivedAt, n.staleAfter)

	reading := telemetry.NewReading(
		telemetry.CompoundSensorID(report.GatewayID, sample.SensorID),
		report.Family, at, measurements, quality)

	reading.SetLocation(sampleLocation(m, sample, report))
	reading.BatteryVolt = sampleBattery(m, sample, report)
	return reading
}

// resolveReadingTime walks the timestamp ladder: sample, gateway, receipt.
func resolveReadingTime(sample *telemetry.SensorSample, report *telemetry.GatewayReport, receivedAt time.Time) time.Time {
	if sample.Time != nil {
		return *sample.Time
	}
	if report.Time != nil {
		return *report.Time
	}
	return receivedAt
}

// sampleLocation prefers per-sample coordinates over the gateway's.
func sampleLocation(m *FamilyMapping, sample *telemetry.SensorSample, report *telemetry.GatewayReport) *telemetry.Location {
	if loc := resolveLocation(sample.Fields, m); loc != nil {
		return loc
	}
	return report.Location
}

// sampleBattery prefers the sample's battery reading over the gateway's.
func sampleBattery(m *FamilyMapping, sample *telemetry.SensorSample, report *telemetry.GatewayReport) *float64 {
	if b := resolveBattery(sample.Fields, m); b != nil {
		return b
	}
	return report.Battery
}
