package dualwrite

import (
	"context"
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// InfluxConfig holds InfluxDB 2.x connection settings.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxStore writes readings to an InfluxDB 2.x bucket. Measurement name is
// the family; sensor and gateway ids are tags; canonical measurements, the
// quality score and present metadata are fields.
type InfluxStore struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxStore creates the store. The client connects lazily; a down
// InfluxDB surfaces per write, not here.
func NewInfluxStore(cfg InfluxConfig) (*InfluxStore, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "InfluxStore", "NewInfluxStore", "check settings")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxStore{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// Name implements SecondaryStore.
func (s *InfluxStore) Name() string { return "influxdb" }

// WriteReading implements SecondaryStore.
func (s *InfluxStore) WriteReading(ctx context.Context, reading *telemetry.CanonicalReading) error {
	fields := make(map[string]any)
	for key, value := range reading.Measurements.Data() {
		fields[key] = value
	}
	fields["quality_score"] = reading.QualityScore
	if reading.BatteryVolt != nil {
		fields["battery_volt"] = *reading.BatteryVolt
	}
	if loc := reading.Location(); loc != nil {
		fields["lat"] = loc.Lat
		fields["lng"] = loc.Lng
	}

	point := influxdb2.NewPoint(reading.Family,
		map[string]string{
			"sensor_id":  reading.SensorID,
			"gateway_id": gatewayPart(reading.SensorID),
		},
		fields,
		reading.Time,
	)

	if err := s.write.WritePoint(ctx, point); err != nil {
		return errors.WrapTransient(err, "InfluxStore", "WriteReading", "write point")
	}
	return nil
}

// Close implements SecondaryStore.
func (s *InfluxStore) Close() error {
	s.client.Close()
	return nil
}

// gatewayPart strips the probe suffix from a compound sensor id. Gateway ids
// may themselves contain the separator, so the split is on the last one.
func gatewayPart(sensorID string) string {
	if i := strings.LastIndex(sensorID, telemetry.IDSeparator); i > 0 {
		return sensorID[:i]
	}
	return sensorID
}
