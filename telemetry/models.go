package telemetry

import (
	"time"

	"gorm.io/datatypes"
)

// DeviceRecord is the registry row for one physical probe. Records are
// created lazily on the first valid sample and never deleted; lastSeen and
// lastLocation move forward on every subsequent sample (most-recent-wins).
type DeviceRecord struct {
	ID         uint              `gorm:"primaryKey"                            json:"-"`
	SensorID   string            `gorm:"column:sensor_id;uniqueIndex;size:128" json:"sensor_id"`
	SensorType string            `gorm:"column:sensor_type;size:32"            json:"sensor_type"`
	FirstSeen  time.Time         `gorm:"column:first_seen"                     json:"first_seen"`
	LastSeen   time.Time         `gorm:"column:last_seen;index"                json:"last_seen"`
	LastLat    *float64          `gorm:"column:last_lat"                       json:"last_lat,omitempty"`
	LastLng    *float64          `gorm:"column:last_lng"                       json:"last_lng,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata;type:jsonb"            json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"-"`
	UpdatedAt  time.Time         `json:"-"`
}

// TableName implements gorm's Tabler.
func (DeviceRecord) TableName() string { return "devices" }

// LastLocation returns the last reported location, or nil when the device
// has never reported one.
func (d *DeviceRecord) LastLocation() *Location {
	if d.LastLat == nil || d.LastLng == nil {
		return nil
	}
	return &Location{Lat: *d.LastLat, Lng: *d.LastLng}
}

// CanonicalReading is one normalized, scored measurement row. Rows are
// append-only and idempotent on (sensor_id, time); the readings table is
// range-partitioned by time, so the composite key includes the partition key.
// Missing measurements were defaulted to 0 with a quality penalty upstream;
// missing optional metadata (location, battery) stays NULL, never 0.
type CanonicalReading struct {
	SensorID     string                           `gorm:"column:sensor_id;primaryKey;size:128" json:"sensor_id"`
	Time         time.Time                        `gorm:"column:time;primaryKey"               json:"time"`
	Family       string                           `gorm:"column:family;size:32;index"          json:"family"`
	Lat          *float64                         `gorm:"column:lat"                           json:"lat,omitempty"`
	Lng          *float64                         `gorm:"column:lng"                           json:"lng,omitempty"`
	BatteryVolt  *float64                         `gorm:"column:battery_volt"                  json:"battery_volt,omitempty"`
	Measurements datatypes.JSONType[Measurements] `gorm:"column:measurements;type:jsonb"       json:"measurements"`
	QualityScore float64                          `gorm:"column:quality_score"                 json:"quality_score"`
	CreatedAt    time.Time                        `json:"-"`
}

// TableName implements gorm's Tabler.
func (CanonicalReading) TableName() string { return "readings" }

// NewReading assembles a reading with its measurement map. Time is forced to
// UTC; timezone conversion happens only at read time.
func NewReading(sensorID string, family Family, at time.Time, m Measurements, quality float64) CanonicalReading {
	return CanonicalReading{
		SensorID:     sensorID,
		Time:         at.UTC(),
		Family:       string(family),
		Measurements: datatypes.NewJSONType(m),
		QualityScore: quality,
	}
}

// Location returns the reading's location, or nil when the sample carried
// no usable coordinates.
func (r *CanonicalReading) Location() *Location {
	if r.Lat == nil || r.Lng == nil {
		return nil
	}
	return &Location{Lat: *r.Lat, Lng: *r.Lng}
}

// SetLocation stores loc on the reading; nil clears it back to NULL.
func (r *CanonicalReading) SetLocation(loc *Location) {
	if loc == nil {
		r.Lat, r.Lng = nil, nil
		return
	}
	lat, lng := loc.Lat, loc.Lng
	r.Lat, r.Lng = &lat, &lng
}
