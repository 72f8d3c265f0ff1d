// Package telemetry defines the canonical domain types shared across the
// ingestion pipeline: device families, the canonical measurement schema,
// parsed gateway reports, and the persisted models (device registry rows and
// canonical readings).
//
// The canonical measurement keys and the UTC storage convention are the
// stable contract toward the read side; renaming a key or changing a unit is
// a breaking change for every downstream consumer.
package telemetry

import (
	"fmt"
	"time"
)

// Family identifies a device class. The family is set by the ingress route
// and selects the normalization mapping table; it never encodes a vendor.
type Family string

// Known device families.
const (
	FamilyMoisture   Family = "moisture"
	FamilyWaterLevel Family = "waterlevel"
	FamilyWeather    Family = "weather"
)

// Families returns all known device families in a stable order.
func Families() []Family {
	return []Family{FamilyMoisture, FamilyWaterLevel, FamilyWeather}
}

// Valid reports whether f is a known device family.
func (f Family) Valid() bool {
	switch f {
	case FamilyMoisture, FamilyWaterLevel, FamilyWeather:
		return true
	}
	return false
}

func (f Family) String() string { return string(f) }

// Canonical measurement keys. Values are float64; boolean flags are encoded
// as 0/1. Units are part of the key name.
const (
	KeyMoistureSurfacePct = "moisture_surface_pct"
	KeyMoistureDeepPct    = "moisture_deep_pct"
	KeyTempSurfaceC       = "temp_surface_c"
	KeyTempDeepC          = "temp_deep_c"
	KeyHumidityPct        = "humidity_pct"
	KeyTempAirC           = "temp_air_c"
	KeyFlood              = "flood"
	KeyLevelCm            = "level_cm"
	KeyVoltageV           = "voltage_v"
	KeyRSSIDbm            = "rssi_dbm"
	KeyWindSpeedMs        = "wind_speed_ms"
	KeyWindDirDeg         = "wind_dir_deg"
	KeyRainMm             = "rain_mm"
	KeySolarWm2           = "solar_wm2"
	KeyPressureHpa        = "pressure_hpa"
)

// IDSeparator joins gateway and probe identifiers into a compound sensor ID.
const IDSeparator = "-"

// CompoundSensorID builds the stable identity of a physical probe. Gateway
// IDs and probe IDs are namespaced by construction, so probes with the same
// on-gateway ID never collide across gateways.
//
// Gateway ids may themselves contain the separator ("WL-9"); probe ids must
// not, and normalization drops samples that violate this. Splitting a
// compound id on its last separator therefore always recovers the gateway.
func CompoundSensorID(gatewayID, sensorID string) string {
	return gatewayID + IDSeparator + sensorID
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l Location) String() string {
	return fmt.Sprintf("%.6f,%.6f", l.Lat, l.Lng)
}

// Measurements holds normalized numeric values keyed by canonical keys.
type Measurements map[string]float64

// Get returns the value for key and whether it is present.
func (m Measurements) Get(key string) (float64, bool) {
	v, ok := m[key]
	return v, ok
}

// SensorSample is one probe's raw sample, extracted from a gateway report
// but not yet normalized. Fields retains the vendor field names.
type SensorSample struct {
	SensorID string
	Time     *time.Time
	Fields   map[string]any
}

// GatewayReport is a parsed top-level device message. Fields retains the raw
// gateway-level vendor fields; Samples holds the per-probe entries. Location
// and Battery are nil when the device did not report them.
type GatewayReport struct {
	GatewayID string
	Family    Family
	Time      *time.Time
	Location  *Location
	Battery   *float64
	Fields    map[string]any
	Samples   []SensorSample
}
