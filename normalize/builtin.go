package normalize

import (
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// Default quality rule values. Four missing required measurements zero out a
// reading's score.
const (
	defaultRequiredPenalty = 0.25
	defaultStalePenalty    = 0.25
)

// builtinMappings returns the built-in tables for the three device families.
// Alias lists cover the vendor payload dialects seen in the field; a YAML
// overlay file can extend or replace them per deployment.
func builtinMappings() []*FamilyMapping {
	return []*FamilyMapping{
		{
			// Soil moisture gateways aggregate multiple probes per report.
			Family:            telemetry.FamilyMoisture,
			GatewayIDAliases:  []string{"gatewayId", "gw_id", "gateway_id", "deviceID", "device_id"},
			SampleListAliases: []string{"sensor", "sensorSamples", "samples"},
			SensorIDAliases:   []string{"sensorId", "sensor_id", "id"},
			TimeAliases:       []string{"timestamp", "datetime"},
			DateAliases:       []string{"date", "msg_date"},
			ClockAliases:      []string{"time", "msg_time"},
			LatAliases:        []string{"latitude", "lat"},
			LngAliases:        []string{"longitude", "lng", "lon"},
			BatteryAliases:    []string{"sensor_batt", "batt", "battery", "gw_batt"},
			Fields: []FieldMapping{
				{Key: telemetry.KeyMoistureSurfacePct, Aliases: []string{"humidHi", "humid_hi", "moisture_surface"}, Required: true},
				{Key: telemetry.KeyMoistureDeepPct, Aliases: []string{"humidLow", "humid_low", "moisture_deep"}, Required: true},
				{Key: telemetry.KeyTempSurfaceC, Aliases: []string{"tempHi", "temp_hi", "temp_surface"}},
				{Key: telemetry.KeyTempDeepC, Aliases: []string{"tempLow", "temp_low", "temp_deep"}},
				{Key: telemetry.KeyHumidityPct, Aliases: []string{"ambHumid", "amb_humid", "ambient_humidity"}},
				{Key: telemetry.KeyTempAirC, Aliases: []string{"ambTemp", "amb_temp", "ambient_temp"}},
				{Key: telemetry.KeyFlood, Aliases: []string{"flood", "flood_flag"}},
			},
			RequiredPenalty: defaultRequiredPenalty,
			StalePenalty:    defaultStalePenalty,
		},
		{
			// Water-level gauges send flat single-probe payloads; the top
			// level is lifted into one sample with the implied probe id.
			Family:           telemetry.FamilyWaterLevel,
			GatewayIDAliases: []string{"deviceID", "device_id", "deviceId", "gw_id", "macAddress"},
			SensorIDAliases:  []string{"sensorId", "sensor_id"},
			ImpliedProbeID:   "0",
			TimeAliases:      []string{"timestamp", "time", "datetime"},
			DateAliases:      []string{"date"},
			ClockAliases:     []string{"time"},
			LatAliases:       []string{"latitude", "lat"},
			LngAliases:       []string{"longitude", "lng", "lon"},
			BatteryAliases:   []string{"voltage", "batt", "battery"},
			Fields: []FieldMapping{
				{Key: telemetry.KeyLevelCm, Aliases: []string{"level", "water_level", "levelCm"}, Required: true},
				{Key: telemetry.KeyVoltageV, Aliases: []string{"voltage", "volt", "batt"}, Required: true},
				{Key: telemetry.KeyRSSIDbm, Aliases: []string{"RSSI", "rssi", "signal", "signal_strength"}},
			},
			RequiredPenalty: defaultRequiredPenalty,
			StalePenalty:    defaultStalePenalty,
		},
		{
			// Weather stations also report flat payloads.
			Family:           telemetry.FamilyWeather,
			GatewayIDAliases: []string{"stationId", "station_id", "deviceID", "device_id", "gw_id"},
			SensorIDAliases:  []string{"sensorId", "sensor_id"},
			ImpliedProbeID:   "0",
			TimeAliases:      []string{"timestamp", "observed_at", "datetime"},
			DateAliases:      []string{"date"},
			ClockAliases:     []string{"time"},
			LatAliases:       []string{"latitude", "lat"},
			LngAliases:       []string{"longitude", "lng", "lon"},
			BatteryAliases:   []string{"battery", "batt", "voltage"},
			Fields: []FieldMapping{
				{Key: telemetry.KeyTempAirC, Aliases: []string{"temperature", "temp", "air_temp"}, Required: true},
				{Key: telemetry.KeyHumidityPct, Aliases: []string{"humidity", "rh"}, Required: true},
				{Key: telemetry.KeyPressureHpa, Aliases: []string{"pressure", "baro", "pressure_hpa"}, Required: true},
				{Key: telemetry.KeyWindSpeedMs, Aliases: []string{"windSpeed", "wind_speed", "wind"}},
				{Key: telemetry.KeyWindDirDeg, Aliases: []string{"windDir", "wind_dir", "wind_direction"}},
				{Key: telemetry.KeyRainMm, Aliases: []string{"rain", "rainfall", "precip"}},
				{Key: telemetry.KeySolarWm2, Aliases: []string{"solar", "solar_radiation", "irradiance"}},
			},
			RequiredPenalty: defaultRequiredPenalty,
			StalePenalty:    defaultStalePenalty,
		},
	}
}
