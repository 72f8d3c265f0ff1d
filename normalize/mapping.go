// Package normalize maps vendor-specific gateway payloads onto the canonical
// reading schema. Each device family carries one data-driven mapping table —
// gateway-id aliases, sample-list aliases, per-field alias lists, timestamp
// aliases and quality rules — selected by the envelope's family
// discriminator. Vendor variability is absorbed entirely by alias lists;
// there is no per-vendor branching anywhere in the pipeline.
package normalize

import (
	"fmt"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// FieldMapping maps vendor field names onto one canonical measurement key.
type FieldMapping struct {
	// Key is the canonical measurement key (see package telemetry).
	Key string `yaml:"key"`

	// Aliases are the vendor field names carrying this measurement, most
	// common first.
	Aliases []string `yaml:"aliases"`

	// Required marks measurements whose absence (or zero value) lowers the
	// quality score. Missing required measurements are still stored, as an
	// explicit 0.
	Required bool `yaml:"required"`
}

// FamilyMapping is the complete normalization table for one device family.
type FamilyMapping struct {
	Family telemetry.Family `yaml:"-"`

	// GatewayIDAliases identify the device at the top level of the payload.
	// A payload carrying none of these cannot be attributed and is rejected
	// at ingress.
	GatewayIDAliases []string `yaml:"gateway_id_aliases"`

	// SampleListAliases name the per-probe sample array. Families whose
	// devices send flat single-probe payloads leave this empty and set
	// ImpliedProbeID instead; the top-level object is lifted into one
	// sample.
	SampleListAliases []string `yaml:"sample_list_aliases"`

	// SensorIDAliases identify the probe within a sample.
	SensorIDAliases []string `yaml:"sensor_id_aliases"`

	// ImpliedProbeID is the probe id assigned to lifted flat payloads (and
	// to samples missing an explicit id when set). Empty means samples
	// without a sensor id are skipped.
	ImpliedProbeID string `yaml:"implied_probe_id"`

	// Timestamp aliases. TimeAliases are single-field timestamps tried at
	// both sample and gateway level; DateAliases+ClockAliases form split
	// date/time pairs, resolved before single fields because they are more
	// specific.
	TimeAliases  []string `yaml:"time_aliases"`
	DateAliases  []string `yaml:"date_aliases"`
	ClockAliases []string `yaml:"clock_aliases"`

	// Optional metadata aliases. Missing values stay NULL, never 0: a
	// fabricated zero would misrepresent an unset attribute as a real
	// coordinate or voltage.
	LatAliases     []string `yaml:"lat_aliases"`
	LngAliases     []string `yaml:"lng_aliases"`
	BatteryAliases []string `yaml:"battery_aliases"`

	// Fields are the measurement mappings.
	Fields []FieldMapping `yaml:"fields"`

	// RequiredPenalty is subtracted from the quality score once per
	// missing or zero required measurement.
	RequiredPenalty float64 `yaml:"required_penalty"`

	// StalePenalty is subtracted when the resolved reading time lags the
	// receipt time beyond the staleness tolerance.
	StalePenalty float64 `yaml:"stale_penalty"`
}

// ResolveGatewayID extracts the device-identifying field from a decoded
// payload. Ingress uses this for its only structural check; full parsing
// happens in the processor.
func (m *FamilyMapping) ResolveGatewayID(fields map[string]any) (string, bool) {
	return lookupString(fields, m.GatewayIDAliases)
}

// Validate checks the mapping table for internal consistency.
func (m *FamilyMapping) Validate() error {
	if len(m.GatewayIDAliases) == 0 {
		return fmt.Errorf("family %s: no gateway id aliases", m.Family)
	}
	if len(m.SampleListAliases) == 0 && m.ImpliedProbeID == "" {
		return fmt.Errorf("family %s: no sample list aliases and no implied probe id", m.Family)
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("family %s: no field mappings", m.Family)
	}
	for _, f := range m.Fields {
		if f.Key == "" {
			return fmt.Errorf("family %s: field mapping with empty key", m.Family)
		}
		if len(f.Aliases) == 0 {
			return fmt.Errorf("family %s: field %s has no aliases", m.Family, f.Key)
		}
	}
	if m.RequiredPenalty < 0 || m.RequiredPenalty > 1 {
		return fmt.Errorf("family %s: required_penalty %v outside [0,1]", m.Family, m.RequiredPenalty)
	}
	if m.StalePenalty < 0 || m.StalePenalty > 1 {
		return fmt.Errorf("family %s: stale_penalty %v outside [0,1]", m.Family, m.StalePenalty)
	}
	return nil
}

// Table holds the mapping tables for all known families.
type Table struct {
	mappings map[telemetry.Family]*FamilyMapping
}

// NewTable returns the built-in mapping tables.
func NewTable() *Table {
	t := &Table{mappings: make(map[telemetry.Family]*FamilyMapping)}
	for _, m := range builtinMappings() {
		t.mappings[m.Family] = m
	}
	return t
}

// Lookup returns the mapping table for a family.
func (t *Table) Lookup(family telemetry.Family) (*FamilyMapping, error) {
	m, ok := t.mappings[family]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownFamily, family),
			"Table", "Lookup", "select mapping")
	}
	return m, nil
}

// Families returns the families the table knows about.
func (t *Table) Families() []telemetry.Family {
	out := make([]telemetry.Family, 0, len(t.mappings))
	for _, f := range telemetry.Families() {
		if _, ok := t.mappings[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks every mapping in the table.
func (t *Table) Validate() error {
	for _, m := range t.mappings {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}
