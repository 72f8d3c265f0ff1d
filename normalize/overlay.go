package normalize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// overlayFile is the on-disk shape of a mapping overlay: family name to
// partial mapping. Only the lists a deployment sets are replaced; everything
// else keeps the built-in value.
type overlayFile struct {
	Families map[string]*FamilyMapping `yaml:"families"`
}

// LoadOverlayFile reads a YAML overlay and applies it to the table.
func (t *Table) LoadOverlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapFatal(err, "Table", "LoadOverlayFile", "read overlay")
	}
	return t.ApplyOverlay(data)
}

// ApplyOverlay merges a YAML overlay document into the table and validates
// the result. Unknown family names are a configuration error, not a way to
// define new families: the ingress routes and metrics only know the built-in
// three.
func (t *Table) ApplyOverlay(data []byte) error {
	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return errors.WrapFatal(err, "Table", "ApplyOverlay", "decode overlay")
	}

	for name, patch := range overlay.Families {
		family := telemetry.Family(name)
		base, ok := t.mappings[family]
		if !ok {
			return errors.WrapFatal(
				fmt.Errorf("%w: overlay family %q", errors.ErrInvalidConfig, name),
				"Table", "ApplyOverlay", "merge overlay")
		}
		mergeMapping(base, patch)
	}

	if err := t.Validate(); err != nil {
		return errors.WrapFatal(err, "Table", "ApplyOverlay", "validate merged tables")
	}
	return nil
}

// mergeMapping copies the set parts of patch over base. Empty lists in the
// patch mean "keep the built-in"; there is no way to blank a list, only to
// replace it.
func mergeMapping(base, patch *FamilyMapping) {
	if len(patch.GatewayIDAliases) > 0 {
		base.GatewayIDAliases = patch.GatewayIDAliases
	}
	if len(patch.SampleListAliases) > 0 {
		base.SampleListAliases = patch.SampleListAliases
	}
	if len(patch.SensorIDAliases) > 0 {
		base.SensorIDAliases = patch.SensorIDAliases
	}
	if patch.ImpliedProbeID != "" {
		base.ImpliedProbeID = patch.ImpliedProbeID
	}
	if len(patch.TimeAliases) > 0 {
		base.TimeAliases = patch.TimeAliases
	}
	if len(patch.DateAliases) > 0 {
		base.DateAliases = patch.DateAliases
	}
	if len(patch.ClockAliases) > 0 {
		base.ClockAliases = patch.ClockAliases
	}
	if len(patch.LatAliases) > 0 {
		base.LatAliases = patch.LatAliases
	}
	if len(patch.LngAliases) > 0 {
		base.LngAliases = patch.LngAliases
	}
	if len(patch.BatteryAliases) > 0 {
		base.BatteryAliases = patch.BatteryAliases
	}
	if len(patch.Fields) > 0 {
		base.Fields = patch.Fields
	}
	if patch.RequiredPenalty > 0 {
		base.RequiredPenalty = patch.RequiredPenalty
	}
	if patch.StalePenalty > 0 {
		base.StalePenalty = patch.StalePenalty
	}
}
