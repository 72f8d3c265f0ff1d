package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

func TestApplyOverlayMergesAliases(t *testing.T) {
	table := NewTable()
	overlay := []byte(`
families:
  moisture:
    gateway_id_aliases: ["nodeRef"]
    required_penalty: 0.5
`)
	require.NoError(t, table.ApplyOverlay(overlay))

	m, err := table.Lookup(telemetry.FamilyMoisture)
	require.NoError(t, err)
	assert.Equal(t, []string{"nodeRef"}, m.GatewayIDAliases)
	assert.Equal(t, 0.5, m.RequiredPenalty)
	// Untouched lists keep their built-ins.
	assert.Contains(t, m.SampleListAliases, "sensor")
	assert.Equal(t, 0.25, m.StalePenalty)

	// The merged table drives normalization.
	n := NewNormalizer(table, time.UTC)
	res, err := n.Normalize(telemetry.FamilyMoisture,
		[]byte(`{"nodeRef":"A1","sensor":[{"sensorId":"2","humidHi":35}]}`), time.Now())
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)
	assert.Equal(t, "A1-2", res.Samples[0].Reading.SensorID)
	assert.InDelta(t, 0.5, res.Samples[0].Reading.QualityScore, 1e-9)
}

func TestApplyOverlayRejectsUnknownFamily(t *testing.T) {
	table := NewTable()
	err := table.ApplyOverlay([]byte("families:\n  seismic:\n    gateway_id_aliases: [\"id\"]\n"))
	assert.Error(t, err)
}

func TestApplyOverlayRejectsBadYAML(t *testing.T) {
	table := NewTable()
	assert.Error(t, table.ApplyOverlay([]byte("families: [not a map")))
}

func TestBuiltinTablesValidate(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Validate())
	assert.ElementsMatch(t, telemetry.Families(), table.Families())
}
