package metric

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, registry *MetricsRegistry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	return byName
}

func TestDomainMetricsRegisteredUnderNamespace(t *testing.T) {
	registry := NewMetricsRegistry()
	dm := registry.Domain
	require.NotNil(t, dm)

	dm.InvalidPayloads.WithLabelValues("moisture").Inc()
	dm.ReadingsPersisted.WithLabelValues("moisture").Add(3)
	dm.DeadLetters.WithLabelValues("weather").Inc()
	dm.SecondaryWrites.WithLabelValues("influxdb", "success").Inc()
	dm.QualityScore.WithLabelValues("moisture").Observe(0.75)

	families := gather(t, registry)

	invalid := families["munbon_ingress_invalid_payloads_total"]
	require.NotNil(t, invalid)
	assert.Equal(t, dto.MetricType_COUNTER, invalid.GetType())
	require.Len(t, invalid.GetMetric(), 1)
	assert.Equal(t, 1.0, invalid.GetMetric()[0].GetCounter().GetValue())

	persisted := families["munbon_processor_readings_persisted_total"]
	require.NotNil(t, persisted)
	assert.Equal(t, 3.0, persisted.GetMetric()[0].GetCounter().GetValue())

	writes := families["munbon_dualwrite_writes_total"]
	require.NotNil(t, writes)
	labels := map[string]string{}
	for _, pair := range writes.GetMetric()[0].GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	assert.Equal(t, map[string]string{"store": "influxdb", "status": "success"}, labels)

	quality := families["munbon_processor_quality_score"]
	require.NotNil(t, quality)
	assert.Equal(t, dto.MetricType_HISTOGRAM, quality.GetType())
	assert.EqualValues(t, 1, quality.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestDomainMetricsFamilyLabelsAreIndependent(t *testing.T) {
	registry := NewMetricsRegistry()
	dm := registry.Domain

	dm.ReportsDiscarded.WithLabelValues("moisture", "empty").Inc()
	dm.ReportsDiscarded.WithLabelValues("moisture", "unattributable").Inc()
	dm.ReportsDiscarded.WithLabelValues("weather", "empty").Inc()

	families := gather(t, registry)
	discarded := families["munbon_processor_reports_discarded_total"]
	require.NotNil(t, discarded)
	assert.Len(t, discarded.GetMetric(), 3, "one series per (family, reason) pair")
}
