package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SubhajL/munbon2-backend-sub001/component"
	"github.com/SubhajL/munbon2-backend-sub001/metric"
	"github.com/SubhajL/munbon2-backend-sub001/registry"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
	"github.com/SubhajL/munbon2-backend-sub001/testutil"
)

type staticHealth map[string]component.HealthStatus

func (h staticHealth) Health() map[string]component.HealthStatus { return h }

func newTestOps(t *testing.T, health HealthReporter, devices *registry.Registry,
	metrics *metric.MetricsRegistry) *Server {
	t.Helper()
	srv := New(Config{}, health, devices, metrics, nil)
	require.NoError(t, srv.Initialize())
	return srv
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAggregatesComponents(t *testing.T) {
	health := staticHealth{
		"ingress":   {Healthy: true},
		"processor": {Healthy: true},
	}
	srv := newTestOps(t, health, nil, nil)

	rec := get(srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Healthy)
	assert.Len(t, resp.Components, 2)
}

func TestHealthzReportsUnhealthyComponent(t *testing.T) {
	health := staticHealth{
		"ingress":   {Healthy: true},
		"processor": {Healthy: false, LastError: "consumer lost", ErrorCount: 3},
	}
	srv := newTestOps(t, health, nil, nil)

	rec := get(srv, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Healthy)
	assert.Equal(t, "consumer lost", resp.Components["processor"].LastError)
}

func TestReadyz(t *testing.T) {
	srv := newTestOps(t, nil, nil, nil)
	rec := get(srv, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDevicesEndpoint(t *testing.T) {
	store := testutil.NewMemoryStore()
	devices := registry.New(store, 16, nil)

	_, _, err := devices.GetOrCreate(context.Background(), "0003-13", telemetry.FamilyMoisture, nil)
	require.NoError(t, err)

	srv := newTestOps(t, nil, devices, nil)
	rec := get(srv, "/api/v1/devices?window=1h")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp devicesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "0003-13", resp.Devices[0].SensorID)
	assert.Equal(t, "1h0m0s", resp.Window)
}

func TestDevicesRejectsMalformedWindow(t *testing.T) {
	srv := newTestOps(t, nil, nil, nil)
	rec := get(srv, "/api/v1/devices?window=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClampWindow(t *testing.T) {
	assert.Equal(t, minDeviceWindow, clampWindow(time.Second))
	assert.Equal(t, maxDeviceWindow, clampWindow(365*24*time.Hour))
	assert.Equal(t, 6*time.Hour, clampWindow(6*time.Hour))
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	metrics := metric.NewMetricsRegistry()
	metrics.CoreMetrics().RecordMessageReceived("ingress", "moisture")

	srv := newTestOps(t, nil, nil, metrics)
	rec := get(srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "munbon_")
}
