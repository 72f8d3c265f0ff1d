package ops

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/SubhajL/munbon2-backend-sub001/component"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// Device window clamps. Requests outside the range are clamped, not
// rejected; operators probing with odd values still get an answer.
const (
	minDeviceWindow     = time.Minute
	maxDeviceWindow     = 30 * 24 * time.Hour
	defaultDeviceWindow = 24 * time.Hour
)

type healthResponse struct {
	Healthy    bool                               `json:"healthy"`
	Components map[string]component.HealthStatus `json:"components"`
}

type devicesResponse struct {
	Window  string                     `json:"window"`
	Count   int                        `json:"count"`
	Devices []telemetry.DeviceRecord   `json:"devices"`
}

// handleHealthz aggregates component health. Any unhealthy component flips
// the status code so orchestrators restart the process.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Healthy: true, Components: map[string]component.HealthStatus{}}
	if s.health != nil {
		resp.Components = s.health.Health()
		for _, h := range resp.Components {
			if !h.Healthy {
				resp.Healthy = false
			}
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// handleReadyz answers once the process is serving; per-component readiness
// is the job of /healthz.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleDevices lists devices seen inside the requested window.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	window := defaultDeviceWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "window must be a duration such as 15m or 24h",
			})
			return
		}
		window = clampWindow(parsed)
	}

	if s.devices == nil {
		s.writeJSON(w, http.StatusOK, devicesResponse{
			Window: window.String(), Devices: []telemetry.DeviceRecord{},
		})
		return
	}

	devices, err := s.devices.ListActive(r.Context(), window)
	if err != nil {
		s.recordError(err)
		s.log.Error("device listing failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "device listing unavailable",
		})
		return
	}
	if devices == nil {
		devices = []telemetry.DeviceRecord{}
	}

	s.writeJSON(w, http.StatusOK, devicesResponse{
		Window:  window.String(),
		Count:   len(devices),
		Devices: devices,
	})
}

func clampWindow(window time.Duration) time.Duration {
	if window < minDeviceWindow {
		return minDeviceWindow
	}
	if window > maxDeviceWindow {
		return maxDeviceWindow
	}
	return window
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("response write failed", "error", err)
	}
}
