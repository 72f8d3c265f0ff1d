package ingress

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/SubhajL/munbon2-backend-sub001/pkg/retry"
	"github.com/SubhajL/munbon2-backend-sub001/queue"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

type ingestResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id,omitempty"`
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
}

// handleTelemetry accepts one raw gateway report. Checks here are
// deliberately shallow: route family must be known, the body must be a JSON
// object, and it must carry a gateway id under one of the family's aliases.
// Everything else is deferred to the processor so a malformed sample never
// costs the device a retry.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)

	family := telemetry.Family(r.PathValue("family"))
	if core := s.coreMetrics(); core != nil {
		core.RecordMessageReceived("ingress", family.String())
	}

	mapping, err := s.table.Lookup(family)
	if err != nil {
		s.reject(w, r, family, requestID, http.StatusNotFound, "unknown_family", "unknown device family")
		return
	}

	if !s.allow(r) {
		if dm := s.domainMetrics(); dm != nil {
			dm.RateLimited.Inc()
		}
		w.Header().Set("Retry-After", "1")
		s.respond(w, http.StatusTooManyRequests, ingestResponse{
			Status: "rate_limited", RequestID: requestID, Error: "too many requests",
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		s.reject(w, r, family, requestID, http.StatusRequestEntityTooLarge, "oversize", "request body too large")
		return
	}

	// Devices in the field send empty keepalives and truncated JSON; both are
	// permanently unprocessable, so answer 200 and never trigger a retry.
	var fields map[string]any
	if len(body) == 0 || json.Unmarshal(body, &fields) != nil {
		if dm := s.domainMetrics(); dm != nil {
			dm.InvalidPayloads.WithLabelValues(family.String()).Inc()
		}
		s.log.Debug("unparsable payload discarded",
			"request_id", requestID,
			"family", family.String(),
			"bytes", len(body),
			"source", r.RemoteAddr)
		s.respond(w, http.StatusOK, ingestResponse{Status: "discarded", RequestID: requestID})
		return
	}

	if _, ok := mapping.ResolveGatewayID(fields); !ok {
		s.reject(w, r, family, requestID, http.StatusBadRequest, "no_gateway_id", "payload carries no gateway id")
		return
	}

	env := queue.NewEnvelope(family, body, r.RemoteAddr, r.Header.Get("Content-Type"))

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.EnqueueTimeout)
	defer cancel()
	err = retry.Do(ctx, retry.Brief(), func() error {
		return s.publisher.Publish(ctx, env)
	})
	if err != nil {
		if dm := s.domainMetrics(); dm != nil {
			dm.EnqueueFailures.WithLabelValues(family.String()).Inc()
		}
		s.recordError(err)
		s.log.Error("enqueue failed",
			"request_id", requestID,
			"envelope_id", env.ID,
			"family", family.String(),
			"error", err)

		status := http.StatusServiceUnavailable
		if ctx.Err() != nil {
			status = http.StatusGatewayTimeout
		}
		s.respond(w, status, ingestResponse{
			Status: "retry", RequestID: requestID, Error: "telemetry queue unavailable",
		})
		return
	}

	if core := s.coreMetrics(); core != nil {
		core.RecordMessageProcessed("ingress", family.String(), "accepted")
		core.RecordProcessingDuration("ingress", "ingest", time.Since(start))
	}
	s.log.Debug("report enqueued",
		"request_id", requestID,
		"envelope_id", env.ID,
		"family", family.String(),
		"bytes", len(body))
	s.respond(w, http.StatusOK, ingestResponse{Status: "accepted", ID: env.ID, RequestID: requestID})
}

// reject answers a client error. The body never echoes payload content back;
// sensor payloads occasionally contain credentials pasted in by installers.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, family telemetry.Family,
	requestID string, status int, reason, message string) {

	if dm := s.domainMetrics(); dm != nil {
		dm.RejectedPayloads.WithLabelValues(family.String(), reason).Inc()
	}
	s.log.Info("payload rejected",
		"request_id", requestID,
		"family", family.String(),
		"reason", reason,
		"source", r.RemoteAddr)
	s.respond(w, status, ingestResponse{Status: "rejected", RequestID: requestID, Error: message})
}

func (s *Server) respond(w http.ResponseWriter, status int, body ingestResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("response write failed", "error", err)
	}
}

// allow applies the per-source token bucket. Sources are keyed by remote IP
// so one chatty gateway cannot starve the rest of the fleet.
func (s *Server) allow(r *http.Request) bool {
	if s.cfg.RateLimit <= 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	limiter := s.limiterFor(host)
	return limiter.Allow()
}
