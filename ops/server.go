// Package ops serves the operational surface: health and readiness probes,
// Prometheus metrics and the device inventory endpoint. It listens on its own
// port so ingestion traffic and operator traffic never share a listener.
package ops

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SubhajL/munbon2-backend-sub001/component"
	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/metric"
	"github.com/SubhajL/munbon2-backend-sub001/registry"
)

// HealthReporter reports per-component health. *component.Manager satisfies
// it.
type HealthReporter interface {
	Health() map[string]component.HealthStatus
}

// Config holds ops server settings.
type Config struct {
	// Addr is the listen address, e.g. ":9090".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":9090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the ops component.
type Server struct {
	cfg      Config
	health   HealthReporter
	devices  *registry.Registry
	registry *metric.MetricsRegistry
	log      *slog.Logger

	httpSrv *http.Server

	mu        sync.Mutex
	state     component.State
	startedAt time.Time
	lastErr   string
	errCount  int
}

// New creates the ops server. health and devices may be nil; the matching
// endpoints then report empty results.
func New(cfg Config, health HealthReporter, devices *registry.Registry,
	metrics *metric.MetricsRegistry, log *slog.Logger) *Server {

	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		cfg:      cfg,
		health:   health,
		devices:  devices,
		registry: metrics,
		log:      log.With("component", "ops"),
		state:    component.StateCreated,
	}
}

// Name implements component.Component.
func (s *Server) Name() string { return "ops" }

// Initialize builds the router.
func (s *Server) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != component.StateCreated {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Initialize", "check state")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /api/v1/devices", s.handleDevices)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(
			s.registry.PrometheusRegistry(),
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		))
	}

	s.httpSrv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.state = component.StateInitialized
	return nil
}

// Start begins serving.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != component.StateInitialized {
		return errors.WrapInvalid(errors.ErrNotStarted, "Server", "Start", "check state")
	}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("ops listener failed", "addr", s.cfg.Addr, "error", err)
			s.recordError(err)
			s.mu.Lock()
			s.state = component.StateFailed
			s.mu.Unlock()
		}
	}()

	s.startedAt = time.Now()
	s.state = component.StateStarted
	s.log.Info("ops server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.state != component.StateStarted && s.state != component.StateFailed {
		s.mu.Unlock()
		return nil
	}
	s.state = component.StateStopped
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown http server")
	}
	return nil
}

// Health implements component.Component.
func (s *Server) Health() component.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := component.HealthStatus{
		Healthy:    s.state == component.StateStarted,
		LastError:  s.lastErr,
		ErrorCount: s.errCount,
		LastCheck:  time.Now(),
	}
	if s.state == component.StateStarted {
		h.Uptime = time.Since(s.startedAt)
	}
	return h
}

func (s *Server) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.errCount++
	s.mu.Unlock()
}
