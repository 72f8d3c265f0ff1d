// Package ingress is the HTTP adapter devices talk to. It accepts raw
// vendor payloads on per-family routes, performs only permissive structural
// checks, wraps accepted bodies in queue envelopes and publishes them. It
// never touches the data store: anything beyond "is there a device id in
// here" is the processor's problem.
//
// The response-code policy is shaped by field gateways with tiny retry
// buffers: garbage gets 200 so devices do not retry-storm over payloads that
// can never improve, while transient enqueue failures get 5xx so the device
// does retry.
package ingress

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/SubhajL/munbon2-backend-sub001/component"
	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/metric"
	"github.com/SubhajL/munbon2-backend-sub001/normalize"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/cache"
	"github.com/SubhajL/munbon2-backend-sub001/queue"
)

// Config holds ingress settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// MaxBodyBytes bounds request bodies. Default 1 MiB.
	MaxBodyBytes int64

	// EnqueueTimeout bounds the publish (including its short retry burst)
	// before the device gets a 504.
	EnqueueTimeout time.Duration

	// RateLimit is the per-source sustained request rate in requests per
	// second; 0 disables rate limiting. RateBurst is the token bucket size.
	RateLimit float64
	RateBurst int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		MaxBodyBytes:   1 << 20,
		EnqueueTimeout: 5 * time.Second,
		RateLimit:      0,
		RateBurst:      20,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
	}
}

// Server is the ingress component.
type Server struct {
	cfg       Config
	publisher queue.Publisher
	table     *normalize.Table
	registry  *metric.MetricsRegistry
	log       *slog.Logger

	limiters *cache.LRU[*rate.Limiter]
	httpSrv  *http.Server

	mu        sync.Mutex
	state     component.State
	startedAt time.Time
	lastErr   string
	errCount  int
}

// New creates the ingress server.
func New(cfg Config, publisher queue.Publisher, table *normalize.Table,
	registry *metric.MetricsRegistry, log *slog.Logger) *Server {

	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = def.EnqueueTimeout
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		cfg:       cfg,
		publisher: publisher,
		table:     table,
		registry:  registry,
		log:       log.With("component", "ingress"),
		state:     component.StateCreated,
	}
}

// Name implements component.Component.
func (s *Server) Name() string { return "ingress" }

// Initialize builds the router and the per-source limiter cache.
func (s *Server) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != component.StateCreated {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Initialize", "check state")
	}

	s.limiters = cache.NewLRU[*rate.Limiter](4096)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/telemetry/{family}", s.handleTelemetry)

	s.httpSrv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.state = component.StateInitialized
	return nil
}

// Start begins serving. The listener failing later flips health, not Start.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != component.StateInitialized {
		return errors.WrapInvalid(errors.ErrNotStarted, "Server", "Start", "check state")
	}

	s.httpSrv.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("ingress listener failed", "addr", s.cfg.Addr, "error", err)
			s.recordError(err)
			s.mu.Lock()
			s.state = component.StateFailed
			s.mu.Unlock()
		}
	}()

	s.startedAt = time.Now()
	s.state = component.StateStarted
	s.log.Info("ingress listening",
		"addr", s.cfg.Addr,
		"max_body_bytes", s.cfg.MaxBodyBytes,
		"rate_limit", s.cfg.RateLimit)
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

func (s *Server) domainMetrics() *metric.DomainMetrics {
	if s.registry == nil {
		return nil
	}
	return s.registry.Domain
}

func (s *Server) coreMetrics() *metric.Metrics {
	if s.registry == nil {
		return nil
	}
	return s.registry.CoreMetrics()
}
