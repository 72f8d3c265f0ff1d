// Package dualwrite replicates committed readings to secondary stores on a
// best-effort basis. The coordinator owns a bounded drop-oldest ring buffer
// between the processor's ack path and the secondary writers: Submit never
// blocks, write failures are logged and counted, and nothing on this path can
// fail a message that the primary store already accepted.
package dualwrite

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SubhajL/munbon2-backend-sub001/component"
	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/metric"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/buffer"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// SecondaryStore is one replication target.
type SecondaryStore interface {
	Name() string
	WriteReading(ctx context.Context, reading *telemetry.CanonicalReading) error
	Close() error
}

// Config holds coordinator settings.
type Config struct {
	// BufferSize bounds the replication backlog; overflow drops the oldest.
	BufferSize int
	// WriteTimeout bounds each secondary write.
	WriteTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:   1024,
		WriteTimeout: 10 * time.Second,
	}
}

// Coordinator drains the replication buffer into the secondary stores.
type Coordinator struct {
	cfg     Config
	stores  []SecondaryStore
	metrics *metric.DomainMetrics
	log     *slog.Logger

	ring   *buffer.Ring[telemetry.CanonicalReading]
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     component.State
	startedAt time.Time
	lastErr   string
	errCount  int
}

// New creates a coordinator over the given secondary stores. An empty store
// list is valid: the coordinator then only counts what it would have written.
func New(cfg Config, stores []SecondaryStore, metrics *metric.DomainMetrics, log *slog.Logger) *Coordinator {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		cfg:     cfg,
		stores:  stores,
		metrics: metrics,
		log:     log.With("component", "dualwrite"),
		state:   component.StateCreated,
	}
}

// Name implements component.Component.
func (c *Coordinator) Name() string { return "dualwrite" }

// Initialize creates the replication buffer.
func (c *Coordinator) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != component.StateCreated {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Coordinator", "Initialize", "check state")
	}

	c.ring = buffer.NewRing(c.cfg.BufferSize, buffer.WithDropCallback(func(telemetry.CanonicalReading) {
		if c.metrics != nil {
			c.metrics.SecondaryDrops.Inc()
		}
	}))
	c.done = make(chan struct{})
	c.state = component.StateInitialized
	return nil
}

// Start launches the drain goroutine.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != component.StateInitialized {
		return errors.WrapInvalid(errors.ErrNotStarted, "Coordinator", "Start", "check state")
	}

	drainCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.startedAt = time.Now()
	c.state = component.StateStarted

	go c.drain(drainCtx)

	c.log.Info("dual-write coordinator started",
		"stores", len(c.stores),
		"buffer_size", c.cfg.BufferSize)
	return nil
}

// Stop closes the buffer, lets the drain finish the backlog within the
// timeout, then cancels it and closes the stores.
func (c *Coordinator) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if c.state != component.StateStarted {
		c.mu.Unlock()
		return nil
	}
	c.state = component.StateStopped
	c.mu.Unlock()

	c.ring.Close()

	select {
	case <-c.done:
	case <-time.After(timeout):
		c.log.Warn("drain did not finish backlog before timeout",
			"remaining", c.ring.Len())
	}
	c.cancel()

	var errs []error
	for _, store := range c.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errs[0], "Coordinator", "Stop", "close secondary store")
	}
	return nil
}

// Submit queues one committed reading for replication. It never blocks and
// never fails; under backpressure the oldest queued reading is dropped.
func (c *Coordinator) Submit(reading telemetry.CanonicalReading) {
	if c.ring == nil {
		return
	}
	c.ring.Put(reading)
}

// BufferStats exposes the replication buffer counters.
func (c *Coordinator) BufferStats() buffer.Stats {
	if c.ring == nil {
		return buffer.Stats{}
	}
	return c.ring.Stats()
}

// Health implements component.Component. Secondary failures degrade nothing:
// the coordinator is healthy as long as its drain loop is running.
func (c *Coordinator) Health() component.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := component.HealthStatus{
		Healthy:    c.state == component.StateStarted,
		LastError:  c.lastErr,
		ErrorCount: c.errCount,
		LastCheck:  time.Now(),
	}
	if c.state == component.StateStarted {
		h.Uptime = time.Since(c.startedAt)
	}
	return h
}

func (c *Coordinator) drain(ctx context.Context) {
	defer close(c.done)
	for {
		reading, ok := c.ring.GetWait(ctx)
		if !ok {
			return
		}
		c.replicate(ctx, &reading)
	}
}

func (c *Coordinator) replicate(ctx context.Context, reading *telemetry.CanonicalReading) {
	for _, store := range c.stores {
		writeCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
		err := store.WriteReading(writeCtx, reading)
		cancel()

		status := "ok"
		if err != nil {
			status = "error"
			c.recordError(err)
			c.log.Warn("secondary write failed",
				"store", store.Name(),
				"sensor_id", reading.SensorID,
				"error", err)
		}
		if c.metrics != nil {
			c.metrics.SecondaryWrites.WithLabelValues(store.Name(), status).Inc()
		}
	}
}

func (c *Coordinator) recordError(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.errCount++
	c.mu.Unlock()
}
