// Package processor consumes telemetry envelopes from the work queue and
// runs them through the parse → normalize → resolve-identity → score →
// persist pipeline. A message is acked only after the persistence
// transaction commits; transient failures nak for redelivery, and the
// delivery that exhausts the redelivery bound is republished to the
// dead-letter stream and terminated.
package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/SubhajL/munbon2-backend-sub001/component"
	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/metric"
	"github.com/SubhajL/munbon2-backend-sub001/natsclient"
	"github.com/SubhajL/munbon2-backend-sub001/normalize"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/worker"
	"github.com/SubhajL/munbon2-backend-sub001/queue"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// ReadingStore persists canonical readings transactionally with their
// device rows.
type ReadingStore interface {
	SaveReading(ctx context.Context, device *telemetry.DeviceRecord, reading *telemetry.CanonicalReading) (bool, error)
}

// DeviceResolver resolves compound sensor ids to device records, creating
// them on first sight.
type DeviceResolver interface {
	GetOrCreate(ctx context.Context, sensorID string, family telemetry.Family, metadata map[string]any) (*telemetry.DeviceRecord, bool, error)
}

// Replicator accepts committed readings for best-effort secondary writes.
type Replicator interface {
	Submit(reading telemetry.CanonicalReading)
}

// DLQPublisher republishes exhausted messages to the dead-letter stream.
type DLQPublisher interface {
	PublishMsgToStream(ctx context.Context, msg *nats.Msg) error
}

// Config holds processor settings.
type Config struct {
	// Workers is the number of pool goroutines pulling envelopes.
	Workers int
	// QueueSize bounds the pool's work channel.
	QueueSize int
	// MaxDeliver mirrors the consumer's redelivery bound; the delivery that
	// reaches it is dead-lettered instead of nak'd. Must match the consumer
	// configuration.
	MaxDeliver int
	// NakDelay is the redelivery delay requested on transient failures.
	NakDelay time.Duration
}

// DefaultConfig returns production defaults matching the queue topology.
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		QueueSize:  64,
		MaxDeliver: queue.DefaultTopologyConfig().MaxDeliver,
		NakDelay:   5 * time.Second,
	}
}

// Processor is the pipeline's consumer component.
type Processor struct {
	cfg        Config
	client     *natsclient.Client
	dlq        DLQPublisher
	normalizer *normalize.Normalizer
	devices    DeviceResolver
	store      ReadingStore
	secondary  Replicator
	registry   *metric.MetricsRegistry
	log        *slog.Logger

	pool   *worker.Pool[jetstream.Msg]
	iter   jetstream.MessagesContext
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     component.State
	startedAt time.Time
	lastErr   string
	errCount  int
}

// New creates a processor. secondary may be nil when dual-write is disabled.
func New(cfg Config, client *natsclient.Client, normalizer *normalize.Normalizer,
	devices DeviceResolver, store ReadingStore, secondary Replicator,
	registry *metric.MetricsRegistry, log *slog.Logger) *Processor {

	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = def.MaxDeliver
	}
	if cfg.NakDelay <= 0 {
		cfg.NakDelay = def.NakDelay
	}
	if log == nil {
		log = slog.Default()
	}

	return &Processor{
		cfg:        cfg,
		client:     client,
		dlq:        client,
		normalizer: normalizer,
		devices:    devices,
		store:      store,
		secondary:  secondary,
		registry:   registry,
		log:        log.With("component", "processor"),
		state:      component.StateCreated,
	}
}

// Name implements component.Component.
func (p *Processor) Name() string { return "processor" }

// Initialize creates the worker pool.
func (p *Processor) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != component.StateCreated {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Processor", "Initialize", "check state")
	}

	opts := []worker.Option[jetstream.Msg]{}
	if p.registry != nil {
		opts = append(opts, worker.WithMetrics[jetstream.Msg](p.registry, "processor"))
	}
	p.pool = worker.NewPool(p.cfg.Workers, p.cfg.QueueSize, p.handle, opts...)
	p.done = make(chan struct{})
	p.state = component.StateInitialized
	return nil
}

// Start binds the durable consumer and launches the dispatch loop.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != component.StateInitialized {
		return errors.WrapInvalid(errors.ErrNotStarted, "Processor", "Start", "check state")
	}

	js, err := p.client.JetStream()
	if err != nil {
		return errors.WrapTransient(err, "Processor", "Start", "get jetstream context")
	}
	consumer, err := js.Consumer(ctx, queue.StreamName, queue.ConsumerName)
	if err != nil {
		return errors.WrapTransient(err, "Processor", "Start", "bind consumer")
	}
	iter, err := consumer.Messages(jetstream.PullMaxMessages(p.cfg.QueueSize))
	if err != nil {
		return errors.WrapTransient(err, "Processor", "Start", "open message iterator")
	}
	p.iter = iter

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	if err := p.pool.Start(runCtx); err != nil {
		cancel()
		return errors.WrapFatal(err, "Processor", "Start", "start worker pool")
	}

	go p.dispatch(runCtx)

	p.startedAt = time.Now()
	p.state = component.StateStarted
	p.log.Info("processor started",
		"workers", p.cfg.Workers,
		"max_deliver", p.cfg.MaxDeliver)
	return nil
}

// dispatch feeds consumer messages into the pool. SubmitWait gives the
// consumer backpressure: when all workers are busy the iterator stalls and
// the backlog stays in JetStream.
func (p *Processor) dispatch(ctx context.Context) {
	defer close(p.done)
	for {
		msg, err := p.iter.Next()
		if err != nil {
			// Iterator closed on shutdown; anything else is logged and the
			// dispatch loop exits, leaving redelivery to the stream.
			if ctx.Err() == nil {
				p.log.Error("message iterator failed", "error", err)
				p.recordError(err)
			}
			return
		}
		if err := p.pool.SubmitWait(ctx, msg); err != nil {
			// Unsubmitted message: no ack, no nak; it redelivers after the
			// visibility timeout.
			return
		}
	}
}

// Stop drains the dispatch loop and the pool.
func (p *Processor) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.state != component.StateStarted {
		p.mu.Unlock()
		return nil
	}
	p.state = component.StateStopped
	p.mu.Unlock()

	p.iter.Stop()
	select {
	case <-p.done:
	case <-time.After(timeout):
	}

	err := p.pool.Stop(timeout)
	p.cancel()
	if err != nil {
		return errors.Wrap(err, "Processor", "Stop", "stop worker pool")
	}
	return nil
}

// Health implements component.Component.
func (p *Processor) Health() component.HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := component.HealthStatus{
		Healthy:    p.state == component.StateStarted,
		LastError:  p.lastErr,
		ErrorCount: p.errCount,
		LastCheck:  time.Now(),
	}
	if p.state == component.StateStarted {
		h.Uptime = time.Since(p.startedAt)
	}
	return h
}

// PoolStats exposes worker pool counters for diagnostics.
func (p *Processor) PoolStats() worker.Stats {
	if p.pool == nil {
		return worker.Stats{}
	}
	return p.pool.Stats()
}

func (p *Processor) recordError(err error) {
	p.mu.Lock()
	p.lastErr = err.Error()
	p.errCount++
	p.mu.Unlock()
}

func (p *Processor) domainMetrics() *metric.DomainMetrics {
	if p.registry == nil {
		return nil
	}
	return p.registry.Domain
}

func (p *Processor) coreMetrics() *metric.Metrics {
	if p.registry == nil {
		return nil
	}
	return p.registry.CoreMetrics()
}
