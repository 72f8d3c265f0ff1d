package archive

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/SubhajL/munbon2-backend-sub001/component"
	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/metric"
	"github.com/SubhajL/munbon2-backend-sub001/natsclient"
	"github.com/SubhajL/munbon2-backend-sub001/queue"
)

// Config holds archiver settings.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// NakDelay is the redelivery delay requested when the archive write
	// fails.
	NakDelay time.Duration

	// Retention bounds how long archived messages are kept; 0 disables
	// pruning. Pruning runs once per PruneInterval.
	Retention     time.Duration
	PruneInterval time.Duration
}

// DefaultConfig returns production defaults. Retention mirrors the
// dead-letter stream's so the archive and the stream age out together.
func DefaultConfig() Config {
	return Config{
		Path:          "dead_letters.db",
		NakDelay:      10 * time.Second,
		Retention:     queue.DefaultTopologyConfig().DLQMaxAge,
		PruneInterval: time.Hour,
	}
}

// Archiver drains the dead-letter stream into the SQLite archive.
type Archiver struct {
	cfg      Config
	client   *natsclient.Client
	store    *Store
	registry *metric.MetricsRegistry
	log      *slog.Logger

	iter   jetstream.MessagesContext
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     component.State
	startedAt time.Time
	lastErr   string
	errCount  int
}

// New creates an archiver.
func New(cfg Config, client *natsclient.Client, registry *metric.MetricsRegistry, log *slog.Logger) *Archiver {
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.NakDelay <= 0 {
		cfg.NakDelay = def.NakDelay
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = def.PruneInterval
	}
	if log == nil {
		log = slog.Default()
	}

	return &Archiver{
		cfg:      cfg,
		client:   client,
		registry: registry,
		log:      log.With("component", "archiver"),
		state:    component.StateCreated,
	}
}

// Name implements component.Component.
func (a *Archiver) Name() string { return "archiver" }

// Initialize opens the archive database.
func (a *Archiver) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != component.StateCreated {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Archiver", "Initialize", "check state")
	}

	store, err := OpenStore(a.cfg.Path)
	if err != nil {
		return err
	}
	a.store = store
	a.done = make(chan struct{})
	a.state = component.StateInitialized
	return nil
}

// Start binds the durable dead-letter consumer and launches the drain loop.
func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != component.StateInitialized {
		return errors.WrapInvalid(errors.ErrNotStarted, "Archiver", "Start", "check state")
	}

	js, err := a.client.JetStream()
	if err != nil {
		return errors.WrapTransient(err, "Archiver", "Start", "get jetstream context")
	}
	consumer, err := js.Consumer(ctx, queue.DLQStream, queue.ArchiveConsumerName)
	if err != nil {
		return errors.WrapTransient(err, "Archiver", "Start", "bind consumer")
	}
	iter, err := consumer.Messages()
	if err != nil {
		return errors.WrapTransient(err, "Archiver", "Start", "open message iterator")
	}
	a.iter = iter

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	go a.run(runCtx)

	a.startedAt = time.Now()
	a.state = component.StateStarted
	a.log.Info("archiver started", "path", a.cfg.Path)
	return nil
}

func (a *Archiver) run(ctx context.Context) {
	defer close(a.done)

	var prune <-chan time.Time
	if a.cfg.Retention > 0 {
		ticker := time.NewTicker(a.cfg.PruneInterval)
		defer ticker.Stop()
		prune = ticker.C
	}

	msgs := make(chan jetstream.Msg)
	go func() {
		defer close(msgs)
		for {
			msg, err := a.iter.Next()
			if err != nil {
				if ctx.Err() == nil {
					a.log.Error("dead-letter iterator failed", "error", err)
					a.recordError(err)
				}
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			a.archive(ctx, msg)
		case <-prune:
			cutoff := time.Now().Add(-a.cfg.Retention)
			if n, err := a.store.Prune(ctx, cutoff); err != nil {
				a.log.Warn("archive prune failed", "error", err)
			} else if n > 0 {
				a.log.Info("archive pruned", "removed", n, "cutoff", cutoff)
			}
		case <-ctx.Done():
			return
		}
	}
}

// archive writes one dead letter. The write is keyed by envelope id, so a
// redelivered message lands on the existing row and is simply acked.
func (a *Archiver) archive(ctx context.Context, msg jetstream.Msg) {
	dl := deadLetterFrom(msg)

	inserted, err := a.store.Save(ctx, dl)
	if err != nil {
		a.recordError(err)
		a.log.Error("archive write failed", "envelope_id", dl.EnvelopeID, "error", err)
		if nakErr := msg.NakWithDelay(a.cfg.NakDelay); nakErr != nil {
			a.log.Warn("nak failed", "envelope_id", dl.EnvelopeID, "error", nakErr)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		a.log.Warn("ack failed after archive write", "envelope_id", dl.EnvelopeID, "error", err)
	}
	if a.registry != nil {
		a.registry.CoreMetrics().RecordMessageProcessed("archiver", dl.Family, "archived")
	}
	if inserted {
		a.log.Info("dead letter archived",
			"envelope_id", dl.EnvelopeID,
			"family", dl.Family,
			"reason", dl.Reason,
			"deliveries", dl.Deliveries)
	}
}

// deadLetterFrom extracts archive columns from a dead-lettered message. It
// never fails: a corrupt envelope still gets archived under a fresh id with
// whatever the headers carried.
func deadLetterFrom(msg jetstream.Msg) DeadLetter {
	headers := msg.Headers()
	dl := DeadLetter{
		EnvelopeID: headers.Get(queue.HeaderEnvelopeID),
		Family:     strings.TrimPrefix(msg.Subject(), queue.DLQSubjectPrefix),
		Reason:     headers.Get(queue.HeaderReason),
		Body:       msg.Data(),
	}
	if n, err := strconv.Atoi(headers.Get(queue.HeaderDeliveries)); err == nil {
		dl.Deliveries = n
	}
	if env, err := queue.DecodeEnvelope(msg.Data()); err == nil {
		dl.ReceivedAt = env.ReceivedAt
		if dl.EnvelopeID == "" {
			dl.EnvelopeID = env.ID
		}
	}
	if dl.EnvelopeID == "" {
		dl.EnvelopeID = uuid.NewString()
	}
	if dl.Reason == "" {
		dl.Reason = "unknown"
	}
	return dl
}

// Stop drains the loop and closes the database.
func (a *Archiver) Stop(timeout time.Duration) error {
	a.mu.Lock()
	if a.state != component.StateStarted {
		a.mu.Unlock()
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	}
	a.state = component.StateStopped
	a.mu.Unlock()

	a.iter.Stop()
	select {
	case <-a.done:
	case <-time.After(timeout):
	}
	a.cancel()

	if err := a.store.Close(); err != nil {
		return errors.WrapTransient(err, "Archiver", "Stop", "close archive database")
	}
	return nil
}

// Health implements component.Component.
func (a *Archiver) Health() component.HealthStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := component.HealthStatus{
		Healthy:    a.state == component.StateStarted,
		LastError:  a.lastErr,
		ErrorCount: a.errCount,
		LastCheck:  time.Now(),
	}
	if a.state == component.StateStarted {
		h.Uptime = time.Since(a.startedAt)
	}
	return h
}

// Store exposes the archive for operator queries.
func (a *Archiver) Store() *Store { return a.store }

func (a *Archiver) recordError(err error) {
	a.mu.Lock()
	a.lastErr = err.Error()
	a.errCount++
	a.mu.Unlock()
}
