// Package worker provides a generic worker pool for concurrent message
// processing. The pool owns a bounded work channel and a fixed set of worker
// goroutines supervised by an errgroup; SubmitWait gives the producer
// backpressure instead of drops, which is what an at-least-once consumer
// wants — the queue holds the backlog, not the pool.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/SubhajL/munbon2-backend-sub001/metric"
)

// Pool processes work items of type T on a fixed number of goroutines.
type Pool[T any] struct {
	workers   int
	queueSize int
	process   func(context.Context, T) error

	workChan chan T
	shutdown chan struct{}
	group    *errgroup.Group

	started atomic.Bool
	stopped atomic.Bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	metrics *poolMetrics
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	processing *prometheus.HistogramVec
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithMetrics registers queue-depth and processing-duration metrics under
// the given prefix.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Current worker pool queue depth",
		})
		processing := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_processing_duration_seconds",
			Help:    "Time spent processing work items",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"status"})

		_ = registry.RegisterGauge("worker_pool", prefix+"_queue_depth", queueDepth)
		_ = registry.RegisterHistogramVec("worker_pool", prefix+"_processing_duration_seconds", processing)
		p.metrics = &poolMetrics{queueDepth: queueDepth, processing: processing}
	}
}

// NewPool creates a pool of workers goroutines over a queue of queueSize.
func NewPool[T any](workers, queueSize int, process func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if process == nil {
		panic(ErrNilProcessor)
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		process:   process,
		workChan:  make(chan T, queueSize),
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. The context bounds their lifetime.
func (p *Pool[T]) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPoolAlreadyStarted
	}

	p.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			p.run(ctx)
			return nil
		})
	}
	return nil
}

// SubmitWait queues work, blocking until there is room or ctx is done. This
// is the backpressure path: when every worker is busy and the channel is
// full, the producer waits instead of dropping.
func (p *Pool[T]) SubmitWait(ctx context.Context, work T) error {
	if !p.started.Load() {
		return ErrPoolNotStarted
	}
	if p.stopped.Load() {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.noteSubmit()
		return nil
	case <-p.shutdown:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues work without blocking. Returns ErrQueueFull when the channel
// has no room.
func (p *Pool[T]) Submit(work T) error {
	if !p.started.Load() {
		return ErrPoolNotStarted
	}
	if p.stopped.Load() {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.noteSubmit()
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool[T]) noteSubmit() {
	p.submitted.Add(1)
	if p.metrics != nil {
		p.metrics.queueDepth.Set(float64(len(p.workChan)))
	}
}

// Stop signals shutdown, drains queued work and waits for in-flight work to
// finish, up to timeout. The work channel itself is never closed, so a
// producer parked in SubmitWait unblocks with ErrPoolStopped instead of
// panicking on a closed channel.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	if !p.started.Load() || !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(p.shutdown)

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
	}
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
}

func (p *Pool[T]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case work := <-p.workChan:
			p.handleWork(ctx, work)
		case <-p.shutdown:
			// Drain what was queued before shutdown, then exit.
			for {
				select {
				case work := <-p.workChan:
					p.handleWork(ctx, work)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool[T]) handleWork(ctx context.Context, work T) {
	start := time.Now()
	err := p.process(ctx, work)

	p.processed.Add(1)
	status := "success"
	if err != nil {
		p.failed.Add(1)
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.processing.WithLabelValues(status).Observe(time.Since(start).Seconds())
		p.metrics.queueDepth.Set(float64(len(p.workChan)))
	}
}
