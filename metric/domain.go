package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DomainMetrics holds the ingestion-pipeline metrics shared across
// components. They are registered once alongside the core metrics.
type DomainMetrics struct {
	// Ingress
	InvalidPayloads  *prometheus.CounterVec
	RejectedPayloads *prometheus.CounterVec
	EnqueueFailures  *prometheus.CounterVec
	RateLimited      prometheus.Counter

	// Processor
	ReportsDiscarded  *prometheus.CounterVec
	SamplesSkipped    *prometheus.CounterVec
	ReadingsPersisted *prometheus.CounterVec
	DuplicateReadings prometheus.Counter
	QualityScore      *prometheus.HistogramVec
	DeadLetters       *prometheus.CounterVec

	// Dual-write
	SecondaryWrites *prometheus.CounterVec
	SecondaryDrops  prometheus.Counter
}

// NewDomainMetrics creates the ingestion-pipeline metrics.
func NewDomainMetrics() *DomainMetrics {
	return &DomainMetrics{
		InvalidPayloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "ingress",
				Name:      "invalid_payloads_total",
				Help:      "Payloads discarded at ingress for being empty or unparsable",
			},
			[]string{"family"},
		),
		RejectedPayloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "ingress",
				Name:      "rejected_payloads_total",
				Help:      "Payloads rejected at ingress with a client error",
			},
			[]string{"family", "reason"},
		),
		EnqueueFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "ingress",
				Name:      "enqueue_failures_total",
				Help:      "Envelopes that could not be published to the queue",
			},
			[]string{"family"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "ingress",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-source rate limiter",
			},
		),
		ReportsDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "processor",
				Name:      "reports_discarded_total",
				Help:      "Reports acked without persistence, by reason",
			},
			[]string{"family", "reason"},
		),
		SamplesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "processor",
				Name:      "samples_skipped_total",
				Help:      "Samples skipped because they cannot be attributed to a device",
			},
			[]string{"family"},
		),
		ReadingsPersisted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "processor",
				Name:      "readings_persisted_total",
				Help:      "Canonical readings committed to the primary store",
			},
			[]string{"family"},
		),
		DuplicateReadings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "processor",
				Name:      "duplicate_readings_total",
				Help:      "Redelivered readings suppressed by the (sensor_id, time) conflict policy",
			},
		),
		QualityScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "munbon",
				Subsystem: "processor",
				Name:      "quality_score",
				Help:      "Quality score distribution of persisted readings",
				Buckets:   []float64{0, 0.25, 0.5, 0.75, 0.9, 1.0},
			},
			[]string{"family"},
		),
		DeadLetters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "processor",
				Name:      "dead_letters_total",
				Help:      "Messages diverted to the dead-letter stream",
			},
			[]string{"family"},
		),
		SecondaryWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "dualwrite",
				Name:      "writes_total",
				Help:      "Secondary-store write attempts by outcome",
			},
			[]string{"store", "status"},
		),
		SecondaryDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "munbon",
				Subsystem: "dualwrite",
				Name:      "drops_total",
				Help:      "Readings dropped from the replication buffer under backpressure",
			},
		),
	}
}

// Register registers all domain metrics with the Prometheus registry.
func (d *DomainMetrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		d.InvalidPayloads,
		d.RejectedPayloads,
		d.EnqueueFailures,
		d.RateLimited,
		d.ReportsDiscarded,
		d.SamplesSkipped,
		d.ReadingsPersisted,
		d.DuplicateReadings,
		d.QualityScore,
		d.DeadLetters,
		d.SecondaryWrites,
		d.SecondaryDrops,
	)
}
