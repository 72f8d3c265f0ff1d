package queue

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/natsclient"
)

// Stream and consumer names.
const (
	StreamName          = "TELEMETRY"
	DLQStream           = "TELEMETRY_DLQ"
	ConsumerName        = "telemetry-processor"
	ArchiveConsumerName = "telemetry-archiver"
)

// TopologyConfig holds the tunable queue parameters.
type TopologyConfig struct {
	// AckWait is the visibility timeout: how long the server waits for an
	// ack before redelivering. Must exceed worst-case processing latency,
	// including identity resolution and the dual-write handoff.
	AckWait time.Duration

	// MaxDeliver bounds redelivery of a failing message; the delivery that
	// exhausts the bound is diverted to the dead-letter stream.
	MaxDeliver int

	// MaxAckPending caps in-flight unacked messages across workers.
	MaxAckPending int

	// MaxAge bounds how long unconsumed envelopes are retained.
	MaxAge time.Duration

	// DLQMaxAge bounds dead-letter retention.
	DLQMaxAge time.Duration
}

// DefaultTopologyConfig returns the default queue parameters.
func DefaultTopologyConfig() TopologyConfig {
	return TopologyConfig{
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 256,
		MaxAge:        24 * time.Hour,
		DLQMaxAge:     14 * 24 * time.Hour,
	}
}

// EnsureTopology creates (or updates) the telemetry work-queue stream, the
// dead-letter stream and the durable processor consumer. It is idempotent
// and safe to run from every process at startup.
func EnsureTopology(ctx context.Context, client *natsclient.Client, cfg TopologyConfig) error {
	if _, err := client.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "telemetry ingest work queue",
		Subjects:    []string{IngestSubjectPrefix + ">"},
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      cfg.MaxAge,
		Duplicates:  2 * time.Minute,
	}); err != nil {
		return errors.WrapTransient(err, "queue", "EnsureTopology", "create ingest stream")
	}

	if _, err := client.CreateStream(ctx, jetstream.StreamConfig{
		Name:        DLQStream,
		Description: "telemetry dead letters",
		Subjects:    []string{DLQSubjectPrefix + ">"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      cfg.DLQMaxAge,
	}); err != nil {
		return errors.WrapTransient(err, "queue", "EnsureTopology", "create dead-letter stream")
	}

	js, err := client.JetStream()
	if err != nil {
		return errors.WrapTransient(err, "queue", "EnsureTopology", "get jetstream context")
	}

	processorConsumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		FilterSubject: IngestSubjectPrefix + ">",
	})
	if err != nil {
		return errors.WrapTransient(err, "queue", "EnsureTopology", "create processor consumer")
	}
	client.TrackConsumer(StreamName, ConsumerName, processorConsumer)

	archiveConsumer, err := js.CreateOrUpdateConsumer(ctx, DLQStream, jetstream.ConsumerConfig{
		Durable:       ArchiveConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		FilterSubject: DLQSubjectPrefix + ">",
	})
	if err != nil {
		return errors.WrapTransient(err, "queue", "EnsureTopology", "create archiver consumer")
	}
	client.TrackConsumer(DLQStream, ArchiveConsumerName, archiveConsumer)

	return nil
}
