package queue

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/natsclient"
)

// Publisher publishes envelopes to the telemetry work queue.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// JetStreamPublisher publishes through the circuit-broken NATS client,
// setting Nats-Msg-Id to the envelope id so JetStream suppresses duplicate
// publishes inside the dedupe window.
type JetStreamPublisher struct {
	client *natsclient.Client
}

// NewPublisher creates a publisher over the shared NATS client.
func NewPublisher(client *natsclient.Client) *JetStreamPublisher {
	return &JetStreamPublisher{client: client}
}

// Publish sends one envelope to telemetry.ingest.<family>.
func (p *JetStreamPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: IngestSubject(env.Family),
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set("Nats-Msg-Id", env.ID)

	if err := p.client.PublishMsgToStream(ctx, msg); err != nil {
		return errors.WrapTransient(err, "JetStreamPublisher", "Publish", "publish envelope")
	}
	return nil
}
