package processor

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/timestamp"
	"github.com/SubhajL/munbon2-backend-sub001/queue"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// handle runs one envelope through the pipeline. It owns the message's fate:
// every path ends in exactly one of ack, nak or dead-letter.
func (p *Processor) handle(ctx context.Context, msg jetstream.Msg) error {
	family := subjectFamily(msg.Subject())
	if core := p.coreMetrics(); core != nil {
		core.RecordMessageReceived("processor", family.String())
	}
	start := time.Now()

	env, err := queue.DecodeEnvelope(msg.Data())
	if err != nil {
		// A corrupt envelope should never happen; bounded retries get it to
		// the dead-letter archive for forensics.
		p.fail(ctx, msg, family, "", StateReceived, err)
		return err
	}
	family = env.Family

	receivedAt := timestamp.FromUnixMs(env.ReceivedAt)
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	res, err := p.normalizer.Normalize(env.Family, env.Report, receivedAt)
	if err != nil {
		if errors.IsInvalid(err) {
			p.discard(msg, env.ID, family, discardReason(err))
			return nil
		}
		p.fail(ctx, msg, family, env.ID, StateParsed, err)
		return err
	}

	if res.Skipped > 0 {
		if dm := p.domainMetrics(); dm != nil {
			dm.SamplesSkipped.WithLabelValues(family.String()).Add(float64(res.Skipped))
		}
		p.log.Warn("samples without sensor id skipped",
			"envelope_id", env.ID,
			"gateway_id", res.GatewayID,
			"skipped", res.Skipped)
	}

	if len(res.Samples) == 0 {
		// Gateway heartbeat; nothing to persist, not an error.
		p.discard(msg, env.ID, family, "empty")
		return nil
	}

	persisted := make([]telemetry.CanonicalReading, 0, len(res.Samples))
	duplicates := 0
	for i := range res.Samples {
		reading := res.Samples[i].Reading

		device, _, err := p.devices.GetOrCreate(ctx, reading.SensorID, env.Family, res.Samples[i].Raw)
		if err != nil {
			p.fail(ctx, msg, family, env.ID, StateNormalized, err)
			return err
		}
		device.LastLat, device.LastLng = reading.Lat, reading.Lng

		inserted, err := p.store.SaveReading(ctx, device, &reading)
		if err != nil {
			p.fail(ctx, msg, family, env.ID, StateIdentityResolved, err)
			return err
		}
		if inserted {
			persisted = append(persisted, reading)
		} else {
			duplicates++
		}
	}

	p.observePersisted(family, persisted, duplicates)
	if p.secondary != nil {
		for _, reading := range persisted {
			p.secondary.Submit(reading)
		}
	}

	if err := msg.Ack(); err != nil {
		// Already processed; a redelivery will be absorbed by the conflict
		// policy.
		p.log.Warn("ack failed after persistence", "envelope_id", env.ID, "error", err)
	}

	if core := p.coreMetrics(); core != nil {
		core.RecordMessageProcessed("processor", family.String(), "success")
		core.RecordProcessingDuration("processor", "handle", time.Since(start))
	}
	p.log.Debug("report persisted",
		"envelope_id", env.ID,
		"gateway_id", res.GatewayID,
		"state", StatePersisted.String(),
		"readings", len(persisted),
		"duplicates", duplicates)
	return nil
}

func (p *Processor) observePersisted(family telemetry.Family, persisted []telemetry.CanonicalReading, duplicates int) {
	dm := p.domainMetrics()
	if dm == nil {
		return
	}
	for _, reading := range persisted {
		dm.ReadingsPersisted.WithLabelValues(family.String()).Inc()
		dm.QualityScore.WithLabelValues(family.String()).Observe(reading.QualityScore)
	}
	if duplicates > 0 {
		dm.DuplicateReadings.Add(float64(duplicates))
	}
}

// discard acks a message that carries nothing persistable. Redelivering it
// cannot help, so this is terminal and silent toward the device.
func (p *Processor) discard(msg jetstream.Msg, envelopeID string, family telemetry.Family, reason string) {
	if err := msg.Ack(); err != nil {
		p.log.Warn("ack failed on discard", "envelope_id", envelopeID, "error", err)
	}
	if dm := p.domainMetrics(); dm != nil {
		dm.ReportsDiscarded.WithLabelValues(family.String(), reason).Inc()
	}
	if core := p.coreMetrics(); core != nil {
		core.RecordMessageProcessed("processor", family.String(), "discarded")
	}
	p.log.Info("report discarded",
		"envelope_id", envelopeID,
		"family", family.String(),
		"state", StateDiscarded.String(),
		"reason", reason)
}

// fail naks a transiently failing message for redelivery; the delivery that
// exhausts the bound is republished to the dead-letter stream and terminated.
// stage is the last pipeline stage the message cleared before the failure.
func (p *Processor) fail(ctx context.Context, msg jetstream.Msg, family telemetry.Family, envelopeID string, stage State, cause error) {
	p.recordError(cause)
	if core := p.coreMetrics(); core != nil {
		core.RecordMessageProcessed("processor", family.String(), "error")
	}

	deliveries := uint64(1)
	if meta, err := msg.Metadata(); err == nil {
		deliveries = meta.NumDelivered
	}

	if deliveries < uint64(p.cfg.MaxDeliver) {
		if err := msg.NakWithDelay(p.cfg.NakDelay); err != nil {
			p.log.Warn("nak failed", "envelope_id", envelopeID, "error", err)
		}
		p.log.Warn("processing failed, redelivering",
			"envelope_id", envelopeID,
			"family", family.String(),
			"state", StateFailed.String(),
			"stage", stage.String(),
			"delivery", deliveries,
			"error", cause)
		return
	}

	p.deadLetter(ctx, msg, family, envelopeID, stage, deliveries, cause)
}

func (p *Processor) deadLetter(ctx context.Context, msg jetstream.Msg, family telemetry.Family, envelopeID string, stage State, deliveries uint64, cause error) {
	dead := &nats.Msg{
		Subject: queue.DLQSubject(family),
		Data:    msg.Data(),
		Header:  nats.Header{},
	}
	dead.Header.Set(queue.HeaderReason, cause.Error())
	dead.Header.Set(queue.HeaderDeliveries, strconv.FormatUint(deliveries, 10))
	if envelopeID != "" {
		dead.Header.Set(queue.HeaderEnvelopeID, envelopeID)
		dead.Header.Set("Nats-Msg-Id", envelopeID)
	}

	if err := p.dlq.PublishMsgToStream(ctx, dead); err != nil {
		// Keep the message alive rather than losing it: nak and let the next
		// delivery try the dead-letter publish again.
		p.log.Error("dead-letter publish failed, redelivering",
			"envelope_id", envelopeID, "error", err)
		if nakErr := msg.NakWithDelay(p.cfg.NakDelay); nakErr != nil {
			p.log.Warn("nak failed", "envelope_id", envelopeID, "error", nakErr)
		}
		return
	}

	if err := msg.Term(); err != nil {
		p.log.Warn("term failed after dead-letter publish", "envelope_id", envelopeID, "error", err)
	}
	if dm := p.domainMetrics(); dm != nil {
		dm.DeadLetters.WithLabelValues(family.String()).Inc()
	}
	p.log.Error("message dead-lettered",
		"envelope_id", envelopeID,
		"family", family.String(),
		"stage", stage.String(),
		"deliveries", deliveries,
		"error", cause)
}

func discardReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrNoGatewayID):
		return "unattributable"
	case stderrors.Is(err, errors.ErrEmptyPayload):
		return "empty"
	case stderrors.Is(err, errors.ErrUnknownFamily):
		return "unknown_family"
	default:
		return "invalid"
	}
}

func subjectFamily(subject string) telemetry.Family {
	return telemetry.Family(strings.TrimPrefix(subject, queue.IngestSubjectPrefix))
}
