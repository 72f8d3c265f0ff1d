// Package queue defines the durable-queue layer between ingress and the
// processor: the envelope message format, the JetStream topology (work-queue
// stream, durable consumer, dead-letter stream) and the publisher.
//
// Delivery is at-least-once. An envelope is removed from the queue only when
// the processor acks it after a durable commit; redelivery after the
// visibility timeout (AckWait) is normal and consumers tolerate duplicates
// through idempotent persistence.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/timestamp"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// Subject prefixes for the telemetry streams.
const (
	IngestSubjectPrefix = "telemetry.ingest."
	DLQSubjectPrefix    = "telemetry.dlq."
)

// IngestSubject returns the work-queue subject for a device family.
func IngestSubject(family telemetry.Family) string {
	return IngestSubjectPrefix + string(family)
}

// DLQSubject returns the dead-letter subject for a device family.
func DLQSubject(family telemetry.Family) string {
	return DLQSubjectPrefix + string(family)
}

// Envelope is the queue message wrapping one raw gateway report. The report
// body is kept as raw JSON so the queue round trip is byte-exact; parsing
// and normalization happen only in the processor.
type Envelope struct {
	ID          string          `json:"id"`
	Family      telemetry.Family `json:"family"`
	ReceivedAt  int64           `json:"received_at"` // unix milliseconds
	SourceAddr  string          `json:"source_addr,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Report      json.RawMessage `json:"report"`
}

// NewEnvelope wraps a raw report for the queue, stamping a fresh id and the
// receipt time.
func NewEnvelope(family telemetry.Family, report json.RawMessage, sourceAddr, contentType string) Envelope {
	return Envelope{
		ID:          uuid.NewString(),
		Family:      family,
		ReceivedAt:  timestamp.Now(),
		SourceAddr:  sourceAddr,
		ContentType: contentType,
		Report:      report,
	}
}

// Encode serializes the envelope for publishing.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "Envelope", "Encode", "marshal envelope")
	}
	return data, nil
}

// DecodeEnvelope parses a queue message back into an Envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, errors.WrapInvalid(err, "Envelope", "DecodeEnvelope", "unmarshal envelope")
	}
	if e.ID == "" {
		return Envelope{}, errors.WrapInvalid(
			fmt.Errorf("envelope has no id"), "Envelope", "DecodeEnvelope", "validate envelope")
	}
	return e, nil
}
