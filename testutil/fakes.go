package testutil

import (
	"context"
	"sync"

	"github.com/SubhajL/munbon2-backend-sub001/queue"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// FakePublisher records published envelopes.
type FakePublisher struct {
	mu        sync.Mutex
	envelopes []queue.Envelope

	// Err, when set, is returned by Publish instead of recording.
	Err error
}

// NewFakePublisher creates an empty publisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the envelope, or fails with Err.
func (p *FakePublisher) Publish(_ context.Context, env queue.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.envelopes = append(p.envelopes, env)
	return nil
}

// Envelopes returns a copy of everything published so far.
func (p *FakePublisher) Envelopes() []queue.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.Envelope, len(p.envelopes))
	copy(out, p.envelopes)
	return out
}

// Count returns the number of published envelopes.
func (p *FakePublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.envelopes)
}

// FakeSecondary is an in-memory secondary store.
type FakeSecondary struct {
	mu       sync.Mutex
	readings []telemetry.CanonicalReading

	// Err, when set, is returned by WriteReading.
	Err error
}

// NewFakeSecondary creates an empty secondary sink.
func NewFakeSecondary() *FakeSecondary {
	return &FakeSecondary{}
}

// Name implements the secondary-store interface.
func (f *FakeSecondary) Name() string { return "fake" }

// WriteReading records the reading, or fails with Err.
func (f *FakeSecondary) WriteReading(_ context.Context, reading *telemetry.CanonicalReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.readings = append(f.readings, *reading)
	return nil
}

// Close implements the secondary-store interface.
func (f *FakeSecondary) Close() error { return nil }

// Readings returns a copy of the recorded readings.
func (f *FakeSecondary) Readings() []telemetry.CanonicalReading {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]telemetry.CanonicalReading, len(f.readings))
	copy(out, f.readings)
	return out
}

// Count returns the number of recorded readings.
func (f *FakeSecondary) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}
