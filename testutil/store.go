// Package testutil provides in-memory fakes for pipeline tests: a device and
// reading store, a queue publisher, a secondary sink, and a log capture. All
// fakes are thread-safe and support error injection; none require external
// services.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// MemoryStore is an in-memory stand-in for the postgres store. It mirrors
// the real conflict semantics: devices upsert with last-seen moving forward,
// readings deduplicate on (sensor_id, time).
type MemoryStore struct {
	mu       sync.Mutex
	devices  map[string]*telemetry.DeviceRecord
	readings map[string]telemetry.CanonicalReading
	nextID   uint

	// FailWith, when set, is returned by every store operation.
	FailWith error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:  make(map[string]*telemetry.DeviceRecord),
		readings: make(map[string]telemetry.CanonicalReading),
	}
}

func readingKey(sensorID string, at time.Time) string {
	return fmt.Sprintf("%s|%d", sensorID, at.UTC().UnixNano())
}

// GetDevice returns the device row or errors.ErrNotFound.
func (s *MemoryStore) GetDevice(_ context.Context, sensorID string) (*telemetry.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	rec, ok := s.devices[sensorID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// CreateDevice inserts the row if absent, mirroring ON CONFLICT DO NOTHING.
func (s *MemoryStore) CreateDevice(_ context.Context, rec *telemetry.DeviceRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return false, s.FailWith
	}
	if existing, ok := s.devices[rec.SensorID]; ok {
		*rec = *existing
		return false, nil
	}
	s.nextID++
	rec.ID = s.nextID
	cp := *rec
	s.devices[rec.SensorID] = &cp
	return true, nil
}

// TouchDevice moves last_seen and location forward on an existing row.
func (s *MemoryStore) TouchDevice(_ context.Context, sensorID string, lastSeen time.Time, loc *telemetry.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	rec, ok := s.devices[sensorID]
	if !ok {
		return errors.ErrNotFound
	}
	rec.LastSeen = lastSeen
	if loc != nil {
		lat, lng := loc.Lat, loc.Lng
		rec.LastLat, rec.LastLng = &lat, &lng
	}
	return nil
}

// ListActiveDevices returns devices seen since the cutoff, most recent first.
func (s *MemoryStore) ListActiveDevices(_ context.Context, since time.Time) ([]telemetry.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var out []telemetry.DeviceRecord
	for _, rec := range s.devices {
		if !rec.LastSeen.Before(since) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

// SaveReading upserts the device and inserts the reading unless the
// (sensor_id, time) pair already exists.
func (s *MemoryStore) SaveReading(_ context.Context, device *telemetry.DeviceRecord, reading *telemetry.CanonicalReading) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return false, s.FailWith
	}

	existing, ok := s.devices[device.SensorID]
	if !ok {
		s.nextID++
		device.ID = s.nextID
		cp := *device
		s.devices[device.SensorID] = &cp
	} else {
		if existing.LastSeen.Before(reading.Time) {
			existing.LastSeen = reading.Time
		}
		if device.LastLat != nil && device.LastLng != nil {
			existing.LastLat, existing.LastLng = device.LastLat, device.LastLng
		}
	}

	key := readingKey(reading.SensorID, reading.Time)
	if _, dup := s.readings[key]; dup {
		return false, nil
	}
	s.readings[key] = *reading
	return true, nil
}

// Readings returns all stored readings in insertion-independent order.
func (s *MemoryStore) Readings() []telemetry.CanonicalReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]telemetry.CanonicalReading, 0, len(s.readings))
	for _, r := range s.readings {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SensorID != out[j].SensorID {
			return out[i].SensorID < out[j].SensorID
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// DeviceCount returns the number of registered devices.
func (s *MemoryStore) DeviceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}
