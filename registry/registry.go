// Package registry is the canonical device-identity store. Device records
// are created lazily on the first valid sample and never deleted; identity
// is the compound sensor id. A small LRU of recently confirmed ids keeps the
// hot ingest path from issuing an existence read per sample.
package registry

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/cache"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// DeviceStore is the persistence surface the registry needs.
type DeviceStore interface {
	GetDevice(ctx context.Context, sensorID string) (*telemetry.DeviceRecord, error)
	CreateDevice(ctx context.Context, rec *telemetry.DeviceRecord) (bool, error)
	TouchDevice(ctx context.Context, sensorID string, lastSeen time.Time, loc *telemetry.Location) error
	ListActiveDevices(ctx context.Context, since time.Time) ([]telemetry.DeviceRecord, error)
}

// DefaultCacheSize bounds the confirmed-device LRU. Sized for the fleet, not
// for memory: one entry per probe seen recently.
const DefaultCacheSize = 4096

// Registry resolves and maintains device identities.
type Registry struct {
	store DeviceStore
	known *cache.LRU[*telemetry.DeviceRecord]
	log   *slog.Logger
	now   func() time.Time
}

// New creates a registry over the device store.
func New(store DeviceStore, cacheSize int, log *slog.Logger) *Registry {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		store: store,
		known: cache.NewLRU[*telemetry.DeviceRecord](cacheSize),
		log:   log.With("component", "registry"),
		now:   time.Now,
	}
}

// GetOrCreate resolves a device by compound sensor id, creating the record
// on first sight. metadata is captured only at creation; existing records
// keep theirs. The boolean reports whether this call created the record.
//
// The returned record is the caller's private copy: pool workers annotate it
// (last location, last seen) on the way to persistence, and two workers
// resolving the same id concurrently must not share the mutation target.
// Cached entries are never mutated in place.
func (r *Registry) GetOrCreate(ctx context.Context, sensorID string, family telemetry.Family, metadata map[string]any) (*telemetry.DeviceRecord, bool, error) {
	if rec, ok := r.known.Get(sensorID); ok {
		return cloneRecord(rec), false, nil
	}

	rec, err := r.store.GetDevice(ctx, sensorID)
	if err == nil {
		r.known.Set(sensorID, cloneRecord(rec))
		return rec, false, nil
	}
	if !stderrors.Is(err, errors.ErrNotFound) {
		return nil, false, err
	}

	now := r.now().UTC()
	rec = &telemetry.DeviceRecord{
		SensorID:   sensorID,
		SensorType: family.String(),
		FirstSeen:  now,
		LastSeen:   now,
		Metadata:   datatypes.JSONMap(metadata),
	}
	created, err := r.store.CreateDevice(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if created {
		r.log.Info("device registered",
			"sensor_id", sensorID,
			"family", family.String())
	}
	r.known.Set(sensorID, cloneRecord(rec))
	return rec, created, nil
}

// Touch moves a device's last_seen (and location, when known) forward.
func (r *Registry) Touch(ctx context.Context, sensorID string, lastSeen time.Time, loc *telemetry.Location) error {
	err := r.store.TouchDevice(ctx, sensorID, lastSeen.UTC(), loc)
	if err != nil {
		return err
	}
	if rec, ok := r.known.Get(sensorID); ok && rec.LastSeen.Before(lastSeen) {
		upd := cloneRecord(rec)
		upd.LastSeen = lastSeen.UTC()
		if loc != nil {
			lat, lng := loc.Lat, loc.Lng
			upd.LastLat, upd.LastLng = &lat, &lng
		}
		r.known.Set(sensorID, upd)
	}
	return nil
}

// ListActive returns devices seen within the window, most recent first.
func (r *Registry) ListActive(ctx context.Context, window time.Duration) ([]telemetry.DeviceRecord, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return r.store.ListActiveDevices(ctx, r.now().UTC().Add(-window))
}

// cloneRecord copies a device record, giving the coordinate pointers their
// own backing values. Metadata is shared; it is immutable after creation.
func cloneRecord(rec *telemetry.DeviceRecord) *telemetry.DeviceRecord {
	out := *rec
	if rec.LastLat != nil {
		lat := *rec.LastLat
		out.LastLat = &lat
	}
	if rec.LastLng != nil {
		lng := *rec.LastLng
		out.LastLng = &lng
	}
	return &out
}

// CacheStats exposes the confirmed-device cache counters for diagnostics.
func (r *Registry) CacheStats() cache.Stats {
	return r.known.Stats()
}
