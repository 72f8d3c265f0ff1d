package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// SaveReading persists one canonical reading together with its device row in
// a single transaction: the device is created if absent or touched forward
// (last_seen, last known location), then the reading is inserted with
// insert-or-ignore on (sensor_id, time).
//
// The boolean reports whether the reading row was actually inserted; false
// with a nil error means a redelivered duplicate, which is success.
func (s *Store) SaveReading(ctx context.Context, device *telemetry.DeviceRecord, reading *telemetry.CanonicalReading) (bool, error) {
	if err := s.EnsurePartition(ctx, reading.Time); err != nil {
		return false, err
	}

	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertDevice(tx, device, reading.Time); err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sensor_id"}, {Name: "time"}},
			DoNothing: true,
		}).Create(reading)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, errors.WrapTransient(err, "Store", "SaveReading", "commit reading")
	}
	return inserted, nil
}

// upsertDevice creates the device row or moves last_seen forward. A sample
// without coordinates must not erase the last known location, so lat/lng are
// only assigned when the device reported them.
func upsertDevice(tx *gorm.DB, device *telemetry.DeviceRecord, seenAt time.Time) error {
	if device.LastSeen.Before(seenAt) {
		device.LastSeen = seenAt
	}

	assignments := map[string]any{
		"last_seen":  device.LastSeen,
		"updated_at": time.Now().UTC(),
	}
	if device.LastLat != nil && device.LastLng != nil {
		assignments["last_lat"] = *device.LastLat
		assignments["last_lng"] = *device.LastLng
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sensor_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(device).Error
}
