package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// GetDevice fetches one device row by compound sensor id. A missing row
// yields errors.ErrNotFound.
func (s *Store) GetDevice(ctx context.Context, sensorID string) (*telemetry.DeviceRecord, error) {
	var rec telemetry.DeviceRecord
	err := s.db.WithContext(ctx).Where("sensor_id = ?", sensorID).First(&rec).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.WrapTransient(err, "Store", "GetDevice", "query device")
	}
	return &rec, nil
}

// CreateDevice inserts a device row if absent. When another writer won the
// race the existing row is loaded into rec. The boolean reports whether this
// call created the row.
func (s *Store) CreateDevice(ctx context.Context, rec *telemetry.DeviceRecord) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sensor_id"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return false, errors.WrapTransient(res.Error, "Store", "CreateDevice", "insert device")
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	existing, err := s.GetDevice(ctx, rec.SensorID)
	if err != nil {
		return false, err
	}
	*rec = *existing
	return false, nil
}

// TouchDevice moves last_seen (and the last known location, when given)
// forward without creating a row.
func (s *Store) TouchDevice(ctx context.Context, sensorID string, lastSeen time.Time, loc *telemetry.Location) error {
	updates := map[string]any{"last_seen": lastSeen}
	if loc != nil {
		updates["last_lat"] = loc.Lat
		updates["last_lng"] = loc.Lng
	}

	res := s.db.WithContext(ctx).
		Model(&telemetry.DeviceRecord{}).
		Where("sensor_id = ?", sensorID).
		Updates(updates)
	if res.Error != nil {
		return errors.WrapTransient(res.Error, "Store", "TouchDevice", "update device")
	}
	if res.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// ListActiveDevices returns devices seen since the cutoff, most recent first.
func (s *Store) ListActiveDevices(ctx context.Context, since time.Time) ([]telemetry.DeviceRecord, error) {
	var recs []telemetry.DeviceRecord
	err := s.db.WithContext(ctx).
		Where("last_seen >= ?", since).
		Order("last_seen DESC").
		Find(&recs).Error
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "ListActiveDevices", "query devices")
	}
	return recs, nil
}
