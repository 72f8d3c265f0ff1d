package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// readingsDDL creates the partitioned parent table. GORM's AutoMigrate cannot
// express PARTITION BY, so the readings schema is explicit; the composite
// primary key includes the partition key as PostgreSQL requires.
const readingsDDL = `
CREATE TABLE IF NOT EXISTS readings (
	sensor_id     varchar(128)     NOT NULL,
	"time"        timestamptz      NOT NULL,
	family        varchar(32)      NOT NULL,
	lat           double precision,
	lng           double precision,
	battery_volt  double precision,
	measurements  jsonb            NOT NULL,
	quality_score double precision NOT NULL,
	created_at    timestamptz      DEFAULT now(),
	PRIMARY KEY (sensor_id, "time")
) PARTITION BY RANGE ("time")`

const readingsFamilyIndexDDL = `
CREATE INDEX IF NOT EXISTS idx_readings_family_time ON readings (family, "time")`

// Migrate brings the schema up: devices via AutoMigrate, readings via the
// explicit partitioned DDL, plus partitions for the current and next month so
// a deploy near a month boundary does not race partition creation.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&telemetry.DeviceRecord{}); err != nil {
		return errors.WrapFatal(err, "Store", "Migrate", "migrate devices table")
	}
	if err := s.db.WithContext(ctx).Exec(readingsDDL).Error; err != nil {
		return errors.WrapFatal(err, "Store", "Migrate", "create readings table")
	}
	if err := s.db.WithContext(ctx).Exec(readingsFamilyIndexDDL).Error; err != nil {
		return errors.WrapFatal(err, "Store", "Migrate", "create readings index")
	}

	now := time.Now().UTC()
	if err := s.EnsurePartition(ctx, now); err != nil {
		return err
	}
	return s.EnsurePartition(ctx, now.AddDate(0, 1, 0))
}

// EnsurePartition creates the monthly partition covering t if it does not
// exist yet. Created partitions are remembered so the hot write path issues
// no DDL.
func (s *Store) EnsurePartition(ctx context.Context, t time.Time) error {
	name := partitionName(t)

	s.mu.Lock()
	_, done := s.partitions[name]
	s.mu.Unlock()
	if done {
		return nil
	}

	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF readings FOR VALUES FROM ('%s') TO ('%s')`,
		name, from.Format("2006-01-02"), to.Format("2006-01-02"))

	if err := s.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return errors.WrapTransient(err, "Store", "EnsurePartition", "create partition "+name)
	}

	s.mu.Lock()
	s.partitions[name] = struct{}{}
	s.mu.Unlock()

	s.log.Debug("readings partition ready", "partition", name)
	return nil
}

func partitionName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("readings_y%04dm%02d", t.Year(), int(t.Month()))
}
