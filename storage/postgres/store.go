// Package postgres implements the primary store: the device registry table
// and the time-partitioned canonical readings table, accessed through GORM.
//
// The readings table is range-partitioned by time with monthly partitions
// created on demand. Idempotency lives here: readings insert-or-ignore on
// (sensor_id, time), devices upsert with last-seen moving forward.
package postgres

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/retry"
)

// Config holds connection settings for the primary store.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store wraps the GORM handle with partition bookkeeping.
type Store struct {
	db  *gorm.DB
	log *slog.Logger

	mu         sync.Mutex
	partitions map[string]struct{}
}

// Open connects to PostgreSQL, retrying persistently; the database is a hard
// startup dependency and transient unavailability during deploys is expected.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Store", "Open", "resolve dsn")
	}

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	db, err := retry.DoWithResult(ctx, retry.Persistent(), func() (*gorm.DB, error) {
		db, err := gorm.Open(gormpostgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		return db, sqlDB.PingContext(ctx)
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "Open", "connect to postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "Open", "access connection pool")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return NewWithDB(db, log), nil
}

// NewWithDB wraps an existing GORM handle. Used by tests running against a
// container database.
func NewWithDB(db *gorm.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:         db,
		log:        log.With("component", "postgres-store"),
		partitions: make(map[string]struct{}),
	}
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.WrapTransient(err, "Store", "Ping", "access connection pool")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.WrapTransient(err, "Store", "Ping", "ping database")
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
