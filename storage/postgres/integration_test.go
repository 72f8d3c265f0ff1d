//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

func startTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("munbon"),
		tcpostgres.WithUsername("munbon"),
		tcpostgres.WithPassword("munbon"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	store := NewWithDB(db, nil)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func testReading(sensorID string, at time.Time) *telemetry.CanonicalReading {
	r := telemetry.NewReading(sensorID, telemetry.FamilyMoisture, at, telemetry.Measurements{
		telemetry.KeyMoistureSurfacePct: 35,
		telemetry.KeyMoistureDeepPct:    38,
	}, 1.0)
	return &r
}

func testDevice(sensorID string) *telemetry.DeviceRecord {
	now := time.Now().UTC()
	return &telemetry.DeviceRecord{
		SensorID:   sensorID,
		SensorType: "moisture",
		FirstSeen:  now,
		LastSeen:   now,
	}
}

func TestSaveReadingIdempotent(t *testing.T) {
	store := startTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	inserted, err := store.SaveReading(ctx, testDevice("0003-13"), testReading("0003-13", at))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Redelivery of the same reading is a counted no-op.
	inserted, err = store.SaveReading(ctx, testDevice("0003-13"), testReading("0003-13", at))
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, err := store.GetDevice(ctx, "0003-13")
	require.NoError(t, err)
	assert.Equal(t, "moisture", rec.SensorType)
}

func TestSaveReadingKeepsLastKnownLocation(t *testing.T) {
	store := startTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	withGPS := testDevice("0007-1")
	lat, lng := 14.88, 103.49
	withGPS.LastLat, withGPS.LastLng = &lat, &lng
	_, err := store.SaveReading(ctx, withGPS, testReading("0007-1", at))
	require.NoError(t, err)

	// A later sample without GPS must not erase the stored coordinates.
	_, err = store.SaveReading(ctx, testDevice("0007-1"), testReading("0007-1", at.Add(time.Minute)))
	require.NoError(t, err)

	rec, err := store.GetDevice(ctx, "0007-1")
	require.NoError(t, err)
	require.NotNil(t, rec.LastLocation())
	assert.Equal(t, 14.88, rec.LastLocation().Lat)
	assert.WithinDuration(t, at.Add(time.Minute), rec.LastSeen, time.Second)
}

func TestSaveReadingCrossesMonthBoundary(t *testing.T) {
	store := startTestStore(t)
	ctx := context.Background()

	// Two months out: the partition does not exist yet and must be created
	// on demand by the write path.
	at := time.Now().UTC().AddDate(0, 2, 0)
	inserted, err := store.SaveReading(ctx, testDevice("0009-2"), testReading("0009-2", at))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestListActiveDevices(t *testing.T) {
	store := startTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.SaveReading(ctx, testDevice("a-1"), testReading("a-1", now))
	require.NoError(t, err)

	stale := testDevice("b-1")
	stale.FirstSeen = now.Add(-48 * time.Hour)
	stale.LastSeen = stale.FirstSeen
	_, err = store.SaveReading(ctx, stale, testReading("b-1", now.Add(-48*time.Hour)))
	require.NoError(t, err)

	active, err := store.ListActiveDevices(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a-1", active[0].SensorID)
}

func TestCreateDeviceRace(t *testing.T) {
	store := startTestStore(t)
	ctx := context.Background()

	first := testDevice("c-1")
	created, err := store.CreateDevice(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := testDevice("c-1")
	created, err = store.CreateDevice(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID, "loser of the race sees the existing row")
}
