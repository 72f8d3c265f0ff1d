package dualwrite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
	"github.com/SubhajL/munbon2-backend-sub001/testutil"
)

func testReading(sensorID string) telemetry.CanonicalReading {
	return telemetry.NewReading(sensorID, telemetry.FamilyMoisture, time.Now().UTC(),
		telemetry.Measurements{telemetry.KeyMoistureSurfacePct: 35}, 1.0)
}

func startCoordinator(t *testing.T, cfg Config, stores ...SecondaryStore) *Coordinator {
	t.Helper()
	c := New(cfg, stores, nil, nil)
	require.NoError(t, c.Initialize())
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop(2 * time.Second) })
	return c
}

func TestCoordinatorReplicatesSubmittedReadings(t *testing.T) {
	sink := testutil.NewFakeSecondary()
	c := startCoordinator(t, Config{}, sink)

	c.Submit(testReading("0003-13"))
	c.Submit(testReading("0003-14"))

	require.Eventually(t, func() bool { return sink.Count() == 2 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "0003-13", sink.Readings()[0].SensorID)
}

func TestCoordinatorFailureIsContained(t *testing.T) {
	failing := testutil.NewFakeSecondary()
	failing.Err = assert.AnError
	healthy := testutil.NewFakeSecondary()
	c := startCoordinator(t, Config{}, failing, healthy)

	c.Submit(testReading("0003-13"))

	// The healthy store still gets the reading; the failure only shows up
	// in the health counters.
	require.Eventually(t, func() bool { return healthy.Count() == 1 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return c.Health().ErrorCount > 0 },
		2*time.Second, 10*time.Millisecond)
	assert.True(t, c.Health().Healthy, "secondary failures never degrade the coordinator")
}

func TestCoordinatorStopDrainsBacklog(t *testing.T) {
	sink := testutil.NewFakeSecondary()
	c := New(Config{BufferSize: 16}, []SecondaryStore{sink}, nil, nil)
	require.NoError(t, c.Initialize())

	// Submit before Start: the backlog must survive until the drain runs.
	for i := 0; i < 5; i++ {
		c.Submit(testReading("0001-1"))
	}
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop(2*time.Second))

	assert.Equal(t, 5, sink.Count())
}

func TestCoordinatorOverflowDropsOldest(t *testing.T) {
	c := New(Config{BufferSize: 2}, nil, nil, nil)
	require.NoError(t, c.Initialize())

	for i := 0; i < 5; i++ {
		c.Submit(testReading("0001-1"))
	}
	stats := c.BufferStats()
	assert.Equal(t, uint64(5), stats.Writes)
	assert.Equal(t, uint64(3), stats.Drops)
	assert.Equal(t, 2, stats.Size)
}
