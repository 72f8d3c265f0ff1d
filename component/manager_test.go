package component

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComponent struct {
	name      string
	initErr   error
	startErr  error
	stopErr   error
	events    *[]string
	healthy   bool
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Initialize() error {
	*f.events = append(*f.events, "init:"+f.name)
	return f.initErr
}

func (f *fakeComponent) Start(_ context.Context) error {
	*f.events = append(*f.events, "start:"+f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(_ time.Duration) error {
	*f.events = append(*f.events, "stop:"+f.name)
	return f.stopErr
}

func (f *fakeComponent) Health() HealthStatus {
	return HealthStatus{Healthy: f.healthy}
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager(nil)

	require.NoError(t, m.Register(&fakeComponent{name: "a", events: &events, healthy: true}))
	require.NoError(t, m.Register(&fakeComponent{name: "b", events: &events, healthy: true}))
	require.NoError(t, m.Register(&fakeComponent{name: "c", events: &events, healthy: true}))

	require.NoError(t, m.StartAll(context.Background()))
	require.NoError(t, m.StopAll(time.Second))

	assert.Equal(t, []string{
		"init:a", "start:a",
		"init:b", "start:b",
		"init:c", "start:c",
		"stop:c", "stop:b", "stop:a",
	}, events)
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	var events []string
	m := NewManager(nil)

	require.NoError(t, m.Register(&fakeComponent{name: "a", events: &events}))
	err := m.Register(&fakeComponent{name: "a", events: &events})
	assert.Error(t, err)
}

func TestManagerStartFailureUnwindsStartedComponents(t *testing.T) {
	var events []string
	m := NewManager(nil)

	require.NoError(t, m.Register(&fakeComponent{name: "a", events: &events}))
	require.NoError(t, m.Register(&fakeComponent{name: "bad", events: &events, startErr: errors.New("boom")}))
	require.NoError(t, m.Register(&fakeComponent{name: "c", events: &events}))

	err := m.StartAll(context.Background())
	require.Error(t, err)

	// a was started and must be stopped; c was never reached.
	assert.Contains(t, events, "stop:a")
	assert.NotContains(t, events, "init:c")
}

func TestManagerStopCollectsErrors(t *testing.T) {
	var events []string
	m := NewManager(nil)

	require.NoError(t, m.Register(&fakeComponent{name: "a", events: &events}))
	require.NoError(t, m.Register(&fakeComponent{name: "b", events: &events, stopErr: errors.New("stuck")}))

	require.NoError(t, m.StartAll(context.Background()))
	err := m.StopAll(time.Second)
	require.Error(t, err)

	// a still stopped even though b failed.
	assert.Contains(t, events, "stop:a")
}

func TestManagerHealthSnapshot(t *testing.T) {
	var events []string
	m := NewManager(nil)

	require.NoError(t, m.Register(&fakeComponent{name: "a", events: &events, healthy: true}))
	require.NoError(t, m.Register(&fakeComponent{name: "b", events: &events, healthy: false}))

	health := m.Health()
	assert.True(t, health["a"].Healthy)
	assert.False(t, health["b"].Healthy)
}
