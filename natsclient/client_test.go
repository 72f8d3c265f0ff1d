package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestConnectionStatusString(t *testing.T) {
	cases := map[ConnectionStatus]string{
		StatusDisconnected:   "disconnected",
		StatusConnecting:     "connecting",
		StatusConnected:      "connected",
		StatusReconnecting:   "reconnecting",
		StatusCircuitOpen:    "circuit_open",
		ConnectionStatus(42): "unknown",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.String())
	}
}

func TestCircuitOpensAtThreshold(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(3))
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(3), client.Failures())

	// Connect attempts fail fast while the circuit is open.
	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBackoffDoublesUpToCap(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(1),
		WithMaxBackoff(4*time.Second))
	require.NoError(t, err)

	client.recordFailure()
	assert.Equal(t, 2*time.Second, client.Backoff())

	client.recordFailure()
	assert.Equal(t, 4*time.Second, client.Backoff())

	client.recordFailure()
	assert.Equal(t, 4*time.Second, client.Backoff(), "backoff is capped")
}

func TestResetCircuitClearsFailureState(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(2))
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
	assert.True(t, client.GetStatus().LastFailureTime.IsZero())
}

func TestCircuitHalfOpensAfterBackoff(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.testCircuit()
	assert.Equal(t, StatusDisconnected, client.Status(), "half-open allows the next attempt")
}

func TestIsHealthyPerStatus(t *testing.T) {
	cases := []struct {
		status  ConnectionStatus
		healthy bool
	}{
		{StatusDisconnected, false},
		{StatusConnecting, false},
		{StatusConnected, true},
		{StatusReconnecting, false},
		{StatusCircuitOpen, false},
	}
	for _, tc := range cases {
		client, err := NewClient("nats://localhost:4222")
		require.NoError(t, err)
		client.setStatus(tc.status)
		assert.Equal(t, tc.healthy, client.IsHealthy(), tc.status.String())
	}
}

func TestWaitForConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	// Times out while disconnected.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, client.WaitForConnection(ctx))

	// Returns once healthy.
	client.setStatus(StatusConnected)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.NoError(t, client.WaitForConnection(ctx2))
}

func TestJetStreamOpsRequireConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.JetStream()
	assert.Error(t, err)

	_, err = client.CreateStream(ctx, jetstream.StreamConfig{Name: "t"})
	assert.ErrorIs(t, err, ErrNotConnected)

	err = client.PublishMsgToStream(ctx, &nats.Msg{Subject: "t.x"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectFailureCountsTowardCircuit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping connection-refused test in short mode")
	}

	// Port 1 refuses connections immediately.
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(200*time.Millisecond),
		WithMaxReconnects(0),
		WithCircuitBreakerThreshold(2))
	require.NoError(t, err)

	ctx := context.Background()
	require.Error(t, client.Connect(ctx))
	assert.Equal(t, int32(1), client.Failures())

	require.Error(t, client.Connect(ctx))
	assert.Equal(t, StatusCircuitOpen, client.Status())
}

func TestHealthChangeCallbackOnConnectFailureThenClose(t *testing.T) {
	transitions := make(chan bool, 4)
	client, err := NewClient("nats://localhost:4222",
		WithHealthChangeCallback(func(healthy bool) { transitions <- healthy }))
	require.NoError(t, err)

	// The callback runs on its own goroutine, so collect each transition
	// before triggering the next handler.
	steps := []struct {
		fire func()
		want bool
	}{
		{func() { client.handleDisconnect(nil, assert.AnError) }, false},
		{func() { client.handleReconnect(nil) }, true},
		{func() { client.handleClosed(nil) }, false},
	}
	for i, step := range steps {
		step.fire()
		select {
		case got := <-transitions:
			assert.Equal(t, step.want, got, "transition %d", i)
		case <-time.After(time.Second):
			t.Fatalf("health transition %d never fired", i)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Close(ctx))
	require.NoError(t, client.Close(ctx))
	assert.Equal(t, StatusDisconnected, client.Status())
}
