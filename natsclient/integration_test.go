//go:build integration

package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startTestClient runs a JetStream-enabled NATS container and returns a
// connected client.
func startTestClient(t *testing.T, opts ...ClientOption) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.11.7-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForListeningPort("4222/tcp"),
			Cmd:          []string{"--js"},
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	client, err := NewClient(fmt.Sprintf("nats://%s:%s", host, port.Port()), opts...)
	require.NoError(t, err)

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(connCtx))
	require.NoError(t, client.WaitForConnection(connCtx))
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		_ = client.Close(closeCtx)
	})
	return client
}

func TestConnectAndStatus(t *testing.T) {
	client := startTestClient(t, WithName("natsclient-test"), WithMaxReconnects(0))

	assert.True(t, client.IsHealthy())
	assert.Equal(t, int32(0), client.Failures())

	status := client.GetStatus()
	assert.Equal(t, StatusConnected, status.Status)
	assert.True(t, status.LastFailureTime.IsZero())
}

func TestStreamPublishWithDedupe(t *testing.T) {
	client := startTestClient(t, WithMaxReconnects(0))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	stream, err := client.CreateStream(ctx, jetstream.StreamConfig{
		Name:       "CLIENT_TEST",
		Subjects:   []string{"client.test.>"},
		Duplicates: time.Minute,
	})
	require.NoError(t, err)

	msg := &nats.Msg{
		Subject: "client.test.one",
		Data:    []byte(`{"n":1}`),
		Header:  nats.Header{},
	}
	msg.Header.Set("Nats-Msg-Id", "client-test-dedupe-1")
	require.NoError(t, client.PublishMsgToStream(ctx, msg))

	// The same Nats-Msg-Id is absorbed by server-side duplicate suppression.
	require.NoError(t, client.PublishMsgToStream(ctx, msg))

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestCreateStreamIsIdempotent(t *testing.T) {
	client := startTestClient(t, WithMaxReconnects(0))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg := jetstream.StreamConfig{
		Name:     "CLIENT_TOPOLOGY",
		Subjects: []string{"client.topo.>"},
	}
	_, err := client.CreateStream(ctx, cfg)
	require.NoError(t, err)

	// Startup re-runs topology setup; an existing stream is not an error.
	_, err = client.CreateStream(ctx, cfg)
	require.NoError(t, err)
}
