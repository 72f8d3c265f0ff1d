package archive

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SubhajL/munbon2-backend-sub001/queue"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSaveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dl := DeadLetter{
		EnvelopeID: "env-1",
		Family:     "moisture",
		Reason:     "store unavailable",
		Deliveries: 5,
		Body:       []byte(`{"id":"env-1"}`),
	}

	inserted, err := store.Save(ctx, dl)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.Save(ctx, dl)
	require.NoError(t, err)
	assert.False(t, inserted, "redelivery collapses onto the first row")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.Get(ctx, "env-1")
	require.NoError(t, err)
	assert.Equal(t, "store unavailable", got.Reason)
	assert.Equal(t, 5, got.Deliveries)
	assert.NotZero(t, got.ArchivedAt)
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
}

func TestStoreListFiltersByFamily(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, family := range []string{"moisture", "weather", "moisture"} {
		_, err := store.Save(ctx, DeadLetter{
			EnvelopeID: string(rune('a' + i)),
			Family:     family,
			Reason:     "r",
			Body:       []byte("{}"),
			ArchivedAt: int64(1000 + i),
		})
		require.NoError(t, err)
	}

	moisture, err := store.List(ctx, "moisture", 10)
	require.NoError(t, err)
	require.Len(t, moisture, 2)
	assert.Equal(t, "c", moisture[0].EnvelopeID, "newest first")

	all, err := store.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStorePrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	_, err := store.Save(ctx, DeadLetter{
		EnvelopeID: "old", Family: "moisture", Reason: "r",
		Body: []byte("{}"), ArchivedAt: old.UnixMilli(),
	})
	require.NoError(t, err)
	_, err = store.Save(ctx, DeadLetter{
		EnvelopeID: "fresh", Family: "moisture", Reason: "r", Body: []byte("{}"),
	})
	require.NoError(t, err)

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

// deadMsg is a minimal jetstream.Msg for header extraction tests.
type deadMsg struct {
	data    []byte
	subject string
	header  nats.Header
}

func (m *deadMsg) Data() []byte                              { return m.data }
func (m *deadMsg) Subject() string                           { return m.subject }
func (m *deadMsg) Reply() string                             { return "" }
func (m *deadMsg) Headers() nats.Header                      { return m.header }
func (m *deadMsg) Metadata() (*jetstream.MsgMetadata, error) { return &jetstream.MsgMetadata{}, nil }
func (m *deadMsg) Ack() error                                { return nil }
func (m *deadMsg) DoubleAck(context.Context) error           { return nil }
func (m *deadMsg) Nak() error                                { return nil }
func (m *deadMsg) NakWithDelay(time.Duration) error          { return nil }
func (m *deadMsg) InProgress() error                         { return nil }
func (m *deadMsg) Term() error                               { return nil }
func (m *deadMsg) TermWithReason(string) error               { return nil }

func TestDeadLetterFromHeaders(t *testing.T) {
	env := queue.NewEnvelope(telemetry.FamilyMoisture, []byte(`{"gatewayId":"0003"}`), "", "")
	data, err := env.Encode()
	require.NoError(t, err)

	header := nats.Header{}
	header.Set(queue.HeaderEnvelopeID, env.ID)
	header.Set(queue.HeaderReason, "store unavailable")
	header.Set(queue.HeaderDeliveries, "5")

	dl := deadLetterFrom(&deadMsg{
		data:    data,
		subject: queue.DLQSubject(telemetry.FamilyMoisture),
		header:  header,
	})

	assert.Equal(t, env.ID, dl.EnvelopeID)
	assert.Equal(t, "moisture", dl.Family)
	assert.Equal(t, "store unavailable", dl.Reason)
	assert.Equal(t, 5, dl.Deliveries)
	assert.Equal(t, env.ReceivedAt, dl.ReceivedAt)
	assert.Equal(t, data, dl.Body)
}

func TestDeadLetterFromCorruptBody(t *testing.T) {
	dl := deadLetterFrom(&deadMsg{
		data:    []byte("not an envelope"),
		subject: queue.DLQSubject(telemetry.FamilyWeather),
		header:  nats.Header{},
	})

	assert.NotEmpty(t, dl.EnvelopeID, "corrupt bodies still get archived under a fresh id")
	assert.Equal(t, "weather", dl.Family)
	assert.Equal(t, "unknown", dl.Reason)
	assert.Zero(t, dl.ReceivedAt)
}
