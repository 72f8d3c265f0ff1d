package dualwrite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

func TestWebhookPostsReadingJSON(t *testing.T) {
	var got telemetry.CanonicalReading
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	store, err := NewWebhookStore(WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	require.NoError(t, err)
	defer store.Close()

	reading := testReading("0003-13")
	require.NoError(t, store.WriteReading(context.Background(), &reading))
	assert.Equal(t, "0003-13", got.SensorID)
	assert.Equal(t, "Bearer token", auth)
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := NewWebhookStore(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	defer store.Close()

	reading := testReading("0003-13")
	require.NoError(t, store.WriteReading(context.Background(), &reading))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	store, err := NewWebhookStore(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	defer store.Close()

	reading := testReading("0003-13")
	assert.Error(t, store.WriteReading(context.Background(), &reading))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGatewayPart(t *testing.T) {
	assert.Equal(t, "0003", gatewayPart("0003-13"))
	assert.Equal(t, "AA-BB", gatewayPart("AA-BB-2"))
	assert.Equal(t, "WL-9", gatewayPart("WL-9-0"), "gateway ids may contain the separator, probe ids never do")
	assert.Equal(t, "solo", gatewayPart("solo"))
}
