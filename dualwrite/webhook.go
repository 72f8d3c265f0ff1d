package dualwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
	"github.com/SubhajL/munbon2-backend-sub001/pkg/retry"
	"github.com/SubhajL/munbon2-backend-sub001/telemetry"
)

// WebhookConfig holds settings for the generic HTTP replication target.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// WebhookStore POSTs each reading as JSON to a configured URL with bounded
// retries. 4xx responses are not retried; the payload will not get better.
type WebhookStore struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookStore creates the store.
func NewWebhookStore(cfg WebhookConfig) (*WebhookStore, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "WebhookStore", "NewWebhookStore", "check url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookStore{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name implements SecondaryStore.
func (s *WebhookStore) Name() string { return "webhook" }

// WriteReading implements SecondaryStore.
func (s *WebhookStore) WriteReading(ctx context.Context, reading *telemetry.CanonicalReading) error {
	body, err := json.Marshal(reading)
	if err != nil {
		return errors.WrapInvalid(err, "WebhookStore", "WriteReading", "encode reading")
	}

	err = retry.Do(ctx, retry.Brief(), func() error {
		return s.post(ctx, body)
	})
	if err != nil {
		return errors.WrapTransient(err, "WebhookStore", "WriteReading", "post reading")
	}
	return nil
}

func (s *WebhookStore) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return retry.NonRetryable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.NonRetryable(fmt.Errorf("webhook rejected reading: %s", resp.Status))
	default:
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
}

// Close implements SecondaryStore.
func (s *WebhookStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
