package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLayer(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "telemetry-ingest", cfg.Service.Name)
	assert.Equal(t, ":8080", cfg.Ingress.Addr)
	assert.Equal(t, 5, cfg.Queue.MaxDeliver)
	assert.Equal(t, 30*time.Second, cfg.Queue.AckWait.Std())
	assert.Equal(t, 14*24*time.Hour, cfg.Queue.DLQMaxAge.Std())
	assert.False(t, cfg.Influx.Enabled)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "+07:00", cfg.Normalize.TimezoneOffset)
	assert.Equal(t, time.Hour, cfg.Normalize.StaleAfter.Std())
}

func TestLoadMergesLayersInOrder(t *testing.T) {
	base := writeLayer(t, "base.json", `{
		"service": {"environment": "staging"},
		"ingress": {"rate_limit": 50, "rate_burst": 100},
		"queue": {"max_deliver": 3}
	}`)
	override := writeLayer(t, "override.json", `{
		"queue": {"max_deliver": 7}
	}`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Service.Environment)
	assert.Equal(t, "telemetry-ingest", cfg.Service.Name, "untouched keys keep defaults")
	assert.Equal(t, 50.0, cfg.Ingress.RateLimit)
	assert.Equal(t, 7, cfg.Queue.MaxDeliver, "later layers win")
}

func TestLoadParsesDayDurations(t *testing.T) {
	layer := writeLayer(t, "cfg.json", `{
		"queue": {"dlq_max_age": "14d"},
		"archive": {"retention": "30d"}
	}`)

	cfg, err := Load(layer)
	require.NoError(t, err)
	assert.Equal(t, 14*24*time.Hour, cfg.Queue.DLQMaxAge.Std())
	assert.Equal(t, 30*24*time.Hour, cfg.Archive.Retention.Std())
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	layer := writeLayer(t, "cfg.json", `{"ingress": {"adress": ":8080"}}`)

	_, err := Load(layer)
	require.Error(t, err, "misspelled keys fail instead of riding defaults")
	assert.Contains(t, err.Error(), "schema")
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	layer := writeLayer(t, "cfg.json", `{"ingress": `)
	_, err := Load(layer)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MUNBON_POSTGRES_DSN", "postgres://prod:secret@db:5432/munbon")
	t.Setenv("MUNBON_INGRESS_RATE_LIMIT", "25")
	t.Setenv("MUNBON_ARCHIVE_ENABLED", "false")
	t.Setenv("MUNBON_QUEUE_ACK_WAIT", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://prod:secret@db:5432/munbon", cfg.Postgres.DSN)
	assert.Equal(t, 25.0, cfg.Ingress.RateLimit)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Queue.AckWait.Std())
}

func TestEnvOverrideBeatsFileLayer(t *testing.T) {
	layer := writeLayer(t, "cfg.json", `{"nats": {"url": "nats://file:4222"}}`)
	t.Setenv("MUNBON_NATS_URL", "nats://env:4222")

	cfg, err := Load(layer)
	require.NoError(t, err)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
}

func TestNormalizeOverrides(t *testing.T) {
	layer := writeLayer(t, "cfg.json", `{
		"normalize": {"timezone_offset": "+05:30", "stale_after": "30m"}
	}`)
	cfg, err := Load(layer)
	require.NoError(t, err)
	assert.Equal(t, "+05:30", cfg.Normalize.TimezoneOffset)
	assert.Equal(t, 30*time.Minute, cfg.Normalize.StaleAfter.Std())

	t.Setenv("MUNBON_NORMALIZE_TIMEZONE_OFFSET", "-03:00")
	t.Setenv("MUNBON_NORMALIZE_STALE_AFTER", "2h")
	cfg, err = Load(layer)
	require.NoError(t, err)
	assert.Equal(t, "-03:00", cfg.Normalize.TimezoneOffset)
	assert.Equal(t, 2*time.Hour, cfg.Normalize.StaleAfter.Std())
}

func TestValidateRejectsBadTimezoneOffset(t *testing.T) {
	cfg := Default()
	cfg.Normalize.TimezoneOffset = "Asia/Bangkok"
	require.Error(t, cfg.Validate())

	cfg.Normalize.TimezoneOffset = "+07:00"
	cfg.Normalize.StaleAfter = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsPortCollision(t *testing.T) {
	cfg := Default()
	cfg.Ops.Addr = cfg.Ingress.Addr
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresInfluxFieldsWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.Influx.Enabled = true
	require.Error(t, cfg.Validate())

	cfg.Influx.URL = "http://influx:8086"
	cfg.Influx.Token = "tok"
	cfg.Influx.Org = "munbon"
	cfg.Influx.Bucket = "telemetry"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadWebhookURL(t *testing.T) {
	cfg := Default()
	cfg.Webhook.Enabled = true
	cfg.Webhook.URL = "not a url"
	require.Error(t, cfg.Validate())

	cfg.Webhook.URL = "https://hooks.example.com/telemetry"
	require.NoError(t, cfg.Validate())
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30s", 30 * time.Second, true},
		{"1.5h", 90 * time.Minute, true},
		{"14d", 14 * 24 * time.Hour, true},
		{"0.5d", 12 * time.Hour, true},
		{"24h0m0s", 24 * time.Hour, true},
		{"", 0, false},
		{"fast", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.Std(), tc.in)
	}
}
