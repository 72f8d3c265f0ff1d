// Package metric provides Prometheus metrics for the telemetry ingest
// pipeline: a registry owning the scrape surface, core platform metrics
// (service status, message counters, NATS connection state) and domain
// metrics for the ingestion path (invalid payloads, discards, persisted
// readings, quality scores, dead letters, dual-write results).
//
// All metrics live under the "munbon" namespace. Components register their
// own metrics through MetricsRegistry using their component name as the
// service label, and the ops server exposes the registry on /metrics.
package metric
