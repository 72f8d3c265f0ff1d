// Package munbon is the root of the telemetry ingestion pipeline for the
// Munbon irrigation sensor network.
//
// The pipeline moves raw gateway reports from field devices into a
// partitioned time-series store:
//
//	device → ingress (HTTP) → JetStream work queue → processor → Postgres
//	                                              ↘ dead letters → SQLite archive
//	                              processor → dual-write → InfluxDB / webhook
//
// Ingress accepts vendor payloads with only shallow checks and answers fast;
// all parsing, normalization, identity resolution and quality scoring happen
// in the processor behind the durable queue. A report is acked only after
// its readings are committed, so delivery is at-least-once end to end and
// duplicates are absorbed by the (sensor_id, time) conflict policy.
//
// Package layout:
//
//   - ingress: device-facing HTTP listener
//   - queue: envelope format, JetStream topology, publisher
//   - normalize: data-driven vendor payload → canonical reading mapping
//   - processor: the consuming pipeline (parse, normalize, resolve, persist)
//   - registry: device identity with first-sight registration
//   - storage/postgres: partitioned primary store
//   - dualwrite: best-effort secondary replication
//   - archive: dead-letter drain into SQLite
//   - ops: health, metrics and device inventory endpoints
//   - component, config, errors, metric, natsclient: shared platform layer
package munbon
