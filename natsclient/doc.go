// Package natsclient wraps the NATS Go client with circuit breaker
// protection, automatic reconnection and JetStream support.
//
// The telemetry pipeline runs over JetStream work-queue streams; this client
// is the single NATS connection shared by the ingress publisher, the
// processor consumer and the dead-letter archiver. Publishes fail fast while
// the circuit is open (threshold-opened after consecutive failures, half-open
// probe after exponential backoff), connection state feeds the Prometheus
// NATS gauges, and Close drains the connection so in-flight messages settle
// before shutdown.
package natsclient
