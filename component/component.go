// Package component defines the lifecycle contract shared by every pipeline
// component and the manager that starts and stops them in order.
//
// All components follow the unified pattern:
//   - Initialize() error                  // setup/create only, NO context
//   - Start(ctx context.Context) error    // start with context passed through
//   - Stop(timeout time.Duration) error   // graceful shutdown with timeout
//
// Components never store the context they receive; the manager holds a named
// child context per component so individual components can be cancelled
// during shutdown.
package component

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a component.
type State int

const (
	// StateCreated indicates the component was created but not initialized.
	StateCreated State = iota
	// StateInitialized indicates the component was initialized but not started.
	StateInitialized
	// StateStarted indicates the component is running.
	StateStarted
	// StateStopped indicates the component was stopped.
	StateStopped
	// StateFailed indicates the component failed during a lifecycle operation.
	StateFailed
)

// String returns a string representation of the component state.
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HealthStatus is the health snapshot a component reports about itself.
type HealthStatus struct {
	Healthy    bool      `json:"healthy"`
	LastError  string    `json:"last_error,omitempty"`
	ErrorCount int       `json:"error_count"`
	Uptime     time.Duration `json:"uptime"`
	LastCheck  time.Time `json:"last_check"`
}

// Component is the full lifecycle contract. Every pipeline stage (ingress,
// processor, dual-write coordinator, archiver, ops server) implements it.
type Component interface {
	// Name returns the unique component name used in logs, health reports
	// and metrics labels.
	Name() string

	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error

	// Health reports the component's current health.
	Health() HealthStatus
}
