package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
)

// managed tracks a component together with its lifecycle state and its named
// child context. The component itself never stores the context; only the
// manager does, so it can cancel individual components during shutdown.
type managed struct {
	component  Component
	state      State
	ctx        context.Context
	cancel     context.CancelFunc
	startOrder int
	lastError  error
}

// Manager owns the ordered set of pipeline components. Components start in
// registration order and stop in reverse order, so downstream consumers come
// up before the surfaces that feed them and drain after.
type Manager struct {
	mu         sync.Mutex
	components []*managed
	byName     map[string]*managed
	logger     *slog.Logger
	started    bool
}

// NewManager creates an empty component manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		byName: make(map[string]*managed),
		logger: logger.With("component", "manager"),
	}
}

// Register adds a component. Registration order is start order.
func (m *Manager) Register(c Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Manager", "Register", "register after start")
	}
	if _, exists := m.byName[c.Name()]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("component %q already registered", c.Name()),
			"Manager", "Register", "duplicate component")
	}

	mc := &managed{component: c, state: StateCreated}
	m.components = append(m.components, mc)
	m.byName[c.Name()] = mc
	return nil
}

// StartAll initializes and starts every registered component in order. The
// first failure stops the sequence and shuts down the components already
// started, in reverse order.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.ErrAlreadyStarted
	}

	for i, mc := range m.components {
		name := mc.component.Name()

		if err := mc.component.Initialize(); err != nil {
			mc.state = StateFailed
			mc.lastError = err
			m.stopStartedLocked(30 * time.Second)
			return errors.Wrap(err, "Manager", "StartAll", fmt.Sprintf("initialize %s", name))
		}
		mc.state = StateInitialized

		mc.ctx, mc.cancel = context.WithCancel(ctx)
		if err := mc.component.Start(mc.ctx); err != nil {
			mc.state = StateFailed
			mc.lastError = err
			mc.cancel()
			m.stopStartedLocked(30 * time.Second)
			return errors.Wrap(err, "Manager", "StartAll", fmt.Sprintf("start %s", name))
		}
		mc.state = StateStarted
		mc.startOrder = i
		m.logger.Info("component started", "name", name, "order", i)
	}

	m.started = true
	return nil
}

// StopAll stops every started component in reverse start order. All stop
// errors are collected; a failing component does not prevent the rest of the
// pipeline from draining.
func (m *Manager) StopAll(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	err := m.stopStartedLocked(timeout)
	m.started = false
	return err
}

// stopStartedLocked stops started components in reverse order. Caller holds
// the lock.
func (m *Manager) stopStartedLocked(timeout time.Duration) error {
	var errs []error
	for i := len(m.components) - 1; i >= 0; i-- {
		mc := m.components[i]
		if mc.state != StateStarted {
			continue
		}
		name := mc.component.Name()

		if err := mc.component.Stop(timeout); err != nil {
			mc.state = StateFailed
			mc.lastError = err
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
			m.logger.Error("component stop failed", "name", name, "error", err)
		} else {
			mc.state = StateStopped
			m.logger.Info("component stopped", "name", name)
		}
		if mc.cancel != nil {
			mc.cancel()
		}
	}

	if len(errs) > 0 {
		msg := "shutdown errors:"
		for i, err := range errs {
			msg += fmt.Sprintf("\n  [%d] %v", i+1, err)
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

// Health returns the health snapshot of every registered component.
func (m *Manager) Health() map[string]HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]HealthStatus, len(m.components))
	for _, mc := range m.components {
		result[mc.component.Name()] = mc.component.Health()
	}
	return result
}

// States returns the lifecycle state of every registered component.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]State, len(m.components))
	for _, mc := range m.components {
		result[mc.component.Name()] = mc.state
	}
	return result
}
