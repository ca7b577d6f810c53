package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kubepilot/kubepilot/internal/logging"
)

// Manager orchestrates the lifecycle of multiple components.
// Components start in registration order and stop in reverse order, with a
// shutdown timeout to prevent indefinite hangs.
type Manager struct {
	components      []Component
	started         []Component
	shutdownTimeout time.Duration
	mu              sync.Mutex
	logger          *logging.Logger
}

// NewManager creates a new lifecycle manager with a 30-second shutdown timeout.
func NewManager() *Manager {
	return &Manager{
		shutdownTimeout: 30 * time.Second,
		logger:          logging.GetLogger("lifecycle"),
	}
}

// Register adds a component to the manager. Registration order determines
// startup order; dependencies must be registered before their dependents.
func (m *Manager) Register(component Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if component == nil {
		return fmt.Errorf("cannot register nil component")
	}
	if component.Name() == "" {
		return fmt.Errorf("component must have a non-empty name")
	}
	for _, c := range m.components {
		if c == component {
			return fmt.Errorf("component %s is already registered", component.Name())
		}
	}

	m.components = append(m.components, component)
	m.logger.Debug("Registered component %s", component.Name())
	return nil
}

// Start starts all registered components in order. If any component fails to
// start, the already-started components are stopped in reverse order and an
// error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = nil
	for _, component := range m.components {
		m.logger.Info("Starting %s", component.Name())
		startTime := time.Now()

		if err := component.Start(ctx); err != nil {
			m.logger.Error("Failed to start %s: %v", component.Name(), err)
			m.rollback()
			return fmt.Errorf("initialization failed for %s: %w", component.Name(), err)
		}

		m.started = append(m.started, component)
		m.logger.Info("%s started (took %dms)", component.Name(), time.Since(startTime).Milliseconds())
	}

	m.logger.Info("All components started")
	return nil
}

// Stop stops all started components in reverse order, bounded by the
// shutdown timeout. Stop errors are logged but do not prevent other
// components from stopping; the first error is returned.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	var firstErr error
	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		m.logger.Info("Stopping %s", component.Name())
		if err := component.Stop(ctx); err != nil {
			m.logger.Error("Failed to stop %s: %v", component.Name(), err)
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown failed for %s: %w", component.Name(), err)
			}
		}
	}
	m.started = nil
	return firstErr
}

// rollback stops components started during a failed startup attempt.
// Caller must hold m.mu.
func (m *Manager) rollback() {
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		if err := component.Stop(ctx); err != nil {
			m.logger.Error("Rollback stop failed for %s: %v", component.Name(), err)
		}
	}
	m.started = nil
}
