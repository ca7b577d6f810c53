package lifecycle

import "context"

// Component defines the lifecycle interface that all managed components must
// implement. The manager orchestrates startup in registration order and
// shutdown in reverse order.
type Component interface {
	// Start initializes and starts the component.
	// Must be idempotent and respect the context for cancellation.
	Start(ctx context.Context) error

	// Stop gracefully stops the component.
	// Should respect the context deadline for graceful shutdown timeout.
	Stop(ctx context.Context) error

	// Name returns the human-readable name of the component.
	Name() string
}
