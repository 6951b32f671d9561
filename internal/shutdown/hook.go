// Package shutdown coordinates graceful teardown of the orchestrator.
package shutdown

import "context"

// Standard priorities for shutdown hooks (higher = earlier execution).
const (
	// PriorityHTTPServer stops accepting new API requests first.
	PriorityHTTPServer = 90

	// PriorityQueue drains or abandons in-flight deployment jobs.
	PriorityQueue = 80

	// PriorityHistory closes the deployment history store.
	PriorityHistory = 70

	// PriorityCache closes compile-cache connections.
	PriorityCache = 60
)

// HookFunc performs one component's shutdown logic. The context is
// cancelled when the hook timeout expires.
type HookFunc func(ctx context.Context) error

// Hook is a named shutdown step.
type Hook struct {
	// Name identifies the hook for logging purposes.
	Name string

	// Priority determines execution order. Higher priorities execute first.
	Priority int

	// Fn is the shutdown function to execute.
	Fn HookFunc
}
