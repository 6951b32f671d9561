// Package strategy holds the pluggable per-host remote-execution strategies.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/queue"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/hosts"
)

// ErrNoStrategy is returned when no registered strategy supports a host.
// This is a configuration error: retrying cannot fix it.
var ErrNoStrategy = errors.New("no strategy supports host")

// Strategy performs a job's remote action against one class of host.
type Strategy interface {
	// Name identifies the strategy in logs and registration listings.
	Name() string
	// Supports reports whether this strategy can execute against the host.
	Supports(h hosts.Host) bool
	// Execute performs one job attempt. Remote failures are reported as a
	// Result with status ERROR or TIMEOUT, not as a returned error.
	Execute(ctx context.Context, job queue.Job, ec queue.ExecContext) (queue.Result, error)
}

// Registry is an append-only, ordered collection of strategies. Selection
// iterates in registration order and picks the first match.
type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a strategy. Registration order decides precedence.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = append(r.strategies, s)
}

// ForHost returns the first registered strategy supporting the host.
func (r *Registry) ForHost(h hosts.Host) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.strategies {
		if s.Supports(h) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (os %s)", ErrNoStrategy, h.ID, h.OS)
}

// Names lists registered strategies in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	return names
}
