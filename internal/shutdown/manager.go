package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/pkg/logging"
)

// DefaultOverallTimeout bounds the whole shutdown sequence.
const DefaultOverallTimeout = 30 * time.Second

// DefaultHookTimeout bounds a single hook.
const DefaultHookTimeout = 10 * time.Second

// Manager runs registered hooks in priority order on shutdown.
type Manager struct {
	overallTimeout time.Duration
	hookTimeout    time.Duration
	signalHandler  *SignalHandler
	logger         *logging.Logger

	mu           sync.Mutex
	hooks        []Hook
	errors       []error
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewManager creates a shutdown manager with default timeouts.
func NewManager(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		overallTimeout: DefaultOverallTimeout,
		hookTimeout:    DefaultHookTimeout,
		signalHandler:  NewSignalHandler(),
		logger:         logger.WithModule("shutdown"),
		done:           make(chan struct{}),
	}
}

// Register adds a shutdown hook. Higher priority hooks run first.
func (m *Manager) Register(name string, priority int, fn HookFunc) {
	m.mu.Lock()
	m.hooks = append(m.hooks, Hook{Name: name, Priority: priority, Fn: fn})
	m.mu.Unlock()
	m.logger.Debug("registered shutdown hook", "name", name, "priority", priority)
}

// ListenForSignals triggers shutdown on the first OS signal. The returned
// channel closes when shutdown completes.
func (m *Manager) ListenForSignals() <-chan struct{} {
	sigChan := m.signalHandler.Listen()

	go func() {
		sig, ok := <-sigChan
		if ok {
			m.logger.Info("received shutdown signal", "signal", sig.String())
			m.Shutdown()
		}
	}()

	return m.done
}

// Shutdown runs all hooks once. Later calls are no-ops.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.overallTimeout)
		defer cancel()

		m.mu.Lock()
		hooks := append([]Hook(nil), m.hooks...)
		m.mu.Unlock()

		sort.SliceStable(hooks, func(i, j int) bool {
			return hooks[i].Priority > hooks[j].Priority
		})

		m.logger.Info("starting graceful shutdown", "hooks", len(hooks))

		for _, hook := range hooks {
			if ctx.Err() != nil {
				m.addError(fmt.Errorf("shutdown timeout exceeded before hook %s", hook.Name))
				m.logger.Warn("shutdown timeout exceeded, remaining hooks skipped")
				break
			}
			m.runHook(ctx, hook)
		}

		m.signalHandler.Stop()
		m.logger.Info("graceful shutdown complete", "errors", len(m.Errors()))
		close(m.done)
	})
}

// Done returns a channel closed when shutdown has completed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Errors returns the errors collected during shutdown.
func (m *Manager) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.errors...)
}

func (m *Manager) runHook(ctx context.Context, hook Hook) {
	hookCtx, cancel := context.WithTimeout(ctx, m.hookTimeout)
	defer cancel()

	start := time.Now()
	err := runWithRecovery(hookCtx, hook)
	elapsed := time.Since(start)

	if err != nil {
		m.addError(fmt.Errorf("hook %s: %w", hook.Name, err))
		m.logger.Error("shutdown hook failed",
			"name", hook.Name, "elapsed", elapsed.String(), "error", err.Error())
		return
	}
	m.logger.Debug("shutdown hook finished", "name", hook.Name, "elapsed", elapsed.String())
}

func (m *Manager) addError(err error) {
	m.mu.Lock()
	m.errors = append(m.errors, err)
	m.mu.Unlock()
}

// runWithRecovery converts a hook panic into an error.
func runWithRecovery(ctx context.Context, hook Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook.Fn(ctx)
}
