package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksRunInPriorityOrder(t *testing.T) {
	m := NewManager(nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) HookFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	m.Register("cache", PriorityCache, record("cache"))
	m.Register("http", PriorityHTTPServer, record("http"))
	m.Register("queue", PriorityQueue, record("queue"))

	m.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"http", "queue", "cache"}, order)
	assert.Empty(t, m.Errors())
}

func TestShutdownRunsOnce(t *testing.T) {
	m := NewManager(nil)

	var count int
	m.Register("hook", PriorityQueue, func(ctx context.Context) error {
		count++
		return nil
	})

	m.Shutdown()
	m.Shutdown()
	assert.Equal(t, 1, count)

	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed after shutdown")
	}
}

func TestHookErrorsAreCollected(t *testing.T) {
	m := NewManager(nil)

	m.Register("bad", PriorityQueue, func(ctx context.Context) error {
		return errors.New("close failed")
	})
	var ran bool
	m.Register("good", PriorityCache, func(ctx context.Context) error {
		ran = true
		return nil
	})

	m.Shutdown()

	require.Len(t, m.Errors(), 1)
	assert.Contains(t, m.Errors()[0].Error(), "close failed")
	// A failing hook never stops the remaining ones.
	assert.True(t, ran)
}

func TestHookPanicIsContained(t *testing.T) {
	m := NewManager(nil)

	m.Register("panics", PriorityQueue, func(ctx context.Context) error {
		panic("boom")
	})
	var ran bool
	m.Register("after", PriorityCache, func(ctx context.Context) error {
		ran = true
		return nil
	})

	m.Shutdown()

	require.Len(t, m.Errors(), 1)
	assert.Contains(t, m.Errors()[0].Error(), "panic")
	assert.True(t, ran)
}

func TestHookReceivesTimeoutContext(t *testing.T) {
	m := NewManager(nil)
	m.hookTimeout = 20 * time.Millisecond

	m.Register("slow", PriorityQueue, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	start := time.Now()
	m.Shutdown()

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, m.Errors(), 1)
}
