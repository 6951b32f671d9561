// Package cache provides the compile-result cache with memory and Redis backends.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/config"
)

// ErrCacheMiss is returned when a key is not found in the cache.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the storage behind the compile-result memoization. The memory
// backend serves a single instructor station; Redis lets several stations
// share compile results for the same sketch and board.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Health(ctx context.Context) error
	Close() error
	Stats() Stats
}

// Stats holds cache hit/miss counters.
type Stats struct {
	Hits   int64
	Misses int64
	Keys   int64
}

// New builds a cache from configuration. Backend defaults to memory.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.TTL()), nil
	case "redis":
		return NewRedisCache(cfg)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
