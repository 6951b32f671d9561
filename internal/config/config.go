// Package config loads and validates the orchestrator configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/pkg/logging"
)

// Profile is a named bundle of deployment parameters. Profiles are copied
// into jobs at enqueue time; editing a profile never affects running jobs.
type Profile struct {
	ID            string `yaml:"id" validate:"required"`
	FQBN          string `yaml:"fqbn" validate:"required"`
	MaxParallel   int    `yaml:"max_parallel" validate:"gte=1"`
	JobTimeoutMs  int    `yaml:"job_timeout_ms" validate:"gte=0"`
	RetryCount    int    `yaml:"retry_count" validate:"gte=0"`
	DefaultSketch string `yaml:"default_sketch"`
}

// JobTimeout returns the per-job timeout, or zero for the strategy default.
func (p Profile) JobTimeout() time.Duration {
	return time.Duration(p.JobTimeoutMs) * time.Millisecond
}

// QueueConfig tunes scheduler pacing shared by all profiles.
type QueueConfig struct {
	// ThrottleMs is the fixed delay between consecutive job starts.
	ThrottleMs int `yaml:"throttle_ms" validate:"gte=0"`
	// RetryDelayMs is the fixed pause before a retried job is rescheduled.
	RetryDelayMs int `yaml:"retry_delay_ms" validate:"gte=0"`
}

// Throttle returns the inter-start throttle interval.
func (q QueueConfig) Throttle() time.Duration {
	return time.Duration(q.ThrottleMs) * time.Millisecond
}

// RetryDelay returns the delay applied before rescheduling a retried job.
func (q QueueConfig) RetryDelay() time.Duration {
	return time.Duration(q.RetryDelayMs) * time.Millisecond
}

// AgentConfig describes how the remote helper process is invoked.
type AgentConfig struct {
	// Windows is the argv prefix for the Windows remote-shell helper.
	Windows []string `yaml:"windows"`
	// SSH is the argv prefix for the ssh-based helper used on Linux/macOS.
	SSH []string `yaml:"ssh"`
	// CallTimeoutMs bounds one helper invocation. Zero uses the default.
	CallTimeoutMs int `yaml:"call_timeout_ms" validate:"gte=0"`
}

// CallTimeout returns the per-call timeout for helper invocations.
func (a AgentConfig) CallTimeout() time.Duration {
	return time.Duration(a.CallTimeoutMs) * time.Millisecond
}

// CacheConfig selects the compile-cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory redis"`
	// RedisURL is used when Backend is "redis" (redis://host:port/db).
	RedisURL string `yaml:"redis_url"`
	// TTLMinutes bounds how long a compile result stays reusable.
	TTLMinutes int `yaml:"ttl_minutes" validate:"gte=0"`
}

// TTL returns the compile-cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// HistoryConfig controls the persistent deployment history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig holds the HTTP API settings.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root configuration document.
type Config struct {
	Logging       logging.Config `yaml:"logging"`
	API           APIConfig      `yaml:"api"`
	Queue         QueueConfig    `yaml:"queue"`
	Agent         AgentConfig    `yaml:"agent"`
	Cache         CacheConfig    `yaml:"cache"`
	History       HistoryConfig  `yaml:"history"`
	ActiveProfile string         `yaml:"active_profile"`
	Profiles      []Profile      `yaml:"profiles" validate:"dive"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Logging: logging.DefaultConfig(),
		API:     APIConfig{Addr: ":8087"},
		Queue:   QueueConfig{ThrottleMs: 0, RetryDelayMs: 500},
		Cache:   CacheConfig{Backend: "memory", TTLMinutes: 60},
		History: HistoryConfig{Enabled: true, Path: "deploy-history.db"},
	}
}

// Load reads, parses, and validates a YAML configuration file. Missing
// sections fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks structural constraints and cross-field consistency.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Profiles))
	for _, p := range c.Profiles {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("invalid config: duplicate profile id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	if c.ActiveProfile != "" {
		if _, ok := seen[c.ActiveProfile]; !ok {
			return fmt.Errorf("invalid config: active_profile %q not defined", c.ActiveProfile)
		}
	}
	return nil
}

// Profile returns the profile with the given id.
func (c Config) Profile(id string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}
