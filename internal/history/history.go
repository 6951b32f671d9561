// Package history persists terminal job outcomes so past deployments
// survive restarts and can be audited per host.
package history

import (
	"context"
	"time"
)

// Record is one terminal job outcome.
type Record struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	HostID      string    `json:"hostId"`
	Action      string    `json:"action"`
	ProfileID   string    `json:"profileId"`
	Mode        string    `json:"mode"`
	Status      string    `json:"status"`
	Port        string    `json:"port,omitempty"`
	Error       string    `json:"error,omitempty"`
	Attempt     int       `json:"attempt"`
	ElapsedMs   int64     `json:"elapsedMs"`
	CompletedAt time.Time `json:"completedAt"`
}

// Store persists and queries deployment records.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	ByHost(ctx context.Context, hostID string, limit int) ([]Record, error)
	Close() error
}
