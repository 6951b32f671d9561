// Package queue implements the bounded-concurrency deployment job scheduler.
package queue

import (
	"context"
	"time"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/config"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/hosts"
)

// Action is the deployment operation applied to one host.
type Action string

// Supported job actions.
const (
	ActionDetect Action = "detect"
	ActionUpload Action = "upload"
	ActionErase  Action = "erase"
)

// Mode selects between a real deployment and a rehearsal.
type Mode string

// Execution modes.
const (
	ModeNormal Mode = "normal"
	ModeDryRun Mode = "dry-run"
)

// Status is the lifecycle state of a job. Transitions only move forward:
// queued → running → succeeded|failed, with a retry edge back to queued and
// a queued → cancelled edge for jobs that never started.
type Status string

// Job statuses.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// ResultStatus is the outcome class reported by a strategy.
type ResultStatus string

// Strategy result statuses.
const (
	ResultOK      ResultStatus = "OK"
	ResultError   ResultStatus = "ERROR"
	ResultTimeout ResultStatus = "TIMEOUT"
)

// Result is the outcome of one job attempt. It is produced once by a
// strategy and never mutated afterwards.
type Result struct {
	Status    ResultStatus `json:"status"`
	Port      string       `json:"port,omitempty"`
	ElapsedMs int64        `json:"elapsedMs"`
	Logs      []string     `json:"logs,omitempty"`
	Error     string       `json:"error,omitempty"`
	Checksum  string       `json:"checksum,omitempty"`
}

// Metrics tracks job timing. Attempt counts actual executor invocations.
type Metrics struct {
	QueuedAt    time.Time  `json:"queuedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ElapsedMs   int64      `json:"elapsedMs"`
	Attempt     int        `json:"attempt"`
}

// Job is one unit of work: apply an action to one host under one profile.
type Job struct {
	ID         string  `json:"id"`
	HostID     string  `json:"hostId"`
	Action     Action  `json:"action"`
	ProfileID  string  `json:"profileId"`
	SketchPath string  `json:"sketchPath,omitempty"`
	HexPath    string  `json:"hexPath,omitempty"`
	Mode       Mode    `json:"mode"`
	Status     Status  `json:"status"`
	Metrics    Metrics `json:"metrics"`
	Result     *Result `json:"result,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// ExecContext is everything a strategy needs to act on one host. It is
// resolved at enqueue time so later profile or registry edits cannot leak
// into an already queued job.
type ExecContext struct {
	Host       hosts.Host     `json:"host"`
	Profile    config.Profile `json:"profile"`
	FQBN       string         `json:"fqbn"`
	SketchPath string         `json:"sketchPath,omitempty"`
	HexPath    string         `json:"hexPath,omitempty"`
	Mode       Mode           `json:"mode"`
}

// Input is the enqueue contract consumed from the deployment manager.
type Input struct {
	HostID     string
	Action     Action
	ProfileID  string
	SketchPath string
	HexPath    string
	Mode       Mode
	Context    ExecContext
}

// Executor performs one job attempt. A returned error marks an
// orchestration-level fault eligible for retry; a Result with status ERROR
// or TIMEOUT means the remote attempt ran and failed, and is final.
type Executor func(ctx context.Context, job Job, ec ExecContext) (Result, error)

// Snapshot is a point-in-time view of the whole job table.
type Snapshot struct {
	Jobs           []Job `json:"jobs"`
	ActiveCount    int   `json:"activeCount"`
	WaitingCount   int   `json:"waitingCount"`
	CompletedCount int   `json:"completedCount"`
	FailedCount    int   `json:"failedCount"`
}

func copyJob(j *Job) Job {
	jc := *j
	if j.Metrics.StartedAt != nil {
		t := *j.Metrics.StartedAt
		jc.Metrics.StartedAt = &t
	}
	if j.Metrics.CompletedAt != nil {
		t := *j.Metrics.CompletedAt
		jc.Metrics.CompletedAt = &t
	}
	if j.Result != nil {
		rc := *j.Result
		rc.Logs = append([]string(nil), j.Result.Logs...)
		jc.Result = &rc
	}
	return jc
}
