package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
)

// ErrJobNotFound is returned when a job id is unknown to the queue.
var ErrJobNotFound = errors.New("job not found")

// ErrJobRunning is returned when cancellation is requested for a job that
// already started. Interrupting in-flight remote work is unsupported.
var ErrJobRunning = errors.New("job already running, cancellation rejected")

// ErrJobTerminal is returned when cancellation is requested for a job that
// already finished.
var ErrJobTerminal = errors.New("job already terminal")

// permanentError marks an executor failure that gains nothing from retry,
// such as a missing strategy for a host's OS.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the queue settles the job as failed without
// consuming retry attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Config tunes one queue instance.
type Config struct {
	// MaxParallel bounds how many jobs may be running at once.
	MaxParallel int
	// RetryCount is the retry budget for orchestration-level faults.
	RetryCount int
	// Throttle is the minimum interval between consecutive job starts.
	Throttle time.Duration
	// RetryDelay is the pause before a retried job is rescheduled.
	RetryDelay time.Duration
	// TelemetryWindow bounds the sliding window of recent completions.
	TelemetryWindow int
}

// DefaultConfig returns a conservative queue configuration.
func DefaultConfig() Config {
	return Config{
		MaxParallel:     4,
		RetryCount:      1,
		RetryDelay:      500 * time.Millisecond,
		TelemetryWindow: 50,
	}
}

// Queue owns the job table, the waiting FIFO, and the active-job set.
// All shared state is guarded by one mutex; callers only ever receive
// copies, never live references.
type Queue struct {
	mu  sync.Mutex
	cfg Config

	executor Executor
	jobs     map[string]*Job
	contexts map[string]ExecContext
	waiting  []string
	running  map[string]struct{}

	// scheduling guards the single scheduling pass; rerun remembers that
	// another pass was requested while one was in flight.
	scheduling bool
	rerun      bool
	lastStart  time.Time

	telemetry telemetryWindow

	// pubMu serializes snapshot broadcasts so the sticky last value can
	// never regress to an older snapshot.
	pubMu  sync.Mutex
	bus    *bus.EventBus
	logger bus.Logger

	baseCtx context.Context
}

// Option configures the Queue.
type Option func(*Queue)

// WithEventBus attaches the bus used for job events and snapshot broadcasts.
func WithEventBus(b *bus.EventBus) Option {
	return func(q *Queue) { q.bus = b }
}

// WithLogger sets the queue logger.
func WithLogger(logger bus.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// New creates a queue that hands jobs to the given executor.
func New(cfg Config, executor Executor, opts ...Option) *Queue {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if cfg.TelemetryWindow <= 0 {
		cfg.TelemetryWindow = 50
	}

	q := &Queue{
		cfg:       cfg,
		executor:  executor,
		jobs:      make(map[string]*Job),
		contexts:  make(map[string]ExecContext),
		running:   make(map[string]struct{}),
		telemetry: newTelemetryWindow(cfg.TelemetryWindow),
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue creates a job in queued state, appends it to the waiting FIFO,
// and triggers a scheduling pass. The returned Job is a snapshot copy.
func (q *Queue) Enqueue(ctx context.Context, input Input) Job {
	job := &Job{
		ID:         uuid.NewString(),
		HostID:     input.HostID,
		Action:     input.Action,
		ProfileID:  input.ProfileID,
		SketchPath: input.SketchPath,
		HexPath:    input.HexPath,
		Mode:       input.Mode,
		Status:     StatusQueued,
		Metrics:    Metrics{QueuedAt: time.Now()},
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.contexts[job.ID] = input.Context
	q.waiting = append(q.waiting, job.ID)
	snap := copyJob(job)
	q.mu.Unlock()

	q.emit(ctx, bus.EventJobEnqueued, snap, nil)
	q.publishSnapshot(ctx)
	go q.schedule()

	return snap
}

// Cancel removes a waiting job from scheduling. Cancelling a running job is
// rejected; cancelling a terminal job is reported as such.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	switch {
	case job.Status == StatusRunning:
		q.mu.Unlock()
		if q.logger != nil {
			q.logger.Warn("cancellation rejected for running job", "jobID", jobID)
		}
		return fmt.Errorf("%w: %s", ErrJobRunning, jobID)
	case job.Status.Terminal():
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobTerminal, jobID)
	}

	q.cancelWaitingLocked(job)
	snap := copyJob(job)
	q.mu.Unlock()

	q.emit(ctx, bus.EventJobCancelled, snap, nil)
	q.publishSnapshot(ctx)
	return nil
}

// CancelAll cancels every waiting job and leaves running jobs untouched.
// It returns the number of jobs cancelled.
func (q *Queue) CancelAll(ctx context.Context) int {
	q.mu.Lock()
	cancelled := make([]Job, 0, len(q.waiting))
	for _, id := range q.waiting {
		job := q.jobs[id]
		job.Status = StatusCancelled
		now := time.Now()
		job.Metrics.CompletedAt = &now
		job.Metrics.ElapsedMs = 0
		q.telemetry.recordCancelled()
		cancelled = append(cancelled, copyJob(job))
	}
	q.waiting = q.waiting[:0]
	q.mu.Unlock()

	for _, snap := range cancelled {
		q.emit(ctx, bus.EventJobCancelled, snap, nil)
	}
	if len(cancelled) > 0 {
		q.publishSnapshot(ctx)
	}
	return len(cancelled)
}

// cancelWaitingLocked transitions one waiting job to cancelled.
func (q *Queue) cancelWaitingLocked(job *Job) {
	for i, id := range q.waiting {
		if id == job.ID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	job.Status = StatusCancelled
	now := time.Now()
	job.Metrics.CompletedAt = &now
	job.Metrics.ElapsedMs = 0
	q.telemetry.recordCancelled()
}

// Get returns a copy of the job with the given id.
func (q *Queue) Get(jobID string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return copyJob(job), true
}

// Context returns the execution context stored for a job. Contexts are
// retained for terminal jobs so failed work can be re-enqueued verbatim.
func (q *Queue) Context(jobID string) (ExecContext, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ec, ok := q.contexts[jobID]
	return ec, ok
}

// Snapshot recomputes the aggregate view from the live job table.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) snapshotLocked() Snapshot {
	snap := Snapshot{Jobs: make([]Job, 0, len(q.jobs))}
	for _, job := range q.jobs {
		snap.Jobs = append(snap.Jobs, copyJob(job))
		switch job.Status {
		case StatusRunning:
			snap.ActiveCount++
		case StatusSucceeded:
			snap.CompletedCount++
		case StatusFailed:
			snap.FailedCount++
		}
	}
	snap.WaitingCount = len(q.waiting)
	sort.Slice(snap.Jobs, func(i, j int) bool {
		return snap.Jobs[i].Metrics.QueuedAt.Before(snap.Jobs[j].Metrics.QueuedAt)
	})
	return snap
}

// Telemetry computes aggregates over the sliding completion window.
func (q *Queue) Telemetry() Telemetry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.telemetry.compute(time.Now())
}

// schedule is the single coordinating loop. Only one pass runs at a time;
// passes requested while one is in flight are coalesced into a rerun.
func (q *Queue) schedule() {
	q.mu.Lock()
	if q.scheduling {
		q.rerun = true
		q.mu.Unlock()
		return
	}
	q.scheduling = true

	for {
		q.rerun = false

		for len(q.running) < q.cfg.MaxParallel && len(q.waiting) > 0 {
			if q.cfg.Throttle > 0 && !q.lastStart.IsZero() {
				wait := q.cfg.Throttle - time.Since(q.lastStart)
				if wait > 0 {
					// The throttle pause is the only blocking point in the
					// pass; the lock is released so completions and cancels
					// keep flowing.
					q.mu.Unlock()
					time.Sleep(wait)
					q.mu.Lock()
					continue
				}
			}

			id := q.waiting[0]
			q.waiting = q.waiting[1:]

			job := q.jobs[id]
			job.Status = StatusRunning
			job.Metrics.Attempt++
			now := time.Now()
			job.Metrics.StartedAt = &now
			q.lastStart = now
			q.running[id] = struct{}{}

			snap := copyJob(job)
			ec := q.contexts[id]

			q.mu.Unlock()
			q.emit(q.baseCtx, bus.EventJobStarted, snap, nil)
			q.publishSnapshot(q.baseCtx)
			go q.run(id, snap, ec)
			q.mu.Lock()
		}

		if !q.rerun {
			break
		}
	}

	q.scheduling = false
	q.mu.Unlock()
}

// run executes one attempt off the scheduling loop and feeds the outcome
// back into the queue.
func (q *Queue) run(jobID string, job Job, ec ExecContext) {
	res, err := q.safeExecute(job, ec)
	q.complete(jobID, res, err)
}

// safeExecute invokes the executor with panic containment, so a misbehaving
// strategy can never kill the scheduler.
func (q *Queue) safeExecute(job Job, ec ExecContext) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return q.executor(q.baseCtx, job, ec)
}

// complete applies one attempt's outcome: retry, failure, or success.
func (q *Queue) complete(jobID string, res Result, err error) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return
	}
	delete(q.running, jobID)

	now := time.Now()
	elapsed := int64(0)
	if job.Metrics.StartedAt != nil {
		elapsed = now.Sub(*job.Metrics.StartedAt).Milliseconds()
	}

	switch {
	case err != nil && !isPermanent(err) && job.Metrics.Attempt <= q.cfg.RetryCount:
		// Orchestration fault with budget left: back to the end of the FIFO
		// with timing cleared, attempt count preserved.
		job.Status = StatusQueued
		job.Metrics.StartedAt = nil
		job.Metrics.CompletedAt = nil
		job.Metrics.ElapsedMs = 0
		q.waiting = append(q.waiting, jobID)
		snap := copyJob(job)
		q.mu.Unlock()

		if q.logger != nil {
			q.logger.Warn("job attempt failed, retrying",
				"jobID", jobID,
				"attempt", snap.Metrics.Attempt,
				"error", err.Error(),
			)
		}
		q.emit(q.baseCtx, bus.EventJobRetried, snap, map[string]any{
			"attempt": snap.Metrics.Attempt,
			"error":   err.Error(),
		})
		q.publishSnapshot(q.baseCtx)

		if q.cfg.RetryDelay > 0 {
			time.AfterFunc(q.cfg.RetryDelay, func() { q.schedule() })
		} else {
			go q.schedule()
		}
		return

	case err != nil:
		job.Status = StatusFailed
		job.Error = err.Error()
		job.Metrics.CompletedAt = &now
		job.Metrics.ElapsedMs = elapsed
		q.telemetry.recordCompletion(now, elapsed, false)
		snap := copyJob(job)
		q.mu.Unlock()

		if q.logger != nil {
			q.logger.Error("job failed",
				"jobID", jobID,
				"attempt", snap.Metrics.Attempt,
				"error", err.Error(),
			)
		}
		q.emit(q.baseCtx, bus.EventJobFailed, snap, map[string]any{"error": err.Error()})

	default:
		job.Result = &res
		job.Metrics.CompletedAt = &now
		job.Metrics.ElapsedMs = elapsed

		if res.Status == ResultOK {
			job.Status = StatusSucceeded
			q.telemetry.recordCompletion(now, elapsed, true)
		} else {
			// A structured ERROR or TIMEOUT means the remote attempt ran
			// and failed; the queue does not retry it.
			job.Status = StatusFailed
			job.Error = res.Error
			if job.Error == "" {
				job.Error = fmt.Sprintf("remote execution reported %s", res.Status)
			}
			q.telemetry.recordCompletion(now, elapsed, false)
		}
		snap := copyJob(job)
		q.mu.Unlock()

		if snap.Status == StatusSucceeded {
			q.emit(q.baseCtx, bus.EventJobCompleted, snap, nil)
		} else {
			q.emit(q.baseCtx, bus.EventJobFailed, snap, map[string]any{"error": snap.Error})
		}
	}

	q.publishSnapshot(q.baseCtx)
	// Backfill the freed concurrency slot.
	q.schedule()
}

// emit publishes a discrete job event.
func (q *Queue) emit(ctx context.Context, eventType bus.EventType, job Job, extra map[string]any) {
	if q.bus == nil {
		return
	}

	data := map[string]any{
		"job":    job,
		"jobID":  job.ID,
		"hostID": job.HostID,
	}
	for k, v := range extra {
		data[k] = v
	}

	q.bus.Publish(ctx, bus.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "deploy.queue",
		Timestamp: time.Now(),
		Data:      data,
	})
}

// publishSnapshot broadcasts the recomputed snapshot as a sticky event.
// Compute and publish happen under one publisher lock, keeping the cached
// last value strictly newest-wins.
func (q *Queue) publishSnapshot(ctx context.Context) {
	if q.bus == nil {
		return
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	q.mu.Lock()
	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.bus.PublishSticky(ctx, bus.Event{
		ID:        uuid.NewString(),
		Type:      bus.EventSnapshotChanged,
		Source:    "deploy.queue",
		Timestamp: time.Now(),
		Data:      map[string]any{"snapshot": snap},
	})
}
