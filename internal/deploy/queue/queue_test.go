package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
)

func okExecutor(ctx context.Context, job Job, ec ExecContext) (Result, error) {
	return Result{Status: ResultOK, Port: "COM3"}, nil
}

func waitTerminal(t *testing.T, q *Queue, jobID string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		j, ok := q.Get(jobID)
		if !ok {
			return false
		}
		job = j
		return j.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func waitIdle(t *testing.T, q *Queue) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = q.Snapshot()
		return snap.ActiveCount == 0 && snap.WaitingCount == 0
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func TestEnqueueRunsJobToSuccess(t *testing.T) {
	q := New(Config{MaxParallel: 2}, okExecutor)

	job := q.Enqueue(context.Background(), Input{HostID: "pc-01", Action: ActionDetect})
	assert.Equal(t, StatusQueued, job.Status)
	assert.NotEmpty(t, job.ID)
	assert.False(t, job.Metrics.QueuedAt.IsZero())

	done := waitTerminal(t, q, job.ID)
	assert.Equal(t, StatusSucceeded, done.Status)
	assert.Equal(t, 1, done.Metrics.Attempt)
	require.NotNil(t, done.Result)
	assert.Equal(t, ResultOK, done.Result.Status)
	assert.Equal(t, "COM3", done.Result.Port)
	assert.NotNil(t, done.Metrics.StartedAt)
	assert.NotNil(t, done.Metrics.CompletedAt)
}

func TestMaxParallelBound(t *testing.T) {
	const maxParallel = 2
	const total = 6

	release := make(chan struct{})
	var current, peak int64

	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		n := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt64(&current, -1)
		return Result{Status: ResultOK}, nil
	}

	q := New(Config{MaxParallel: maxParallel}, executor)
	for i := 0; i < total; i++ {
		q.Enqueue(context.Background(), Input{HostID: "pc", Action: ActionUpload})
	}

	require.Eventually(t, func() bool {
		snap := q.Snapshot()
		return snap.ActiveCount == maxParallel && snap.WaitingCount == total-maxParallel
	}, 5*time.Second, 10*time.Millisecond)

	close(release)
	snap := waitIdle(t, q)

	assert.Equal(t, total, snap.CompletedCount)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(maxParallel))
}

func TestAllJobsReachTerminalState(t *testing.T) {
	var n int64
	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		// Alternate success, structured failure, and orchestration fault.
		switch atomic.AddInt64(&n, 1) % 3 {
		case 0:
			return Result{}, errors.New("agent unreachable")
		case 1:
			return Result{Status: ResultOK}, nil
		default:
			return Result{Status: ResultError, Error: "upload failed"}, nil
		}
	}

	q := New(Config{MaxParallel: 3, RetryCount: 1}, executor)
	const total = 9
	for i := 0; i < total; i++ {
		q.Enqueue(context.Background(), Input{HostID: "pc", Action: ActionUpload})
	}

	snap := waitIdle(t, q)
	terminal := 0
	for _, job := range snap.Jobs {
		if job.Status.Terminal() {
			terminal++
		}
	}
	assert.Equal(t, total, terminal)
	assert.Equal(t, total, snap.CompletedCount+snap.FailedCount)
}

func TestRetryBudgetExhausted(t *testing.T) {
	const retryCount = 2

	var invocations int64
	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		atomic.AddInt64(&invocations, 1)
		return Result{}, errors.New("spawn failed")
	}

	q := New(Config{MaxParallel: 1, RetryCount: retryCount, RetryDelay: time.Millisecond}, executor)
	job := q.Enqueue(context.Background(), Input{HostID: "pc-01", Action: ActionUpload})

	done := waitTerminal(t, q, job.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, "spawn failed", done.Error)
	// The retry budget allows retryCount extra attempts on top of the first.
	assert.Equal(t, int64(retryCount+1), atomic.LoadInt64(&invocations))
	assert.Equal(t, retryCount+1, done.Metrics.Attempt)
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	var invocations int64
	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		if atomic.AddInt64(&invocations, 1) < 3 {
			return Result{}, errors.New("transient")
		}
		return Result{Status: ResultOK}, nil
	}

	q := New(Config{MaxParallel: 1, RetryCount: 5, RetryDelay: time.Millisecond}, executor)
	job := q.Enqueue(context.Background(), Input{HostID: "pc-01", Action: ActionUpload})

	done := waitTerminal(t, q, job.ID)
	assert.Equal(t, StatusSucceeded, done.Status)
	assert.Equal(t, 3, done.Metrics.Attempt)
}

func TestPermanentErrorSkipsRetry(t *testing.T) {
	var invocations int64
	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		atomic.AddInt64(&invocations, 1)
		return Result{}, Permanent(errors.New("no strategy for host os"))
	}

	q := New(Config{MaxParallel: 1, RetryCount: 3, RetryDelay: time.Millisecond}, executor)
	job := q.Enqueue(context.Background(), Input{HostID: "pc-01", Action: ActionUpload})

	done := waitTerminal(t, q, job.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, int64(1), atomic.LoadInt64(&invocations))
	assert.Equal(t, "no strategy for host os", done.Error)
}

func TestStructuredFailureIsNotRetried(t *testing.T) {
	var invocations int64
	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		atomic.AddInt64(&invocations, 1)
		return Result{Status: ResultTimeout, Error: "agent call timed out"}, nil
	}

	q := New(Config{MaxParallel: 1, RetryCount: 3, RetryDelay: time.Millisecond}, executor)
	job := q.Enqueue(context.Background(), Input{HostID: "pc-01", Action: ActionUpload})

	done := waitTerminal(t, q, job.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, int64(1), atomic.LoadInt64(&invocations))
	assert.Equal(t, "agent call timed out", done.Error)
	require.NotNil(t, done.Result)
	assert.Equal(t, ResultTimeout, done.Result.Status)
}

func TestExecutorPanicFailsJob(t *testing.T) {
	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		panic("strategy bug")
	}

	q := New(Config{MaxParallel: 1, RetryCount: 0}, executor)
	job := q.Enqueue(context.Background(), Input{HostID: "pc-01", Action: ActionErase})

	done := waitTerminal(t, q, job.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Contains(t, done.Error, "executor panic")
}

func TestCancelWaitingJob(t *testing.T) {
	release := make(chan struct{})
	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		<-release
		return Result{Status: ResultOK}, nil
	}

	q := New(Config{MaxParallel: 1}, executor)
	ctx := context.Background()

	first := q.Enqueue(ctx, Input{HostID: "pc-01", Action: ActionUpload})
	require.Eventually(t, func() bool {
		j, _ := q.Get(first.ID)
		return j.Status == StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	second := q.Enqueue(ctx, Input{HostID: "pc-02", Action: ActionUpload})

	// Waiting jobs cancel cleanly.
	require.NoError(t, q.Cancel(ctx, second.ID))
	cancelled, ok := q.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.Metrics.CompletedAt)
	assert.Zero(t, cancelled.Metrics.ElapsedMs)

	// Running jobs reject cancellation.
	err := q.Cancel(ctx, first.ID)
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	waitTerminal(t, q, first.ID)

	// Terminal jobs report their state.
	assert.ErrorIs(t, q.Cancel(ctx, first.ID), ErrJobTerminal)
	assert.ErrorIs(t, q.Cancel(ctx, second.ID), ErrJobTerminal)
	assert.ErrorIs(t, q.Cancel(ctx, "no-such-job"), ErrJobNotFound)
}

func TestCancelAllLeavesRunningUntouched(t *testing.T) {
	release := make(chan struct{})
	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		<-release
		return Result{Status: ResultOK}, nil
	}

	q := New(Config{MaxParallel: 1}, executor)
	ctx := context.Background()

	first := q.Enqueue(ctx, Input{HostID: "pc-01", Action: ActionUpload})
	require.Eventually(t, func() bool {
		j, _ := q.Get(first.ID)
		return j.Status == StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		q.Enqueue(ctx, Input{HostID: "pc", Action: ActionUpload})
	}

	assert.Equal(t, 3, q.CancelAll(ctx))
	assert.Equal(t, 0, q.Snapshot().WaitingCount)

	running, _ := q.Get(first.ID)
	assert.Equal(t, StatusRunning, running.Status)

	close(release)
	done := waitTerminal(t, q, first.ID)
	assert.Equal(t, StatusSucceeded, done.Status)
}

func TestFIFOOrderSingleWorker(t *testing.T) {
	var mu sync.Mutex
	var order []string

	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		mu.Lock()
		order = append(order, job.HostID)
		mu.Unlock()
		return Result{Status: ResultOK}, nil
	}

	q := New(Config{MaxParallel: 1}, executor)
	expected := []string{"pc-01", "pc-02", "pc-03", "pc-04"}
	for _, id := range expected {
		q.Enqueue(context.Background(), Input{HostID: id, Action: ActionDetect})
	}

	waitIdle(t, q)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, expected, order)
}

func TestThrottleSpacesStarts(t *testing.T) {
	const throttle = 30 * time.Millisecond

	var mu sync.Mutex
	var starts []time.Time

	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return Result{Status: ResultOK}, nil
	}

	q := New(Config{MaxParallel: 2, Throttle: throttle}, executor)
	for i := 0; i < 3; i++ {
		q.Enqueue(context.Background(), Input{HostID: "pc", Action: ActionDetect})
	}

	waitIdle(t, q)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, throttle-5*time.Millisecond,
			"start %d followed too quickly", i)
	}
}

func TestSnapshotCountsAddUp(t *testing.T) {
	var n int64
	executor := func(ctx context.Context, job Job, ec ExecContext) (Result, error) {
		if atomic.AddInt64(&n, 1)%2 == 0 {
			return Result{Status: ResultError, Error: "boom"}, nil
		}
		return Result{Status: ResultOK}, nil
	}

	q := New(Config{MaxParallel: 2}, executor)
	const total = 8
	for i := 0; i < total; i++ {
		q.Enqueue(context.Background(), Input{HostID: "pc", Action: ActionUpload})
	}

	snap := waitIdle(t, q)
	assert.Len(t, snap.Jobs, total)
	assert.Equal(t, total, snap.CompletedCount+snap.FailedCount)
	assert.Equal(t, 4, snap.CompletedCount)
	assert.Equal(t, 4, snap.FailedCount)
}

func TestContextRetainedForTerminalJobs(t *testing.T) {
	q := New(Config{MaxParallel: 1}, okExecutor)

	ec := ExecContext{FQBN: "arduino:avr:uno", SketchPath: "blink.ino"}
	job := q.Enqueue(context.Background(), Input{HostID: "pc-01", Action: ActionUpload, Context: ec})
	waitTerminal(t, q, job.ID)

	got, ok := q.Context(job.ID)
	require.True(t, ok)
	assert.Equal(t, ec.FQBN, got.FQBN)
	assert.Equal(t, ec.SketchPath, got.SketchPath)
}

func TestSnapshotReturnsCopies(t *testing.T) {
	q := New(Config{MaxParallel: 1}, okExecutor)
	job := q.Enqueue(context.Background(), Input{HostID: "pc-01", Action: ActionDetect})
	waitTerminal(t, q, job.ID)

	snap := q.Snapshot()
	require.Len(t, snap.Jobs, 1)
	snap.Jobs[0].Status = StatusQueued
	snap.Jobs[0].Result.Port = "mutated"

	fresh, _ := q.Get(job.ID)
	assert.Equal(t, StatusSucceeded, fresh.Status)
	assert.NotEqual(t, "mutated", fresh.Result.Port)
}

func TestStickySnapshotConvergesToFinalState(t *testing.T) {
	const total = 8

	eventBus := bus.NewEventBus(nil)
	q := New(Config{MaxParallel: 4}, okExecutor, WithEventBus(eventBus))

	for i := 0; i < total; i++ {
		q.Enqueue(context.Background(), Input{HostID: "pc-01", Action: ActionDetect})
	}
	waitIdle(t, q)

	// Concurrent completions race to publish; the cached last value must
	// still end up being the newest snapshot.
	require.Eventually(t, func() bool {
		event, ok := eventBus.LastValue(bus.EventSnapshotChanged)
		if !ok {
			return false
		}
		snap, ok := event.Data["snapshot"].(Snapshot)
		return ok && snap.CompletedCount == total && snap.ActiveCount == 0 && snap.WaitingCount == 0
	}, 5*time.Second, 10*time.Millisecond)
}
