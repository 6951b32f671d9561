package queue

import "time"

// Telemetry aggregates recent queue activity for dashboards.
type Telemetry struct {
	// AvgDurationMs is the mean duration over the completion window.
	AvgDurationMs float64 `json:"avgDurationMs"`
	// ThroughputPerMin counts completions in the last 60 seconds.
	ThroughputPerMin int `json:"throughputPerMin"`
	// SuccessRate is succeeded / all terminal jobs.
	SuccessRate float64 `json:"successRate"`
	// FailureRate is failed / all terminal jobs.
	FailureRate float64 `json:"failureRate"`
	// WindowSize is the number of completions currently in the window.
	WindowSize int `json:"windowSize"`
}

// telemetryWindow keeps a bounded window of recent completion durations and
// timestamps plus lifetime terminal counters. It is guarded by the queue
// mutex; it has no locking of its own.
type telemetryWindow struct {
	limit       int
	durations   []int64
	completedAt []time.Time

	succeeded int
	failed    int
	cancelled int
}

func newTelemetryWindow(limit int) telemetryWindow {
	return telemetryWindow{limit: limit}
}

// recordCompletion appends one terminal attempt outcome to the window.
func (t *telemetryWindow) recordCompletion(at time.Time, elapsedMs int64, succeeded bool) {
	t.durations = append(t.durations, elapsedMs)
	t.completedAt = append(t.completedAt, at)
	if len(t.durations) > t.limit {
		t.durations = t.durations[1:]
		t.completedAt = t.completedAt[1:]
	}

	if succeeded {
		t.succeeded++
	} else {
		t.failed++
	}
}

// recordCancelled counts a cancelled job as terminal without touching the
// duration window: it never ran.
func (t *telemetryWindow) recordCancelled() {
	t.cancelled++
}

// compute derives the aggregate view at the given instant.
func (t *telemetryWindow) compute(now time.Time) Telemetry {
	out := Telemetry{WindowSize: len(t.durations)}

	if len(t.durations) > 0 {
		var sum int64
		for _, d := range t.durations {
			sum += d
		}
		out.AvgDurationMs = float64(sum) / float64(len(t.durations))
	}

	cutoff := now.Add(-60 * time.Second)
	for _, at := range t.completedAt {
		if at.After(cutoff) {
			out.ThroughputPerMin++
		}
	}

	terminal := t.succeeded + t.failed + t.cancelled
	if terminal > 0 {
		out.SuccessRate = float64(t.succeeded) / float64(terminal)
		out.FailureRate = float64(t.failed) / float64(terminal)
	}
	return out
}
