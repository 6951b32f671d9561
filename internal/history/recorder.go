package history

import (
	"context"
	"time"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/queue"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
)

// Recorder turns terminal job events into history records.
type Recorder struct {
	store  Store
	logger bus.Logger
}

// NewRecorder creates a recorder writing into store.
func NewRecorder(store Store, logger bus.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Attach subscribes the recorder to every terminal job event.
func (r *Recorder) Attach(eventBus *bus.EventBus) {
	for _, t := range []bus.EventType{
		bus.EventJobCompleted,
		bus.EventJobFailed,
		bus.EventJobCancelled,
	} {
		eventBus.Subscribe(t, r)
	}
}

// Handle persists the job carried by a terminal event.
func (r *Recorder) Handle(ctx context.Context, event bus.Event) error {
	job, ok := event.Data["job"].(queue.Job)
	if !ok {
		return nil
	}

	rec := Record{
		JobID:     job.ID,
		HostID:    job.HostID,
		Action:    string(job.Action),
		ProfileID: job.ProfileID,
		Mode:      string(job.Mode),
		Status:    string(job.Status),
		Error:     job.Error,
		Attempt:   job.Metrics.Attempt,
		ElapsedMs: job.Metrics.ElapsedMs,
	}
	if job.Result != nil {
		rec.Port = job.Result.Port
	}
	if job.Metrics.CompletedAt != nil {
		rec.CompletedAt = *job.Metrics.CompletedAt
	} else {
		rec.CompletedAt = time.Now()
	}

	if err := r.store.Save(ctx, rec); err != nil {
		if r.logger != nil {
			r.logger.Error("history write failed", "jobID", job.ID, "error", err.Error())
		}
		return err
	}
	return nil
}
