package subscribers

import (
	"context"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/queue"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/pkg/metrics"
)

// MetricsSubscriber feeds job and fleet events into the Prometheus registry.
type MetricsSubscriber struct {
	registry *metrics.Registry
}

// NewMetricsSubscriber creates a new MetricsSubscriber.
func NewMetricsSubscriber(registry *metrics.Registry) *MetricsSubscriber {
	return &MetricsSubscriber{registry: registry}
}

// Attach subscribes the metrics subscriber to every event type it consumes.
func (s *MetricsSubscriber) Attach(eventBus *bus.EventBus) {
	for _, t := range []bus.EventType{
		bus.EventJobCompleted,
		bus.EventJobFailed,
		bus.EventJobCancelled,
		bus.EventJobRetried,
		bus.EventSnapshotChanged,
		bus.EventHostsChanged,
		bus.EventHostsImported,
	} {
		eventBus.Subscribe(t, s)
	}
}

// Handle maps one event onto registry updates.
func (s *MetricsSubscriber) Handle(ctx context.Context, event bus.Event) error {
	switch event.Type {
	case bus.EventJobCompleted, bus.EventJobFailed, bus.EventJobCancelled:
		if job, ok := event.Data["job"].(queue.Job); ok {
			s.registry.ObserveJobTerminal(
				string(job.Action),
				string(job.Status),
				float64(job.Metrics.ElapsedMs)/1000.0,
			)
		}
	case bus.EventJobRetried:
		s.registry.ObserveJobRetried()
	case bus.EventSnapshotChanged:
		if snap, ok := event.Data["snapshot"].(queue.Snapshot); ok {
			s.registry.SetQueueGauges(snap.ActiveCount, snap.WaitingCount)
		}
	case bus.EventHostsChanged:
		if n, ok := event.Data["hostCount"].(int); ok {
			s.registry.SetHostCount(n)
		}
	case bus.EventHostsImported:
		added, _ := event.Data["added"].(int)
		updated, _ := event.Data["updated"].(int)
		skipped, _ := event.Data["skipped"].(int)
		s.registry.ObserveImport(added, updated, skipped)
	}
	return nil
}
