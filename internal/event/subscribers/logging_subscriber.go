// Package subscribers provides built-in event subscribers.
package subscribers

import (
	"context"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
)

// LoggingSubscriber logs job lifecycle events as they are received.
type LoggingSubscriber struct {
	logger bus.Logger
}

// NewLoggingSubscriber creates a new LoggingSubscriber.
func NewLoggingSubscriber(logger bus.Logger) *LoggingSubscriber {
	return &LoggingSubscriber{logger: logger}
}

// Handle logs the received event.
func (s *LoggingSubscriber) Handle(ctx context.Context, event bus.Event) error {
	s.logger.Info("event received",
		"eventID", event.ID,
		"type", string(event.Type),
		"source", event.Source,
		"jobID", event.Data["jobID"],
		"hostID", event.Data["hostID"],
	)
	return nil
}
