package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// EventBus manages event subscriptions and publishes events to subscribers.
// Delivery is synchronous and follows subscription order; a failing or
// panicking subscriber never affects delivery to the others.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscription
	lastValue   map[EventType]Event
	logger      Logger
}

type subscription struct {
	id  string
	sub Subscriber
}

// NewEventBus creates a new EventBus with the given logger.
func NewEventBus(logger Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]subscription),
		lastValue:   make(map[EventType]Event),
		logger:      logger,
	}
}

// Subscribe adds a subscriber for the given event type and returns a
// subscription id usable with Unsubscribe.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := uuid.NewString()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{id: id, sub: subscriber})
	if eb.logger != nil {
		eb.logger.Debug("subscriber added", "eventType", string(eventType), "subscriptionID", id)
	}
	return id
}

// SubscribeWithReplay behaves like Subscribe but, if the event type has a
// cached last value, delivers that value to the new subscriber first.
func (eb *EventBus) SubscribeWithReplay(ctx context.Context, eventType EventType, subscriber Subscriber) string {
	eb.mu.Lock()
	last, hasLast := eb.lastValue[eventType]
	id := uuid.NewString()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{id: id, sub: subscriber})
	eb.mu.Unlock()

	if hasLast {
		eb.deliver(ctx, subscriber, last)
	}
	return id
}

// Unsubscribe removes the subscription with the given id.
func (eb *EventBus) Unsubscribe(eventType EventType, subscriptionID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[eventType]
	for i, s := range subs {
		if s.id == subscriptionID {
			eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			if eb.logger != nil {
				eb.logger.Debug("subscriber removed", "eventType", string(eventType), "subscriptionID", subscriptionID)
			}
			return
		}
	}
}

// Publish sends an event to all subscribers of the event type, in
// subscription order. Errors from individual subscribers are logged but
// don't affect other subscribers.
func (eb *EventBus) Publish(ctx context.Context, event Event) {
	eb.mu.RLock()
	subs := make([]subscription, len(eb.subscribers[event.Type]))
	copy(subs, eb.subscribers[event.Type])
	eb.mu.RUnlock()

	for _, s := range subs {
		eb.deliver(ctx, s.sub, event)
	}
}

// PublishSticky publishes an event and caches it as the last value for its
// type, so later SubscribeWithReplay calls receive it immediately.
func (eb *EventBus) PublishSticky(ctx context.Context, event Event) {
	eb.mu.Lock()
	eb.lastValue[event.Type] = event
	eb.mu.Unlock()

	eb.Publish(ctx, event)
}

// LastValue returns the cached last event for a sticky type, if any.
func (eb *EventBus) LastValue(eventType EventType) (Event, bool) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	e, ok := eb.lastValue[eventType]
	return e, ok
}

// deliver safely calls a subscriber with panic recovery.
func (eb *EventBus) deliver(ctx context.Context, sub Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			if eb.logger != nil {
				eb.logger.Error("subscriber panicked", "eventType", string(event.Type), "eventID", event.ID, "panic", r)
			}
		}
	}()

	if err := sub.Handle(ctx, event); err != nil {
		if eb.logger != nil {
			eb.logger.Error("subscriber error",
				"eventType", string(event.Type),
				"eventID", event.ID,
				"error", err.Error(),
			)
		}
	}
}

// SubscriberCount returns the number of subscribers for an event type.
func (eb *EventBus) SubscriberCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[eventType])
}
