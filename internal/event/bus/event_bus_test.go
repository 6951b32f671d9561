package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSubscriber) Handle(ctx context.Context, event Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *recordingSubscriber) received() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func makeEvent(eventType EventType, id string) Event {
	return Event{
		ID:        id,
		Type:      eventType,
		Source:    "test",
		Timestamp: time.Now(),
		Data:      map[string]any{},
	}
}

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	eb := NewEventBus(nil)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		eb.Subscribe(EventJobEnqueued, SubscriberFunc(func(ctx context.Context, e Event) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}))
	}

	eb.Publish(ctx, makeEvent(EventJobEnqueued, "e1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestPublishOnlyMatchingType(t *testing.T) {
	eb := NewEventBus(nil)
	ctx := context.Background()

	sub := &recordingSubscriber{}
	eb.Subscribe(EventJobCompleted, sub)

	eb.Publish(ctx, makeEvent(EventJobFailed, "e1"))
	eb.Publish(ctx, makeEvent(EventJobCompleted, "e2"))

	events := sub.received()
	require.Len(t, events, 1)
	assert.Equal(t, "e2", events[0].ID)
}

func TestUnsubscribeByID(t *testing.T) {
	eb := NewEventBus(nil)
	ctx := context.Background()

	keep := &recordingSubscriber{}
	drop := &recordingSubscriber{}
	eb.Subscribe(EventJobEnqueued, keep)
	dropID := eb.Subscribe(EventJobEnqueued, drop)

	eb.Unsubscribe(EventJobEnqueued, dropID)
	assert.Equal(t, 1, eb.SubscriberCount(EventJobEnqueued))

	eb.Publish(ctx, makeEvent(EventJobEnqueued, "e1"))
	assert.Len(t, keep.received(), 1)
	assert.Empty(t, drop.received())
}

func TestSubscribeWithReplayDeliversLastValue(t *testing.T) {
	eb := NewEventBus(nil)
	ctx := context.Background()

	eb.PublishSticky(ctx, makeEvent(EventSnapshotChanged, "s1"))
	eb.PublishSticky(ctx, makeEvent(EventSnapshotChanged, "s2"))

	late := &recordingSubscriber{}
	eb.SubscribeWithReplay(ctx, EventSnapshotChanged, late)

	events := late.received()
	require.Len(t, events, 1)
	assert.Equal(t, "s2", events[0].ID)

	// Later publishes arrive normally.
	eb.PublishSticky(ctx, makeEvent(EventSnapshotChanged, "s3"))
	assert.Len(t, late.received(), 2)
}

func TestSubscribeWithReplayNoLastValue(t *testing.T) {
	eb := NewEventBus(nil)

	late := &recordingSubscriber{}
	eb.SubscribeWithReplay(context.Background(), EventSnapshotChanged, late)
	assert.Empty(t, late.received())
}

func TestLastValue(t *testing.T) {
	eb := NewEventBus(nil)
	ctx := context.Background()

	_, ok := eb.LastValue(EventHostsChanged)
	assert.False(t, ok)

	eb.PublishSticky(ctx, makeEvent(EventHostsChanged, "h1"))
	e, ok := eb.LastValue(EventHostsChanged)
	require.True(t, ok)
	assert.Equal(t, "h1", e.ID)

	// Plain Publish does not update the cache.
	eb.Publish(ctx, makeEvent(EventHostsChanged, "h2"))
	e, _ = eb.LastValue(EventHostsChanged)
	assert.Equal(t, "h1", e.ID)
}

func TestFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	eb := NewEventBus(nil)
	ctx := context.Background()

	eb.Subscribe(EventJobEnqueued, SubscriberFunc(func(ctx context.Context, e Event) error {
		return errors.New("handler failed")
	}))
	eb.Subscribe(EventJobEnqueued, SubscriberFunc(func(ctx context.Context, e Event) error {
		panic("handler panicked")
	}))
	ok := &recordingSubscriber{}
	eb.Subscribe(EventJobEnqueued, ok)

	eb.Publish(ctx, makeEvent(EventJobEnqueued, "e1"))
	assert.Len(t, ok.received(), 1)
}
