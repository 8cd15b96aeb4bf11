package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/nbflow/internal/domain"
)

func collect(sub *Subscriber) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSubscribe_ReceivesSnapshotFirst(t *testing.T) {
	b := New()
	b.SetSnapshotProvider(func() *domain.Notebook {
		return &domain.Notebook{Settings: domain.Settings{DSN: "dsn"}}
	})

	sub := b.Subscribe()
	defer sub.Close()

	events := collect(sub)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeNotebookState, events[0].Type)
	require.NotNil(t, events[0].Notebook)
	assert.Equal(t, "dsn", events[0].Notebook.Settings.DSN)
}

func TestPublish_FansOutToAllSubscribers(t *testing.T) {
	b := New()

	s1 := b.Subscribe()
	defer s1.Close()
	s2 := b.Subscribe()
	defer s2.Close()

	b.Publish(domain.Event{Type: domain.EventTypeRunStarted, RunID: 1})

	for _, sub := range []*Subscriber{s1, s2} {
		events := collect(sub)
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventTypeRunStarted, events[0].Type)
		assert.Equal(t, int64(1), events[0].RunID)
	}
}

func TestPublish_PreservesOrderPerSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Close()

	for i := int64(1); i <= 5; i++ {
		b.Publish(domain.Event{Type: domain.EventTypeCellStatus, RunID: i})
	}

	events := collect(sub)
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.RunID)
	}
}

func TestPublish_DropsOldestWhenQueueFull(t *testing.T) {
	b := New(WithQueueSize(2))
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(domain.Event{Type: domain.EventTypeCellStatus, RunID: 1})
	b.Publish(domain.Event{Type: domain.EventTypeCellStatus, RunID: 2})
	b.Publish(domain.Event{Type: domain.EventTypeCellStatus, RunID: 3})

	events := collect(sub)
	require.Len(t, events, 2)
	// The oldest event was evicted; newer ones survived.
	assert.Equal(t, int64(2), events[0].RunID)
	assert.Equal(t, int64(3), events[1].RunID)

	// A later delivery reports the drop.
	b.Publish(domain.Event{Type: domain.EventTypeCellStatus, RunID: 4})
	events = collect(sub)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Dropped)
}

func TestUnsubscribe_ClosesChannelAndStopsDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	sub.Close()

	assert.Equal(t, 0, b.SubscriberCount())

	// Publishing after unsubscribe must not panic.
	b.Publish(domain.Event{Type: domain.EventTypeRunFinished})

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestClose_Idempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	sub.Close()
	sub.Close()
}
