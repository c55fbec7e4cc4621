package event_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstreamhq/relay/core/event"
)

func TestSubscriber_Subscribe(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	id, err := s.Subscribe(noopHandler("user.created"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, 1, s.SubscriptionCount())

	_, err = s.Subscribe(nil)
	assert.ErrorIs(t, err, event.ErrNilHandler)
}

func TestSubscriber_MaxSubscriptions(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber(event.WithMaxSubscriptions(2))

	_, err := s.Subscribe(noopHandler("a"))
	require.NoError(t, err)
	_, err = s.Subscribe(noopHandler("b"))
	require.NoError(t, err)

	_, err = s.Subscribe(noopHandler("c"))
	assert.ErrorIs(t, err, event.ErrMaxSubscriptions)
}

func TestSubscriber_PushDelivery(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	var handled atomic.Int32
	id, err := s.Subscribe(event.NewTypedHandler("user.created", func(ctx context.Context, evt *event.Event) error {
		handled.Add(1)
		return nil
	}))
	require.NoError(t, err)

	results := s.DeliverEvent(context.Background(), event.New("user.created", nil))
	require.Len(t, results, 1)
	assert.True(t, results[id].Success)
	assert.Equal(t, int32(1), handled.Load())

	// Non-matching event type reaches nobody.
	results = s.DeliverEvent(context.Background(), event.New("user.deleted", nil))
	assert.Empty(t, results)
	assert.Equal(t, int32(1), handled.Load())
}

func TestSubscriber_PushFailureRecorded(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	id, err := s.Subscribe(event.NewTypedHandler("flaky", func(ctx context.Context, evt *event.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, err)

	results := s.DeliverEvent(context.Background(), event.New("flaky", nil))
	require.Len(t, results, 1)
	assert.False(t, results[id].Success)
	assert.Contains(t, results[id].ErrorMessage, "boom")

	stats, err := s.SubscriptionStats(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.EventsFailed)
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Contains(t, stats.LastError, "boom")
}

func TestSubscriber_PullMode(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	var handled atomic.Int32
	id, err := s.Subscribe(
		event.NewTypedHandler("audit.record", func(ctx context.Context, evt *event.Event) error {
			handled.Add(1)
			return nil
		}),
		event.SubscribeMode(event.ModePull),
	)
	require.NoError(t, err)

	evt := event.New("audit.record", map[string]any{"n": 1})
	results := s.DeliverEvent(context.Background(), evt)
	require.Len(t, results, 1)
	assert.True(t, results[id].Success, "buffering acknowledges delivery")
	assert.Zero(t, handled.Load(), "pull mode never invokes the handler on delivery")

	pulled, err := s.PullEvents(context.Background(), id, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, pulled, 1)
	assert.Equal(t, evt.Metadata.EventID, pulled[0].Metadata.EventID)
}

func TestSubscriber_PullEvents(t *testing.T) {
	t.Parallel()

	t.Run("empty buffer times out with no events", func(t *testing.T) {
		t.Parallel()

		s := event.NewSubscriber()
		id, err := s.Subscribe(noopHandler("x"), event.SubscribeMode(event.ModePull))
		require.NoError(t, err)

		pulled, err := s.PullEvents(context.Background(), id, 5, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, pulled)
	})

	t.Run("unknown subscription", func(t *testing.T) {
		t.Parallel()

		s := event.NewSubscriber()
		_, err := s.PullEvents(context.Background(), uuid.New(), 5, time.Second)
		assert.ErrorIs(t, err, event.ErrSubscriptionNotFound)
	})

	t.Run("push subscription is not buffered", func(t *testing.T) {
		t.Parallel()

		s := event.NewSubscriber()
		id, err := s.Subscribe(noopHandler("x"))
		require.NoError(t, err)

		_, err = s.PullEvents(context.Background(), id, 5, time.Second)
		require.Error(t, err)
	})

	t.Run("batch respects batch size", func(t *testing.T) {
		t.Parallel()

		s := event.NewSubscriber()
		id, err := s.Subscribe(noopHandler("x"), event.SubscribeMode(event.ModePull))
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			s.DeliverEvent(context.Background(), event.New("x", nil))
		}

		pulled, err := s.PullEvents(context.Background(), id, 3, time.Second)
		require.NoError(t, err)
		assert.Len(t, pulled, 3)

		pulled, err = s.PullEvents(context.Background(), id, 3, time.Second)
		require.NoError(t, err)
		assert.Len(t, pulled, 2)
	})
}

func TestSubscriber_BufferOverflowDropsOldest(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	id, err := s.Subscribe(noopHandler("x"),
		event.SubscribeMode(event.ModePull),
		event.SubscribeBufferSize(2),
	)
	require.NoError(t, err)

	first := event.New("x", nil)
	second := event.New("x", nil)
	third := event.New("x", nil)
	for _, evt := range []*event.Event{first, second, third} {
		s.DeliverEvent(context.Background(), evt)
	}

	pulled, err := s.PullEvents(context.Background(), id, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, pulled, 2)
	assert.Equal(t, second.Metadata.EventID, pulled[0].Metadata.EventID)
	assert.Equal(t, third.Metadata.EventID, pulled[1].Metadata.EventID)
}

func TestSubscriber_PauseResume(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	var handled atomic.Int32
	id, err := s.Subscribe(event.NewTypedHandler("x", func(ctx context.Context, evt *event.Event) error {
		handled.Add(1)
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, s.PauseSubscription(id))
	results := s.DeliverEvent(context.Background(), event.New("x", nil))
	assert.Empty(t, results, "paused subscriptions receive nothing")
	assert.Zero(t, handled.Load())

	require.NoError(t, s.ResumeSubscription(id))
	results = s.DeliverEvent(context.Background(), event.New("x", nil))
	assert.Len(t, results, 1)
	assert.Equal(t, int32(1), handled.Load())

	assert.ErrorIs(t, s.PauseSubscription(uuid.New()), event.ErrSubscriptionNotFound)
}

func TestSubscriber_Unsubscribe(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	id, err := s.Subscribe(noopHandler("x"))
	require.NoError(t, err)

	assert.True(t, s.Unsubscribe(id))
	assert.False(t, s.Unsubscribe(id))
	assert.Equal(t, 0, s.SubscriptionCount())

	results := s.DeliverEvent(context.Background(), event.New("x", nil))
	assert.Empty(t, results)
}

func TestSubscriber_FilteredSubscription(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	filter, err := event.NewFilter(event.FilterMinPriority(event.PriorityHigh))
	require.NoError(t, err)

	var handled atomic.Int32
	_, err = s.Subscribe(
		event.NewFuncHandler(func(ctx context.Context, evt *event.Event) error {
			handled.Add(1)
			return nil
		}),
		event.SubscribeFilter(filter),
	)
	require.NoError(t, err)

	s.DeliverEvent(context.Background(), event.New("x", nil, event.WithPriority(event.PriorityLow)))
	assert.Zero(t, handled.Load())

	s.DeliverEvent(context.Background(), event.New("x", nil, event.WithPriority(event.PriorityCritical)))
	assert.Equal(t, int32(1), handled.Load())
}

func TestSubscriber_HealthScore(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	var fail atomic.Bool
	id, err := s.Subscribe(event.NewTypedHandler("x", func(ctx context.Context, evt *event.Event) error {
		if fail.Load() {
			return errors.New("degraded")
		}
		return nil
	}))
	require.NoError(t, err)

	// All successes: perfect score.
	for i := 0; i < 10; i++ {
		s.DeliverEvent(context.Background(), event.New("x", nil))
	}
	stats, err := s.SubscriptionStats(id)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, stats.HealthScore, 0.001)
	assert.True(t, stats.Healthy)

	// Failures drag the score down: 10/15 success rate minus 0.5 error
	// penalty cap gives 0.167, well below the healthy threshold.
	fail.Store(true)
	for i := 0; i < 5; i++ {
		s.DeliverEvent(context.Background(), event.New("x", nil))
	}
	stats, err = s.SubscriptionStats(id)
	require.NoError(t, err)
	assert.InDelta(t, 10.0/15.0-0.5, stats.HealthScore, 0.001)
	assert.False(t, stats.Healthy)
	assert.Equal(t, int64(10), stats.EventsProcessed)
	assert.Equal(t, int64(5), stats.EventsFailed)
}

func TestSubscriber_HandlerTimeout(t *testing.T) {
	t.Parallel()

	cfg := event.DefaultSubscriberConfig()
	cfg.HandlerTimeout = 50 * time.Millisecond

	s := event.NewSubscriber(event.WithSubscriberConfig(cfg))

	id, err := s.Subscribe(event.NewTypedHandler("slow", func(ctx context.Context, evt *event.Event) error {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return ctx.Err()
	}))
	require.NoError(t, err)

	start := time.Now()
	results := s.DeliverEvent(context.Background(), event.New("slow", nil))
	require.Len(t, results, 1)
	assert.False(t, results[id].Success)
	assert.Contains(t, results[id].ErrorMessage, "timed out")
	assert.Less(t, time.Since(start), time.Second)
}

func TestSubscriber_PanickingHandlerIsContained(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	id, err := s.Subscribe(event.NewTypedHandler("boom", func(ctx context.Context, evt *event.Event) error {
		panic("handler exploded")
	}))
	require.NoError(t, err)

	results := s.DeliverEvent(context.Background(), event.New("boom", nil))
	require.Len(t, results, 1)
	assert.False(t, results[id].Success)
	assert.Contains(t, results[id].ErrorMessage, "panicked")
}

func TestSubscriber_Lifecycle(t *testing.T) {
	t.Parallel()

	cfg := event.DefaultSubscriberConfig()
	cfg.HealthCheckInterval = 10 * time.Millisecond

	s := event.NewSubscriber(event.WithSubscriberConfig(cfg))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)

	assert.ErrorIs(t, s.Start(context.Background()), event.ErrSubscriberAlreadyStarted)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.ErrorIs(t, s.Stop(), event.ErrSubscriberNotStarted)
}

func TestSubscriber_AllSubscriptionStats(t *testing.T) {
	t.Parallel()

	s := event.NewSubscriber()

	a, err := s.Subscribe(noopHandler("a"))
	require.NoError(t, err)
	b, err := s.Subscribe(noopHandler("b"), event.SubscribeMode(event.ModePull))
	require.NoError(t, err)

	all := s.AllSubscriptionStats()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[a].EventType)
	assert.Equal(t, event.ModePull, all[b].Mode)
}
