package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstreamhq/relay/core/event"
)

// startPublisher runs the publisher in the background and waits until it
// reports running. Cleanup stops it.
func startPublisher(t *testing.T, p *event.Publisher) {
	t.Helper()

	go func() {
		_ = p.Start(context.Background())
	}()

	require.Eventually(t, func() bool {
		return p.Stats().IsRunning
	}, time.Second, 10*time.Millisecond, "publisher should start")

	t.Cleanup(func() {
		if p.Stats().IsRunning {
			_ = p.Stop()
		}
	})
}

func TestPublisher_RequiresTransport(t *testing.T) {
	t.Parallel()

	_, err := event.NewPublisher(nil)
	assert.ErrorIs(t, err, event.ErrNilTransport)
}

func TestPublisher_PublishDeliversToHandler(t *testing.T) {
	t.Parallel()

	transport := event.NewMemoryTransport()
	p, err := event.NewPublisher(transport)
	require.NoError(t, err)

	var handled atomic.Int32
	sub := mustSubscription(t, event.NewTypedHandler("user.created", func(ctx context.Context, evt *event.Event) error {
		handled.Add(1)
		assert.Equal(t, "123", evt.Payload["user_id"])
		return nil
	}))
	require.NoError(t, p.Subscribe(sub))

	startPublisher(t, p)

	require.NoError(t, p.Publish(context.Background(), event.New("user.created", map[string]any{"user_id": "123"})))

	require.Eventually(t, func() bool {
		return handled.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.EventsPublished)
	assert.Equal(t, int64(1), stats.EventsProcessed)
	assert.Equal(t, int64(1), stats.HandlersExecuted)
	assert.Zero(t, stats.EventsFailed)
}

func TestPublisher_EachEventProcessedOnce(t *testing.T) {
	t.Parallel()

	transport := event.NewMemoryTransport()
	p, err := event.NewPublisher(transport)
	require.NoError(t, err)

	var handled atomic.Int32
	sub := mustSubscription(t, event.NewTypedHandler("order.placed", func(ctx context.Context, evt *event.Event) error {
		handled.Add(1)
		return nil
	}))
	require.NoError(t, p.Subscribe(sub))

	startPublisher(t, p)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Publish(ctx, event.New("order.placed", nil)))
	}

	require.Eventually(t, func() bool {
		return handled.Load() == 20
	}, 2*time.Second, 10*time.Millisecond)

	// No duplicate deliveries trickle in afterwards.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(20), handled.Load())
}

func TestPublisher_RetryThenDeadLetter(t *testing.T) {
	t.Parallel()

	transport := event.NewMemoryTransport()

	cfg := event.DefaultConfig()
	cfg.DefaultMaxRetries = 2
	cfg.DefaultRetryDelay = 10 * time.Millisecond
	cfg.ExponentialBackoff = false
	cfg.EnableDeadLetter = true

	p, err := event.NewPublisher(transport, event.WithPublisherConfig(cfg))
	require.NoError(t, err)

	var attempts atomic.Int32
	sub := mustSubscription(t, event.NewTypedHandler("flaky.op", func(ctx context.Context, evt *event.Event) error {
		attempts.Add(1)
		return errors.New("downstream unavailable")
	}))
	require.NoError(t, p.Subscribe(sub))

	startPublisher(t, p)

	require.NoError(t, p.Publish(context.Background(), event.New("flaky.op", nil)))

	// Initial attempt plus two retries, then dead-lettered.
	require.Eventually(t, func() bool {
		return attempts.Load() == 3 && len(transport.DeadLetters()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load(), "no attempts after retries exhausted")

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.EventsRetried)
	assert.Equal(t, int64(1), stats.EventsDeadLettered)
}

func TestPublisher_EventRetryDelayOverridesDefault(t *testing.T) {
	t.Parallel()

	transport := event.NewMemoryTransport()

	// A slow publisher default: if retries ran on this cadence the test
	// would see a single attempt inside its window.
	cfg := event.DefaultConfig()
	cfg.DefaultRetryDelay = 5 * time.Second
	cfg.ExponentialBackoff = false

	p, err := event.NewPublisher(transport, event.WithPublisherConfig(cfg))
	require.NoError(t, err)

	var attempts atomic.Int32
	sub := mustSubscription(t, event.NewTypedHandler("flaky.op", func(ctx context.Context, evt *event.Event) error {
		if attempts.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}))
	require.NoError(t, p.Subscribe(sub))

	startPublisher(t, p)

	evt := event.New("flaky.op", nil, event.WithRetryDelay(10*time.Millisecond))
	require.NoError(t, p.Publish(context.Background(), evt))

	// Backoff follows the event's own retry delay, so all three attempts
	// land well before the publisher default would allow a second one.
	require.Eventually(t, func() bool {
		return attempts.Load() == 3 && p.Stats().EventsProcessed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublisher_AllPrioritiesDelivered(t *testing.T) {
	t.Parallel()

	transport := event.NewMemoryTransport()
	p, err := event.NewPublisher(transport)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[event.Priority]int)
	sub := mustSubscription(t, event.NewFuncHandler(func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen[evt.Metadata.Priority]++
		return nil
	}))
	require.NoError(t, p.Subscribe(sub))

	startPublisher(t, p)

	priorities := []event.Priority{
		event.PriorityLow, event.PriorityNormal, event.PriorityHigh, event.PriorityCritical,
	}
	for _, priority := range priorities {
		require.NoError(t, p.Publish(context.Background(),
			event.New("audit.entry", nil, event.WithPriority(priority))))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		total := 0
		for _, n := range seen {
			total += n
		}
		return total == 4
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, priority := range priorities {
		assert.Equal(t, 1, seen[priority], "priority %s delivered exactly once", priority)
	}
}

func TestPublisher_SlowHandlerTimesOutAndPipelineContinues(t *testing.T) {
	t.Parallel()

	transport := event.NewMemoryTransport()

	cfg := event.DefaultConfig()
	cfg.SubscriptionTimeout = 50 * time.Millisecond
	cfg.DefaultMaxRetries = 0

	p, err := event.NewPublisher(transport, event.WithPublisherConfig(cfg))
	require.NoError(t, err)

	slowSub := mustSubscription(t, event.NewTypedHandler("slow.op", func(ctx context.Context, evt *event.Event) error {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return ctx.Err()
	}))
	require.NoError(t, p.Subscribe(slowSub))

	var fastHandled atomic.Int32
	fastSub := mustSubscription(t, event.NewTypedHandler("fast.op", func(ctx context.Context, evt *event.Event) error {
		fastHandled.Add(1)
		return nil
	}))
	require.NoError(t, p.Subscribe(fastSub))

	startPublisher(t, p)

	// The slow handler exceeds the subscription timeout and its event is
	// treated as failed, not hung.
	require.NoError(t, p.Publish(context.Background(), event.New("slow.op", nil)))
	require.Eventually(t, func() bool {
		return len(transport.DeadLetters()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, p.Stats().EventsFailed, int64(1))

	// Later events still flow through the same worker pool.
	require.NoError(t, p.Publish(context.Background(), event.New("fast.op", nil)))
	require.Eventually(t, func() bool {
		return fastHandled.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublisher_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	transport := event.NewMemoryTransport()

	cfg := event.DefaultConfig()
	cfg.DefaultRetryDelay = 10 * time.Millisecond
	cfg.ExponentialBackoff = false

	p, err := event.NewPublisher(transport, event.WithPublisherConfig(cfg))
	require.NoError(t, err)

	var attempts atomic.Int32
	sub := mustSubscription(t, event.NewTypedHandler("flaky.op", func(ctx context.Context, evt *event.Event) error {
		if attempts.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}))
	require.NoError(t, p.Subscribe(sub))

	startPublisher(t, p)

	require.NoError(t, p.Publish(context.Background(), event.New("flaky.op", nil)))

	require.Eventually(t, func() bool {
		return p.Stats().EventsProcessed == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Empty(t, transport.DeadLetters())
}

func TestPublisher_PanickingHandlerIsContained(t *testing.T) {
	t.Parallel()

	transport := event.NewMemoryTransport()

	cfg := event.DefaultConfig()
	cfg.DefaultMaxRetries = 0

	p, err := event.NewPublisher(transport, event.WithPublisherConfig(cfg))
	require.NoError(t, err)

	sub := mustSubscription(t, event.NewTypedHandler("boom", func(ctx context.Context, evt *event.Event) error {
		panic("handler exploded")
	}))
	require.NoError(t, p.Subscribe(sub))

	startPublisher(t, p)

	require.NoError(t, p.Publish(context.Background(), event.New("boom", nil)))

	require.Eventually(t, func() bool {
		return len(transport.DeadLetters()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The pipeline survives and keeps processing.
	assert.Equal(t, int64(1), p.Stats().EventsFailed)
}

func TestPublisher_ExpiredEventSkipsHandlers(t *testing.T) {
	t.Parallel()

	transport := event.NewMemoryTransport()
	p, err := event.NewPublisher(transport)
	require.NoError(t, err)

	var handled atomic.Int32
	sub := mustSubscription(t, event.NewTypedHandler("slow.op", func(ctx context.Context, evt *event.Event) error {
		handled.Add(1)
		return nil
	}))
	require.NoError(t, p.Subscribe(sub))

	startPublisher(t, p)

	evt := event.New("slow.op", nil, event.WithTimeout(time.Nanosecond))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, p.Publish(context.Background(), evt))

	require.Eventually(t, func() bool {
		return len(transport.DeadLetters()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, handled.Load(), "expired events must not reach handlers")
}

func TestPublisher_PublishAndWait(t *testing.T) {
	t.Parallel()

	t.Run("returns handler results", func(t *testing.T) {
		t.Parallel()

		p, err := event.NewPublisher(event.NewMemoryTransport())
		require.NoError(t, err)

		sub := mustSubscription(t, event.NewTypedHandler("sync.op", func(ctx context.Context, evt *event.Event) error {
			return nil
		}))
		require.NoError(t, p.Subscribe(sub))

		evt := event.New("sync.op", nil)
		results, err := p.PublishAndWait(context.Background(), evt, time.Second)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].Success)
		assert.Equal(t, event.StatusCompleted, evt.Status)
	})

	t.Run("no matches returns empty", func(t *testing.T) {
		t.Parallel()

		p, err := event.NewPublisher(event.NewMemoryTransport())
		require.NoError(t, err)

		results, err := p.PublishAndWait(context.Background(), event.New("nobody.cares", nil), time.Second)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("times out on slow handlers", func(t *testing.T) {
		t.Parallel()

		p, err := event.NewPublisher(event.NewMemoryTransport())
		require.NoError(t, err)

		sub := mustSubscription(t, event.NewTypedHandler("slow.op", func(ctx context.Context, evt *event.Event) error {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			return ctx.Err()
		}))
		require.NoError(t, p.Subscribe(sub))

		evt := event.New("slow.op", nil)
		_, err = p.PublishAndWait(context.Background(), evt, 50*time.Millisecond)
		assert.ErrorIs(t, err, event.ErrPublishTimeout)
		assert.Equal(t, event.StatusFailed, evt.Status)
	})
}

func TestPublisher_SubscriptionConcurrencyCap(t *testing.T) {
	t.Parallel()

	p, err := event.NewPublisher(event.NewMemoryTransport())
	require.NoError(t, err)

	release := make(chan struct{})
	var running atomic.Int32
	sub := mustSubscription(t,
		event.NewTypedHandler("capped.op", func(ctx context.Context, evt *event.Event) error {
			running.Add(1)
			<-release
			return nil
		}),
		event.SubscriptionMaxConcurrent(1),
	)
	require.NoError(t, p.Subscribe(sub))

	// First dispatch occupies the single slot.
	go func() {
		_, _ = p.PublishAndWait(context.Background(), event.New("capped.op", nil), 5*time.Second)
	}()
	require.Eventually(t, func() bool {
		return running.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// Second dispatch finds the subscription at its cap and skips it.
	results, err := p.PublishAndWait(context.Background(), event.New("capped.op", nil), time.Second)
	require.NoError(t, err)
	assert.Empty(t, results)

	close(release)
	assert.Equal(t, int32(1), running.Load(), "second event never ran a handler")
}

func TestPublisher_Lifecycle(t *testing.T) {
	t.Parallel()

	p, err := event.NewPublisher(event.NewMemoryTransport())
	require.NoError(t, err)

	startPublisher(t, p)

	assert.ErrorIs(t, p.Start(context.Background()), event.ErrPublisherAlreadyStarted)

	require.NoError(t, p.Stop())
	assert.ErrorIs(t, p.Stop(), event.ErrPublisherNotStarted)

	assert.ErrorIs(t, p.Publish(context.Background(), event.New("x", nil)), event.ErrPublisherClosed)
}

func TestPublisher_Unsubscribe(t *testing.T) {
	t.Parallel()

	transport := event.NewMemoryTransport()
	p, err := event.NewPublisher(transport)
	require.NoError(t, err)

	var handled atomic.Int32
	sub := mustSubscription(t, event.NewTypedHandler("user.created", func(ctx context.Context, evt *event.Event) error {
		handled.Add(1)
		return nil
	}))
	require.NoError(t, p.Subscribe(sub))

	startPublisher(t, p)

	assert.True(t, p.Unsubscribe(sub.ID))
	assert.False(t, p.Unsubscribe(sub.ID))

	require.NoError(t, p.Publish(context.Background(), event.New("user.created", nil)))

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, handled.Load())
}

func TestPublisher_Healthcheck(t *testing.T) {
	t.Parallel()

	p, err := event.NewPublisher(event.NewMemoryTransport())
	require.NoError(t, err)

	err = p.Healthcheck(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, event.ErrHealthcheckFailed)

	startPublisher(t, p)
	assert.NoError(t, p.Healthcheck(context.Background()))
}

func TestPublisher_ContextMetadataReachesHandler(t *testing.T) {
	t.Parallel()

	p, err := event.NewPublisher(event.NewMemoryTransport())
	require.NoError(t, err)

	evt := event.New("meta.check", nil)

	sub := mustSubscription(t, event.NewTypedHandler("meta.check", func(ctx context.Context, got *event.Event) error {
		assert.Equal(t, evt.Metadata.EventID, event.EventID(ctx))
		assert.Equal(t, "meta.check", event.EventType(ctx))
		assert.False(t, event.EventTime(ctx).IsZero())
		return nil
	}))
	require.NoError(t, p.Subscribe(sub))

	results, err := p.PublishAndWait(context.Background(), evt, time.Second)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}
