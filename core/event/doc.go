// Package event provides a publish/subscribe event bus with rich event
// metadata, priority-aware routing, bounded-concurrency dispatch, retry with
// exponential backoff, and dead-letter handling. Events move through a
// pluggable Transport, so the same code runs in-process over channels or
// across instances over Redis.
//
// # Core Components
//
// Event carries a payload plus Metadata: a UUIDv7 identifier, event type,
// source, priority, delivery mode, routing key, correlation chain, retry
// policy, and free-form headers and tags. Each event tracks its lifecycle
// status from pending through processing to completed, failed, retrying, or
// cancelled.
//
// Publisher encodes events, hands them to the transport, and runs the worker
// pool that consumes transport messages, routes them to subscriptions, and
// applies the retry and dead-letter policy.
//
// Subscriber manages subscription lifecycle across push, pull, and hybrid
// consumption modes, with per-subscription buffering and health scoring.
//
// Router indexes subscriptions by event type for O(1) dispatch, with
// separate buckets for filtered and wildcard subscriptions.
//
// Transport abstracts the delivery substrate. MemoryTransport is a
// channel-based implementation for single-instance deployments and tests;
// RedisTransport spans process boundaries using Redis pub/sub with a sorted
// set for delayed deliveries and a list for dead letters.
//
// # Basic Usage
//
//	import (
//		"context"
//		"log/slog"
//		"os"
//
//		"github.com/workstreamhq/relay/core/event"
//	)
//
//	func main() {
//		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//
//		transport := event.NewMemoryTransport()
//		publisher, err := event.NewPublisher(transport,
//			event.WithPublisherLogger(logger),
//		)
//		if err != nil {
//			logger.Error("publisher init failed", "error", err)
//			os.Exit(1)
//		}
//
//		handler := event.NewTypedHandler("user.created", func(ctx context.Context, evt *event.Event) (event.HandlerResult, error) {
//			logger.Info("user created", "user_id", evt.Payload["user_id"])
//			return event.SuccessResult(), nil
//		})
//
//		sub, _ := event.NewSubscription(handler)
//		publisher.Subscribe(sub)
//
//		ctx, cancel := context.WithCancel(context.Background())
//		defer cancel()
//
//		go publisher.Start(ctx)
//
//		evt := event.New("user.created",
//			map[string]any{"user_id": "123"},
//			event.WithPriority(event.PriorityHigh),
//			event.WithSource("auth-service"),
//		)
//		publisher.Publish(ctx, evt)
//
//		cancel()
//		publisher.Stop()
//	}
//
// # Retries and Dead Letters
//
// When every matched handler fails, the event is retried with exponential
// backoff until its retry budget is exhausted, then rejected to the
// transport's dead-letter sink:
//
//	evt := event.New("payment.capture", payload,
//		event.WithMaxRetries(5),
//		event.WithRetryDelay(2*time.Second),
//	)
//
// The backoff for attempt n is the base delay doubled n times, clamped to
// the configured maximum. Configure the policy per publisher:
//
//	publisher, err := event.NewPublisher(transport,
//		event.WithRetryPolicy(time.Second, true, 30*time.Second),
//	)
//
// # Filters and Wildcards
//
// Subscriptions match by event type, by arbitrary predicate, or by a
// structural Filter over sources, tags, payload fields, regex patterns, and
// minimum priority:
//
//	filter, err := event.NewFilter(
//		event.FilterSources("billing-service"),
//		event.FilterMinPriority(event.PriorityHigh),
//		event.FilterTypePatterns(`^payment\.`),
//	)
//
// Topic patterns support segment wildcards: a trailing "*" matches zero or
// more segments ("orders.*" matches "orders" and "orders.eu.created"), an
// interior "*" matches exactly one ("orders.*.created" matches
// "orders.eu.created" only).
//
// # Pull and Hybrid Consumption
//
// Subscriptions default to push delivery. Pull and hybrid subscriptions
// buffer events for on-demand retrieval:
//
//	id, _ := subscriber.Subscribe(handler,
//		event.SubscribeEventType("audit.record"),
//		event.SubscribeMode(event.ModePull),
//	)
//
//	events, err := subscriber.PullEvents(ctx, id, 10, 5*time.Second)
//
// Buffers are bounded and drop the oldest event on overflow, favoring fresh
// data over completeness.
//
// # Request/Reply
//
// PublishAndWait dispatches synchronously to local subscriptions and returns
// the per-subscription results, bounded by a timeout:
//
//	results, err := publisher.PublishAndWait(ctx, evt, 5*time.Second)
//
// # Graceful Shutdown with errgroup
//
//	g, ctx := errgroup.WithContext(context.Background())
//	g.Go(publisher.Run(ctx))
//	g.Go(subscriber.Run(ctx))
//	if err := g.Wait(); err != nil {
//		logger.Error("service error", "error", err)
//	}
//
// # Observability
//
// Publisher.Stats exposes counters for published, processed, failed,
// retried, and dead-lettered events plus average processing latency.
// Subscriber tracks per-subscription health: a score derived from the
// success rate and recent error count, checked periodically by a background
// worker that logs unhealthy subscriptions.
//
// # Thread Safety
//
// All components are safe for concurrent use. Handler invocations are
// bounded by a global semaphore and per-subscription concurrency caps, and
// every invocation runs under a timeout with panic recovery.
package event
