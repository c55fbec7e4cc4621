package event

import "errors"

var (
	// ErrPublisherClosed is returned when publishing while the publisher is shutting down.
	ErrPublisherClosed = errors.New("event publisher is closed")

	// ErrPublisherAlreadyStarted is returned when attempting to start a running publisher.
	ErrPublisherAlreadyStarted = errors.New("event publisher already started")

	// ErrPublisherNotStarted is returned when attempting to stop a publisher that is not running.
	ErrPublisherNotStarted = errors.New("event publisher not started")

	// ErrSubscriberAlreadyStarted is returned when attempting to start a running subscriber.
	ErrSubscriberAlreadyStarted = errors.New("event subscriber already started")

	// ErrSubscriberNotStarted is returned when attempting to stop a subscriber that is not running.
	ErrSubscriberNotStarted = errors.New("event subscriber not started")

	// ErrMaxSubscriptions is returned when the subscription capacity is exhausted.
	ErrMaxSubscriptions = errors.New("maximum number of subscriptions reached")

	// ErrSubscriptionNotFound is returned for operations on an unknown subscription ID.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrNilHandler is returned when a subscription is created without a handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNilTransport is returned when a publisher is created without a transport.
	ErrNilTransport = errors.New("transport cannot be nil")

	// ErrBufferClosed is returned by buffer operations after Close.
	ErrBufferClosed = errors.New("event buffer is closed")

	// ErrBufferTimeout is returned when a buffer get times out with no events.
	ErrBufferTimeout = errors.New("timed out waiting for buffered events")

	// ErrTransportClosed is returned by transport operations after disconnect.
	ErrTransportClosed = errors.New("transport is closed")

	// ErrPublishTimeout is returned by PublishAndWait when handlers exceed the overall timeout.
	ErrPublishTimeout = errors.New("timed out waiting for handler results")

	// ErrEventExpired signals that an event exceeded its timeout before processing.
	ErrEventExpired = errors.New("event expired before processing")

	// ErrRetriesExhausted signals that an event failed with no retry budget remaining.
	ErrRetriesExhausted = errors.New("event retries exhausted")

	// ErrInvalidPattern is returned for filter patterns that fail to compile.
	ErrInvalidPattern = errors.New("invalid filter pattern")

	// ErrHealthcheckFailed wraps all health check failures for errors.Is matching.
	ErrHealthcheckFailed = errors.New("healthcheck failed")
)
