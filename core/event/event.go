package event

import (
	"time"

	"github.com/google/uuid"
)

// Priority controls transport-level delivery ordering for events.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Ordinal returns the numeric rank of the priority (low=0 .. critical=3).
// Unknown values rank as normal.
func (p Priority) Ordinal() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 1
	}
}

// Valid checks if the priority is one of the defined levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// DeliveryMode is advisory metadata describing the intended delivery semantics.
// The bus itself provides at-least-once delivery; exactly_once is NOT enforced
// (no deduplication), it only tags the event for transports that support it.
type DeliveryMode string

const (
	DeliveryFireAndForget DeliveryMode = "fire_and_forget"
	DeliveryAtLeastOnce   DeliveryMode = "at_least_once"
	DeliveryExactlyOnce   DeliveryMode = "exactly_once"
	DeliveryBroadcast     DeliveryMode = "broadcast"
)

// Status tracks the lifecycle state of an event through the processing pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRetrying   Status = "retrying"
	StatusCancelled  Status = "cancelled"
)

const (
	// DefaultMaxRetries is applied to events created without an explicit override.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base delay between retry attempts.
	DefaultRetryDelay = time.Second
)

// Metadata carries routing and delivery attributes for a single event.
// It is owned exclusively by its Event and must not be shared between events.
type Metadata struct {
	EventID       uuid.UUID      `json:"event_id"`
	EventType     string         `json:"event_type"`
	Source        string         `json:"source,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Priority      Priority       `json:"priority"`
	DeliveryMode  DeliveryMode   `json:"delivery_mode"`
	RoutingKey    string         `json:"routing_key,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	ReplyTo       string         `json:"reply_to,omitempty"`
	MaxRetries    int            `json:"max_retries"`
	RetryDelay    time.Duration  `json:"retry_delay"`
	Timeout       time.Duration  `json:"timeout,omitempty"`
	Headers       map[string]any `json:"headers,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
}

// Event is a single unit of notification routed through the bus.
// Status and RetryCount are mutated only by the publisher's processing
// pipeline; everything else is immutable by convention after creation.
type Event struct {
	Metadata     Metadata       `json:"metadata"`
	Payload      map[string]any `json:"payload"`
	Status       Status         `json:"status"`
	RetryCount   int            `json:"retry_count"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// EventOption configures event metadata at creation time.
type EventOption func(*Metadata)

// WithSource sets the producer identity.
func WithSource(source string) EventOption {
	return func(m *Metadata) { m.Source = source }
}

// WithPriority sets the event priority. Invalid values are ignored.
func WithPriority(p Priority) EventOption {
	return func(m *Metadata) {
		if p.Valid() {
			m.Priority = p
		}
	}
}

// WithDeliveryMode sets the advisory delivery mode.
func WithDeliveryMode(mode DeliveryMode) EventOption {
	return func(m *Metadata) { m.DeliveryMode = mode }
}

// WithRoutingKey sets the routing key used by routing-key filters.
func WithRoutingKey(key string) EventOption {
	return func(m *Metadata) { m.RoutingKey = key }
}

// WithCorrelationID sets the correlation ID propagated to the transport.
func WithCorrelationID(id string) EventOption {
	return func(m *Metadata) { m.CorrelationID = id }
}

// WithReplyTo sets the reply-to address.
func WithReplyTo(replyTo string) EventOption {
	return func(m *Metadata) { m.ReplyTo = replyTo }
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) EventOption {
	return func(m *Metadata) {
		if n >= 0 {
			m.MaxRetries = n
		}
	}
}

// WithRetryDelay sets the base delay between retry attempts.
func WithRetryDelay(d time.Duration) EventOption {
	return func(m *Metadata) {
		if d > 0 {
			m.RetryDelay = d
		}
	}
}

// WithTimeout sets a wall-clock expiry for the event, measured from creation.
// Expired events are marked failed without invoking handlers.
func WithTimeout(d time.Duration) EventOption {
	return func(m *Metadata) {
		if d > 0 {
			m.Timeout = d
		}
	}
}

// WithHeaders sets arbitrary transport headers.
func WithHeaders(headers map[string]any) EventOption {
	return func(m *Metadata) { m.Headers = headers }
}

// WithTags sets the event tags used by tag filters.
func WithTags(tags ...string) EventOption {
	return func(m *Metadata) { m.Tags = tags }
}

// New creates an Event in the pending state with a time-ordered UUIDv7
// identifier (falling back to UUIDv4 if v7 generation fails).
//
// Example:
//
//	evt := event.New("user.created",
//	    map[string]any{"user_id": "123"},
//	    event.WithPriority(event.PriorityHigh),
//	    event.WithSource("api"),
//	)
func New(eventType string, payload map[string]any, opts ...EventOption) *Event {
	meta := Metadata{
		EventID:      newEventID(),
		EventType:    eventType,
		Timestamp:    time.Now(),
		Priority:     PriorityNormal,
		DeliveryMode: DeliveryAtLeastOnce,
		MaxRetries:   DefaultMaxRetries,
		RetryDelay:   DefaultRetryDelay,
	}

	for _, opt := range opts {
		opt(&meta)
	}

	return &Event{
		Metadata: meta,
		Payload:  payload,
		Status:   StatusPending,
	}
}

func newEventID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

// MarkProcessing transitions the event into the processing state.
func (e *Event) MarkProcessing() {
	e.Status = StatusProcessing
}

// MarkCompleted transitions the event into the terminal completed state.
func (e *Event) MarkCompleted() {
	e.Status = StatusCompleted
}

// MarkFailed records the failure reason and transitions into the failed state.
func (e *Event) MarkFailed(errMsg string) {
	e.Status = StatusFailed
	e.ErrorMessage = errMsg
}

// MarkRetrying transitions a failed event into the retrying state and
// increments the retry counter. RetryCount only ever increases.
func (e *Event) MarkRetrying() {
	e.Status = StatusRetrying
	e.RetryCount++
}

// Cancel transitions the event into the terminal cancelled state.
func (e *Event) Cancel() {
	e.Status = StatusCancelled
}

// CanRetry reports whether the event is failed with retry budget remaining.
func (e *Event) CanRetry() bool {
	return e.Status == StatusFailed && e.RetryCount < e.Metadata.MaxRetries
}

// IsExpired reports whether the event's timeout elapsed since creation.
// Events without a timeout never expire.
func (e *Event) IsExpired() bool {
	if e.Metadata.Timeout <= 0 {
		return false
	}
	return time.Since(e.Metadata.Timestamp) > e.Metadata.Timeout
}
