package event

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultMemoryBufferSize is the per-subscriber channel buffer of the
// in-memory transport.
const DefaultMemoryBufferSize = 100

// MemoryTransport is a channel-based Transport for single-process use.
// Publishing fans out to every subscriber whose pattern matches the topic.
// Delivery is non-durable: messages to slow subscribers are dropped once
// their buffer fills, and nothing survives a restart.
type MemoryTransport struct {
	mu        sync.RWMutex
	connected bool
	subs      map[uuid.UUID]*memorySub
	timers    map[uuid.UUID]*time.Timer
	dead      []Message
	acked     int64

	// dropped is atomic: Publish increments it under the read lock, so
	// concurrent publishers may race on it otherwise.
	dropped atomic.Int64

	bufferSize int
	logger     *slog.Logger
}

type memorySub struct {
	pattern string
	ch      chan Message
}

// MemoryTransportOption configures a MemoryTransport.
type MemoryTransportOption func(*MemoryTransport)

// WithMemoryBufferSize sets the per-subscriber channel buffer size.
func WithMemoryBufferSize(size int) MemoryTransportOption {
	return func(t *MemoryTransport) {
		if size > 0 {
			t.bufferSize = size
		}
	}
}

// WithMemoryTransportLogger configures structured logging.
func WithMemoryTransportLogger(logger *slog.Logger) MemoryTransportOption {
	return func(t *MemoryTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewMemoryTransport creates an in-memory transport.
func NewMemoryTransport(opts ...MemoryTransportOption) *MemoryTransport {
	t := &MemoryTransport{
		subs:       make(map[uuid.UUID]*memorySub),
		timers:     make(map[uuid.UUID]*time.Timer),
		bufferSize: DefaultMemoryBufferSize,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Connect marks the transport ready. Idempotent.
func (t *MemoryTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

// Disconnect stops pending delayed deliveries and closes all subscriber
// channels. Idempotent.
func (t *MemoryTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}
	t.connected = false

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}

	for id, sub := range t.subs {
		close(sub.ch)
		delete(t.subs, id)
	}

	t.logger.Info("memory transport disconnected")
	return nil
}

// Publish fans the message out to all matching subscribers.
// Slow subscribers with a full buffer are skipped, never blocked on.
func (t *MemoryTransport) Publish(ctx context.Context, topic string, payload []byte, priority int, headers map[string]any, correlationID string) (string, error) {
	msg := Message{
		ID:            uuid.New().String(),
		Topic:         topic,
		Payload:       payload,
		Priority:      priority,
		Headers:       headers,
		CorrelationID: correlationID,
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.connected {
		return "", ErrTransportClosed
	}

	for _, sub := range t.subs {
		if !MatchTopic(sub.pattern, topic) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			t.dropped.Add(1)
			t.logger.WarnContext(ctx, "subscriber buffer full, message dropped",
				slog.String("topic", topic),
				slog.String("pattern", sub.pattern))
		}
	}

	return msg.ID, nil
}

// Subscribe registers a pattern subscriber. The returned channel closes when
// ctx is cancelled or the transport disconnects.
func (t *MemoryTransport) Subscribe(ctx context.Context, pattern string) (<-chan Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil, ErrTransportClosed
	}

	id := uuid.New()
	sub := &memorySub{pattern: pattern, ch: make(chan Message, t.bufferSize)}
	t.subs[id] = sub

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		defer t.mu.Unlock()
		if s, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(s.ch)
		}
	}()

	return sub.ch, nil
}

// Enqueue publishes immediately or after the given delay.
func (t *MemoryTransport) Enqueue(ctx context.Context, topic string, payload []byte, priority int, delay time.Duration) (string, error) {
	if delay <= 0 {
		return t.Publish(ctx, topic, payload, priority, nil, "")
	}

	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return "", ErrTransportClosed
	}

	id := uuid.New()
	timer := time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		// Best effort: the transport may have disconnected meanwhile.
		_, _ = t.Publish(context.Background(), topic, payload, priority, nil, "")
	})
	t.timers[id] = timer
	t.mu.Unlock()

	return id.String(), nil
}

// Acknowledge records a successful delivery.
func (t *MemoryTransport) Acknowledge(ctx context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acked++
	return nil
}

// Reject requeues the message or records it as a dead letter.
func (t *MemoryTransport) Reject(ctx context.Context, msg Message, requeue bool) error {
	if requeue {
		_, err := t.Publish(ctx, msg.Topic, msg.Payload, msg.Priority, msg.Headers, msg.CorrelationID)
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.dead = append(t.dead, msg)
	return nil
}

// DeadLetters returns a snapshot of messages rejected without requeue.
func (t *MemoryTransport) DeadLetters() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.dead))
	copy(out, t.dead)
	return out
}

// Acknowledged returns the count of acknowledged messages.
func (t *MemoryTransport) Acknowledged() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.acked
}

// Dropped returns the count of messages discarded on full subscriber buffers.
func (t *MemoryTransport) Dropped() int64 {
	return t.dropped.Load()
}
