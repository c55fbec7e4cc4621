package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisEnvelope is the wire representation of a Message on Redis channels,
// the delayed set, and the dead-letter list.
type redisEnvelope struct {
	ID            string          `json:"id"`
	Topic         string          `json:"topic"`
	Payload       json.RawMessage `json:"payload"`
	Priority      int             `json:"priority"`
	Headers       map[string]any  `json:"headers,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

func (e redisEnvelope) message() Message {
	return Message{
		ID:            e.ID,
		Topic:         e.Topic,
		Payload:       []byte(e.Payload),
		Priority:      e.Priority,
		Headers:       e.Headers,
		CorrelationID: e.CorrelationID,
	}
}

// RedisTransport moves events across process boundaries over Redis pub/sub.
// Delayed deliveries are parked in a sorted set scored by due time and
// republished by a background poller. Rejected messages without requeue go
// to a dead-letter list.
//
// The caller owns the client; Disconnect stops the poller and active
// subscriptions but does not close the client.
type RedisTransport struct {
	client       *redis.Client
	logger       *slog.Logger
	keyPrefix    string
	pollInterval time.Duration
	bufferSize   int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// RedisTransportOption configures a RedisTransport.
type RedisTransportOption func(*RedisTransport)

// WithRedisKeyPrefix namespaces the delayed set and dead-letter list keys.
// Default is "relay".
func WithRedisKeyPrefix(prefix string) RedisTransportOption {
	return func(t *RedisTransport) {
		if prefix != "" {
			t.keyPrefix = prefix
		}
	}
}

// WithRedisPollInterval sets how often the delayed set is scanned for due
// messages. Default is 1s.
func WithRedisPollInterval(d time.Duration) RedisTransportOption {
	return func(t *RedisTransport) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// WithRedisBufferSize sets the per-subscription channel capacity.
func WithRedisBufferSize(n int) RedisTransportOption {
	return func(t *RedisTransport) {
		if n > 0 {
			t.bufferSize = n
		}
	}
}

// WithRedisTransportLogger configures structured logging for transport
// operations.
func WithRedisTransportLogger(logger *slog.Logger) RedisTransportOption {
	return func(t *RedisTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewRedisTransport creates a transport backed by the given Redis client.
func NewRedisTransport(client *redis.Client, opts ...RedisTransportOption) (*RedisTransport, error) {
	if client == nil {
		return nil, ErrNilTransport
	}

	t := &RedisTransport{
		client:       client,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		keyPrefix:    "relay",
		pollInterval: time.Second,
		bufferSize:   DefaultBufferCapacity,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

func (t *RedisTransport) delayedKey() string { return t.keyPrefix + ":delayed" }
func (t *RedisTransport) deadKey() string    { return t.keyPrefix + ":dead" }

// Connect verifies connectivity and starts the delayed-delivery poller.
func (t *RedisTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.cancel != nil {
		return nil
	}

	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel

	t.wg.Add(1)
	go t.pollDelayed(pollCtx)

	return nil
}

// Disconnect stops the poller. Safe to call more than once.
func (t *RedisTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	return nil
}

// Publish delivers a payload to every matching subscription and returns the
// message ID.
func (t *RedisTransport) Publish(ctx context.Context, topic string, payload []byte, priority int, headers map[string]any, correlationID string) (string, error) {
	env := redisEnvelope{
		ID:            uuid.New().String(),
		Topic:         topic,
		Payload:       payload,
		Priority:      priority,
		Headers:       headers,
		CorrelationID: correlationID,
	}
	if err := t.publishEnvelope(ctx, env); err != nil {
		return "", err
	}
	return env.ID, nil
}

func (t *RedisTransport) publishEnvelope(ctx context.Context, env redisEnvelope) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := t.client.Publish(ctx, t.channelFor(env.Topic), raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (t *RedisTransport) channelFor(topic string) string {
	return t.keyPrefix + ":" + topic
}

// redisGlob widens a segment pattern into a Redis glob. Over-matching is
// fine because received topics are re-checked with MatchTopic.
func (t *RedisTransport) redisGlob(pattern string) string {
	if fixed, ok := strings.CutSuffix(pattern, ".*"); ok {
		return t.keyPrefix + ":" + fixed + "*"
	}
	return t.keyPrefix + ":" + pattern
}

// Subscribe returns a channel of messages whose topics match the pattern.
// The subscription ends when the context is cancelled.
func (t *RedisTransport) Subscribe(ctx context.Context, pattern string) (<-chan Message, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	pubsub := t.client.PSubscribe(ctx, t.redisGlob(pattern))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis psubscribe: %w", err)
	}

	out := make(chan Message, t.bufferSize)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}

				var env redisEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					t.logger.Warn("discarding malformed message",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()))
					continue
				}
				if !MatchTopic(pattern, env.Topic) {
					continue
				}

				select {
				case out <- env.message():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Enqueue schedules a payload for delivery after the given delay. A zero
// delay publishes immediately.
func (t *RedisTransport) Enqueue(ctx context.Context, topic string, payload []byte, priority int, delay time.Duration) (string, error) {
	env := redisEnvelope{
		ID:       uuid.New().String(),
		Topic:    topic,
		Payload:  payload,
		Priority: priority,
	}

	if delay <= 0 {
		if err := t.publishEnvelope(ctx, env); err != nil {
			return "", err
		}
		return env.ID, nil
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}

	due := float64(time.Now().Add(delay).UnixNano())
	if err := t.client.ZAdd(ctx, t.delayedKey(), redis.Z{Score: due, Member: string(raw)}).Err(); err != nil {
		return "", fmt.Errorf("redis zadd delayed: %w", err)
	}
	return env.ID, nil
}

func (t *RedisTransport) pollDelayed(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.drainDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Warn("delayed delivery poll failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

func (t *RedisTransport) drainDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixNano(), 10)

	members, err := t.client.ZRangeByScore(ctx, t.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("redis zrangebyscore: %w", err)
	}

	for _, raw := range members {
		// Remove first so concurrent pollers cannot double-deliver.
		removed, err := t.client.ZRem(ctx, t.delayedKey(), raw).Result()
		if err != nil {
			return fmt.Errorf("redis zrem: %w", err)
		}
		if removed == 0 {
			continue
		}

		var env redisEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			t.logger.Warn("discarding malformed delayed message",
				slog.String("error", err.Error()))
			continue
		}
		if err := t.publishEnvelope(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// Acknowledge is a no-op: Redis pub/sub has no broker-side delivery state.
func (t *RedisTransport) Acknowledge(ctx context.Context, msg Message) error {
	return nil
}

// Reject requeues the message for redelivery, or pushes it onto the
// dead-letter list when requeue is false.
func (t *RedisTransport) Reject(ctx context.Context, msg Message, requeue bool) error {
	env := redisEnvelope{
		ID:            msg.ID,
		Topic:         msg.Topic,
		Payload:       msg.Payload,
		Priority:      msg.Priority,
		Headers:       msg.Headers,
		CorrelationID: msg.CorrelationID,
	}

	if requeue {
		return t.publishEnvelope(ctx, env)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := t.client.LPush(ctx, t.deadKey(), raw).Err(); err != nil {
		return fmt.Errorf("redis lpush dead letter: %w", err)
	}

	t.logger.Warn("message dead-lettered",
		slog.String("message_id", msg.ID),
		slog.String("topic", msg.Topic))
	return nil
}

// DeadLetters returns up to limit dead-lettered messages, newest first,
// without removing them.
func (t *RedisTransport) DeadLetters(ctx context.Context, limit int64) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}

	raws, err := t.client.LRange(ctx, t.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange dead letter: %w", err)
	}

	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var env redisEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			continue
		}
		out = append(out, env.message())
	}
	return out, nil
}

// Healthcheck reports whether the Redis backend is reachable.
func (t *RedisTransport) Healthcheck(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}
