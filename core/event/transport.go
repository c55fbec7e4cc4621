package event

import (
	"context"
	"strings"
	"time"
)

// Message is the transport-level envelope carrying an encoded event.
type Message struct {
	ID            string
	Topic         string
	Payload       []byte
	Priority      int
	Headers       map[string]any
	CorrelationID string
}

// Transport abstracts the message broker the bus runs on. Implementations
// must be safe for concurrent use; Connect and Disconnect are idempotent.
type Transport interface {
	// Connect establishes the broker connection.
	Connect(ctx context.Context) error

	// Disconnect tears down the connection and releases resources.
	Disconnect(ctx context.Context) error

	// Publish sends a payload to a topic and returns the message ID.
	Publish(ctx context.Context, topic string, payload []byte, priority int, headers map[string]any, correlationID string) (string, error)

	// Subscribe returns a stream of messages for topics matching the pattern.
	// The stream is scoped to ctx: cancellation closes the channel.
	Subscribe(ctx context.Context, pattern string) (<-chan Message, error)

	// Enqueue is Publish with explicit support for delayed delivery.
	Enqueue(ctx context.Context, topic string, payload []byte, priority int, delay time.Duration) (string, error)

	// Acknowledge confirms successful processing of a message.
	Acknowledge(ctx context.Context, msg Message) error

	// Reject signals failed processing. With requeue false the message is a
	// dead-letter candidate.
	Reject(ctx context.Context, msg Message, requeue bool) error
}

// MatchTopic reports whether a dotted topic matches a pattern.
//
// A trailing "*" segment matches zero or more following segments
// ("events.*" matches both "events.foo" and "events.foo.bar").
// An interior "*" segment matches exactly one segment.
// Without wildcards the match is an exact string comparison.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patternSegs := strings.Split(pattern, ".")
	topicSegs := strings.Split(topic, ".")

	for i, seg := range patternSegs {
		if seg == "*" && i == len(patternSegs)-1 {
			// Trailing wildcard: zero or more remaining segments.
			return i <= len(topicSegs)
		}
		if i >= len(topicSegs) {
			return false
		}
		if seg == "*" {
			continue
		}
		if seg != topicSegs[i] {
			return false
		}
	}

	return len(topicSegs) == len(patternSegs)
}
