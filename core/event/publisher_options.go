package event

import (
	"log/slog"
	"time"
)

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherConfig replaces the full publisher configuration.
// Zero-valued fields fall back to their defaults.
func WithPublisherConfig(cfg Config) PublisherOption {
	return func(p *Publisher) {
		def := DefaultConfig()
		if cfg.TopicPrefix == "" {
			cfg.TopicPrefix = def.TopicPrefix
		}
		if cfg.MaxConcurrentEvents <= 0 {
			cfg.MaxConcurrentEvents = def.MaxConcurrentEvents
		}
		if cfg.DefaultMaxRetries < 0 {
			cfg.DefaultMaxRetries = def.DefaultMaxRetries
		}
		if cfg.DefaultRetryDelay <= 0 {
			cfg.DefaultRetryDelay = def.DefaultRetryDelay
		}
		if cfg.SubscriptionTimeout <= 0 {
			cfg.SubscriptionTimeout = def.SubscriptionTimeout
		}
		if cfg.ShutdownTimeout <= 0 {
			cfg.ShutdownTimeout = def.ShutdownTimeout
		}
		p.cfg = cfg
	}
}

// WithCodec sets the wire codec. Default is JSONCodec.
func WithCodec(codec Codec) PublisherOption {
	return func(p *Publisher) {
		if codec != nil {
			p.codec = codec
		}
	}
}

// WithPublisherLogger configures structured logging for publisher operations.
// Use slog.New(slog.NewTextHandler(io.Discard, nil)) to disable logging.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTopicPrefix overrides the topic prefix used for publish and subscribe.
func WithTopicPrefix(prefix string) PublisherOption {
	return func(p *Publisher) {
		if prefix != "" {
			p.cfg.TopicPrefix = prefix
		}
	}
}

// WithMaxConcurrentEvents caps concurrent handler invocations across all
// subscriptions.
func WithMaxConcurrentEvents(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.cfg.MaxConcurrentEvents = n
		}
	}
}

// WithSubscriptionTimeout sets the per-invocation handler timeout.
func WithSubscriptionTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.cfg.SubscriptionTimeout = d
		}
	}
}

// WithRetryPolicy configures the retry backoff applied to failed events.
func WithRetryPolicy(baseDelay time.Duration, exponential bool, maxDelay time.Duration) PublisherOption {
	return func(p *Publisher) {
		if baseDelay > 0 {
			p.cfg.DefaultRetryDelay = baseDelay
		}
		p.cfg.ExponentialBackoff = exponential
		if maxDelay > 0 {
			p.cfg.MaxRetryDelay = maxDelay
		}
	}
}
