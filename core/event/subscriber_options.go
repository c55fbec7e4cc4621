package event

import "log/slog"

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithSubscriberConfig replaces the full subscriber configuration.
// Zero-valued fields fall back to their defaults.
func WithSubscriberConfig(cfg SubscriberConfig) SubscriberOption {
	return func(s *Subscriber) {
		def := DefaultSubscriberConfig()
		if cfg.DefaultMode == "" {
			cfg.DefaultMode = def.DefaultMode
		}
		if cfg.MaxSubscriptions <= 0 {
			cfg.MaxSubscriptions = def.MaxSubscriptions
		}
		if cfg.BufferSize <= 0 {
			cfg.BufferSize = def.BufferSize
		}
		if cfg.MaxConcurrentHandlers <= 0 {
			cfg.MaxConcurrentHandlers = def.MaxConcurrentHandlers
		}
		if cfg.HandlerTimeout <= 0 {
			cfg.HandlerTimeout = def.HandlerTimeout
		}
		if cfg.HealthCheckInterval <= 0 {
			cfg.HealthCheckInterval = def.HealthCheckInterval
		}
		s.cfg = cfg
	}
}

// WithSubscriberLogger configures structured logging for subscriber operations.
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxSubscriptions caps the number of concurrent subscriptions.
func WithMaxSubscriptions(n int) SubscriberOption {
	return func(s *Subscriber) {
		if n > 0 {
			s.cfg.MaxSubscriptions = n
		}
	}
}

// WithDefaultMode sets the consumption mode applied when a subscription
// does not choose one.
func WithDefaultMode(mode SubscriptionMode) SubscriberOption {
	return func(s *Subscriber) {
		switch mode {
		case ModePush, ModePull, ModeHybrid:
			s.cfg.DefaultMode = mode
		}
	}
}

// subscribeConfig accumulates per-subscription options before the
// ManagedSubscription is materialized.
type subscribeConfig struct {
	eventType     string
	predicate     func(*Event) bool
	filter        *Filter
	mode          SubscriptionMode
	maxConcurrent int
	bufferSize    int
}

func (c *subscribeConfig) apply(ms *ManagedSubscription) {
	if c.eventType != "" {
		ms.EventType = c.eventType
	}
	if c.predicate != nil {
		ms.Predicate = c.predicate
	}
	if c.filter != nil {
		ms.Filter = c.filter
	}
	if c.mode != "" {
		ms.Mode = c.mode
	}
	if c.maxConcurrent >= 1 {
		ms.MaxConcurrent = c.maxConcurrent
	}
}

// SubscribeOption configures a single subscription at registration time.
type SubscribeOption func(*subscribeConfig)

// SubscribeEventType binds the subscription to a single event type,
// overriding the handler's own type binding.
func SubscribeEventType(eventType string) SubscribeOption {
	return func(c *subscribeConfig) { c.eventType = eventType }
}

// SubscribePredicate adds an arbitrary match predicate.
func SubscribePredicate(predicate func(*Event) bool) SubscribeOption {
	return func(c *subscribeConfig) { c.predicate = predicate }
}

// SubscribeFilter attaches a structural filter evaluated during routing.
func SubscribeFilter(filter *Filter) SubscribeOption {
	return func(c *subscribeConfig) { c.filter = filter }
}

// SubscribeMode selects push, pull, or hybrid consumption for this
// subscription.
func SubscribeMode(mode SubscriptionMode) SubscribeOption {
	return func(c *subscribeConfig) { c.mode = mode }
}

// SubscribeMaxConcurrent caps concurrent handler invocations for this
// subscription.
func SubscribeMaxConcurrent(n int) SubscribeOption {
	return func(c *subscribeConfig) { c.maxConcurrent = n }
}

// SubscribeBufferSize overrides the buffer capacity for pull and hybrid
// subscriptions.
func SubscribeBufferSize(n int) SubscribeOption {
	return func(c *subscribeConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}
