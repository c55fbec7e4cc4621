package event

import "time"

// Config holds publisher-side settings.
// Designed for environment-based configuration using popular env parsing libraries.
type Config struct {
	TopicPrefix         string        `env:"EVENT_TOPIC_PREFIX" envDefault:"events"`
	MaxConcurrentEvents int           `env:"EVENT_MAX_CONCURRENT_EVENTS" envDefault:"100"`
	BatchSize           int           `env:"EVENT_BATCH_SIZE" envDefault:"10"`
	FlushInterval       time.Duration `env:"EVENT_FLUSH_INTERVAL" envDefault:"1s"`
	DefaultMaxRetries   int           `env:"EVENT_DEFAULT_MAX_RETRIES" envDefault:"3"`
	DefaultRetryDelay   time.Duration `env:"EVENT_DEFAULT_RETRY_DELAY" envDefault:"1s"`
	ExponentialBackoff  bool          `env:"EVENT_EXPONENTIAL_BACKOFF" envDefault:"true"`
	MaxRetryDelay       time.Duration `env:"EVENT_MAX_RETRY_DELAY" envDefault:"30s"`
	DefaultTimeout      time.Duration `env:"EVENT_DEFAULT_TIMEOUT" envDefault:"0"`
	SubscriptionTimeout time.Duration `env:"EVENT_SUBSCRIPTION_TIMEOUT" envDefault:"30s"`
	QueueMaxSize        int           `env:"EVENT_QUEUE_MAX_SIZE" envDefault:"1000"`
	EnableDeadLetter    bool          `env:"EVENT_ENABLE_DEAD_LETTER" envDefault:"true"`
	EnableMetrics       bool          `env:"EVENT_ENABLE_METRICS" envDefault:"true"`
	VerboseLogging      bool          `env:"EVENT_VERBOSE_LOGGING" envDefault:"false"`
	ShutdownTimeout     time.Duration `env:"EVENT_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns sensible publisher defaults for production use.
func DefaultConfig() Config {
	return Config{
		TopicPrefix:         "events",
		MaxConcurrentEvents: 100,
		BatchSize:           10,
		FlushInterval:       time.Second,
		DefaultMaxRetries:   3,
		DefaultRetryDelay:   time.Second,
		ExponentialBackoff:  true,
		MaxRetryDelay:       30 * time.Second,
		SubscriptionTimeout: 30 * time.Second,
		QueueMaxSize:        1000,
		EnableDeadLetter:    true,
		EnableMetrics:       true,
		ShutdownTimeout:     30 * time.Second,
	}
}

// RetryBackoff computes the delay before re-publishing an event whose
// retry counter is retryCount at computation time. The base is the event's
// own retry delay; DefaultRetryDelay applies only when the base is unset.
// With exponential backoff enabled the delay doubles per attempt and is
// clamped to MaxRetryDelay; otherwise it is the constant base. No jitter
// is applied.
func (c Config) RetryBackoff(base time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		base = c.DefaultRetryDelay
	}
	return retryBackoff(base, retryCount, c.ExponentialBackoff, c.MaxRetryDelay)
}

func retryBackoff(base time.Duration, retryCount int, exponential bool, maxDelay time.Duration) time.Duration {
	if !exponential {
		return base
	}

	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

// SubscriptionMode selects how a subscription consumes events.
type SubscriptionMode string

const (
	// ModePush delivers events by invoking the handler immediately.
	ModePush SubscriptionMode = "push"
	// ModePull buffers events for on-demand retrieval via PullEvents.
	ModePull SubscriptionMode = "pull"
	// ModeHybrid buffers events like pull mode while keeping the handler
	// registered for explicit dispatch.
	ModeHybrid SubscriptionMode = "hybrid"
)

// SubscriberConfig holds subscriber-side settings.
type SubscriberConfig struct {
	DefaultMode           SubscriptionMode `env:"EVENT_SUB_DEFAULT_MODE" envDefault:"push"`
	MaxSubscriptions      int              `env:"EVENT_SUB_MAX_SUBSCRIPTIONS" envDefault:"1000"`
	EnableBuffering       bool             `env:"EVENT_SUB_ENABLE_BUFFERING" envDefault:"true"`
	BufferSize            int              `env:"EVENT_SUB_BUFFER_SIZE" envDefault:"100"`
	BufferTimeout         time.Duration    `env:"EVENT_SUB_BUFFER_TIMEOUT" envDefault:"5s"`
	EnableBatching        bool             `env:"EVENT_SUB_ENABLE_BATCHING" envDefault:"false"`
	BatchSize             int              `env:"EVENT_SUB_BATCH_SIZE" envDefault:"10"`
	BatchTimeout          time.Duration    `env:"EVENT_SUB_BATCH_TIMEOUT" envDefault:"1s"`
	MaxConcurrentHandlers int              `env:"EVENT_SUB_MAX_CONCURRENT_HANDLERS" envDefault:"50"`
	HandlerTimeout        time.Duration    `env:"EVENT_SUB_HANDLER_TIMEOUT" envDefault:"30s"`
	EnableHealthCheck     bool             `env:"EVENT_SUB_ENABLE_HEALTH_CHECK" envDefault:"true"`
	HealthCheckInterval   time.Duration    `env:"EVENT_SUB_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// DefaultSubscriberConfig returns sensible subscriber defaults.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		DefaultMode:           ModePush,
		MaxSubscriptions:      1000,
		EnableBuffering:       true,
		BufferSize:            100,
		BufferTimeout:         5 * time.Second,
		BatchSize:             10,
		BatchTimeout:          time.Second,
		MaxConcurrentHandlers: 50,
		HandlerTimeout:        30 * time.Second,
		EnableHealthCheck:     true,
		HealthCheckInterval:   30 * time.Second,
	}
}
