package queue

import "time"

// Config holds configuration for all queue components. Designed for
// environment-based loading via env struct tags.
type Config struct {
	// Provider selects the storage backend resolved through a Registry.
	Provider    string `env:"QUEUE_PROVIDER" envDefault:"memory"`
	DatabaseURL string `env:"QUEUE_DATABASE_URL"`

	// Worker configuration
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"5s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
	Queues             []string      `env:"QUEUE_WORKER_QUEUES" envDefault:"default" envSeparator:","`

	// Scheduler configuration
	CheckInterval time.Duration `env:"QUEUE_CHECK_INTERVAL" envDefault:"10s"`

	// Enqueuer configuration
	DefaultQueue    string       `env:"QUEUE_DEFAULT_QUEUE" envDefault:"default"`
	DefaultPriority TaskPriority `env:"QUEUE_DEFAULT_PRIORITY" envDefault:"normal"`
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		Provider:           "memory",
		PollInterval:       5 * time.Second,
		LockTimeout:        5 * time.Minute,
		ShutdownTimeout:    30 * time.Second,
		MaxConcurrentTasks: 10,
		Queues:             []string{DefaultQueueName},
		CheckInterval:      10 * time.Second,
		DefaultQueue:       DefaultQueueName,
		DefaultPriority:    TaskPriorityDefault,
	}
}
