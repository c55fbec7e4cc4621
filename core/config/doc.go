// Package config provides type-safe environment variable loading with
// per-type caching using Go generics. Each configuration type is parsed
// once and cached for subsequent calls.
//
// The package applies a .env file on first use, if one exists, and uses
// the caarlos0/env library for parsing environment variables into struct
// fields.
//
// Basic usage:
//
//	import "github.com/workstreamhq/relay/core/config"
//
//	type QueueConfig struct {
//		Provider    string `env:"QUEUE_PROVIDER" envDefault:"memory"`
//		DatabaseURL string `env:"QUEUE_DATABASE_URL"`
//	}
//
//	func main() {
//		var cfg QueueConfig
//
//		// Load with error handling
//		if err := config.Load(&cfg); err != nil {
//			log.Fatal(err)
//		}
//
//		// Or panic on failure (useful for startup)
//		config.MustLoad(&cfg)
//	}
//
// # Caching Behavior
//
// Each configuration type is loaded only once per application lifetime:
//
//	var cfg1 QueueConfig
//	config.Load(&cfg1) // Parses the environment
//
//	var cfg2 QueueConfig
//	config.Load(&cfg2) // Returns the cached value, cfg1 == cfg2
//
// Different types are cached independently:
//
//	type EventBusConfig struct {
//		DefaultTimeout time.Duration `env:"EVENT_DEFAULT_TIMEOUT" envDefault:"30s"`
//	}
//
//	type RedisConfig struct {
//		URL string `env:"REDIS_URL,required"`
//	}
//
//	// Each type has its own cache entry
//	config.MustLoad(&EventBusConfig{})
//	config.MustLoad(&RedisConfig{})
package config
