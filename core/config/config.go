package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// cache maps the concrete config type to its loaded value.
	cache sync.Map

	// dotenvOnce guards the one-time .env autoload.
	dotenvOnce sync.Once
)

// Load parses environment variables into cfg using env struct tags.
// Each concrete type is parsed at most once per process; later calls for
// the same type receive the cached value. A .env file in the working
// directory is applied before the first parse, if one exists.
func Load[T any](cfg *T) error {
	if cfg == nil {
		return ErrNilConfig
	}

	dotenvOnce.Do(func() {
		// A missing .env file is not an error; deployed environments
		// set variables directly.
		_ = godotenv.Load()
	})

	key := reflect.TypeOf(*cfg)
	if cached, ok := cache.Load(key); ok {
		*cfg = cached.(T)
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	// LoadOrStore keeps the first stored value if two goroutines race,
	// so every caller observes the same config.
	actual, _ := cache.LoadOrStore(key, *cfg)
	*cfg = actual.(T)
	return nil
}

// MustLoad is like Load but panics on failure. Intended for application
// startup where a missing required variable should abort the process.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
