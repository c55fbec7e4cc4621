package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstreamhq/relay/core/config"
)

// Each test uses its own config type and env var names: the cache is
// keyed by concrete type and shared across the whole test binary.

func TestLoad_Defaults(t *testing.T) {
	type defaultsConfig struct {
		Host    string        `env:"CONFIG_TEST_DEFAULTS_HOST" envDefault:"localhost"`
		Port    int           `env:"CONFIG_TEST_DEFAULTS_PORT" envDefault:"8080"`
		Timeout time.Duration `env:"CONFIG_TEST_DEFAULTS_TIMEOUT" envDefault:"30s"`
	}

	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoad_FromEnvironment(t *testing.T) {
	type envConfig struct {
		URL string `env:"CONFIG_TEST_ENV_URL" envDefault:"unset"`
	}

	t.Setenv("CONFIG_TEST_ENV_URL", "postgres://localhost:5432/app")

	var cfg envConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "postgres://localhost:5432/app", cfg.URL)
}

func TestLoad_CachesPerType(t *testing.T) {
	type cachedConfig struct {
		Value string `env:"CONFIG_TEST_CACHE_VALUE" envDefault:"unset"`
	}

	t.Setenv("CONFIG_TEST_CACHE_VALUE", "first")

	var first cachedConfig
	require.NoError(t, config.Load(&first))
	require.Equal(t, "first", first.Value)

	// Environment changes after the first load are not observed.
	t.Setenv("CONFIG_TEST_CACHE_VALUE", "second")

	var second cachedConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Value)
}

func TestLoad_RequiredMissing(t *testing.T) {
	type requiredConfig struct {
		Secret string `env:"CONFIG_TEST_REQUIRED_SECRET,required"`
	}

	var cfg requiredConfig
	err := config.Load(&cfg)
	assert.ErrorIs(t, err, config.ErrParsingFailed)
}

func TestLoad_NilPointer(t *testing.T) {
	type nilConfig struct {
		Value string `env:"CONFIG_TEST_NIL_VALUE"`
	}

	var cfg *nilConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilConfig)
}

func TestMustLoad(t *testing.T) {
	type mustConfig struct {
		Name string `env:"CONFIG_TEST_MUST_NAME" envDefault:"relay"`
	}

	t.Run("success", func(t *testing.T) {
		var cfg mustConfig
		assert.NotPanics(t, func() { config.MustLoad(&cfg) })
		assert.Equal(t, "relay", cfg.Name)
	})

	t.Run("panics on failure", func(t *testing.T) {
		type mustFailConfig struct {
			Token string `env:"CONFIG_TEST_MUST_TOKEN,required"`
		}

		var cfg mustFailConfig
		assert.Panics(t, func() { config.MustLoad(&cfg) })
	})
}
