package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstreamhq/relay/core/queue"
)

func memoryFactory(ctx context.Context, cfg queue.Config) (queue.Storage, error) {
	return queue.NewMemoryStorage(), nil
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	r := queue.NewRegistry()

	require.NoError(t, r.Register("memory", memoryFactory))
	assert.ErrorIs(t, r.Register("memory", memoryFactory), queue.ErrProviderAlreadyRegistered)
	assert.Error(t, r.Register("", memoryFactory))
	assert.Error(t, r.Register("nilfactory", nil))

	assert.Equal(t, []string{"memory"}, r.Names())
}

func TestRegistry_Open(t *testing.T) {
	t.Parallel()

	r := queue.NewRegistry()
	require.NoError(t, r.Register("memory", memoryFactory))

	ctx := context.Background()
	cfg := queue.DefaultConfig()

	storage, err := r.Open(ctx, "memory", cfg)
	require.NoError(t, err)
	assert.NotNil(t, storage)

	_, err = r.Open(ctx, "unknown", cfg)
	assert.ErrorIs(t, err, queue.ErrProviderNotFound)
}

func TestRegistry_EnableDisable(t *testing.T) {
	t.Parallel()

	r := queue.NewRegistry()
	require.NoError(t, r.Register("memory", memoryFactory))

	require.NoError(t, r.Disable("memory"))
	_, err := r.Open(context.Background(), "memory", queue.DefaultConfig())
	assert.ErrorIs(t, err, queue.ErrProviderDisabled)

	require.NoError(t, r.Enable("memory"))
	_, err = r.Open(context.Background(), "memory", queue.DefaultConfig())
	assert.NoError(t, err)

	assert.ErrorIs(t, r.Disable("unknown"), queue.ErrProviderNotFound)
}

func TestRegistry_Override(t *testing.T) {
	t.Parallel()

	r := queue.NewRegistry()
	require.NoError(t, r.Register("memory", func(ctx context.Context, cfg queue.Config) (queue.Storage, error) {
		t.Fatal("overridden factory must not be called")
		return nil, nil
	}))

	r.Override("memory", memoryFactory)

	storage, err := r.Open(context.Background(), "memory", queue.DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, storage)
}

func TestRegistry_OpenFromConfig(t *testing.T) {
	t.Parallel()

	r := queue.NewDefaultRegistry()

	t.Run("configured provider", func(t *testing.T) {
		t.Parallel()

		cfg := queue.DefaultConfig()
		cfg.Provider = "memory"

		storage, err := r.OpenFromConfig(context.Background(), cfg)
		require.NoError(t, err)
		assert.IsType(t, &queue.MemoryStorage{}, storage)
	})

	t.Run("empty provider falls back to memory", func(t *testing.T) {
		t.Parallel()

		cfg := queue.DefaultConfig()
		cfg.Provider = ""

		storage, err := r.OpenFromConfig(context.Background(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, storage)
	})

	t.Run("postgres without database url fails", func(t *testing.T) {
		t.Parallel()

		cfg := queue.DefaultConfig()
		cfg.Provider = "postgres"

		_, err := r.OpenFromConfig(context.Background(), cfg)
		assert.Error(t, err)
	})
}

func TestNewDefaultRegistry(t *testing.T) {
	t.Parallel()

	r := queue.NewDefaultRegistry()
	assert.Equal(t, []string{"memory", "postgres"}, r.Names())
}
