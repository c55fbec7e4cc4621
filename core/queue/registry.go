package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProviderFactory builds a storage backend from configuration.
type ProviderFactory func(ctx context.Context, cfg Config) (Storage, error)

// Registry maps provider names to storage factories. It replaces ambient
// discovery: providers are registered explicitly and resolved by name, with
// the active provider selected through Config.Provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*providerEntry
}

type providerEntry struct {
	factory ProviderFactory
	enabled bool
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*providerEntry),
	}
}

// NewDefaultRegistry creates a registry with the built-in providers:
// "memory" backed by MemoryStorage, and "postgres" backed by a pgx pool
// built from Config.DatabaseURL (with migrations applied on open).
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("memory", func(ctx context.Context, cfg Config) (Storage, error) {
		return NewMemoryStorage(), nil
	})
	_ = r.Register("postgres", openPostgresProvider)
	return r
}

// Register adds a provider under the given name. Registering an existing
// name fails; use Override to replace a registration.
func (r *Registry) Register(name string, factory ProviderFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("provider name and factory must be set")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %q", ErrProviderAlreadyRegistered, name)
	}

	r.providers[name] = &providerEntry{factory: factory, enabled: true}
	return nil
}

// Override replaces (or adds) a provider registration. Intended for hosts
// that swap a built-in provider for a custom implementation.
func (r *Registry) Override(name string, factory ProviderFactory) {
	if name == "" || factory == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[name] = &providerEntry{factory: factory, enabled: true}
}

// Enable marks a provider as resolvable.
func (r *Registry) Enable(name string) error {
	return r.setEnabled(name, true)
}

// Disable keeps a provider registered but makes resolution fail.
func (r *Registry) Disable(name string) error {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.providers[name]
	if !exists {
		return fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}

	entry.enabled = enabled
	return nil
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open resolves a provider by name and builds its storage.
func (r *Registry) Open(ctx context.Context, name string, cfg Config) (Storage, error) {
	r.mu.RLock()
	entry, exists := r.providers[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	if !entry.enabled {
		return nil, fmt.Errorf("%w: %q", ErrProviderDisabled, name)
	}

	storage, err := entry.factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage provider %q: %w", name, err)
	}

	return storage, nil
}

// OpenFromConfig resolves the provider named by Config.Provider.
func (r *Registry) OpenFromConfig(ctx context.Context, cfg Config) (Storage, error) {
	name := cfg.Provider
	if name == "" {
		name = "memory"
	}
	return r.Open(ctx, name, cfg)
}

// openPostgresProvider builds a pgx pool from the configured database URL,
// applies queue migrations, and wraps the storage so closing it also closes
// the pool it owns.
func openPostgresProvider(ctx context.Context, cfg Config) (Storage, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("postgres provider requires QUEUE_DATABASE_URL")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	storage, err := NewPostgresStorage(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	if err := storage.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &ownedPostgresStorage{PostgresStorage: storage, pool: pool}, nil
}

// ownedPostgresStorage closes the pool it created; callers that built their
// own pool use NewPostgresStorage directly and keep pool ownership.
type ownedPostgresStorage struct {
	*PostgresStorage
	pool *pgxpool.Pool
}

func (s *ownedPostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
