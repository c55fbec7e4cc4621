package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/workstreamhq/relay/core/logger"
)

// Check is a dependency probe. Components expose this signature as
// Healthcheck(ctx), so they register directly:
//
//	checker.Register("queue_worker", worker.Healthcheck)
type Check func(ctx context.Context) error

// Checker aggregates named dependency checks into a single readiness
// decision. Safe for concurrent use.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	logger  *slog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCheckTimeout bounds each individual check. Defaults to 5s.
func WithCheckTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCheckerLogger sets the logger for check failures.
func WithCheckerLogger(log *slog.Logger) CheckerOption {
	return func(c *Checker) {
		if log != nil {
			c.logger = log
		}
	}
}

// NewChecker creates an empty Checker.
func NewChecker(opts ...CheckerOption) *Checker {
	c := &Checker{
		checks:  make(map[string]Check),
		timeout: 5 * time.Second,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a named check. Names must be unique.
func (c *Checker) Register(name string, check Check) error {
	if check == nil {
		return ErrNilCheck
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.checks[name]; exists {
		return fmt.Errorf("%w: %s", ErrCheckAlreadyRegistered, name)
	}
	c.checks[name] = check
	return nil
}

// Unregister removes a check. Unknown names are a no-op.
func (c *Checker) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Names returns the registered check names in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll runs every registered check and returns nil only when all
// pass. Failures are joined with ErrUnhealthy and logged. Each check
// runs under its own timeout so one hung dependency cannot stall the
// whole probe indefinitely.
func (c *Checker) CheckAll(ctx context.Context) error {
	report := c.Report(ctx)

	var errs []error
	for _, name := range sortedKeys(report) {
		if err := report[name]; err != nil {
			c.logger.ErrorContext(ctx, "health check failed",
				logger.Component(name),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(ErrUnhealthy, errors.Join(errs...))
	}
	return nil
}

// Report runs every registered check and returns the per-check result,
// nil for healthy entries.
func (c *Checker) Report(ctx context.Context) map[string]error {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	report := make(map[string]error, len(checks))
	for name, check := range checks {
		report[name] = c.runCheck(ctx, check)
	}
	return report
}

// Healthy reports whether all checks currently pass.
func (c *Checker) Healthy(ctx context.Context) bool {
	return c.CheckAll(ctx) == nil
}

func (c *Checker) runCheck(ctx context.Context, check Check) error {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- check(checkCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-checkCtx.Done():
		// The check ignored its context; report the timeout instead of
		// waiting forever.
		return checkCtx.Err()
	}
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
