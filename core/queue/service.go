package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Service provides a unified management interface for queue system
// components. It orchestrates Worker, Scheduler, and Enqueuer instances,
// handling their lifecycle and exposing convenience pass-throughs.
type Service struct {
	worker    *Worker
	scheduler *Scheduler
	enqueuer  *Enqueuer
	storage   Storage
	logger    *slog.Logger

	// Configuration for conditional startup
	skipWorkerIfNoHandlers bool
	skipSchedulerIfNoTasks bool

	// Hooks for custom initialization
	beforeStart func(context.Context) error
	afterStop   func() error
}

// NewService creates a new queue service with all components using the
// provided storage. Options can override component configuration.
//
// Example usage:
//
//	storage := queue.NewMemoryStorage()
//
//	service, err := queue.NewService(storage,
//	    queue.WithWorkerOptions(
//	        queue.WithPullInterval(100*time.Millisecond),
//	        queue.WithMaxConcurrentTasks(10),
//	    ),
//	    queue.WithServiceLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	type WelcomeEmail struct {
//	    To string `json:"to"`
//	}
//
//	service.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, task WelcomeEmail) error {
//	    return sendEmail(ctx, task.To)
//	}))
//
//	go func() {
//	    if err := service.Run(ctx); err != nil {
//	        log.Printf("queue service error: %v", err)
//	    }
//	}()
//
//	service.Enqueue(ctx, WelcomeEmail{To: "user@example.com"})
func NewService(storage Storage, opts ...ServiceOption) (*Service, error) {
	if storage == nil {
		return nil, ErrRepositoryNil
	}

	s := &Service{
		storage:                storage,
		logger:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
		skipWorkerIfNoHandlers: true,
		skipSchedulerIfNoTasks: true,
	}

	enqueuer, err := NewEnqueuer(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create enqueuer: %w", err)
	}
	s.enqueuer = enqueuer

	worker, err := NewWorker(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}
	s.worker = worker

	scheduler, err := NewScheduler(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.scheduler = scheduler

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply service option: %w", err)
		}
	}

	return s, nil
}

// NewServiceFromConfig creates a queue service with configuration applied
// to all components. Additional options override config values.
func NewServiceFromConfig(cfg Config, storage Storage, opts ...ServiceOption) (*Service, error) {
	serviceOpts := append([]ServiceOption{
		WithWorkerOptions(
			WithPullInterval(cfg.PollInterval),
			WithLockTimeout(cfg.LockTimeout),
			WithShutdownTimeout(cfg.ShutdownTimeout),
			WithMaxConcurrentTasks(cfg.MaxConcurrentTasks),
			WithQueues(cfg.Queues...),
		),
		WithSchedulerOptions(
			WithCheckInterval(cfg.CheckInterval),
			WithSchedulerShutdownTimeout(cfg.ShutdownTimeout),
		),
		WithEnqueuerOptions(
			WithDefaultQueue(cfg.DefaultQueue),
			WithDefaultPriority(cfg.DefaultPriority),
		),
	}, opts...)

	return NewService(storage, serviceOpts...)
}

// NewServiceFromRegistry resolves the storage provider named by
// Config.Provider through the registry and builds the service on top of it.
func NewServiceFromRegistry(ctx context.Context, registry *Registry, cfg Config, opts ...ServiceOption) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}

	storage, err := registry.OpenFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewServiceFromConfig(cfg, storage, opts...)
}

// Run starts the queue service components in an error group.
// Components are started conditionally based on service configuration:
// the worker only if handlers are registered, the scheduler only if tasks
// are scheduled (unless forced via options).
//
// The method blocks until the context is cancelled or an error occurs.
func (s *Service) Run(ctx context.Context) error {
	if s.beforeStart != nil {
		if err := s.beforeStart(ctx); err != nil {
			return fmt.Errorf("before start hook failed: %w", err)
		}
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if s.skipWorkerIfNoHandlers && !s.worker.HasHandlers() {
			s.logger.InfoContext(ctx, "no task handlers registered, worker will not start")
			return nil
		}

		s.logger.InfoContext(ctx, "starting queue worker",
			slog.Any("queues", s.worker.Queues()),
		)

		err := s.worker.Start(ctx)
		if errors.Is(err, ErrNoHandlers) && s.skipWorkerIfNoHandlers {
			s.logger.InfoContext(ctx, "no task handlers registered, worker stopped")
			return nil
		}
		return err
	})

	eg.Go(func() error {
		tasks := s.scheduler.ListTasks()

		if s.skipSchedulerIfNoTasks && len(tasks) == 0 {
			s.logger.InfoContext(ctx, "no scheduled tasks registered, scheduler will not start")
			return nil
		}

		s.logger.InfoContext(ctx, "starting queue scheduler",
			slog.Int("task_count", len(tasks)),
		)

		return s.scheduler.Start(ctx)
	})

	err := eg.Wait()

	if s.afterStop != nil {
		if stopErr := s.afterStop(); stopErr != nil {
			if err == nil {
				err = fmt.Errorf("after stop hook failed: %w", stopErr)
			} else {
				// context.Background() since the original context may be cancelled.
				s.logger.ErrorContext(context.Background(), "after stop hook failed", slog.String("error", stopErr.Error()))
			}
		}
	}

	return err
}

// Stop gracefully stops the queue service: the scheduler first, so no new
// task instances are created while the worker drains in-flight ones.
func (s *Service) Stop() error {
	ctx := context.Background()
	s.logger.InfoContext(ctx, "stopping queue service")

	if s.scheduler != nil && s.scheduler.Stats().IsRunning {
		if err := s.scheduler.Stop(); err != nil {
			s.logger.ErrorContext(ctx, "failed to stop scheduler", slog.String("error", err.Error()))
			return err
		}
	}

	if s.worker != nil && s.worker.Stats().IsRunning {
		if err := s.worker.Stop(); err != nil {
			s.logger.ErrorContext(ctx, "failed to stop worker", slog.String("error", err.Error()))
			return err
		}
	}

	if s.afterStop != nil {
		if err := s.afterStop(); err != nil {
			s.logger.ErrorContext(ctx, "after stop hook failed", slog.String("error", err.Error()))
			return err
		}
	}

	return nil
}

// Worker returns the worker instance for handler registration.
func (s *Service) Worker() *Worker {
	return s.worker
}

// Scheduler returns the scheduler instance for task scheduling.
func (s *Service) Scheduler() *Scheduler {
	return s.scheduler
}

// Enqueuer returns the enqueuer instance for task enqueueing.
func (s *Service) Enqueuer() *Enqueuer {
	return s.enqueuer
}

// Storage returns the underlying storage implementation.
func (s *Service) Storage() Storage {
	return s.storage
}

// RegisterHandler registers a task handler with the worker.
func (s *Service) RegisterHandler(handler Handler) error {
	if s.worker == nil {
		return ErrServiceNotStarted
	}
	return s.worker.RegisterHandler(handler)
}

// RegisterHandlers registers multiple task handlers with the worker.
func (s *Service) RegisterHandlers(handlers ...Handler) error {
	if s.worker == nil {
		return ErrServiceNotStarted
	}
	return s.worker.RegisterHandlers(handlers...)
}

// AddScheduledTask registers a periodic task with the scheduler.
func (s *Service) AddScheduledTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	if s.scheduler == nil {
		return ErrSchedulerNotAvailable
	}
	return s.scheduler.AddTask(name, schedule, opts...)
}

// ScheduleCron registers a periodic task from a cron expression.
func (s *Service) ScheduleCron(name, expr string, opts ...SchedulerTaskOption) error {
	if s.scheduler == nil {
		return ErrSchedulerNotAvailable
	}
	return s.scheduler.AddCronTask(name, expr, opts...)
}

// ScheduleInterval registers a periodic task that runs on a fixed interval.
func (s *Service) ScheduleInterval(name string, interval time.Duration, opts ...SchedulerTaskOption) error {
	if s.scheduler == nil {
		return ErrSchedulerNotAvailable
	}
	return s.scheduler.AddIntervalTask(name, interval, opts...)
}

// Enqueue adds a task to the queue.
func (s *Service) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	if s.enqueuer == nil {
		return ErrServiceNotStarted
	}
	return s.enqueuer.Enqueue(ctx, payload, opts...)
}

// EnqueueWithDelay adds a task to the queue with a delay.
func (s *Service) EnqueueWithDelay(ctx context.Context, payload any, delay time.Duration, opts ...EnqueueOption) error {
	allOpts := append([]EnqueueOption{WithDelay(delay)}, opts...)
	return s.Enqueue(ctx, payload, allOpts...)
}

// EnqueueAt adds a task to the queue to be executed at a specific time.
func (s *Service) EnqueueAt(ctx context.Context, payload any, at time.Time, opts ...EnqueueOption) error {
	allOpts := append([]EnqueueOption{WithScheduledAt(at)}, opts...)
	return s.Enqueue(ctx, payload, allOpts...)
}

// CreateTask stores a fully constructed task directly, bypassing the
// enqueuer's payload marshaling. Intended for requeueing dead tasks and
// administrative tooling.
func (s *Service) CreateTask(ctx context.Context, task *Task) error {
	if s.storage == nil {
		return ErrServiceNotStarted
	}
	return s.storage.CreateTask(ctx, task)
}

// Healthcheck aggregates component health. Components that are skipped
// (no handlers, no scheduled tasks) are not reported as failures.
func (s *Service) Healthcheck(ctx context.Context) error {
	if s.worker.HasHandlers() {
		if err := s.worker.Healthcheck(ctx); err != nil {
			return err
		}
	}

	if len(s.scheduler.ListTasks()) > 0 {
		if err := s.scheduler.Healthcheck(ctx); err != nil {
			return err
		}
	}

	return nil
}
