package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SchedulerRepository defines the interface for scheduler operations.
type SchedulerRepository interface {
	// CreateTask creates a new task in the storage.
	CreateTask(ctx context.Context, task *Task) error

	// GetPendingTaskByName checks if a pending task with given name exists.
	GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error)
}

// Scheduler turns registered Schedule rules into pending tasks in storage.
type Scheduler struct {
	repo     SchedulerRepository
	tasks    map[string]*periodicRule
	mu       sync.RWMutex
	ticker   *time.Ticker
	interval time.Duration
	logger   *slog.Logger

	// State management
	ctx             context.Context
	cancel          context.CancelFunc
	running         atomic.Bool
	wg              sync.WaitGroup
	shutdownTimeout time.Duration

	// Observability metrics
	tasksScheduled atomic.Int64
	activeChecks   atomic.Int32
}

// SchedulerStats provides observability metrics for monitoring and debugging.
type SchedulerStats struct {
	TasksScheduled int64 // Total number of tasks created by the scheduler
	ActiveChecks   int32 // Number of check operations currently running
	IsRunning      bool  // Whether the scheduler is currently running
}

// periodicRule holds the configuration for one registered periodic task.
type periodicRule struct {
	name            string
	schedule        Schedule
	queue           string
	priority        TaskPriority
	maxRetries      int8
	lastScheduledAt *time.Time
}

// NewScheduler creates a new task scheduler.
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &schedulerOptions{
		checkInterval:   30 * time.Second,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		repo:            repo,
		tasks:           make(map[string]*periodicRule),
		interval:        options.checkInterval,
		shutdownTimeout: options.shutdownTimeout,
		logger:          options.logger,
	}, nil
}

// NewSchedulerFromConfig creates a Scheduler from configuration.
// Additional options override config values.
func NewSchedulerFromConfig(cfg Config, repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	allOpts := append([]SchedulerOption{
		WithCheckInterval(cfg.CheckInterval),
		WithSchedulerShutdownTimeout(cfg.ShutdownTimeout),
	}, opts...)

	return NewScheduler(repo, allOpts...)
}

// AddTask registers a periodic task with the scheduler.
func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	if schedule == nil {
		return ErrInvalidSchedule
	}

	taskOpts := &schedulerTaskOptions{
		queue:      DefaultQueueName,
		priority:   TaskPriorityDefault,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(taskOpts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}

	s.tasks[name] = &periodicRule{
		name:       name,
		schedule:   schedule,
		queue:      taskOpts.queue,
		priority:   taskOpts.priority,
		maxRetries: taskOpts.maxRetries,
	}

	s.logger.InfoContext(context.Background(), "registered periodic task",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()))

	return nil
}

// AddCronTask parses a cron expression and registers the task under it.
func (s *Scheduler) AddCronTask(name, expr string, opts ...SchedulerTaskOption) error {
	schedule, err := Cron(expr)
	if err != nil {
		return err
	}
	return s.AddTask(name, schedule, opts...)
}

// AddIntervalTask registers a task that runs on a fixed interval.
func (s *Scheduler) AddIntervalTask(name string, interval time.Duration, opts ...SchedulerTaskOption) error {
	return s.AddTask(name, Every(interval), opts...)
}

// Start begins the scheduler's periodic task checking. This is a blocking
// operation that runs until the context is cancelled. Use Run() for errgroup
// pattern or call this in a goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	taskCount := len(s.tasks)
	if taskCount == 0 {
		s.mu.Unlock()
		return ErrNoTasksRegistered
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.ticker = time.NewTicker(s.interval)
	s.mu.Unlock()

	s.running.Store(true)
	defer s.ticker.Stop()

	s.logger.InfoContext(s.ctx, "scheduler started",
		slog.Int("task_count", taskCount),
		slog.Duration("check_interval", s.interval))

	s.checkTasksWithWait()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.InfoContext(context.Background(), "scheduler stopping")
			s.running.Store(false)
			return s.ctx.Err()
		case <-s.ticker.C:
			s.checkTasksWithWait()
		}
	}
}

// Stop gracefully shuts down the scheduler with a timeout.
// Returns an error if the shutdown timeout is exceeded.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not started")
	}

	s.running.Store(false)

	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()

	s.logger.InfoContext(context.Background(), "scheduler stopping, waiting for active checks to complete",
		slog.Duration("timeout", s.shutdownTimeout))

	ctx, ctxCancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.InfoContext(context.Background(), "scheduler stopped cleanly")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(context.Background(), "scheduler shutdown timeout exceeded",
			slog.Duration("timeout", s.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", s.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// Returns a function that starts the scheduler, monitors context cancellation,
// and performs graceful shutdown when the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = s.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// checkTasksWithWait wraps checkTasks with WaitGroup tracking.
func (s *Scheduler) checkTasksWithWait() {
	// Mutex protects against shutdown race: must verify scheduler is still
	// running AND add to waitgroup atomically, otherwise Stop() might wait
	// on an incomplete count.
	s.mu.RLock()
	if s.cancel == nil {
		s.mu.RUnlock()
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	defer s.wg.Done()

	s.activeChecks.Add(1)
	defer s.activeChecks.Add(-1)

	// context.Background() keeps in-flight checks valid while s.ctx is
	// being cancelled during shutdown.
	s.checkTasks(context.Background())
}

// checkTasks checks all registered tasks and creates any that are due.
func (s *Scheduler) checkTasks(ctx context.Context) {
	s.mu.RLock()
	rules := make([]*periodicRule, 0, len(s.tasks))
	for _, rule := range s.tasks {
		rules = append(rules, rule)
	}
	s.mu.RUnlock()

	now := time.Now()

	for _, rule := range rules {
		if err := s.scheduleTaskIfNeeded(ctx, rule, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to schedule task",
				slog.String("task_name", rule.name),
				slog.String("schedule", rule.schedule.String()),
				slog.String("error", err.Error()))
		}
	}
}

// scheduleTaskIfNeeded checks if a task is due and creates it if needed.
func (s *Scheduler) scheduleTaskIfNeeded(ctx context.Context, rule *periodicRule, now time.Time) error {
	nextRun := s.calculateNextRun(rule, now)

	// Respect schedule timing: tasks are not created before they are due,
	// so check frequency never affects schedule accuracy.
	if !s.shouldScheduleTask(rule, nextRun, now) {
		return nil
	}

	// Idempotency check: a pending instance for the same name means the
	// previous period has not been consumed yet. Also protects against
	// duplicate creation when multiple scheduler instances run.
	existing, err := s.repo.GetPendingTaskByName(ctx, rule.name)
	if err == nil && existing != nil {
		s.updateRuleState(rule.name, &existing.ScheduledAt)
		s.logger.DebugContext(ctx, "periodic task already pending",
			slog.String("task_name", rule.name),
			slog.Time("scheduled_for", existing.ScheduledAt))
		return nil
	}

	if err := s.createTask(ctx, rule, nextRun); err != nil {
		return fmt.Errorf("failed to create periodic task: %w", err)
	}

	s.updateRuleState(rule.name, &nextRun)

	s.logger.InfoContext(ctx, "created periodic task",
		slog.String("task_name", rule.name),
		slog.Time("scheduled_for", nextRun))

	return nil
}

// calculateNextRun determines when the task should run next.
func (s *Scheduler) calculateNextRun(rule *periodicRule, now time.Time) time.Time {
	if rule.lastScheduledAt == nil {
		return rule.schedule.Next(now)
	}
	return rule.schedule.Next(*rule.lastScheduledAt)
}

// shouldScheduleTask determines if a task is due to be scheduled.
func (s *Scheduler) shouldScheduleTask(rule *periodicRule, nextRun, now time.Time) bool {
	if rule.lastScheduledAt == nil {
		return true
	}

	if nextRun.After(now) {
		return false
	}

	return true
}

// updateRuleState records the lastScheduledAt time for a rule.
func (s *Scheduler) updateRuleState(name string, scheduledAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule, ok := s.tasks[name]; ok {
		rule.lastScheduledAt = scheduledAt
	}
}

// createTask creates a new task instance in the repository.
func (s *Scheduler) createTask(ctx context.Context, rule *periodicRule, scheduledAt time.Time) error {
	task := &Task{
		ID:          uuid.New(),
		Queue:       rule.queue,
		Type:        TaskTypePeriodic,
		Name:        rule.name,
		Payload:     nil,
		Status:      TaskStatusPending,
		Priority:    rule.priority,
		RetryCount:  0,
		MaxRetries:  rule.maxRetries,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return err
	}

	s.tasksScheduled.Add(1)
	return nil
}

// RemoveTask removes a periodic task from the scheduler.
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, name)

	s.logger.InfoContext(context.Background(), "removed periodic task",
		slog.String("task_name", name))
}

// ListTasks returns all registered periodic task names.
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

// Stats returns current scheduler statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.RLock()
	isRunning := s.cancel != nil
	s.mu.RUnlock()

	return SchedulerStats{
		TasksScheduled: s.tasksScheduled.Load(),
		ActiveChecks:   s.activeChecks.Load(),
		IsRunning:      isRunning,
	}
}

// Healthcheck validates that the scheduler is operational.
// Returns nil if healthy, or an error describing the health issue.
//
// The returned error can be checked using errors.Is:
//
//	if errors.Is(err, queue.ErrSchedulerNotRunning) { ... }
//	if errors.Is(err, queue.ErrNoTasksRegistered) { ... }
func (s *Scheduler) Healthcheck(ctx context.Context) error {
	stats := s.Stats()

	if !stats.IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrSchedulerNotRunning)
	}

	s.mu.RLock()
	taskCount := len(s.tasks)
	s.mu.RUnlock()

	if taskCount == 0 {
		return errors.Join(ErrHealthcheckFailed, ErrNoTasksRegistered)
	}

	return nil
}
