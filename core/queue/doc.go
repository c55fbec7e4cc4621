// Package queue provides a durable task queue with workers, periodic
// scheduling, and priority-based processing. It supports immediate and
// delayed task execution, configurable retries with a dead letter queue,
// and pluggable storage backends resolved through an explicit provider
// registry.
//
// # Basic Usage
//
// Create a queue system with enqueuer, worker, and scheduler:
//
//	import "github.com/workstreamhq/relay/core/queue"
//
//	// Create storage (in-memory for development)
//	storage := queue.NewMemoryStorage()
//
//	// Create enqueuer for adding tasks
//	enqueuer, err := queue.NewEnqueuer(storage,
//		queue.WithDefaultQueue("email"),
//		queue.WithDefaultPriority(queue.TaskPriorityHigh),
//	)
//
//	// Create worker for processing tasks
//	worker, err := queue.NewWorker(storage,
//		queue.WithQueues("email"),
//		queue.WithMaxConcurrentTasks(5),
//		queue.WithPullInterval(time.Second),
//	)
//
//	// Define payload type
//	type EmailPayload struct {
//		To      string `json:"to"`
//		Subject string `json:"subject"`
//		Body    string `json:"body"`
//	}
//
//	// Register type-safe handler; the task name is derived from the type
//	handler := queue.NewTaskHandler(func(ctx context.Context, email EmailPayload) error {
//		return sendEmail(email.To, email.Subject, email.Body)
//	})
//	worker.RegisterHandler(handler)
//
//	// Start worker
//	ctx := context.Background()
//	go worker.Start(ctx)
//
//	// Enqueue tasks
//	err = enqueuer.Enqueue(ctx, EmailPayload{
//		To:      "user@example.com",
//		Subject: "Welcome!",
//		Body:    "Welcome to our service!",
//	})
//
// # Service Wiring
//
// The Service bundles enqueuer, worker, and scheduler behind one lifecycle.
// Storage backends are resolved by name through a Registry, selected via
// Config.Provider (QUEUE_PROVIDER):
//
//	registry := queue.NewDefaultRegistry() // registers "memory" and "postgres"
//
//	cfg := queue.DefaultConfig()
//	service, err := queue.NewServiceFromRegistry(ctx, registry, cfg,
//		queue.WithServiceLogger(slog.Default()),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	service.RegisterHandler(emailHandler)
//	service.ScheduleCron("daily_report", "0 9 * * *")
//	service.ScheduleInterval("health_probe", 5*time.Minute)
//
//	go service.Run(ctx)
//	defer service.Stop()
//
// Custom providers can be registered or swapped in:
//
//	registry.Register("dynamo", func(ctx context.Context, cfg queue.Config) (queue.Storage, error) {
//		return newDynamoStorage(cfg)
//	})
//	registry.Disable("memory")
//
// # Priority-Based Processing
//
// Task priorities share the low/normal/high/critical vocabulary of the
// event bus. Higher priorities are claimed first; within a priority, tasks
// run in scheduled order:
//
//	enqueuer.Enqueue(ctx, CriticalPayload{...},
//		queue.WithPriority(queue.TaskPriorityCritical),
//	)
//
//	enqueuer.Enqueue(ctx, CleanupPayload{...},
//		queue.WithPriority(queue.TaskPriorityLow),
//	)
//
// # Scheduled Tasks
//
// Periodic tasks are created by the scheduler and processed by workers like
// any other task. Handlers for them carry no payload:
//
//	reportHandler := queue.NewPeriodicTaskHandler("daily_report", func(ctx context.Context) error {
//		return generateDailyReport()
//	})
//	worker.RegisterHandler(reportHandler)
//
//	scheduler, err := queue.NewScheduler(storage)
//	scheduler.AddTask("daily_report", queue.DailyAt(9, 0),
//		queue.WithTaskPriority(queue.TaskPriorityHigh),
//	)
//	scheduler.AddTask("health_probe", queue.Every(5*time.Minute))
//	scheduler.AddCronTask("weekly_cleanup", "0 2 * * 1")
//
//	go scheduler.Start(ctx)
//
// The scheduler is idempotent: a pending instance of a periodic task
// suppresses creation of another one, so restarts and multiple scheduler
// instances do not produce duplicates.
//
// # Retries and the Dead Letter Queue
//
// Returning an error from a handler records the failure and reschedules
// the task with a backoff until MaxRetries is exhausted, after which the
// task moves to the dead letter queue for manual inspection. Tasks claimed
// without a registered handler go straight to the DLQ, since retrying
// cannot help until the handler is deployed:
//
//	enqueuer.Enqueue(ctx, payload,
//		queue.WithMaxRetries(5),
//	)
//
// # Storage Backends
//
// Storage combines three repository interfaces:
//
//   - EnqueuerRepository: CreateTask
//   - WorkerRepository: ClaimTask, CompleteTask, FailTask, MoveToDLQ, ExtendLock
//   - SchedulerRepository: CreateTask, GetPendingTaskByName
//
// MemoryStorage suits tests and local development; its lock expiration
// manager (Start/Run) releases locks abandoned by crashed workers.
// PostgresStorage is the production backend: claims use FOR UPDATE SKIP
// LOCKED, so any number of worker processes can poll the same tables
// safely. Custom backends only need to implement the Storage interface.
//
// # Graceful Shutdown
//
// All long-running components follow the same lifecycle: blocking Start,
// graceful Stop with a shutdown timeout, and Run for errgroup coordination:
//
//	eg, ctx := errgroup.WithContext(ctx)
//	eg.Go(storage.Run(ctx))
//	eg.Go(worker.Run(ctx))
//	eg.Go(scheduler.Run(ctx))
//	err := eg.Wait()
//
// In-flight tasks are not interrupted by shutdown; they run on independent
// contexts bounded by the lock timeout.
package queue
