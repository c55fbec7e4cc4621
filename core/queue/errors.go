package queue

import "errors"

var (
	// ErrRepositoryNil is returned when a component is constructed without a storage repository.
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrPayloadNil is returned when enqueueing a task without a payload.
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrInvalidPriority is returned when a task priority is outside the known set.
	ErrInvalidPriority = errors.New("invalid task priority")

	// ErrNoTaskToClaim is returned by storage when no eligible task is available.
	ErrNoTaskToClaim = errors.New("no task to claim")

	// ErrTaskNotFound is returned when a task id does not exist in storage.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskAlreadyRegistered is returned when registering a periodic task name twice.
	ErrTaskAlreadyRegistered = errors.New("task already registered")

	// ErrInvalidSchedule is returned when a schedule expression cannot be parsed.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrNoHandlers is returned when starting a worker with no registered handlers.
	ErrNoHandlers = errors.New("no handlers registered")

	// ErrHandlerNotFound is returned when a claimed task has no registered handler.
	ErrHandlerNotFound = errors.New("handler not found")

	// ErrWorkerNotRunning indicates the worker has not been started or was stopped.
	ErrWorkerNotRunning = errors.New("worker not running")

	// ErrWorkerOverloaded indicates all worker slots are busy.
	ErrWorkerOverloaded = errors.New("worker overloaded")

	// ErrSchedulerNotRunning indicates the scheduler has not been started or was stopped.
	ErrSchedulerNotRunning = errors.New("scheduler not running")

	// ErrNoTasksRegistered is returned when starting a scheduler with no periodic tasks.
	ErrNoTasksRegistered = errors.New("no scheduled tasks registered")

	// ErrSchedulerNotAvailable is returned by service pass-throughs when no scheduler was wired.
	ErrSchedulerNotAvailable = errors.New("scheduler not available")

	// ErrServiceNotStarted is returned by service pass-throughs before the service was built or run.
	ErrServiceNotStarted = errors.New("queue service not started")

	// ErrProviderNotFound is returned when resolving an unregistered storage provider.
	ErrProviderNotFound = errors.New("storage provider not found")

	// ErrProviderDisabled is returned when resolving a provider that was disabled.
	ErrProviderDisabled = errors.New("storage provider disabled")

	// ErrProviderAlreadyRegistered is returned when registering a provider name twice.
	ErrProviderAlreadyRegistered = errors.New("storage provider already registered")

	// ErrHealthcheckFailed wraps all healthcheck failures for errors.Is checks.
	ErrHealthcheckFailed = errors.New("healthcheck failed")
)
