package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified for a task.
const DefaultQueueName = "default"

// DefaultMaxRetries is applied to tasks that do not override retry behavior.
const DefaultMaxRetries int8 = 3

// TaskType distinguishes one-shot tasks from scheduler-generated periodic ones.
type TaskType string

const (
	TaskTypeOneTime  TaskType = "one_time"
	TaskTypePeriodic TaskType = "periodic"
)

// TaskStatus tracks a task through its lifecycle in storage.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskPriority orders task claims within a queue. It shares the vocabulary
// of event priorities so producers can carry a priority across both systems.
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityNormal   TaskPriority = "normal"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"

	TaskPriorityDefault = TaskPriorityNormal
)

// Valid reports whether the priority is one of the known values.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityNormal, TaskPriorityHigh, TaskPriorityCritical:
		return true
	}
	return false
}

// Ordinal returns the numeric rank of the priority, higher is more urgent.
// Unknown values rank as normal.
func (p TaskPriority) Ordinal() int {
	switch p {
	case TaskPriorityLow:
		return 0
	case TaskPriorityHigh:
		return 2
	case TaskPriorityCritical:
		return 3
	default:
		return 1
	}
}

// taskPriorityFromOrdinal is the inverse of Ordinal, used by storage backends
// that persist priorities numerically for index-friendly ordering.
func taskPriorityFromOrdinal(n int) TaskPriority {
	switch n {
	case 0:
		return TaskPriorityLow
	case 2:
		return TaskPriorityHigh
	case 3:
		return TaskPriorityCritical
	default:
		return TaskPriorityNormal
	}
}

// Task is a single unit of queued work.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	Queue       string       `json:"queue"`
	Type        TaskType     `json:"type"`
	Name        string       `json:"name"`
	Payload     []byte       `json:"payload,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	RetryCount  int8         `json:"retry_count"`
	MaxRetries  int8         `json:"max_retries"`
	ScheduledAt time.Time    `json:"scheduled_at"`
	LockedUntil *time.Time   `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID   `json:"locked_by,omitempty"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
	Error       *string      `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// DeadTask is a task that exhausted its retries (or had no handler) and was
// moved to the dead letter queue for manual inspection and requeueing.
type DeadTask struct {
	ID         uuid.UUID    `json:"id"`
	TaskID     uuid.UUID    `json:"task_id"`
	Queue      string       `json:"queue"`
	Type       TaskType     `json:"type"`
	Name       string       `json:"name"`
	Payload    []byte       `json:"payload,omitempty"`
	Priority   TaskPriority `json:"priority"`
	Error      string       `json:"error"`
	RetryCount int8         `json:"retry_count"`
	FailedAt   time.Time    `json:"failed_at"`
	CreatedAt  time.Time    `json:"created_at"`
}
