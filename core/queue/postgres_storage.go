package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements all queue repository interfaces on top of a
// pgx connection pool. Task claiming uses FOR UPDATE SKIP LOCKED, so
// multiple workers and multiple processes can poll the same tables without
// claiming the same task twice. Priorities are persisted as their ordinal
// rank to keep the claim ordering index-friendly.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// PostgresStorageOption configures a PostgresStorage.
type PostgresStorageOption func(*PostgresStorage)

// WithPostgresStorageLogger sets the logger for internal operations.
func WithPostgresStorageLogger(logger *slog.Logger) PostgresStorageOption {
	return func(ps *PostgresStorage) {
		if logger != nil {
			ps.logger = logger
		}
	}
}

// NewPostgresStorage creates a Postgres-backed storage using the given pool.
// The caller owns the pool and is responsible for closing it.
func NewPostgresStorage(pool *pgxpool.Pool, opts ...PostgresStorageOption) (*PostgresStorage, error) {
	if pool == nil {
		return nil, ErrRepositoryNil
	}

	ps := &PostgresStorage{
		pool:   pool,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(ps)
	}

	return ps, nil
}

const taskColumns = `id, queue, task_type, task_name, payload, status, priority,
	retry_count, max_retries, scheduled_at, locked_until, locked_by, processed_at, error, created_at`

// Migrate creates the tasks and tasks_dlq tables if they do not exist.
// Safe to call on every startup.
func (ps *PostgresStorage) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
	id           UUID PRIMARY KEY,
	queue        TEXT NOT NULL,
	task_type    TEXT NOT NULL,
	task_name    TEXT NOT NULL,
	payload      BYTEA,
	status       TEXT NOT NULL,
	priority     SMALLINT NOT NULL DEFAULT 1,
	retry_count  SMALLINT NOT NULL DEFAULT 0,
	max_retries  SMALLINT NOT NULL DEFAULT 3,
	scheduled_at TIMESTAMPTZ NOT NULL,
	locked_until TIMESTAMPTZ,
	locked_by    UUID,
	processed_at TIMESTAMPTZ,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tasks_claim_idx
	ON tasks (queue, status, priority DESC, scheduled_at)
	WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS tasks_lock_expiry_idx
	ON tasks (queue, locked_until)
	WHERE status = 'processing';
CREATE TABLE IF NOT EXISTS tasks_dlq (
	id          UUID PRIMARY KEY,
	task_id     UUID NOT NULL,
	queue       TEXT NOT NULL,
	task_type   TEXT NOT NULL,
	task_name   TEXT NOT NULL,
	payload     BYTEA,
	priority    SMALLINT NOT NULL DEFAULT 1,
	error       TEXT NOT NULL DEFAULT '',
	retry_count SMALLINT NOT NULL DEFAULT 0,
	failed_at   TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`

	if _, err := ps.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to run queue migrations: %w", err)
	}
	return nil
}

// CreateTask inserts a new task.
func (ps *PostgresStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	const query = `
INSERT INTO tasks (id, queue, task_type, task_name, payload, status, priority,
	retry_count, max_retries, scheduled_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := ps.pool.Exec(ctx, query,
		task.ID, task.Queue, string(task.Type), task.Name, task.Payload,
		string(task.Status), task.Priority.Ordinal(),
		task.RetryCount, task.MaxRetries, task.ScheduledAt, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
	}

	return nil
}

// ClaimTask atomically claims the next highest-priority eligible task.
// SKIP LOCKED lets concurrent claimers pass over rows another transaction
// is already claiming instead of blocking on them. Processing rows whose
// lock has expired are claimable again, so a crashed worker's tasks are
// picked up once the lock runs out; the retry counter only moves on
// explicit FailTask.
func (ps *PostgresStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	query := `
WITH next_task AS (
	SELECT id FROM tasks
	WHERE queue = ANY($1)
	  AND scheduled_at <= now()
	  AND (status = 'pending'
	       OR (status = 'processing' AND locked_until < now()))
	ORDER BY priority DESC, scheduled_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
UPDATE tasks t
SET status = 'processing',
	locked_until = now() + make_interval(secs => $2),
	locked_by = $3
FROM next_task
WHERE t.id = next_task.id
RETURNING ` + prefixColumns("t.")

	row := ps.pool.QueryRow(ctx, query, queues, lockDuration.Seconds(), workerID)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}

	return task, nil
}

// CompleteTask marks a task as successfully completed.
func (ps *PostgresStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	const query = `
UPDATE tasks
SET status = 'completed', processed_at = now(), locked_until = NULL, locked_by = NULL
WHERE id = $1 AND status = 'processing'`

	tag, err := ps.pool.Exec(ctx, query, taskID)
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	return nil
}

// FailTask records a task failure and resets to pending for retry if retries
// remain, applying the same linear backoff as the in-memory storage.
func (ps *PostgresStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	const query = `
UPDATE tasks
SET retry_count = retry_count + 1,
	error = $2,
	locked_until = NULL,
	locked_by = NULL,
	status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
	scheduled_at = CASE WHEN retry_count + 1 >= max_retries
		THEN scheduled_at
		ELSE now() + make_interval(secs => (retry_count + 1) * $3)
	END
WHERE id = $1 AND status = 'processing'`

	tag, err := ps.pool.Exec(ctx, query, taskID, errorMsg, retryBackoffStep.Seconds())
	if err != nil {
		return fmt.Errorf("failed to fail task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	return nil
}

// MoveToDLQ copies a task into tasks_dlq and removes it from tasks,
// atomically within a transaction.
func (ps *PostgresStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insert = `
INSERT INTO tasks_dlq (id, task_id, queue, task_type, task_name, payload, priority, error, retry_count, failed_at, created_at)
SELECT $2, id, queue, task_type, task_name, payload, priority, COALESCE(error, ''), retry_count, now(), now()
FROM tasks WHERE id = $1`

	tag, err := tx.Exec(ctx, insert, taskID, uuid.New())
	if err != nil {
		return fmt.Errorf("failed to copy task %s to DLQ: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to delete task %s after DLQ copy: %w", taskID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit DLQ move for task %s: %w", taskID, err)
	}

	ps.logger.WarnContext(ctx, "task moved to dead letter queue",
		slog.String("task_id", taskID.String()))

	return nil
}

// ExtendLock extends the lock duration for a long-running task.
func (ps *PostgresStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	const query = `
UPDATE tasks
SET locked_until = now() + make_interval(secs => $2)
WHERE id = $1 AND status = 'processing'`

	tag, err := ps.pool.Exec(ctx, query, taskID, duration.Seconds())
	if err != nil {
		return fmt.Errorf("failed to extend lock for task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	return nil
}

// GetPendingTaskByName finds a pending task by name for scheduler idempotency checks.
func (ps *PostgresStorage) GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE task_name = $1 AND status = 'pending' LIMIT 1`

	row := ps.pool.QueryRow(ctx, query, taskName)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up pending task %q: %w", taskName, err)
	}

	return task, nil
}

// DeadTasks returns up to limit entries from the dead letter queue,
// newest first.
func (ps *PostgresStorage) DeadTasks(ctx context.Context, limit int) ([]DeadTask, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
SELECT id, task_id, queue, task_type, task_name, payload, priority, error, retry_count, failed_at, created_at
FROM tasks_dlq ORDER BY failed_at DESC LIMIT $1`

	rows, err := ps.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead tasks: %w", err)
	}
	defer rows.Close()

	var out []DeadTask
	for rows.Next() {
		var (
			dead     DeadTask
			taskType string
			priority int
		)
		if err := rows.Scan(&dead.ID, &dead.TaskID, &dead.Queue, &taskType, &dead.Name,
			&dead.Payload, &priority, &dead.Error, &dead.RetryCount, &dead.FailedAt, &dead.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead task: %w", err)
		}
		dead.Type = TaskType(taskType)
		dead.Priority = taskPriorityFromOrdinal(priority)
		out = append(out, dead)
	}

	return out, rows.Err()
}

// Healthcheck validates database connectivity.
func (ps *PostgresStorage) Healthcheck(ctx context.Context) error {
	if err := ps.pool.Ping(ctx); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// scanTask reads one task row, converting the stored ordinal priority and
// text enums back to their typed forms.
func scanTask(row pgx.Row) (*Task, error) {
	var (
		task     Task
		taskType string
		status   string
		priority int
	)

	err := row.Scan(&task.ID, &task.Queue, &taskType, &task.Name, &task.Payload,
		&status, &priority, &task.RetryCount, &task.MaxRetries, &task.ScheduledAt,
		&task.LockedUntil, &task.LockedBy, &task.ProcessedAt, &task.Error, &task.CreatedAt)
	if err != nil {
		return nil, err
	}

	task.Type = TaskType(taskType)
	task.Status = TaskStatus(status)
	task.Priority = taskPriorityFromOrdinal(priority)

	return &task, nil
}

// prefixColumns qualifies the shared task column list with a table alias.
func prefixColumns(prefix string) string {
	out := ""
	for i, col := range []string{"id", "queue", "task_type", "task_name", "payload", "status", "priority",
		"retry_count", "max_retries", "scheduled_at", "locked_until", "locked_by", "processed_at", "error", "created_at"} {
		if i > 0 {
			out += ", "
		}
		out += prefix + col
	}
	return out
}
