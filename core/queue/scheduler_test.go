package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstreamhq/relay/core/queue"
)

// startScheduler runs the scheduler in the background and waits for it.
func startScheduler(t *testing.T, s *queue.Scheduler) {
	t.Helper()

	go func() { _ = s.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		return s.Stats().IsRunning
	}, time.Second, 10*time.Millisecond, "scheduler should start")
	t.Cleanup(func() {
		if s.Stats().IsRunning {
			_ = s.Stop()
		}
	})
}

func TestNewScheduler(t *testing.T) {
	t.Parallel()

	_, err := queue.NewScheduler(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)
}

func TestScheduler_AddTask(t *testing.T) {
	t.Parallel()

	s, err := queue.NewScheduler(queue.NewMemoryStorage())
	require.NoError(t, err)

	require.NoError(t, s.AddTask("report", queue.Every(time.Minute)))
	assert.ErrorIs(t, s.AddTask("report", queue.Every(time.Hour)), queue.ErrTaskAlreadyRegistered)
	assert.ErrorIs(t, s.AddTask("no-schedule", nil), queue.ErrInvalidSchedule)

	assert.ElementsMatch(t, []string{"report"}, s.ListTasks())

	s.RemoveTask("report")
	assert.Empty(t, s.ListTasks())
}

func TestScheduler_AddCronTask(t *testing.T) {
	t.Parallel()

	s, err := queue.NewScheduler(queue.NewMemoryStorage())
	require.NoError(t, err)

	require.NoError(t, s.AddCronTask("nightly", "0 2 * * *"))
	assert.ErrorIs(t, s.AddCronTask("broken", "not cron"), queue.ErrInvalidSchedule)
}

func TestScheduler_StartRequiresTasks(t *testing.T) {
	t.Parallel()

	s, err := queue.NewScheduler(queue.NewMemoryStorage())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Start(context.Background()), queue.ErrNoTasksRegistered)
}

func TestScheduler_CreatesDueTasks(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	s, err := queue.NewScheduler(ms, queue.WithCheckInterval(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.AddIntervalTask("heartbeat", time.Second,
		queue.WithTaskQueue("system"),
		queue.WithTaskPriority(queue.TaskPriorityHigh),
	))

	startScheduler(t, s)

	var created *queue.Task
	require.Eventually(t, func() bool {
		task, err := ms.GetPendingTaskByName(context.Background(), "heartbeat")
		if err != nil || task == nil {
			return false
		}
		created = task
		return true
	}, 2*time.Second, 20*time.Millisecond, "scheduler should create the periodic task")

	assert.Equal(t, queue.TaskTypePeriodic, created.Type)
	assert.Equal(t, "system", created.Queue)
	assert.Equal(t, queue.TaskPriorityHigh, created.Priority)
	assert.Nil(t, created.Payload)
	assert.GreaterOrEqual(t, s.Stats().TasksScheduled, int64(1))
}

func TestScheduler_PendingTaskSuppressesDuplicates(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	s, err := queue.NewScheduler(ms, queue.WithCheckInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.AddIntervalTask("dedup", time.Second))

	startScheduler(t, s)

	require.Eventually(t, func() bool {
		return s.Stats().TasksScheduled >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// The pending instance has not been consumed; many check cycles later
	// there must still be exactly one scheduled creation.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), s.Stats().TasksScheduled)
}

func TestScheduler_Lifecycle(t *testing.T) {
	t.Parallel()

	s, err := queue.NewScheduler(queue.NewMemoryStorage())
	require.NoError(t, err)

	require.Error(t, s.Stop(), "stop before start")

	require.NoError(t, s.AddTask("tick", queue.Every(time.Hour)))

	startScheduler(t, s)
	require.Error(t, s.Start(context.Background()), "double start")
	require.NoError(t, s.Stop())
	assert.False(t, s.Stats().IsRunning)
}

func TestScheduler_Healthcheck(t *testing.T) {
	t.Parallel()

	s, err := queue.NewScheduler(queue.NewMemoryStorage())
	require.NoError(t, err)

	err = s.Healthcheck(context.Background())
	assert.ErrorIs(t, err, queue.ErrHealthcheckFailed)
	assert.ErrorIs(t, err, queue.ErrSchedulerNotRunning)

	require.NoError(t, s.AddTask("tick", queue.Every(time.Hour)))
	startScheduler(t, s)

	assert.NoError(t, s.Healthcheck(context.Background()))
}
