package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstreamhq/relay/core/queue"
)

func TestNewService(t *testing.T) {
	t.Parallel()

	t.Run("nil storage", func(t *testing.T) {
		t.Parallel()

		_, err := queue.NewService(nil)
		assert.ErrorIs(t, err, queue.ErrRepositoryNil)
	})

	t.Run("components created", func(t *testing.T) {
		t.Parallel()

		svc, err := queue.NewService(queue.NewMemoryStorage())
		require.NoError(t, err)
		assert.NotNil(t, svc.Worker())
		assert.NotNil(t, svc.Scheduler())
		assert.NotNil(t, svc.Enqueuer())
		assert.NotNil(t, svc.Storage())
	})
}

func TestService_RunSkipsIdleComponents(t *testing.T) {
	t.Parallel()

	svc, err := queue.NewService(queue.NewMemoryStorage())
	require.NoError(t, err)

	// With no handlers and no scheduled tasks both components are skipped,
	// so Run returns without blocking.
	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run should return when all components are skipped")
	}
}

func TestService_EndToEnd(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	svc, err := queue.NewService(ms,
		queue.WithWorkerOptions(
			queue.WithPullInterval(10*time.Millisecond),
			queue.WithMaxConcurrentTasks(5),
		),
	)
	require.NoError(t, err)

	processed := make(chan emailPayload, 1)
	require.NoError(t, svc.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, p emailPayload) error {
		processed <- p
		return nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc.Worker().Stats().IsRunning
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Enqueue(context.Background(), emailPayload{To: "ops@example.com"}))

	select {
	case p := <-processed:
		assert.Equal(t, "ops@example.com", p.To)
	case <-time.After(2 * time.Second):
		t.Fatal("enqueued task was not processed")
	}

	require.NoError(t, svc.Stop())
	cancel()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestService_ScheduledTaskFlow(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	svc, err := queue.NewService(ms,
		queue.WithWorkerOptions(queue.WithPullInterval(10*time.Millisecond)),
		queue.WithSchedulerOptions(queue.WithCheckInterval(10*time.Millisecond)),
	)
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	require.NoError(t, svc.RegisterHandler(queue.NewPeriodicTaskHandler("probe", func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})))
	require.NoError(t, svc.ScheduleInterval("probe", time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = svc.Run(ctx) }()
	t.Cleanup(func() { _ = svc.Stop() })

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled task was never executed")
	}
}

func TestService_ScheduleCron(t *testing.T) {
	t.Parallel()

	svc, err := queue.NewService(queue.NewMemoryStorage())
	require.NoError(t, err)

	require.NoError(t, svc.ScheduleCron("nightly", "0 2 * * *"))
	assert.ErrorIs(t, svc.ScheduleCron("broken", "bogus"), queue.ErrInvalidSchedule)
	assert.ElementsMatch(t, []string{"nightly"}, svc.Scheduler().ListTasks())
}

func TestService_Hooks(t *testing.T) {
	t.Parallel()

	t.Run("before start failure aborts run", func(t *testing.T) {
		t.Parallel()

		hookErr := assert.AnError
		svc, err := queue.NewService(queue.NewMemoryStorage(),
			queue.WithBeforeStart(func(ctx context.Context) error { return hookErr }),
		)
		require.NoError(t, err)

		assert.ErrorIs(t, svc.Run(context.Background()), hookErr)
	})

	t.Run("after stop hook runs", func(t *testing.T) {
		t.Parallel()

		stopped := false
		svc, err := queue.NewService(queue.NewMemoryStorage(),
			queue.WithAfterStop(func() error { stopped = true; return nil }),
		)
		require.NoError(t, err)

		// Both components skipped, so Run returns and triggers the hook.
		require.NoError(t, svc.Run(context.Background()))
		assert.True(t, stopped)
	})
}

func TestService_EnqueueVariants(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	svc, err := queue.NewService(ms)
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, svc.EnqueueWithDelay(ctx, emailPayload{To: "a"}, time.Hour))
	at := time.Now().Add(2 * time.Hour)
	require.NoError(t, svc.EnqueueAt(ctx, emailPayload{To: "b"}, at))

	// Neither task is due yet, so nothing is claimable.
	_, err = ms.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
}

func TestService_WithScheduledTasksOption(t *testing.T) {
	t.Parallel()

	svc, err := queue.NewService(queue.NewMemoryStorage(),
		queue.WithScheduledTasks(map[string]queue.ScheduledTask{
			"cleanup": {Schedule: queue.DailyAt(2, 0)},
			"report":  {Schedule: queue.Every(time.Hour), Options: []queue.SchedulerTaskOption{queue.WithTaskPriority(queue.TaskPriorityHigh)}},
		}),
	)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"cleanup", "report"}, svc.Scheduler().ListTasks())
}
