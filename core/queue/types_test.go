package queue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/workstreamhq/relay/core/queue"
)

func TestTaskPriority_Valid(t *testing.T) {
	t.Parallel()

	for _, p := range []queue.TaskPriority{
		queue.TaskPriorityLow,
		queue.TaskPriorityNormal,
		queue.TaskPriorityHigh,
		queue.TaskPriorityCritical,
	} {
		assert.True(t, p.Valid(), p)
	}

	assert.False(t, queue.TaskPriority("urgent").Valid())
	assert.False(t, queue.TaskPriority("").Valid())
}

func TestTaskPriority_Ordinal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, queue.TaskPriorityLow.Ordinal())
	assert.Equal(t, 1, queue.TaskPriorityNormal.Ordinal())
	assert.Equal(t, 2, queue.TaskPriorityHigh.Ordinal())
	assert.Equal(t, 3, queue.TaskPriorityCritical.Ordinal())

	assert.Equal(t, 1, queue.TaskPriority("unknown").Ordinal(), "unknown ranks as normal")
}

func TestTaskPriority_Default(t *testing.T) {
	t.Parallel()

	assert.Equal(t, queue.TaskPriorityNormal, queue.TaskPriorityDefault)
}
