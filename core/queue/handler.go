package queue

import (
	"context"
	"encoding/json"
)

type (
	// Handler processes tasks of a single named type. Name() routes claimed
	// tasks to the handler; Handle() receives the raw JSON payload.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	// TaskHandlerFunc is a type-safe handler function for one-time tasks.
	TaskHandlerFunc[T any] func(ctx context.Context, payload T) error

	// PeriodicTaskHandlerFunc handles scheduler-generated tasks, which carry
	// no payload.
	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

// NewTaskHandler creates a type-safe handler for one-time tasks. The task
// name is derived from the payload type, so enqueueing a value of type T
// routes to the handler registered for T.
func NewTaskHandler[T any](handler TaskHandlerFunc[T]) Handler {
	var payload T
	return &typedTaskHandler[T]{
		name:    qualifiedStructName(payload),
		handler: handler,
	}
}

// NewPeriodicTaskHandler creates a handler for periodic tasks. The name must
// match the name the task was scheduled under.
func NewPeriodicTaskHandler(name string, handler PeriodicTaskHandlerFunc) Handler {
	return &periodicTaskHandler{
		name:    name,
		handler: handler,
	}
}

type typedTaskHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *typedTaskHandler[T]) Name() string {
	return h.name
}

func (h *typedTaskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return err
	}
	return h.handler(ctx, t)
}

type periodicTaskHandler struct {
	name    string
	handler PeriodicTaskHandlerFunc
}

func (h *periodicTaskHandler) Name() string {
	return h.name
}

func (h *periodicTaskHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.handler(ctx)
}
