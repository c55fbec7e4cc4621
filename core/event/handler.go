package event

import "context"

// Handler processes events delivered by the bus.
//
// Handle returns the invocation result; a non-nil error is funneled through
// HandleError by the caller, so handlers never crash the delivery pipeline.
type Handler interface {
	// EventType returns the event type this handler is bound to.
	// An empty string means the handler accepts any type.
	EventType() string

	// CanHandle reports whether the handler wants the given event.
	CanHandle(evt *Event) bool

	// Handle executes the handler for the event.
	Handle(ctx context.Context, evt *Event) (HandlerResult, error)

	// HandleError converts a handler failure into a result.
	HandleError(ctx context.Context, evt *Event, err error) HandlerResult
}

// HandlerFunc is the function signature wrapped by NewFuncHandler.
type HandlerFunc func(ctx context.Context, evt *Event) error

// NewTypedHandler creates a handler matching exactly one event type.
//
// Example:
//
//	handler := event.NewTypedHandler("user.created", func(ctx context.Context, evt *event.Event) error {
//	    return sendWelcomeEmail(ctx, evt.Payload)
//	})
func NewTypedHandler(eventType string, fn HandlerFunc) Handler {
	return &funcHandler{eventType: eventType, fn: fn}
}

// HandlerOption configures a function-wrapped handler.
type HandlerOption func(*funcHandler)

// WithHandlerEventType restricts the handler to one event type.
func WithHandlerEventType(eventType string) HandlerOption {
	return func(h *funcHandler) { h.eventType = eventType }
}

// WithHandlerPredicate adds an arbitrary match predicate over the event.
func WithHandlerPredicate(predicate func(*Event) bool) HandlerOption {
	return func(h *funcHandler) { h.predicate = predicate }
}

// NewFuncHandler wraps a plain function as a Handler. Without options the
// handler accepts every event type.
func NewFuncHandler(fn HandlerFunc, opts ...HandlerOption) Handler {
	h := &funcHandler{fn: fn}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type funcHandler struct {
	eventType string
	predicate func(*Event) bool
	fn        HandlerFunc
}

func (h *funcHandler) EventType() string {
	return h.eventType
}

func (h *funcHandler) CanHandle(evt *Event) bool {
	if h.eventType != "" && evt.Metadata.EventType != h.eventType {
		return false
	}
	if h.predicate != nil && !h.predicate(evt) {
		return false
	}
	return true
}

func (h *funcHandler) Handle(ctx context.Context, evt *Event) (HandlerResult, error) {
	if err := h.fn(ctx, evt); err != nil {
		return HandlerResult{}, err
	}
	return SuccessResult(), nil
}

func (h *funcHandler) HandleError(ctx context.Context, evt *Event, err error) HandlerResult {
	return defaultHandleError(evt, err)
}

// defaultHandleError wraps a handler error as a failed result, proposing the
// event's base retry delay only when the event still has retry budget.
func defaultHandleError(evt *Event, err error) HandlerResult {
	res := FailureResult(err.Error())
	if evt.CanRetry() {
		res.RetryAfter = evt.Metadata.RetryDelay
	}
	return res
}

// BaseHandler provides the default HandleError behavior for embedding in
// custom handler implementations.
type BaseHandler struct{}

// HandleError wraps the error as a failed result with the default retry proposal.
func (BaseHandler) HandleError(ctx context.Context, evt *Event, err error) HandlerResult {
	return defaultHandleError(evt, err)
}
