package event

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

// maxWorkers caps the background worker pool regardless of the configured
// event concurrency; handler-level concurrency is governed by the semaphore.
const maxWorkers = 10

// Publisher owns the delivery pipeline: a worker pool drains the transport,
// routes events to subscriptions, invokes handlers with bounded concurrency,
// and drives the retry/dead-letter policy.
type Publisher struct {
	transport Transport
	codec     Codec
	router    *Router
	logger    *slog.Logger
	cfg       Config

	sem        chan struct{}
	deliveries chan Message
	mu         sync.RWMutex
	tasks      map[uuid.UUID]*subscriptionTasks

	ctx      context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup
	closing  atomic.Bool
	running  atomic.Bool

	// Observability metrics
	eventsPublished    atomic.Int64
	eventsProcessed    atomic.Int64
	eventsFailed       atomic.Int64
	eventsRetried      atomic.Int64
	eventsDeadLettered atomic.Int64
	handlersExecuted   atomic.Int64
	activeEvents       atomic.Int32
	totalProcessingNs  atomic.Int64
}

// PublisherStats provides observability metrics for monitoring and debugging.
type PublisherStats struct {
	EventsPublished    int64
	EventsProcessed    int64
	EventsFailed       int64
	EventsRetried      int64
	EventsDeadLettered int64
	HandlersExecuted   int64
	ActiveEvents       int32
	Subscriptions      int
	AvgProcessingTime  time.Duration
	IsRunning          bool
}

// NewPublisher creates an event publisher on the given transport.
//
// Example:
//
//	transport := event.NewMemoryTransport()
//	publisher, err := event.NewPublisher(transport,
//	    event.WithPublisherLogger(logger),
//	)
func NewPublisher(transport Transport, opts ...PublisherOption) (*Publisher, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}

	p := &Publisher{
		transport: transport,
		codec:     JSONCodec{},
		router:    NewRouter(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:       DefaultConfig(),
		tasks:     make(map[uuid.UUID]*subscriptionTasks),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.cfg.MaxConcurrentEvents < 1 {
		p.cfg.MaxConcurrentEvents = 1
	}
	p.sem = make(chan struct{}, p.cfg.MaxConcurrentEvents)

	return p, nil
}

// Start connects the transport and runs the worker pool. This is a blocking
// operation that runs until the context is cancelled. Use Run() for errgroup
// pattern or call this in a goroutine.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return ErrPublisherAlreadyStarted
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	runCtx := p.ctx
	p.mu.Unlock()

	p.closing.Store(false)

	if err := p.transport.Connect(runCtx); err != nil {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
		return fmt.Errorf("failed to connect transport: %w", err)
	}

	// One transport subscription feeds all workers so each message is
	// processed exactly once even on fan-out transports. The first
	// subscription is established synchronously so no events published after
	// Start reports running can be lost.
	msgs, err := p.transport.Subscribe(runCtx, p.cfg.TopicPrefix+".*")
	if err != nil {
		_ = p.transport.Disconnect(context.Background())
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
		return fmt.Errorf("failed to subscribe to transport: %w", err)
	}

	p.deliveries = make(chan Message, p.cfg.QueueMaxSize)
	p.workerWG.Add(1)
	go p.subscribeLoop(runCtx, msgs)

	workers := min(p.cfg.MaxConcurrentEvents, maxWorkers)
	for i := 0; i < workers; i++ {
		p.workerWG.Add(1)
		go p.worker(runCtx)
	}

	p.running.Store(true)

	p.logger.InfoContext(runCtx, "event publisher started",
		slog.Int("workers", workers),
		slog.String("topic_prefix", p.cfg.TopicPrefix),
		slog.Int("max_concurrent_events", p.cfg.MaxConcurrentEvents))

	<-runCtx.Done()
	return runCtx.Err()
}

// Stop gracefully shuts down the publisher: worker loops are cancelled and
// awaited first, then outstanding subscription tasks, then the transport is
// disconnected. Returns an error if the shutdown timeout is exceeded.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return ErrPublisherNotStarted
	}

	p.closing.Store(true)
	p.running.Store(false)
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	cancel()

	p.logger.Info("event publisher stopping, waiting for active handlers to complete",
		slog.Duration("timeout", p.cfg.ShutdownTimeout))

	ctx, ctxCancel := context.WithTimeout(context.Background(), p.cfg.ShutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		p.workerWG.Wait()

		p.mu.RLock()
		tasks := make([]*subscriptionTasks, 0, len(p.tasks))
		for _, st := range p.tasks {
			tasks = append(tasks, st)
		}
		p.mu.RUnlock()

		for _, st := range tasks {
			st.cancelAndWait()
		}
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
		p.logger.Info("event publisher stopped cleanly")
	case <-ctx.Done():
		p.logger.Warn("event publisher shutdown timeout exceeded - some handlers may be abandoned",
			slog.Duration("timeout", p.cfg.ShutdownTimeout))
		stopErr = fmt.Errorf("shutdown timeout exceeded after %s", p.cfg.ShutdownTimeout)
	}

	if err := p.transport.Disconnect(context.Background()); err != nil {
		p.logger.Error("failed to disconnect transport", slog.String("error", err.Error()))
	}

	return stopErr
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// Returns a function that starts the publisher, monitors context cancellation,
// and performs graceful shutdown when the context is cancelled.
func (p *Publisher) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- p.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = p.Stop()
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

// Publish serializes the event and hands it to the transport. Events carrying
// the package-level metadata defaults inherit the publisher's configured
// defaults for timeout, max retries, and retry delay.
func (p *Publisher) Publish(ctx context.Context, evt *Event) error {
	if p.closing.Load() {
		return ErrPublisherClosed
	}

	p.applyDefaults(evt)

	data, err := p.codec.Encode(evt)
	if err != nil {
		return err
	}

	topic := p.topicFor(evt)
	if _, err := p.transport.Publish(ctx, topic, data, evt.Metadata.Priority.Ordinal(), evt.Metadata.Headers, evt.Metadata.CorrelationID); err != nil {
		return fmt.Errorf("failed to publish event %s to %q: %w", evt.Metadata.EventID, topic, err)
	}

	p.eventsPublished.Add(1)

	if p.cfg.VerboseLogging {
		p.logger.DebugContext(ctx, "event published",
			slog.String("event_id", evt.Metadata.EventID.String()),
			slog.String("event_type", evt.Metadata.EventType),
			slog.String("topic", topic))
	}

	return nil
}

// PublishAndWait fans the event out directly to matching subscriptions,
// bypassing the transport, and waits for all handler results with an overall
// timeout. On timeout, outstanding handler tasks are cancelled and
// ErrPublishTimeout is returned.
func (p *Publisher) PublishAndWait(ctx context.Context, evt *Event, timeout time.Duration) ([]HandlerResult, error) {
	if p.closing.Load() {
		return nil, ErrPublisherClosed
	}

	p.applyDefaults(evt)

	matches := p.router.Match(evt)
	if len(matches) == 0 {
		return nil, nil
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	evt.MarkProcessing()

	done := make(chan []HandlerResult, 1)
	go func() {
		done <- p.dispatch(wctx, evt, matches)
	}()

	select {
	case results := <-done:
		if anySucceeded(results) {
			evt.MarkCompleted()
		} else {
			evt.MarkFailed(firstFailure(results))
		}
		return results, nil
	case <-wctx.Done():
		evt.MarkFailed("timed out waiting for handler results")
		if errors.Is(wctx.Err(), context.DeadlineExceeded) {
			return nil, ErrPublishTimeout
		}
		return nil, wctx.Err()
	}
}

// Subscribe registers a subscription with the publisher's routing tables.
func (p *Publisher) Subscribe(sub *Subscription) error {
	if sub == nil || sub.Handler == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	p.tasks[sub.ID] = newSubscriptionTasks()
	p.mu.Unlock()

	p.router.Add(sub, nil, nil)

	p.logger.Debug("subscription registered",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("event_type", sub.EventType))

	return nil
}

// Unsubscribe removes a subscription and cancels its in-flight handler tasks,
// awaiting them with errors suppressed. Returns false if the ID is unknown.
func (p *Publisher) Unsubscribe(id uuid.UUID) bool {
	removed := p.router.Remove(id)

	p.mu.Lock()
	st := p.tasks[id]
	delete(p.tasks, id)
	p.mu.Unlock()

	if st != nil {
		st.cancelAndWait()
	}

	return removed
}

func (p *Publisher) topicFor(evt *Event) string {
	return p.cfg.TopicPrefix + "." + evt.Metadata.EventType
}

// applyDefaults fills in publisher defaults for events whose metadata still
// carries the package-level creation defaults.
func (p *Publisher) applyDefaults(evt *Event) {
	m := &evt.Metadata
	if m.MaxRetries == DefaultMaxRetries {
		m.MaxRetries = p.cfg.DefaultMaxRetries
	}
	if m.RetryDelay == DefaultRetryDelay {
		m.RetryDelay = p.cfg.DefaultRetryDelay
	}
	if m.Timeout == 0 && p.cfg.DefaultTimeout > 0 {
		m.Timeout = p.cfg.DefaultTimeout
	}
}

// subscribeLoop holds the single transport subscription and fans messages
// into the shared delivery channel. Transport errors back off for one second
// before resubscribing; this crash-loop protection is distinct from
// event-level retry.
func (p *Publisher) subscribeLoop(ctx context.Context, msgs <-chan Message) {
	defer p.workerWG.Done()
	defer close(p.deliveries)

	pattern := p.cfg.TopicPrefix + ".*"

	for {
		for msg := range msgs {
			select {
			case p.deliveries <- msg:
			case <-ctx.Done():
				return
			}
		}

		// Stream ended: the transport dropped the subscription. Back off,
		// then resubscribe until it sticks or the context ends.
		for {
			if ctx.Err() != nil {
				return
			}
			if !sleepCtx(ctx, time.Second) {
				return
			}

			next, err := p.transport.Subscribe(ctx, pattern)
			if err != nil {
				p.logger.ErrorContext(ctx, "failed to resubscribe to transport",
					slog.String("pattern", pattern),
					slog.String("error", err.Error()))
				continue
			}
			msgs = next
			break
		}
	}
}

// worker is one long-lived member of the pool, competing with its peers for
// messages on the shared delivery channel.
func (p *Publisher) worker(ctx context.Context) {
	defer p.workerWG.Done()

	for msg := range p.deliveries {
		p.handleMessage(ctx, msg)
	}
}

func (p *Publisher) handleMessage(ctx context.Context, msg Message) {
	evt, err := p.codec.Decode(msg.Payload)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to decode event, rejecting message",
			slog.String("topic", msg.Topic),
			slog.String("error", err.Error()))
		_ = p.transport.Reject(ctx, msg, false)
		return
	}

	if err := p.processEvent(ctx, evt); err != nil {
		_ = p.transport.Reject(ctx, msg, false)
		return
	}

	_ = p.transport.Acknowledge(ctx, msg)
}

// processEvent drives one event through the state machine. A non-nil return
// means the originating message must be rejected without requeue so the
// transport can dead-letter it.
func (p *Publisher) processEvent(ctx context.Context, evt *Event) error {
	if evt.IsExpired() {
		evt.MarkFailed("event expired before processing")
		p.eventsFailed.Add(1)
		if p.cfg.EnableDeadLetter {
			p.eventsDeadLettered.Add(1)
		}
		p.logger.WarnContext(ctx, "event expired before processing",
			slog.String("event_id", evt.Metadata.EventID.String()),
			slog.String("event_type", evt.Metadata.EventType),
			slog.Duration("timeout", evt.Metadata.Timeout))
		return ErrEventExpired
	}

	matches := p.router.Match(evt)
	if len(matches) == 0 {
		if p.cfg.VerboseLogging {
			p.logger.DebugContext(ctx, "no subscriptions matched event",
				slog.String("event_id", evt.Metadata.EventID.String()),
				slog.String("event_type", evt.Metadata.EventType))
		}
		return nil
	}

	start := time.Now()
	evt.MarkProcessing()
	p.activeEvents.Add(1)
	defer p.activeEvents.Add(-1)

	results := p.dispatch(ctx, evt, matches)

	if anySucceeded(results) {
		evt.MarkCompleted()
		p.eventsProcessed.Add(1)
		p.totalProcessingNs.Add(time.Since(start).Nanoseconds())
		return nil
	}

	evt.MarkFailed(firstFailure(results))
	p.eventsFailed.Add(1)
	return p.handleFailedEvent(ctx, evt)
}

// dispatch spawns one handler task per matching subscription, honoring each
// subscription's concurrency cap, and waits for all results. A subscription
// already at its cap is skipped for this event rather than queued.
func (p *Publisher) dispatch(ctx context.Context, evt *Event, subs []*Subscription) []HandlerResult {
	resCh := make(chan HandlerResult, len(subs))
	var wg sync.WaitGroup

	for _, sub := range subs {
		st := p.tasksFor(sub.ID)
		tctx, cancel := context.WithCancel(ctx)

		release, ok := st.begin(sub.MaxConcurrent, cancel)
		if !ok {
			cancel()
			p.logger.DebugContext(ctx, "subscription at concurrency cap, skipping delivery",
				slog.String("subscription_id", sub.ID.String()),
				slog.Int("max_concurrent", sub.MaxConcurrent))
			continue
		}

		wg.Add(1)
		go func(sub *Subscription, tctx context.Context, cancel context.CancelFunc) {
			defer wg.Done()
			defer release()
			defer cancel()
			resCh <- p.invokeHandler(tctx, sub, evt)
		}(sub, tctx, cancel)
	}

	wg.Wait()
	close(resCh)

	results := make([]HandlerResult, 0, len(subs))
	for res := range resCh {
		results = append(results, res)
	}
	return results
}

// invokeHandler runs a single handler invocation under the global semaphore
// and the per-invocation timeout. A hung handler yields a failed result
// without blocking other deliveries; its goroutine is cancelled cooperatively.
func (p *Publisher) invokeHandler(ctx context.Context, sub *Subscription, evt *Event) HandlerResult {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return FailureResult("cancelled before handler execution")
	}
	defer func() { <-p.sem }()

	p.handlersExecuted.Add(1)

	hctx, cancel := context.WithTimeout(WithEventMeta(ctx, evt), p.cfg.SubscriptionTimeout)
	defer cancel()

	resCh := make(chan HandlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- sub.Handler.HandleError(hctx, evt, fmt.Errorf("handler panicked: %v", r))
			}
		}()

		res, err := sub.Handler.Handle(hctx, evt)
		if err != nil {
			res = sub.Handler.HandleError(hctx, evt, err)
		}
		resCh <- res
	}()

	select {
	case res := <-resCh:
		return res
	case <-hctx.Done():
		if errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return FailureResult(fmt.Sprintf("handler timed out after %s", p.cfg.SubscriptionTimeout))
		}
		return FailureResult("handler cancelled")
	}
}

// handleFailedEvent applies the retry/dead-letter policy to an event whose
// handlers all failed. Retried events are re-enqueued with backoff; exhausted
// events surface an error so the message is rejected without requeue.
func (p *Publisher) handleFailedEvent(ctx context.Context, evt *Event) error {
	if evt.CanRetry() {
		delay := p.cfg.RetryBackoff(evt.Metadata.RetryDelay, evt.RetryCount)
		evt.MarkRetrying()
		p.eventsRetried.Add(1)

		data, err := p.codec.Encode(evt)
		if err != nil {
			return err
		}

		if _, err := p.transport.Enqueue(ctx, p.topicFor(evt), data, evt.Metadata.Priority.Ordinal(), delay); err != nil {
			return fmt.Errorf("failed to re-enqueue event %s for retry: %w", evt.Metadata.EventID, err)
		}

		p.logger.InfoContext(ctx, "event scheduled for retry",
			slog.String("event_id", evt.Metadata.EventID.String()),
			slog.String("event_type", evt.Metadata.EventType),
			slog.Int("retry_count", evt.RetryCount),
			slog.Duration("delay", delay))
		return nil
	}

	if p.cfg.EnableDeadLetter {
		p.eventsDeadLettered.Add(1)
	}

	p.logger.WarnContext(ctx, "event retries exhausted",
		slog.String("event_id", evt.Metadata.EventID.String()),
		slog.String("event_type", evt.Metadata.EventType),
		slog.Int("retry_count", evt.RetryCount),
		slog.Int("max_retries", evt.Metadata.MaxRetries),
		slog.String("error", evt.ErrorMessage))

	return ErrRetriesExhausted
}

func (p *Publisher) tasksFor(id uuid.UUID) *subscriptionTasks {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.tasks[id]
	if !ok {
		st = newSubscriptionTasks()
		p.tasks[id] = st
	}
	return st
}

// Stats returns current publisher statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (p *Publisher) Stats() PublisherStats {
	p.mu.RLock()
	isRunning := p.cancel != nil
	p.mu.RUnlock()

	processed := p.eventsProcessed.Load()
	var avg time.Duration
	if processed > 0 {
		avg = time.Duration(p.totalProcessingNs.Load() / processed)
	}

	return PublisherStats{
		EventsPublished:    p.eventsPublished.Load(),
		EventsProcessed:    processed,
		EventsFailed:       p.eventsFailed.Load(),
		EventsRetried:      p.eventsRetried.Load(),
		EventsDeadLettered: p.eventsDeadLettered.Load(),
		HandlersExecuted:   p.handlersExecuted.Load(),
		ActiveEvents:       p.activeEvents.Load(),
		Subscriptions:      p.router.Len(),
		AvgProcessingTime:  avg,
		IsRunning:          isRunning,
	}
}

// Healthcheck validates that the publisher is operational.
// Returns nil if healthy, or an error describing the health issue.
func (p *Publisher) Healthcheck(ctx context.Context) error {
	stats := p.Stats()

	if !stats.IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrPublisherNotStarted)
	}

	return nil
}

// subscriptionTasks tracks in-flight handler tasks for one subscription,
// enabling both the per-subscription concurrency cap and targeted
// cancellation on unsubscribe.
type subscriptionTasks struct {
	mu       sync.Mutex
	inflight int
	seq      int64
	cancels  map[int64]context.CancelFunc
	wg       sync.WaitGroup
}

func newSubscriptionTasks() *subscriptionTasks {
	return &subscriptionTasks{cancels: make(map[int64]context.CancelFunc)}
}

// begin reserves a task slot. Returns ok=false when the subscription is
// already at its concurrency cap.
func (st *subscriptionTasks) begin(max int, cancel context.CancelFunc) (release func(), ok bool) {
	if max < 1 {
		max = 1
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.inflight >= max {
		return nil, false
	}

	st.inflight++
	st.seq++
	id := st.seq
	st.cancels[id] = cancel
	st.wg.Add(1)

	return func() {
		st.mu.Lock()
		st.inflight--
		delete(st.cancels, id)
		st.mu.Unlock()
		st.wg.Done()
	}, true
}

// cancelAndWait cancels all in-flight tasks and waits for them to finish.
func (st *subscriptionTasks) cancelAndWait() {
	st.mu.Lock()
	for _, cancel := range st.cancels {
		cancel()
	}
	st.mu.Unlock()

	st.wg.Wait()
}

func anySucceeded(results []HandlerResult) bool {
	for _, res := range results {
		if res.Success {
			return true
		}
	}
	return false
}

func firstFailure(results []HandlerResult) string {
	for _, res := range results {
		if !res.Success && res.ErrorMessage != "" {
			return res.ErrorMessage
		}
	}
	return "all handlers failed"
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false when
// cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
