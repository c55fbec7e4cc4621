package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// healthyScoreThreshold is the minimum health score for a subscription to be
// considered healthy.
const healthyScoreThreshold = 0.7

// ManagedSubscription is the subscriber-side superset of Subscription. It
// carries the consumption mode, an optional structural filter, an optional
// buffer for pull/hybrid modes, and per-subscription health counters.
type ManagedSubscription struct {
	*Subscription
	Filter *Filter
	Mode   SubscriptionMode

	buffer *Buffer

	mu              sync.Mutex
	paused          bool
	eventsProcessed int64
	eventsFailed    int64
	totalProcessing time.Duration
	errorCount      int
	lastError       string
}

// Paused reports whether the subscription is currently paused.
func (ms *ManagedSubscription) Paused() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.paused
}

// HealthScore derives a reliability score in [0,1]: the success rate minus
// an error penalty of 0.1 per recorded error, capped at 0.5.
func (ms *ManagedSubscription) HealthScore() float64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.healthScoreLocked()
}

func (ms *ManagedSubscription) healthScoreLocked() float64 {
	successRate := 1.0
	if total := ms.eventsProcessed + ms.eventsFailed; total > 0 {
		successRate = float64(ms.eventsProcessed) / float64(total)
	}

	penalty := float64(ms.errorCount) * 0.1
	if penalty > 0.5 {
		penalty = 0.5
	}

	score := successRate - penalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// IsHealthy reports whether the subscription is active, unpaused, and scores
// at or above the health threshold.
func (ms *ManagedSubscription) IsHealthy() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.Active && !ms.paused && ms.healthScoreLocked() >= healthyScoreThreshold
}

func (ms *ManagedSubscription) recordSuccess(duration time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.eventsProcessed++
	ms.totalProcessing += duration
}

func (ms *ManagedSubscription) recordFailure(errMsg string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.eventsFailed++
	ms.errorCount++
	ms.lastError = errMsg
}

// SubscriptionStats is a read-only snapshot of a subscription's health counters.
type SubscriptionStats struct {
	ID                uuid.UUID
	EventType         string
	Mode              SubscriptionMode
	Active            bool
	Paused            bool
	EventsProcessed   int64
	EventsFailed      int64
	AvgProcessingTime time.Duration
	ErrorCount        int
	LastError         string
	Buffered          int
	HealthScore       float64
	Healthy           bool
}

func (ms *ManagedSubscription) stats() SubscriptionStats {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var avg time.Duration
	if ms.eventsProcessed > 0 {
		avg = ms.totalProcessing / time.Duration(ms.eventsProcessed)
	}

	buffered := 0
	if ms.buffer != nil {
		buffered = ms.buffer.Len()
	}

	score := ms.healthScoreLocked()

	return SubscriptionStats{
		ID:                ms.ID,
		EventType:         ms.EventType,
		Mode:              ms.Mode,
		Active:            ms.Active,
		Paused:            ms.paused,
		EventsProcessed:   ms.eventsProcessed,
		EventsFailed:      ms.eventsFailed,
		AvgProcessingTime: avg,
		ErrorCount:        ms.errorCount,
		LastError:         ms.lastError,
		Buffered:          buffered,
		HealthScore:       score,
		Healthy:           ms.Active && !ms.paused && score >= healthyScoreThreshold,
	}
}

// Subscriber manages subscription lifecycle across push, pull, and hybrid
// consumption modes, with per-subscription buffering and health scoring.
type Subscriber struct {
	router *Router
	logger *slog.Logger
	cfg    SubscriberConfig

	sem  chan struct{}
	mu   sync.RWMutex
	subs map[uuid.UUID]*ManagedSubscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubscriber creates an event subscriber.
//
// Example:
//
//	subscriber := event.NewSubscriber(
//	    event.WithSubscriberLogger(logger),
//	)
//	id, err := subscriber.Subscribe(handler,
//	    event.SubscribeEventType("user.created"),
//	    event.SubscribeMode(event.ModePull),
//	)
func NewSubscriber(opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		router: NewRouter(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:    DefaultSubscriberConfig(),
		subs:   make(map[uuid.UUID]*ManagedSubscription),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.MaxConcurrentHandlers < 1 {
		s.cfg.MaxConcurrentHandlers = 1
	}
	s.sem = make(chan struct{}, s.cfg.MaxConcurrentHandlers)

	return s
}

// Subscribe registers a handler and returns the new subscription ID.
// A buffer is allocated only for pull/hybrid modes with buffering enabled.
func (s *Subscriber) Subscribe(handler Handler, opts ...SubscribeOption) (uuid.UUID, error) {
	if handler == nil {
		return uuid.Nil, ErrNilHandler
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subs) >= s.cfg.MaxSubscriptions {
		return uuid.Nil, fmt.Errorf("%w: limit %d", ErrMaxSubscriptions, s.cfg.MaxSubscriptions)
	}

	sub, err := NewSubscription(handler)
	if err != nil {
		return uuid.Nil, err
	}

	ms := &ManagedSubscription{
		Subscription: sub,
		Mode:         s.cfg.DefaultMode,
	}

	cfg := subscribeConfig{bufferSize: s.cfg.BufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.apply(ms)

	if (ms.Mode == ModePull || ms.Mode == ModeHybrid) && s.cfg.EnableBuffering {
		ms.buffer = NewBuffer(cfg.bufferSize)
	}

	s.subs[ms.ID] = ms
	s.router.Add(ms.Subscription, ms.Filter, ms.Paused)

	s.logger.Debug("subscription created",
		slog.String("subscription_id", ms.ID.String()),
		slog.String("event_type", ms.EventType),
		slog.String("mode", string(ms.Mode)))

	return ms.ID, nil
}

// Unsubscribe removes a subscription and clears its buffer.
// Returns false when the ID is unknown, so a double unsubscribe is harmless.
func (s *Subscriber) Unsubscribe(id uuid.UUID) bool {
	s.mu.Lock()
	ms, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()

	if !ok {
		return false
	}

	s.router.Remove(id)
	ms.Active = false
	if ms.buffer != nil {
		ms.buffer.Close()
	}

	return true
}

// DeliverEvent routes the event to matching subscriptions. Push-mode
// subscriptions are dispatched concurrently under the global semaphore and
// handler timeout; pull/hybrid subscriptions enqueue into their buffer and
// report an immediate success acknowledging buffering, not handler completion.
func (s *Subscriber) DeliverEvent(ctx context.Context, evt *Event) map[uuid.UUID]HandlerResult {
	matched := s.router.Match(evt)

	results := make(map[uuid.UUID]HandlerResult, len(matched))
	if len(matched) == 0 {
		return results
	}

	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
	)

	for _, sub := range matched {
		s.mu.RLock()
		ms, ok := s.subs[sub.ID]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		if ms.buffer != nil {
			res := SuccessResult()
			if err := ms.buffer.Put(evt); err != nil {
				res = FailureResult(err.Error())
				ms.recordFailure(err.Error())
			}
			resultsMu.Lock()
			results[ms.ID] = res
			resultsMu.Unlock()
			continue
		}

		wg.Add(1)
		go func(ms *ManagedSubscription) {
			defer wg.Done()
			res := s.invokeHandler(ctx, ms, evt)
			resultsMu.Lock()
			results[ms.ID] = res
			resultsMu.Unlock()
		}(ms)
	}

	wg.Wait()
	return results
}

func (s *Subscriber) invokeHandler(ctx context.Context, ms *ManagedSubscription, evt *Event) HandlerResult {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return FailureResult("cancelled before handler execution")
	}
	defer func() { <-s.sem }()

	start := time.Now()

	hctx, cancel := context.WithTimeout(WithEventMeta(ctx, evt), s.cfg.HandlerTimeout)
	defer cancel()

	resCh := make(chan HandlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- ms.Handler.HandleError(hctx, evt, fmt.Errorf("handler panicked: %v", r))
			}
		}()

		res, err := ms.Handler.Handle(hctx, evt)
		if err != nil {
			res = ms.Handler.HandleError(hctx, evt, err)
		}
		resCh <- res
	}()

	var res HandlerResult
	select {
	case res = <-resCh:
	case <-hctx.Done():
		res = FailureResult(fmt.Sprintf("handler timed out after %s", s.cfg.HandlerTimeout))
	}

	if res.Success {
		ms.recordSuccess(time.Since(start))
	} else {
		ms.recordFailure(res.ErrorMessage)
	}

	return res
}

// PullEvents drains up to batchSize events from a pull/hybrid subscription's
// buffer, waiting up to timeout for the first event.
func (s *Subscriber) PullEvents(ctx context.Context, id uuid.UUID, batchSize int, timeout time.Duration) ([]*Event, error) {
	s.mu.RLock()
	ms, ok := s.subs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	if ms.buffer == nil {
		return nil, fmt.Errorf("subscription %s is not buffered", id)
	}

	if batchSize <= 1 {
		evt, err := ms.buffer.Get(timeout)
		if err != nil {
			if errors.Is(err, ErrBufferTimeout) {
				return nil, nil
			}
			return nil, err
		}
		return []*Event{evt}, nil
	}

	batch, err := ms.buffer.GetBatch(batchSize, timeout)
	if err != nil {
		if errors.Is(err, ErrBufferTimeout) {
			return nil, nil
		}
		return nil, err
	}
	return batch, nil
}

// PauseSubscription stops routing events to the subscription until resumed.
func (s *Subscriber) PauseSubscription(id uuid.UUID) error {
	return s.setPaused(id, true)
}

// ResumeSubscription re-enables routing to a paused subscription.
func (s *Subscriber) ResumeSubscription(id uuid.UUID) error {
	return s.setPaused(id, false)
}

func (s *Subscriber) setPaused(id uuid.UUID, paused bool) error {
	s.mu.RLock()
	ms, ok := s.subs[id]
	s.mu.RUnlock()

	if !ok {
		return ErrSubscriptionNotFound
	}

	ms.mu.Lock()
	ms.paused = paused
	ms.mu.Unlock()
	return nil
}

// SubscriptionStats returns the health snapshot for one subscription.
func (s *Subscriber) SubscriptionStats(id uuid.UUID) (SubscriptionStats, error) {
	s.mu.RLock()
	ms, ok := s.subs[id]
	s.mu.RUnlock()

	if !ok {
		return SubscriptionStats{}, ErrSubscriptionNotFound
	}
	return ms.stats(), nil
}

// AllSubscriptionStats returns health snapshots for every subscription.
func (s *Subscriber) AllSubscriptionStats() map[uuid.UUID]SubscriptionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]SubscriptionStats, len(s.subs))
	for id, ms := range s.subs {
		out[id] = ms.stats()
	}
	return out
}

// SubscriptionCount returns the number of registered subscriptions.
func (s *Subscriber) SubscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Start runs the periodic health-check worker. Unhealthy subscriptions are
// logged but never auto-remediated. This is a blocking operation that runs
// until the context is cancelled. Use Run() for errgroup pattern or call this
// in a goroutine.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrSubscriberAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	if !s.cfg.EnableHealthCheck {
		<-runCtx.Done()
		return runCtx.Err()
	}

	s.logger.InfoContext(runCtx, "subscriber health-check worker started",
		slog.Duration("interval", s.cfg.HealthCheckInterval))

	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			s.logger.Info("subscriber stopping")
			return runCtx.Err()
		case <-ticker.C:
			s.checkHealth(runCtx)
		}
	}
}

// Stop shuts down the health-check worker and closes all buffers.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrSubscriberNotStarted
	}

	cancel := s.cancel
	s.cancel = nil

	for _, ms := range s.subs {
		if ms.buffer != nil {
			ms.buffer.Close()
		}
	}
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.logger.Info("subscriber stopped")
	return nil
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (s *Subscriber) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = s.Stop()
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

func (s *Subscriber) checkHealth(ctx context.Context) {
	for id, stats := range s.AllSubscriptionStats() {
		if stats.Healthy || !stats.Active {
			continue
		}
		s.logger.WarnContext(ctx, "unhealthy subscription detected",
			slog.String("subscription_id", id.String()),
			slog.String("event_type", stats.EventType),
			slog.Float64("health_score", stats.HealthScore),
			slog.Int("error_count", stats.ErrorCount),
			slog.String("last_error", stats.LastError))
	}
}
