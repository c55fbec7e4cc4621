package event

import "github.com/google/uuid"

// Subscription is a registered interest in a subset of events.
// A subscription with no event type and no predicate is a full wildcard.
type Subscription struct {
	ID            uuid.UUID
	Handler       Handler
	EventType     string
	Predicate     func(*Event) bool
	Active        bool
	MaxConcurrent int
}

// SubscriptionOption configures a Subscription.
type SubscriptionOption func(*Subscription)

// SubscriptionEventType binds the subscription to a single event type.
func SubscriptionEventType(eventType string) SubscriptionOption {
	return func(s *Subscription) { s.EventType = eventType }
}

// SubscriptionPredicate adds an arbitrary match predicate.
func SubscriptionPredicate(predicate func(*Event) bool) SubscriptionOption {
	return func(s *Subscription) { s.Predicate = predicate }
}

// SubscriptionMaxConcurrent caps concurrent in-flight handler invocations
// for this subscription. Default is 1.
func SubscriptionMaxConcurrent(n int) SubscriptionOption {
	return func(s *Subscription) {
		if n >= 1 {
			s.MaxConcurrent = n
		}
	}
}

// NewSubscription creates an active subscription for the given handler.
// When no event type option is given, the handler's own type binding is used.
func NewSubscription(handler Handler, opts ...SubscriptionOption) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	sub := &Subscription{
		ID:            uuid.New(),
		Handler:       handler,
		EventType:     handler.EventType(),
		Active:        true,
		MaxConcurrent: 1,
	}

	for _, opt := range opts {
		opt(sub)
	}

	return sub, nil
}

// Matches reports whether the subscription wants the given event,
// independent of any structural filter attached by a router entry.
func (s *Subscription) Matches(evt *Event) bool {
	if !s.Active {
		return false
	}
	if s.EventType != "" && evt.Metadata.EventType != s.EventType {
		return false
	}
	if s.Predicate != nil && !s.Predicate(evt) {
		return false
	}
	return s.Handler.CanHandle(evt)
}
