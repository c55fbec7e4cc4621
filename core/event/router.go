package event

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Router maps an event to the set of interested subscriptions.
//
// Subscriptions are bucketed three ways: a type index for subscriptions bound
// to a fixed event type, a filtered list for subscriptions carrying a
// structural Filter, and a wildcard list for the rest. Matching is fan-out:
// no ordering is guaranteed across matched subscriptions.
type Router struct {
	mu        sync.RWMutex
	typeIndex map[string][]*routeEntry
	filtered  []*routeEntry
	wildcard  []*routeEntry
}

type routeEntry struct {
	sub    *Subscription
	filter *Filter
	paused func() bool // nil means never paused
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{typeIndex: make(map[string][]*routeEntry)}
}

// Add registers a subscription with an optional structural filter and an
// optional paused check. Filtered subscriptions take the filtered bucket
// regardless of their event type binding.
func (r *Router) Add(sub *Subscription, filter *Filter, paused func() bool) {
	entry := &routeEntry{sub: sub, filter: filter, paused: paused}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case filter != nil:
		r.filtered = append(r.filtered, entry)
	case sub.EventType != "":
		r.typeIndex[sub.EventType] = append(r.typeIndex[sub.EventType], entry)
	default:
		r.wildcard = append(r.wildcard, entry)
	}
}

// Remove deregisters a subscription by ID. Returns false if not found.
func (r *Router) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := func(id uuid.UUID) func(*routeEntry) bool {
		return func(e *routeEntry) bool { return e.sub.ID == id }
	}

	for eventType, entries := range r.typeIndex {
		next := slices.DeleteFunc(entries, drop(id))
		if len(next) != len(entries) {
			if len(next) == 0 {
				delete(r.typeIndex, eventType)
			} else {
				r.typeIndex[eventType] = next
			}
			return true
		}
	}

	if next := slices.DeleteFunc(r.filtered, drop(id)); len(next) != len(r.filtered) {
		r.filtered = next
		return true
	}

	if next := slices.DeleteFunc(r.wildcard, drop(id)); len(next) != len(r.wildcard) {
		r.wildcard = next
		return true
	}

	return false
}

// Match returns the subscriptions interested in the event. The result order
// carries no delivery guarantee.
func (r *Router) Match(evt *Event) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Subscription

	for _, entry := range r.typeIndex[evt.Metadata.EventType] {
		if entry.matches(evt) {
			matched = append(matched, entry.sub)
		}
	}

	for _, entry := range r.filtered {
		if entry.matches(evt) {
			matched = append(matched, entry.sub)
		}
	}

	for _, entry := range r.wildcard {
		if entry.matches(evt) {
			matched = append(matched, entry.sub)
		}
	}

	return matched
}

// Len returns the total number of registered subscriptions.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.filtered) + len(r.wildcard)
	for _, entries := range r.typeIndex {
		n += len(entries)
	}
	return n
}

func (e *routeEntry) matches(evt *Event) bool {
	if e.paused != nil && e.paused() {
		return false
	}
	if e.filter != nil && !e.filter.Matches(evt) {
		return false
	}
	return e.sub.Matches(evt)
}
