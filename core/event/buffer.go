package event

import (
	"sync"
	"time"
)

// DefaultBufferCapacity is used when a buffer is created with no explicit size.
const DefaultBufferCapacity = 100

// Buffer is a bounded FIFO of events with drop-oldest overflow semantics.
// It backs pull- and hybrid-mode subscriptions; each buffer is owned by
// exactly one subscription.
type Buffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	events   []*Event
	capacity int
	closed   bool
	dropped  int64
}

// NewBuffer creates a buffer holding at most capacity events.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	b := &Buffer{capacity: capacity}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Put appends an event, evicting the oldest entry when full.
func (b *Buffer) Put(evt *Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBufferClosed
	}

	if len(b.events) >= b.capacity {
		b.events = b.events[1:]
		b.dropped++
	}

	b.events = append(b.events, evt)
	b.cond.Signal()
	return nil
}

// Get removes and returns the oldest event, waiting up to timeout for one
// to arrive. Returns ErrBufferTimeout when the wait expires empty.
func (b *Buffer) Get(timeout time.Duration) (*Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.waitLocked(timeout); err != nil {
		return nil, err
	}

	evt := b.events[0]
	b.events = b.events[1:]
	return evt, nil
}

// GetBatch waits up to timeout for the first event, then drains without
// blocking up to n events.
func (b *Buffer) GetBatch(n int, timeout time.Duration) ([]*Event, error) {
	if n <= 0 {
		n = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.waitLocked(timeout); err != nil {
		return nil, err
	}

	if n > len(b.events) {
		n = len(b.events)
	}

	batch := make([]*Event, n)
	copy(batch, b.events[:n])
	b.events = b.events[n:]
	return batch, nil
}

// waitLocked blocks until an event is available, the buffer closes, or the
// deadline passes. Caller must hold b.mu.
func (b *Buffer) waitLocked(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	// The timer wakes all waiters; each re-checks its own deadline.
	timer := time.AfterFunc(timeout, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer timer.Stop()

	for len(b.events) == 0 {
		if b.closed {
			return ErrBufferClosed
		}
		if !time.Now().Before(deadline) {
			return ErrBufferTimeout
		}
		b.cond.Wait()
	}

	return nil
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Dropped returns the number of events evicted due to overflow.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Clear discards all buffered events.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// Close discards buffered events and wakes all waiters. Idempotent.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.events = nil
	b.cond.Broadcast()
}
