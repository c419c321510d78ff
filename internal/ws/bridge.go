package ws

import (
	"sync"
	"time"
)

// RefreshFunc performs the coalesced reconciliation for one user:
// invalidate projections, then tell the user's sessions to refetch.
type RefreshFunc func(userID string)

// Bridge coalesces change events into at most one refresh per quiet
// window per user. Each user owns a single-slot timer that is canceled
// and rescheduled on every event, so a burst of K events produces one
// refresh, fired one window after the last event. It is a freshness
// optimization, not the source of truth: a missed refresh is corrected
// by the next user-initiated fetch.
type Bridge struct {
	window  time.Duration
	refresh RefreshFunc

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewBridge creates a Bridge with the given quiet window
func NewBridge(window time.Duration, refresh RefreshFunc) *Bridge {
	return &Bridge{
		window:  window,
		refresh: refresh,
		timers:  make(map[string]*time.Timer),
	}
}

// Notify records a change event for a user and restarts their quiet
// window
func (b *Bridge) Notify(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	if t, ok := b.timers[userID]; ok {
		t.Stop()
	}
	b.timers[userID] = time.AfterFunc(b.window, func() {
		b.fire(userID)
	})
}

func (b *Bridge) fire(userID string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	delete(b.timers, userID)
	b.mu.Unlock()

	b.refresh(userID)
}

// Cancel drops any pending refresh for a user. Used on teardown so a
// timer cannot fire after the caller lost interest.
func (b *Bridge) Cancel(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.timers[userID]; ok {
		t.Stop()
		delete(b.timers, userID)
	}
}

// Stop cancels all pending refreshes and rejects new events
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
}
