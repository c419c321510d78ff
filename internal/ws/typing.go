package ws

import (
	"sort"
	"sync"
	"time"
)

// TypingChangedFunc is called with the full typing set of a
// conversation whenever it changes
type TypingChangedFunc func(conversationID string, userIDs []string)

// TypingRegistry holds the ephemeral per-conversation typing sets.
// Nothing here is persisted: a lost stop signal is covered by the
// expiry timer, and a reconnect starts from an empty set.
type TypingRegistry struct {
	expiry   time.Duration
	onChange TypingChangedFunc

	mu     sync.Mutex
	timers map[string]map[string]*time.Timer // conversationID -> userID -> expiry timer
	closed bool
}

// NewTypingRegistry creates a TypingRegistry with the given signal lifetime
func NewTypingRegistry(expiry time.Duration, onChange TypingChangedFunc) *TypingRegistry {
	return &TypingRegistry{
		expiry:   expiry,
		onChange: onChange,
		timers:   make(map[string]map[string]*time.Timer),
	}
}

// Start marks a user as typing and arms (or renews) their expiry timer
func (r *TypingRegistry) Start(conversationID, userID string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	if r.timers[conversationID] == nil {
		r.timers[conversationID] = make(map[string]*time.Timer)
	}
	if t, ok := r.timers[conversationID][userID]; ok {
		t.Stop()
	}
	r.timers[conversationID][userID] = time.AfterFunc(r.expiry, func() {
		r.expire(conversationID, userID)
	})
	users := r.usersLocked(conversationID)
	r.mu.Unlock()

	r.notify(conversationID, users)
}

// Stop removes a user from the typing set immediately (sent a message
// or cleared the input)
func (r *TypingRegistry) Stop(conversationID, userID string) {
	r.mu.Lock()
	removed := r.removeLocked(conversationID, userID)
	users := r.usersLocked(conversationID)
	r.mu.Unlock()

	if removed {
		r.notify(conversationID, users)
	}
}

// expire removes a user whose signal was never renewed, so a lost stop
// signal cannot leave them stuck typing forever
func (r *TypingRegistry) expire(conversationID, userID string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	removed := r.removeLocked(conversationID, userID)
	users := r.usersLocked(conversationID)
	r.mu.Unlock()

	if removed {
		r.notify(conversationID, users)
	}
}

// Users returns the current typing set for a conversation
func (r *TypingRegistry) Users(conversationID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usersLocked(conversationID)
}

// Shutdown cancels every timer; used on conversation-view teardown and
// process exit
func (r *TypingRegistry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for convID, users := range r.timers {
		for userID, t := range users {
			t.Stop()
			delete(users, userID)
		}
		delete(r.timers, convID)
	}
}

func (r *TypingRegistry) removeLocked(conversationID, userID string) bool {
	users, ok := r.timers[conversationID]
	if !ok {
		return false
	}
	t, ok := users[userID]
	if !ok {
		return false
	}
	t.Stop()
	delete(users, userID)
	if len(users) == 0 {
		delete(r.timers, conversationID)
	}
	return true
}

func (r *TypingRegistry) usersLocked(conversationID string) []string {
	users := make([]string, 0, len(r.timers[conversationID]))
	for userID := range r.timers[conversationID] {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

func (r *TypingRegistry) notify(conversationID string, users []string) {
	if r.onChange != nil {
		r.onChange(conversationID, users)
	}
}
