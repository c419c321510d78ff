// Package pipeline holds the optimistic send projection: pending
// messages are visible immediately, then substituted in place by their
// durable rows, or removed entirely when the write fails.
package pipeline

import (
	"strings"
	"sync"

	"github.com/nestmatch/nestmatch-backend/internal/domain"
)

// TempIDPrefix marks client-assigned temporary ids. A durable id is a
// UUID and can never start with this prefix, so the two id spaces
// cannot collide.
const TempIDPrefix = "tmp_"

// IsTempID reports whether id belongs to the temporary id space
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Outbox tracks pending sends per conversation. It is an in-memory
// projection over in-flight writes, not a store: a restart loses
// pending entries, and the caller retries manually. The same policy
// as a failed write.
type Outbox struct {
	mu      sync.Mutex
	pending map[string][]*domain.PendingMessage // conversationID -> entries in send order
}

// NewOutbox creates an empty Outbox
func NewOutbox() *Outbox {
	return &Outbox{
		pending: make(map[string][]*domain.PendingMessage),
	}
}

// Append records a pending send. The entry is visible to Pending and
// Merge until Confirm or Remove is called with its temp id.
func (o *Outbox) Append(p *domain.PendingMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[p.ConversationID] = append(o.pending[p.ConversationID], p)
}

// Confirm removes the pending entry that the durable row replaces.
// The durable record takes the entry's place in the merged projection,
// an exact substitution rather than an append.
func (o *Outbox) Confirm(conversationID, tempID string) bool {
	return o.remove(conversationID, tempID)
}

// Remove drops a pending entry after a failed write, restoring the
// projection to its exact pre-send state
func (o *Outbox) Remove(conversationID, tempID string) bool {
	return o.remove(conversationID, tempID)
}

func (o *Outbox) remove(conversationID, tempID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries := o.pending[conversationID]
	for i, p := range entries {
		if p.TempID == tempID {
			o.pending[conversationID] = append(entries[:i], entries[i+1:]...)
			if len(o.pending[conversationID]) == 0 {
				delete(o.pending, conversationID)
			}
			return true
		}
	}
	return false
}

// Pending returns a copy of the in-flight entries for a conversation
func (o *Outbox) Pending(conversationID string) []*domain.PendingMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries := o.pending[conversationID]
	out := make([]*domain.PendingMessage, len(entries))
	copy(out, entries)
	return out
}

// Merge combines durable rows with in-flight pending entries into the
// ordered projection the UI renders. Durable rows keep creation order;
// pending entries follow in send order, since they are by definition
// the newest activity. A pending entry whose temp id already appears on
// a durable row is skipped: the substitution won the race with this
// read, and showing both would duplicate the send.
func (o *Outbox) Merge(conversationID string, durable []*domain.Message) []*domain.MessageEntry {
	pending := o.Pending(conversationID)

	confirmed := make(map[string]bool, len(durable))
	entries := make([]*domain.MessageEntry, 0, len(durable)+len(pending))
	for _, m := range durable {
		if m.ClientTempID != "" {
			confirmed[m.ClientTempID] = true
		}
		entries = append(entries, &domain.MessageEntry{Confirmed: m})
	}
	for _, p := range pending {
		if confirmed[p.TempID] {
			continue
		}
		entries = append(entries, &domain.MessageEntry{Pending: p})
	}
	return entries
}
