package ws

import "github.com/nestmatch/nestmatch-backend/internal/domain"

// Notifier adapts the hub and bridge to the write path: services call
// it after durable writes, and it decides what is pushed immediately
// versus coalesced through the debounce window.
type Notifier struct {
	hub    *Hub
	bridge *Bridge
}

// NewNotifier creates a Notifier
func NewNotifier(hub *Hub, bridge *Bridge) *Notifier {
	return &Notifier{hub: hub, bridge: bridge}
}

// ConversationChanged schedules a debounced list refresh for each user
func (n *Notifier) ConversationChanged(userIDs ...string) {
	for _, userID := range userIDs {
		n.bridge.Notify(userID)
	}
}

// MessageNew pushes a confirmed message to the recipient right away;
// the list refresh still goes through the debounce window
func (n *Notifier) MessageNew(recipientID string, message *domain.MessageResponse) {
	n.hub.SendToUser(recipientID, &Event{
		Type:    EventMessageNew,
		Payload: message,
	})
}

// ReadApplied tells the other participant their messages were read
func (n *Notifier) ReadApplied(conversationID, notifyUserID string) {
	n.hub.SendToUser(notifyUserID, &Event{
		Type: EventRead,
		Payload: map[string]string{
			"conversation_id": conversationID,
		},
	})
}
