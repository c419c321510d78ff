package service

import "github.com/nestmatch/nestmatch-backend/internal/domain"

// ChangeNotifier fans write events out to live sessions. Conversation
// changes are expected to be debounced by the implementation; message
// and read events are pushed immediately.
type ChangeNotifier interface {
	ConversationChanged(userIDs ...string)
	MessageNew(recipientID string, message *domain.MessageResponse)
	ReadApplied(conversationID, notifyUserID string)
}

// NopNotifier discards all events; used in tests and when the realtime
// layer is disabled
type NopNotifier struct{}

func (NopNotifier) ConversationChanged(...string)                   {}
func (NopNotifier) MessageNew(string, *domain.MessageResponse)      {}
func (NopNotifier) ReadApplied(string, string)                      {}
