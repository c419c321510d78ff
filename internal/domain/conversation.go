package domain

import "time"

// Conversation statuses. Conversations are never hard-deleted by users;
// archiving is the only user-visible removal.
const (
	ConversationActive   = "active"
	ConversationArchived = "archived"
)

// Conversation is the single message thread between a seeker and a
// lister. The unique index on (seeker_id, lister_id) is the concurrency
// guard for idempotent creation: at most one row exists per pair,
// regardless of which listing started the thread.
type Conversation struct {
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	LastActivityAt time.Time `gorm:"column:last_activity_at;index" json:"last_activity_at"`

	ID        string  `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	SeekerID  string  `gorm:"column:seeker_id;type:varchar(36);uniqueIndex:idx_conversation_pair" json:"seeker_id"`
	ListerID  string  `gorm:"column:lister_id;type:varchar(36);uniqueIndex:idx_conversation_pair" json:"lister_id"`
	ListingID *string `gorm:"column:listing_id;type:varchar(36)" json:"listing_id,omitempty"`
	Status    string  `gorm:"column:status;type:varchar(10);default:active" json:"status"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// OtherParticipant returns the participant that is not userID
func (c *Conversation) OtherParticipant(userID string) string {
	if c.SeekerID == userID {
		return c.ListerID
	}
	return c.SeekerID
}

// HasParticipant reports whether userID belongs to the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	return c.SeekerID == userID || c.ListerID == userID
}

// StartConversationRequest is the request body for POST /conversations
type StartConversationRequest struct {
	OtherUserID    string  `json:"other_user_id" binding:"required"`
	ListingID      *string `json:"listing_id,omitempty"`
	OpeningMessage string  `json:"opening_message" binding:"required"`
}

// ConversationResponse is a conversation in API responses, carrying
// the other participant, the last message preview, the unread count
// and the last activity timestamp for the list view
type ConversationResponse struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	ListingID      string           `json:"listing_id,omitempty"`
	Other          *MemberSummary   `json:"other,omitempty"`
	LastMessage    *MessageResponse `json:"last_message,omitempty"`
	UnreadCount    int64            `json:"unread_count"`
	LastActivityAt string           `json:"last_activity_at"`
	CreatedAt      string           `json:"created_at"`
	Created        bool             `json:"created,omitempty"` // true when this call created the thread
}

// ToResponse converts a Conversation to its API shape
func (c *Conversation) ToResponse() *ConversationResponse {
	resp := &ConversationResponse{
		ID:             c.ID,
		Status:         c.Status,
		LastActivityAt: c.LastActivityAt.UTC().Format(time.RFC3339),
		CreatedAt:      c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.ListingID != nil {
		resp.ListingID = *c.ListingID
	}
	return resp
}

// UpdateConversationStatusRequest is the request body for PATCH status
type UpdateConversationStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active archived"`
}
