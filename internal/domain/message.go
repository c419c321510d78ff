package domain

import "time"

// Message kinds. Only plain text exists today; the column keeps room
// for attachments later.
const (
	MessageKindText = "text"
)

// Projection states for a message entry. A pending entry either becomes
// confirmed (durable write succeeded) or is removed entirely (write
// failed); there is no "failed" ghost state.
const (
	MessageStatePending   = "pending"
	MessageStateConfirmed = "confirmed"
)

// Message is a durable, append-only message row. Confirmed messages are
// immutable except for the read timestamp.
type Message struct {
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	ReadAt    *time.Time `gorm:"column:read_at" json:"read_at,omitempty"`

	ID             string `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	ConversationID string `gorm:"column:conversation_id;type:varchar(36);index" json:"conversation_id"`
	SenderID       string `gorm:"column:sender_id;type:varchar(36);index" json:"sender_id"`
	Body           string `gorm:"column:body;type:text" json:"body"`
	Kind           string `gorm:"column:kind;type:varchar(10);default:text" json:"kind"`
	// ClientTempID ties the durable row back to the optimistic entry it
	// replaces, so a projection can never show both at once
	ClientTempID string `gorm:"column:client_temp_id;type:varchar(48)" json:"client_temp_id,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// PendingMessage is a locally visible, not-yet-durable send awaiting
// server confirmation. Its TempID is client-assigned and carries the
// "tmp_" prefix so it can never collide with a durable id.
type PendingMessage struct {
	CreatedAt time.Time `json:"created_at"`

	TempID         string `json:"temp_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Body           string `json:"body"`
}

// MessageEntry is one row of the UI-facing message projection. Exactly
// one of Pending/Confirmed is set, so substitution logic cannot treat a
// pending and a confirmed record as separately addressable.
type MessageEntry struct {
	Pending   *PendingMessage `json:"pending,omitempty"`
	Confirmed *Message        `json:"confirmed,omitempty"`
}

// IsPending reports whether the entry is still awaiting confirmation
func (e *MessageEntry) IsPending() bool {
	return e.Pending != nil
}

// ToResponse flattens the entry into its API shape
func (e *MessageEntry) ToResponse() *MessageResponse {
	if e.Pending != nil {
		return &MessageResponse{
			ID:             e.Pending.TempID,
			ConversationID: e.Pending.ConversationID,
			SenderID:       e.Pending.SenderID,
			Body:           e.Pending.Body,
			Kind:           MessageKindText,
			State:          MessageStatePending,
			CreatedAt:      e.Pending.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return e.Confirmed.ToResponse()
}

// SendMessageRequest is the request body for POST /conversations/:id/messages
type SendMessageRequest struct {
	Text         string `json:"text" binding:"required"`
	ClientTempID string `json:"client_temp_id,omitempty"`
}

// MessageResponse is a message in API responses, tagged with its
// projection state
type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Body           string `json:"body"`
	Kind           string `json:"kind"`
	State          string `json:"state"`
	CreatedAt      string `json:"created_at"`
	ReadAt         string `json:"read_at,omitempty"`
	IsRead         bool   `json:"is_read"`
}

// ToResponse converts a durable Message to its API shape
func (m *Message) ToResponse() *MessageResponse {
	resp := &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		Kind:           m.Kind,
		State:          MessageStateConfirmed,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
		IsRead:         m.ReadAt != nil,
	}
	if m.ReadAt != nil {
		resp.ReadAt = m.ReadAt.UTC().Format(time.RFC3339)
	}
	return resp
}
