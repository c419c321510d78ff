package repository

import (
	"time"

	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"gorm.io/gorm"
)

// MessageRepository message data access interface
type MessageRepository interface {
	Create(msg *domain.Message) error
	ListByConversation(conversationID string, page, limit int) ([]*domain.Message, int64, error)
	LastMessage(conversationID string) (*domain.Message, error)
	CountUnread(conversationID, readerID string) (int64, error)
	// MarkConversationRead marks every message not authored by readerID
	// as read in one batch. Returns the number of rows updated.
	MarkConversationRead(conversationID, readerID string, t time.Time) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create appends a message row
func (r *messageRepository) Create(msg *domain.Message) error {
	return r.db.Create(msg).Error
}

// ListByConversation returns one page of messages in creation order.
// The id tiebreak keeps ordering stable when timestamps collide.
func (r *messageRepository) ListByConversation(conversationID string, page, limit int) ([]*domain.Message, int64, error) {
	var messages []*domain.Message
	var total int64

	r.db.Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total)

	offset := (page - 1) * limit
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Offset(offset).Limit(limit).
		Find(&messages).Error
	return messages, total, err
}

// LastMessage returns the most recent message, or nil for an empty
// conversation (a created thread may validly have zero messages)
func (r *messageRepository) LastMessage(conversationID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// CountUnread counts messages addressed to readerID that are not yet read
func (r *messageRepository) CountUnread(conversationID, readerID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversationID, readerID).
		Count(&count).Error
	return count, err
}

// MarkConversationRead batch-updates unread incoming messages
func (r *messageRepository) MarkConversationRead(conversationID, readerID string, t time.Time) (int64, error) {
	result := r.db.Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversationID, readerID).
		Update("read_at", t)
	return result.RowsAffected, result.Error
}
