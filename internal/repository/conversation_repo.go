package repository

import (
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"gorm.io/gorm"
)

const mysqlDuplicateEntry = 1062

// ConversationRepository conversation data access interface
type ConversationRepository interface {
	FindByID(id string) (*domain.Conversation, error)
	// FindByPair looks up the single conversation for a canonical
	// (seeker, lister) pair. Returns (nil, nil) when none exists.
	FindByPair(seekerID, listerID string) (*domain.Conversation, error)
	Create(conv *domain.Conversation) error
	ListByUser(userID string) ([]*domain.Conversation, error)
	UpdateStatus(id, status string) error
	TouchLastActivity(id string, t time.Time) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// FindByID finds a conversation by id
func (r *conversationRepository) FindByID(id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// FindByPair finds the conversation for a canonical participant pair,
// irrespective of listing
func (r *conversationRepository) FindByPair(seekerID, listerID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.Where("seeker_id = ? AND lister_id = ?", seekerID, listerID).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// Create inserts a conversation row. The unique index on the pair makes
// this the storage-level idempotency guard; callers must treat a
// duplicate-entry error (IsDuplicatePair) as "someone else just created
// it" and re-run the lookup.
func (r *conversationRepository) Create(conv *domain.Conversation) error {
	return r.db.Create(conv).Error
}

// IsDuplicatePair reports whether err is a unique-constraint violation
// on the conversation pair index
func IsDuplicatePair(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// ListByUser returns all conversations the user participates in,
// most recent activity first
func (r *conversationRepository) ListByUser(userID string) ([]*domain.Conversation, error) {
	var convs []*domain.Conversation
	err := r.db.Where("seeker_id = ? OR lister_id = ?", userID, userID).
		Order("last_activity_at DESC").
		Find(&convs).Error
	return convs, err
}

// UpdateStatus sets the conversation status (active/archived)
func (r *conversationRepository) UpdateStatus(id, status string) error {
	result := r.db.Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchLastActivity bumps the last-activity timestamp
func (r *conversationRepository) TouchLastActivity(id string, t time.Time) error {
	return r.db.Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("last_activity_at", t).Error
}
