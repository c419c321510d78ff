package repository

import (
	"errors"
	"time"

	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"gorm.io/gorm"
)

// QuotaRepository ledger data access interface. The conditional-update
// methods are the single-writer guard the ledger requires: concurrent
// consumption for the same user serializes on atomic
// decrement-if-positive at the storage layer, never on a read-then-write
// from the application.
type QuotaRepository interface {
	CreateCredit(credit *domain.StartCredit) error
	// FindConsumableCredits returns non-expired entries with remaining > 0,
	// oldest expiry first (entries without expiry last)
	FindConsumableCredits(userID string, now time.Time) ([]*domain.StartCredit, error)
	SumRemaining(userID string, now time.Time) (int64, error)
	HasActiveSubscription(userID string, now time.Time) (bool, error)
	// ConsumeOne atomically decrements a credit entry, refusing to go
	// below zero. Returns false when another writer emptied it first.
	ConsumeOne(creditID string) (bool, error)

	FindAllowance(userID string) (*domain.MessageAllowance, error)
	CreateAllowance(allowance *domain.MessageAllowance) error
	// ResetPeriod zeroes the used counter when the period boundary has
	// passed. Guarded by the old reset date so concurrent resets apply once.
	ResetPeriod(userID string, oldReset, newReset time.Time) error
	// IncrementUsed atomically bumps the used counter while it is under
	// the cap. Returns false when the cap is already reached.
	IncrementUsed(userID string) (bool, error)
	// IncrementUsedUnbounded bumps the counter without a cap guard, for
	// unlimited plans where the counter is metering only
	IncrementUsedUnbounded(userID string) error
	IncreaseCap(userID string, delta int) error
}

type quotaRepository struct {
	db *gorm.DB
}

// NewQuotaRepository creates a new QuotaRepository
func NewQuotaRepository(db *gorm.DB) QuotaRepository {
	return &quotaRepository{db: db}
}

// CreateCredit inserts a ledger entry
func (r *quotaRepository) CreateCredit(credit *domain.StartCredit) error {
	return r.db.Create(credit).Error
}

// FindConsumableCredits returns candidate entries for consumption.
// Subscription entries are excluded: they are not decremented.
func (r *quotaRepository) FindConsumableCredits(userID string, now time.Time) ([]*domain.StartCredit, error) {
	var credits []*domain.StartCredit
	err := r.db.Where("user_id = ? AND kind <> ? AND remaining > 0 AND (expires_at IS NULL OR expires_at > ?)",
		userID, domain.CreditSubscription, now).
		Order("expires_at IS NULL, expires_at ASC").
		Find(&credits).Error
	return credits, err
}

// SumRemaining totals remaining credits across non-expired entries
func (r *quotaRepository) SumRemaining(userID string, now time.Time) (int64, error) {
	var sum int64
	err := r.db.Model(&domain.StartCredit{}).
		Where("user_id = ? AND kind <> ? AND (expires_at IS NULL OR expires_at > ?)",
			userID, domain.CreditSubscription, now).
		Select("COALESCE(SUM(remaining), 0)").
		Scan(&sum).Error
	return sum, err
}

// HasActiveSubscription reports whether a non-expired subscription entry exists
func (r *quotaRepository) HasActiveSubscription(userID string, now time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&domain.StartCredit{}).
		Where("user_id = ? AND kind = ? AND (expires_at IS NULL OR expires_at > ?)",
			userID, domain.CreditSubscription, now).
		Count(&count).Error
	return count > 0, err
}

// ConsumeOne performs the atomic decrement-if-positive
func (r *quotaRepository) ConsumeOne(creditID string) (bool, error) {
	result := r.db.Model(&domain.StartCredit{}).
		Where("id = ? AND remaining > 0", creditID).
		Update("remaining", gorm.Expr("remaining - 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindAllowance returns the allowance row, or (nil, nil) when the user
// has none yet
func (r *quotaRepository) FindAllowance(userID string) (*domain.MessageAllowance, error) {
	var allowance domain.MessageAllowance
	err := r.db.Where("user_id = ?", userID).First(&allowance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &allowance, nil
}

// CreateAllowance inserts the per-user allowance row
func (r *quotaRepository) CreateAllowance(allowance *domain.MessageAllowance) error {
	return r.db.Create(allowance).Error
}

// ResetPeriod zeroes used at the period boundary
func (r *quotaRepository) ResetPeriod(userID string, oldReset, newReset time.Time) error {
	return r.db.Model(&domain.MessageAllowance{}).
		Where("user_id = ? AND period_reset_at = ?", userID, oldReset).
		Updates(map[string]interface{}{
			"used":            0,
			"period_reset_at": newReset,
		}).Error
}

// IncrementUsed bumps the counter only while under the cap, so a send
// that would exceed the cap never reaches the message write
func (r *quotaRepository) IncrementUsed(userID string) (bool, error) {
	result := r.db.Model(&domain.MessageAllowance{}).
		Where("user_id = ? AND used < cap", userID).
		Update("used", gorm.Expr("used + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementUsedUnbounded bumps the counter with no cap guard
func (r *quotaRepository) IncrementUsedUnbounded(userID string) error {
	return r.db.Model(&domain.MessageAllowance{}).
		Where("user_id = ?", userID).
		Update("used", gorm.Expr("used + 1")).Error
}

// IncreaseCap raises the per-period cap (purchase intake)
func (r *quotaRepository) IncreaseCap(userID string, delta int) error {
	return r.db.Model(&domain.MessageAllowance{}).
		Where("user_id = ?", userID).
		Update("cap", gorm.Expr("cap + ?", delta)).Error
}
