package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"github.com/nestmatch/nestmatch-backend/internal/repository"
	"github.com/nestmatch/nestmatch-backend/pkg/cache"
	"github.com/nestmatch/nestmatch-backend/pkg/logger"
)

// QuotaService is the admission-control ledger for conversation starts
// and message sends. Depletion and cap-exceeded are expected outcomes,
// surfaced as the typed errors in internal/common so callers can show
// upgrade prompts instead of generic failures.
type QuotaService interface {
	AvailableStartCredits(userID string) (int64, error)
	// ConsumeStartCredit spends one credit, oldest expiry first. Returns
	// common.ErrQuotaExceeded when no consumable credit remains. An
	// active subscription passes without decrementing anything.
	ConsumeStartCredit(userID string) error
	// CheckMessageAllowance rejects a send that would exceed the
	// per-period cap before any write happens
	CheckMessageAllowance(userID string) error
	// RecordMessageSent bumps the per-period counter after a successful
	// durable write
	RecordMessageSent(userID string) error
	Status(userID string) (*domain.QuotaStatus, error)
	// GrantCredit records a completed purchase as ledger rows. Payment
	// processing happens elsewhere.
	GrantCredit(req *domain.GrantCreditRequest) (*domain.StartCredit, error)
	// ExtendAllowance raises the per-period message cap after a
	// completed purchase. A no-op on unlimited plans.
	ExtendAllowance(userID string, delta int) (*domain.MessageAllowance, error)
	// GrantInitialCredits seeds the free allotment for a new member
	GrantInitialCredits(userID string) error
}

type quotaService struct {
	repo       repository.QuotaRepository
	cache      cache.Service
	defaultCap int
	freeGrant  int
	now        func() time.Time
}

// NewQuotaService creates a new QuotaService
func NewQuotaService(repo repository.QuotaRepository, cacheSvc cache.Service, defaultCap, freeGrant int) QuotaService {
	return &quotaService{
		repo:       repo,
		cache:      cacheSvc,
		defaultCap: defaultCap,
		freeGrant:  freeGrant,
		now:        time.Now,
	}
}

// AvailableStartCredits sums remaining credits across non-expired entries
func (s *quotaService) AvailableStartCredits(userID string) (int64, error) {
	return s.repo.SumRemaining(userID, s.now())
}

// ConsumeStartCredit spends exactly one credit per successfully created
// conversation, never per message
func (s *quotaService) ConsumeStartCredit(userID string) error {
	now := s.now()

	unlimited, err := s.repo.HasActiveSubscription(userID, now)
	if err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	if unlimited {
		return nil
	}

	credits, err := s.repo.FindConsumableCredits(userID, now)
	if err != nil {
		return fmt.Errorf("failed to load credits: %w", err)
	}

	// Oldest expiry first to minimize waste. ConsumeOne is an atomic
	// decrement-if-positive, so a concurrent spender who empties an
	// entry first just moves us to the next candidate.
	for _, credit := range credits {
		ok, err := s.repo.ConsumeOne(credit.ID)
		if err != nil {
			return fmt.Errorf("failed to consume credit: %w", err)
		}
		if ok {
			s.invalidateQuota(userID)
			return nil
		}
	}

	return common.ErrQuotaExceeded
}

// CheckMessageAllowance enforces the per-period cap before any write
func (s *quotaService) CheckMessageAllowance(userID string) error {
	allowance, err := s.ensureAllowance(userID)
	if err != nil {
		return err
	}
	if allowance.Cap <= 0 {
		return nil // unlimited messages
	}
	if allowance.Used+1 > allowance.Cap {
		return common.ErrMonthlyCapExceeded
	}
	return nil
}

// RecordMessageSent meters a delivered message. Message delivery takes
// priority over metering accuracy: callers treat a failure here as
// non-fatal, and drift is corrected at the next period reset.
func (s *quotaService) RecordMessageSent(userID string) error {
	allowance, err := s.ensureAllowance(userID)
	if err != nil {
		return err
	}

	if allowance.Cap <= 0 {
		if err := s.repo.IncrementUsedUnbounded(userID); err != nil {
			return fmt.Errorf("failed to meter message: %w", err)
		}
		s.invalidateQuota(userID)
		return nil
	}

	ok, err := s.repo.IncrementUsed(userID)
	if err != nil {
		return fmt.Errorf("failed to meter message: %w", err)
	}
	if !ok {
		return common.ErrMonthlyCapExceeded
	}
	s.invalidateQuota(userID)
	return nil
}

// Status returns the quota payload the UI renders
func (s *quotaService) Status(userID string) (*domain.QuotaStatus, error) {
	ctx := context.Background()

	if data, err := s.cache.GetQuota(ctx, userID); err == nil {
		var cached domain.QuotaStatus
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	now := s.now()
	credits, err := s.repo.SumRemaining(userID, now)
	if err != nil {
		return nil, err
	}
	subscription, err := s.repo.HasActiveSubscription(userID, now)
	if err != nil {
		return nil, err
	}
	allowance, err := s.ensureAllowance(userID)
	if err != nil {
		return nil, err
	}

	status := &domain.QuotaStatus{
		StartCredits:    credits,
		UnlimitedStarts: subscription,
		MessageCap:      allowance.Cap,
		MessagesUsed:    allowance.Used,
	}
	if allowance.Cap <= 0 {
		status.UnlimitedMessages = true
	} else {
		status.MessagesRemaining = allowance.Cap - allowance.Used
		if status.MessagesRemaining < 0 {
			status.MessagesRemaining = 0
		}
	}

	if err := s.cache.SetQuota(ctx, userID, status); err != nil {
		logger.GetLogger().Warn().Err(err).Msg("failed to cache quota status")
	}
	return status, nil
}

// GrantCredit records a purchase as a new ledger entry
func (s *quotaService) GrantCredit(req *domain.GrantCreditRequest) (*domain.StartCredit, error) {
	if req.Kind == domain.GrantAllowanceExtension {
		// Extensions raise the cap, they never become consumable rows
		return nil, common.ErrInvalidInput
	}

	credit := &domain.StartCredit{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Kind:      req.Kind,
		Total:     req.Amount,
		Remaining: req.Amount,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.repo.CreateCredit(credit); err != nil {
		return nil, fmt.Errorf("failed to create credit: %w", err)
	}
	s.invalidateQuota(req.UserID)
	return credit, nil
}

// ExtendAllowance raises the cap in place. Used is left untouched, so
// the extension is immediately spendable headroom.
func (s *quotaService) ExtendAllowance(userID string, delta int) (*domain.MessageAllowance, error) {
	allowance, err := s.ensureAllowance(userID)
	if err != nil {
		return nil, err
	}
	if allowance.Cap <= 0 {
		// Already unlimited; raising the cap would make it finite
		return allowance, nil
	}

	if err := s.repo.IncreaseCap(userID, delta); err != nil {
		return nil, fmt.Errorf("failed to extend allowance: %w", err)
	}
	allowance.Cap += delta
	s.invalidateQuota(userID)
	return allowance, nil
}

// GrantInitialCredits seeds the free allotment; called once per new member
func (s *quotaService) GrantInitialCredits(userID string) error {
	if s.freeGrant <= 0 {
		return nil
	}
	_, err := s.GrantCredit(&domain.GrantCreditRequest{
		UserID: userID,
		Kind:   domain.CreditFreeGrant,
		Amount: s.freeGrant,
	})
	return err
}

// ensureAllowance lazily creates the allowance row and applies the
// period reset when the boundary has passed
func (s *quotaService) ensureAllowance(userID string) (*domain.MessageAllowance, error) {
	now := s.now()

	allowance, err := s.repo.FindAllowance(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allowance: %w", err)
	}

	if allowance == nil {
		allowance = &domain.MessageAllowance{
			UserID:        userID,
			Cap:           s.defaultCap,
			Used:          0,
			PeriodResetAt: nextPeriodReset(now),
		}
		if err := s.repo.CreateAllowance(allowance); err != nil {
			// Lost a concurrent-create race; the other writer's row wins
			existing, findErr := s.repo.FindAllowance(userID)
			if findErr != nil || existing == nil {
				return nil, fmt.Errorf("failed to create allowance: %w", err)
			}
			allowance = existing
		}
	}

	if !now.Before(allowance.PeriodResetAt) {
		// Guarded by the old reset date, so concurrent resets apply once
		if err := s.repo.ResetPeriod(userID, allowance.PeriodResetAt, nextPeriodReset(now)); err != nil {
			return nil, fmt.Errorf("failed to reset period: %w", err)
		}
		allowance, err = s.repo.FindAllowance(userID)
		if err != nil || allowance == nil {
			return nil, fmt.Errorf("failed to reload allowance: %w", err)
		}
	}

	return allowance, nil
}

// nextPeriodReset returns the first instant of the next calendar month (UTC)
func nextPeriodReset(now time.Time) time.Time {
	t := now.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

func (s *quotaService) invalidateQuota(userID string) {
	if err := s.cache.InvalidateQuota(context.Background(), userID); err != nil {
		logger.GetLogger().Warn().Err(err).Str("user_id", userID).Msg("failed to invalidate quota cache")
	}
}
