package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"github.com/nestmatch/nestmatch-backend/internal/repository"
	"github.com/nestmatch/nestmatch-backend/pkg/cache"
	"github.com/nestmatch/nestmatch-backend/pkg/logger"
)

// MemberService mirrors member profiles pushed from the account system.
// Profiles are not owned here; they exist so role canonicalization and
// the conversation-list display payload work without a remote call.
type MemberService interface {
	// Sync upserts a profile. The first sync of a new member also seeds
	// their free start credits.
	Sync(req *domain.SyncMemberRequest) (*domain.Member, error)
	Get(userID string) (*domain.Member, error)
}

type memberService struct {
	repo  repository.MemberRepository
	quota QuotaService
	cache cache.Service
}

// NewMemberService creates a new MemberService
func NewMemberService(repo repository.MemberRepository, quota QuotaService, cacheSvc cache.Service) MemberService {
	return &memberService{repo: repo, quota: quota, cache: cacheSvc}
}

// Sync upserts the pushed profile
func (s *memberService) Sync(req *domain.SyncMemberRequest) (*domain.Member, error) {
	existing, err := s.repo.FindByID(req.ID)
	if err != nil && !errors.Is(err, common.ErrMemberNotFound) {
		return nil, fmt.Errorf("failed to load member: %w", err)
	}

	member := &domain.Member{
		ID:        req.ID,
		Nickname:  req.Nickname,
		Role:      req.Role,
		AvatarURL: req.AvatarURL,
	}

	if existing == nil {
		if err := s.repo.Create(member); err != nil {
			return nil, fmt.Errorf("failed to create member: %w", err)
		}
		// Seeding is best-effort: a missed grant is corrected by a
		// support-side grant through the intake endpoint
		if err := s.quota.GrantInitialCredits(member.ID); err != nil {
			logger.WithUserID(member.ID).Warn().Err(err).Msg("failed to seed initial credits")
		}
	} else {
		if err := s.repo.Update(member); err != nil {
			return nil, fmt.Errorf("failed to update member: %w", err)
		}
	}

	s.invalidateMember(member.ID)
	return member, nil
}

// Get loads a profile through the cache
func (s *memberService) Get(userID string) (*domain.Member, error) {
	ctx := context.Background()

	if data, err := s.cache.GetMember(ctx, userID); err == nil {
		var cached domain.Member
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	member, err := s.repo.FindByID(userID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetMember(ctx, userID, member); err != nil {
		logger.WithUserID(userID).Warn().Err(err).Msg("failed to cache member")
	}
	return member, nil
}

func (s *memberService) invalidateMember(userID string) {
	if err := s.cache.InvalidateMember(context.Background(), userID); err != nil {
		logger.WithUserID(userID).Warn().Err(err).Msg("failed to invalidate member cache")
	}
}
