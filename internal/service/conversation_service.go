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

// ConversationService is the conversation repository of the messaging
// core: idempotent get-or-create with quota admission, plus the list
// and status operations the UI consumes.
type ConversationService interface {
	// StartConversation finds or creates the single thread between the
	// caller and the other party. Repeated calls reuse the thread
	// regardless of listing; a credit is consumed only when a new
	// conversation row is actually created.
	StartConversation(userID string, req *domain.StartConversationRequest) (*domain.ConversationResponse, error)
	ListConversations(userID string) ([]*domain.ConversationResponse, error)
	GetConversation(conversationID, userID string) (*domain.Conversation, error)
	UpdateStatus(conversationID, userID, status string) error
}

type conversationService struct {
	repo       repository.ConversationRepository
	memberRepo repository.MemberRepository
	msgRepo    repository.MessageRepository
	quota      QuotaService
	messages   MessageService
	cache      cache.Service
	notifier   ChangeNotifier
	now        func() time.Time
}

// NewConversationService creates a new ConversationService
func NewConversationService(
	repo repository.ConversationRepository,
	memberRepo repository.MemberRepository,
	msgRepo repository.MessageRepository,
	quota QuotaService,
	messages MessageService,
	cacheSvc cache.Service,
	notifier ChangeNotifier,
) ConversationService {
	return &conversationService{
		repo:       repo,
		memberRepo: memberRepo,
		msgRepo:    msgRepo,
		quota:      quota,
		messages:   messages,
		cache:      cacheSvc,
		notifier:   notifier,
		now:        time.Now,
	}
}

// StartConversation implements get-or-create. Order matters: lookup
// first (idempotency), quota only on the create path, role-canonical
// pair on insert, duplicate-key recovery for the double-tap race, and
// the opening message last. A conversation shell without a first
// message is valid, so a failed send never rolls the row back.
func (s *conversationService) StartConversation(userID string, req *domain.StartConversationRequest) (*domain.ConversationResponse, error) {
	if userID == req.OtherUserID {
		return nil, common.ErrSelfConversation
	}

	// Resolve both profiles up front: a missing profile is fatal to the
	// attempt and nothing may be created
	caller, err := s.memberRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	other, err := s.memberRepo.FindByID(req.OtherUserID)
	if err != nil {
		return nil, err
	}

	seekerID, listerID, err := canonicalPair(caller, other)
	if err != nil {
		return nil, err
	}

	// Lookup first, irrespective of listing: messaging the same owner
	// from two listings reuses one thread
	existing, err := s.repo.FindByPair(seekerID, listerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if existing != nil {
		return s.respond(existing, userID, false), nil
	}

	// Admission: no credit, no conversation
	if err := s.quota.ConsumeStartCredit(userID); err != nil {
		return nil, err
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:             uuid.New().String(),
		SeekerID:       seekerID,
		ListerID:       listerID,
		ListingID:      req.ListingID,
		Status:         domain.ConversationActive,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	created := true
	if err := s.repo.Create(conv); err != nil {
		if !repository.IsDuplicatePair(err) {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		// Someone else just created it; resolve to the winner silently
		winner, lookupErr := s.repo.FindByPair(seekerID, listerID)
		if lookupErr != nil || winner == nil {
			return nil, fmt.Errorf("failed to resolve conversation race: %w", err)
		}
		conv = winner
		created = false
	}

	if created {
		// Opening message is at-least-once: the conversation stands even
		// if this write fails, and the caller retries the message alone
		if _, err := s.messages.Send(conv.ID, userID, &domain.SendMessageRequest{Text: req.OpeningMessage}); err != nil {
			logger.WithConversationID(conv.ID).Warn().Err(err).Msg("opening message failed, conversation kept")
		}
		s.invalidateLists(conv)
		s.notifier.ConversationChanged(conv.SeekerID, conv.ListerID)
	}

	return s.respond(conv, userID, created), nil
}

// canonicalPair orders two members into the role-normalized
// (seeker, lister) pair that deduplicates threads regardless of who
// initiated
func canonicalPair(a, b *domain.Member) (seekerID, listerID string, err error) {
	switch {
	case a.Role == domain.RoleSeeker && b.Role == domain.RoleLister:
		return a.ID, b.ID, nil
	case a.Role == domain.RoleLister && b.Role == domain.RoleSeeker:
		return b.ID, a.ID, nil
	default:
		return "", "", common.ErrSameRole
	}
}

// ListConversations returns the ordered list with the display payload
// the conversation screen needs
func (s *conversationService) ListConversations(userID string) ([]*domain.ConversationResponse, error) {
	ctx := context.Background()

	if data, err := s.cache.GetConversations(ctx, userID); err == nil {
		var cached []*domain.ConversationResponse
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	convs, err := s.repo.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	otherIDs := make([]string, 0, len(convs))
	for _, conv := range convs {
		otherIDs = append(otherIDs, conv.OtherParticipant(userID))
	}
	members, err := s.memberRepo.FindByIDs(otherIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	responses := make([]*domain.ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		resp := conv.ToResponse()
		if member, ok := members[conv.OtherParticipant(userID)]; ok {
			resp.Other = member.ToSummary()
		}
		if last, err := s.msgRepo.LastMessage(conv.ID); err == nil && last != nil {
			resp.LastMessage = last.ToResponse()
		}
		if unread, err := s.msgRepo.CountUnread(conv.ID, userID); err == nil {
			resp.UnreadCount = unread
		}
		responses = append(responses, resp)
	}

	if err := s.cache.SetConversations(ctx, userID, responses); err != nil {
		logger.WithUserID(userID).Warn().Err(err).Msg("failed to cache conversation list")
	}
	return responses, nil
}

// GetConversation loads a conversation the user participates in
func (s *conversationService) GetConversation(conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.repo.FindByID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, common.ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, common.ErrForbidden
	}
	return conv, nil
}

// UpdateStatus archives or reactivates a conversation. Users never hard
// delete threads.
func (s *conversationService) UpdateStatus(conversationID, userID, status string) error {
	conv, err := s.GetConversation(conversationID, userID)
	if err != nil {
		return err
	}

	if conv.Status == status {
		return nil
	}
	if err := s.repo.UpdateStatus(conversationID, status); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	s.invalidateLists(conv)
	s.notifier.ConversationChanged(conv.SeekerID, conv.ListerID)
	return nil
}

// respond builds the API payload for a started/resumed conversation
func (s *conversationService) respond(conv *domain.Conversation, userID string, created bool) *domain.ConversationResponse {
	resp := conv.ToResponse()
	resp.Created = created
	if member, err := s.memberRepo.FindByID(conv.OtherParticipant(userID)); err == nil {
		resp.Other = member.ToSummary()
	}
	return resp
}

func (s *conversationService) invalidateLists(conv *domain.Conversation) {
	ctx := context.Background()
	for _, userID := range []string{conv.SeekerID, conv.ListerID} {
		if err := s.cache.InvalidateConversations(ctx, userID); err != nil {
			logger.WithUserID(userID).Warn().Err(err).Msg("failed to invalidate conversation cache")
		}
	}
}
