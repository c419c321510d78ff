package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"github.com/nestmatch/nestmatch-backend/internal/pipeline"
	"github.com/nestmatch/nestmatch-backend/internal/repository"
	"github.com/nestmatch/nestmatch-backend/pkg/cache"
	"github.com/nestmatch/nestmatch-backend/pkg/logger"
)

// MessageService is the message send pipeline and read-receipt marker
type MessageService interface {
	// Send appends a message: pending entry first, then the durable
	// write, then in-place substitution. On failure the pending entry is
	// removed and the caller's text comes back in the error for retry.
	Send(conversationID, senderID string, req *domain.SendMessageRequest) (*domain.MessageResponse, error)
	ListMessages(conversationID, userID string, page, limit int) ([]*domain.MessageResponse, *common.Meta, error)
	// MarkRead batch-marks incoming messages read while the conversation
	// view is active. Idempotent: with no unread rows it writes nothing.
	MarkRead(conversationID, userID string) (int64, error)
}

type messageService struct {
	repo     repository.MessageRepository
	convRepo repository.ConversationRepository
	quota    QuotaService
	outbox   *pipeline.Outbox
	cache    cache.Service
	notifier ChangeNotifier
	now      func() time.Time
}

// NewMessageService creates a new MessageService
func NewMessageService(
	repo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	quota QuotaService,
	outbox *pipeline.Outbox,
	cacheSvc cache.Service,
	notifier ChangeNotifier,
) MessageService {
	return &messageService{
		repo:     repo,
		convRepo: convRepo,
		quota:    quota,
		outbox:   outbox,
		cache:    cacheSvc,
		notifier: notifier,
		now:      time.Now,
	}
}

// Send runs the pipeline for one message. State machine per message:
// pending -> confirmed on success, pending -> removed on failure.
// Nothing else; a confirmed message is immutable.
func (s *messageService) Send(conversationID, senderID string, req *domain.SendMessageRequest) (*domain.MessageResponse, error) {
	conv, err := s.convRepo.FindByID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, common.ErrConversationNotFound
	}
	if !conv.HasParticipant(senderID) {
		return nil, common.ErrForbidden
	}

	// Admission before any write: a send over the cap must not reach
	// the message table
	if err := s.quota.CheckMessageAllowance(senderID); err != nil {
		return nil, err
	}

	tempID := req.ClientTempID
	if !pipeline.IsTempID(tempID) {
		tempID = pipeline.TempIDPrefix + uuid.New().String()
	}

	now := s.now()
	pendingMsg := &domain.PendingMessage{
		TempID:         tempID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           req.Text,
		CreatedAt:      now,
	}
	s.outbox.Append(pendingMsg)

	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           req.Text,
		Kind:           domain.MessageKindText,
		ClientTempID:   tempID,
		CreatedAt:      now,
	}
	if err := s.repo.Create(msg); err != nil {
		// Failed send leaves no residue: the projection returns to its
		// exact pre-send state and the caller retries manually
		s.outbox.Remove(conversationID, tempID)
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	// Exact substitution: the pending entry leaves the projection in the
	// same step the durable row enters it
	s.outbox.Confirm(conversationID, tempID)

	// Post-write bookkeeping is best-effort: the delivered message takes
	// priority over metering and timestamp accuracy
	if err := s.convRepo.TouchLastActivity(conversationID, now); err != nil {
		logger.WithConversationID(conversationID).Warn().Err(err).Msg("failed to bump last activity")
	}
	if err := s.quota.RecordMessageSent(senderID); err != nil {
		logger.WithUserID(senderID).Warn().Err(err).Msg("failed to meter sent message")
	}

	s.invalidateAfterWrite(conv)

	resp := msg.ToResponse()
	s.notifier.MessageNew(conv.OtherParticipant(senderID), resp)
	s.notifier.ConversationChanged(conv.SeekerID, conv.ListerID)

	return resp, nil
}

// ListMessages returns one ordered page, pending entries included and
// tagged, for the conversation view
func (s *messageService) ListMessages(conversationID, userID string, page, limit int) ([]*domain.MessageResponse, *common.Meta, error) {
	conv, err := s.convRepo.FindByID(conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, nil, common.ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, nil, common.ErrForbidden
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	messages, total, err := s.fetchDurablePage(conversationID, page, limit)
	if err != nil {
		return nil, nil, err
	}

	entries := s.outbox.Merge(conversationID, messages)
	responses := make([]*domain.MessageResponse, len(entries))
	for i, e := range entries {
		responses[i] = e.ToResponse()
	}

	meta := &common.Meta{
		Page:  page,
		Limit: limit,
		Total: total,
	}
	return responses, meta, nil
}

// MarkRead applies read receipts in a single batch while the view is
// active. The unread-count guard makes repeat calls no-ops.
func (s *messageService) MarkRead(conversationID, userID string) (int64, error) {
	conv, err := s.convRepo.FindByID(conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return 0, common.ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return 0, common.ErrForbidden
	}

	unread, err := s.repo.CountUnread(conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	if unread == 0 {
		return 0, nil
	}

	updated, err := s.repo.MarkConversationRead(conversationID, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark read: %w", err)
	}

	s.invalidateAfterWrite(conv)
	s.notifier.ReadApplied(conversationID, conv.OtherParticipant(userID))

	return updated, nil
}

// fetchDurablePage reads a message page through the projection cache
func (s *messageService) fetchDurablePage(conversationID string, page, limit int) ([]*domain.Message, int64, error) {
	ctx := context.Background()

	type cachedPage struct {
		Messages []*domain.Message `json:"messages"`
		Total    int64             `json:"total"`
	}

	if data, err := s.cache.GetMessages(ctx, conversationID, page, limit); err == nil {
		var cached cachedPage
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached.Messages, cached.Total, nil
		}
	}

	messages, total, err := s.repo.ListByConversation(conversationID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	if err := s.cache.SetMessages(ctx, conversationID, page, limit, cachedPage{Messages: messages, Total: total}); err != nil {
		logger.WithConversationID(conversationID).Warn().Err(err).Msg("failed to cache message page")
	}
	return messages, total, nil
}

// invalidateAfterWrite drops the derived projections a write made stale
func (s *messageService) invalidateAfterWrite(conv *domain.Conversation) {
	ctx := context.Background()
	if err := s.cache.InvalidateMessages(ctx, conv.ID); err != nil {
		logger.WithConversationID(conv.ID).Warn().Err(err).Msg("failed to invalidate message cache")
	}
	for _, userID := range []string{conv.SeekerID, conv.ListerID} {
		if err := s.cache.InvalidateConversations(ctx, userID); err != nil {
			logger.WithUserID(userID).Warn().Err(err).Msg("failed to invalidate conversation cache")
		}
	}
}
