package service

import (
	"errors"
	"testing"

	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"github.com/nestmatch/nestmatch-backend/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

// --- Mock MemberRepository ---

type mockMemberRepo struct {
	mock.Mock
}

func (m *mockMemberRepo) FindByID(id string) (*domain.Member, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}

func (m *mockMemberRepo) FindByIDs(ids []string) (map[string]*domain.Member, error) {
	args := m.Called(ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*domain.Member), args.Error(1)
}

func (m *mockMemberRepo) Create(member *domain.Member) error {
	return m.Called(member).Error(0)
}

func (m *mockMemberRepo) Update(member *domain.Member) error {
	return m.Called(member).Error(0)
}

// --- Mock MessageService ---

type mockMessageService struct {
	mock.Mock
}

func (m *mockMessageService) Send(conversationID, senderID string, req *domain.SendMessageRequest) (*domain.MessageResponse, error) {
	args := m.Called(conversationID, senderID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageResponse), args.Error(1)
}

func (m *mockMessageService) ListMessages(conversationID, userID string, page, limit int) ([]*domain.MessageResponse, *common.Meta, error) {
	args := m.Called(conversationID, userID, page, limit)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]*domain.MessageResponse), args.Get(1).(*common.Meta), args.Error(2)
}

func (m *mockMessageService) MarkRead(conversationID, userID string) (int64, error) {
	args := m.Called(conversationID, userID)
	return args.Get(0).(int64), args.Error(1)
}

type conversationServiceFixture struct {
	repo       *mockConversationRepo
	memberRepo *mockMemberRepo
	msgRepo    *mockMessageRepo
	quota      *mockQuotaService
	messages   *mockMessageService
	notifier   *recordingNotifier
	svc        ConversationService
}

func newConversationServiceFixture() *conversationServiceFixture {
	f := &conversationServiceFixture{
		repo:       new(mockConversationRepo),
		memberRepo: new(mockMemberRepo),
		msgRepo:    new(mockMessageRepo),
		quota:      new(mockQuotaService),
		messages:   new(mockMessageService),
		notifier:   &recordingNotifier{},
	}
	f.svc = NewConversationService(f.repo, f.memberRepo, f.msgRepo, f.quota, f.messages, cache.NewService(nil), f.notifier)
	return f
}

func seekerMember() *domain.Member {
	return &domain.Member{ID: "seeker1", Nickname: "Room Hunter", Role: domain.RoleSeeker}
}

func listerMember() *domain.Member {
	return &domain.Member{ID: "lister1", Nickname: "Landlady", Role: domain.RoleLister}
}

func TestStartConversation_CreatesAndConsumesCredit(t *testing.T) {
	f := newConversationServiceFixture()

	f.memberRepo.On("FindByID", "seeker1").Return(seekerMember(), nil)
	f.memberRepo.On("FindByID", "lister1").Return(listerMember(), nil)
	f.repo.On("FindByPair", "seeker1", "lister1").Return(nil, nil)
	f.quota.On("ConsumeStartCredit", "seeker1").Return(nil)
	f.repo.On("Create", mock.MatchedBy(func(c *domain.Conversation) bool {
		return c.SeekerID == "seeker1" && c.ListerID == "lister1" && c.Status == domain.ConversationActive
	})).Return(nil)
	f.messages.On("Send", mock.Anything, "seeker1", mock.MatchedBy(func(r *domain.SendMessageRequest) bool {
		return r.Text == "Hi, is the room still available?"
	})).Return(&domain.MessageResponse{Body: "Hi, is the room still available?"}, nil)

	resp, err := f.svc.StartConversation("seeker1", &domain.StartConversationRequest{
		OtherUserID:    "lister1",
		OpeningMessage: "Hi, is the room still available?",
	})

	assert.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, "lister1", resp.Other.ID)
	assert.Equal(t, [][]string{{"seeker1", "lister1"}}, f.notifier.changed)
	f.quota.AssertExpectations(t)
	f.repo.AssertExpectations(t)
}

func TestStartConversation_ExistingThreadReusedWithoutCredit(t *testing.T) {
	f := newConversationServiceFixture()

	existing := testConversation()
	f.memberRepo.On("FindByID", "seeker1").Return(seekerMember(), nil)
	f.memberRepo.On("FindByID", "lister1").Return(listerMember(), nil)
	f.repo.On("FindByPair", "seeker1", "lister1").Return(existing, nil)

	resp, err := f.svc.StartConversation("seeker1", &domain.StartConversationRequest{
		OtherUserID:    "lister1",
		OpeningMessage: "Hello again",
	})

	assert.NoError(t, err)
	assert.False(t, resp.Created)
	assert.Equal(t, existing.ID, resp.ID)
	f.quota.AssertNotCalled(t, "ConsumeStartCredit", mock.Anything)
	f.repo.AssertNotCalled(t, "Create", mock.Anything)
	f.messages.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartConversation_ReusedAcrossListings(t *testing.T) {
	f := newConversationServiceFixture()

	// The existing thread was opened from another listing; the pair
	// lookup ignores listings entirely
	otherListing := "listing-B"
	existing := testConversation()
	existing.ListingID = &otherListing

	f.memberRepo.On("FindByID", "seeker1").Return(seekerMember(), nil)
	f.memberRepo.On("FindByID", "lister1").Return(listerMember(), nil)
	f.repo.On("FindByPair", "seeker1", "lister1").Return(existing, nil)

	listing := "listing-A"
	resp, err := f.svc.StartConversation("seeker1", &domain.StartConversationRequest{
		OtherUserID:    "lister1",
		ListingID:      &listing,
		OpeningMessage: "Saw your other place too",
	})

	assert.NoError(t, err)
	assert.False(t, resp.Created)
	assert.Equal(t, "listing-B", resp.ListingID)
}

func TestStartConversation_QuotaExhaustedCreatesNothing(t *testing.T) {
	f := newConversationServiceFixture()

	f.memberRepo.On("FindByID", "seeker1").Return(seekerMember(), nil)
	f.memberRepo.On("FindByID", "lister1").Return(listerMember(), nil)
	f.repo.On("FindByPair", "seeker1", "lister1").Return(nil, nil)
	f.quota.On("ConsumeStartCredit", "seeker1").Return(common.ErrQuotaExceeded)

	resp, err := f.svc.StartConversation("seeker1", &domain.StartConversationRequest{
		OtherUserID:    "lister1",
		OpeningMessage: "Hello",
	})

	assert.ErrorIs(t, err, common.ErrQuotaExceeded)
	assert.Nil(t, resp)
	f.repo.AssertNotCalled(t, "Create", mock.Anything)
	f.messages.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartConversation_SelfRejected(t *testing.T) {
	f := newConversationServiceFixture()

	_, err := f.svc.StartConversation("seeker1", &domain.StartConversationRequest{
		OtherUserID:    "seeker1",
		OpeningMessage: "Hello me",
	})

	assert.ErrorIs(t, err, common.ErrSelfConversation)
	f.memberRepo.AssertNotCalled(t, "FindByID", mock.Anything)
}

func TestStartConversation_SameRoleRejected(t *testing.T) {
	f := newConversationServiceFixture()

	f.memberRepo.On("FindByID", "seeker1").Return(seekerMember(), nil)
	f.memberRepo.On("FindByID", "seeker2").Return(&domain.Member{ID: "seeker2", Role: domain.RoleSeeker}, nil)

	_, err := f.svc.StartConversation("seeker1", &domain.StartConversationRequest{
		OtherUserID:    "seeker2",
		OpeningMessage: "Hello",
	})

	assert.ErrorIs(t, err, common.ErrSameRole)
	f.repo.AssertNotCalled(t, "FindByPair", mock.Anything, mock.Anything)
}

func TestStartConversation_ListerInitiatesCanonicalPair(t *testing.T) {
	f := newConversationServiceFixture()

	f.memberRepo.On("FindByID", "lister1").Return(listerMember(), nil)
	f.memberRepo.On("FindByID", "seeker1").Return(seekerMember(), nil)
	f.repo.On("FindByPair", "seeker1", "lister1").Return(nil, nil)
	f.quota.On("ConsumeStartCredit", "lister1").Return(nil)
	// Pair stays (seeker, lister) no matter who taps first
	f.repo.On("Create", mock.MatchedBy(func(c *domain.Conversation) bool {
		return c.SeekerID == "seeker1" && c.ListerID == "lister1"
	})).Return(nil)
	f.messages.On("Send", mock.Anything, "lister1", mock.Anything).
		Return(&domain.MessageResponse{}, nil)

	resp, err := f.svc.StartConversation("lister1", &domain.StartConversationRequest{
		OtherUserID:    "seeker1",
		OpeningMessage: "Your profile matched my listing",
	})

	assert.NoError(t, err)
	assert.True(t, resp.Created)
	f.repo.AssertExpectations(t)
}

func TestStartConversation_DuplicateRaceResolvesToWinner(t *testing.T) {
	f := newConversationServiceFixture()

	winner := testConversation()
	f.memberRepo.On("FindByID", "seeker1").Return(seekerMember(), nil)
	f.memberRepo.On("FindByID", "lister1").Return(listerMember(), nil)
	f.repo.On("FindByPair", "seeker1", "lister1").Return(nil, nil).Once()
	f.quota.On("ConsumeStartCredit", "seeker1").Return(nil)
	f.repo.On("Create", mock.Anything).Return(gorm.ErrDuplicatedKey)
	f.repo.On("FindByPair", "seeker1", "lister1").Return(winner, nil).Once()

	resp, err := f.svc.StartConversation("seeker1", &domain.StartConversationRequest{
		OtherUserID:    "lister1",
		OpeningMessage: "Hello",
	})

	// The caller sees the winner's thread, indistinguishable from reuse
	assert.NoError(t, err)
	assert.False(t, resp.Created)
	assert.Equal(t, winner.ID, resp.ID)
	f.messages.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartConversation_OpeningMessageFailureKeepsConversation(t *testing.T) {
	f := newConversationServiceFixture()

	f.memberRepo.On("FindByID", "seeker1").Return(seekerMember(), nil)
	f.memberRepo.On("FindByID", "lister1").Return(listerMember(), nil)
	f.repo.On("FindByPair", "seeker1", "lister1").Return(nil, nil)
	f.quota.On("ConsumeStartCredit", "seeker1").Return(nil)
	f.repo.On("Create", mock.Anything).Return(nil)
	f.messages.On("Send", mock.Anything, "seeker1", mock.Anything).
		Return(nil, errors.New("write timeout"))

	resp, err := f.svc.StartConversation("seeker1", &domain.StartConversationRequest{
		OtherUserID:    "lister1",
		OpeningMessage: "Hello",
	})

	assert.NoError(t, err)
	assert.True(t, resp.Created)
}

func TestListConversations(t *testing.T) {
	f := newConversationServiceFixture()

	convs := []*domain.Conversation{
		{ID: "conv1", SeekerID: "seeker1", ListerID: "lister1", Status: domain.ConversationActive},
		{ID: "conv2", SeekerID: "seeker1", ListerID: "lister2", Status: domain.ConversationActive},
	}
	f.repo.On("ListByUser", "seeker1").Return(convs, nil)
	f.memberRepo.On("FindByIDs", []string{"lister1", "lister2"}).Return(map[string]*domain.Member{
		"lister1": listerMember(),
		"lister2": {ID: "lister2", Nickname: "Second Owner", Role: domain.RoleLister},
	}, nil)
	f.msgRepo.On("LastMessage", "conv1").Return(&domain.Message{ID: "m9", Body: "See you Saturday"}, nil)
	f.msgRepo.On("LastMessage", "conv2").Return(nil, nil)
	f.msgRepo.On("CountUnread", "conv1", "seeker1").Return(int64(2), nil)
	f.msgRepo.On("CountUnread", "conv2", "seeker1").Return(int64(0), nil)

	list, err := f.svc.ListConversations("seeker1")

	assert.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, "Landlady", list[0].Other.Nickname)
	assert.Equal(t, "See you Saturday", list[0].LastMessage.Body)
	assert.Equal(t, int64(2), list[0].UnreadCount)
	assert.Nil(t, list[1].LastMessage)
	assert.Equal(t, int64(0), list[1].UnreadCount)
}

func TestUpdateStatus_Archive(t *testing.T) {
	f := newConversationServiceFixture()

	f.repo.On("FindByID", "conv1").Return(testConversation(), nil)
	f.repo.On("UpdateStatus", "conv1", domain.ConversationArchived).Return(nil)

	err := f.svc.UpdateStatus("conv1", "seeker1", domain.ConversationArchived)

	assert.NoError(t, err)
	assert.Equal(t, [][]string{{"seeker1", "lister1"}}, f.notifier.changed)
	f.repo.AssertExpectations(t)
}

func TestUpdateStatus_NoOpWhenUnchanged(t *testing.T) {
	f := newConversationServiceFixture()

	f.repo.On("FindByID", "conv1").Return(testConversation(), nil)

	err := f.svc.UpdateStatus("conv1", "seeker1", domain.ConversationActive)

	assert.NoError(t, err)
	f.repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
	assert.Empty(t, f.notifier.changed)
}

func TestUpdateStatus_NonParticipantForbidden(t *testing.T) {
	f := newConversationServiceFixture()

	f.repo.On("FindByID", "conv1").Return(testConversation(), nil)

	err := f.svc.UpdateStatus("conv1", "intruder", domain.ConversationArchived)

	assert.ErrorIs(t, err, common.ErrForbidden)
}
