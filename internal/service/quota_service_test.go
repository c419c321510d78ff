package service

import (
	"testing"
	"time"

	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"github.com/nestmatch/nestmatch-backend/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// --- Mock QuotaRepository ---

type mockQuotaRepo struct {
	mock.Mock
}

func (m *mockQuotaRepo) CreateCredit(credit *domain.StartCredit) error {
	return m.Called(credit).Error(0)
}

func (m *mockQuotaRepo) FindConsumableCredits(userID string, now time.Time) ([]*domain.StartCredit, error) {
	args := m.Called(userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StartCredit), args.Error(1)
}

func (m *mockQuotaRepo) SumRemaining(userID string, now time.Time) (int64, error) {
	args := m.Called(userID, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockQuotaRepo) HasActiveSubscription(userID string, now time.Time) (bool, error) {
	args := m.Called(userID, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockQuotaRepo) ConsumeOne(creditID string) (bool, error) {
	args := m.Called(creditID)
	return args.Bool(0), args.Error(1)
}

func (m *mockQuotaRepo) FindAllowance(userID string) (*domain.MessageAllowance, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageAllowance), args.Error(1)
}

func (m *mockQuotaRepo) CreateAllowance(allowance *domain.MessageAllowance) error {
	return m.Called(allowance).Error(0)
}

func (m *mockQuotaRepo) ResetPeriod(userID string, oldReset, newReset time.Time) error {
	return m.Called(userID, oldReset, newReset).Error(0)
}

func (m *mockQuotaRepo) IncrementUsed(userID string) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockQuotaRepo) IncrementUsedUnbounded(userID string) error {
	return m.Called(userID).Error(0)
}

func (m *mockQuotaRepo) IncreaseCap(userID string, delta int) error {
	return m.Called(userID, delta).Error(0)
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestQuotaService(repo *mockQuotaRepo, defaultCap, freeGrant int) *quotaService {
	svc := NewQuotaService(repo, cache.NewService(nil), defaultCap, freeGrant).(*quotaService)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestConsumeStartCredit_OldestExpiryFirst(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	soon := testNow.Add(24 * time.Hour)
	later := testNow.Add(30 * 24 * time.Hour)
	repo.On("HasActiveSubscription", "user1", testNow).Return(false, nil)
	repo.On("FindConsumableCredits", "user1", testNow).Return([]*domain.StartCredit{
		{ID: "credit-soon", Remaining: 1, ExpiresAt: &soon},
		{ID: "credit-later", Remaining: 2, ExpiresAt: &later},
	}, nil)
	repo.On("ConsumeOne", "credit-soon").Return(true, nil)

	err := svc.ConsumeStartCredit("user1")

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "ConsumeOne", "credit-later")
	repo.AssertExpectations(t)
}

func TestConsumeStartCredit_SubscriptionSkipsLedger(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	repo.On("HasActiveSubscription", "user1", testNow).Return(true, nil)

	err := svc.ConsumeStartCredit("user1")

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "FindConsumableCredits", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "ConsumeOne", mock.Anything)
}

func TestConsumeStartCredit_Depleted(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	repo.On("HasActiveSubscription", "user1", testNow).Return(false, nil)
	repo.On("FindConsumableCredits", "user1", testNow).Return([]*domain.StartCredit{}, nil)

	err := svc.ConsumeStartCredit("user1")

	assert.ErrorIs(t, err, common.ErrQuotaExceeded)
}

func TestConsumeStartCredit_ConcurrentSpenderMovesToNext(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	repo.On("HasActiveSubscription", "user1", testNow).Return(false, nil)
	repo.On("FindConsumableCredits", "user1", testNow).Return([]*domain.StartCredit{
		{ID: "emptied-by-race", Remaining: 1},
		{ID: "still-has-one", Remaining: 1},
	}, nil)
	// Another request spent the first entry between load and decrement
	repo.On("ConsumeOne", "emptied-by-race").Return(false, nil)
	repo.On("ConsumeOne", "still-has-one").Return(true, nil)

	err := svc.ConsumeStartCredit("user1")

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCheckMessageAllowance_UnderCap(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	repo.On("FindAllowance", "user1").Return(&domain.MessageAllowance{
		UserID: "user1", Cap: 100, Used: 42, PeriodResetAt: testNow.Add(time.Hour),
	}, nil)

	assert.NoError(t, svc.CheckMessageAllowance("user1"))
}

func TestCheckMessageAllowance_AtCap(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	repo.On("FindAllowance", "user1").Return(&domain.MessageAllowance{
		UserID: "user1", Cap: 100, Used: 100, PeriodResetAt: testNow.Add(time.Hour),
	}, nil)

	err := svc.CheckMessageAllowance("user1")

	assert.ErrorIs(t, err, common.ErrMonthlyCapExceeded)
}

func TestCheckMessageAllowance_UnlimitedCap(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 0, 3)

	repo.On("FindAllowance", "user1").Return(&domain.MessageAllowance{
		UserID: "user1", Cap: 0, Used: 9999, PeriodResetAt: testNow.Add(time.Hour),
	}, nil)

	assert.NoError(t, svc.CheckMessageAllowance("user1"))
}

func TestCheckMessageAllowance_CreatesAllowanceLazily(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	repo.On("FindAllowance", "newuser").Return(nil, nil).Once()
	repo.On("CreateAllowance", mock.MatchedBy(func(a *domain.MessageAllowance) bool {
		return a.UserID == "newuser" && a.Cap == 100 && a.Used == 0
	})).Return(nil)

	err := svc.CheckMessageAllowance("newuser")

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCheckMessageAllowance_PeriodReset(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	expiredReset := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	nextReset := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	stale := &domain.MessageAllowance{UserID: "user1", Cap: 100, Used: 100, PeriodResetAt: expiredReset}
	fresh := &domain.MessageAllowance{UserID: "user1", Cap: 100, Used: 0, PeriodResetAt: nextReset}

	repo.On("FindAllowance", "user1").Return(stale, nil).Once()
	repo.On("ResetPeriod", "user1", expiredReset, nextReset).Return(nil)
	repo.On("FindAllowance", "user1").Return(fresh, nil).Once()

	err := svc.CheckMessageAllowance("user1")

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRecordMessageSent_Metered(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	repo.On("FindAllowance", "user1").Return(&domain.MessageAllowance{
		UserID: "user1", Cap: 100, Used: 10, PeriodResetAt: testNow.Add(time.Hour),
	}, nil)
	repo.On("IncrementUsed", "user1").Return(true, nil)

	assert.NoError(t, svc.RecordMessageSent("user1"))
	repo.AssertNotCalled(t, "IncrementUsedUnbounded", mock.Anything)
}

func TestRecordMessageSent_UnlimitedPlanStillMeters(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 0, 3)

	repo.On("FindAllowance", "user1").Return(&domain.MessageAllowance{
		UserID: "user1", Cap: 0, Used: 500, PeriodResetAt: testNow.Add(time.Hour),
	}, nil)
	repo.On("IncrementUsedUnbounded", "user1").Return(nil)

	assert.NoError(t, svc.RecordMessageSent("user1"))
	repo.AssertNotCalled(t, "IncrementUsed", mock.Anything)
}

func TestStatus_Metered(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	repo.On("SumRemaining", "user1", testNow).Return(int64(2), nil)
	repo.On("HasActiveSubscription", "user1", testNow).Return(false, nil)
	repo.On("FindAllowance", "user1").Return(&domain.MessageAllowance{
		UserID: "user1", Cap: 100, Used: 30, PeriodResetAt: testNow.Add(time.Hour),
	}, nil)

	status, err := svc.Status("user1")

	assert.NoError(t, err)
	assert.Equal(t, int64(2), status.StartCredits)
	assert.False(t, status.UnlimitedStarts)
	assert.Equal(t, 70, status.MessagesRemaining)
	assert.False(t, status.UnlimitedMessages)
}

func TestStatus_SubscriberUnlimited(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 0, 3)

	repo.On("SumRemaining", "user1", testNow).Return(int64(0), nil)
	repo.On("HasActiveSubscription", "user1", testNow).Return(true, nil)
	repo.On("FindAllowance", "user1").Return(&domain.MessageAllowance{
		UserID: "user1", Cap: 0, Used: 12, PeriodResetAt: testNow.Add(time.Hour),
	}, nil)

	status, err := svc.Status("user1")

	assert.NoError(t, err)
	assert.True(t, status.UnlimitedStarts)
	assert.True(t, status.UnlimitedMessages)
	assert.Equal(t, 12, status.MessagesUsed)
}

func TestExtendAllowance(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	repo.On("FindAllowance", "user1").Return(&domain.MessageAllowance{
		UserID: "user1", Cap: 100, Used: 80, PeriodResetAt: testNow.Add(time.Hour),
	}, nil)
	repo.On("IncreaseCap", "user1", 50).Return(nil)

	allowance, err := svc.ExtendAllowance("user1", 50)

	assert.NoError(t, err)
	assert.Equal(t, 150, allowance.Cap)
	assert.Equal(t, 80, allowance.Used)
	repo.AssertExpectations(t)
}

func TestExtendAllowance_UnlimitedPlanIsNoOp(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 0, 3)

	repo.On("FindAllowance", "user1").Return(&domain.MessageAllowance{
		UserID: "user1", Cap: 0, Used: 12, PeriodResetAt: testNow.Add(time.Hour),
	}, nil)

	allowance, err := svc.ExtendAllowance("user1", 50)

	assert.NoError(t, err)
	assert.Equal(t, 0, allowance.Cap)
	repo.AssertNotCalled(t, "IncreaseCap", mock.Anything, mock.Anything)
}

func TestGrantCredit_RejectsExtensionKind(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	_, err := svc.GrantCredit(&domain.GrantCreditRequest{
		UserID: "user1", Kind: domain.GrantAllowanceExtension, Amount: 50,
	})

	assert.ErrorIs(t, err, common.ErrInvalidInput)
	repo.AssertNotCalled(t, "CreateCredit", mock.Anything)
}

func TestGrantInitialCredits(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 3)

	repo.On("CreateCredit", mock.MatchedBy(func(c *domain.StartCredit) bool {
		return c.UserID == "newuser" && c.Kind == domain.CreditFreeGrant &&
			c.Total == 3 && c.Remaining == 3 && c.ExpiresAt == nil
	})).Return(nil)

	assert.NoError(t, svc.GrantInitialCredits("newuser"))
	repo.AssertExpectations(t)
}

func TestGrantInitialCredits_DisabledGrant(t *testing.T) {
	repo := new(mockQuotaRepo)
	svc := newTestQuotaService(repo, 100, 0)

	assert.NoError(t, svc.GrantInitialCredits("newuser"))
	repo.AssertNotCalled(t, "CreateCredit", mock.Anything)
}

func TestNextPeriodReset(t *testing.T) {
	assert.Equal(t,
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		nextPeriodReset(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)))
	// December rolls into January of the next year
	assert.Equal(t,
		time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		nextPeriodReset(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)))
}
