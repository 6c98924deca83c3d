package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"buildledger/internal/common"
	"buildledger/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v76"
)

// Mock repositories and services

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) Upsert(ctx context.Context, subscription *models.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*models.Subscription, error) {
	args := m.Called(ctx, stripeSubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, subscription *models.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]*models.Subscription, error) {
	args := m.Called(ctx, statuses, limit, offset)
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

type MockPlanRepository struct {
	mock.Mock
}

func (m *MockPlanRepository) Upsert(ctx context.Context, plan *models.SubscriptionPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPlanRepository) GetByName(ctx context.Context, name string) (*models.SubscriptionPlan, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubscriptionPlan), args.Error(1)
}

func (m *MockPlanRepository) GetByStripePriceID(ctx context.Context, priceID string) (*models.SubscriptionPlan, error) {
	args := m.Called(ctx, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubscriptionPlan), args.Error(1)
}

func (m *MockPlanRepository) ListByPrice(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.SubscriptionPlan), args.Error(1)
}

type MockUsageRepository struct {
	mock.Mock
}

func (m *MockUsageRepository) Increment(ctx context.Context, subscriptionID uuid.UUID, feature string, delta int64) error {
	args := m.Called(ctx, subscriptionID, feature, delta)
	return args.Error(0)
}

func (m *MockUsageRepository) Get(ctx context.Context, subscriptionID uuid.UUID, feature string) (*models.UsageMetric, error) {
	args := m.Called(ctx, subscriptionID, feature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UsageMetric), args.Error(1)
}

func (m *MockUsageRepository) List(ctx context.Context, subscriptionID uuid.UUID) ([]*models.UsageMetric, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Get(0).([]*models.UsageMetric), args.Error(1)
}

func (m *MockUsageRepository) Reset(ctx context.Context, subscriptionID uuid.UUID, feature string) error {
	args := m.Called(ctx, subscriptionID, feature)
	return args.Error(0)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	args := m.Called(ctx, userID, customerID)
	return args.Error(0)
}

type MockBillingProvider struct {
	mock.Mock
}

func (m *MockBillingProvider) CreateCustomer(ctx context.Context, email, name string, userID uuid.UUID) (*BillingCustomer, error) {
	args := m.Called(ctx, email, name, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BillingCustomer), args.Error(1)
}

func (m *MockBillingProvider) GetCustomer(ctx context.Context, customerID string) (*BillingCustomer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BillingCustomer), args.Error(1)
}

func (m *MockBillingProvider) CreateSubscription(ctx context.Context, customerID, priceID string) (*BillingSubscription, error) {
	args := m.Called(ctx, customerID, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BillingSubscription), args.Error(1)
}

func (m *MockBillingProvider) GetSubscription(ctx context.Context, subscriptionID string) (*BillingSubscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BillingSubscription), args.Error(1)
}

func (m *MockBillingProvider) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*BillingSubscription, error) {
	args := m.Called(ctx, subscriptionID, atPeriodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BillingSubscription), args.Error(1)
}

func (m *MockBillingProvider) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	args := m.Called(ctx, customerID, priceID, successURL, cancelURL)
	return args.String(0), args.Error(1)
}

func (m *MockBillingProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

func (m *MockBillingProvider) ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(stripe.Event), args.Error(1)
}

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SubscriptionPlan), args.Error(1)
}

func (m *MockCacheService) SetPlans(ctx context.Context, plans []*models.SubscriptionPlan, ttl time.Duration) error {
	args := m.Called(ctx, plans, ttl)
	return args.Error(0)
}

func (m *MockCacheService) InvalidatePlans(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCacheService) GetDashboard(ctx context.Context, userID uuid.UUID) (map[string]interface{}, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockCacheService) SetDashboard(ctx context.Context, userID uuid.UUID, summary map[string]interface{}, ttl time.Duration) error {
	args := m.Called(ctx, userID, summary, ttl)
	return args.Error(0)
}

func (m *MockCacheService) InvalidateDashboard(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) IncrementRateLimit(ctx context.Context, key string, window time.Duration) error {
	args := m.Called(ctx, key, window)
	return args.Error(0)
}

func (m *MockCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheService) GetString(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCacheService) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// SubscriptionServiceTestSuite defines the test suite
type SubscriptionServiceTestSuite struct {
	suite.Suite
	mockSubscriptionRepo *MockSubscriptionRepository
	mockPlanRepo         *MockPlanRepository
	mockUsageRepo        *MockUsageRepository
	mockUserRepo         *MockUserRepository
	mockBilling          *MockBillingProvider
	mockCache            *MockCacheService
	service              SubscriptionService
	userID               uuid.UUID
}

func (suite *SubscriptionServiceTestSuite) SetupTest() {
	suite.mockSubscriptionRepo = &MockSubscriptionRepository{}
	suite.mockPlanRepo = &MockPlanRepository{}
	suite.mockUsageRepo = &MockUsageRepository{}
	suite.mockUserRepo = &MockUserRepository{}
	suite.mockBilling = &MockBillingProvider{}
	suite.mockCache = &MockCacheService{}
	suite.service = NewSubscriptionService(
		suite.mockSubscriptionRepo,
		suite.mockPlanRepo,
		suite.mockUsageRepo,
		suite.mockUserRepo,
		suite.mockBilling,
		suite.mockCache,
		"https://app.example.com",
	)
	suite.userID = uuid.New()
}

func (suite *SubscriptionServiceTestSuite) TearDownTest() {
	suite.mockSubscriptionRepo.AssertExpectations(suite.T())
	suite.mockPlanRepo.AssertExpectations(suite.T())
	suite.mockUsageRepo.AssertExpectations(suite.T())
	suite.mockUserRepo.AssertExpectations(suite.T())
	suite.mockBilling.AssertExpectations(suite.T())
	suite.mockCache.AssertExpectations(suite.T())
}

func TestSubscriptionServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceTestSuite))
}

func (suite *SubscriptionServiceTestSuite) proPlan() *models.SubscriptionPlan {
	return &models.SubscriptionPlan{
		ID:            uuid.New(),
		Name:          "pro",
		DisplayName:   "Pro",
		Price:         29,
		BillingCycle:  "monthly",
		StripePriceID: "price_pro",
		InvoicesLimit: models.UnlimitedLimit,
	}
}

func (suite *SubscriptionServiceTestSuite) userWithCustomer(customerID string) *models.User {
	return &models.User{
		ID:               suite.userID,
		Email:            "owner@builder.test",
		FirstName:        "Sam",
		LastName:         "Mason",
		StripeCustomerID: &customerID,
	}
}

func (suite *SubscriptionServiceTestSuite) TestCreateSubscription_WritesPendingRowBeforeRemoteCall() {
	user := suite.userWithCustomer("cus_1")
	periodStart := time.Now().UTC().Truncate(time.Second)
	periodEnd := periodStart.AddDate(0, 1, 0)

	suite.mockPlanRepo.On("GetByStripePriceID", mock.Anything, "price_pro").Return(suite.proPlan(), nil).Once()
	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(nil, pgx.ErrNoRows).Once()
	suite.mockUserRepo.On("GetByID", mock.Anything, suite.userID).Return(user, nil).Twice()
	suite.mockBilling.On("GetCustomer", mock.Anything, "cus_1").Return(&BillingCustomer{ID: "cus_1", Email: user.Email}, nil).Once()

	pending := &models.Subscription{}
	suite.mockSubscriptionRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.UserID == suite.userID && s.Status == models.SubscriptionStatusPending && s.PlanName == "pro"
	})).Run(func(args mock.Arguments) {
		*pending = *args.Get(1).(*models.Subscription)
	}).Return(nil).Once()

	suite.mockBilling.On("CreateSubscription", mock.Anything, "cus_1", "price_pro").Return(&BillingSubscription{
		ID:                 "sub_1",
		CustomerID:         "cus_1",
		Status:             "active",
		PriceID:            "price_pro",
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
	}, nil).Once()

	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(pending, nil).Once()
	suite.mockSubscriptionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubscriptionStatusActive &&
			s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == "sub_1" &&
			s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Equal(periodEnd)
	})).Return(nil).Once()

	subscription, err := suite.service.CreateSubscription(context.Background(), suite.userID, "price_pro")

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SubscriptionStatusActive, subscription.Status)
	assert.Equal(suite.T(), "sub_1", *subscription.StripeSubscriptionID)
}

func (suite *SubscriptionServiceTestSuite) TestCreateSubscription_UnknownPrice() {
	suite.mockPlanRepo.On("GetByStripePriceID", mock.Anything, "price_bogus").Return(nil, pgx.ErrNoRows).Once()

	_, err := suite.service.CreateSubscription(context.Background(), suite.userID, "price_bogus")

	assert.Error(suite.T(), err)
	assert.True(suite.T(), common.IsValidationError(err))
}

func (suite *SubscriptionServiceTestSuite) TestCreateSubscription_RemoteFailureLeavesPendingRow() {
	user := suite.userWithCustomer("cus_1")

	suite.mockPlanRepo.On("GetByStripePriceID", mock.Anything, "price_pro").Return(suite.proPlan(), nil).Once()
	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(nil, pgx.ErrNoRows).Once()
	suite.mockUserRepo.On("GetByID", mock.Anything, suite.userID).Return(user, nil).Twice()
	suite.mockBilling.On("GetCustomer", mock.Anything, "cus_1").Return(&BillingCustomer{ID: "cus_1"}, nil).Once()
	suite.mockSubscriptionRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubscriptionStatusPending
	})).Return(nil).Once()
	suite.mockBilling.On("CreateSubscription", mock.Anything, "cus_1", "price_pro").Return(nil, errors.New("stripe unavailable")).Once()

	_, err := suite.service.CreateSubscription(context.Background(), suite.userID, "price_pro")

	assert.Error(suite.T(), err)
	suite.mockSubscriptionRepo.AssertNotCalled(suite.T(), "Update", mock.Anything, mock.Anything)
}

func (suite *SubscriptionServiceTestSuite) TestCreateSubscription_RejectedWhileRemoteSubscriptionActive() {
	subID := "sub_live"
	existing := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               suite.userID,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: &subID,
		Status:               models.SubscriptionStatusActive,
		PlanName:             "pro",
	}

	suite.mockPlanRepo.On("GetByStripePriceID", mock.Anything, "price_pro").Return(suite.proPlan(), nil).Once()
	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(existing, nil).Once()

	_, err := suite.service.CreateSubscription(context.Background(), suite.userID, "price_pro")

	assert.Error(suite.T(), err)
	assert.True(suite.T(), common.IsValidationError(err))
	suite.mockSubscriptionRepo.AssertNotCalled(suite.T(), "Upsert", mock.Anything, mock.Anything)
	suite.mockBilling.AssertNotCalled(suite.T(), "CreateSubscription", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *SubscriptionServiceTestSuite) TestCreateSubscription_ResubscribeAfterCancelKeepsRowIdentity() {
	user := suite.userWithCustomer("cus_1")
	oldSubID := "sub_old"
	existing := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               suite.userID,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: &oldSubID,
		Status:               models.SubscriptionStatusCanceled,
		PlanName:             "pro",
	}

	suite.mockPlanRepo.On("GetByStripePriceID", mock.Anything, "price_pro").Return(suite.proPlan(), nil).Once()
	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(existing, nil).Once()
	suite.mockUserRepo.On("GetByID", mock.Anything, suite.userID).Return(user, nil).Twice()
	suite.mockBilling.On("GetCustomer", mock.Anything, "cus_1").Return(&BillingCustomer{ID: "cus_1"}, nil).Once()

	pending := &models.Subscription{}
	suite.mockSubscriptionRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.ID == existing.ID && s.Status == models.SubscriptionStatusPending &&
			s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == "sub_old"
	})).Run(func(args mock.Arguments) {
		*pending = *args.Get(1).(*models.Subscription)
	}).Return(nil).Once()

	suite.mockBilling.On("CreateSubscription", mock.Anything, "cus_1", "price_pro").Return(&BillingSubscription{
		ID:         "sub_new",
		CustomerID: "cus_1",
		Status:     "active",
		PriceID:    "price_pro",
	}, nil).Once()

	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(pending, nil).Once()
	suite.mockSubscriptionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.ID == existing.ID && s.Status == models.SubscriptionStatusActive &&
			s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == "sub_new"
	})).Return(nil).Once()

	subscription, err := suite.service.CreateSubscription(context.Background(), suite.userID, "price_pro")

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), existing.ID, subscription.ID)
	assert.Equal(suite.T(), "sub_new", *subscription.StripeSubscriptionID)
}

func (suite *SubscriptionServiceTestSuite) TestCancelSubscription_MirrorsProviderState() {
	subID := "sub_1"
	subscription := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               suite.userID,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: &subID,
		Status:               models.SubscriptionStatusActive,
		PlanName:             "pro",
	}

	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(subscription, nil).Once()
	suite.mockBilling.On("CancelSubscription", mock.Anything, "sub_1", true).Return(&BillingSubscription{
		ID:                "sub_1",
		Status:            "active",
		CancelAtPeriodEnd: true,
	}, nil).Once()
	suite.mockSubscriptionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.CancelAtPeriodEnd && s.Status == models.SubscriptionStatusActive
	})).Return(nil).Once()

	err := suite.service.CancelSubscription(context.Background(), suite.userID)

	assert.NoError(suite.T(), err)
}

func webhookEvent(eventType string, payload string) stripe.Event {
	return stripe.Event{
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(payload)},
	}
}

func (suite *SubscriptionServiceTestSuite) TestHandleWebhook_CheckoutCompletedActivates() {
	subscription := &models.Subscription{
		ID:               uuid.New(),
		UserID:           suite.userID,
		StripeCustomerID: "cus_1",
		Status:           models.SubscriptionStatusPending,
		PlanName:         "pro",
	}

	suite.mockSubscriptionRepo.On("GetByStripeCustomerID", mock.Anything, "cus_1").Return(subscription, nil).Once()
	suite.mockSubscriptionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubscriptionStatusActive &&
			s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == "sub_1"
	})).Return(nil).Once()

	event := webhookEvent("checkout.session.completed", `{"customer":"cus_1","subscription":"sub_1"}`)
	err := suite.service.HandleWebhookEvent(context.Background(), event)

	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionServiceTestSuite) TestHandleWebhook_SubscriptionDeletedCancels() {
	subID := "sub_1"
	subscription := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               suite.userID,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: &subID,
		Status:               models.SubscriptionStatusActive,
	}

	suite.mockSubscriptionRepo.On("GetByStripeSubscriptionID", mock.Anything, "sub_1").Return(subscription, nil).Once()
	suite.mockSubscriptionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubscriptionStatusCanceled
	})).Return(nil).Once()

	event := webhookEvent("customer.subscription.deleted", `{"id":"sub_1","customer":"cus_1","status":"canceled"}`)
	err := suite.service.HandleWebhookEvent(context.Background(), event)

	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionServiceTestSuite) TestHandleWebhook_PaymentFailedThenRecovers() {
	subscription := &models.Subscription{
		ID:               uuid.New(),
		UserID:           suite.userID,
		StripeCustomerID: "cus_1",
		Status:           models.SubscriptionStatusActive,
	}

	suite.mockSubscriptionRepo.On("GetByStripeCustomerID", mock.Anything, "cus_1").Return(subscription, nil).Times(2)
	suite.mockSubscriptionRepo.On("Update", mock.Anything, subscription).Return(nil).Times(2)

	err := suite.service.HandleWebhookEvent(context.Background(),
		webhookEvent("invoice.payment_failed", `{"customer":"cus_1"}`))
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SubscriptionStatusPaymentFailed, subscription.Status)

	// A completed checkout for the same customer brings the row back.
	err = suite.service.HandleWebhookEvent(context.Background(),
		webhookEvent("checkout.session.completed", `{"customer":"cus_1","subscription":"sub_1"}`))
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SubscriptionStatusActive, subscription.Status)
}

func (suite *SubscriptionServiceTestSuite) TestHandleWebhook_RejectsInvalidTransition() {
	subID := "sub_1"
	subscription := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               suite.userID,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: &subID,
		Status:               models.SubscriptionStatusCanceled,
	}

	suite.mockSubscriptionRepo.On("GetByStripeSubscriptionID", mock.Anything, "sub_1").Return(subscription, nil).Once()

	// A canceled row cannot move to past_due without a resubscribe.
	err := suite.service.HandleWebhookEvent(context.Background(),
		webhookEvent("customer.subscription.updated", `{"id":"sub_1","customer":"cus_1","status":"past_due"}`))

	assert.Error(suite.T(), err)
	assert.ErrorIs(suite.T(), err, common.ErrInvalidTransition)
	assert.Equal(suite.T(), models.SubscriptionStatusCanceled, subscription.Status)
	suite.mockSubscriptionRepo.AssertNotCalled(suite.T(), "Update", mock.Anything, mock.Anything)
}

func (suite *SubscriptionServiceTestSuite) TestHandleWebhook_UnknownEventTypeAcked() {
	event := webhookEvent("customer.created", `{"id":"cus_1"}`)

	err := suite.service.HandleWebhookEvent(context.Background(), event)

	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionServiceTestSuite) TestHandleWebhook_CheckoutAdoptionResolvesPlan() {
	user := suite.userWithCustomer("cus_1")

	suite.mockSubscriptionRepo.On("GetByStripeCustomerID", mock.Anything, "cus_1").Return(nil, pgx.ErrNoRows).Once()
	suite.mockUserRepo.On("GetByStripeCustomerID", mock.Anything, "cus_1").Return(user, nil).Once()
	suite.mockBilling.On("GetSubscription", mock.Anything, "sub_1").Return(&BillingSubscription{
		ID:      "sub_1",
		Status:  "active",
		PriceID: "price_pro",
	}, nil).Once()
	suite.mockPlanRepo.On("GetByStripePriceID", mock.Anything, "price_pro").Return(suite.proPlan(), nil).Once()
	suite.mockSubscriptionRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.UserID == suite.userID && s.Status == models.SubscriptionStatusActive &&
			s.PlanName == "pro" &&
			s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == "sub_1"
	})).Return(nil).Once()

	err := suite.service.HandleWebhookEvent(context.Background(),
		webhookEvent("checkout.session.completed", `{"customer":"cus_1","subscription":"sub_1"}`))

	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionServiceTestSuite) TestHandleWebhook_UnknownCustomerSkipped() {
	suite.mockSubscriptionRepo.On("GetByStripeCustomerID", mock.Anything, "cus_ghost").Return(nil, pgx.ErrNoRows).Once()

	err := suite.service.HandleWebhookEvent(context.Background(),
		webhookEvent("invoice.payment_failed", `{"customer":"cus_ghost"}`))

	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionServiceTestSuite) TestRecordUsage_AddsDeltaToCounter() {
	subscription := &models.Subscription{
		ID:       uuid.New(),
		UserID:   suite.userID,
		Status:   models.SubscriptionStatusActive,
		PlanName: "pro",
	}

	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(subscription, nil).Once()
	suite.mockUsageRepo.On("Increment", mock.Anything, subscription.ID, models.UsageFeatureInvoices, int64(1)).Return(nil).Once()

	err := suite.service.RecordUsage(context.Background(), suite.userID, models.UsageFeatureInvoices, 1)

	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionServiceTestSuite) TestRecordUsage_CreatesDefaultSubscriptionWhenMissing() {
	freePlan := &models.SubscriptionPlan{ID: uuid.New(), Name: "free", Price: 0, InvoicesLimit: 5}

	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(nil, pgx.ErrNoRows).Once()
	suite.mockCache.On("GetPlans", mock.Anything).Return([]*models.SubscriptionPlan{freePlan}, nil).Once()
	suite.mockSubscriptionRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.UserID == suite.userID && s.PlanName == "free" && s.Status == models.SubscriptionStatusActive
	})).Return(nil).Once()
	suite.mockUsageRepo.On("Increment", mock.Anything, mock.Anything, models.UsageFeatureInvoices, int64(1)).Return(nil).Once()

	err := suite.service.RecordUsage(context.Background(), suite.userID, models.UsageFeatureInvoices, 1)

	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionServiceTestSuite) TestCheckLimit_LimitReached() {
	subscription := &models.Subscription{ID: uuid.New(), UserID: suite.userID, PlanName: "free", Status: models.SubscriptionStatusActive}
	freePlan := &models.SubscriptionPlan{Name: "free", InvoicesLimit: 5}

	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(subscription, nil).Once()
	suite.mockPlanRepo.On("GetByName", mock.Anything, "free").Return(freePlan, nil).Once()
	suite.mockUsageRepo.On("Get", mock.Anything, subscription.ID, models.UsageFeatureInvoices).Return(&models.UsageMetric{
		SubscriptionID: subscription.ID,
		Feature:        models.UsageFeatureInvoices,
		UsageCount:     5,
	}, nil).Once()

	err := suite.service.CheckLimit(context.Background(), suite.userID, models.UsageFeatureInvoices)

	assert.ErrorIs(suite.T(), err, common.ErrLimitExceeded)
}

func (suite *SubscriptionServiceTestSuite) TestCheckLimit_UnderLimit() {
	subscription := &models.Subscription{ID: uuid.New(), UserID: suite.userID, PlanName: "free", Status: models.SubscriptionStatusActive}
	freePlan := &models.SubscriptionPlan{Name: "free", InvoicesLimit: 5}

	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(subscription, nil).Once()
	suite.mockPlanRepo.On("GetByName", mock.Anything, "free").Return(freePlan, nil).Once()
	suite.mockUsageRepo.On("Get", mock.Anything, subscription.ID, models.UsageFeatureInvoices).Return(&models.UsageMetric{
		UsageCount: 4,
	}, nil).Once()

	err := suite.service.CheckLimit(context.Background(), suite.userID, models.UsageFeatureInvoices)

	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionServiceTestSuite) TestCheckLimit_UnlimitedSkipsUsageLookup() {
	subscription := &models.Subscription{ID: uuid.New(), UserID: suite.userID, PlanName: "pro", Status: models.SubscriptionStatusActive}

	suite.mockSubscriptionRepo.On("GetByUserID", mock.Anything, suite.userID).Return(subscription, nil).Once()
	suite.mockPlanRepo.On("GetByName", mock.Anything, "pro").Return(suite.proPlan(), nil).Once()

	err := suite.service.CheckLimit(context.Background(), suite.userID, models.UsageFeatureInvoices)

	assert.NoError(suite.T(), err)
	suite.mockUsageRepo.AssertNotCalled(suite.T(), "Get", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *SubscriptionServiceTestSuite) TestReconcile_AppliesRemoteDrift() {
	subID := "sub_1"
	subscription := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               suite.userID,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: &subID,
		Status:               models.SubscriptionStatusActive,
		PlanName:             "pro",
	}
	periodEnd := time.Now().UTC().AddDate(0, 1, 0)

	suite.mockSubscriptionRepo.On("ListByStatus", mock.Anything, mock.Anything, 100, 0).Return([]*models.Subscription{subscription}, nil).Once()
	suite.mockBilling.On("GetSubscription", mock.Anything, "sub_1").Return(&BillingSubscription{
		ID:               "sub_1",
		Status:           "past_due",
		CurrentPeriodEnd: periodEnd,
	}, nil).Once()
	suite.mockSubscriptionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubscriptionStatusPastDue
	})).Return(nil).Once()

	err := suite.service.Reconcile(context.Background())

	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionServiceTestSuite) TestReconcile_ListsAllPagesBeforeWriting() {
	firstPage := make([]*models.Subscription, 100)
	for i := range firstPage {
		firstPage[i] = &models.Subscription{
			ID:       uuid.New(),
			UserID:   uuid.New(),
			Status:   models.SubscriptionStatusActive,
			PlanName: "free",
		}
	}
	subID := "sub_1"
	drifted := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               suite.userID,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: &subID,
		Status:               models.SubscriptionStatusActive,
		PlanName:             "pro",
	}

	var calls []string
	suite.mockSubscriptionRepo.On("ListByStatus", mock.Anything, mock.Anything, 100, 0).Run(func(mock.Arguments) {
		calls = append(calls, "list")
	}).Return(firstPage, nil).Once()
	suite.mockSubscriptionRepo.On("ListByStatus", mock.Anything, mock.Anything, 100, 100).Run(func(mock.Arguments) {
		calls = append(calls, "list")
	}).Return([]*models.Subscription{drifted}, nil).Once()
	suite.mockBilling.On("GetSubscription", mock.Anything, "sub_1").Return(&BillingSubscription{
		ID:     "sub_1",
		Status: "past_due",
	}, nil).Once()
	suite.mockSubscriptionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.ID == drifted.ID && s.Status == models.SubscriptionStatusPastDue
	})).Run(func(mock.Arguments) {
		calls = append(calls, "update")
	}).Return(nil).Once()

	err := suite.service.Reconcile(context.Background())

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"list", "list", "update"}, calls)
}

func (suite *SubscriptionServiceTestSuite) TestReconcile_RefreshesPlanFromRemotePrice() {
	subID := "sub_1"
	subscription := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               suite.userID,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: &subID,
		Status:               models.SubscriptionStatusActive,
		PlanName:             "free",
	}

	suite.mockSubscriptionRepo.On("ListByStatus", mock.Anything, mock.Anything, 100, 0).Return([]*models.Subscription{subscription}, nil).Once()
	suite.mockBilling.On("GetSubscription", mock.Anything, "sub_1").Return(&BillingSubscription{
		ID:      "sub_1",
		Status:  "active",
		PriceID: "price_pro",
	}, nil).Once()
	suite.mockPlanRepo.On("GetByStripePriceID", mock.Anything, "price_pro").Return(suite.proPlan(), nil).Once()
	suite.mockSubscriptionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.ID == subscription.ID && s.PlanName == "pro"
	})).Return(nil).Once()

	err := suite.service.Reconcile(context.Background())

	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionServiceTestSuite) TestCreatePortalSession_NoCustomer() {
	user := &models.User{ID: suite.userID, Email: "owner@builder.test"}

	suite.mockUserRepo.On("GetByID", mock.Anything, suite.userID).Return(user, nil).Once()

	_, err := suite.service.CreatePortalSession(context.Background(), suite.userID)

	assert.ErrorIs(suite.T(), err, common.ErrNoCustomer)
}

func TestMapProviderStatus(t *testing.T) {
	cases := map[string]string{
		"active":             models.SubscriptionStatusActive,
		"trialing":           models.SubscriptionStatusActive,
		"past_due":           models.SubscriptionStatusPastDue,
		"canceled":           models.SubscriptionStatusCanceled,
		"incomplete_expired": models.SubscriptionStatusCanceled,
		"unpaid":             models.SubscriptionStatusPaymentFailed,
		"incomplete":         models.SubscriptionStatusPending,
	}

	for provider, want := range cases {
		assert.Equal(t, want, MapProviderStatus(provider), "status %s", provider)
	}
}
