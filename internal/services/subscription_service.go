package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"buildledger/internal/caching"
	"buildledger/internal/common"
	"buildledger/internal/models"
	"buildledger/internal/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v76"
)

// SubscriptionService is the single point of interaction with the billing
// provider and the persistence layer for everything subscription-related.
type SubscriptionService interface {
	CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (*BillingCustomer, error)
	GetCustomer(ctx context.Context, userID uuid.UUID) (*BillingCustomer, error)
	CreateSubscription(ctx context.Context, userID uuid.UUID, priceID string) (*models.Subscription, error)
	CancelSubscription(ctx context.Context, userID uuid.UUID) error
	GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	HandleWebhookEvent(ctx context.Context, event stripe.Event) error
	GetPlans(ctx context.Context) ([]*models.SubscriptionPlan, error)
	GetPlanByName(ctx context.Context, name string) (*models.SubscriptionPlan, error)
	SeedPlans(ctx context.Context, plans []*models.SubscriptionPlan) error
	GetUsage(ctx context.Context, userID, subscriptionID uuid.UUID) ([]*models.UsageMetric, error)
	RecordUsage(ctx context.Context, userID uuid.UUID, feature string, delta int64) error
	CheckLimit(ctx context.Context, userID uuid.UUID, feature string) error
	CreateCheckoutSession(ctx context.Context, userID uuid.UUID, priceID string) (string, error)
	CreatePortalSession(ctx context.Context, userID uuid.UUID) (string, error)
	Reconcile(ctx context.Context) error
}

type webhookHandlerFunc func(ctx context.Context, event stripe.Event) error

type subscriptionService struct {
	subscriptionRepo repositories.SubscriptionRepository
	planRepo         repositories.PlanRepository
	usageRepo        repositories.UsageRepository
	userRepo         repositories.UserRepository
	billing          BillingProvider
	cacheSvc         caching.CacheService
	appURL           string

	webhookHandlers map[string]webhookHandlerFunc
}

// allowedTransitions is the subscription status state machine. Writes
// outside this table are rejected instead of applied last-write-wins.
var allowedTransitions = map[string]map[string]bool{
	models.SubscriptionStatusPending: {
		models.SubscriptionStatusActive:        true,
		models.SubscriptionStatusPastDue:       true,
		models.SubscriptionStatusCanceled:      true,
		models.SubscriptionStatusPaymentFailed: true,
	},
	models.SubscriptionStatusActive: {
		models.SubscriptionStatusPastDue:       true,
		models.SubscriptionStatusCanceled:      true,
		models.SubscriptionStatusPaymentFailed: true,
	},
	models.SubscriptionStatusPastDue: {
		models.SubscriptionStatusActive:        true,
		models.SubscriptionStatusCanceled:      true,
		models.SubscriptionStatusPaymentFailed: true,
	},
	models.SubscriptionStatusPaymentFailed: {
		models.SubscriptionStatusActive:   true,
		models.SubscriptionStatusCanceled: true,
	},
	models.SubscriptionStatusCanceled: {
		models.SubscriptionStatusActive: true,
	},
}

// NewSubscriptionService creates a new SubscriptionService instance.
func NewSubscriptionService(
	subscriptionRepo repositories.SubscriptionRepository,
	planRepo repositories.PlanRepository,
	usageRepo repositories.UsageRepository,
	userRepo repositories.UserRepository,
	billing BillingProvider,
	cacheSvc caching.CacheService,
	appURL string,
) SubscriptionService {
	s := &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		planRepo:         planRepo,
		usageRepo:        usageRepo,
		userRepo:         userRepo,
		billing:          billing,
		cacheSvc:         cacheSvc,
		appURL:           appURL,
	}

	// One dispatch table for all webhook event types. Unhandled types are
	// acknowledged without action.
	s.webhookHandlers = map[string]webhookHandlerFunc{
		"checkout.session.completed":    s.handleCheckoutCompleted,
		"customer.subscription.updated": s.handleSubscriptionUpdated,
		"customer.subscription.deleted": s.handleSubscriptionDeleted,
		"invoice.payment_failed":        s.handleInvoicePaymentFailed,
		"invoice.payment_succeeded":     s.handleInvoicePaymentSucceeded,
	}

	return s
}

// CreateCustomer creates a remote billing customer and stores its id on the
// user row. If the local write fails the remote customer is left in place;
// the reconciliation sweep or a later retry picks it up.
func (s *subscriptionService) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (*BillingCustomer, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return s.billing.GetCustomer(ctx, *user.StripeCustomerID)
	}

	name := user.FirstName + " " + user.LastName
	customer, err := s.billing.CreateCustomer(ctx, email, name, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing customer: %w", err)
	}

	if err := s.userRepo.SetStripeCustomerID(ctx, userID, customer.ID); err != nil {
		log.Printf("WARN: billing customer %s created but local write failed for user %s: %v", customer.ID, userID, err)
		return nil, fmt.Errorf("failed to persist billing customer: %w", err)
	}

	return customer, nil
}

// GetCustomer fetches the remote customer for a user. Returns
// common.ErrNoCustomer when none is on file, which is distinct from a
// lookup failure.
func (s *subscriptionService) GetCustomer(ctx context.Context, userID uuid.UUID) (*BillingCustomer, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return nil, common.ErrNoCustomer
	}

	return s.billing.GetCustomer(ctx, *user.StripeCustomerID)
}

// CreateSubscription runs the two-phase flow: a local pending row is
// written before the remote call, then confirmed with the provider's
// response. A pending row left behind by a partial failure is resolved by
// the webhook or the reconciliation sweep.
func (s *subscriptionService) CreateSubscription(ctx context.Context, userID uuid.UUID, priceID string) (*models.Subscription, error) {
	plan, err := s.planRepo.GetByStripePriceID(ctx, priceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ValidationErrorf("unknown price: %s", priceID)
		}
		return nil, fmt.Errorf("failed to resolve plan: %w", err)
	}

	existing, err := s.subscriptionRepo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if existing != nil && existing.Status != models.SubscriptionStatusCanceled &&
		existing.StripeSubscriptionID != nil && *existing.StripeSubscriptionID != "" {
		return nil, common.ValidationErrorf("a billing subscription already exists; manage it through the billing portal")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	customer, err := s.CreateCustomer(ctx, userID, user.Email)
	if err != nil {
		return nil, err
	}

	subscription := &models.Subscription{
		ID:               uuid.New(),
		UserID:           userID,
		StripeCustomerID: customer.ID,
		Status:           models.SubscriptionStatusPending,
		PlanName:         plan.Name,
	}
	if existing != nil {
		// The upsert replaces the row, so keep its identity and any stale
		// remote id until the provider response supplies the new one.
		subscription.ID = existing.ID
		subscription.StripeSubscriptionID = existing.StripeSubscriptionID
	}
	if err := s.subscriptionRepo.Upsert(ctx, subscription); err != nil {
		return nil, fmt.Errorf("failed to write pending subscription: %w", err)
	}

	remote, err := s.billing.CreateSubscription(ctx, customer.ID, priceID)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing subscription: %w", err)
	}

	stored, err := s.subscriptionRepo.GetByUserID(ctx, userID)
	if err != nil {
		log.Printf("WARN: remote subscription %s created but local row unreadable for user %s: %v", remote.ID, userID, err)
		return nil, fmt.Errorf("failed to confirm subscription: %w", err)
	}

	stored.StripeSubscriptionID = &remote.ID
	stored.Status = MapProviderStatus(remote.Status)
	stored.CurrentPeriodStart = timePtr(remote.CurrentPeriodStart)
	stored.CurrentPeriodEnd = timePtr(remote.CurrentPeriodEnd)
	stored.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
	if err := s.subscriptionRepo.Update(ctx, stored); err != nil {
		// The pending row stays behind; the checkout webhook or the sweep
		// reconciles it.
		log.Printf("WARN: remote subscription %s created but local confirm failed for user %s: %v", remote.ID, userID, err)
		return nil, fmt.Errorf("failed to confirm subscription: %w", err)
	}

	return stored, nil
}

// CancelSubscription cancels remotely at period end and mirrors the result
// locally.
func (s *subscriptionService) CancelSubscription(ctx context.Context, userID uuid.UUID) error {
	subscription, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return err
	}

	if subscription.StripeSubscriptionID != nil && *subscription.StripeSubscriptionID != "" {
		remote, err := s.billing.CancelSubscription(ctx, *subscription.StripeSubscriptionID, true)
		if err != nil {
			return fmt.Errorf("failed to cancel billing subscription: %w", err)
		}
		subscription.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
		mapped := MapProviderStatus(remote.Status)
		if mapped != subscription.Status {
			if err := s.applyStatus(subscription, mapped); err != nil {
				return err
			}
		}
	} else {
		// Local-only row, nothing to cancel remotely.
		if err := s.applyStatus(subscription, models.SubscriptionStatusCanceled); err != nil {
			return err
		}
	}

	return s.subscriptionRepo.Update(ctx, subscription)
}

// GetSubscription returns the user's subscription row or
// common.ErrNotFound. A query failure is returned as such, never conflated
// with "no row".
func (s *subscriptionService) GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	subscription, err := s.subscriptionRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return subscription, nil
}

// HandleWebhookEvent dispatches an event to its handler. Errors propagate
// to the endpoint so the provider retries delivery.
func (s *subscriptionService) HandleWebhookEvent(ctx context.Context, event stripe.Event) error {
	handler, ok := s.webhookHandlers[string(event.Type)]
	if !ok {
		log.Printf("webhook: ignoring event type %s", event.Type)
		return nil
	}
	return handler(ctx, event)
}

func (s *subscriptionService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}
	if session.Customer == nil {
		return nil
	}

	subscription, err := s.subscriptionRepo.GetByStripeCustomerID(ctx, session.Customer.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.adoptCheckoutSubscription(ctx, &session)
		}
		return fmt.Errorf("failed to load subscription for customer %s: %w", session.Customer.ID, err)
	}

	if session.Subscription != nil && session.Subscription.ID != "" {
		subscription.StripeSubscriptionID = &session.Subscription.ID
	}
	if err := s.applyStatus(subscription, models.SubscriptionStatusActive); err != nil {
		return err
	}
	return s.subscriptionRepo.Update(ctx, subscription)
}

// adoptCheckoutSubscription creates the local row when checkout completes
// for a customer we have no subscription for yet.
func (s *subscriptionService) adoptCheckoutSubscription(ctx context.Context, session *stripe.CheckoutSession) error {
	user, err := s.userRepo.GetByStripeCustomerID(ctx, session.Customer.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Printf("webhook: checkout for unknown customer %s, skipping", session.Customer.ID)
			return nil
		}
		return fmt.Errorf("failed to resolve customer %s: %w", session.Customer.ID, err)
	}

	subscription := &models.Subscription{
		ID:               uuid.New(),
		UserID:           user.ID,
		StripeCustomerID: session.Customer.ID,
		Status:           models.SubscriptionStatusActive,
	}
	if session.Subscription != nil && session.Subscription.ID != "" {
		subscription.StripeSubscriptionID = &session.Subscription.ID

		// Resolve the plan from the remote subscription's price so the
		// adopted row enforces real limits, not an unknown-plan fallback.
		remote, err := s.billing.GetSubscription(ctx, session.Subscription.ID)
		if err != nil {
			log.Printf("WARN: webhook: failed to fetch subscription %s for adoption: %v", session.Subscription.ID, err)
		} else {
			if plan := s.planForPrice(ctx, remote.PriceID); plan != nil {
				subscription.PlanName = plan.Name
			}
			subscription.CurrentPeriodStart = timePtr(remote.CurrentPeriodStart)
			subscription.CurrentPeriodEnd = timePtr(remote.CurrentPeriodEnd)
			subscription.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
		}
	}
	return s.subscriptionRepo.Upsert(ctx, subscription)
}

func (s *subscriptionService) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var remote stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &remote); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	subscription, err := s.findByRemote(ctx, &remote)
	if err != nil || subscription == nil {
		return err
	}

	mapped := MapProviderStatus(string(remote.Status))
	if mapped != subscription.Status {
		if err := s.applyStatus(subscription, mapped); err != nil {
			return err
		}
	}
	if remote.ID != "" {
		subscription.StripeSubscriptionID = &remote.ID
	}
	subscription.CurrentPeriodStart = timePtr(time.Unix(remote.CurrentPeriodStart, 0).UTC())
	subscription.CurrentPeriodEnd = timePtr(time.Unix(remote.CurrentPeriodEnd, 0).UTC())
	subscription.CancelAtPeriodEnd = remote.CancelAtPeriodEnd

	if plan := s.planForRemote(ctx, &remote); plan != nil {
		subscription.PlanName = plan.Name
	}

	return s.subscriptionRepo.Update(ctx, subscription)
}

func (s *subscriptionService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var remote stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &remote); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	subscription, err := s.findByRemote(ctx, &remote)
	if err != nil || subscription == nil {
		return err
	}

	if subscription.Status == models.SubscriptionStatusCanceled {
		return nil
	}
	if err := s.applyStatus(subscription, models.SubscriptionStatusCanceled); err != nil {
		return err
	}
	return s.subscriptionRepo.Update(ctx, subscription)
}

func (s *subscriptionService) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	return s.applyInvoiceEvent(ctx, event, models.SubscriptionStatusPaymentFailed)
}

func (s *subscriptionService) handleInvoicePaymentSucceeded(ctx context.Context, event stripe.Event) error {
	return s.applyInvoiceEvent(ctx, event, models.SubscriptionStatusActive)
}

func (s *subscriptionService) applyInvoiceEvent(ctx context.Context, event stripe.Event, status string) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("failed to parse invoice event: %w", err)
	}
	if inv.Customer == nil {
		return nil
	}

	subscription, err := s.subscriptionRepo.GetByStripeCustomerID(ctx, inv.Customer.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Printf("webhook: invoice event for unknown customer %s, skipping", inv.Customer.ID)
			return nil
		}
		return fmt.Errorf("failed to load subscription for customer %s: %w", inv.Customer.ID, err)
	}

	if subscription.Status == status {
		return nil
	}
	if err := s.applyStatus(subscription, status); err != nil {
		return err
	}
	return s.subscriptionRepo.Update(ctx, subscription)
}

// findByRemote resolves a local row from a provider subscription, by
// subscription id first and customer id second. A nil row with nil error
// means the event refers to nothing we track.
func (s *subscriptionService) findByRemote(ctx context.Context, remote *stripe.Subscription) (*models.Subscription, error) {
	if remote.ID != "" {
		subscription, err := s.subscriptionRepo.GetByStripeSubscriptionID(ctx, remote.ID)
		if err == nil {
			return subscription, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to load subscription %s: %w", remote.ID, err)
		}
	}
	if remote.Customer != nil && remote.Customer.ID != "" {
		subscription, err := s.subscriptionRepo.GetByStripeCustomerID(ctx, remote.Customer.ID)
		if err == nil {
			return subscription, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to load subscription for customer %s: %w", remote.Customer.ID, err)
		}
	}
	log.Printf("webhook: subscription event for unknown subscription %s, skipping", remote.ID)
	return nil, nil
}

func (s *subscriptionService) planForRemote(ctx context.Context, remote *stripe.Subscription) *models.SubscriptionPlan {
	if remote.Items == nil || len(remote.Items.Data) == 0 || remote.Items.Data[0].Price == nil {
		return nil
	}
	return s.planForPrice(ctx, remote.Items.Data[0].Price.ID)
}

func (s *subscriptionService) planForPrice(ctx context.Context, priceID string) *models.SubscriptionPlan {
	if priceID == "" {
		return nil
	}
	plan, err := s.planRepo.GetByStripePriceID(ctx, priceID)
	if err != nil {
		return nil
	}
	return plan
}

// applyStatus validates a transition against the state machine before
// mutating the row.
func (s *subscriptionService) applyStatus(subscription *models.Subscription, status string) error {
	if subscription.Status == status {
		return nil
	}
	if !allowedTransitions[subscription.Status][status] {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, subscription.Status, status)
	}
	subscription.Status = status
	return nil
}

// GetPlans returns all plans ordered by price, via the cache.
func (s *subscriptionService) GetPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	if cached, err := s.cacheSvc.GetPlans(ctx); err == nil && cached != nil {
		return cached, nil
	}

	plans, err := s.planRepo.ListByPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	if err := s.cacheSvc.SetPlans(ctx, plans, 10*time.Minute); err != nil {
		log.Printf("WARN: failed to cache plans: %v", err)
	}
	return plans, nil
}

func (s *subscriptionService) GetPlanByName(ctx context.Context, name string) (*models.SubscriptionPlan, error) {
	plan, err := s.planRepo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return plan, nil
}

// SeedPlans upserts the plan reference data and drops the plan cache.
func (s *subscriptionService) SeedPlans(ctx context.Context, plans []*models.SubscriptionPlan) error {
	for _, plan := range plans {
		if plan.ID == uuid.Nil {
			plan.ID = uuid.New()
		}
		if err := s.planRepo.Upsert(ctx, plan); err != nil {
			return fmt.Errorf("failed to seed plan %s: %w", plan.Name, err)
		}
	}
	if err := s.cacheSvc.InvalidatePlans(ctx); err != nil {
		log.Printf("WARN: failed to invalidate plan cache: %v", err)
	}
	return nil
}

// GetUsage returns the usage metrics for a subscription the user owns.
func (s *subscriptionService) GetUsage(ctx context.Context, userID, subscriptionID uuid.UUID) ([]*models.UsageMetric, error) {
	subscription, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if subscription.ID != subscriptionID {
		return nil, common.ErrNotFound
	}
	return s.usageRepo.List(ctx, subscriptionID)
}

// RecordUsage adds delta to the user's feature counter. Counts accumulate;
// they are never overwritten with the increment value.
func (s *subscriptionService) RecordUsage(ctx context.Context, userID uuid.UUID, feature string, delta int64) error {
	subscription, err := s.ensureLocalSubscription(ctx, userID)
	if err != nil {
		return err
	}
	return s.usageRepo.Increment(ctx, subscription.ID, feature, delta)
}

// CheckLimit returns common.ErrLimitExceeded when the user's plan limit for
// the feature is reached. A limit of -1 is unlimited.
func (s *subscriptionService) CheckLimit(ctx context.Context, userID uuid.UUID, feature string) error {
	subscription, err := s.ensureLocalSubscription(ctx, userID)
	if err != nil {
		return err
	}

	plan, err := s.planRepo.GetByName(ctx, subscription.PlanName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Unknown plan name: do not block the user on reference-data drift.
			log.Printf("WARN: subscription %s references unknown plan %q", subscription.ID, subscription.PlanName)
			return nil
		}
		return fmt.Errorf("failed to load plan: %w", err)
	}

	limit := plan.LimitFor(feature)
	if limit == models.UnlimitedLimit {
		return nil
	}

	metric, err := s.usageRepo.Get(ctx, subscription.ID, feature)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // nothing used yet
		}
		return fmt.Errorf("failed to load usage: %w", err)
	}

	if metric.UsageCount >= int64(limit) {
		return fmt.Errorf("%w: %s (%d/%d)", common.ErrLimitExceeded, feature, metric.UsageCount, limit)
	}
	return nil
}

// ensureLocalSubscription returns the user's subscription row, creating a
// local default-plan row when none exists so usage has somewhere to accrue.
func (s *subscriptionService) ensureLocalSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	subscription, err := s.subscriptionRepo.GetByUserID(ctx, userID)
	if err == nil {
		return subscription, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	plans, err := s.GetPlans(ctx)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, fmt.Errorf("no subscription plans configured")
	}

	subscription = &models.Subscription{
		ID:       uuid.New(),
		UserID:   userID,
		Status:   models.SubscriptionStatusActive,
		PlanName: plans[0].Name, // cheapest plan is the default tier
	}
	if err := s.subscriptionRepo.Upsert(ctx, subscription); err != nil {
		return nil, fmt.Errorf("failed to create default subscription: %w", err)
	}
	return subscription, nil
}

// CreateCheckoutSession lazily creates a billing customer and returns the
// provider-hosted checkout redirect URL.
func (s *subscriptionService) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, priceID string) (string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("failed to load user: %w", err)
	}

	customerID := ""
	if user.StripeCustomerID != nil {
		customerID = *user.StripeCustomerID
	}
	if customerID == "" {
		customer, err := s.CreateCustomer(ctx, userID, user.Email)
		if err != nil {
			return "", err
		}
		customerID = customer.ID
	}

	successURL := s.appURL + "/billing?success=true"
	cancelURL := s.appURL + "/billing?canceled=true"
	return s.billing.CreateCheckoutSession(ctx, customerID, priceID, successURL, cancelURL)
}

// CreatePortalSession returns the provider-hosted billing portal URL for
// the user's customer.
func (s *subscriptionService) CreatePortalSession(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("failed to load user: %w", err)
	}

	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", common.ErrNoCustomer
	}

	return s.billing.CreatePortalSession(ctx, *user.StripeCustomerID, s.appURL+"/billing")
}

// Reconcile compares local subscription state against the provider and
// applies any drift the webhooks missed. It runs from the background
// scheduler.
func (s *subscriptionService) Reconcile(ctx context.Context) error {
	statuses := []string{
		models.SubscriptionStatusPending,
		models.SubscriptionStatusActive,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusPaymentFailed,
	}

	// Collect every page up front. The updates below bump updated_at and
	// can move rows out of the status filter, which would shift later rows
	// across page boundaries mid-sweep.
	const pageSize = 100
	var subscriptions []*models.Subscription
	for offset := 0; ; offset += pageSize {
		page, err := s.subscriptionRepo.ListByStatus(ctx, statuses, pageSize, offset)
		if err != nil {
			return fmt.Errorf("failed to list subscriptions: %w", err)
		}
		subscriptions = append(subscriptions, page...)
		if len(page) < pageSize {
			break
		}
	}

	reconciled := 0
	for _, subscription := range subscriptions {
		if subscription.StripeSubscriptionID == nil || *subscription.StripeSubscriptionID == "" {
			continue // local-only row, nothing remote to compare
		}

		remote, err := s.billing.GetSubscription(ctx, *subscription.StripeSubscriptionID)
		if err != nil {
			log.Printf("WARN: reconcile: failed to fetch %s: %v", *subscription.StripeSubscriptionID, err)
			continue
		}

		mapped := MapProviderStatus(remote.Status)
		changed := subscription.CancelAtPeriodEnd != remote.CancelAtPeriodEnd
		if mapped != subscription.Status {
			if err := s.applyStatus(subscription, mapped); err != nil {
				log.Printf("WARN: reconcile: %v", err)
				continue
			}
			changed = true
		}
		if plan := s.planForPrice(ctx, remote.PriceID); plan != nil && plan.Name != subscription.PlanName {
			subscription.PlanName = plan.Name
			changed = true
		}
		if changed {
			subscription.CurrentPeriodStart = timePtr(remote.CurrentPeriodStart)
			subscription.CurrentPeriodEnd = timePtr(remote.CurrentPeriodEnd)
			subscription.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
			if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
				log.Printf("WARN: reconcile: failed to update %s: %v", subscription.ID, err)
				continue
			}
			reconciled++
		}
	}

	if reconciled > 0 {
		log.Printf("reconcile: applied %d subscription updates", reconciled)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() || t.Unix() == 0 {
		return nil
	}
	return &t
}
