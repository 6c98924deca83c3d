package services

import (
	"context"
	"time"

	"buildledger/internal/models"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// BillingCustomer is the provider-side customer record.
type BillingCustomer struct {
	ID    string
	Email string
}

// BillingSubscription is the provider-side subscription state the rest of
// the system cares about.
type BillingSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// BillingProvider wraps the payment provider API. The production
// implementation talks to Stripe; tests substitute a fake.
type BillingProvider interface {
	CreateCustomer(ctx context.Context, email, name string, userID uuid.UUID) (*BillingCustomer, error)
	GetCustomer(ctx context.Context, customerID string) (*BillingCustomer, error)
	CreateSubscription(ctx context.Context, customerID, priceID string) (*BillingSubscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*BillingSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*BillingSubscription, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error)
}

type stripeService struct {
	api           *client.API
	webhookSecret string
}

// NewStripeService creates a Stripe-backed BillingProvider. The client is
// constructed once and injected, not taken from the SDK's global key.
func NewStripeService(secretKey, webhookSecret string) BillingProvider {
	return &stripeService{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

func (s *stripeService) CreateCustomer(ctx context.Context, email, name string, userID uuid.UUID) (*BillingCustomer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID.String())

	cust, err := s.api.Customers.New(params)
	if err != nil {
		return nil, err
	}
	return &BillingCustomer{ID: cust.ID, Email: cust.Email}, nil
}

func (s *stripeService) GetCustomer(ctx context.Context, customerID string) (*BillingCustomer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := s.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, err
	}
	return &BillingCustomer{ID: cust.ID, Email: cust.Email}, nil
}

func (s *stripeService) CreateSubscription(ctx context.Context, customerID, priceID string) (*BillingSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := s.api.Subscriptions.New(params)
	if err != nil {
		return nil, err
	}
	return billingSubscriptionFromStripe(sub), nil
}

func (s *stripeService) GetSubscription(ctx context.Context, subscriptionID string) (*BillingSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return billingSubscriptionFromStripe(sub), nil
}

func (s *stripeService) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*BillingSubscription, error) {
	if atPeriodEnd {
		params := &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		params.Context = ctx
		sub, err := s.api.Subscriptions.Update(subscriptionID, params)
		if err != nil {
			return nil, err
		}
		return billingSubscriptionFromStripe(sub), nil
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return billingSubscriptionFromStripe(sub), nil
}

func (s *stripeService) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Context = ctx
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

func (s *stripeService) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

func (s *stripeService) ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, s.webhookSecret)
}

func billingSubscriptionFromStripe(sub *stripe.Subscription) *BillingSubscription {
	bs := &BillingSubscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		bs.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		bs.PriceID = sub.Items.Data[0].Price.ID
	}
	return bs
}

// MapProviderStatus maps a Stripe subscription status onto the local status
// enum.
func MapProviderStatus(providerStatus string) string {
	switch providerStatus {
	case "active", "trialing":
		return models.SubscriptionStatusActive
	case "past_due":
		return models.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	case "unpaid":
		return models.SubscriptionStatusPaymentFailed
	default:
		return models.SubscriptionStatusPending
	}
}
