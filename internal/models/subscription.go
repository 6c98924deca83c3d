package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses. A row starts as pending before the remote
// subscription exists, then follows provider-driven transitions.
const (
	SubscriptionStatusPending       = "pending"
	SubscriptionStatusActive        = "active"
	SubscriptionStatusPastDue       = "past_due"
	SubscriptionStatusCanceled      = "canceled"
	SubscriptionStatusPaymentFailed = "payment_failed"
)

type Subscription struct {
	ID                   uuid.UUID  `json:"id" db:"id"`
	UserID               uuid.UUID  `json:"user_id" db:"user_id"`
	StripeCustomerID     string     `json:"stripe_customer_id" db:"stripe_customer_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id" db:"stripe_subscription_id"`
	Status               string     `json:"status" db:"status"`
	PlanName             string     `json:"plan_name" db:"plan_name"`
	CurrentPeriodStart   *time.Time `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end" db:"current_period_end"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}
