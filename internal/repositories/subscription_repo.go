package repositories

import (
	"context"

	"buildledger/internal/models"

	"github.com/google/uuid"
)

type SubscriptionRepository interface {
	// Upsert enforces the one-subscription-per-user invariant: a second
	// insert for the same user overwrites the existing row.
	Upsert(ctx context.Context, subscription *models.Subscription) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*models.Subscription, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Subscription, error)
	Update(ctx context.Context, subscription *models.Subscription) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]*models.Subscription, error)
}

type subscriptionRepo struct {
	db DB
}

func NewSubscriptionRepo(db DB) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

func (r *subscriptionRepo) Upsert(ctx context.Context, subscription *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, stripe_customer_id, stripe_subscription_id, status, plan_name, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			status = EXCLUDED.status,
			plan_name = EXCLUDED.plan_name,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, subscription.ID, subscription.UserID, subscription.StripeCustomerID, subscription.StripeSubscriptionID, subscription.Status, subscription.PlanName, subscription.CurrentPeriodStart, subscription.CurrentPeriodEnd, subscription.CancelAtPeriodEnd)
	return err
}

func (r *subscriptionRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	subscription := &models.Subscription{}
	query := `
		SELECT id, user_id, stripe_customer_id, stripe_subscription_id, status, plan_name, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(&subscription.ID, &subscription.UserID, &subscription.StripeCustomerID, &subscription.StripeSubscriptionID, &subscription.Status, &subscription.PlanName, &subscription.CurrentPeriodStart, &subscription.CurrentPeriodEnd, &subscription.CancelAtPeriodEnd, &subscription.CreatedAt, &subscription.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return subscription, nil
}

func (r *subscriptionRepo) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*models.Subscription, error) {
	subscription := &models.Subscription{}
	query := `
		SELECT id, user_id, stripe_customer_id, stripe_subscription_id, status, plan_name, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at
		FROM subscriptions
		WHERE stripe_subscription_id = $1
	`
	err := r.db.QueryRow(ctx, query, stripeSubID).Scan(&subscription.ID, &subscription.UserID, &subscription.StripeCustomerID, &subscription.StripeSubscriptionID, &subscription.Status, &subscription.PlanName, &subscription.CurrentPeriodStart, &subscription.CurrentPeriodEnd, &subscription.CancelAtPeriodEnd, &subscription.CreatedAt, &subscription.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return subscription, nil
}

func (r *subscriptionRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	subscription := &models.Subscription{}
	query := `
		SELECT id, user_id, stripe_customer_id, stripe_subscription_id, status, plan_name, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at
		FROM subscriptions
		WHERE stripe_customer_id = $1
	`
	err := r.db.QueryRow(ctx, query, customerID).Scan(&subscription.ID, &subscription.UserID, &subscription.StripeCustomerID, &subscription.StripeSubscriptionID, &subscription.Status, &subscription.PlanName, &subscription.CurrentPeriodStart, &subscription.CurrentPeriodEnd, &subscription.CancelAtPeriodEnd, &subscription.CreatedAt, &subscription.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return subscription, nil
}

func (r *subscriptionRepo) Update(ctx context.Context, subscription *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET stripe_customer_id = $1, stripe_subscription_id = $2, status = $3, plan_name = $4, current_period_start = $5, current_period_end = $6, cancel_at_period_end = $7, updated_at = NOW()
		WHERE id = $8
	`
	_, err := r.db.Exec(ctx, query, subscription.StripeCustomerID, subscription.StripeSubscriptionID, subscription.Status, subscription.PlanName, subscription.CurrentPeriodStart, subscription.CurrentPeriodEnd, subscription.CancelAtPeriodEnd, subscription.ID)
	return err
}

func (r *subscriptionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE subscriptions
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.Exec(ctx, query, status, id)
	return err
}

// ListByStatus pages through subscriptions in the given statuses. The
// reconciliation sweep uses it to find rows worth re-checking remotely.
func (r *subscriptionRepo) ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]*models.Subscription, error) {
	query := `
		SELECT id, user_id, stripe_customer_id, stripe_subscription_id, status, plan_name, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at
		FROM subscriptions
		WHERE status = ANY($1)
		ORDER BY updated_at ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, statuses, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscriptions []*models.Subscription
	for rows.Next() {
		subscription := &models.Subscription{}
		if err := rows.Scan(&subscription.ID, &subscription.UserID, &subscription.StripeCustomerID, &subscription.StripeSubscriptionID, &subscription.Status, &subscription.PlanName, &subscription.CurrentPeriodStart, &subscription.CurrentPeriodEnd, &subscription.CancelAtPeriodEnd, &subscription.CreatedAt, &subscription.UpdatedAt); err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, rows.Err()
}
