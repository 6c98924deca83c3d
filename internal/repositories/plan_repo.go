package repositories

import (
	"context"

	"buildledger/internal/models"
)

type PlanRepository interface {
	// Upsert seeds or refreshes a plan row keyed by name.
	Upsert(ctx context.Context, plan *models.SubscriptionPlan) error
	GetByName(ctx context.Context, name string) (*models.SubscriptionPlan, error)
	GetByStripePriceID(ctx context.Context, priceID string) (*models.SubscriptionPlan, error)
	ListByPrice(ctx context.Context) ([]*models.SubscriptionPlan, error)
}

type planRepo struct {
	db DB
}

func NewPlanRepo(db DB) PlanRepository {
	return &planRepo{db: db}
}

func (r *planRepo) Upsert(ctx context.Context, plan *models.SubscriptionPlan) error {
	query := `
		INSERT INTO subscription_plans (id, name, display_name, price, billing_cycle, stripe_price_id, features, invoices_limit, storage_limit_mb, team_members_limit, api_calls_per_month, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (name)
		DO UPDATE SET
			display_name = EXCLUDED.display_name,
			price = EXCLUDED.price,
			billing_cycle = EXCLUDED.billing_cycle,
			stripe_price_id = EXCLUDED.stripe_price_id,
			features = EXCLUDED.features,
			invoices_limit = EXCLUDED.invoices_limit,
			storage_limit_mb = EXCLUDED.storage_limit_mb,
			team_members_limit = EXCLUDED.team_members_limit,
			api_calls_per_month = EXCLUDED.api_calls_per_month,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, plan.ID, plan.Name, plan.DisplayName, plan.Price, plan.BillingCycle, plan.StripePriceID, plan.Features, plan.InvoicesLimit, plan.StorageLimitMB, plan.TeamMembersLimit, plan.APICallsPerMonth)
	return err
}

func (r *planRepo) GetByName(ctx context.Context, name string) (*models.SubscriptionPlan, error) {
	plan := &models.SubscriptionPlan{}
	query := `
		SELECT id, name, display_name, price, billing_cycle, stripe_price_id, features, invoices_limit, storage_limit_mb, team_members_limit, api_calls_per_month, created_at, updated_at
		FROM subscription_plans
		WHERE name = $1
	`
	err := r.db.QueryRow(ctx, query, name).Scan(&plan.ID, &plan.Name, &plan.DisplayName, &plan.Price, &plan.BillingCycle, &plan.StripePriceID, &plan.Features, &plan.InvoicesLimit, &plan.StorageLimitMB, &plan.TeamMembersLimit, &plan.APICallsPerMonth, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepo) GetByStripePriceID(ctx context.Context, priceID string) (*models.SubscriptionPlan, error) {
	plan := &models.SubscriptionPlan{}
	query := `
		SELECT id, name, display_name, price, billing_cycle, stripe_price_id, features, invoices_limit, storage_limit_mb, team_members_limit, api_calls_per_month, created_at, updated_at
		FROM subscription_plans
		WHERE stripe_price_id = $1
	`
	err := r.db.QueryRow(ctx, query, priceID).Scan(&plan.ID, &plan.Name, &plan.DisplayName, &plan.Price, &plan.BillingCycle, &plan.StripePriceID, &plan.Features, &plan.InvoicesLimit, &plan.StorageLimitMB, &plan.TeamMembersLimit, &plan.APICallsPerMonth, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepo) ListByPrice(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	query := `
		SELECT id, name, display_name, price, billing_cycle, stripe_price_id, features, invoices_limit, storage_limit_mb, team_members_limit, api_calls_per_month, created_at, updated_at
		FROM subscription_plans
		ORDER BY price ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*models.SubscriptionPlan
	for rows.Next() {
		plan := &models.SubscriptionPlan{}
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.DisplayName, &plan.Price, &plan.BillingCycle, &plan.StripePriceID, &plan.Features, &plan.InvoicesLimit, &plan.StorageLimitMB, &plan.TeamMembersLimit, &plan.APICallsPerMonth, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}
