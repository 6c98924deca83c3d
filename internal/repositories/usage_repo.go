package repositories

import (
	"context"

	"buildledger/internal/models"

	"github.com/google/uuid"
)

type UsageRepository interface {
	// Increment adds delta to the feature counter, creating the row on first
	// use. The count never goes below zero.
	Increment(ctx context.Context, subscriptionID uuid.UUID, feature string, delta int64) error
	Get(ctx context.Context, subscriptionID uuid.UUID, feature string) (*models.UsageMetric, error)
	List(ctx context.Context, subscriptionID uuid.UUID) ([]*models.UsageMetric, error)
	Reset(ctx context.Context, subscriptionID uuid.UUID, feature string) error
}

type usageRepo struct {
	db DB
}

func NewUsageRepo(db DB) UsageRepository {
	return &usageRepo{db: db}
}

func (r *usageRepo) Increment(ctx context.Context, subscriptionID uuid.UUID, feature string, delta int64) error {
	query := `
		INSERT INTO subscription_usage (subscription_id, feature, usage_count, last_updated)
		VALUES ($1, $2, GREATEST($3, 0), NOW())
		ON CONFLICT (subscription_id, feature)
		DO UPDATE SET
			usage_count = GREATEST(subscription_usage.usage_count + $3, 0),
			last_updated = NOW()
	`
	_, err := r.db.Exec(ctx, query, subscriptionID, feature, delta)
	return err
}

func (r *usageRepo) Get(ctx context.Context, subscriptionID uuid.UUID, feature string) (*models.UsageMetric, error) {
	metric := &models.UsageMetric{}
	query := `
		SELECT subscription_id, feature, usage_count, last_updated
		FROM subscription_usage
		WHERE subscription_id = $1 AND feature = $2
	`
	err := r.db.QueryRow(ctx, query, subscriptionID, feature).Scan(&metric.SubscriptionID, &metric.Feature, &metric.UsageCount, &metric.LastUpdated)
	if err != nil {
		return nil, err
	}
	return metric, nil
}

func (r *usageRepo) List(ctx context.Context, subscriptionID uuid.UUID) ([]*models.UsageMetric, error) {
	query := `
		SELECT subscription_id, feature, usage_count, last_updated
		FROM subscription_usage
		WHERE subscription_id = $1
		ORDER BY feature ASC
	`
	rows, err := r.db.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*models.UsageMetric
	for rows.Next() {
		metric := &models.UsageMetric{}
		if err := rows.Scan(&metric.SubscriptionID, &metric.Feature, &metric.UsageCount, &metric.LastUpdated); err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}

func (r *usageRepo) Reset(ctx context.Context, subscriptionID uuid.UUID, feature string) error {
	query := `
		UPDATE subscription_usage
		SET usage_count = 0, last_updated = NOW()
		WHERE subscription_id = $1 AND feature = $2
	`
	_, err := r.db.Exec(ctx, query, subscriptionID, feature)
	return err
}
