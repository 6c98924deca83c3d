package models

import (
	"time"

	"github.com/google/uuid"
)

// Metered usage features.
const (
	UsageFeatureInvoices    = "invoices"
	UsageFeatureStorageMB   = "storage_mb"
	UsageFeatureTeamMembers = "team_members"
	UsageFeatureAPICalls    = "api_calls"
)

// UsageMetric is one per-feature counter for a subscription.
type UsageMetric struct {
	SubscriptionID uuid.UUID `json:"subscription_id" db:"subscription_id"`
	Feature        string    `json:"feature" db:"feature"`
	UsageCount     int64     `json:"usage_count" db:"usage_count"`
	LastUpdated    time.Time `json:"last_updated" db:"last_updated"`
}
