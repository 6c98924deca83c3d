package models

import (
	"time"

	"github.com/google/uuid"
)

// UnlimitedLimit marks a plan limit as unbounded.
const UnlimitedLimit = -1

type SubscriptionPlan struct {
	ID               uuid.UUID `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	DisplayName      string    `json:"display_name" db:"display_name"`
	Price            float64   `json:"price" db:"price"`
	BillingCycle     string    `json:"billing_cycle" db:"billing_cycle"`
	StripePriceID    string    `json:"stripe_price_id" db:"stripe_price_id"`
	Features         []string  `json:"features" db:"features"`
	InvoicesLimit    int       `json:"invoices_limit" db:"invoices_limit"`
	StorageLimitMB   int       `json:"storage_limit_mb" db:"storage_limit_mb"`
	TeamMembersLimit int       `json:"team_members_limit" db:"team_members_limit"`
	APICallsPerMonth int       `json:"api_calls_per_month" db:"api_calls_per_month"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// LimitFor returns the plan limit for a usage feature, or UnlimitedLimit
// when the feature is not metered by the plan.
func (p *SubscriptionPlan) LimitFor(feature string) int {
	switch feature {
	case UsageFeatureInvoices:
		return p.InvoicesLimit
	case UsageFeatureStorageMB:
		return p.StorageLimitMB
	case UsageFeatureTeamMembers:
		return p.TeamMembersLimit
	case UsageFeatureAPICalls:
		return p.APICallsPerMonth
	default:
		return UnlimitedLimit
	}
}
