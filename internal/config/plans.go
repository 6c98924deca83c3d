package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// PlansConfig is the TOML seed file for subscription plans. Plans are
// reference data maintained out-of-band and upserted into the database at
// startup.
type PlansConfig struct {
	Plans []PlanSeed `toml:"plans"`
}

// PlanSeed is one plan entry. A limit of -1 means unlimited.
type PlanSeed struct {
	Name             string   `toml:"name"`
	DisplayName      string   `toml:"display_name"`
	Price            float64  `toml:"price"`
	BillingCycle     string   `toml:"billing_cycle"`
	StripePriceID    string   `toml:"stripe_price_id"`
	Features         []string `toml:"features"`
	InvoicesLimit    int      `toml:"invoices_limit"`
	StorageLimitMB   int      `toml:"storage_limit_mb"`
	TeamMembersLimit int      `toml:"team_members_limit"`
	APICallsPerMonth int      `toml:"api_calls_per_month"`
}

// LoadPlans loads the plan seed file.
func LoadPlans(filename string) (*PlansConfig, error) {
	plans := &PlansConfig{}
	_, err := toml.DecodeFile(filename, plans)
	if err != nil {
		return nil, fmt.Errorf("failed to load plans file: %w", err)
	}
	if len(plans.Plans) == 0 {
		return nil, fmt.Errorf("plans file %s defines no plans", filename)
	}
	return plans, nil
}
