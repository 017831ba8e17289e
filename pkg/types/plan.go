package types

// PlanSeed describes a subscription plan in the config file. Seeds are
// upserted into the subscription_plans table at startup; the table is the
// source of truth afterwards.
type PlanSeed struct {
	ID           string         `json:"id" mapstructure:"id"`
	Name         string         `json:"name" mapstructure:"name"`
	Description  string         `json:"description" mapstructure:"description"`
	Amount       float64        `json:"amount" mapstructure:"amount"`
	Currency     string         `json:"currency" mapstructure:"currency"`
	BillingCycle BillingCycle   `json:"billing_cycle" mapstructure:"billing_cycle"`
	TrialDays    int            `json:"trial_days" mapstructure:"trial_days"`
	IsActive     bool           `json:"is_active" mapstructure:"is_active"`
	SortOrder    int            `json:"sort_order" mapstructure:"sort_order"`
	Features     map[string]any `json:"features" mapstructure:"features"`
}
