package models

import (
	"time"

	"github.com/kestrelmarket/billing/pkg/types"

	"gorm.io/datatypes"
)

// SubscriptionPlan is reference data. Plans are seeded from config at
// startup and managed through the admin API; the billing engine only
// reads them.
type SubscriptionPlan struct {
	ID           string             `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Name         string             `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Description  string             `gorm:"column:description;type:text" json:"description"`
	Amount       float64            `gorm:"column:amount;type:decimal(12,2);not null" json:"amount"`
	Currency     string             `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	BillingCycle types.BillingCycle `gorm:"column:billing_cycle;type:varchar(16);not null" json:"billing_cycle"`
	TrialDays    int                `gorm:"column:trial_days;not null;default:0" json:"trial_days"`
	IsActive     bool               `gorm:"column:is_active;not null;default:true" json:"is_active"`
	SortOrder    int                `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
	// Features stores plan feature flags and limits as JSON
	// (for example: {"unlimited_listings": true, "featured_properties": 10}).
	Features  datatypes.JSONMap `gorm:"column:features;type:jsonb;default:'{}'" json:"features"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// NextPaymentFrom returns t advanced by one billing cycle using calendar
// arithmetic, so a monthly cycle started Jan 31 lands on the civil month
// boundary rather than a fixed 30 days.
func (p *SubscriptionPlan) NextPaymentFrom(t time.Time) time.Time {
	if p != nil && p.BillingCycle == types.BillingCycleYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}
