package models

import (
	"time"

	"github.com/kestrelmarket/billing/pkg/types"

	"gorm.io/datatypes"
)

// SubscriptionPaymentMeta snapshots the plan at charge time so later plan
// edits do not rewrite payment history.
type SubscriptionPaymentMeta struct {
	PlanID       string             `json:"plan_id,omitempty"`
	PlanName     string             `json:"plan_name,omitempty"`
	BillingCycle types.BillingCycle `json:"billing_cycle,omitempty"`
	// RenewalOf holds the subscription's previous NextPaymentDate when the
	// payment was created by the auto-renewal sweep.
	RenewalOf *time.Time `json:"renewal_of,omitempty"`
}

// SubscriptionPayment is an append-only ledger entry per attempted charge.
// TransactionReference is the idempotency key: applying an outcome to a
// reference whose payment is already terminal is a no-op.
type SubscriptionPayment struct {
	ID             string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string `gorm:"column:subscription_id;type:uuid;not null;index" json:"subscription_id"`
	VendorID       string `gorm:"column:vendor_id;type:varchar(64);not null;index" json:"vendor_id"`

	Amount   float64 `gorm:"column:amount;type:decimal(12,2);not null" json:"amount"`
	Currency string  `gorm:"column:currency;type:varchar(8);not null" json:"currency"`

	TransactionReference string              `gorm:"column:transaction_reference;type:varchar(128);not null;uniqueIndex" json:"transaction_reference"`
	Status               types.PaymentStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	PaidAt               *time.Time          `gorm:"column:paid_at" json:"paid_at"`
	FailureReason        *string             `gorm:"column:failure_reason;type:varchar(255)" json:"failure_reason"`

	Metadata  datatypes.JSONType[*SubscriptionPaymentMeta] `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time                                    `json:"created_at"`
	UpdatedAt time.Time                                    `json:"updated_at"`
}

func (SubscriptionPayment) TableName() string {
	return "subscription_payments"
}
