package models

import (
	"time"

	"github.com/kestrelmarket/billing/pkg/types"

	"gorm.io/datatypes"
)

// SubscriptionLog is the append-only audit trail of lifecycle transitions.
// Before is null for the first record of a vendor.
type SubscriptionLog struct {
	ID             string                              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	VendorID       string                              `gorm:"column:vendor_id;type:varchar(64);not null;index" json:"vendor_id"`
	SubscriptionID string                              `gorm:"column:subscription_id;type:uuid;not null;index" json:"subscription_id"`
	Reason         types.SubscriptionChangeReason      `gorm:"column:reason;type:varchar(32);not null" json:"reason"`
	Before         datatypes.JSONType[*Subscription]   `gorm:"column:before;type:jsonb" json:"before"`
	After          datatypes.JSONType[*Subscription]   `gorm:"column:after;type:jsonb" json:"after"`
	Extra          datatypes.JSONMap                   `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt      time.Time                           `json:"created_at"`
}

func (SubscriptionLog) TableName() string {
	return "subscription_logs"
}
