package models

import "time"

// VendorAccess is the explicit vendor -> current subscription relation.
// Lifecycle operations always resolve the authoritative record through this
// row instead of relying on "latest by created_at". IsActive is the account
// access flag toggled by suspension and reactivation.
type VendorAccess struct {
	VendorID              string    `gorm:"column:vendor_id;type:varchar(64);primary_key" json:"vendor_id"`
	CurrentSubscriptionID string    `gorm:"column:current_subscription_id;type:uuid;not null" json:"current_subscription_id"`
	IsActive              bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (VendorAccess) TableName() string {
	return "vendor_access"
}
