package models

import (
	"time"

	"github.com/kestrelmarket/billing/pkg/types"
)

// Subscription is the evolving lifecycle record for a vendor. It is never
// hard-deleted: cancellation and expiry are terminal states. The record a
// vendor's access is judged by is the one VendorAccess points at; older
// records are retained as history.
//
// Invariants maintained by the billing state machine:
//   - TrialEndDate and NextPaymentDate are set while status is trial/active.
//   - EndDate is set only for cancelled/expired records.
//   - RemindersSent only ever increases (0..3).
type Subscription struct {
	ID       string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	VendorID string `gorm:"column:vendor_id;type:varchar(64);not null;index:idx_vendor_created,priority:1" json:"vendor_id"`
	// PlanID is nullable; a missing or deleted plan falls back to the
	// configured default plan.
	PlanID   *string                  `gorm:"column:plan_id;type:varchar(64)" json:"plan_id"`
	PlanName string                   `gorm:"column:plan_name;type:varchar(128)" json:"plan_name"`
	Status   types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Amount   float64                  `gorm:"column:amount;type:decimal(12,2);not null" json:"amount"`
	Currency string                   `gorm:"column:currency;type:varchar(8);not null" json:"currency"`

	TrialEndDate    *time.Time `gorm:"column:trial_end_date" json:"trial_end_date"`
	NextPaymentDate *time.Time `gorm:"column:next_payment_date" json:"next_payment_date"`
	LastPaymentDate *time.Time `gorm:"column:last_payment_date" json:"last_payment_date"`
	EndDate         *time.Time `gorm:"column:end_date" json:"end_date"`

	AutoRenew        bool       `gorm:"column:auto_renew;not null;default:true" json:"auto_renew"`
	SuspensionReason *string    `gorm:"column:suspension_reason;type:varchar(255)" json:"suspension_reason"`
	LastPaymentAttempt *time.Time `gorm:"column:last_payment_attempt" json:"last_payment_attempt"`
	// RemindersSent tracks the highest trial-expiry reminder tier already
	// delivered (0 none, 1 at <=7d, 2 at <=3d, 3 at <=1d).
	RemindersSent int `gorm:"column:reminders_sent;not null;default:0" json:"reminders_sent"`

	CreatedAt time.Time `gorm:"index:idx_vendor_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// InTrial reports whether the trial window is still open at now,
// independently of whether the scheduler has swept the record yet.
func (s *Subscription) InTrial(now time.Time) bool {
	return s != nil && s.Status == types.SubscriptionStatusTrial &&
		s.TrialEndDate != nil && s.TrialEndDate.After(now)
}

// ActiveAt reports whether an active subscription's paid period covers now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s != nil && s.Status == types.SubscriptionStatusActive &&
		(s.EndDate == nil || s.EndDate.After(now))
}
