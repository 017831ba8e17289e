package billing

import (
	"fmt"
	"time"

	models "github.com/kestrelmarket/billing/internal/models"
	types "github.com/kestrelmarket/billing/pkg/types"
)

// AccessSummary is what request-time authorization and the UI consume.
type AccessSummary struct {
	Status        types.SubscriptionStatus `json:"status"`
	CanAccess     bool                     `json:"can_access"`
	NeedsPayment  bool                     `json:"needs_payment"`
	DaysRemaining int                      `json:"days_remaining"`
	Message       string                   `json:"message"`
}

// ComputeAccess derives the effective access state from raw dates, not the
// persisted status field, so a trial that lapsed a second ago reads as
// expired even before the scheduler has swept it. Pure; safe to call
// anywhere.
func ComputeAccess(sub *models.Subscription, now time.Time) AccessSummary {
	if sub == nil {
		return AccessSummary{
			Status:  types.SubscriptionStatusNone,
			Message: "No subscription found",
		}
	}

	switch sub.Status {
	case types.SubscriptionStatusTrial:
		days := 0
		if sub.TrialEndDate != nil {
			days = daysUntil(*sub.TrialEndDate, now)
		}
		if days <= 0 {
			return AccessSummary{
				Status:       types.SubscriptionStatusExpired,
				NeedsPayment: true,
				Message:      "Trial expired - Payment required",
			}
		}
		msg := fmt.Sprintf("Free trial - %d days remaining", days)
		if days <= 7 {
			msg = fmt.Sprintf("Trial ends in %d days", days)
		}
		return AccessSummary{
			Status:        types.SubscriptionStatusTrial,
			CanAccess:     true,
			DaysRemaining: days,
			Message:       msg,
		}

	case types.SubscriptionStatusActive:
		if sub.EndDate != nil && !sub.EndDate.After(now) {
			return AccessSummary{
				Status:       types.SubscriptionStatusExpired,
				NeedsPayment: true,
				Message:      "Subscription expired",
			}
		}
		days := 0
		if sub.EndDate != nil {
			days = daysUntil(*sub.EndDate, now)
		}
		return AccessSummary{
			Status:        types.SubscriptionStatusActive,
			CanAccess:     true,
			DaysRemaining: days,
			Message:       "Subscription active",
		}

	case types.SubscriptionStatusExpired:
		return AccessSummary{
			Status:       types.SubscriptionStatusExpired,
			NeedsPayment: true,
			Message:      "Payment required - Account suspended",
		}

	case types.SubscriptionStatusPendingPayment, types.SubscriptionStatusPaymentFailed:
		return AccessSummary{
			Status:       sub.Status,
			NeedsPayment: true,
			Message:      "Payment required",
		}

	case types.SubscriptionStatusSuspended:
		// Suspension is lifted by an operator, not by paying.
		return AccessSummary{
			Status:  types.SubscriptionStatusSuspended,
			Message: "Account suspended - Contact admin",
		}

	case types.SubscriptionStatusCancelled:
		return AccessSummary{
			Status:  types.SubscriptionStatusCancelled,
			Message: "Subscription cancelled",
		}
	}

	return AccessSummary{Status: sub.Status}
}
