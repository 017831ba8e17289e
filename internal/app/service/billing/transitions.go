package billing

import (
	"time"

	models "github.com/kestrelmarket/billing/internal/models"
	types "github.com/kestrelmarket/billing/pkg/types"
)

// The transition helpers below are the single source of truth for the
// lifecycle state machine. They mutate the record in place and report
// whether anything was applied; a false return means the event was not
// valid from the current state and the record is unchanged. Callers treat
// "not applied" as success (safe blind retry), never as an error.

// activateOnPayment applies a confirmed charge. Valid from pending_payment,
// payment_failed, expired and trial (paying before the trial ends).
func activateOnPayment(sub *models.Subscription, plan *models.SubscriptionPlan, now time.Time) bool {
	switch sub.Status {
	case types.SubscriptionStatusPendingPayment, types.SubscriptionStatusPaymentFailed,
		types.SubscriptionStatusExpired, types.SubscriptionStatusTrial:
	default:
		return false
	}

	next := plan.NextPaymentFrom(now)
	sub.Status = types.SubscriptionStatusActive
	sub.LastPaymentDate = &now
	sub.NextPaymentDate = &next
	sub.EndDate = &next
	sub.LastPaymentAttempt = nil
	sub.SuspensionReason = nil
	return true
}

// markPaymentFailed records a definitive charge failure. Only a record
// waiting on that charge moves; anything else stays put.
func markPaymentFailed(sub *models.Subscription, now time.Time) bool {
	if sub.Status != types.SubscriptionStatusPendingPayment {
		return false
	}
	sub.Status = types.SubscriptionStatusPaymentFailed
	sub.LastPaymentAttempt = &now
	return true
}

func expireTrial(sub *models.Subscription, now time.Time) bool {
	if sub.Status != types.SubscriptionStatusTrial {
		return false
	}
	if sub.TrialEndDate == nil || !sub.TrialEndDate.Before(now) {
		return false
	}
	end := *sub.TrialEndDate
	sub.Status = types.SubscriptionStatusExpired
	sub.EndDate = &end
	sub.LastPaymentAttempt = nil
	return true
}

func expireActive(sub *models.Subscription, now time.Time) bool {
	if sub.Status != types.SubscriptionStatusActive {
		return false
	}
	if sub.EndDate == nil || !sub.EndDate.Before(now) {
		return false
	}
	sub.Status = types.SubscriptionStatusExpired
	return true
}

// beginRenewal moves an active auto-renewing record into pending_payment.
// There is no stored card on file, so renewal means asking the vendor to
// pay manually; LastPaymentAttempt starts the overdue-suspension clock.
func beginRenewal(sub *models.Subscription, now time.Time) bool {
	if sub.Status != types.SubscriptionStatusActive || !sub.AutoRenew {
		return false
	}
	sub.Status = types.SubscriptionStatusPendingPayment
	sub.LastPaymentAttempt = &now
	return true
}

func suspend(sub *models.Subscription, reason string) bool {
	if sub.Status.Terminal() || sub.Status == types.SubscriptionStatusSuspended {
		return false
	}
	sub.Status = types.SubscriptionStatusSuspended
	sub.SuspensionReason = &reason
	sub.AutoRenew = false
	return true
}

func cancel(sub *models.Subscription, now time.Time) bool {
	if sub.Status.Terminal() {
		return false
	}
	sub.Status = types.SubscriptionStatusCancelled
	sub.EndDate = &now
	sub.AutoRenew = false
	return true
}

// reminderTier maps trial days remaining to the reminder tier that should
// have fired by now (0 = none yet). Tiers are cumulative: a subscription
// first seen at 2 days remaining goes straight to tier 2.
func reminderTier(daysRemaining int) int {
	switch {
	case daysRemaining <= 1:
		return 3
	case daysRemaining <= 3:
		return 2
	case daysRemaining <= 7:
		return 1
	default:
		return 0
	}
}

// daysUntil is a ceiling day count, matching how the UI reports
// "trial ends in N days". Negative once t has passed.
func daysUntil(t time.Time, now time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}
