package billing

import (
	"context"
	"fmt"
	"time"

	models "github.com/kestrelmarket/billing/internal/models"
	"github.com/kestrelmarket/billing/pkg/tool"
	types "github.com/kestrelmarket/billing/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Scheduler-facing operations. The scheduler only decides *when* to look;
// every state change still flows through the same guarded transitions the
// API path uses, so a record that a webhook already moved is skipped here.

// ExpireDueSubscriptions sweeps lapsed trials and lapsed active periods
// into expired. Per-record failures are logged and do not abort the sweep.
func (s *Service) ExpireDueSubscriptions(ctx context.Context) (expiredTrials, expiredActive int, err error) {
	now := s.now()

	var trials []*models.Subscription
	if err := s.db.WithContext(ctx).
		Where("status = ? AND trial_end_date < ?", types.SubscriptionStatusTrial, now).
		Find(&trials).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to query lapsed trials: %w", err)
	}
	for _, sub := range trials {
		if err := s.expireOne(ctx, sub, true); err != nil {
			s.logger(ctx).Errorw("trial_expiry_failed", "subscription_id", sub.ID, "err", err)
			continue
		}
		expiredTrials++
	}

	var actives []*models.Subscription
	if err := s.db.WithContext(ctx).
		Where("status = ? AND end_date < ?", types.SubscriptionStatusActive, now).
		Find(&actives).Error; err != nil {
		return expiredTrials, 0, fmt.Errorf("failed to query lapsed subscriptions: %w", err)
	}
	for _, sub := range actives {
		if err := s.expireOne(ctx, sub, false); err != nil {
			s.logger(ctx).Errorw("subscription_expiry_failed", "subscription_id", sub.ID, "err", err)
			continue
		}
		expiredActive++
	}
	return expiredTrials, expiredActive, nil
}

func (s *Service) expireOne(ctx context.Context, stale *models.Subscription, fromTrial bool) error {
	var events []types.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", stale.ID).First(&sub).Error; err != nil {
			return err
		}
		now := s.now()
		before := snapshot(&sub)
		var applied bool
		if fromTrial {
			applied = expireTrial(&sub, now)
		} else {
			applied = expireActive(&sub, now)
		}
		if !applied {
			// Another path (payment webhook, operator) moved it first.
			return nil
		}
		reason := types.SubscriptionChangeReasonExpire
		if fromTrial {
			reason = types.SubscriptionChangeReasonTrialExpire
			events = append(events, types.Event{
				Type:           types.EventTrialExpired,
				VendorID:       sub.VendorID,
				SubscriptionID: sub.ID,
			})
		}
		return s.saveWithLog(ctx, tx, before, &sub, reason)
	})
	if err != nil {
		return err
	}
	s.dispatch(ctx, events)
	return nil
}

// SendTrialExpiryReminders fires tiered trial-expiry warnings (<=7d, <=3d,
// <=1d). Each tier fires at most once per subscription: the update is
// guarded on reminders_sent so a concurrent sweep cannot double-send.
func (s *Service) SendTrialExpiryReminders(ctx context.Context) (sent int, err error) {
	now := s.now()
	window := now.AddDate(0, 0, 7)

	var expiring []*models.Subscription
	if err := s.db.WithContext(ctx).
		Where("status = ? AND trial_end_date > ? AND trial_end_date <= ?",
			types.SubscriptionStatusTrial, now, window).
		Find(&expiring).Error; err != nil {
		return 0, fmt.Errorf("failed to query expiring trials: %w", err)
	}

	for _, sub := range expiring {
		if sub.TrialEndDate == nil {
			continue
		}
		days := daysUntil(*sub.TrialEndDate, now)
		tier := reminderTier(days)
		if tier <= sub.RemindersSent {
			continue
		}
		res := s.db.WithContext(ctx).Model(&models.Subscription{}).
			Where("id = ? AND reminders_sent < ?", sub.ID, tier).
			Update("reminders_sent", tier)
		if res.Error != nil {
			s.logger(ctx).Errorw("reminder_update_failed", "subscription_id", sub.ID, "err", res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			// Lost the race to another sweep.
			continue
		}
		s.dispatch(ctx, []types.Event{{
			Type:           types.EventTrialExpiring,
			VendorID:       sub.VendorID,
			SubscriptionID: sub.ID,
			Data:           map[string]any{"days_remaining": days},
		}})
		sent++
	}
	return sent, nil
}

// ProcessDuePayments attempts renewal for subscriptions whose next payment
// falls within today's calendar day.
func (s *Service) ProcessDuePayments(ctx context.Context) (int, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var due []*models.Subscription
	if err := s.db.WithContext(ctx).
		Where("status = ? AND auto_renew = ? AND next_payment_date >= ? AND next_payment_date < ?",
			types.SubscriptionStatusActive, true, dayStart, dayEnd).
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("failed to query due payments: %w", err)
	}
	return s.renewAll(ctx, due), nil
}

// ProcessAutoRenewals is the catch-up pass: anything active and auto-renew
// whose next payment date has already passed, e.g. missed during downtime.
func (s *Service) ProcessAutoRenewals(ctx context.Context) (int, error) {
	var due []*models.Subscription
	if err := s.db.WithContext(ctx).
		Where("status = ? AND auto_renew = ? AND next_payment_date <= ?",
			types.SubscriptionStatusActive, true, s.now()).
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("failed to query auto-renewals: %w", err)
	}
	return s.renewAll(ctx, due), nil
}

func (s *Service) renewAll(ctx context.Context, subs []*models.Subscription) int {
	renewed := 0
	for _, sub := range subs {
		if err := s.beginRenewalOne(ctx, sub.ID); err != nil {
			s.logger(ctx).Errorw("auto_renewal_failed", "subscription_id", sub.ID, "err", err)
			continue
		}
		renewed++
	}
	return renewed
}

// beginRenewalOne creates a pending renewal charge and moves the record to
// pending_payment. There is no card on file, so the vendor is notified
// that a manual payment is required rather than being charged silently.
// The due-payment and catch-up sweeps can both pick the same record; the
// state guard makes the second attempt a no-op.
func (s *Service) beginRenewalOne(ctx context.Context, subscriptionID string) error {
	var events []types.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The due-payment and catch-up sweeps select overlapping sets; the
		// lock makes whichever transaction lands second observe the moved
		// status and skip, so one cycle never yields two renewal charges.
		var sub models.Subscription
		if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", subscriptionID).First(&sub).Error; err != nil {
			return err
		}
		plan, err := s.planForSubscription(ctx, tx, &sub)
		if err != nil {
			return err
		}
		now := s.now()
		previousDue := sub.NextPaymentDate
		before := snapshot(&sub)
		if !beginRenewal(&sub, now) {
			return nil
		}
		if err := s.saveWithLog(ctx, tx, before, &sub, types.SubscriptionChangeReasonRenewalAttempt); err != nil {
			return err
		}

		payment := &models.SubscriptionPayment{
			ID:                   tool.GenerateUUIDV7(),
			SubscriptionID:       sub.ID,
			VendorID:             sub.VendorID,
			Amount:               plan.Amount,
			Currency:             plan.Currency,
			TransactionReference: tool.GeneratePaymentReference(),
			Status:               types.PaymentStatusPending,
			Metadata: datatypes.NewJSONType(&models.SubscriptionPaymentMeta{
				PlanID:       plan.ID,
				PlanName:     plan.Name,
				BillingCycle: plan.BillingCycle,
				RenewalOf:    previousDue,
			}),
		}
		if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
			return fmt.Errorf("failed to create renewal payment: %w", err)
		}
		events = append(events, types.Event{
			Type:           types.EventPaymentRequired,
			VendorID:       sub.VendorID,
			SubscriptionID: sub.ID,
			Data: map[string]any{
				"amount":    plan.Amount,
				"reference": payment.TransactionReference,
			},
		})
		return nil
	})
	if err != nil {
		return err
	}
	s.dispatch(ctx, events)
	return nil
}

// OverdueSuspensionReason is stamped onto subscriptions suspended by the
// overdue sweep.
const OverdueSuspensionReason = "payment overdue > 7 days"

// SuspendOverdueAccounts suspends subscriptions stuck in payment_failed or
// pending_payment for longer than the configured overdue window.
func (s *Service) SuspendOverdueAccounts(ctx context.Context, overdueAfter time.Duration) (int, error) {
	cutoff := s.now().Add(-overdueAfter)

	var overdue []*models.Subscription
	if err := s.db.WithContext(ctx).
		Where("status IN ? AND last_payment_attempt IS NOT NULL AND last_payment_attempt <= ?",
			[]types.SubscriptionStatus{types.SubscriptionStatusPaymentFailed, types.SubscriptionStatusPendingPayment},
			cutoff).
		Find(&overdue).Error; err != nil {
		return 0, fmt.Errorf("failed to query overdue subscriptions: %w", err)
	}

	suspended := 0
	for _, sub := range overdue {
		if err := s.SuspendVendor(ctx, sub.VendorID, OverdueSuspensionReason); err != nil {
			s.logger(ctx).Errorw("overdue_suspension_failed", "vendor_id", sub.VendorID, "err", err)
			continue
		}
		suspended++
	}
	return suspended, nil
}

// SchedulerSnapshot summarizes lifecycle counts for the scheduler health
// endpoint.
type SchedulerSnapshot struct {
	ActiveSubscriptions  int64 `json:"active_subscriptions"`
	TrialSubscriptions   int64 `json:"trial_subscriptions"`
	ExpiredSubscriptions int64 `json:"expired_subscriptions"`
}

func (s *Service) SchedulerSnapshot(ctx context.Context) (*SchedulerSnapshot, error) {
	snap := &SchedulerSnapshot{}
	counts := []struct {
		status types.SubscriptionStatus
		dst    *int64
	}{
		{types.SubscriptionStatusActive, &snap.ActiveSubscriptions},
		{types.SubscriptionStatusTrial, &snap.TrialSubscriptions},
		{types.SubscriptionStatusExpired, &snap.ExpiredSubscriptions},
	}
	for _, c := range counts {
		if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
			Where("status = ?", c.status).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s subscriptions: %w", c.status, err)
		}
	}
	return snap, nil
}
