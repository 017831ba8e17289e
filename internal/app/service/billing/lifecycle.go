package billing

import (
	"context"
	"errors"
	"fmt"

	models "github.com/kestrelmarket/billing/internal/models"
	"github.com/kestrelmarket/billing/pkg/tool"
	types "github.com/kestrelmarket/billing/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GetOrCreateSubscription returns the vendor's current subscription,
// provisioning a trial when none exists. This is what vendor onboarding
// and GET /subscription/current both go through.
func (s *Service) GetOrCreateSubscription(ctx context.Context, vendorID string) (*models.Subscription, error) {
	sub, err := s.CurrentSubscription(ctx, vendorID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.CreateTrial(ctx, vendorID)
}

// CreateTrial provisions a fresh trial subscription on the default plan.
func (s *Service) CreateTrial(ctx context.Context, vendorID string) (*models.Subscription, error) {
	if vendorID == "" {
		return nil, fmt.Errorf("%w: vendor id required", ErrValidation)
	}

	var sub *models.Subscription
	var events []types.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Another writer may have provisioned concurrently.
		if existing, err := s.currentSubscriptionTx(ctx, tx, vendorID); err == nil {
			sub = existing
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		plan, err := s.defaultPlan(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		trialEnd := now.AddDate(0, 0, plan.TrialDays)
		planID := plan.ID
		sub = &models.Subscription{
			ID:              tool.GenerateUUIDV7(),
			VendorID:        vendorID,
			PlanID:          &planID,
			PlanName:        plan.Name,
			Status:          types.SubscriptionStatusTrial,
			Amount:          plan.Amount,
			Currency:        plan.Currency,
			TrialEndDate:    &trialEnd,
			NextPaymentDate: &trialEnd,
			AutoRenew:       true,
		}
		if err := s.saveWithLog(ctx, tx, nil, sub, types.SubscriptionChangeReasonTrialStart); err != nil {
			return err
		}
		if err := s.setCurrent(ctx, tx, vendorID, sub.ID, true); err != nil {
			return err
		}
		events = append(events, types.Event{
			Type:           types.EventTrialStarted,
			VendorID:       vendorID,
			SubscriptionID: sub.ID,
			Data:           map[string]any{"trial_end_date": trialEnd},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trial subscription: %w", err)
	}
	s.dispatch(ctx, events)
	return sub, nil
}

// InitializePaymentResult carries everything the gateway needs to open a
// hosted payment session.
type InitializePaymentResult struct {
	Subscription *models.Subscription
	Payment      *models.SubscriptionPayment
	Plan         *models.SubscriptionPlan
}

// InitializePayment creates a pending ledger entry for a charge attempt.
// A vendor without a subscription gets a fresh record in pending_payment;
// an existing non-active record keeps its status (it resolves on payment
// outcome) but adopts the requested plan's pricing. Requesting a different
// plan while active is rejected: plan changes mid-cycle are not supported.
func (s *Service) InitializePayment(ctx context.Context, vendorID, planID string) (*InitializePaymentResult, error) {
	if vendorID == "" {
		return nil, fmt.Errorf("%w: vendor id required", ErrValidation)
	}

	res := &InitializePaymentResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.resolvePlan(ctx, tx, planID)
		if err != nil {
			return err
		}
		res.Plan = plan

		sub, err := s.currentSubscriptionForUpdate(ctx, tx, vendorID)
		switch {
		case errors.Is(err, ErrNotFound):
			pid := plan.ID
			sub = &models.Subscription{
				ID:       tool.GenerateUUIDV7(),
				VendorID: vendorID,
				PlanID:   &pid,
				PlanName: plan.Name,
				Status:   types.SubscriptionStatusPendingPayment,
				Amount:   plan.Amount,
				Currency: plan.Currency,
				AutoRenew: true,
			}
			if err := s.saveWithLog(ctx, tx, nil, sub, types.SubscriptionChangeReasonPaymentInit); err != nil {
				return err
			}
			if err := s.setCurrent(ctx, tx, vendorID, sub.ID, true); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if sub.Status.Terminal() {
				return fmt.Errorf("%w: subscription is cancelled", ErrConflict)
			}
			if sub.Status == types.SubscriptionStatusActive && sub.PlanID != nil && *sub.PlanID != plan.ID {
				return fmt.Errorf("%w: plan change while active is not supported", ErrConflict)
			}
			before := snapshot(sub)
			pid := plan.ID
			sub.PlanID = &pid
			sub.PlanName = plan.Name
			sub.Amount = plan.Amount
			sub.Currency = plan.Currency
			if err := s.saveWithLog(ctx, tx, before, sub, types.SubscriptionChangeReasonPaymentInit); err != nil {
				return err
			}
		}
		res.Subscription = sub

		res.Payment = &models.SubscriptionPayment{
			ID:                   tool.GenerateUUIDV7(),
			SubscriptionID:       sub.ID,
			VendorID:             vendorID,
			Amount:               plan.Amount,
			Currency:             plan.Currency,
			TransactionReference: tool.GeneratePaymentReference(),
			Status:               types.PaymentStatusPending,
			Metadata: datatypes.NewJSONType(&models.SubscriptionPaymentMeta{
				PlanID:       plan.ID,
				PlanName:     plan.Name,
				BillingCycle: plan.BillingCycle,
			}),
		}
		if err := tx.WithContext(ctx).Create(res.Payment).Error; err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UpdatePaymentReference swaps the provisional reference for the one the
// gateway assigned at session initialization. Idempotency lookups key on
// whatever reference the gateway will echo back.
func (s *Service) UpdatePaymentReference(ctx context.Context, paymentID, gatewayReference string) error {
	if gatewayReference == "" {
		return fmt.Errorf("%w: gateway reference required", ErrValidation)
	}
	result := s.db.WithContext(ctx).Model(&models.SubscriptionPayment{}).
		Where("id = ?", paymentID).
		Update("transaction_reference", gatewayReference)
	if result.Error != nil {
		return fmt.Errorf("failed to update payment reference: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	return nil
}

// PaymentByReference looks up a ledger entry by its idempotency key.
func (s *Service) PaymentByReference(ctx context.Context, reference string) (*models.SubscriptionPayment, error) {
	var payment models.SubscriptionPayment
	err := s.db.WithContext(ctx).Where("transaction_reference = ?", reference).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: payment reference %s", ErrNotFound, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &payment, nil
}

// PaymentOutcome reports what applying a gateway outcome did.
type PaymentOutcome struct {
	Payment      *models.SubscriptionPayment
	Subscription *models.Subscription
	// AlreadyApplied is true when the payment was terminal before this
	// call: a duplicate webhook or a verify/webhook race. No side effects
	// were re-run.
	AlreadyApplied bool
}

// ProcessPaymentSuccess applies a confirmed charge, keyed by transaction
// reference. Safe to call from the verify path and the webhook path
// concurrently: whichever lands first wins, the second sees the terminal
// payment and returns without re-emitting side effects.
func (s *Service) ProcessPaymentSuccess(ctx context.Context, reference string) (*PaymentOutcome, error) {
	out := &PaymentOutcome{}
	var events []types.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the payment row first: a verify call and a webhook for the
		// same reference serialize here, and the loser sees the terminal
		// status below instead of re-running side effects.
		var payment models.SubscriptionPayment
		err := forUpdate(tx.WithContext(ctx)).Where("transaction_reference = ?", reference).First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: payment reference %s", ErrNotFound, reference)
		}
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		out.Payment = &payment

		if payment.Status.Terminal() {
			out.AlreadyApplied = true
			var sub models.Subscription
			if err := tx.WithContext(ctx).Where("id = ?", payment.SubscriptionID).First(&sub).Error; err == nil {
				out.Subscription = &sub
			}
			return nil
		}

		now := s.now()
		payment.Status = types.PaymentStatusCompleted
		payment.PaidAt = &now
		if err := tx.WithContext(ctx).Save(&payment).Error; err != nil {
			return fmt.Errorf("failed to complete payment: %w", err)
		}

		var sub models.Subscription
		if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", payment.SubscriptionID).First(&sub).Error; err != nil {
			return fmt.Errorf("failed to load subscription %s: %w", payment.SubscriptionID, err)
		}
		plan, err := s.planForSubscription(ctx, tx, &sub)
		if err != nil {
			return err
		}

		before := snapshot(&sub)
		if activateOnPayment(&sub, plan, now) {
			if err := s.saveWithLog(ctx, tx, before, &sub, types.SubscriptionChangeReasonPaymentSuccess); err != nil {
				return err
			}
			if err := s.setAccessFlag(ctx, tx, sub.VendorID, true); err != nil {
				return err
			}
			events = append(events, types.Event{
				Type:           types.EventPaymentSucceeded,
				VendorID:       sub.VendorID,
				SubscriptionID: sub.ID,
				Data: map[string]any{
					"amount":            payment.Amount,
					"next_payment_date": sub.NextPaymentDate,
				},
			})
		}
		out.Subscription = &sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, events)
	return out, nil
}

// ProcessPaymentFailure records a definitive charge failure.
func (s *Service) ProcessPaymentFailure(ctx context.Context, reference, failureReason string) (*PaymentOutcome, error) {
	out := &PaymentOutcome{}
	var events []types.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.SubscriptionPayment
		err := forUpdate(tx.WithContext(ctx)).Where("transaction_reference = ?", reference).First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: payment reference %s", ErrNotFound, reference)
		}
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		out.Payment = &payment

		if payment.Status.Terminal() {
			out.AlreadyApplied = true
			return nil
		}

		now := s.now()
		payment.Status = types.PaymentStatusFailed
		if failureReason == "" {
			failureReason = "Payment failed"
		}
		payment.FailureReason = &failureReason
		if err := tx.WithContext(ctx).Save(&payment).Error; err != nil {
			return fmt.Errorf("failed to mark payment failed: %w", err)
		}

		var sub models.Subscription
		if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", payment.SubscriptionID).First(&sub).Error; err != nil {
			return fmt.Errorf("failed to load subscription %s: %w", payment.SubscriptionID, err)
		}
		before := snapshot(&sub)
		if markPaymentFailed(&sub, now) {
			if err := s.saveWithLog(ctx, tx, before, &sub, types.SubscriptionChangeReasonPaymentFailure); err != nil {
				return err
			}
			events = append(events, types.Event{
				Type:           types.EventPaymentFailed,
				VendorID:       sub.VendorID,
				SubscriptionID: sub.ID,
				Data:           map[string]any{"amount": payment.Amount, "reason": failureReason},
			})
		}
		out.Subscription = &sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, events)
	return out, nil
}

// CancelSubscription cancels the vendor's current subscription. Cancelling
// an already-cancelled record is a no-op success.
func (s *Service) CancelSubscription(ctx context.Context, vendorID string) (*models.Subscription, error) {
	var sub *models.Subscription
	var events []types.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.currentSubscriptionForUpdate(ctx, tx, vendorID)
		if err != nil {
			return err
		}
		sub = cur
		before := snapshot(sub)
		if cancel(sub, s.now()) {
			if err := s.saveWithLog(ctx, tx, before, sub, types.SubscriptionChangeReasonCancel); err != nil {
				return err
			}
			events = append(events, types.Event{
				Type:           types.EventCancelled,
				VendorID:       vendorID,
				SubscriptionID: sub.ID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, events)
	return sub, nil
}

// CancelSubscriptionByID serves gateway-originated cancellation events,
// which are keyed by subscription id rather than vendor.
func (s *Service) CancelSubscriptionByID(ctx context.Context, subscriptionID string) error {
	var events []types.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		err := forUpdate(tx.WithContext(ctx)).Where("id = ?", subscriptionID).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: subscription %s", ErrNotFound, subscriptionID)
		}
		if err != nil {
			return fmt.Errorf("failed to load subscription: %w", err)
		}
		before := snapshot(&sub)
		if cancel(&sub, s.now()) {
			if err := s.saveWithLog(ctx, tx, before, &sub, types.SubscriptionChangeReasonCancel); err != nil {
				return err
			}
			events = append(events, types.Event{
				Type:           types.EventCancelled,
				VendorID:       sub.VendorID,
				SubscriptionID: sub.ID,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.dispatch(ctx, events)
	return nil
}

// SetAutoRenew toggles the vendor's renewal preference.
func (s *Service) SetAutoRenew(ctx context.Context, vendorID string, autoRenew bool) (*models.Subscription, error) {
	var sub *models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.currentSubscriptionForUpdate(ctx, tx, vendorID)
		if err != nil {
			return err
		}
		sub = cur
		if sub.AutoRenew == autoRenew {
			return nil
		}
		if sub.Status.Terminal() {
			return fmt.Errorf("%w: subscription is cancelled", ErrConflict)
		}
		before := snapshot(sub)
		sub.AutoRenew = autoRenew
		return s.saveWithLog(ctx, tx, before, sub, types.SubscriptionChangeReasonSettings)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// SuspendVendor suspends the vendor's current subscription and deactivates
// account access. Idempotent: an already-suspended vendor is untouched.
func (s *Service) SuspendVendor(ctx context.Context, vendorID, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: suspension reason required", ErrValidation)
	}
	var events []types.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.currentSubscriptionForUpdate(ctx, tx, vendorID)
		if err != nil {
			return err
		}
		before := snapshot(sub)
		if !suspend(sub, reason) {
			return nil
		}
		if err := s.saveWithLog(ctx, tx, before, sub, types.SubscriptionChangeReasonSuspend); err != nil {
			return err
		}
		if err := s.setAccessFlag(ctx, tx, vendorID, false); err != nil {
			return err
		}
		events = append(events, types.Event{
			Type:           types.EventSuspended,
			VendorID:       vendorID,
			SubscriptionID: sub.ID,
			Data:           map[string]any{"reason": reason},
		})
		return nil
	})
	if err != nil {
		return err
	}
	s.dispatch(ctx, events)
	return nil
}

// ListVendorPayments returns the vendor's charge history, newest first.
func (s *Service) ListVendorPayments(ctx context.Context, vendorID string) ([]*models.SubscriptionPayment, error) {
	var payments []*models.SubscriptionPayment
	if err := s.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at desc").
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// Status computes the vendor-facing access summary. A vendor with no
// record gets the virtual no_subscription state rather than an error.
func (s *Service) Status(ctx context.Context, vendorID string) (AccessSummary, *models.Subscription, error) {
	sub, err := s.CurrentSubscription(ctx, vendorID)
	if errors.Is(err, ErrNotFound) {
		return ComputeAccess(nil, s.now()), nil, nil
	}
	if err != nil {
		return AccessSummary{}, nil, err
	}
	return ComputeAccess(sub, s.now()), sub, nil
}

// HasActiveAccess is the request-time authorization check used by the
// listing endpoints (external collaborator).
func (s *Service) HasActiveAccess(ctx context.Context, vendorID string) (bool, error) {
	summary, _, err := s.Status(ctx, vendorID)
	if err != nil {
		return false, err
	}
	return summary.CanAccess, nil
}
