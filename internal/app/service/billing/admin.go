package billing

import (
	"context"
	"errors"
	"fmt"

	models "github.com/kestrelmarket/billing/internal/models"
	types "github.com/kestrelmarket/billing/pkg/types"

	"gorm.io/gorm"
)

// Operator-facing operations backing the admin dashboard.

type ListSubscriptionsRequest struct {
	Page   int
	Limit  int
	Status types.SubscriptionStatus
}

type ListSubscriptionsResponse struct {
	Items []*models.Subscription `json:"items"`
	Total int64                  `json:"total"`
}

func (s *Service) ListSubscriptions(ctx context.Context, req *ListSubscriptionsRequest) (*ListSubscriptionsResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Page <= 0 {
		req.Page = 1
	}

	q := s.db.WithContext(ctx).Model(&models.Subscription{})
	if req.Status != "" {
		if !req.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
		}
		q = q.Where("status = ?", req.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	var rows []*models.Subscription
	if err := q.Order("created_at desc").
		Offset((req.Page - 1) * req.Limit).
		Limit(req.Limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return &ListSubscriptionsResponse{Items: rows, Total: total}, nil
}

type ListPaymentsRequest struct {
	Page   int
	Limit  int
	Status types.PaymentStatus
}

type ListPaymentsResponse struct {
	Items []*models.SubscriptionPayment `json:"items"`
	Total int64                         `json:"total"`
}

func (s *Service) ListPayments(ctx context.Context, req *ListPaymentsRequest) (*ListPaymentsResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Page <= 0 {
		req.Page = 1
	}

	q := s.db.WithContext(ctx).Model(&models.SubscriptionPayment{})
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}
	var rows []*models.SubscriptionPayment
	if err := q.Order("created_at desc").
		Offset((req.Page - 1) * req.Limit).
		Limit(req.Limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return &ListPaymentsResponse{Items: rows, Total: total}, nil
}

// SubscriptionDetail bundles a record with its charge history.
type SubscriptionDetail struct {
	Subscription *models.Subscription          `json:"subscription"`
	Payments     []*models.SubscriptionPayment `json:"payments"`
}

func (s *Service) GetSubscription(ctx context.Context, id string) (*SubscriptionDetail, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: subscription %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	var payments []*models.SubscriptionPayment
	if err := s.db.WithContext(ctx).
		Where("subscription_id = ?", id).
		Order("created_at desc").
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	return &SubscriptionDetail{Subscription: &sub, Payments: payments}, nil
}

// SubscriptionStats backs the admin dashboard summary.
type SubscriptionStats struct {
	TotalSubscriptions     int64   `json:"total_subscriptions"`
	ActiveSubscriptions    int64   `json:"active_subscriptions"`
	TrialSubscriptions     int64   `json:"trial_subscriptions"`
	ExpiredSubscriptions   int64   `json:"expired_subscriptions"`
	SuspendedSubscriptions int64   `json:"suspended_subscriptions"`
	CancelledSubscriptions int64   `json:"cancelled_subscriptions"`
	ExpiringTrials         int64   `json:"expiring_trials"`
	TotalRevenue           float64 `json:"total_revenue"`
}

func (s *Service) Stats(ctx context.Context) (*SubscriptionStats, error) {
	stats := &SubscriptionStats{}
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Count(&stats.TotalSubscriptions).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	byStatus := []struct {
		status types.SubscriptionStatus
		dst    *int64
	}{
		{types.SubscriptionStatusActive, &stats.ActiveSubscriptions},
		{types.SubscriptionStatusTrial, &stats.TrialSubscriptions},
		{types.SubscriptionStatusExpired, &stats.ExpiredSubscriptions},
		{types.SubscriptionStatusSuspended, &stats.SuspendedSubscriptions},
		{types.SubscriptionStatusCancelled, &stats.CancelledSubscriptions},
	}
	for _, c := range byStatus {
		if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
			Where("status = ?", c.status).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s subscriptions: %w", c.status, err)
		}
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status = ? AND trial_end_date > ? AND trial_end_date <= ?",
			types.SubscriptionStatusTrial, now, now.AddDate(0, 0, 7)).
		Count(&stats.ExpiringTrials).Error; err != nil {
		return nil, fmt.Errorf("failed to count expiring trials: %w", err)
	}

	var revenue *float64
	if err := s.db.WithContext(ctx).Model(&models.SubscriptionPayment{}).
		Where("status = ?", types.PaymentStatusCompleted).
		Select("SUM(amount)").Scan(&revenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	if revenue != nil {
		stats.TotalRevenue = *revenue
	}
	return stats, nil
}

// SetStatus is the operator override. Suspension and cancellation reuse the
// regular transitions; returning a suspended vendor to active requires the
// record to carry billing dates that are still in the future, and a
// cancelled record cannot be revived at all.
func (s *Service) SetStatus(ctx context.Context, subscriptionID string, target types.SubscriptionStatus, reason string) (*models.Subscription, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, target)
	}

	var result *models.Subscription
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
		result = &sub

		if sub.Status == target {
			return nil
		}
		if sub.Status.Terminal() {
			return fmt.Errorf("%w: subscription is cancelled", ErrConflict)
		}

		before := snapshot(&sub)
		switch target {
		case types.SubscriptionStatusSuspended:
			if reason == "" {
				reason = "Suspended by administrator"
			}
			if !suspend(&sub, reason) {
				return nil
			}
			if err := s.saveWithLog(ctx, tx, before, &sub, types.SubscriptionChangeReasonSuspend); err != nil {
				return err
			}
			if err := s.setAccessFlag(ctx, tx, sub.VendorID, false); err != nil {
				return err
			}
			events = append(events, types.Event{
				Type: types.EventSuspended, VendorID: sub.VendorID, SubscriptionID: sub.ID,
				Data: map[string]any{"reason": reason},
			})

		case types.SubscriptionStatusCancelled:
			if !cancel(&sub, s.now()) {
				return nil
			}
			if err := s.saveWithLog(ctx, tx, before, &sub, types.SubscriptionChangeReasonCancel); err != nil {
				return err
			}
			events = append(events, types.Event{
				Type: types.EventCancelled, VendorID: sub.VendorID, SubscriptionID: sub.ID,
			})

		case types.SubscriptionStatusActive:
			if sub.Status != types.SubscriptionStatusSuspended {
				return fmt.Errorf("%w: only suspended subscriptions can be reactivated", ErrConflict)
			}
			now := s.now()
			hasFutureEnd := sub.EndDate != nil && sub.EndDate.After(now)
			hasFutureDue := sub.NextPaymentDate != nil && sub.NextPaymentDate.After(now)
			if !hasFutureEnd || !hasFutureDue {
				return fmt.Errorf("%w: reactivation requires billing dates in the future", ErrValidation)
			}
			sub.Status = types.SubscriptionStatusActive
			sub.SuspensionReason = nil
			if err := s.saveWithLog(ctx, tx, before, &sub, types.SubscriptionChangeReasonReactivate); err != nil {
				return err
			}
			if err := s.setAccessFlag(ctx, tx, sub.VendorID, true); err != nil {
				return err
			}

		default:
			// Remaining statuses are a plain override; the audit log keeps
			// the operator accountable.
			sub.Status = target
			if reason != "" {
				sub.SuspensionReason = &reason
			}
			if err := s.saveWithLog(ctx, tx, before, &sub, types.SubscriptionChangeReasonAdminOverride); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, events)
	return result, nil
}

// ExtendTrial pushes a trial's end date out by the given number of days.
func (s *Service) ExtendTrial(ctx context.Context, subscriptionID string, days int, reason string) (*models.Subscription, error) {
	if days < 1 || days > 365 {
		return nil, fmt.Errorf("%w: days must be between 1 and 365", ErrValidation)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	var result *models.Subscription
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
		if sub.Status != types.SubscriptionStatusTrial {
			return fmt.Errorf("%w: can only extend trial subscriptions", ErrConflict)
		}
		if sub.TrialEndDate == nil {
			return fmt.Errorf("%w: trial has no end date", ErrConflict)
		}

		before := snapshot(&sub)
		newEnd := sub.TrialEndDate.AddDate(0, 0, days)
		sub.TrialEndDate = &newEnd
		sub.NextPaymentDate = &newEnd
		if err := s.saveWithLog(ctx, tx, before, &sub, types.SubscriptionChangeReasonTrialExtend); err != nil {
			return err
		}
		result = &sub
		events = append(events, types.Event{
			Type:           types.EventTrialStarted,
			VendorID:       sub.VendorID,
			SubscriptionID: sub.ID,
			Data:           map[string]any{"trial_end_date": newEnd, "extended_days": days},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, events)
	return result, nil
}
