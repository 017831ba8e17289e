package billing

import (
	"context"
	"errors"
	"fmt"

	models "github.com/kestrelmarket/billing/internal/models"
	types "github.com/kestrelmarket/billing/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Plan catalog management, admin only. Existing subscriptions keep the
// pricing stamped on them at purchase time; editing a plan never rewrites
// live records.

type PlanInput struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Amount       float64            `json:"amount"`
	Currency     string             `json:"currency"`
	BillingCycle types.BillingCycle `json:"billing_cycle"`
	TrialDays    int                `json:"trial_days"`
	IsActive     bool               `json:"is_active"`
	SortOrder    int                `json:"sort_order"`
	Features     map[string]any     `json:"features"`
}

func (in *PlanInput) validate() error {
	if in.ID == "" || in.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrValidation)
	}
	if in.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if in.TrialDays < 0 {
		return fmt.Errorf("%w: trial days must not be negative", ErrValidation)
	}
	if in.BillingCycle != types.BillingCycleMonthly && in.BillingCycle != types.BillingCycleYearly {
		return fmt.Errorf("%w: unknown billing cycle %q", ErrValidation, in.BillingCycle)
	}
	return nil
}

func (s *Service) CreatePlan(ctx context.Context, in *PlanInput) (*models.SubscriptionPlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	plan := &models.SubscriptionPlan{
		ID:           in.ID,
		Name:         in.Name,
		Description:  in.Description,
		Amount:       in.Amount,
		Currency:     in.Currency,
		BillingCycle: in.BillingCycle,
		TrialDays:    in.TrialDays,
		IsActive:     in.IsActive,
		SortOrder:    in.SortOrder,
		Features:     datatypes.JSONMap(in.Features),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SubscriptionPlan
		err := tx.WithContext(ctx).Where("id = ?", in.ID).First(&existing).Error
		if err == nil {
			return fmt.Errorf("%w: plan %s already exists", ErrConflict, in.ID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check plan: %w", err)
		}
		if err := tx.WithContext(ctx).Create(plan).Error; err != nil {
			return fmt.Errorf("failed to create plan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) UpdatePlan(ctx context.Context, id string, in *PlanInput) (*models.SubscriptionPlan, error) {
	in.ID = id
	if err := in.validate(); err != nil {
		return nil, err
	}
	var plan models.SubscriptionPlan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).Where("id = ?", id).First(&plan).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: plan %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to load plan: %w", err)
		}
		plan.Name = in.Name
		plan.Description = in.Description
		plan.Amount = in.Amount
		plan.Currency = in.Currency
		plan.BillingCycle = in.BillingCycle
		plan.TrialDays = in.TrialDays
		plan.IsActive = in.IsActive
		plan.SortOrder = in.SortOrder
		plan.Features = datatypes.JSONMap(in.Features)
		if err := tx.WithContext(ctx).Save(&plan).Error; err != nil {
			return fmt.Errorf("failed to update plan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// DeletePlan removes a plan that no subscription ever billed against.
// Plans with history are deactivated instead so existing records keep a
// resolvable catalog entry.
func (s *Service) DeletePlan(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan models.SubscriptionPlan
		err := tx.WithContext(ctx).Where("id = ?", id).First(&plan).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: plan %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to load plan: %w", err)
		}

		var inUse int64
		if err := tx.WithContext(ctx).Model(&models.Subscription{}).
			Where("plan_id = ?", id).Count(&inUse).Error; err != nil {
			return fmt.Errorf("failed to count plan usage: %w", err)
		}
		if inUse > 0 {
			if err := tx.WithContext(ctx).Model(&plan).Update("is_active", false).Error; err != nil {
				return fmt.Errorf("failed to deactivate plan: %w", err)
			}
			return nil
		}
		if err := tx.WithContext(ctx).Delete(&plan).Error; err != nil {
			return fmt.Errorf("failed to delete plan: %w", err)
		}
		return nil
	})
}
