package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "github.com/kestrelmarket/billing/internal/models"
	"github.com/kestrelmarket/billing/internal/app/service/notification"
	"github.com/kestrelmarket/billing/pkg/config"
	"github.com/kestrelmarket/billing/pkg/logctx"
	"github.com/kestrelmarket/billing/pkg/tool"
	types "github.com/kestrelmarket/billing/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"go.uber.org/zap"
)

// Service owns Subscription and SubscriptionPayment records. Every mutation
// goes through one of its operations; nothing else writes those tables.
// Mutation transactions load their rows FOR UPDATE and then run the
// state-guarded transitions (check-then-skip), so concurrent writers
// serialize per row and the loser of a race sees the post-move state.
type Service struct {
	cfg        *config.Config
	db         *gorm.DB
	log        *zap.SugaredLogger
	dispatcher *notification.Dispatcher
	now        func() time.Time
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, dispatcher *notification.Dispatcher) *Service {
	return &Service{cfg: cfg, db: db, log: log, dispatcher: dispatcher, now: time.Now}
}

// SeedPlans upserts the configured plan catalog. Runs once at startup.
func (s *Service) SeedPlans(ctx context.Context) error {
	for _, seed := range s.cfg.Plans {
		plan := &models.SubscriptionPlan{
			ID:           seed.ID,
			Name:         seed.Name,
			Description:  seed.Description,
			Amount:       seed.Amount,
			Currency:     seed.Currency,
			BillingCycle: seed.BillingCycle,
			TrialDays:    seed.TrialDays,
			IsActive:     seed.IsActive,
			SortOrder:    seed.SortOrder,
			Features:     datatypes.JSONMap(seed.Features),
		}
		var existing models.SubscriptionPlan
		err := s.db.WithContext(ctx).Where("id = ?", seed.ID).First(&existing).Error
		if err == nil {
			// Plans already managed in the DB win over config.
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check plan %s: %w", seed.ID, err)
		}
		if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
			return fmt.Errorf("failed to seed plan %s: %w", seed.ID, err)
		}
		s.log.Infow("seeded subscription plan", "plan_id", seed.ID)
	}
	return nil
}

// ListActivePlans returns the public plan catalog.
func (s *Service) ListActivePlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	var plans []*models.SubscriptionPlan
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order asc, amount asc").
		Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// resolvePlan loads the requested plan, falling back to the default plan
// when the id is empty, unknown or the plan was deactivated.
func (s *Service) resolvePlan(ctx context.Context, tx *gorm.DB, planID string) (*models.SubscriptionPlan, error) {
	if planID != "" {
		var plan models.SubscriptionPlan
		err := tx.WithContext(ctx).Where("id = ?", planID).First(&plan).Error
		if err == nil && plan.IsActive {
			return &plan, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load plan %s: %w", planID, err)
		}
	}
	return s.defaultPlan(ctx, tx)
}

func (s *Service) defaultPlan(ctx context.Context, tx *gorm.DB) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := tx.WithContext(ctx).Where("id = ?", s.cfg.DefaultPlan).First(&plan).Error
	if err == nil {
		return &plan, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load default plan: %w", err)
	}
	if seed := s.cfg.GetPlanSeedByID(s.cfg.DefaultPlan); seed != nil {
		return &models.SubscriptionPlan{
			ID:           seed.ID,
			Name:         seed.Name,
			Amount:       seed.Amount,
			Currency:     seed.Currency,
			BillingCycle: seed.BillingCycle,
			TrialDays:    seed.TrialDays,
			IsActive:     true,
		}, nil
	}
	return nil, fmt.Errorf("%w: default plan %s", ErrNotFound, s.cfg.DefaultPlan)
}

// planForSubscription resolves the plan a subscription bills against,
// falling back to the default when PlanID is null or stale.
func (s *Service) planForSubscription(ctx context.Context, tx *gorm.DB, sub *models.Subscription) (*models.SubscriptionPlan, error) {
	id := ""
	if sub.PlanID != nil {
		id = *sub.PlanID
	}
	return s.resolvePlan(ctx, tx, id)
}

// CurrentSubscription resolves the vendor's authoritative record through
// the vendor_access relation. Returns ErrNotFound when the vendor has no
// subscription at all.
func (s *Service) CurrentSubscription(ctx context.Context, vendorID string) (*models.Subscription, error) {
	return s.currentSubscriptionTx(ctx, s.db, vendorID)
}

func (s *Service) currentSubscriptionTx(ctx context.Context, tx *gorm.DB, vendorID string) (*models.Subscription, error) {
	var access models.VendorAccess
	err := tx.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&access).Error
	if err == nil {
		var sub models.Subscription
		if err := tx.WithContext(ctx).Where("id = ?", access.CurrentSubscriptionID).First(&sub).Error; err != nil {
			return nil, fmt.Errorf("failed to load current subscription: %w", err)
		}
		return &sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load vendor access: %w", err)
	}

	// Legacy rows predate vendor_access; fall back to latest-by-created
	// once and backfill the relation.
	var sub models.Subscription
	err = tx.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at desc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if err := s.setCurrent(ctx, tx, vendorID, sub.ID, true); err != nil {
		return nil, err
	}
	return &sub, nil
}

// forUpdate adds a row lock to a query. Every mutation transaction loads
// its subscription (and payment) through this: the state guards are only
// race-free when concurrent writers serialize on the row before checking,
// otherwise two READ COMMITTED transactions can both see the pre-move
// state and both apply the same transition.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// currentSubscriptionForUpdate resolves the vendor's current record and
// re-loads it under a row lock. The locked copy is what the state guards
// run against.
func (s *Service) currentSubscriptionForUpdate(ctx context.Context, tx *gorm.DB, vendorID string) (*models.Subscription, error) {
	sub, err := s.currentSubscriptionTx(ctx, tx, vendorID)
	if err != nil {
		return nil, err
	}
	var locked models.Subscription
	if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", sub.ID).First(&locked).Error; err != nil {
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}
	return &locked, nil
}

// setCurrent upserts the vendor -> current subscription pointer.
func (s *Service) setCurrent(ctx context.Context, tx *gorm.DB, vendorID, subscriptionID string, active bool) error {
	var access models.VendorAccess
	err := tx.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&access).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load vendor access: %w", err)
	}
	access.VendorID = vendorID
	access.CurrentSubscriptionID = subscriptionID
	access.IsActive = active
	if err := tx.WithContext(ctx).Save(&access).Error; err != nil {
		return fmt.Errorf("failed to upsert vendor access: %w", err)
	}
	return nil
}

func (s *Service) setAccessFlag(ctx context.Context, tx *gorm.DB, vendorID string, active bool) error {
	if err := tx.WithContext(ctx).Model(&models.VendorAccess{}).
		Where("vendor_id = ?", vendorID).
		Update("is_active", active).Error; err != nil {
		return fmt.Errorf("failed to update vendor access flag: %w", err)
	}
	return nil
}

// saveWithLog persists the mutated subscription and appends the audit row.
// The log write shares the transaction: history must not silently diverge
// from state.
func (s *Service) saveWithLog(ctx context.Context, tx *gorm.DB, before *models.Subscription, after *models.Subscription, reason types.SubscriptionChangeReason) error {
	if err := tx.WithContext(ctx).Save(after).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	entry := &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		VendorID:       after.VendorID,
		SubscriptionID: after.ID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(after),
		Extra:          datatypes.JSONMap{},
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write subscription log: %w", err)
	}
	return nil
}

func snapshot(sub *models.Subscription) *models.Subscription {
	if sub == nil {
		return nil
	}
	cp := *sub
	return &cp
}

// dispatch sends events after the enclosing transaction has committed.
func (s *Service) dispatch(ctx context.Context, events []types.Event) {
	if len(events) == 0 {
		return
	}
	s.dispatcher.Dispatch(ctx, events...)
}

func (s *Service) logger(ctx context.Context) *zap.SugaredLogger {
	return logctx.FromCtx(ctx, s.log)
}
