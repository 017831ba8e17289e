package billing

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	models "github.com/kestrelmarket/billing/internal/models"
	"github.com/kestrelmarket/billing/internal/app/service/notification"
	"github.com/kestrelmarket/billing/pkg/config"
	"github.com/kestrelmarket/billing/pkg/tool"
	types "github.com/kestrelmarket/billing/pkg/types"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// These tests exercise the transaction paths against a real postgres: the
// row-locking guarantees (one renewal charge per cycle, one side-effect per
// payment, one notification per reminder tier) depend on FOR UPDATE
// semantics that no in-process fake reproduces. They are skipped unless
// TEST_DATABASE_DSN points at a disposable database, e.g.
//
//	TEST_DATABASE_DSN="host=localhost user=postgres dbname=billing_test" go test ./...

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.SubscriptionPlan{},
		&models.Subscription{},
		&models.SubscriptionPayment{},
		&models.SubscriptionLog{},
		&models.VendorAccess{},
	))
	return db
}

// recordingSink collects dispatched events so tests can assert on exactly
// how many side effects a transition emitted.
type recordingSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recordingSink) Deliver(_ context.Context, ev types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) count(typ types.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func newDBTestService(t *testing.T, db *gorm.DB) (*Service, *recordingSink) {
	t.Helper()
	cfg := &config.Config{
		DefaultPlan: "standard",
		Plans: []*types.PlanSeed{{
			ID:           "standard",
			Name:         "Standard",
			Amount:       5000,
			Currency:     "NGN",
			BillingCycle: types.BillingCycleMonthly,
			TrialDays:    14,
			IsActive:     true,
		}},
	}
	sink := &recordingSink{}
	svc := NewService(cfg, db, zap.NewNop().Sugar(), notification.NewDispatcher(zap.NewNop().Sugar(), sink))
	require.NoError(t, svc.SeedPlans(context.Background()))
	return svc, sink
}

func uniqueVendorID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, tool.GenerateUUIDV7())
}

// seedSubscription inserts a record and points vendor_access at it, the
// state every service operation expects to find.
func seedSubscription(t *testing.T, db *gorm.DB, sub *models.Subscription) {
	t.Helper()
	require.NoError(t, db.Create(sub).Error)
	require.NoError(t, db.Create(&models.VendorAccess{
		VendorID:              sub.VendorID,
		CurrentSubscriptionID: sub.ID,
		IsActive:              true,
	}).Error)
}

func TestRenewalSweeps_OverlappingSelectionChargesOnce(t *testing.T) {
	db := openTestDB(t)
	svc, sink := newDBTestService(t, db)
	ctx := context.Background()

	vendorID := uniqueVendorID("vendor-renew")
	planID := "standard"
	due := svc.now()
	end := due.AddDate(0, 1, 0)
	seedSubscription(t, db, &models.Subscription{
		ID:              tool.GenerateUUIDV7(),
		VendorID:        vendorID,
		PlanID:          &planID,
		PlanName:        "Standard",
		Status:          types.SubscriptionStatusActive,
		Amount:          5000,
		Currency:        "NGN",
		NextPaymentDate: &due,
		EndDate:         &end,
		AutoRenew:       true,
	})

	// The due-payment sweep and the catch-up sweep both select this record.
	// Run them at the same time: only one may move it to pending_payment
	// and create the renewal charge.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.ProcessDuePayments(ctx)
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := svc.ProcessAutoRenewals(ctx)
		require.NoError(t, err)
	}()
	wg.Wait()

	var sub models.Subscription
	require.NoError(t, db.Where("vendor_id = ?", vendorID).First(&sub).Error)
	require.Equal(t, types.SubscriptionStatusPendingPayment, sub.Status)

	var payments int64
	require.NoError(t, db.Model(&models.SubscriptionPayment{}).
		Where("subscription_id = ?", sub.ID).Count(&payments).Error)
	require.EqualValues(t, 1, payments, "one renewal cycle must produce exactly one charge")

	require.Equal(t, 1, sink.count(types.EventPaymentRequired))
}

func TestProcessPaymentSuccess_ConcurrentDeliveryAppliesOnce(t *testing.T) {
	db := openTestDB(t)
	svc, sink := newDBTestService(t, db)
	ctx := context.Background()

	vendorID := uniqueVendorID("vendor-pay")
	res, err := svc.InitializePayment(ctx, vendorID, "standard")
	require.NoError(t, err)
	reference := res.Payment.TransactionReference

	// Verify path and webhook path race to apply the same confirmation.
	outcomes := make([]*PaymentOutcome, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			out, err := svc.ProcessPaymentSuccess(ctx, reference)
			require.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, out := range outcomes {
		if !out.AlreadyApplied {
			applied++
		}
	}
	require.Equal(t, 1, applied, "exactly one delivery may run the side effects")

	var sub models.Subscription
	require.NoError(t, db.Where("vendor_id = ?", vendorID).First(&sub).Error)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.NextPaymentDate)

	require.Equal(t, 1, sink.count(types.EventPaymentSucceeded))

	var logs int64
	require.NoError(t, db.Model(&models.SubscriptionLog{}).
		Where("subscription_id = ? AND reason = ?", sub.ID, types.SubscriptionChangeReasonPaymentSuccess).
		Count(&logs).Error)
	require.EqualValues(t, 1, logs)

	// A later replay of the same confirmation is acknowledged without
	// touching anything.
	out, err := svc.ProcessPaymentSuccess(ctx, reference)
	require.NoError(t, err)
	require.True(t, out.AlreadyApplied)
	require.Equal(t, 1, sink.count(types.EventPaymentSucceeded))
}

func TestSendTrialExpiryReminders_TierFiresOnce(t *testing.T) {
	db := openTestDB(t)
	svc, sink := newDBTestService(t, db)
	ctx := context.Background()

	vendorID := uniqueVendorID("vendor-reminder")
	planID := "standard"
	trialEnd := svc.now().Add(36 * time.Hour) // 2 days remaining, tier 2
	seedSubscription(t, db, &models.Subscription{
		ID:              tool.GenerateUUIDV7(),
		VendorID:        vendorID,
		PlanID:          &planID,
		PlanName:        "Standard",
		Status:          types.SubscriptionStatusTrial,
		Amount:          5000,
		Currency:        "NGN",
		TrialEndDate:    &trialEnd,
		NextPaymentDate: &trialEnd,
		AutoRenew:       true,
	})

	sent, err := svc.SendTrialExpiryReminders(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, 1, sink.count(types.EventTrialExpiring))

	var sub models.Subscription
	require.NoError(t, db.Where("vendor_id = ?", vendorID).First(&sub).Error)
	require.Equal(t, 2, sub.RemindersSent)

	// Re-running the sweep within the same tier sends nothing.
	sent, err = svc.SendTrialExpiryReminders(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, sent)
	require.Equal(t, 1, sink.count(types.EventTrialExpiring))
}
