package billing

import (
	"testing"
	"time"

	models "github.com/kestrelmarket/billing/internal/models"
	types "github.com/kestrelmarket/billing/pkg/types"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func monthlyPlan() *models.SubscriptionPlan {
	return &models.SubscriptionPlan{
		ID:           "vendor-monthly",
		Name:         "Vendor Monthly",
		Amount:       50000,
		Currency:     "NGN",
		BillingCycle: types.BillingCycleMonthly,
		TrialDays:    90,
		IsActive:     true,
	}
}

func TestActivateOnPayment_FromEachStatus(t *testing.T) {
	cases := []struct {
		from    types.SubscriptionStatus
		applied bool
	}{
		{types.SubscriptionStatusPendingPayment, true},
		{types.SubscriptionStatusPaymentFailed, true},
		{types.SubscriptionStatusExpired, true},
		{types.SubscriptionStatusTrial, true},
		{types.SubscriptionStatusActive, false},
		{types.SubscriptionStatusSuspended, false},
		{types.SubscriptionStatusCancelled, false},
	}
	for _, c := range cases {
		t.Run(string(c.from), func(t *testing.T) {
			sub := &models.Subscription{Status: c.from}
			applied := activateOnPayment(sub, monthlyPlan(), testNow)
			require.Equal(t, c.applied, applied)
			if !c.applied {
				require.Equal(t, c.from, sub.Status)
				return
			}
			require.Equal(t, types.SubscriptionStatusActive, sub.Status)
			require.Equal(t, testNow, *sub.LastPaymentDate)
			require.Equal(t, testNow.AddDate(0, 1, 0), *sub.NextPaymentDate)
			require.Equal(t, *sub.NextPaymentDate, *sub.EndDate)
			require.Nil(t, sub.LastPaymentAttempt)
			require.Nil(t, sub.SuspensionReason)
		})
	}
}

func TestActivateOnPayment_ClearsSuspensionArtifacts(t *testing.T) {
	reason := "payment overdue"
	attempt := testNow.Add(-10 * 24 * time.Hour)
	sub := &models.Subscription{
		Status:             types.SubscriptionStatusPaymentFailed,
		SuspensionReason:   &reason,
		LastPaymentAttempt: &attempt,
	}
	require.True(t, activateOnPayment(sub, monthlyPlan(), testNow))
	require.Nil(t, sub.SuspensionReason)
	require.Nil(t, sub.LastPaymentAttempt)
}

func TestActivateOnPayment_YearlyCycle(t *testing.T) {
	plan := monthlyPlan()
	plan.BillingCycle = types.BillingCycleYearly
	sub := &models.Subscription{Status: types.SubscriptionStatusPendingPayment}
	require.True(t, activateOnPayment(sub, plan, testNow))
	require.Equal(t, testNow.AddDate(1, 0, 0), *sub.NextPaymentDate)
}

func TestMarkPaymentFailed_OnlyFromPending(t *testing.T) {
	sub := &models.Subscription{Status: types.SubscriptionStatusPendingPayment}
	require.True(t, markPaymentFailed(sub, testNow))
	require.Equal(t, types.SubscriptionStatusPaymentFailed, sub.Status)
	require.Equal(t, testNow, *sub.LastPaymentAttempt)

	// A second failure report for the same charge is a no-op.
	require.False(t, markPaymentFailed(sub, testNow.Add(time.Hour)))
	require.Equal(t, testNow, *sub.LastPaymentAttempt)

	active := &models.Subscription{Status: types.SubscriptionStatusActive}
	require.False(t, markPaymentFailed(active, testNow))
	require.Equal(t, types.SubscriptionStatusActive, active.Status)
}

func TestExpireTrial(t *testing.T) {
	past := testNow.Add(-time.Second)
	future := testNow.Add(time.Second)

	sub := &models.Subscription{Status: types.SubscriptionStatusTrial, TrialEndDate: &past}
	require.True(t, expireTrial(sub, testNow))
	require.Equal(t, types.SubscriptionStatusExpired, sub.Status)
	require.Equal(t, past, *sub.EndDate)

	notYet := &models.Subscription{Status: types.SubscriptionStatusTrial, TrialEndDate: &future}
	require.False(t, expireTrial(notYet, testNow))

	noDate := &models.Subscription{Status: types.SubscriptionStatusTrial}
	require.False(t, expireTrial(noDate, testNow))

	// Vendor paid between query and transaction; nothing to expire.
	paid := &models.Subscription{Status: types.SubscriptionStatusActive, TrialEndDate: &past}
	require.False(t, expireTrial(paid, testNow))
}

func TestExpireActive(t *testing.T) {
	past := testNow.Add(-time.Hour)
	sub := &models.Subscription{Status: types.SubscriptionStatusActive, EndDate: &past}
	require.True(t, expireActive(sub, testNow))
	require.Equal(t, types.SubscriptionStatusExpired, sub.Status)

	future := testNow.Add(time.Hour)
	current := &models.Subscription{Status: types.SubscriptionStatusActive, EndDate: &future}
	require.False(t, expireActive(current, testNow))
}

func TestBeginRenewal(t *testing.T) {
	sub := &models.Subscription{Status: types.SubscriptionStatusActive, AutoRenew: true}
	require.True(t, beginRenewal(sub, testNow))
	require.Equal(t, types.SubscriptionStatusPendingPayment, sub.Status)
	require.Equal(t, testNow, *sub.LastPaymentAttempt)

	// Second sweep picking up the same record is a no-op.
	require.False(t, beginRenewal(sub, testNow.Add(time.Minute)))

	optedOut := &models.Subscription{Status: types.SubscriptionStatusActive, AutoRenew: false}
	require.False(t, beginRenewal(optedOut, testNow))
}

func TestSuspend(t *testing.T) {
	sub := &models.Subscription{Status: types.SubscriptionStatusPaymentFailed, AutoRenew: true}
	require.True(t, suspend(sub, "payment overdue"))
	require.Equal(t, types.SubscriptionStatusSuspended, sub.Status)
	require.Equal(t, "payment overdue", *sub.SuspensionReason)
	require.False(t, sub.AutoRenew)

	require.False(t, suspend(sub, "again"))
	require.Equal(t, "payment overdue", *sub.SuspensionReason)

	cancelled := &models.Subscription{Status: types.SubscriptionStatusCancelled}
	require.False(t, suspend(cancelled, "x"))
}

func TestCancel_TerminalAndIdempotent(t *testing.T) {
	sub := &models.Subscription{Status: types.SubscriptionStatusActive, AutoRenew: true}
	require.True(t, cancel(sub, testNow))
	require.Equal(t, types.SubscriptionStatusCancelled, sub.Status)
	require.False(t, sub.AutoRenew)
	require.Equal(t, testNow, *sub.EndDate)

	require.False(t, cancel(sub, testNow.Add(time.Hour)))
	require.Equal(t, testNow, *sub.EndDate)

	// Cancelled never leaves via any transition.
	require.False(t, activateOnPayment(sub, monthlyPlan(), testNow))
	require.False(t, suspend(sub, "x"))
	require.False(t, beginRenewal(sub, testNow))
}

func TestReminderTier(t *testing.T) {
	cases := []struct {
		days int
		tier int
	}{
		{10, 0},
		{8, 0},
		{7, 1},
		{4, 1},
		{3, 2},
		{2, 2},
		{1, 3},
		{0, 3},
	}
	for _, c := range cases {
		require.Equal(t, c.tier, reminderTier(c.days), "days=%d", c.days)
	}
}

func TestDaysUntil_Ceiling(t *testing.T) {
	require.Equal(t, 1, daysUntil(testNow.Add(time.Second), testNow))
	require.Equal(t, 1, daysUntil(testNow.Add(24*time.Hour), testNow))
	require.Equal(t, 2, daysUntil(testNow.Add(25*time.Hour), testNow))
	require.Equal(t, 7, daysUntil(testNow.Add(7*24*time.Hour), testNow))
	require.Equal(t, 0, daysUntil(testNow, testNow))
}
