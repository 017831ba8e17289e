package models

import (
	"testing"
	"time"

	"github.com/kestrelmarket/billing/pkg/types"

	"github.com/stretchr/testify/require"
)

func TestNextPaymentFrom_CalendarArithmetic(t *testing.T) {
	monthly := &SubscriptionPlan{BillingCycle: types.BillingCycleMonthly}
	yearly := &SubscriptionPlan{BillingCycle: types.BillingCycleYearly}

	start := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC), monthly.NextPaymentFrom(start))
	require.Equal(t, time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC), yearly.NextPaymentFrom(start))

	// Jan 31 + 1 month normalizes per Go calendar rules, not fixed 30 days.
	jan31 := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), monthly.NextPaymentFrom(jan31))
}

func TestSubscriptionInTrial(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	require.True(t, (&Subscription{Status: types.SubscriptionStatusTrial, TrialEndDate: &future}).InTrial(now))
	require.False(t, (&Subscription{Status: types.SubscriptionStatusTrial, TrialEndDate: &past}).InTrial(now))
	require.False(t, (&Subscription{Status: types.SubscriptionStatusTrial}).InTrial(now))
	require.False(t, (&Subscription{Status: types.SubscriptionStatusActive, TrialEndDate: &future}).InTrial(now))
}

func TestSubscriptionActiveAt(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	require.True(t, (&Subscription{Status: types.SubscriptionStatusActive, EndDate: &future}).ActiveAt(now))
	require.True(t, (&Subscription{Status: types.SubscriptionStatusActive}).ActiveAt(now))
	require.False(t, (&Subscription{Status: types.SubscriptionStatusActive, EndDate: &past}).ActiveAt(now))
	require.False(t, (&Subscription{Status: types.SubscriptionStatusExpired, EndDate: &future}).ActiveAt(now))
}
