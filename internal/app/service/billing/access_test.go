package billing

import (
	"testing"
	"time"

	models "github.com/kestrelmarket/billing/internal/models"
	types "github.com/kestrelmarket/billing/pkg/types"

	"github.com/stretchr/testify/require"
)

func TestComputeAccess_NoSubscription(t *testing.T) {
	got := ComputeAccess(nil, testNow)
	require.Equal(t, types.SubscriptionStatusNone, got.Status)
	require.False(t, got.CanAccess)
	require.False(t, got.NeedsPayment)
	require.Equal(t, "No subscription found", got.Message)
}

func TestComputeAccess_TrialInWindow(t *testing.T) {
	end := testNow.AddDate(0, 0, 30)
	sub := &models.Subscription{Status: types.SubscriptionStatusTrial, TrialEndDate: &end}
	got := ComputeAccess(sub, testNow)
	require.True(t, got.CanAccess)
	require.False(t, got.NeedsPayment)
	require.Equal(t, 30, got.DaysRemaining)
	require.Equal(t, "Free trial - 30 days remaining", got.Message)
}

func TestComputeAccess_TrialEndingSoonMessage(t *testing.T) {
	end := testNow.AddDate(0, 0, 3)
	sub := &models.Subscription{Status: types.SubscriptionStatusTrial, TrialEndDate: &end}
	got := ComputeAccess(sub, testNow)
	require.True(t, got.CanAccess)
	require.Equal(t, "Trial ends in 3 days", got.Message)
}

// A trial that lapsed one second ago must read as expired even though the
// stored status still says trial; the gate never waits for the sweep.
func TestComputeAccess_TrialJustLapsed(t *testing.T) {
	end := testNow.Add(-time.Second)
	sub := &models.Subscription{Status: types.SubscriptionStatusTrial, TrialEndDate: &end}
	got := ComputeAccess(sub, testNow)
	require.Equal(t, types.SubscriptionStatusExpired, got.Status)
	require.False(t, got.CanAccess)
	require.True(t, got.NeedsPayment)
	require.Equal(t, "Trial expired - Payment required", got.Message)
}

func TestComputeAccess_TrialBoundaryExactlyNow(t *testing.T) {
	end := testNow
	sub := &models.Subscription{Status: types.SubscriptionStatusTrial, TrialEndDate: &end}
	got := ComputeAccess(sub, testNow)
	require.False(t, got.CanAccess)
	require.True(t, got.NeedsPayment)
}

func TestComputeAccess_ActiveCovered(t *testing.T) {
	end := testNow.AddDate(0, 1, 0)
	sub := &models.Subscription{Status: types.SubscriptionStatusActive, EndDate: &end}
	got := ComputeAccess(sub, testNow)
	require.True(t, got.CanAccess)
	require.Equal(t, "Subscription active", got.Message)
}

func TestComputeAccess_ActiveLapsed(t *testing.T) {
	end := testNow.Add(-time.Minute)
	sub := &models.Subscription{Status: types.SubscriptionStatusActive, EndDate: &end}
	got := ComputeAccess(sub, testNow)
	require.Equal(t, types.SubscriptionStatusExpired, got.Status)
	require.False(t, got.CanAccess)
	require.True(t, got.NeedsPayment)
}

func TestComputeAccess_PaymentStates(t *testing.T) {
	for _, status := range []types.SubscriptionStatus{
		types.SubscriptionStatusPendingPayment,
		types.SubscriptionStatusPaymentFailed,
	} {
		got := ComputeAccess(&models.Subscription{Status: status}, testNow)
		require.False(t, got.CanAccess, "status=%s", status)
		require.True(t, got.NeedsPayment, "status=%s", status)
	}
}

// Suspension is an operator action; paying does not lift it, so the
// summary must not ask for payment.
func TestComputeAccess_Suspended(t *testing.T) {
	got := ComputeAccess(&models.Subscription{Status: types.SubscriptionStatusSuspended}, testNow)
	require.False(t, got.CanAccess)
	require.False(t, got.NeedsPayment)
	require.Equal(t, "Account suspended - Contact admin", got.Message)
}

func TestComputeAccess_Cancelled(t *testing.T) {
	got := ComputeAccess(&models.Subscription{Status: types.SubscriptionStatusCancelled}, testNow)
	require.False(t, got.CanAccess)
	require.False(t, got.NeedsPayment)
	require.Equal(t, "Subscription cancelled", got.Message)
}

func TestComputeAccess_Expired(t *testing.T) {
	got := ComputeAccess(&models.Subscription{Status: types.SubscriptionStatusExpired}, testNow)
	require.False(t, got.CanAccess)
	require.True(t, got.NeedsPayment)
}
