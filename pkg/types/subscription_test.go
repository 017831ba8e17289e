package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscriptionStatusTerminal(t *testing.T) {
	require.True(t, SubscriptionStatusCancelled.Terminal())

	// Expired can still pay its way back, so it must not be terminal.
	for _, s := range []SubscriptionStatus{
		SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusPendingPayment,
		SubscriptionStatusPaymentFailed, SubscriptionStatusExpired, SubscriptionStatusSuspended,
	} {
		require.False(t, s.Terminal(), "status=%s", s)
	}
}

func TestSubscriptionStatusValid(t *testing.T) {
	require.True(t, SubscriptionStatusTrial.Valid())
	require.False(t, SubscriptionStatusNone.Valid())
	require.False(t, SubscriptionStatus("garbage").Valid())
}

func TestPaymentStatusTerminal(t *testing.T) {
	require.True(t, PaymentStatusCompleted.Terminal())
	require.True(t, PaymentStatusFailed.Terminal())
	require.False(t, PaymentStatusPending.Terminal())
}
