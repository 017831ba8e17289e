package types

type SubscriptionStatus string

const (
	SubscriptionStatusTrial          SubscriptionStatus = "trial"
	SubscriptionStatusActive         SubscriptionStatus = "active"
	SubscriptionStatusPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionStatusPaymentFailed  SubscriptionStatus = "payment_failed"
	SubscriptionStatusExpired        SubscriptionStatus = "expired"
	SubscriptionStatusSuspended      SubscriptionStatus = "suspended"
	SubscriptionStatusCancelled      SubscriptionStatus = "cancelled"

	// SubscriptionStatusNone is the virtual status reported when a vendor
	// has no subscription record at all. It is never persisted.
	SubscriptionStatusNone SubscriptionStatus = "no_subscription"
)

// Terminal reports whether no further lifecycle transitions are allowed
// from the status. Expired subscriptions can still initialize a payment,
// so expired is not terminal.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled
}

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusPendingPayment,
		SubscriptionStatusPaymentFailed, SubscriptionStatusExpired, SubscriptionStatusSuspended,
		SubscriptionStatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Terminal payments must never be re-applied; the billing state machine
// detects a terminal status and skips side effects on re-delivery.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool {
	return c == BillingCycleMonthly || c == BillingCycleYearly
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonTrialStart     SubscriptionChangeReason = "trialStart"
	SubscriptionChangeReasonTrialExtend    SubscriptionChangeReason = "trialExtend"
	SubscriptionChangeReasonTrialExpire    SubscriptionChangeReason = "trialExpire"
	SubscriptionChangeReasonPaymentInit    SubscriptionChangeReason = "paymentInit"
	SubscriptionChangeReasonPaymentSuccess SubscriptionChangeReason = "paymentSuccess"
	SubscriptionChangeReasonPaymentFailure SubscriptionChangeReason = "paymentFailure"
	SubscriptionChangeReasonRenewalAttempt SubscriptionChangeReason = "renewalAttempt"
	SubscriptionChangeReasonExpire         SubscriptionChangeReason = "expire"
	SubscriptionChangeReasonSuspend        SubscriptionChangeReason = "suspend"
	SubscriptionChangeReasonReactivate     SubscriptionChangeReason = "reactivate"
	SubscriptionChangeReasonCancel         SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonAdminOverride  SubscriptionChangeReason = "adminOverride"
	SubscriptionChangeReasonSettings       SubscriptionChangeReason = "settings"
)
