package types

type EventType string

const (
	EventTrialStarted     EventType = "trial_started"
	EventTrialExpiring    EventType = "trial_expiring"
	EventTrialExpired     EventType = "trial_expired"
	EventPaymentSucceeded EventType = "payment_successful"
	EventPaymentFailed    EventType = "payment_failed"
	EventPaymentRequired  EventType = "payment_required"
	EventSuspended        EventType = "subscription_suspended"
	EventCancelled        EventType = "subscription_cancelled"
)

// Event is a structured notification produced by a billing transition.
// Transitions return events instead of dispatching inline so that a
// delivery failure can never roll back or block a state write.
type Event struct {
	Type           EventType      `json:"type"`
	VendorID       string         `json:"vendor_id"`
	SubscriptionID string         `json:"subscription_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}
