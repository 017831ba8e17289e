package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kestrelmarket/billing/internal/app/service/billing"
	"github.com/kestrelmarket/billing/pkg/logctx"

	"go.uber.org/zap"
)

// Webhook event names as delivered by the provider.
const (
	EventChargeSuccess       = "charge.success"
	EventChargeFailed        = "charge.failed"
	EventSubscriptionDisable = "subscription.disable"
)

// Biller is the slice of the billing service the webhook path needs.
type Biller interface {
	ProcessPaymentSuccess(ctx context.Context, reference string) (*billing.PaymentOutcome, error)
	ProcessPaymentFailure(ctx context.Context, reference, failureReason string) (*billing.PaymentOutcome, error)
	CancelSubscriptionByID(ctx context.Context, subscriptionID string) error
}

// EventHandler routes verified webhook deliveries into billing operations.
// Callers must check the body signature first; nothing here mutates state
// for an unverified payload.
type EventHandler struct {
	biller Biller
	log    *zap.SugaredLogger
}

func NewEventHandler(biller Biller, log *zap.SugaredLogger) *EventHandler {
	return &EventHandler{biller: biller, log: log}
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference      string `json:"reference"`
		GatewayMessage string `json:"gateway_response"`
		Metadata       struct {
			SubscriptionID string `json:"subscription_id"`
		} `json:"metadata"`
	} `json:"data"`
}

// HandleEvent processes one webhook delivery. Unknown event types are
// acknowledged without action so the provider does not retry them forever.
func (h *EventHandler) HandleEvent(ctx context.Context, body []byte) error {
	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode webhook body: %w", err)
	}
	log := logctx.FromCtx(ctx, h.log).With("event", event.Event, "reference", event.Data.Reference)

	switch event.Event {
	case EventChargeSuccess:
		outcome, err := h.biller.ProcessPaymentSuccess(ctx, event.Data.Reference)
		if err != nil {
			return fmt.Errorf("failed to apply successful charge: %w", err)
		}
		if outcome.AlreadyApplied {
			log.Infow("webhook_replay_ignored")
		}
		return nil

	case EventChargeFailed:
		reason := event.Data.GatewayMessage
		if reason == "" {
			reason = "charge failed"
		}
		outcome, err := h.biller.ProcessPaymentFailure(ctx, event.Data.Reference, reason)
		if err != nil {
			return fmt.Errorf("failed to apply failed charge: %w", err)
		}
		if outcome.AlreadyApplied {
			log.Infow("webhook_replay_ignored")
		}
		return nil

	case EventSubscriptionDisable:
		id := event.Data.Metadata.SubscriptionID
		if id == "" {
			log.Warnw("subscription_disable_missing_id")
			return nil
		}
		if err := h.biller.CancelSubscriptionByID(ctx, id); err != nil {
			return fmt.Errorf("failed to cancel subscription %s: %w", id, err)
		}
		return nil

	default:
		log.Infow("webhook_event_ignored")
		return nil
	}
}
