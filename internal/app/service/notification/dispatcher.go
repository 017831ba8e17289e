package notification

import (
	"context"

	"github.com/kestrelmarket/billing/pkg/logctx"
	types "github.com/kestrelmarket/billing/pkg/types"

	"go.uber.org/zap"
)

// Sink delivers a single event to an external transport (email, push,
// in-app feed). Delivery is owned by the collaborator behind the Sink;
// the billing engine never waits on delivery success.
type Sink interface {
	Deliver(ctx context.Context, ev types.Event) error
}

// Dispatcher consumes the event list a transition returns, after the state
// write has committed. Sink errors are logged and swallowed so a broken
// transport can never roll back or block a billing transition.
type Dispatcher struct {
	log   *zap.SugaredLogger
	sinks []Sink
}

func NewDispatcher(log *zap.SugaredLogger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{log: log, sinks: sinks}
}

func (d *Dispatcher) Dispatch(ctx context.Context, events ...types.Event) {
	for _, ev := range events {
		logctx.FromCtx(ctx, d.log).Infow("billing_event",
			"type", ev.Type,
			"vendor_id", ev.VendorID,
			"subscription_id", ev.SubscriptionID,
		)
		for _, s := range d.sinks {
			if err := s.Deliver(ctx, ev); err != nil {
				logctx.FromCtx(ctx, d.log).Errorw("event_delivery_failed",
					"type", ev.Type, "vendor_id", ev.VendorID, "err", err)
			}
		}
	}
}
