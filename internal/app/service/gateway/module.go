package gateway

import (
	"github.com/kestrelmarket/billing/internal/app/service/billing"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEventHandler(s *billing.Service, log *zap.SugaredLogger) *EventHandler {
	return NewEventHandler(s, log)
}

var Module = fx.Options(
	fx.Provide(NewClient),
	fx.Provide(newEventHandler),
)
