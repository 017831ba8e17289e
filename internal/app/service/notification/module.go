package notification

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newDispatcher(log *zap.SugaredLogger) *Dispatcher {
	// Transport sinks are registered by the hosting deployment; out of the
	// box every event is only logged.
	return NewDispatcher(log)
}

var Module = fx.Options(
	fx.Provide(newDispatcher),
)
