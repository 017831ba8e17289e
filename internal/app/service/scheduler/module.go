package scheduler

import (
	"context"

	"github.com/kestrelmarket/billing/internal/app/service/billing"
	"github.com/kestrelmarket/billing/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newRunner(cfg *config.Config, s *billing.Service, log *zap.SugaredLogger) *Runner {
	return NewRunner(cfg, s, log)
}

func runScheduler(lc fx.Lifecycle, r *Runner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			r.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			r.Stop()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(newRunner),
	fx.Invoke(runScheduler),
)
