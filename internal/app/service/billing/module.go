package billing

import (
	"context"

	"go.uber.org/fx"
)

func seedPlans(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.SeedPlans(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(seedPlans),
)
