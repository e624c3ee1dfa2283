package syncer

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("syncer",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(Run),
)

// Run starts the sync loop for the process lifetime.
func Run(lc fx.Lifecycle, s *Syncer) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go s.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
