package dnsverify

import (
	"context"

	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("dnsverify",
	fx.Provide(ProvideConfig),
	fx.Provide(NewTXTResolver),
	fx.Provide(New),
)

// Runner starts the background verification loop.
var Runner = fx.Invoke(StartVerifier)

func StartVerifier(lc fx.Lifecycle, cfg config.Config, verifier *Verifier) {
	if !cfg.Verifier.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go verifier.RunForever(ctx)

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
