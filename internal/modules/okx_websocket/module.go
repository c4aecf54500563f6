package okx_websocket

import (
	"context"

	"go.uber.org/fx"

	"trade_executor/internal/modules/config"
	health "trade_executor/internal/modules/health/service"
	"trade_executor/internal/modules/okx_websocket/service"
)

func NewPriceBook(cfg *config.Config) *service.PriceBook {
	return service.NewPriceBook(cfg.Market.MaxAge)
}

// Module поднимает ленту последних цен OKX. Книга есть всегда; стрим только при market.enabled.
func Module() fx.Option {
	return fx.Module("okx_websocket",
		fx.Provide(
			NewPriceBook,
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, book *service.PriceBook, state *health.State) {
			if !cfg.Market.Enabled {
				return
			}
			c := service.NewClient(cfg.Market.URL, cfg.Market.Symbols, book, service.Hooks{
				OnConnected: state.SetWSConnected,
				OnTick:      state.TouchTick,
			})

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						defer close(done)
						c.Start(ctx)
					}()
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-done:
					case <-stopCtx.Done():
					}
					return nil
				},
			})
		}),
	)
}
