package runner

import (
	"context"

	"go.uber.org/fx"

	"trade_executor/internal/execution"
	"trade_executor/internal/gateway"
	"trade_executor/internal/intake"
	"trade_executor/internal/modules/config"
	health "trade_executor/internal/modules/health/service"
	okxws "trade_executor/internal/modules/okx_websocket/service"
	"trade_executor/internal/notify"
	"trade_executor/internal/risk"
	"trade_executor/pkg/logger"
)

type Params struct {
	fx.In

	Gateway   gateway.Gateway
	Validator *risk.Validator
	Engine    *execution.Engine
	Notifier  notify.Notifier  `optional:"true"`
	Prices    *okxws.PriceBook `optional:"true"`
	State     *health.State    `optional:"true"`
}

func NewRunner(p Params) *Runner {
	opts := []Option{WithNotifier(p.Notifier)}
	// nil-указатель в интерфейсе не nil: добавляем только реальные
	if p.Prices != nil {
		opts = append(opts, WithPrices(p.Prices))
	}
	if p.State != nil {
		opts = append(opts, WithRecorder(p.State))
	}
	return New(p.Gateway, p.Validator, p.Engine, opts...)
}

func NewQueue(cfg *config.Config) *intake.Queue {
	return intake.NewQueue(cfg.Intake.QueueSize)
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewRunner,
			NewQueue,
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, r *Runner, q *intake.Queue) {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						defer close(done)
						if err := r.Run(ctx, q, cfg.Intake.Workers); err != nil {
							logger.Error("runner: %v", err)
						}
					}()
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					q.Close()
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
