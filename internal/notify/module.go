package notify

import (
	"context"

	"go.uber.org/fx"

	"trade_executor/internal/gateway"
	"trade_executor/internal/modules/config"
	health "trade_executor/internal/modules/health/service"
	"trade_executor/pkg/logger"
)

// NewNotifier: Telegram при заданном токене и chat_id, иначе лог.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config, gw gateway.Gateway, state *health.State) (Notifier, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		logger.Info("notify: telegram disabled, reporting to log")
		return NewStdout(), nil
	}

	reader, _ := gw.(gateway.PositionReader)
	t, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, reader, state)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			t.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			t.Stop()
			return nil
		},
	})
	return t, nil
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			NewNotifier,
		),
	)
}
