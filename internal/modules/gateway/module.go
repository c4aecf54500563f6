package gateway

import (
	"fmt"

	"go.uber.org/fx"

	gw "trade_executor/internal/gateway"
	"trade_executor/internal/gateway/paper"
	binance "trade_executor/internal/modules/binance_client/service"
	"trade_executor/internal/modules/config"
	okx "trade_executor/internal/modules/okx_client/service"
	"trade_executor/pkg/logger"
)

// NewGateway выбирает адаптер биржи по exchange.name.
func NewGateway(cfg *config.Config) (gw.Gateway, error) {
	ex := cfg.Exchange
	switch ex.Name {
	case config.ExchangeBinance:
		logger.Info("gateway: binance futures (testnet=%v)", ex.Testnet)
		return binance.NewClient(ex), nil
	case config.ExchangeOKX:
		logger.Info("gateway: okx swap (simulated=%v)", ex.Testnet)
		return okx.NewClient(ex), nil
	case config.ExchangePaper:
		logger.Info("gateway: paper, balance=%.2f", ex.Paper.Balance)
		return paper.New(ex.Paper), nil
	default:
		return nil, fmt.Errorf("gateway: unknown exchange %q", ex.Name)
	}
}

func Module() fx.Option {
	return fx.Module("gateway",
		fx.Provide(
			NewGateway,
		),
	)
}
