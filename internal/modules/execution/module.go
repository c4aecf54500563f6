package execution

import (
	"fmt"

	"go.uber.org/fx"

	"trade_executor/internal/execution"
	"trade_executor/internal/gateway"
	"trade_executor/internal/modules/config"
	"trade_executor/internal/risk"
	"trade_executor/pkg/db"
	"trade_executor/pkg/logger"
)

type lockerParams struct {
	fx.In

	Cfg *config.Config
	// только при locker.kind=postgres
	Tx *db.PgTxManager `optional:"true"`
}

func NewLocker(p lockerParams) (execution.SymbolLocker, error) {
	switch p.Cfg.Locker.Kind {
	case config.LockerPostgres:
		if p.Tx == nil {
			return nil, fmt.Errorf("execution: locker.kind=postgres but postgres module is not enabled")
		}
		logger.Info("execution: postgres advisory locker")
		return execution.NewPgAdvisoryLocker(p.Tx), nil
	default:
		return execution.NewMemoryLocker(), nil
	}
}

func NewValidator(cfg *config.Config) *risk.Validator {
	v := risk.NewValidator(cfg.Risk)
	l := v.Limits()
	logger.Info("risk limits: max_leverage=%d max_total_position_pct=%.1f min_risk_reward=%.2f",
		l.MaxLeverage, l.MaxTotalPositionPct, l.MinRiskReward)
	return v
}

func NewEngine(cfg *config.Config, gw gateway.Gateway, v *risk.Validator, locker execution.SymbolLocker) *execution.Engine {
	return execution.NewEngine(gw, v,
		execution.WithLocker(locker),
		execution.WithLotFilters(cfg.Lot.Filters, cfg.Lot.Rounding),
	)
}

func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			NewValidator,
			NewLocker,
			NewEngine,
		),
	)
}
