package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"trade_executor/internal/modules/config"
	"trade_executor/pkg/db"
	"trade_executor/pkg/logger"
)

// NewTxManager поднимает пул только для locker.kind=postgres, иначе отдаёт nil.
func NewTxManager(ctx context.Context, lc fx.Lifecycle, cfg *config.Config) (*db.PgTxManager, error) {
	if cfg.Locker.Kind != config.LockerPostgres {
		return nil, nil
	}

	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN: cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}

	tx := db.NewPgTxManager(poolMaster)
	if err := tx.Ping(ctx); err != nil {
		tx.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info("postgres: connected")

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			tx.Close()
			return nil
		},
	})
	return tx, nil
}

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			NewTxManager,
		),
	)
}
