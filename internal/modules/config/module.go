package config

import "go.uber.org/fx"

// Module отдаёт в граф уже загруженный конфиг: логгер и трейсер поднимаются до fx.
func Module(cfg *Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
	)
}
