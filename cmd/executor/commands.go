package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"trade_executor/internal/intake"
	"trade_executor/internal/modules/config"
	"trade_executor/internal/modules/execution"
	"trade_executor/internal/modules/gateway"
	"trade_executor/internal/modules/health"
	"trade_executor/internal/modules/okx_websocket"
	"trade_executor/internal/modules/postgres"
	"trade_executor/internal/notify"
	"trade_executor/internal/runner"
	"trade_executor/pkg/logger"
	"trade_executor/pkg/tracing"
)

type app struct {
	cfg         *config.Config
	closeTracer func()
}

func NewRootCmd() *cobra.Command {
	a := &app{closeTracer: func() {}}

	rootCmd := &cobra.Command{
		Use:           "executor",
		Short:         "Decision execution and risk-gating service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				if err := os.Setenv("CONFIG_FILE", path); err != nil {
					return err
				}
			}
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.closeTracer()
			logger.Sync()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Configuration file path (overrides CONFIG_FILE)")

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newExecCmd(a))
	return rootCmd
}

func (a *app) init() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger.SetServiceName(cfg.Service.Name)
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return err
	}
	tracing.SetServiceName(cfg.Service.Name)
	_, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.closeTracer = closer
	return nil
}

func (a *app) options() []fx.Option {
	return []fx.Option{
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.L()}
		}),
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(a.cfg),
		postgres.Module(),
		gateway.Module(),
		execution.Module(),
	}
}

// serve: HTTP-приём решений, очередь, лента цен, Telegram.
func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the executor service",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := append(a.options(),
				health.Module(),
				okx_websocket.Module(),
				notify.Module(),
				runner.Module(),
			)
			fxApp := fx.New(opts...)
			if err := fxApp.Err(); err != nil {
				return err
			}
			fxApp.Run()
			return nil
		},
	}
}

// exec: одно решение из файла синхронно; результат в stdout как JSON.
func newExecCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a single decision envelope (JSON or YAML) and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			env, err := intake.DecodeFile(path)
			if err != nil {
				return err
			}

			var r *runner.Runner
			opts := append(a.options(),
				fx.Provide(
					func() notify.Notifier { return notify.NewStdout() },
					runner.NewRunner,
				),
				fx.Populate(&r),
			)
			fxApp := fx.New(opts...)

			startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := fxApp.Start(startCtx); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = fxApp.Stop(stopCtx)
			}()

			res := r.Handle(cmd.Context(), env)
			out, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if !res.Success {
				return fmt.Errorf("execution failed: %s", res.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "Decision envelope file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
