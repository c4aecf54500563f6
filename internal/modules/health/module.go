package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/fx"

	"trade_executor/internal/intake"
	"trade_executor/internal/modules/config"
	"trade_executor/internal/modules/health/service"
	"trade_executor/pkg/logger"
)

type Config struct {
	Addr string // например ":8080"
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.Port)}
}

func NewMux(state *service.State, q *intake.Queue) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: сервис готов обслуживать трафик
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ready":             state.Ready(),
			"mode":              state.Mode(),
			"wsConnected":       state.WSConnected(),
			"uptimeSec":         int64(state.Uptime().Seconds()),
			"lastTickUnix":      unixOrZero(state.LastTick()),
			"lastExecutionUnix": unixOrZero(state.LastExecution()),
			"executions":        state.Executions(),
			"failures":          state.Failures(),
			"queued":            q.Len(),
		})
	})

	mux.HandleFunc("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"mode":       state.Mode(),
			"executions": state.Executions(),
			"failures":   state.Failures(),
			"recent":     state.Recent(),
		})
	})

	mux.HandleFunc("/v1/control", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var cmd struct {
			Action string `json:"action"`
		}
		if err := sonic.ConfigStd.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		switch strings.ToLower(cmd.Action) {
		case "start", "resume":
			state.SetPaused(false)
		case "pause", "stop":
			state.SetPaused(true)
		default:
			http.Error(w, "invalid action", http.StatusBadRequest)
			return
		}
		logger.Info("control: %s, mode=%s", cmd.Action, state.Mode())
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "mode": state.Mode()})
	})

	mux.Handle("/v1/decisions", intake.Handler(q, state.Accepting))

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux, state *service.State) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			logger.Info("http: listening on %s", ln.Addr())
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("http: serve: %v", err)
				}
			}()
			state.SetReady(true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetReady(false)
			return srv.Shutdown(ctx)
		},
	})
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigStd.NewEncoder(w).Encode(v)
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewConfig,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
