package intake

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"trade_executor/pkg/logger"
)

const (
	maxBodyBytes = 1 << 20
	waitTimeout  = 30 * time.Second
)

// Handler: POST /v1/decisions. С ?wait=1 отвечает результатом исполнения, иначе 202 и id задания.
// accepting=false (пауза) даёт 409.
func Handler(q *Queue, accepting func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		if accepting != nil && !accepting() {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "execution paused"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		env, err := Decode(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		if r.URL.Query().Get("wait") == "" {
			id, err := q.Submit(env)
			if err != nil {
				writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
				return
			}
			logger.Debug("intake: queued %s %s %s", id, env.Decision.Action, env.Decision.Symbol)
			writeJSON(w, http.StatusAccepted, map[string]any{"id": id})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), waitTimeout)
		defer cancel()
		id, res, err := q.SubmitWait(ctx, env)
		if err != nil {
			writeJSON(w, statusFor(err), map[string]any{"id": id, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "result": res})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		logger.Error("intake: encode response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
