package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"trade_executor/internal/intake"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/health/service"
)

func do(t *testing.T, mux http.Handler, method, path, body string) (int, gjson.Result) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec.Code, gjson.Parse(rec.Body.String())
}

func TestMux_Probes(t *testing.T) {
	state := service.NewState()
	mux := NewMux(state, intake.NewQueue(4))

	code, _ := do(t, mux, http.MethodGet, "/livez", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, mux, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	state.SetReady(true)
	code, _ = do(t, mux, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, code)

	state.Record(models.ExecutionResult{Success: true, Timestamp: time.Unix(1772366400, 0)})
	state.Record(models.ExecutionResult{Success: false, Timestamp: time.Unix(1772366460, 0)})

	code, body := do(t, mux, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, body.Get("ready").Bool())
	assert.Equal(t, "running", body.Get("mode").String())
	assert.Equal(t, int64(2), body.Get("executions").Int())
	assert.Equal(t, int64(1), body.Get("failures").Int())
	assert.Equal(t, int64(1772366460), body.Get("lastExecutionUnix").Int())
	assert.Equal(t, int64(0), body.Get("lastTickUnix").Int())
}

func TestMux_ControlAndDecisions(t *testing.T) {
	state := service.NewState()
	q := intake.NewQueue(4)
	mux := NewMux(state, q)

	code, body := do(t, mux, http.MethodPost, "/v1/decisions", `{"symbol":"BTCUSDT","action":"wait"}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.NotEmpty(t, body.Get("id").String())
	assert.Equal(t, 1, q.Len())

	code, body = do(t, mux, http.MethodPost, "/v1/control", `{"action":"pause"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paused", body.Get("mode").String())

	code, _ = do(t, mux, http.MethodPost, "/v1/decisions", `{"symbol":"BTCUSDT","action":"wait"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, mux, http.MethodPost, "/v1/control", `{"action":"restart"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, mux, http.MethodPost, "/v1/control", `{"action":`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, mux, http.MethodGet, "/v1/control", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)

	code, body = do(t, mux, http.MethodPost, "/v1/control", `{"action":"resume"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", body.Get("mode").String())
}

func TestState_RecentIsBounded(t *testing.T) {
	state := service.NewState()
	for i := 0; i < 25; i++ {
		state.Record(models.ExecutionResult{Success: true, Symbol: "S" + string(rune('A'+i))})
	}
	recent := state.Recent()
	require.Len(t, recent, 20)
	assert.Equal(t, "SY", recent[0].Symbol, "newest first")

	mux := NewMux(state, intake.NewQueue(1))
	_, body := do(t, mux, http.MethodGet, "/v1/status", "")
	assert.Len(t, body.Get("recent").Array(), 20)
	assert.Equal(t, int64(25), body.Get("executions").Int())
}
