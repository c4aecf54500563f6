package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestPriceBook(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewPriceBook(time.Minute)
	b.now = func() time.Time { return now }

	b.Set("BTC-USDT-SWAP", decimal.RequireFromString("64000.5"), now.Add(-10*time.Second))
	b.Set("ETH-USDT-SWAP", decimal.Zero, now)

	px, ok := b.Last("BTCUSDT")
	require.True(t, ok)
	assert.True(t, px.Equal(decimal.RequireFromString("64000.5")))
	_, ok = b.Last("btc-usdt-swap")
	assert.True(t, ok)
	_, ok = b.Last("ETHUSDT")
	assert.False(t, ok, "non-positive price is ignored")

	now = now.Add(2 * time.Minute)
	_, ok = b.Last("BTCUSDT")
	assert.False(t, ok, "stale quote")
}

func TestCompactSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", compactSymbol("BTC-USDT-SWAP"))
	assert.Equal(t, "ETHUSDT", compactSymbol("eth-usdt"))
	assert.Equal(t, "SOLUSDT", compactSymbol("SOLUSDT"))
}

func TestClient_StreamsTickers(t *testing.T) {
	subscribed := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subscribed <- string(msg)

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`pong`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"},`+
			`"data":[{"instId":"BTC-USDT-SWAP","last":"64123.4","ts":"1772366400000"}]}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	book := NewPriceBook(0)
	var connected atomic.Bool
	var ticks atomic.Int32
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BTC-USDT-SWAP"}, book, Hooks{
		OnConnected: connected.Store,
		OnTick:      func(time.Time) { ticks.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(ctx)
	}()

	select {
	case msg := <-subscribed:
		r := gjson.Parse(msg)
		assert.Equal(t, "subscribe", r.Get("op").String())
		assert.Equal(t, "tickers", r.Get("args.0.channel").String())
		assert.Equal(t, "BTC-USDT-SWAP", r.Get("args.0.instId").String())
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe frame")
	}

	require.Eventually(t, func() bool {
		_, ok := book.Last("BTCUSDT")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	px, _ := book.Last("BTC-USDT-SWAP")
	assert.True(t, px.Equal(decimal.RequireFromString("64123.4")))
	assert.True(t, connected.Load())
	assert.Equal(t, int32(1), ticks.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
	assert.False(t, connected.Load())
}

func TestClient_NoSymbols(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", nil, NewPriceBook(0), Hooks{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start must return without symbols")
	}
}
