package service

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"trade_executor/pkg/logger"
)

const (
	tickersChannel = "tickers"
	pingInterval   = 20 * time.Second
	reconnectDelay = time.Second
)

// Hooks: колбэки состояния для health.
type Hooks struct {
	OnConnected func(bool)
	OnTick      func(time.Time)
}

// Client держит одно WebSocket-соединение с публичным каналом tickers и пишет цены в PriceBook.
type Client struct {
	url      string
	symbols  []string
	wsDialer *websocket.Dialer
	book     *PriceBook
	hooks    Hooks
}

func NewClient(url string, symbols []string, book *PriceBook, hooks Hooks) *Client {
	return &Client{
		url:      url,
		symbols:  symbols,
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		book:     book,
		hooks:    hooks,
	}
}

// Start: цикл подключения до отмены ctx. После обрыва переподключается через reconnectDelay.
func (c *Client) Start(ctx context.Context) {
	if len(c.symbols) == 0 {
		logger.Warn("market: no symbols configured, ticker stream not started")
		return
	}

	args := make([]map[string]string, 0, len(c.symbols))
	for _, id := range c.symbols {
		args = append(args, map[string]string{"channel": tickersChannel, "instId": id})
	}

	for {
		if err := c.session(ctx, args); err != nil {
			logger.Warn("market: ws session %s: %v", c.url, err)
		}
		c.connected(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) session(ctx context.Context, args []map[string]string) error {
	conn, _, err := c.wsDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		return err
	}
	logger.Info("market: subscribed to %d tickers", len(args))
	c.connected(true)

	// keepalive: без ping OKX рвёт соединение через 30s тишины
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-t.C:
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handle(msg)
	}
}

// handle разбирает кадр tickers; pong и служебные события пропускает.
func (c *Client) handle(msg []byte) {
	if !gjson.ValidBytes(msg) {
		return
	}
	frame := gjson.ParseBytes(msg)
	if ev := frame.Get("event").String(); ev == "error" {
		logger.Warn("market: ws error code=%s msg=%s", frame.Get("code").String(), frame.Get("msg").String())
		return
	}
	if frame.Get("arg.channel").String() != tickersChannel {
		return
	}

	for _, row := range frame.Get("data").Array() {
		px, err := decimal.NewFromString(row.Get("last").String())
		if err != nil {
			continue
		}
		at := time.Now()
		if ts := row.Get("ts").Int(); ts > 0 {
			at = time.UnixMilli(ts)
		}
		c.book.Set(row.Get("instId").String(), px, at)
		if c.hooks.OnTick != nil {
			c.hooks.OnTick(at)
		}
	}
}

func (c *Client) connected(v bool) {
	if c.hooks.OnConnected != nil {
		c.hooks.OnConnected(v)
	}
}
