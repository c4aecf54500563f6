package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"trade_executor/internal/gateway"
	"trade_executor/internal/modules/config"
)

const defaultBaseURL = "https://www.okx.com"

// Client: шлюз OKX v5 для SWAP в net-режиме (одна позиция на инструмент, знак = направление).
// Количество снаружи в базовой монете, на бирже: в контрактах; пересчёт через ctVal.
type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
	passph    string
	simulated bool

	mu          sync.RWMutex
	instruments map[string]Instrument
	now         func() time.Time
}

var (
	_ gateway.Gateway            = (*Client)(nil)
	_ gateway.PositionReader     = (*Client)(nil)
	_ gateway.AccountReader      = (*Client)(nil)
	_ gateway.InstrumentProvider = (*Client)(nil)
)

func NewClient(cfg config.Exchange) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		http:        &http.Client{Timeout: 10 * time.Second},
		baseURL:     base,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		passph:      cfg.Passphrase,
		simulated:   cfg.Testnet,
		instruments: make(map[string]Instrument),
		now:         time.Now,
	}
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(ts + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// do: подписанный запрос. Тело сериализуется sonic; ответ проверяется по code и data.0.sCode.
func (c *Client) do(ctx context.Context, op, method, requestPath string, payload any) (gjson.Result, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = sonic.Marshal(payload); err != nil {
			return gjson.Result{}, errors.Wrapf(err, "%s marshal", op)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "%s new request", op)
	}

	ts := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, method, requestPath, string(body)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	req.Header.Set("Content-Type", "application/json")
	if c.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "%s do", op)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return gjson.Result{}, errors.Errorf("%s http %d: %s", op, resp.StatusCode, string(data))
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, errors.Errorf("%s: invalid json body=%s", op, string(data))
	}

	r := gjson.ParseBytes(data)
	// детальный статус важнее общего кода
	if s := r.Get("data.0.sCode"); s.Exists() && s.String() != "0" {
		return r, errors.Errorf("%s rejected: sCode=%s sMsg=%s", op, s.String(), r.Get("data.0.sMsg").String())
	}
	if code := r.Get("code").String(); code != "0" {
		return r, errors.Errorf("%s error: code=%s msg=%s", op, code, r.Get("msg").String())
	}
	return r, nil
}
