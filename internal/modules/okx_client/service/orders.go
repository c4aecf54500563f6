package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"trade_executor/internal/gateway"
	"trade_executor/internal/models"
)

func (c *Client) PlaceMarketOrder(ctx context.Context, req gateway.MarketOrderRequest) (models.Order, error) {
	inst, err := c.instrument(ctx, req.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	sz := inst.toContracts(req.Quantity)
	if !sz.IsPositive() {
		return models.Order{}, errors.Errorf("okx order %s: size %s below one lot", req.Symbol, req.Quantity)
	}

	body := map[string]string{
		"instId":  req.Symbol,
		"tdMode":  "cross",
		"side":    okxSide(req.Side),
		"ordType": "market",
		"sz":      sz.String(),
	}
	if req.ReduceOnly {
		body["reduceOnly"] = "true"
	}
	if req.ClientOrderID != "" {
		body["clOrdId"] = req.ClientOrderID
	}

	r, err := c.do(ctx, "order", http.MethodPost, "/api/v5/trade/order", body)
	if err != nil {
		return models.Order{}, errors.Wrapf(err, "okx %s %s %s", req.Side, req.Quantity, req.Symbol)
	}

	order := models.Order{
		ID:            r.Get("data.0.ordId").String(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		PositionSide:  req.PositionSide,
		Type:          "market",
		Status:        "live",
		Quantity:      inst.toBase(sz),
		ReduceOnly:    req.ReduceOnly,
		CreatedAt:     c.now(),
	}

	// цена исполнения не приходит в ответе на размещение; дочитываем, при неудаче движок возьмёт current_price
	if d, err := c.do(ctx, "order detail", http.MethodGet,
		"/api/v5/trade/order?instId="+url.QueryEscape(req.Symbol)+"&ordId="+url.QueryEscape(order.ID), nil); err == nil {
		row := d.Get("data.0")
		order.AvgPrice = parseDecimal(row.Get("avgPx").String())
		if st := row.Get("state").String(); st != "" {
			order.Status = st
		}
		if filled := parseDecimal(row.Get("accFillSz").String()); filled.IsPositive() {
			order.Quantity = inst.toBase(filled)
		}
		if raw, ok := row.Value().(map[string]any); ok {
			order.Raw = raw
		}
	}
	return order, nil
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.do(ctx, "set-leverage", http.MethodPost, "/api/v5/account/set-leverage", map[string]string{
		"instId":  symbol,
		"lever":   strconv.Itoa(leverage),
		"mgnMode": "cross",
	})
	return err
}

func okxSide(s models.Side) string {
	if s == models.SideSell {
		return "sell"
	}
	return "buy"
}
