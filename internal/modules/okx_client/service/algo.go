package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"trade_executor/internal/gateway"
	"trade_executor/internal/models"
)

// SetProtectiveOrders ставит две отдельные conditional-заявки: SL и TP, обе reduceOnly, исполнение по рынку.
func (c *Client) SetProtectiveOrders(ctx context.Context, req gateway.ProtectiveRequest) ([]models.Order, error) {
	inst, err := c.instrument(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	sz := inst.toContracts(req.Quantity)
	if !sz.IsPositive() {
		return nil, errors.Errorf("okx protective %s: size %s below one lot", req.Symbol, req.Quantity)
	}

	out := make([]models.Order, 0, 2)
	for _, isTP := range []bool{false, true} {
		price := req.StopLoss
		tag := "sl"
		if isTP {
			price, tag = req.TakeProfit, "tp"
		}
		algoID, err := c.placeSingleAlgo(ctx, req, sz, price, isTP, tag)
		if err != nil {
			return out, err
		}
		out = append(out, models.Order{
			ID:            algoID,
			ClientOrderID: algoClientID(req.ClientOrderID, tag),
			Symbol:        req.Symbol,
			Side:          req.PositionSide.ExitSide(),
			PositionSide:  req.PositionSide,
			Type:          "conditional_" + tag,
			Status:        "live",
			Quantity:      inst.toBase(sz),
			StopPrice:     price,
			ReduceOnly:    true,
			CreatedAt:     c.now(),
		})
	}
	return out, nil
}

func (c *Client) placeSingleAlgo(
	ctx context.Context,
	req gateway.ProtectiveRequest,
	sz, triggerPx decimal.Decimal,
	isTP bool,
	tag string,
) (string, error) {
	if !triggerPx.IsPositive() {
		return "", errors.Errorf("okx %s trigger price <= 0", tag)
	}

	body := map[string]string{
		"instId":     req.Symbol,
		"tdMode":     "cross",
		"side":       okxSide(req.PositionSide.ExitSide()),
		"ordType":    "conditional",
		"sz":         sz.String(),
		"reduceOnly": "true",
	}
	if id := algoClientID(req.ClientOrderID, tag); id != "" {
		body["algoClOrdId"] = id
	}
	if isTP {
		body["tpTriggerPx"] = triggerPx.String()
		body["tpOrdPx"] = "-1"
		body["tpTriggerPxType"] = "last"
	} else {
		body["slTriggerPx"] = triggerPx.String()
		body["slOrdPx"] = "-1"
		body["slTriggerPxType"] = "last"
	}

	r, err := c.do(ctx, "order-algo "+tag, http.MethodPost, "/api/v5/trade/order-algo", body)
	if err != nil {
		return "", err
	}
	algoID := r.Get("data.0.algoId").String()
	if algoID == "" {
		return "", errors.Errorf("okx order-algo %s: empty algoId", tag)
	}
	return algoID, nil
}

// CancelAllOrders снимает висящие conditional-заявки по инструменту. Рыночные ордера не висят.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	r, err := c.do(ctx, "orders-algo-pending", http.MethodGet,
		"/api/v5/trade/orders-algo-pending?ordType=conditional&instId="+url.QueryEscape(symbol), nil)
	if err != nil {
		return err
	}

	var cancel []map[string]string
	for _, row := range r.Get("data").Array() {
		if id := row.Get("algoId").String(); id != "" {
			cancel = append(cancel, map[string]string{"algoId": id, "instId": symbol})
		}
	}
	if len(cancel) == 0 {
		return nil
	}
	_, err = c.do(ctx, "cancel-algos", http.MethodPost, "/api/v5/trade/cancel-algos", cancel)
	return err
}

// algoClientID: OKX принимает только буквы и цифры до 32 символов.
func algoClientID(base, tag string) string {
	if base == "" {
		return ""
	}
	if len(base) > 30 {
		base = base[:30]
	}
	return base + tag
}
