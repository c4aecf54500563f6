package service

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"trade_executor/internal/gateway"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"
	"trade_executor/internal/risk"
)

// Client: шлюз USDⓈ-M фьючерсов Binance. Аккаунт в one-way режиме:
// positionSide не передаём, закрытие через reduceOnly.
type Client struct {
	api *futures.Client

	mu      sync.RWMutex
	filters map[string]risk.LotFilter
}

var (
	_ gateway.Gateway            = (*Client)(nil)
	_ gateway.PositionReader     = (*Client)(nil)
	_ gateway.AccountReader      = (*Client)(nil)
	_ gateway.InstrumentProvider = (*Client)(nil)
)

const (
	mainnetBaseURL = "https://fapi.binance.com"
	testnetBaseURL = "https://testnet.binancefuture.com"
)

// NewClient: адрес выбирается на клиенте, глобальный futures.UseTestnet не трогаем.
func NewClient(cfg config.Exchange) *Client {
	api := futures.NewClient(cfg.APIKey, cfg.APISecret)
	api.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	api.BaseURL = baseURL(cfg)
	return &Client{api: api}
}

func baseURL(cfg config.Exchange) string {
	switch {
	case cfg.BaseURL != "":
		return cfg.BaseURL
	case cfg.Testnet:
		return testnetBaseURL
	default:
		return mainnetBaseURL
	}
}

func (c *Client) PlaceMarketOrder(ctx context.Context, req gateway.MarketOrderRequest) (models.Order, error) {
	svc := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(sideType(req.Side)).
		Type(futures.OrderTypeMarket).
		Quantity(req.Quantity.String()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return models.Order{}, errors.Wrapf(err, "binance create %s %s %s", req.Side, req.Quantity, req.Symbol)
	}
	order := toOrder(resp)
	order.PositionSide = req.PositionSide
	return order, nil
}

func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	if err := c.api.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return errors.Wrapf(err, "binance cancel all %s", symbol)
	}
	return nil
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if _, err := c.api.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx); err != nil {
		return errors.Wrapf(err, "binance leverage %s %dx", symbol, leverage)
	}
	return nil
}

// SetProtectiveOrders ставит STOP_MARKET и TAKE_PROFIT_MARKET с closePosition по mark price.
func (c *Client) SetProtectiveOrders(ctx context.Context, req gateway.ProtectiveRequest) ([]models.Order, error) {
	exit := sideType(req.PositionSide.ExitSide())
	legs := []struct {
		typ   futures.OrderType
		price decimal.Decimal
		tag   string
	}{
		{futures.OrderTypeStopMarket, req.StopLoss, "sl"},
		{futures.OrderTypeTakeProfitMarket, req.TakeProfit, "tp"},
	}

	out := make([]models.Order, 0, len(legs))
	for _, leg := range legs {
		svc := c.api.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(exit).
			Type(leg.typ).
			StopPrice(leg.price.String()).
			ClosePosition(true).
			WorkingType(futures.WorkingTypeMarkPrice)
		if req.ClientOrderID != "" {
			svc = svc.NewClientOrderID(clientID(req.ClientOrderID, leg.tag))
		}
		resp, err := svc.Do(ctx)
		if err != nil {
			return out, errors.Wrapf(err, "binance %s %s @ %s", leg.typ, req.Symbol, leg.price)
		}
		order := toOrder(resp)
		order.PositionSide = req.PositionSide
		out = append(out, order)
	}
	return out, nil
}

func (c *Client) Position(ctx context.Context, symbol string) (*models.PositionInfo, error) {
	risks, err := c.api.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "binance position risk %s", symbol)
	}
	pos := &models.PositionInfo{Symbol: symbol}
	for _, r := range risks {
		if r == nil || r.Symbol != symbol {
			continue
		}
		amt := parseDecimal(r.PositionAmt)
		// в hedge-режиме строк две: суммируем
		pos.PositionAmt = pos.PositionAmt.Add(amt)
		if !amt.IsZero() {
			pos.EntryPrice = parseDecimal(r.EntryPrice)
		}
		if lev, err := strconv.Atoi(r.Leverage); err == nil {
			pos.Leverage = lev
		}
	}
	return pos, nil
}

func (c *Client) Account(ctx context.Context) (models.AccountInfo, error) {
	acc, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return models.AccountInfo{}, errors.Wrap(err, "binance account")
	}
	return models.AccountInfo{
		AvailableBalance:   parseDecimal(acc.AvailableBalance),
		TotalWalletBalance: parseDecimal(acc.TotalWalletBalance),
	}, nil
}

// LotFilter: LOT_SIZE и PRICE_FILTER из exchangeInfo, кэшируются на время жизни клиента.
func (c *Client) LotFilter(ctx context.Context, symbol string) (risk.LotFilter, error) {
	c.mu.RLock()
	f, ok := c.filters[symbol]
	loaded := c.filters != nil
	c.mu.RUnlock()
	if ok || loaded {
		return f, nil
	}

	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return risk.LotFilter{}, errors.Wrap(err, "binance exchange info")
	}

	filters := make(map[string]risk.LotFilter, len(info.Symbols))
	for _, s := range info.Symbols {
		var lf risk.LotFilter
		if lot := s.LotSizeFilter(); lot != nil {
			lf.StepSize = parseDecimal(lot.StepSize)
			lf.MinQty = parseDecimal(lot.MinQuantity)
		}
		if pf := s.PriceFilter(); pf != nil {
			lf.TickSize = parseDecimal(pf.TickSize)
		}
		filters[s.Symbol] = lf
	}

	c.mu.Lock()
	c.filters = filters
	c.mu.Unlock()
	return filters[symbol], nil
}

func sideType(s models.Side) futures.SideType {
	if s == models.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func toOrder(resp *futures.CreateOrderResponse) models.Order {
	qty := parseDecimal(resp.ExecutedQuantity)
	if qty.IsZero() {
		qty = parseDecimal(resp.OrigQuantity)
	}
	return models.Order{
		ID:            strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          models.Side(resp.Side),
		Type:          string(resp.Type),
		Status:        string(resp.Status),
		Quantity:      qty,
		AvgPrice:      parseDecimal(resp.AvgPrice),
		StopPrice:     parseDecimal(resp.StopPrice),
		ReduceOnly:    resp.ReduceOnly,
		CreatedAt:     time.UnixMilli(resp.UpdateTime),
	}
}

// clientID: у Binance лимит 36 символов, суффикс ноги помещается в него.
func clientID(base, tag string) string {
	if len(base) > 33 {
		base = base[:33]
	}
	return base + "-" + tag
}

func parseDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}
