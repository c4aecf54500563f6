package paper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"trade_executor/internal/gateway"
	"trade_executor/internal/models"
	"trade_executor/internal/risk"
)

type Config struct {
	Balance float64            `mapstructure:"balance"`
	Prices  map[string]float64 `mapstructure:"prices"`
}

// Call: запись одного обращения к бирже.
type Call struct {
	Op         string
	Symbol     string
	Side       models.Side
	Quantity   decimal.Decimal
	ReduceOnly bool
	Leverage   int
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// Exchange: симуляция фьючерсной биржи в памяти: мгновенное исполнение по заданной цене.
type Exchange struct {
	mu         sync.Mutex
	balance    decimal.Decimal
	prices     map[string]decimal.Decimal
	positions  map[string]models.PositionInfo
	leverage   map[string]int
	protective map[string][]models.Order
	filters    map[string]risk.LotFilter
	calls      []Call
	seq        int64
	now        func() time.Time
}

var (
	_ gateway.Gateway            = (*Exchange)(nil)
	_ gateway.PositionReader     = (*Exchange)(nil)
	_ gateway.AccountReader      = (*Exchange)(nil)
	_ gateway.InstrumentProvider = (*Exchange)(nil)
	_ gateway.PriceSink          = (*Exchange)(nil)
)

func New(cfg Config) *Exchange {
	e := &Exchange{
		balance:    decimal.NewFromFloat(cfg.Balance),
		prices:     make(map[string]decimal.Decimal, len(cfg.Prices)),
		positions:  make(map[string]models.PositionInfo),
		leverage:   make(map[string]int),
		protective: make(map[string][]models.Order),
		filters:    make(map[string]risk.LotFilter),
		now:        time.Now,
	}
	for sym, px := range cfg.Prices {
		e.prices[sym] = decimal.NewFromFloat(px)
	}
	return e
}

func (e *Exchange) SetPrice(symbol string, px decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices[symbol] = px
}

func (e *Exchange) SetPosition(symbol string, amt decimal.Decimal, entry decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[symbol] = models.PositionInfo{Symbol: symbol, PositionAmt: amt, EntryPrice: entry, Leverage: e.leverage[symbol]}
}

func (e *Exchange) SetLotFilter(symbol string, f risk.LotFilter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters[symbol] = f
}

// Calls: копия журнала вызовов в порядке поступления.
func (e *Exchange) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}

// ProtectiveOrders: активные стоп/тейк по символу.
func (e *Exchange) ProtectiveOrders(symbol string) []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Order(nil), e.protective[symbol]...)
}

func (e *Exchange) PlaceMarketOrder(_ context.Context, req gateway.MarketOrderRequest) (models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, Call{Op: "place_market_order", Symbol: req.Symbol, Side: req.Side, Quantity: req.Quantity, ReduceOnly: req.ReduceOnly})

	px, ok := e.prices[req.Symbol]
	if !ok || !px.IsPositive() {
		return models.Order{}, errors.Errorf("paper: no price for %s", req.Symbol)
	}
	if !req.Quantity.IsPositive() {
		return models.Order{}, errors.Errorf("paper: quantity %s must be > 0", req.Quantity)
	}

	pos := e.positions[req.Symbol]
	pos.Symbol = req.Symbol
	delta := req.Quantity
	if req.Side == models.SideSell {
		delta = delta.Neg()
	}

	if req.ReduceOnly {
		// reduce-only не может открыть или развернуть позицию
		if pos.PositionAmt.IsZero() || pos.PositionAmt.Sign() == delta.Sign() {
			return models.Order{}, errors.Errorf("paper: reduce-only %s %s would increase position %s", req.Side, req.Quantity, pos.PositionAmt)
		}
		if delta.Abs().GreaterThan(pos.PositionAmt.Abs()) {
			delta = pos.PositionAmt.Neg()
		}
	}

	next := pos.PositionAmt.Add(delta)
	switch {
	case next.IsZero():
		pos.EntryPrice = decimal.Zero
	case pos.PositionAmt.IsZero() || pos.PositionAmt.Sign() != next.Sign():
		pos.EntryPrice = px
	case pos.PositionAmt.Sign() == delta.Sign():
		// усреднение входа при добавлении
		notional := pos.PositionAmt.Abs().Mul(pos.EntryPrice).Add(delta.Abs().Mul(px))
		pos.EntryPrice = notional.Div(next.Abs())
	}
	pos.PositionAmt = next
	pos.Leverage = e.leverage[req.Symbol]
	e.positions[req.Symbol] = pos
	if next.IsZero() {
		delete(e.protective, req.Symbol)
	}

	return models.Order{
		ID:            e.nextID(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		PositionSide:  req.PositionSide,
		Type:          "MARKET",
		Status:        "FILLED",
		Quantity:      delta.Abs(),
		AvgPrice:      px,
		ReduceOnly:    req.ReduceOnly,
		CreatedAt:     e.now(),
	}, nil
}

func (e *Exchange) CancelAllOrders(_ context.Context, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Op: "cancel_all_orders", Symbol: symbol})
	delete(e.protective, symbol)
	return nil
}

func (e *Exchange) SetLeverage(_ context.Context, symbol string, leverage int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Op: "set_leverage", Symbol: symbol, Leverage: leverage})
	if leverage < 1 {
		return errors.Errorf("paper: leverage %d must be >= 1", leverage)
	}
	e.leverage[symbol] = leverage
	return nil
}

func (e *Exchange) SetProtectiveOrders(_ context.Context, req gateway.ProtectiveRequest) ([]models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Op: "set_protective_orders", Symbol: req.Symbol, Quantity: req.Quantity, StopLoss: req.StopLoss, TakeProfit: req.TakeProfit})

	exit := req.PositionSide.ExitSide()
	orders := []models.Order{
		{ID: e.nextID(), ClientOrderID: req.ClientOrderID, Symbol: req.Symbol, Side: exit, PositionSide: req.PositionSide,
			Type: "STOP_MARKET", Status: "NEW", Quantity: req.Quantity, StopPrice: req.StopLoss, ReduceOnly: true, CreatedAt: e.now()},
		{ID: e.nextID(), ClientOrderID: req.ClientOrderID, Symbol: req.Symbol, Side: exit, PositionSide: req.PositionSide,
			Type: "TAKE_PROFIT_MARKET", Status: "NEW", Quantity: req.Quantity, StopPrice: req.TakeProfit, ReduceOnly: true, CreatedAt: e.now()},
	}
	e.protective[req.Symbol] = orders
	return orders, nil
}

func (e *Exchange) Position(_ context.Context, symbol string) (*models.PositionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[symbol]
	if !ok {
		return &models.PositionInfo{Symbol: symbol}, nil
	}
	return &pos, nil
}

func (e *Exchange) Account(_ context.Context) (models.AccountInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.AccountInfo{AvailableBalance: e.balance, TotalWalletBalance: e.balance}, nil
}

func (e *Exchange) LotFilter(_ context.Context, symbol string) (risk.LotFilter, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filters[symbol], nil
}

func (e *Exchange) nextID() string {
	e.seq++
	return "paper-" + strconv.FormatInt(e.seq, 10)
}
