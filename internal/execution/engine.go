package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/shopspring/decimal"

	"trade_executor/internal/gateway"
	"trade_executor/internal/models"
	"trade_executor/internal/risk"
	"trade_executor/pkg/logger"
	"trade_executor/pkg/tracing"
)

var half = decimal.RequireFromString("0.5")

// Engine превращает решение в последовательность вызовов шлюза.
// Состояния позиции не хранит: каждый вызов выводит его из position_amt.
type Engine struct {
	gw       gateway.Gateway
	calc     risk.Calculator
	locker   SymbolLocker
	filters  map[string]risk.LotFilter
	rounding risk.Rounding
	now      func() time.Time
	newID    func() string
}

type Option func(*Engine)

func WithLocker(l SymbolLocker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithLotFilters: фильтры из конфига, имеют приоритет над биржевыми.
func WithLotFilters(filters map[string]risk.LotFilter, rounding risk.Rounding) Option {
	return func(e *Engine) {
		for sym, f := range filters {
			e.filters[sym] = f
		}
		if rounding != "" {
			e.rounding = rounding
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func NewEngine(gw gateway.Gateway, calc risk.Calculator, opts ...Option) *Engine {
	e := &Engine{
		gw:       gw,
		calc:     calc,
		locker:   NewMemoryLocker(),
		filters:  make(map[string]risk.LotFilter),
		rounding: risk.RoundTruncate,
		now:      time.Now,
		newID:    newClientOrderID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// newClientOrderID: 32 hex-символа: проходит и у Binance, и у OKX (clOrdId без дефисов).
func newClientOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Execute исполняет одно решение. Никогда не возвращает ошибку и не паникует наружу:
// любой сбой превращается в success=false с текстом ошибки.
func (e *Engine) Execute(
	ctx context.Context,
	decision models.Decision,
	account models.AccountInfo,
	position *models.PositionInfo,
) (res models.ExecutionResult) {
	span, ctx := tracing.StartSpan(ctx, "execution.Execute",
		opentracing.Tag{Key: "symbol", Value: decision.Symbol},
		opentracing.Tag{Key: "action", Value: string(decision.Action)},
	)
	res = models.NewResult(decision.Symbol, decision.Action, e.now())

	defer func() {
		if p := recover(); p != nil {
			logger.Error("execute %s %s panicked: %v", decision.Action, decision.Symbol, p)
			res = res.Fail(fmt.Errorf("internal error: %v", p))
		}
		var err error
		if !res.Success {
			err = res.Err()
		}
		span.SetTag("success", res.Success)
		tracing.Finish(span, err)
	}()

	ran := false
	err := e.locker.WithLock(ctx, decision.Symbol, func(ctx context.Context) error {
		ran = true
		res = e.execute(ctx, decision, account, position)
		return nil
	})
	switch {
	case err == nil:
	case ran:
		// ордера уже на бирже: результат не переписываем
		logger.Warn("execute %s %s: release lock: %v", res.Action, decision.Symbol, err)
	default:
		res = res.Fail(err)
	}
	return res
}

func (e *Engine) execute(
	ctx context.Context,
	d models.Decision,
	account models.AccountInfo,
	position *models.PositionInfo,
) models.ExecutionResult {
	res := models.NewResult(d.Symbol, d.Action, e.now())

	if rd, ok := e.gw.(gateway.PositionReader); ok {
		var fresh *models.PositionInfo
		out := step(ctx, fatal, "get_position", d.Symbol, func(ctx context.Context) error {
			var err error
			fresh, err = rd.Position(ctx, d.Symbol)
			return err
		})
		if out.aborts() {
			return res.Fail(out.err)
		}
		position = fresh
	}

	side := position.Side()
	action := models.NormalizeAction(string(d.Action), side)
	res.Action = action

	switch {
	case action.IsPassive():
		res.Success = true
		res.Message = fmt.Sprintf("%s: no action taken", action)
		return res

	case action == models.ActionAddPosition:
		if side == models.PositionFlat {
			return res.Fail(&models.NoPositionError{Symbol: d.Symbol, Action: action})
		}
		res.Action = models.ActionOpenLong
		if side == models.PositionShort {
			res.Action = models.ActionOpenShort
		}
		return e.open(ctx, res, d, account, side)

	case action == models.ActionReducePosition:
		if side == models.PositionFlat {
			return res.Fail(&models.NoPositionError{Symbol: d.Symbol, Action: action})
		}
		return e.reduce(ctx, res, d, position)

	case action.IsOpen():
		return e.open(ctx, res, d, account, action.OpenSide())

	case action.IsClose():
		return e.close(ctx, res, d, position)

	default:
		err := &models.UnknownActionError{Action: action}
		logger.Error("%s: %v", d.Symbol, err)
		return res.Fail(err)
	}
}

// open: расчёт размера → плечо (advisory) → рыночный ордер → цена входа → SL/TP → защитные ордера.
// Размер считается до первого вызова биржи: некорректное решение не трогает шлюз.
func (e *Engine) open(
	ctx context.Context,
	res models.ExecutionResult,
	d models.Decision,
	account models.AccountInfo,
	side models.PositionSide,
) models.ExecutionResult {
	lev := d.Leverage
	if lev < 1 {
		lev = 1
	}
	if d.CurrentPrice <= 0 {
		return res.Fail(models.NewValidationError(models.FieldError{Field: "current_price", Reason: "required to size an open"}))
	}
	price := decimal.NewFromFloat(d.CurrentPrice)

	qty, err := e.calc.PositionSize(account.AvailableBalance, d.SizePercent(account.AvailableBalance), lev, price)
	if err != nil {
		return res.Fail(err)
	}
	filter, err := e.lotFilter(ctx, d.Symbol)
	if err != nil {
		return res.Fail(err)
	}
	if qty, err = filter.RoundQuantity(qty); err != nil {
		return res.Fail(err)
	}

	_ = step(ctx, advisory, "set_leverage", d.Symbol, func(ctx context.Context) error {
		return e.gw.SetLeverage(ctx, d.Symbol, lev)
	})

	var order models.Order
	out := step(ctx, fatal, "place_market_order", d.Symbol, func(ctx context.Context) error {
		var err error
		order, err = e.gw.PlaceMarketOrder(ctx, gateway.MarketOrderRequest{
			Symbol:        d.Symbol,
			Side:          side.EntrySide(),
			Quantity:      qty,
			PositionSide:  side,
			ClientOrderID: e.newID(),
		})
		return err
	})
	if out.aborts() {
		return res.Fail(out.err)
	}
	res.Orders = append(res.Orders, order)
	res.Quantity = models.DecimalPtr(qty)

	entry, ok := order.FillPrice()
	if !ok {
		entry = price
	}
	res.EntryPrice = models.DecimalPtr(entry)

	sl, err := e.calc.StopLossPrice(entry, d.StopLossPercent(price), side)
	if err != nil {
		return res.Fail(err)
	}
	tp, err := e.calc.TakeProfitPrice(entry, d.TakeProfitPercent(price), side)
	if err != nil {
		return res.Fail(err)
	}
	sl, tp = filter.RoundStop(sl, side), filter.RoundTakeProfit(tp, side)
	res.StopLoss = models.DecimalPtr(sl)
	res.TakeProfit = models.DecimalPtr(tp)

	var protective []models.Order
	out = step(ctx, fatal, "set_protective_orders", d.Symbol, func(ctx context.Context) error {
		var err error
		protective, err = e.gw.SetProtectiveOrders(ctx, gateway.ProtectiveRequest{
			Symbol:        d.Symbol,
			StopLoss:      sl,
			TakeProfit:    tp,
			PositionSide:  side,
			Quantity:      qty,
			ClientOrderID: e.newID(),
		})
		return err
	})
	if out.aborts() {
		return res.Fail(out.err)
	}
	res.Orders = append(res.Orders, protective...)

	res.Success = true
	res.Message = fmt.Sprintf("opened %s %s %s @ %s (sl %s, tp %s, %dx)", side, qty, d.Symbol, entry, sl, tp, lev)
	logger.Info("%s: %s", d.Symbol, res.Message)
	return res
}

// close: отмена всех ордеров строго до reduce-only ордера на весь размер.
func (e *Engine) close(
	ctx context.Context,
	res models.ExecutionResult,
	d models.Decision,
	position *models.PositionInfo,
) models.ExecutionResult {
	side := position.Side()
	if side == models.PositionFlat {
		return res.Fail(&models.NoPositionError{Symbol: d.Symbol, Action: res.Action})
	}
	if (res.Action == models.ActionCloseLong && side != models.PositionLong) ||
		(res.Action == models.ActionCloseShort && side != models.PositionShort) {
		return res.Fail(&models.DirectionMismatchError{Symbol: d.Symbol, Requested: res.Action, Actual: side})
	}

	out := step(ctx, fatal, "cancel_all_orders", d.Symbol, func(ctx context.Context) error {
		return e.gw.CancelAllOrders(ctx, d.Symbol)
	})
	if out.aborts() {
		return res.Fail(out.err)
	}

	return e.reduceOnly(ctx, res, d.Symbol, side, position.Size(), "closed")
}

// reduce (legacy): половина позиции reduce-only, без отмены защитных ордеров.
func (e *Engine) reduce(
	ctx context.Context,
	res models.ExecutionResult,
	d models.Decision,
	position *models.PositionInfo,
) models.ExecutionResult {
	qty := position.Size().Mul(half)
	filter, err := e.lotFilter(ctx, d.Symbol)
	if err != nil {
		return res.Fail(err)
	}
	filter.Rounding = risk.RoundTruncate
	if qty, err = filter.RoundQuantity(qty); err != nil {
		return res.Fail(err)
	}
	return e.reduceOnly(ctx, res, d.Symbol, position.Side(), qty, "reduced")
}

func (e *Engine) reduceOnly(
	ctx context.Context,
	res models.ExecutionResult,
	symbol string,
	side models.PositionSide,
	qty decimal.Decimal,
	verb string,
) models.ExecutionResult {
	var order models.Order
	out := step(ctx, fatal, "place_market_order", symbol, func(ctx context.Context) error {
		var err error
		order, err = e.gw.PlaceMarketOrder(ctx, gateway.MarketOrderRequest{
			Symbol:        symbol,
			Side:          side.ExitSide(),
			Quantity:      qty,
			ReduceOnly:    true,
			PositionSide:  side,
			ClientOrderID: e.newID(),
		})
		return err
	})
	if out.aborts() {
		return res.Fail(out.err)
	}

	res.Orders = append(res.Orders, order)
	res.Quantity = models.DecimalPtr(qty)
	if px, ok := order.FillPrice(); ok {
		res.EntryPrice = models.DecimalPtr(px)
	}
	res.Success = true
	res.Message = fmt.Sprintf("%s %s %s %s", verb, side, qty, symbol)
	logger.Info("%s: %s", symbol, res.Message)
	return res
}

// lotFilter: конфиг → биржа → без округления.
func (e *Engine) lotFilter(ctx context.Context, symbol string) (risk.LotFilter, error) {
	if f, ok := e.filters[symbol]; ok {
		if f.Rounding == "" {
			f.Rounding = e.rounding
		}
		return f, nil
	}

	if p, ok := e.gw.(gateway.InstrumentProvider); ok {
		var f risk.LotFilter
		out := step(ctx, fatal, "get_lot_filter", symbol, func(ctx context.Context) error {
			var err error
			f, err = p.LotFilter(ctx, symbol)
			return err
		})
		if out.aborts() {
			return risk.LotFilter{}, out.err
		}
		if !f.IsZero() {
			if f.Rounding == "" {
				f.Rounding = e.rounding
			}
			return f, nil
		}
	}

	logger.Debug("%s: no lot filter, quantity goes unrounded", symbol)
	return risk.LotFilter{Rounding: e.rounding}, nil
}
