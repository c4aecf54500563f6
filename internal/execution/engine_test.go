package execution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trade_executor/internal/gateway"
	"trade_executor/internal/gateway/paper"
	"trade_executor/internal/models"
	"trade_executor/internal/risk"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(gw gateway.Gateway, opts ...Option) *Engine {
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "cid" }),
	}, opts...)
	return NewEngine(gw, risk.NewValidator(risk.Limits{}), opts...)
}

func balance(s string) models.AccountInfo {
	return models.AccountInfo{AvailableBalance: d(s), TotalWalletBalance: d(s)}
}

func pos(amt string) *models.PositionInfo {
	return &models.PositionInfo{Symbol: "BTCUSDT", PositionAmt: d(amt)}
}

func openDecision(action models.Action) models.Decision {
	return models.Decision{
		Symbol:          "BTCUSDT",
		Action:          action,
		Leverage:        2,
		PositionSizePct: 10,
		StopLossPct:     2,
		TakeProfitPct:   4,
		CurrentPrice:    100,
		Confidence:      75,
	}
}

func TestExecute_PassiveIsNoOp(t *testing.T) {
	for _, raw := range []string{"hold", "wait", "observe", "keep"} {
		rec := &recorder{}
		res := newTestEngine(rec).Execute(context.Background(),
			models.Decision{Symbol: "BTCUSDT", Action: models.Action(raw)}, balance("1000"), pos("1"))

		assert.True(t, res.Success, raw)
		assert.Empty(t, rec.Calls(), raw)
		assert.Empty(t, res.Orders, raw)
		assert.Equal(t, fixedNow, res.Timestamp)
	}
}

func TestExecute_ClosePositionResolvesBySign(t *testing.T) {
	rec := &recorder{fillPrice: d("99.5")}
	res := newTestEngine(rec).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: models.ActionClosePosition}, balance("1000"), pos("-0.2"))

	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.ActionCloseShort, res.Action)
	assert.Equal(t, []string{"cancel_all_orders", "place_market_order"}, rec.Calls())

	require.Len(t, rec.orders, 1)
	assert.Equal(t, models.SideBuy, rec.orders[0].Side)
	assert.True(t, rec.orders[0].ReduceOnly)
	assert.True(t, rec.orders[0].Quantity.Equal(d("0.2")))
	assert.True(t, res.EntryPrice.Equal(d("99.5")))
}

func TestExecute_CloseLong(t *testing.T) {
	rec := &recorder{}
	res := newTestEngine(rec).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: "sell"}, balance("1000"), pos("0.3"))

	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.ActionCloseLong, res.Action)
	require.Len(t, rec.orders, 1)
	assert.Equal(t, models.SideSell, rec.orders[0].Side)
	assert.True(t, rec.orders[0].Quantity.Equal(d("0.3")))
}

func TestExecute_CloseDirectionMismatch(t *testing.T) {
	rec := &recorder{}
	res := newTestEngine(rec).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: models.ActionCloseLong}, balance("1000"), pos("-0.2"))

	assert.False(t, res.Success)
	assert.Equal(t, models.ActionCloseLong, res.Action)
	assert.Equal(t, models.KindDirectionMismatch, res.ErrorKind)
	assert.Contains(t, res.Message, "SHORT")
	assert.Empty(t, rec.Calls())
}

func TestExecute_CloseWhileFlat(t *testing.T) {
	rec := &recorder{}
	res := newTestEngine(rec).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: "exit"}, balance("1000"), nil)

	assert.False(t, res.Success)
	assert.Equal(t, models.KindNoPosition, res.ErrorKind)
	assert.Empty(t, rec.Calls())
}

func TestExecute_OpenLong(t *testing.T) {
	rec := &recorder{}
	res := newTestEngine(rec).Execute(context.Background(), openDecision("long"), balance("1000"), nil)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.ActionOpenLong, res.Action)
	assert.Equal(t, []string{"set_leverage", "place_market_order", "set_protective_orders"}, rec.Calls())

	require.Len(t, rec.orders, 1)
	assert.Equal(t, models.SideBuy, rec.orders[0].Side)
	assert.False(t, rec.orders[0].ReduceOnly)
	assert.True(t, rec.orders[0].Quantity.Equal(d("2")))
	assert.Equal(t, "cid", rec.orders[0].ClientOrderID)

	// цена исполнения не пришла → берём current_price
	assert.True(t, res.EntryPrice.Equal(d("100")))
	assert.True(t, res.StopLoss.Equal(d("98")))
	assert.True(t, res.TakeProfit.Equal(d("104")))
	assert.True(t, res.Quantity.Equal(d("2")))
	assert.Len(t, res.Orders, 3)

	require.Len(t, rec.protect, 1)
	assert.Equal(t, models.PositionLong, rec.protect[0].PositionSide)
	assert.True(t, rec.protect[0].Quantity.Equal(d("2")))
}

func TestExecute_OpenShortUsesFillPrice(t *testing.T) {
	rec := &recorder{fillPrice: d("200")}
	res := newTestEngine(rec).Execute(context.Background(), openDecision(models.ActionOpenShort), balance("1000"), nil)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.SideSell, rec.orders[0].Side)
	assert.True(t, res.EntryPrice.Equal(d("200")))
	assert.True(t, res.StopLoss.Equal(d("204")))
	assert.True(t, res.TakeProfit.Equal(d("192")))
}

func TestExecute_OpenRoundsToLotAndTick(t *testing.T) {
	rec := &recorder{fillPrice: d("100.03")}
	eng := newTestEngine(rec, WithLotFilters(map[string]risk.LotFilter{
		"BTCUSDT": {StepSize: d("0.3"), MinQty: d("0.3"), TickSize: d("0.1")},
	}, ""))

	res := eng.Execute(context.Background(), openDecision(models.ActionOpenLong), balance("1000"), nil)

	require.True(t, res.Success, res.Message)
	assert.True(t, res.Quantity.Equal(d("1.8")), "got %s", res.Quantity)
	// 100.03 * 0.98 = 98.0294 → вниз до 98.0; 100.03 * 1.04 = 104.0312 → вверх до 104.1
	assert.True(t, res.StopLoss.Equal(d("98")), "got %s", res.StopLoss)
	assert.True(t, res.TakeProfit.Equal(d("104.1")), "got %s", res.TakeProfit)
}

func TestExecute_OpenBelowMinLotTouchesNothing(t *testing.T) {
	rec := &recorder{}
	eng := newTestEngine(rec, WithLotFilters(map[string]risk.LotFilter{
		"BTCUSDT": {StepSize: d("1"), MinQty: d("5")},
	}, risk.RoundNearest))

	res := eng.Execute(context.Background(), openDecision(models.ActionOpenLong), balance("1000"), nil)

	assert.False(t, res.Success)
	assert.Equal(t, models.KindValidation, res.ErrorKind)
	assert.Empty(t, rec.Calls())
}

func TestExecute_OpenSizingViolations(t *testing.T) {
	rec := &recorder{}
	dec := openDecision(models.ActionOpenLong)
	dec.CurrentPrice = 0

	res := newTestEngine(rec).Execute(context.Background(), dec, balance("1000"), nil)
	assert.False(t, res.Success)
	assert.Equal(t, models.KindValidation, res.ErrorKind)

	res = newTestEngine(rec).Execute(context.Background(), openDecision(models.ActionOpenLong), balance("0"), nil)
	assert.False(t, res.Success)
	assert.Equal(t, models.KindValidation, res.ErrorKind)
	assert.Empty(t, rec.Calls())
}

func TestExecute_LeverageFailureIsAdvisory(t *testing.T) {
	gw := &mockGateway{}
	gw.On("SetLeverage", mock.Anything, "BTCUSDT", 2).Return(errors.New("leverage not modified"))
	gw.On("PlaceMarketOrder", mock.Anything, mock.Anything).
		Return(models.Order{ID: "9", AvgPrice: d("100")}, nil)
	gw.On("SetProtectiveOrders", mock.Anything, mock.Anything).
		Return([]models.Order{{ID: "10"}, {ID: "11"}}, nil)

	res := newTestEngine(gw).Execute(context.Background(), openDecision(models.ActionOpenLong), balance("1000"), nil)

	assert.True(t, res.Success, res.Message)
	gw.AssertExpectations(t)
}

func TestExecute_OrderFailureIsFatal(t *testing.T) {
	gw := &mockGateway{}
	gw.On("SetLeverage", mock.Anything, "BTCUSDT", 2).Return(nil)
	gw.On("PlaceMarketOrder", mock.Anything, mock.Anything).
		Return(models.Order{}, errors.New("insufficient margin"))

	res := newTestEngine(gw).Execute(context.Background(), openDecision(models.ActionOpenLong), balance("1000"), nil)

	assert.False(t, res.Success)
	assert.Equal(t, models.KindGateway, res.ErrorKind)
	assert.Contains(t, res.Message, "insufficient margin")
	assert.Contains(t, res.Message, "place_market_order")
	gw.AssertNotCalled(t, "SetProtectiveOrders", mock.Anything, mock.Anything)
}

func TestExecute_ProtectiveFailureKeepsEntryOrder(t *testing.T) {
	gw := &mockGateway{}
	gw.On("SetLeverage", mock.Anything, "BTCUSDT", 2).Return(nil)
	gw.On("PlaceMarketOrder", mock.Anything, mock.Anything).
		Return(models.Order{ID: "9", AvgPrice: d("100")}, nil)
	gw.On("SetProtectiveOrders", mock.Anything, mock.Anything).
		Return(nil, errors.New("stop price would trigger immediately"))

	res := newTestEngine(gw).Execute(context.Background(), openDecision(models.ActionOpenLong), balance("1000"), nil)

	assert.False(t, res.Success)
	assert.Equal(t, models.KindGateway, res.ErrorKind)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, "9", res.Orders[0].ID)
}

func TestExecute_CancelBeforeReduceOnly(t *testing.T) {
	var seq []string
	gw := &mockGateway{}
	gw.On("CancelAllOrders", mock.Anything, "BTCUSDT").
		Run(func(mock.Arguments) { seq = append(seq, "cancel") }).Return(nil)
	gw.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(r gateway.MarketOrderRequest) bool {
		return r.ReduceOnly && r.Side == models.SideSell
	})).Run(func(mock.Arguments) { seq = append(seq, "reduce") }).Return(models.Order{ID: "5"}, nil)

	res := newTestEngine(gw).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: models.ActionCloseLong}, balance("1000"), pos("1.5"))

	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"cancel", "reduce"}, seq)
}

func TestExecute_CancelFailureStopsClose(t *testing.T) {
	gw := &mockGateway{}
	gw.On("CancelAllOrders", mock.Anything, "BTCUSDT").Return(errors.New("timeout"))

	res := newTestEngine(gw).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: models.ActionClosePosition}, balance("1000"), pos("1"))

	assert.False(t, res.Success)
	assert.Equal(t, models.KindGateway, res.ErrorKind)
	gw.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything)
}

func TestExecute_LegacyReduceHalves(t *testing.T) {
	rec := &recorder{}
	res := newTestEngine(rec).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: models.ActionReducePosition}, balance("1000"), pos("-4"))

	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"place_market_order"}, rec.Calls())
	assert.Equal(t, models.SideBuy, rec.orders[0].Side)
	assert.True(t, rec.orders[0].ReduceOnly)
	assert.True(t, rec.orders[0].Quantity.Equal(d("2")))
}

func TestExecute_LegacyReduceTruncatesToLot(t *testing.T) {
	rec := &recorder{}
	eng := newTestEngine(rec, WithLotFilters(map[string]risk.LotFilter{
		"BTCUSDT": {StepSize: d("0.01"), Rounding: risk.RoundNearest},
	}, ""))

	res := eng.Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: models.ActionReducePosition}, balance("1000"), pos("0.055"))

	require.True(t, res.Success, res.Message)
	assert.True(t, rec.orders[0].Quantity.Equal(d("0.02")), "got %s", rec.orders[0].Quantity)
}

func TestExecute_LegacyOnFlat(t *testing.T) {
	for _, a := range []models.Action{models.ActionAddPosition, models.ActionReducePosition} {
		rec := &recorder{}
		res := newTestEngine(rec).Execute(context.Background(), openDecision(a), balance("1000"), pos("0"))

		assert.False(t, res.Success, a)
		assert.Equal(t, models.KindNoPosition, res.ErrorKind, a)
		assert.Contains(t, res.Message, "no position")
		assert.Empty(t, rec.Calls(), a)
	}
}

func TestExecute_LegacyAddFollowsPosition(t *testing.T) {
	rec := &recorder{}
	res := newTestEngine(rec).Execute(context.Background(), openDecision(models.ActionAddPosition), balance("1000"), pos("-1"))

	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.ActionOpenShort, res.Action)
	assert.Equal(t, models.SideSell, rec.orders[0].Side)
	assert.Equal(t, models.PositionShort, rec.protect[0].PositionSide)
}

func TestExecute_UnknownAction(t *testing.T) {
	rec := &recorder{}
	res := newTestEngine(rec).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: "teleport"}, balance("1000"), nil)

	assert.False(t, res.Success)
	assert.Equal(t, models.KindUnknownAction, res.ErrorKind)
	assert.Equal(t, models.Action("teleport"), res.Action)
	assert.Empty(t, rec.Calls())
}

func TestExecute_RecoversFromPanic(t *testing.T) {
	gw := &panicGateway{}
	res := newTestEngine(gw).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: models.ActionClosePosition}, balance("1000"), pos("1"))

	assert.False(t, res.Success)
	assert.Equal(t, models.KindInternal, res.ErrorKind)
	assert.Contains(t, res.Message, "exploded")
}

func TestExecute_RereadsPositionUnderLock(t *testing.T) {
	gw := &readerGateway{recorder: &recorder{}, pos: pos("0.7")}
	// снимок вызывающего устарел: он думает, что позиции нет
	res := newTestEngine(gw).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: models.ActionClosePosition}, balance("1000"), nil)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.ActionCloseLong, res.Action)
	assert.Equal(t, []string{"get_position", "cancel_all_orders", "place_market_order"}, gw.Calls())
	assert.True(t, gw.orders[0].Quantity.Equal(d("0.7")))

	gw = &readerGateway{recorder: &recorder{}, err: errors.New("503")}
	res = newTestEngine(gw).Execute(context.Background(),
		models.Decision{Symbol: "BTCUSDT", Action: models.ActionClosePosition}, balance("1000"), pos("1"))
	assert.False(t, res.Success)
	assert.Equal(t, models.KindGateway, res.ErrorKind)
	assert.Equal(t, []string{"get_position"}, gw.Calls())
}

func TestExecute_PaperRoundTrip(t *testing.T) {
	ex := paper.New(paper.Config{Balance: 1000, Prices: map[string]float64{"BTCUSDT": 100}})
	eng := newTestEngine(ex)
	ctx := context.Background()

	res := eng.Execute(ctx, openDecision(models.ActionOpenLong), balance("1000"), nil)
	require.True(t, res.Success, res.Message)

	p, err := ex.Position(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, p.PositionAmt.Equal(d("2")))
	assert.Len(t, ex.ProtectiveOrders("BTCUSDT"), 2)

	closeDec := models.Decision{Symbol: "BTCUSDT", Action: models.ActionClosePosition}
	res = eng.Execute(ctx, closeDec, balance("1000"), nil)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.ActionCloseLong, res.Action)
	assert.Empty(t, ex.ProtectiveOrders("BTCUSDT"))

	res = eng.Execute(ctx, closeDec, balance("1000"), nil)
	assert.False(t, res.Success)
	assert.Equal(t, models.KindNoPosition, res.ErrorKind)
}

// slowGateway считает одновременные вызовы по символу.
type slowGateway struct {
	recorder
	inFlight int32
	maxSeen  int32
}

func (g *slowGateway) CancelAllOrders(context.Context, string) error {
	n := atomic.AddInt32(&g.inFlight, 1)
	for {
		m := atomic.LoadInt32(&g.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&g.maxSeen, m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&g.inFlight, -1)
	return nil
}

func TestExecute_SerializesPerSymbol(t *testing.T) {
	gw := &slowGateway{}
	eng := newTestEngine(gw)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.Execute(context.Background(),
				models.Decision{Symbol: "BTCUSDT", Action: models.ActionClosePosition}, balance("1000"), pos("1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&gw.maxSeen))
}
