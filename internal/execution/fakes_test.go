package execution

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"trade_executor/internal/gateway"
	"trade_executor/internal/models"
	"trade_executor/pkg/db"
)

// recorder пишет вызовы по порядку и исполняет ордера по fillPrice.
type recorder struct {
	mu        sync.Mutex
	calls     []string
	orders    []gateway.MarketOrderRequest
	protect   []gateway.ProtectiveRequest
	fillPrice decimal.Decimal
}

func (r *recorder) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) PlaceMarketOrder(_ context.Context, req gateway.MarketOrderRequest) (models.Order, error) {
	r.record("place_market_order")
	r.mu.Lock()
	r.orders = append(r.orders, req)
	r.mu.Unlock()
	return models.Order{
		ID:            "1",
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          "MARKET",
		Quantity:      req.Quantity,
		AvgPrice:      r.fillPrice,
		ReduceOnly:    req.ReduceOnly,
	}, nil
}

func (r *recorder) CancelAllOrders(context.Context, string) error {
	r.record("cancel_all_orders")
	return nil
}

func (r *recorder) SetLeverage(context.Context, string, int) error {
	r.record("set_leverage")
	return nil
}

func (r *recorder) SetProtectiveOrders(_ context.Context, req gateway.ProtectiveRequest) ([]models.Order, error) {
	r.record("set_protective_orders")
	r.mu.Lock()
	r.protect = append(r.protect, req)
	r.mu.Unlock()
	return []models.Order{
		{ID: "2", Symbol: req.Symbol, Type: "STOP_MARKET", StopPrice: req.StopLoss},
		{ID: "3", Symbol: req.Symbol, Type: "TAKE_PROFIT_MARKET", StopPrice: req.TakeProfit},
	}, nil
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) PlaceMarketOrder(ctx context.Context, req gateway.MarketOrderRequest) (models.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.Order), args.Error(1)
}

func (m *mockGateway) CancelAllOrders(ctx context.Context, symbol string) error {
	return m.Called(ctx, symbol).Error(0)
}

func (m *mockGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return m.Called(ctx, symbol, leverage).Error(0)
}

func (m *mockGateway) SetProtectiveOrders(ctx context.Context, req gateway.ProtectiveRequest) ([]models.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

// readerGateway: recorder, который ещё и отдаёт позицию.
type readerGateway struct {
	*recorder
	pos *models.PositionInfo
	err error
}

func (g *readerGateway) Position(context.Context, string) (*models.PositionInfo, error) {
	g.record("get_position")
	return g.pos, g.err
}

type panicGateway struct {
	recorder
}

func (g *panicGateway) CancelAllOrders(context.Context, string) error {
	panic("exchange client exploded")
}

// fakeTx / fakeTxManager: подмена pgx-транзакции для advisory lock.
type fakeTx struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execSQL = append(t.execSQL, sql)
	t.execArgs = append(t.execArgs, args)
	return pgconn.CommandTag{}, t.execErr
}

func (t *fakeTx) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (t *fakeTx) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

type fakeTxManager struct {
	tx        *fakeTx
	runs      int
	commitErr error
}

func (m *fakeTxManager) RunMaster(ctx context.Context, fn func(ctxTx context.Context, tx db.Transaction) error) error {
	m.runs++
	if err := fn(ctx, m.tx); err != nil {
		return err
	}
	return m.commitErr
}
