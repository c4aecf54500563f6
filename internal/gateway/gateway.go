package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"trade_executor/internal/models"
	"trade_executor/internal/risk"
)

// MarketOrderRequest: рыночный ордер. ReduceOnly только уменьшает позицию.
type MarketOrderRequest struct {
	Symbol        string
	Side          models.Side
	Quantity      decimal.Decimal
	ReduceOnly    bool
	PositionSide  models.PositionSide
	ClientOrderID string
}

// ProtectiveRequest: пара стоп/тейк на открытую позицию.
type ProtectiveRequest struct {
	Symbol        string
	StopLoss      decimal.Decimal
	TakeProfit    decimal.Decimal
	PositionSide  models.PositionSide
	Quantity      decimal.Decimal
	ClientOrderID string
}

// Gateway: всё, что движку нужно от биржи. Вызовы блокирующие, ретраев нет.
type Gateway interface {
	PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (models.Order, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetProtectiveOrders(ctx context.Context, req ProtectiveRequest) ([]models.Order, error)
}

// PositionReader: шлюз умеет отдать актуальную позицию.
type PositionReader interface {
	Position(ctx context.Context, symbol string) (*models.PositionInfo, error)
}

// AccountReader: шлюз умеет отдать баланс.
type AccountReader interface {
	Account(ctx context.Context) (models.AccountInfo, error)
}

// InstrumentProvider: шаги лота и цены с биржи.
type InstrumentProvider interface {
	LotFilter(ctx context.Context, symbol string) (risk.LotFilter, error)
}

// PriceSink: симулятор без своей ленты цен принимает последнюю цену снаружи.
type PriceSink interface {
	SetPrice(symbol string, px decimal.Decimal)
}
