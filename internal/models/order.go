package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order: запись ордера в том виде, в каком её вернул шлюз.
// Движок читает только цену исполнения, остальное пробрасывается в отчёт.
type Order struct {
	ID            string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	PositionSide  PositionSide    `json:"position_side,omitempty"`
	Type          string          `json:"type"`
	Status        string          `json:"status,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	StopPrice     decimal.Decimal `json:"stop_price,omitempty"`
	ReduceOnly    bool            `json:"reduce_only"`
	CreatedAt     time.Time       `json:"created_at"`
	Raw           map[string]any  `json:"raw,omitempty"`
}

// FillPrice: средняя цена исполнения, если биржа её отдала.
func (o Order) FillPrice() (decimal.Decimal, bool) {
	if o.AvgPrice.IsPositive() {
		return o.AvgPrice, true
	}
	return decimal.Zero, false
}
