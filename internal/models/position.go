package models

import "github.com/shopspring/decimal"

// AccountInfo: снимок баланса на момент цикла.
type AccountInfo struct {
	AvailableBalance   decimal.Decimal `json:"available_balance"`
	TotalWalletBalance decimal.Decimal `json:"total_wallet_balance"`
}

// PositionInfo: позиция по символу. Сторона не хранится: только знак PositionAmt.
type PositionInfo struct {
	Symbol      string          `json:"symbol,omitempty"`
	PositionAmt decimal.Decimal `json:"position_amt"`
	EntryPrice  decimal.Decimal `json:"entry_price,omitempty"`
	Leverage    int             `json:"leverage,omitempty"`
}

// Side выводит направление из знака. Ровно ноль: flat, без допусков.
// nil-позиция тоже flat.
func (p *PositionInfo) Side() PositionSide {
	if p == nil {
		return PositionFlat
	}
	switch p.PositionAmt.Sign() {
	case 1:
		return PositionLong
	case -1:
		return PositionShort
	default:
		return PositionFlat
	}
}

func (p *PositionInfo) IsFlat() bool { return p.Side() == PositionFlat }

// Size: модуль количества.
func (p *PositionInfo) Size() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.PositionAmt.Abs()
}

// MarketSnapshot: то, что валидатор знает о рынке.
type MarketSnapshot struct {
	CurrentPrice decimal.Decimal `json:"current_price"`
}
