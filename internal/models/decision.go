package models

import "github.com/shopspring/decimal"

// Decision: решение стратегии, один цикл = одно решение.
type Decision struct {
	Symbol          string  `json:"symbol" yaml:"symbol"`
	Action          Action  `json:"action" yaml:"action"`
	Leverage        int     `json:"leverage,omitempty" yaml:"leverage"`
	PositionSizePct float64 `json:"position_size_pct,omitempty" yaml:"position_size_pct"`
	PositionSizeUSD float64 `json:"position_size_usd,omitempty" yaml:"position_size_usd"`
	StopLossPct     float64 `json:"stop_loss_pct,omitempty" yaml:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct,omitempty" yaml:"take_profit_pct"`

	// абсолютные уровни, если модель отдала цены, а не проценты
	StopLoss   float64 `json:"stop_loss,omitempty" yaml:"stop_loss"`
	TakeProfit float64 `json:"take_profit,omitempty" yaml:"take_profit"`

	CurrentPrice float64 `json:"current_price,omitempty" yaml:"current_price"`
	Confidence   float64 `json:"confidence" yaml:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty" yaml:"reasoning"`
}

// Normalized возвращает копию с нормализованным действием.
func (d Decision) Normalized(side PositionSide) Decision {
	d.Action = NormalizeAction(string(d.Action), side)
	return d
}

// SizePercent: доля доступного баланса под маржу, в процентах.
// position_size_usd пересчитывается, только если процент не задан.
func (d Decision) SizePercent(available decimal.Decimal) float64 {
	if d.PositionSizePct > 0 {
		return d.PositionSizePct
	}
	if d.PositionSizeUSD <= 0 || !available.IsPositive() {
		return 0
	}
	pct := decimal.NewFromFloat(d.PositionSizeUSD).Div(available).Mul(hundred)
	return pct.InexactFloat64()
}

// StopLossPercent: процент стопа; при абсолютном уровне считается от ref.
func (d Decision) StopLossPercent(ref decimal.Decimal) float64 {
	if d.StopLossPct > 0 {
		return d.StopLossPct
	}
	return distancePct(ref, d.StopLoss)
}

// TakeProfitPercent: процент тейка; при абсолютном уровне считается от ref.
func (d Decision) TakeProfitPercent(ref decimal.Decimal) float64 {
	if d.TakeProfitPct > 0 {
		return d.TakeProfitPct
	}
	return distancePct(ref, d.TakeProfit)
}

// HasStopLoss / HasTakeProfit: задан ли уровень в любой форме.
func (d Decision) HasStopLoss() bool   { return d.StopLossPct > 0 || d.StopLoss > 0 }
func (d Decision) HasTakeProfit() bool { return d.TakeProfitPct > 0 || d.TakeProfit > 0 }

var hundred = decimal.NewFromInt(100)

func distancePct(ref decimal.Decimal, level float64) float64 {
	if level <= 0 || !ref.IsPositive() {
		return 0
	}
	dist := ref.Sub(decimal.NewFromFloat(level)).Abs()
	return dist.Div(ref).Mul(hundred).InexactFloat64()
}
