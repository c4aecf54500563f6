package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trade_executor/internal/models"
)

// Rounding: политика приведения количества к шагу лота.
type Rounding string

const (
	// RoundTruncate: вниз к шагу (по умолчанию: никогда не превышаем расчётный риск).
	RoundTruncate Rounding = "truncate"
	// RoundNearest: к ближайшему шагу.
	RoundNearest Rounding = "nearest"
)

// LotFilter: ограничения инструмента: шаг количества, минимум, шаг цены.
// Нулевой StepSize/TickSize означает «без округления».
type LotFilter struct {
	StepSize decimal.Decimal `mapstructure:"step_size"`
	MinQty   decimal.Decimal `mapstructure:"min_qty"`
	TickSize decimal.Decimal `mapstructure:"tick_size"`
	Rounding Rounding        `mapstructure:"rounding"`
}

// IsZero: фильтр не задан вообще.
func (f LotFilter) IsZero() bool {
	return f.StepSize.IsZero() && f.MinQty.IsZero() && f.TickSize.IsZero()
}

// RoundQuantity приводит количество к шагу. Ниже минимума: ошибка, до минимума не поднимаем.
func (f LotFilter) RoundQuantity(qty decimal.Decimal) (decimal.Decimal, error) {
	out := qty
	if f.StepSize.IsPositive() {
		steps := qty.Div(f.StepSize)
		if f.Rounding == RoundNearest {
			steps = steps.Round(0)
		} else {
			steps = steps.Floor()
		}
		out = steps.Mul(f.StepSize)
	}
	if !out.IsPositive() {
		return decimal.Zero, models.NewValidationError(models.FieldError{
			Field:  "quantity",
			Reason: fmt.Sprintf("%s rounds to zero with step %s", qty, f.StepSize),
		})
	}
	if f.MinQty.IsPositive() && out.LessThan(f.MinQty) {
		return decimal.Zero, models.NewValidationError(models.FieldError{
			Field:  "quantity",
			Reason: fmt.Sprintf("%s is below min lot %s", out, f.MinQty),
		})
	}
	return out, nil
}

// RoundStop округляет стоп от входа: LONG вниз, SHORT вверх.
func (f LotFilter) RoundStop(px decimal.Decimal, side models.PositionSide) decimal.Decimal {
	return f.roundPrice(px, side == models.PositionShort)
}

// RoundTakeProfit округляет тейк от входа: LONG вверх, SHORT вниз.
func (f LotFilter) RoundTakeProfit(px decimal.Decimal, side models.PositionSide) decimal.Decimal {
	return f.roundPrice(px, side == models.PositionLong)
}

func (f LotFilter) roundPrice(px decimal.Decimal, up bool) decimal.Decimal {
	if !f.TickSize.IsPositive() {
		return px
	}
	steps := px.Div(f.TickSize)
	if up {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}
	out := steps.Mul(f.TickSize)
	if !out.IsPositive() {
		return px
	}
	return out
}
