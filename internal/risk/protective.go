package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trade_executor/internal/models"
)

// StopLossPrice: LONG: ниже входа, SHORT, выше. Всегда строго по другую сторону от entry.
func StopLossPrice(entry decimal.Decimal, pct float64, side models.PositionSide) (decimal.Decimal, error) {
	offset, err := protectiveOffset("stop_loss_pct", entry, pct, side)
	if err != nil {
		return decimal.Zero, err
	}
	if side == models.PositionLong {
		if pct >= 100 {
			return decimal.Zero, models.NewValidationError(models.FieldError{
				Field: "stop_loss_pct", Reason: fmt.Sprintf("%v puts a long stop at or below zero", pct),
			})
		}
		return entry.Sub(offset), nil
	}
	return entry.Add(offset), nil
}

// TakeProfitPrice: LONG: выше входа, SHORT, ниже.
func TakeProfitPrice(entry decimal.Decimal, pct float64, side models.PositionSide) (decimal.Decimal, error) {
	offset, err := protectiveOffset("take_profit_pct", entry, pct, side)
	if err != nil {
		return decimal.Zero, err
	}
	if side == models.PositionShort {
		if pct >= 100 {
			return decimal.Zero, models.NewValidationError(models.FieldError{
				Field: "take_profit_pct", Reason: fmt.Sprintf("%v puts a short target at or below zero", pct),
			})
		}
		return entry.Sub(offset), nil
	}
	return entry.Add(offset), nil
}

func protectiveOffset(field string, entry decimal.Decimal, pct float64, side models.PositionSide) (decimal.Decimal, error) {
	if side != models.PositionLong && side != models.PositionShort {
		return decimal.Zero, models.NewValidationError(models.FieldError{
			Field: "side", Reason: fmt.Sprintf("%s is not a position direction", side),
		})
	}
	if !entry.IsPositive() {
		return decimal.Zero, models.NewValidationError(models.FieldError{
			Field: "entry_price", Reason: fmt.Sprintf("%s must be > 0", entry),
		})
	}
	if !finite(pct) || pct <= 0 {
		return decimal.Zero, models.NewValidationError(models.FieldError{
			Field: field, Reason: fmt.Sprintf("%v must be > 0", pct),
		})
	}
	offset := entry.Mul(decimal.NewFromFloat(pct)).Div(hundred)
	if !offset.IsPositive() {
		return decimal.Zero, models.NewValidationError(models.FieldError{
			Field: field, Reason: fmt.Sprintf("%v is too small for entry %s", pct, entry),
		})
	}
	return offset, nil
}
