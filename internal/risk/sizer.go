package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"trade_executor/internal/models"
)

var hundred = decimal.NewFromInt(100)

// PositionSize считает количество: balance * pct/100 * leverage / price.
// Любое нарушение ограничений: ValidationError, без тихого клэмпа.
func PositionSize(balance decimal.Decimal, positionPct float64, leverage int, price decimal.Decimal) (decimal.Decimal, error) {
	var errs error
	if balance.IsNegative() {
		errs = multierr.Append(errs, models.FieldError{Field: "balance", Reason: fmt.Sprintf("%s must be >= 0", balance)})
	}
	if !finite(positionPct) || positionPct < 0 || positionPct > 100 {
		errs = multierr.Append(errs, models.FieldError{Field: "position_size_pct", Reason: fmt.Sprintf("%v must be within [0, 100]", positionPct)})
	}
	if leverage < 1 {
		errs = multierr.Append(errs, models.FieldError{Field: "leverage", Reason: fmt.Sprintf("%d must be >= 1", leverage)})
	}
	if !price.IsPositive() {
		errs = multierr.Append(errs, models.FieldError{Field: "price", Reason: fmt.Sprintf("%s must be > 0", price)})
	}
	if errs != nil {
		return decimal.Zero, models.NewValidationError(multierr.Errors(errs)...)
	}

	return balance.
		Mul(decimal.NewFromFloat(positionPct)).
		Div(hundred).
		Mul(decimal.NewFromInt(int64(leverage))).
		Div(price), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
