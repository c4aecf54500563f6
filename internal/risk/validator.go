package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"trade_executor/internal/models"
)

// Limits: риск-лимиты валидатора.
type Limits struct {
	MaxLeverage         int     `mapstructure:"max_leverage"`
	MaxTotalPositionPct float64 `mapstructure:"max_total_position_pct"`
	MinRiskReward       float64 `mapstructure:"min_risk_reward"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxLeverage:         5,
		MaxTotalPositionPct: 80,
		MinRiskReward:       2.0,
	}
}

// Calculator: математика размера и защитных уровней, общая для валидатора и движка.
type Calculator interface {
	PositionSize(balance decimal.Decimal, positionPct float64, leverage int, price decimal.Decimal) (decimal.Decimal, error)
	StopLossPrice(entry decimal.Decimal, pct float64, side models.PositionSide) (decimal.Decimal, error)
	TakeProfitPrice(entry decimal.Decimal, pct float64, side models.PositionSide) (decimal.Decimal, error)
}

type Validator struct {
	limits Limits
}

var _ Calculator = (*Validator)(nil)

// NewValidator: нулевые поля лимитов заменяются значениями по умолчанию.
func NewValidator(limits Limits) *Validator {
	def := DefaultLimits()
	if limits.MaxLeverage <= 0 {
		limits.MaxLeverage = def.MaxLeverage
	}
	if limits.MaxTotalPositionPct <= 0 {
		limits.MaxTotalPositionPct = def.MaxTotalPositionPct
	}
	if limits.MinRiskReward <= 0 {
		limits.MinRiskReward = def.MinRiskReward
	}
	return &Validator{limits: limits}
}

func (v *Validator) Limits() Limits { return v.limits }

func (v *Validator) PositionSize(balance decimal.Decimal, positionPct float64, leverage int, price decimal.Decimal) (decimal.Decimal, error) {
	return PositionSize(balance, positionPct, leverage, price)
}

func (v *Validator) StopLossPrice(entry decimal.Decimal, pct float64, side models.PositionSide) (decimal.Decimal, error) {
	return StopLossPrice(entry, pct, side)
}

func (v *Validator) TakeProfitPrice(entry decimal.Decimal, pct float64, side models.PositionSide) (decimal.Decimal, error) {
	return TakeProfitPrice(entry, pct, side)
}

// ValidateFormat: структурная проверка решения без знания рынка и счёта.
func (v *Validator) ValidateFormat(d models.Decision) error {
	var errs error
	add := func(field, format string, args ...any) {
		errs = multierr.Append(errs, models.FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(d.Symbol) == "" {
		add("symbol", "required")
	}
	if !d.Action.Valid() {
		add("action", "%q is not a supported action", string(d.Action))
	}
	if !finite(d.Confidence) || d.Confidence < 0 || d.Confidence > 100 {
		add("confidence", "%v must be within [0, 100]", d.Confidence)
	}
	if !finite(d.PositionSizePct) || d.PositionSizePct < 0 || d.PositionSizePct > 100 {
		add("position_size_pct", "%v must be within [0, 100]", d.PositionSizePct)
	}
	if !finite(d.PositionSizeUSD) || d.PositionSizeUSD < 0 {
		add("position_size_usd", "%v must be >= 0", d.PositionSizeUSD)
	}
	if d.StopLossPct < 0 || d.TakeProfitPct < 0 || d.StopLoss < 0 || d.TakeProfit < 0 {
		add("protective", "stop loss and take profit must not be negative")
	}

	if d.Action.IsOpen() || d.Leverage != 0 {
		if d.Leverage < 1 || d.Leverage > v.limits.MaxLeverage {
			add("leverage", "%d must be within [1, %d]", d.Leverage, v.limits.MaxLeverage)
		}
	}
	if d.Action.IsOpen() {
		if d.PositionSizePct <= 0 && d.PositionSizeUSD <= 0 {
			add("position_size", "position_size_pct or position_size_usd required")
		}
		if !d.HasStopLoss() {
			add("stop_loss", "stop_loss_pct or stop_loss required")
		}
		if !d.HasTakeProfit() {
			add("take_profit", "take_profit_pct or take_profit required")
		}
	}

	if errs != nil {
		return models.NewValidationError(multierr.Errors(errs)...)
	}
	return nil
}

// ValidateDecision нормализует решение и проверяет его против счёта, позиции и рынка.
// Возвращаемое решение всегда несёт нормализованное действие, в том числе при ошибке.
func (v *Validator) ValidateDecision(
	d models.Decision,
	account models.AccountInfo,
	position *models.PositionInfo,
	market models.MarketSnapshot,
) (models.Decision, error) {
	side := position.Side()
	d = d.Normalized(side)

	if err := v.ValidateFormat(d); err != nil {
		return d, err
	}

	switch {
	case d.Action.IsPassive():
		return d, nil
	case d.Action.IsClose():
		return d, checkClose(d, side)
	default:
		return d, v.checkOpen(d, account, position, market)
	}
}

func checkClose(d models.Decision, side models.PositionSide) error {
	if side == models.PositionFlat {
		return &models.NoPositionError{Symbol: d.Symbol, Action: d.Action}
	}
	if (d.Action == models.ActionCloseLong && side != models.PositionLong) ||
		(d.Action == models.ActionCloseShort && side != models.PositionShort) {
		return &models.DirectionMismatchError{Symbol: d.Symbol, Requested: d.Action, Actual: side}
	}
	return nil
}

func (v *Validator) checkOpen(
	d models.Decision,
	account models.AccountInfo,
	position *models.PositionInfo,
	market models.MarketSnapshot,
) error {
	var errs error
	add := func(field, format string, args ...any) {
		errs = multierr.Append(errs, models.FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	entry := market.CurrentPrice
	if !entry.IsPositive() && d.CurrentPrice > 0 {
		entry = decimal.NewFromFloat(d.CurrentPrice)
	}
	if !entry.IsPositive() {
		add("current_price", "required to validate an open")
		return models.NewValidationError(multierr.Errors(errs)...)
	}

	// экспозиция
	newPct := d.SizePercent(account.AvailableBalance)
	if newPct <= 0 {
		add("position_size", "resolves to zero against available balance %s", account.AvailableBalance)
	}
	existingPct, err := existingExposurePct(position, entry, account)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if total := existingPct + newPct; total > v.limits.MaxTotalPositionPct {
		add("exposure", "total %.2f%% exceeds max %.2f%% (existing %.2f%%, new %.2f%%)",
			total, v.limits.MaxTotalPositionPct, existingPct, newPct)
	}

	// reward/risk
	side := d.Action.OpenSide()
	sl, slErr := v.level(d.StopLoss, entry, d.StopLossPct, side, StopLossPrice)
	tp, tpErr := v.level(d.TakeProfit, entry, d.TakeProfitPct, side, TakeProfitPrice)
	errs = multierr.Append(errs, multierr.Combine(slErr, tpErr))
	if slErr == nil && tpErr == nil {
		if rr, ok := riskReward(entry, sl, tp, side); !ok {
			add("protective", "stop %s and target %s are on the wrong side of entry %s for %s", sl, tp, entry, side)
		} else if rr.LessThan(decimal.NewFromFloat(v.limits.MinRiskReward)) {
			add("risk_reward", "%s is below minimum %v", rr.StringFixed(2), v.limits.MinRiskReward)
		}
	}

	if errs != nil {
		return models.NewValidationError(flatten(errs)...)
	}
	return nil
}

func (v *Validator) level(
	abs float64,
	entry decimal.Decimal,
	pct float64,
	side models.PositionSide,
	derive func(decimal.Decimal, float64, models.PositionSide) (decimal.Decimal, error),
) (decimal.Decimal, error) {
	if abs > 0 {
		return decimal.NewFromFloat(abs), nil
	}
	return derive(entry, pct, side)
}

// existingExposurePct = |amt| * price / leverage / wallet * 100.
func existingExposurePct(position *models.PositionInfo, price decimal.Decimal, account models.AccountInfo) (float64, error) {
	if position.IsFlat() {
		return 0, nil
	}
	wallet := account.TotalWalletBalance
	if !wallet.IsPositive() {
		wallet = account.AvailableBalance
	}
	if !wallet.IsPositive() {
		return 0, models.FieldError{Field: "total_wallet_balance", Reason: "must be > 0 to price existing exposure"}
	}
	lev := position.Leverage
	if lev < 1 {
		lev = 1
	}
	ref := price
	if !ref.IsPositive() {
		ref = position.EntryPrice
	}
	pct := position.Size().
		Mul(ref).
		Div(decimal.NewFromInt(int64(lev))).
		Div(wallet).
		Mul(hundred)
	return pct.InexactFloat64(), nil
}

func riskReward(entry, sl, tp decimal.Decimal, side models.PositionSide) (decimal.Decimal, bool) {
	var risk, reward decimal.Decimal
	if side == models.PositionLong {
		risk, reward = entry.Sub(sl), tp.Sub(entry)
	} else {
		risk, reward = sl.Sub(entry), entry.Sub(tp)
	}
	if !risk.IsPositive() || !reward.IsPositive() {
		return decimal.Zero, false
	}
	return reward.Div(risk), true
}

// flatten раскрывает вложенные ValidationError, чтобы нарушения шли одним плоским списком.
func flatten(err error) []error {
	var out []error
	for _, e := range multierr.Errors(err) {
		if ve, ok := e.(*models.ValidationError); ok {
			out = append(out, ve.Violations...)
			continue
		}
		out = append(out, e)
	}
	return out
}
