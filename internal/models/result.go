package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionResult: итог одного вызова движка. Схема стабильна: её логируют и показывают наружу.
type ExecutionResult struct {
	Success    bool             `json:"success"`
	Action     Action           `json:"action"`
	Symbol     string           `json:"symbol"`
	Timestamp  time.Time        `json:"timestamp"`
	Orders     []Order          `json:"orders"`
	Message    string           `json:"message"`
	ErrorKind  string           `json:"error_kind,omitempty"`
	EntryPrice *decimal.Decimal `json:"entry_price,omitempty"`
	Quantity   *decimal.Decimal `json:"quantity,omitempty"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
}

// NewResult: заготовка результата: неуспех, пустой список ордеров.
func NewResult(symbol string, action Action, now time.Time) ExecutionResult {
	return ExecutionResult{
		Action:    action,
		Symbol:    symbol,
		Timestamp: now,
		Orders:    []Order{},
	}
}

// Fail помечает результат ошибкой; kind берётся из типизированной ошибки.
func (r ExecutionResult) Fail(err error) ExecutionResult {
	r.Success = false
	r.Message = err.Error()
	r.ErrorKind = KindOf(err)
	return r
}

// Err восстанавливает ошибку из неуспешного результата (для вызывающих, которым нужен error).
func (r ExecutionResult) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(r.Message)
}

func DecimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
