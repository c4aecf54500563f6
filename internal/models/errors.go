package models

import (
	"errors"
	"fmt"
	"strings"
)

const (
	KindValidation        = "validation"
	KindDirectionMismatch = "direction_mismatch"
	KindNoPosition        = "no_position"
	KindGateway           = "gateway"
	KindUnknownAction     = "unknown_action"
	KindInternal          = "internal"
)

// ValidationError: некорректное решение, перечисляет все нарушения сразу.
type ValidationError struct {
	Violations []error
}

func NewValidationError(violations ...error) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap отдаёт нарушения для errors.Is/As.
func (e *ValidationError) Unwrap() []error { return e.Violations }

// FieldError: нарушение по конкретному полю.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Reason }

// NoPositionError: закрытие/сокращение/добавление при flat.
type NoPositionError struct {
	Symbol string
	Action Action
}

func (e *NoPositionError) Error() string {
	switch e.Action {
	case ActionAddPosition:
		return fmt.Sprintf("no position for %s, cannot add", e.Symbol)
	case ActionReducePosition:
		return fmt.Sprintf("no position for %s, cannot reduce", e.Symbol)
	default:
		return fmt.Sprintf("no position for %s, nothing to close", e.Symbol)
	}
}

// DirectionMismatchError: направленное закрытие против фактического знака позиции.
type DirectionMismatchError struct {
	Symbol    string
	Requested Action
	Actual    PositionSide
}

func (e *DirectionMismatchError) Error() string {
	return fmt.Sprintf("direction mismatch for %s: %s requested but position is %s", e.Symbol, e.Requested, e.Actual)
}

// GatewayError: любой сбой вызова биржи. Без ретраев.
type GatewayError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed for %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// UnknownActionError: действие вне закрытого множества после нормализации.
type UnknownActionError struct {
	Action Action
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action: %q", string(e.Action))
}

// KindOf: стабильное имя класса ошибки для отчёта.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		de *DirectionMismatchError
		ne *NoPositionError
		ge *GatewayError
		ue *UnknownActionError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &de):
		return KindDirectionMismatch
	case errors.As(err, &ne):
		return KindNoPosition
	case errors.As(err, &ge):
		return KindGateway
	case errors.As(err, &ue):
		return KindUnknownAction
	default:
		return KindInternal
	}
}
