package execution

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"trade_executor/internal/models"
	"trade_executor/pkg/logger"
	"trade_executor/pkg/tracing"
)

type stepKind int

const (
	// fatal: ошибка прерывает последовательность и делает результат неуспешным
	fatal stepKind = iota
	// advisory: ошибка логируется, последовательность продолжается
	advisory
)

// stepOutcome: итог одного обращения к бирже.
type stepOutcome struct {
	kind stepKind
	err  error
}

func (o stepOutcome) aborts() bool {
	return o.err != nil && o.kind == fatal
}

// step выполняет вызов шлюза в своём спане; ошибку заворачивает в GatewayError.
func step(ctx context.Context, kind stepKind, op, symbol string, fn func(ctx context.Context) error) stepOutcome {
	span, ctx := tracing.StartSpan(ctx, "gateway."+op, opentracing.Tag{Key: "symbol", Value: symbol})

	var err error
	if ferr := fn(ctx); ferr != nil {
		err = &models.GatewayError{Op: op, Symbol: symbol, Err: ferr}
	}
	tracing.Finish(span, err)

	if err != nil && kind == advisory {
		logger.Warn("%s: %v (continuing)", op, err)
	}
	return stepOutcome{kind: kind, err: err}
}
