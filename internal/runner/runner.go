package runner

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"trade_executor/internal/gateway"
	"trade_executor/internal/intake"
	"trade_executor/internal/models"
	"trade_executor/internal/notify"
	"trade_executor/pkg/logger"
	"trade_executor/pkg/tracing"
)

const execTimeout = 30 * time.Second

type Executor interface {
	Execute(ctx context.Context, d models.Decision, account models.AccountInfo, position *models.PositionInfo) models.ExecutionResult
}

type DecisionValidator interface {
	ValidateFormat(d models.Decision) error
	ValidateDecision(d models.Decision, account models.AccountInfo, position *models.PositionInfo, market models.MarketSnapshot) (models.Decision, error)
}

// PriceSource: последняя известная цена символа.
type PriceSource interface {
	Last(symbol string) (decimal.Decimal, bool)
}

// Recorder: учёт результатов для health/status.
type Recorder interface {
	Record(res models.ExecutionResult)
}

// Runner: рабочая сторона очереди: дополняет конверт, прогоняет риск-проверку и отдаёт движку.
type Runner struct {
	gw        gateway.Gateway
	validator DecisionValidator
	engine    Executor
	prices    PriceSource
	notifier  notify.Notifier
	recorder  Recorder
	now       func() time.Time
}

type Option func(*Runner)

func WithPrices(p PriceSource) Option       { return func(r *Runner) { r.prices = p } }
func WithNotifier(n notify.Notifier) Option { return func(r *Runner) { r.notifier = n } }
func WithRecorder(rec Recorder) Option      { return func(r *Runner) { r.recorder = rec } }

func New(gw gateway.Gateway, validator DecisionValidator, engine Executor, opts ...Option) *Runner {
	r := &Runner{
		gw:        gw,
		validator: validator,
		engine:    engine,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run обрабатывает очередь workers горутинами до отмены ctx.
// Порядок по одному символу обеспечивает блокировка движка, не очередь.
func (r *Runner) Run(ctx context.Context, q *intake.Queue, workers int) error {
	if workers < 1 {
		workers = 1
	}
	logger.Info("runner: started with %d workers", workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job := <-q.Jobs():
					res := r.Handle(ctx, job.Envelope)
					if job.Done != nil {
						job.Done <- res
					}
				}
			}
		})
	}
	err := g.Wait()
	logger.Info("runner: stopped")
	return err
}

// Handle исполняет один конверт. Ошибок не возвращает: всё уходит в ExecutionResult.
func (r *Runner) Handle(ctx context.Context, env intake.Envelope) (res models.ExecutionResult) {
	d := env.Decision
	span, ctx := tracing.StartSpan(ctx, "runner.Handle",
		opentracing.Tag{Key: "symbol", Value: d.Symbol},
		opentracing.Tag{Key: "action", Value: string(d.Action)},
	)
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	defer func() {
		r.report(res)
		var err error
		if !res.Success {
			err = res.Err()
		}
		tracing.Finish(span, err)
	}()

	price := r.price(env)
	if price.IsPositive() {
		if d.CurrentPrice <= 0 {
			d.CurrentPrice = price.InexactFloat64()
		}
		if sink, ok := r.gw.(gateway.PriceSink); ok {
			sink.SetPrice(d.Symbol, price)
		}
	}

	account, err := r.account(ctx, env)
	if err != nil {
		return models.NewResult(d.Symbol, d.Action, r.now()).Fail(err)
	}
	position, err := r.position(ctx, env)
	if err != nil {
		return models.NewResult(d.Symbol, d.Action, r.now()).Fail(err)
	}

	gated, err := r.gate(d, account, position, price)
	if err != nil {
		logger.Warn("runner: %s %s rejected by risk: %v", gated.Action, d.Symbol, err)
		return models.NewResult(d.Symbol, gated.Action, r.now()).Fail(err)
	}

	// сырое действие: close_position разрешается движком по позиции, прочитанной под блокировкой
	gated.Action = d.Action
	return r.engine.Execute(ctx, gated, account, position)
}

// gate: риск-проверка до движка. Закрытия на шлюзе, который сам читает позицию,
// проверяются только по формату: снимок в конверте может быть устаревшим.
func (r *Runner) gate(
	d models.Decision,
	account models.AccountInfo,
	position *models.PositionInfo,
	price decimal.Decimal,
) (models.Decision, error) {
	if _, live := r.gw.(gateway.PositionReader); live {
		if action := models.NormalizeAction(string(d.Action), models.PositionFlat); action.IsClose() {
			gated := d
			gated.Action = action
			return gated, r.validator.ValidateFormat(gated)
		}
	}
	return r.validator.ValidateDecision(d, account, position, models.MarketSnapshot{CurrentPrice: price})
}

func (r *Runner) price(env intake.Envelope) decimal.Decimal {
	if px := env.Price(); px.IsPositive() {
		return px
	}
	if r.prices != nil {
		if px, ok := r.prices.Last(env.Decision.Symbol); ok {
			return px
		}
	}
	return decimal.Zero
}

func (r *Runner) account(ctx context.Context, env intake.Envelope) (models.AccountInfo, error) {
	if env.Account != nil {
		return *env.Account, nil
	}
	rd, ok := r.gw.(gateway.AccountReader)
	if !ok {
		return models.AccountInfo{}, nil
	}
	acc, err := rd.Account(ctx)
	if err != nil {
		return models.AccountInfo{}, &models.GatewayError{Op: "get_account", Symbol: env.Decision.Symbol, Err: err}
	}
	return acc, nil
}

func (r *Runner) position(ctx context.Context, env intake.Envelope) (*models.PositionInfo, error) {
	if env.Position != nil {
		return env.Position, nil
	}
	rd, ok := r.gw.(gateway.PositionReader)
	if !ok {
		return nil, nil
	}
	pos, err := rd.Position(ctx, env.Decision.Symbol)
	if err != nil {
		return nil, &models.GatewayError{Op: "get_position", Symbol: env.Decision.Symbol, Err: err}
	}
	return pos, nil
}

func (r *Runner) report(res models.ExecutionResult) {
	if res.Success {
		logger.Info("runner: %s %s ok: %s", res.Action, res.Symbol, res.Message)
	} else {
		logger.Warn("runner: %s %s failed [%s]: %s", res.Action, res.Symbol, res.ErrorKind, res.Message)
	}
	if r.recorder != nil {
		r.recorder.Record(res)
	}
	notify.Report(r.notifier, res)
}
