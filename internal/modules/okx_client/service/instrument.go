package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"trade_executor/internal/risk"
)

// Instrument: метаданные SWAP-инструмента, нужные для пересчёта контрактов.
type Instrument struct {
	InstID string
	TickSz decimal.Decimal
	LotSz  decimal.Decimal
	MinSz  decimal.Decimal
	// CtVal: размер контракта в базовой монете с учётом ctMult
	CtVal decimal.Decimal
}

func (c *Client) instrument(ctx context.Context, instID string) (Instrument, error) {
	c.mu.RLock()
	inst, ok := c.instruments[instID]
	c.mu.RUnlock()
	if ok {
		return inst, nil
	}

	r, err := c.do(ctx, "instruments", http.MethodGet,
		"/api/v5/public/instruments?instType=SWAP&instId="+url.QueryEscape(instID), nil)
	if err != nil {
		return Instrument{}, err
	}
	row := r.Get("data.0")
	if !row.Exists() {
		return Instrument{}, errors.Errorf("instrument %s not found", instID)
	}
	if state := row.Get("state").String(); state != "" && state != "live" {
		return Instrument{}, errors.Errorf("instrument %s not live: state=%s", instID, state)
	}

	parsePos := func(name string) (decimal.Decimal, error) {
		s := row.Get(name).String()
		v, err := decimal.NewFromString(s)
		if err != nil || !v.IsPositive() {
			return decimal.Zero, errors.Errorf("instrument %s: %s parse %q", instID, name, s)
		}
		return v, nil
	}

	if inst.LotSz, err = parsePos("lotSz"); err != nil {
		return Instrument{}, err
	}
	if inst.MinSz, err = parsePos("minSz"); err != nil {
		return Instrument{}, err
	}
	if inst.TickSz, err = parsePos("tickSz"); err != nil {
		return Instrument{}, err
	}
	if inst.CtVal, err = parsePos("ctVal"); err != nil {
		return Instrument{}, err
	}
	if m, err := decimal.NewFromString(row.Get("ctMult").String()); err == nil && m.IsPositive() {
		inst.CtVal = inst.CtVal.Mul(m)
	}
	inst.InstID = instID

	c.mu.Lock()
	c.instruments[instID] = inst
	c.mu.Unlock()
	return inst, nil
}

// LotFilter в базовой монете: шаг и минимум: lotSz/minSz контрактов, умноженные на ctVal.
func (c *Client) LotFilter(ctx context.Context, symbol string) (risk.LotFilter, error) {
	inst, err := c.instrument(ctx, symbol)
	if err != nil {
		return risk.LotFilter{}, err
	}
	return risk.LotFilter{
		StepSize: inst.LotSz.Mul(inst.CtVal),
		MinQty:   inst.MinSz.Mul(inst.CtVal),
		TickSize: inst.TickSz,
	}, nil
}

// toContracts: базовая монета → контракты, вниз к lotSz.
func (inst Instrument) toContracts(qty decimal.Decimal) decimal.Decimal {
	lots := qty.Div(inst.CtVal).Div(inst.LotSz).Floor()
	return lots.Mul(inst.LotSz)
}

func (inst Instrument) toBase(contracts decimal.Decimal) decimal.Decimal {
	return contracts.Mul(inst.CtVal)
}
