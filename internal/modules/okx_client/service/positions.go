package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"trade_executor/internal/models"
)

// Position: в net-режиме pos уже со знаком; posSide=short встречается в hedge-режиме и инвертирует знак.
func (c *Client) Position(ctx context.Context, symbol string) (*models.PositionInfo, error) {
	r, err := c.do(ctx, "positions", http.MethodGet,
		"/api/v5/account/positions?instType=SWAP&instId="+url.QueryEscape(symbol), nil)
	if err != nil {
		return nil, err
	}

	pos := &models.PositionInfo{Symbol: symbol}
	rows := r.Get("data").Array()
	if len(rows) == 0 {
		return pos, nil
	}

	inst, err := c.instrument(ctx, symbol)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Get("instId").String() != symbol {
			continue
		}
		contracts := parseDecimal(row.Get("pos").String())
		if row.Get("posSide").String() == "short" && contracts.IsPositive() {
			contracts = contracts.Neg()
		}
		amt := inst.toBase(contracts)
		pos.PositionAmt = pos.PositionAmt.Add(amt)
		if !amt.IsZero() {
			pos.EntryPrice = parseDecimal(row.Get("avgPx").String())
		}
		if lev, err := strconv.ParseFloat(row.Get("lever").String(), 64); err == nil {
			pos.Leverage = int(lev)
		}
	}
	return pos, nil
}

// Account: баланс USDT: availBal в доступный, eq в общий.
func (c *Client) Account(ctx context.Context) (models.AccountInfo, error) {
	r, err := c.do(ctx, "balance", http.MethodGet, "/api/v5/account/balance?ccy=USDT", nil)
	if err != nil {
		return models.AccountInfo{}, err
	}
	usdt := r.Get(`data.0.details.#(ccy=="USDT")`)
	return models.AccountInfo{
		AvailableBalance:   parseDecimal(usdt.Get("availBal").String()),
		TotalWalletBalance: parseDecimal(usdt.Get("eq").String()),
	}, nil
}

func parseDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}
