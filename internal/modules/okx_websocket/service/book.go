package service

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Price decimal.Decimal
	At    time.Time
}

// PriceBook: последние цены по инструментам. Ключи: instId OKX и его компактная форма (BTCUSDT).
type PriceBook struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	maxAge time.Duration
	now    func() time.Time
}

// NewPriceBook: котировка старше maxAge считается протухшей; 0: без ограничения.
func NewPriceBook(maxAge time.Duration) *PriceBook {
	return &PriceBook{
		quotes: make(map[string]Quote),
		maxAge: maxAge,
		now:    time.Now,
	}
}

func (b *PriceBook) Set(instID string, px decimal.Decimal, at time.Time) {
	if !px.IsPositive() {
		return
	}
	q := Quote{Price: px, At: at}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[strings.ToUpper(instID)] = q
	if c := compactSymbol(instID); c != "" {
		b.quotes[c] = q
	}
}

// Last: последняя свежая цена символа.
func (b *PriceBook) Last(symbol string) (decimal.Decimal, bool) {
	b.mu.RLock()
	q, ok := b.quotes[strings.ToUpper(symbol)]
	b.mu.RUnlock()
	if !ok {
		return decimal.Zero, false
	}
	if b.maxAge > 0 && b.now().Sub(q.At) > b.maxAge {
		return decimal.Zero, false
	}
	return q.Price, true
}

func (b *PriceBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.quotes)
}

// compactSymbol: BTC-USDT-SWAP → BTCUSDT.
func compactSymbol(instID string) string {
	s := strings.ToUpper(strings.TrimSpace(instID))
	s = strings.TrimSuffix(s, "-SWAP")
	return strings.ReplaceAll(s, "-", "")
}
