package execution

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"trade_executor/pkg/db"
)

// SymbolLocker сериализует исполнение по символу.
type SymbolLocker interface {
	WithLock(ctx context.Context, symbol string, fn func(ctx context.Context) error) error
}

// MemoryLocker: блокировка внутри процесса, один семафор на символ.
type MemoryLocker struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{sems: make(map[string]*semaphore.Weighted)}
}

func (l *MemoryLocker) WithLock(ctx context.Context, symbol string, fn func(ctx context.Context) error) error {
	sem := l.sem(symbol)
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire lock for %s: %w", symbol, err)
	}
	defer sem.Release(1)
	return fn(ctx)
}

func (l *MemoryLocker) sem(symbol string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[symbol]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[symbol] = s
	}
	return s
}

const advisoryLockSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

// PgAdvisoryLocker: блокировка между процессами: транзакционный advisory lock в Postgres,
// снимается на commit/rollback.
type PgAdvisoryLocker struct {
	tx db.TxManager
}

func NewPgAdvisoryLocker(tx db.TxManager) *PgAdvisoryLocker {
	return &PgAdvisoryLocker{tx: tx}
}

func (l *PgAdvisoryLocker) WithLock(ctx context.Context, symbol string, fn func(ctx context.Context) error) error {
	return l.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		if _, err := tx.Exec(ctxTx, advisoryLockSQL, "executor:"+symbol); err != nil {
			return fmt.Errorf("advisory lock for %s: %w", symbol, err)
		}
		return fn(ctxTx)
	})
}
