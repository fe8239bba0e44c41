// Package storage provides the transactional runners shared by every service.
//
// Services declare a TxRunner dependency and perform all writes of one
// operation inside RunInTx. The PostgreSQL runner opens a real transaction
// and threads it through the context so tx-aware stores pick it up; the
// memory runner takes a coarse lock and restores store snapshots on error,
// giving the same all-or-nothing observable behavior.
package storage

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "kta/pkg/domain-errors"
	"kta/pkg/platform/tx"
)

// defaultTxTimeout bounds a transaction when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

// Snapshotter is implemented by memory stores that participate in the memory
// transaction runner. Snapshot returns an opaque copy of current state;
// Restore replaces state with a previously taken snapshot.
type Snapshotter interface {
	Snapshot() any
	Restore(snapshot any)
}

// MemoryTx serializes transactions with a single mutex and rolls registered
// stores back to their pre-transaction snapshots when fn fails. Suited to
// tests and single-node runs; PostgresTx is the production runner.
type MemoryTx struct {
	mu      sync.Mutex
	stores  []Snapshotter
	timeout time.Duration
}

func NewMemoryTx(stores ...Snapshotter) *MemoryTx {
	return &MemoryTx{stores: stores}
}

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, cancel := ensureDeadline(ctx, t.timeout)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	snapshots := make([]any, len(t.stores))
	for i, store := range t.stores {
		snapshots[i] = store.Snapshot()
	}

	if err := fn(ctx); err != nil {
		for i, store := range t.stores {
			store.Restore(snapshots[i])
		}
		return err
	}
	return nil
}

// PostgresTx runs fn inside a database transaction threaded through the
// context. Stores built on the execer pattern automatically join it.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, cancel := ensureDeadline(ctx, t.timeout)
	defer cancel()

	dbTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, dbTx)); err != nil {
		return err
	}
	return dbTx.Commit()
}

func ensureDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
