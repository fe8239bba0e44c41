// Package tx carries a *sql.Tx through context so the request, region, batch,
// and audit stores join the transaction opened by a service's RunInTx without
// widening their interfaces.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores the transaction for downstream stores; their execer helpers
// pick it up via From.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From returns the transaction placed by RunInTx, if the caller runs inside
// one.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}
