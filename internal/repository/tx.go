package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// withTx stores a transaction in context so repository methods called inside
// a unit of work run against it instead of the pool.
func withTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// txFrom extracts the transaction from context if present.
func txFrom(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}
