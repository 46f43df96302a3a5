package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queryable is the subset of pgx shared by pools, connections and
// transactions.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type contextKey string

const txKey contextKey = "db_tx"

// WithQueryable stores q on the context so repositories join it.
func WithQueryable(ctx context.Context, q Queryable) context.Context {
	return context.WithValue(ctx, txKey, q)
}

// ConnFromContext returns the transaction bound to ctx, if any.
func ConnFromContext(ctx context.Context) Queryable {
	q, _ := ctx.Value(txKey).(Queryable)
	return q
}

// ConnOr returns the transaction bound to ctx or fallback.
func ConnOr(ctx context.Context, fallback Queryable) Queryable {
	if q := ConnFromContext(ctx); q != nil {
		return q
	}
	return fallback
}

// TxRunner runs fn inside a transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolTx runs transactions on a pgx pool.
type PoolTx struct {
	pool *pgxpool.Pool
}

func NewPoolTx(pool *pgxpool.Pool) *PoolTx {
	return &PoolTx{pool: pool}
}

// InTx begins a transaction, exposes it to repositories through the context
// and commits when fn succeeds. Nested calls reuse the outer transaction.
func (p *PoolTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ConnFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(WithQueryable(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
