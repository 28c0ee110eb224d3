package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBExecutor gives repositories the pool and services a transaction boundary.
// State transitions, ledger writes and idempotency keys are always committed together.
type DBExecutor struct {
	pool *pgxpool.Pool
}

func NewDBExecutor(pool *pgxpool.Pool) *DBExecutor {
	return &DBExecutor{pool: pool}
}

// GetDB returns the pool repositories fall back to outside a transaction
func (db *DBExecutor) GetDB() *pgxpool.Pool {
	return db.pool
}

// WithTransaction runs fn in a read-committed transaction. Row locks taken with
// SELECT ... FOR UPDATE inside fn serialize concurrent webhook and payout writers.
func (db *DBExecutor) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return db.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, "write", fn)
}

// WithReadOnlyTransaction runs fn against a single repeatable-read snapshot
func (db *DBExecutor) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return db.run(ctx, opts, "read-only", fn)
}

func (db *DBExecutor) run(ctx context.Context, opts pgx.TxOptions, kind string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	var fnErr error
	err := pgx.BeginTxFunc(ctx, db.pool, opts, func(tx pgx.Tx) error {
		fnErr = fn(ctx, tx)
		return fnErr
	})
	switch {
	case err == nil:
		return nil
	case fnErr != nil:
		// domain errors pass through untouched so callers can classify them
		return fnErr
	default:
		return fmt.Errorf("%s transaction: %w", kind, err)
	}
}
