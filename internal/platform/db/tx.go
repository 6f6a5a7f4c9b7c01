package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// WithTx runs fn inside a repeatable-read transaction. Callback errors roll
// back and pass through untouched; begin and commit failures are classified
// so serialization conflicts surface as ErrConcurrentModification.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return shared.ClassifyPgError("db: begin tx", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return shared.ClassifyPgError("db: commit tx", err)
	}
	return nil
}
