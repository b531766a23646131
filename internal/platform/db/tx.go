package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Mutations in this codebase serialize on explicit row locks
// (SELECT ... FOR UPDATE) and revalidate state after acquiring them. Read
// committed gives each post-lock statement a fresh snapshot, so a waiter
// sees what the previous lock holder committed. Repeatable read would pin
// the snapshot at the transaction's first statement, before the lock wait,
// and the revalidation reads would be stale.
var txOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// WithTx executes a function within a transaction, rolling back on error.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
