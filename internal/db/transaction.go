package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sapliy/ledger-engine/internal/domain"
)

// txKey is the key type for storing a transaction in context.
type txKey struct{}

// TransactionManager implements domain.TransactionManager using PostgreSQL.
// One ledger commit (log entry, balance update, outbox event) runs inside a
// single database transaction started here.
type TransactionManager struct {
	pool *pgxpool.Pool
}

// NewTransactionManager creates a new TransactionManager.
func NewTransactionManager(pool *pgxpool.Pool) *TransactionManager {
	return &TransactionManager{
		pool: pool,
	}
}

// WithTransaction executes the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
// The transaction is stored in the context and picked up by the stores.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return wrapStorageErr("begin transaction", err)
	}

	// Rollback is a no-op once the transaction committed.
	defer func() { _ = tx.Rollback(ctx) }()

	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		return err // rolled back by the defer
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapStorageErr("commit transaction", err)
	}

	return nil
}

// getTx retrieves the transaction from context.
// If no transaction is found, returns nil.
func getTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// wrapStorageErr classifies a database failure as retryable. Callers match
// it with errors.Is(err, domain.ErrUnavailable).
func wrapStorageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
}
