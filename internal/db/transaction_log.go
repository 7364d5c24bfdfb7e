package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sapliy/ledger-engine/internal/domain"
)

// TransactionLog implements domain.TransactionLog using PostgreSQL.
// The unique (account_id, reference_id) index is the persistent half of the
// idempotency guard.
type TransactionLog struct {
	pool *pgxpool.Pool
}

// NewTransactionLog creates a new TransactionLog.
func NewTransactionLog(pool *pgxpool.Pool) *TransactionLog {
	return &TransactionLog{
		pool: pool,
	}
}

// Append persists a new log entry. Returns domain.ErrDuplicateReference if
// an entry with the same (account id, reference id) pair already exists.
func (l *TransactionLog) Append(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, account_id, amount, currency, description, reference_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, reference_id) DO NOTHING
	`

	args := []any{
		tx.ID,
		tx.AccountID,
		tx.Amount,
		tx.Currency,
		tx.Description,
		tx.ReferenceID,
		string(tx.Status),
		tx.CreatedAt,
	}

	var tag pgconn.CommandTag
	var err error
	if dbTx := getTx(ctx); dbTx != nil {
		tag, err = dbTx.Exec(ctx, query, args...)
	} else {
		tag, err = l.pool.Exec(ctx, query, args...)
	}
	if err != nil {
		return wrapStorageErr("append entry", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %s/%s: %w", tx.AccountID, tx.ReferenceID, domain.ErrDuplicateReference)
	}

	return nil
}

// GetByReference retrieves the entry recorded for the idempotency pair.
// Returns nil if no entry exists.
func (l *TransactionLog) GetByReference(ctx context.Context, accountID, referenceID string) (*domain.Transaction, error) {
	query := `
		SELECT id, account_id, amount, currency, description, reference_id, status, created_at
		FROM transactions
		WHERE account_id = $1 AND reference_id = $2
	`

	var row pgx.Row
	if dbTx := getTx(ctx); dbTx != nil {
		row = dbTx.QueryRow(ctx, query, accountID, referenceID)
	} else {
		row = l.pool.QueryRow(ctx, query, accountID, referenceID)
	}

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapStorageErr("get entry", err)
	}

	return tx, nil
}

// ListByAccount returns all entries of an account in commit order.
func (l *TransactionLog) ListByAccount(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	query := `
		SELECT id, account_id, amount, currency, description, reference_id, status, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY seq
	`

	var rows pgx.Rows
	var err error
	if dbTx := getTx(ctx); dbTx != nil {
		rows, err = dbTx.Query(ctx, query, accountID)
	} else {
		rows, err = l.pool.Query(ctx, query, accountID)
	}
	if err != nil {
		return nil, wrapStorageErr("list entries", err)
	}
	defer rows.Close()

	var entries []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapStorageErr("scan entry", err)
		}
		entries = append(entries, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageErr("iterate entries", err)
	}

	return entries, nil
}

// scanTransaction reads one transaction row.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var status string
	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.Amount,
		&tx.Currency,
		&tx.Description,
		&tx.ReferenceID,
		&status,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.Status = domain.TransactionStatus(status)
	return &tx, nil
}
