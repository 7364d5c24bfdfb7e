package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sapliy/ledger-engine/internal/domain"
	"github.com/sapliy/ledger-engine/internal/observability"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{
		pool: pool,
	}
}

// GetByID retrieves an account snapshot by id.
// Returns nil if the account has never been created.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT id, currency, balance, version, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	// Use transaction if available, otherwise use pool
	var row pgx.Row
	if tx := getTx(ctx); tx != nil {
		row = tx.QueryRow(ctx, query, id)
	} else {
		row = s.pool.QueryRow(ctx, query, id)
	}

	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.Currency,
		&account.Balance,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapStorageErr("get account", err)
	}

	return &account, nil
}

// Create persists a fresh account. Concurrent creations of the same id are
// conflict-free: the first writer wins and later writers are a no-op.
func (s *AccountStore) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, currency, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	args := []any{
		account.ID,
		account.Currency,
		account.Balance,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	}

	var err error
	if tx := getTx(ctx); tx != nil {
		_, err = tx.Exec(ctx, query, args...)
	} else {
		_, err = s.pool.Exec(ctx, query, args...)
	}
	if err != nil {
		return wrapStorageErr("create account", err)
	}

	return nil
}

// ApplyDelta adds delta to the balance and bumps the version by one,
// conditioned on the stored version still matching expectedVersion.
// Returns domain.ErrVersionConflict when a concurrent writer got there first.
func (s *AccountStore) ApplyDelta(ctx context.Context, id string, delta int64, expectedVersion int64) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $3
		RETURNING id, currency, balance, version, created_at, updated_at
	`

	var row pgx.Row
	if tx := getTx(ctx); tx != nil {
		row = tx.QueryRow(ctx, query, id, delta, expectedVersion)
	} else {
		row = s.pool.QueryRow(ctx, query, id, delta, expectedVersion)
	}

	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.Currency,
		&account.Balance,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			observability.CommitConflicts.Inc()
			return nil, fmt.Errorf("account %s: expected version %d: %w", id, expectedVersion, domain.ErrVersionConflict)
		}
		return nil, wrapStorageErr("apply delta", err)
	}

	return &account, nil
}
