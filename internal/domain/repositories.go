package domain

import "context"

// TransactionLog defines the append-only log of ledger entries.
// Entries are never updated or deleted once appended.
type TransactionLog interface {
	// Append persists a new log entry. Returns ErrDuplicateReference if an
	// entry with the same (account id, reference id) pair already exists.
	Append(ctx context.Context, tx *Transaction) error

	// GetByReference retrieves the entry recorded for the given idempotency
	// pair. Returns nil if no entry exists.
	GetByReference(ctx context.Context, accountID, referenceID string) (*Transaction, error)

	// ListByAccount returns all entries of an account in commit order.
	ListByAccount(ctx context.Context, accountID string) ([]*Transaction, error)
}

// AccountStore defines access to the materialized balance view.
type AccountStore interface {
	// GetByID retrieves an account snapshot by id. Returns nil if the
	// account has never been created.
	GetByID(ctx context.Context, id string) (*Account, error)

	// Create persists a fresh account. Concurrent creations of the same id
	// are conflict-free: the first writer wins and later writers are a no-op.
	Create(ctx context.Context, account *Account) error

	// ApplyDelta adds delta to the balance and bumps the version by one,
	// conditioned on the current version matching expectedVersion. Returns
	// ErrVersionConflict (and applies nothing) when the condition fails.
	ApplyDelta(ctx context.Context, id string, delta int64, expectedVersion int64) (*Account, error)
}

// OutboxStore defines the staging table for domain events. Events are
// enqueued inside the same storage transaction as the commit they describe
// and drained asynchronously by a relay.
type OutboxStore interface {
	// Enqueue stages an event for publication.
	Enqueue(ctx context.Context, event *OutboxEvent) error

	// ListUnpublished returns up to limit staged events in creation order.
	ListUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	// MarkPublished records that the relay delivered the event.
	MarkPublished(ctx context.Context, id string) error
}

// TransactionManager defines the interface for managing storage transactions.
// This abstraction allows the service layer to commit a log entry, a balance
// update and an outbox event atomically without being coupled to a specific
// storage implementation.
type TransactionManager interface {
	// WithTransaction executes the given function within a storage
	// transaction. If the function returns an error, the transaction is
	// rolled back. Otherwise, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
