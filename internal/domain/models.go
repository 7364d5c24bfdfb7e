package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is a single immutable entry in the ledger's append-only log.
// Amounts are signed integers in the currency's minor units (e.g. cents),
// never floating point. A negative amount debits the account, a positive
// amount credits it.
type Transaction struct {
	ID          uuid.UUID         // Engine-generated identifier of the log entry
	AccountID   string            // Opaque caller-supplied account identifier
	Amount      int64             // Signed amount in minor units, never zero
	Currency    string            // ISO 4217 alphabetic code (e.g. "USD")
	Description string            // Free-form text, opaque to the engine
	ReferenceID string            // Caller idempotency key, unique per account
	Status      TransactionStatus // COMMITTED or REJECTED
	CreatedAt   time.Time         // Timestamp when the entry was recorded
}

// Account is the materialized balance view derived from the transaction log.
// It exists so reads don't replay the whole log; replaying committed entries
// must always reproduce Balance exactly.
type Account struct {
	ID        string    // Opaque caller-supplied identifier
	Currency  string    // Fixed at creation from the first recorded transaction
	Balance   int64     // Sum of committed amounts in minor units, may be negative
	Version   int64     // Optimistic concurrency counter, bumped once per applied transaction
	CreatedAt time.Time // Timestamp when the account was implicitly created
	UpdatedAt time.Time // Timestamp of the last applied transaction
}

// TransactionStatus represents the terminal state of a log entry.
type TransactionStatus string

const (
	// TransactionStatusCommitted indicates the entry was applied to the balance
	TransactionStatusCommitted TransactionStatus = "COMMITTED"

	// TransactionStatusRejected indicates the entry was recorded for audit only
	// and never touched the balance (e.g. currency mismatch)
	TransactionStatusRejected TransactionStatus = "REJECTED"
)

// RecordRequest carries the caller-supplied fields of a RecordTransaction call.
type RecordRequest struct {
	AccountID   string // Target account, created implicitly on first use
	Amount      int64  // Signed amount in minor units
	Currency    string // ISO 4217 code, must match the account's currency
	Description string // Optional free-form text
	ReferenceID string // Idempotency key, scoped to the account
}

// RecordResult is the outcome of a successful RecordTransaction call.
// Replayed is true when the reference was already committed and the original
// transaction is returned without any new effect.
type RecordResult struct {
	Transaction *Transaction
	Replayed    bool
}

// OutboxEvent is a domain event staged in the same storage transaction as the
// commit it describes. A relay publishes staged events asynchronously and
// marks them published.
type OutboxEvent struct {
	ID          uuid.UUID  // Event identifier, also the broker message id
	EventType   string     // Routing type, e.g. "ledger.transaction.committed"
	Payload     []byte     // JSON-encoded event body
	CreatedAt   time.Time  // Timestamp when the event was staged
	PublishedAt *time.Time // Timestamp when the relay published it (nullable)
}

// ReconciliationReport compares the materialized balance of an account with
// the balance derived by replaying its committed log entries.
type ReconciliationReport struct {
	AccountID           string
	MaterializedBalance int64 // Balance held by the account store
	ReplayedBalance     int64 // Sum of committed amounts in the log
	CommittedCount      int   // Number of committed entries replayed
	Consistent          bool  // True when the two balances agree
}

// NewAccount creates a fresh zero-balance account for implicit creation.
// The currency is fixed by the first transaction recorded against it.
func NewAccount(id, currency string) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:        id,
		Currency:  currency,
		Balance:   0,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTransaction creates a committed log entry from a record request.
func NewTransaction(req RecordRequest) *Transaction {
	return &Transaction{
		ID:          uuid.New(),
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
		Status:      TransactionStatusCommitted,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewRejectedTransaction creates an audit-only log entry for a request that
// was refused. Rejected entries resolve the idempotency key but never change
// the balance.
func NewRejectedTransaction(req RecordRequest) *Transaction {
	tx := NewTransaction(req)
	tx.Status = TransactionStatusRejected
	return tx
}
