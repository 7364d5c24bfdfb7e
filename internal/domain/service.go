package domain

import (
	"context"
	"errors"
	"fmt"
)

// defaultCommitAttempts bounds the optimistic retry loop around a commit.
const defaultCommitAttempts = 3

// EventEncoder turns a committed transaction into an outbox event.
// Implementations own the wire shape; the service only stages the result.
type EventEncoder interface {
	EncodeTransactionCommitted(tx *Transaction, balanceAfter int64) (*OutboxEvent, error)
}

// LedgerService coordinates the transaction log, the idempotency guard and
// the account balance store behind the engine's two core operations.
type LedgerService struct {
	log      TransactionLog
	accounts AccountStore
	outbox   OutboxStore
	txm      TransactionManager
	guard    *IdempotencyGuard
	encoder  EventEncoder
	attempts int
}

// NewLedgerService creates a new instance of LedgerService.
// Pass nil for outbox or encoder if no events should be staged; pass a
// non-positive maxAttempts to use the default retry budget.
func NewLedgerService(
	log TransactionLog,
	accounts AccountStore,
	outbox OutboxStore,
	txm TransactionManager,
	encoder EventEncoder,
	maxAttempts int,
) *LedgerService {
	if maxAttempts <= 0 {
		maxAttempts = defaultCommitAttempts
	}
	return &LedgerService{
		log:      log,
		accounts: accounts,
		outbox:   outbox,
		txm:      txm,
		guard:    NewIdempotencyGuard(log),
		encoder:  encoder,
		attempts: maxAttempts,
	}
}

// RecordTransaction appends a transaction to the ledger and applies it to the
// account balance. The operation is idempotent per (account id, reference id):
// recording the same pair again returns the original transaction without any
// new effect.
//
// Each attempt runs atomically within one storage transaction:
//  1. Validate the request shape and currency
//  2. Admit through the idempotency guard (replay if the pair exists)
//  3. Load the account, creating it implicitly on first use
//  4. Reject on currency mismatch, recording an audit entry
//  5. Append the committed entry and apply the balance delta,
//     conditioned on the account version observed in step 3
//  6. Stage the committed event in the outbox
//
// A version conflict or a concurrent duplicate rolls the attempt back and
// retries from step 2 up to the configured budget, after which
// ErrTransientConflict is returned.
func (s *LedgerService) RecordTransaction(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	if err := ValidateRecordRequest(req); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		admission, err := s.guard.Admit(ctx, req.AccountID, req.ReferenceID)
		if err != nil {
			return nil, err
		}
		if admission.Existing != nil {
			return s.replay(admission.Existing, req)
		}

		result, err := s.commit(ctx, req)
		admission.Done()
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrDuplicateReference) {
			// Lost a race with a concurrent writer; re-admit and retry.
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("account %s: %w", req.AccountID, ErrTransientConflict)
}

// replay resolves a request whose reference id is already recorded.
// The recorded payload wins: a replay with a different amount or currency is
// refused outright rather than silently returning the original.
func (s *LedgerService) replay(existing *Transaction, req RecordRequest) (*RecordResult, error) {
	if existing.Amount != req.Amount || existing.Currency != req.Currency {
		return nil, fmt.Errorf("reference %s: %w", req.ReferenceID, ErrReferenceReuse)
	}
	if existing.Status == TransactionStatusRejected {
		// The reference is burned by the recorded rejection; surface the
		// same outcome without reprocessing.
		return nil, fmt.Errorf("reference %s: %w", req.ReferenceID, ErrCurrencyMismatch)
	}
	return &RecordResult{Transaction: existing, Replayed: true}, nil
}

// commit runs one atomic attempt at recording the transaction.
func (s *LedgerService) commit(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	var (
		result  *RecordResult
		outcome error
	)

	err := s.txm.WithTransaction(ctx, func(txCtx context.Context) error {
		account, err := s.accounts.GetByID(txCtx, req.AccountID)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		if account == nil {
			// First transaction for this account: create it implicitly with
			// the request's currency and a zero balance.
			if err := s.accounts.Create(txCtx, NewAccount(req.AccountID, req.Currency)); err != nil {
				return fmt.Errorf("create account: %w", err)
			}
			account, err = s.accounts.GetByID(txCtx, req.AccountID)
			if err != nil {
				return fmt.Errorf("reload account: %w", err)
			}
			if account == nil {
				return fmt.Errorf("account %s missing after create", req.AccountID)
			}
		}

		if account.Currency != req.Currency {
			// Record the refusal as an audit entry so the reference id is
			// resolved and retries don't reprocess. The balance and version
			// stay untouched.
			rejected := NewRejectedTransaction(req)
			if err := s.log.Append(txCtx, rejected); err != nil {
				return fmt.Errorf("append rejected entry: %w", err)
			}
			outcome = fmt.Errorf("account %s holds %s, got %s: %w",
				account.ID, account.Currency, req.Currency, ErrCurrencyMismatch)
			return nil
		}

		tx := NewTransaction(req)
		if err := s.log.Append(txCtx, tx); err != nil {
			return fmt.Errorf("append entry: %w", err)
		}

		updated, err := s.accounts.ApplyDelta(txCtx, account.ID, req.Amount, account.Version)
		if err != nil {
			return fmt.Errorf("apply delta: %w", err)
		}

		if s.outbox != nil && s.encoder != nil {
			event, err := s.encoder.EncodeTransactionCommitted(tx, updated.Balance)
			if err != nil {
				return fmt.Errorf("encode committed event: %w", err)
			}
			if err := s.outbox.Enqueue(txCtx, event); err != nil {
				return fmt.Errorf("enqueue committed event: %w", err)
			}
		}

		result = &RecordResult{Transaction: tx}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}
	return result, nil
}

// GetAccount returns a committed snapshot of the account. Reading never
// creates an account: an id with no recorded transactions is not found.
func (s *LedgerService) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrAccountNotFound)
	}
	return account, nil
}

// ListTransactions returns the account's log entries in commit order,
// rejected entries included.
func (s *LedgerService) ListTransactions(ctx context.Context, accountID string) ([]*Transaction, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrAccountNotFound)
	}
	entries, err := s.log.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// VerifyAccount replays the account's committed entries and compares the
// derived balance with the materialized one. The snapshot is version-stable:
// if a concurrent writer bumps the account between the two reads, the replay
// is retried.
func (s *LedgerService) VerifyAccount(ctx context.Context, accountID string) (*ReconciliationReport, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		before, err := s.accounts.GetByID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("load account: %w", err)
		}
		if before == nil {
			return nil, fmt.Errorf("account %s: %w", accountID, ErrAccountNotFound)
		}

		entries, err := s.log.ListByAccount(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}

		after, err := s.accounts.GetByID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("reload account: %w", err)
		}
		if after == nil || after.Version != before.Version {
			continue
		}

		var replayed int64
		var committed int
		for _, tx := range entries {
			if tx.Status != TransactionStatusCommitted {
				continue
			}
			replayed += tx.Amount
			committed++
		}

		return &ReconciliationReport{
			AccountID:           accountID,
			MaterializedBalance: after.Balance,
			ReplayedBalance:     replayed,
			CommittedCount:      committed,
			Consistent:          replayed == after.Balance,
		}, nil
	}

	return nil, fmt.Errorf("account %s: %w", accountID, ErrTransientConflict)
}
