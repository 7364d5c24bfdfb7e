package domain

import "errors"

var (
	// ErrInvalidInput is returned when a request is structurally invalid
	// (missing identifiers, zero amount)
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownCurrency is returned when the currency code is not a
	// recognized ISO 4217 alphabetic code
	ErrUnknownCurrency = errors.New("unknown currency code")

	// ErrCurrencyMismatch is returned when the transaction currency differs
	// from the account's currency; the attempt is recorded as REJECTED
	ErrCurrencyMismatch = errors.New("currency mismatch between account and transaction")

	// ErrAccountNotFound is returned by reads of an account that has never
	// recorded a transaction
	ErrAccountNotFound = errors.New("account not found")

	// ErrReferenceReuse is returned when a reference id is replayed with a
	// different amount or currency; the original entry is left untouched
	ErrReferenceReuse = errors.New("reference id reused with a different payload")

	// ErrTransientConflict is returned when the bounded optimistic retry
	// budget is exhausted; the caller may safely retry
	ErrTransientConflict = errors.New("transaction conflict: retries exhausted")

	// ErrUnavailable wraps storage failures that are expected to be
	// transient; the caller may safely retry
	ErrUnavailable = errors.New("storage unavailable")

	// ErrVersionConflict is returned by the account store when the expected
	// version no longer matches; the service retries the whole attempt
	ErrVersionConflict = errors.New("account version conflict")

	// ErrDuplicateReference is returned by the log when an entry with the
	// same (account id, reference id) pair already exists
	ErrDuplicateReference = errors.New("duplicate reference id for account")
)
