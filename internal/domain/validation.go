package domain

import (
	"fmt"

	"github.com/sapliy/ledger-engine/internal/money"
)

// ValidateRecordRequest checks the structural validity of a record request
// before any storage work happens. Violations are wrapped around
// ErrInvalidInput or ErrUnknownCurrency so transport layers can classify
// them with errors.Is.
func ValidateRecordRequest(req RecordRequest) error {
	if req.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if req.ReferenceID == "" {
		return fmt.Errorf("%w: reference id is required", ErrInvalidInput)
	}
	if req.Amount == 0 {
		return fmt.Errorf("%w: amount must be non-zero", ErrInvalidInput)
	}
	if !money.Valid(req.Currency) {
		return fmt.Errorf("%w: %q", ErrUnknownCurrency, req.Currency)
	}
	return nil
}

// ValidateAccountID checks the account identifier of a read request.
func ValidateAccountID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	return nil
}
