// Package events defines the wire format of ledger events and the
// RabbitMQ publisher that delivers them to downstream consumers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sapliy/ledger-engine/internal/domain"
	"github.com/sapliy/ledger-engine/internal/money"
)

// EventTypeTransactionCommitted is the routing type for committed entries.
const EventTypeTransactionCommitted = "ledger.transaction.committed"

// Amount is a decimal string plus ISO 4217 currency code.
type Amount struct {
	Value        string `json:"value"`
	CurrencyCode string `json:"currencyCode"`
}

// TransactionCommittedEvent is emitted after a transaction commits.
type TransactionCommittedEvent struct {
	EventID        string `json:"eventId"`
	EventType      string `json:"eventType"`
	EventTimestamp string `json:"eventTimestamp"`
	TransactionID  string `json:"transactionId"`
	AccountID      string `json:"accountId"`
	ReferenceID    string `json:"referenceId"`
	Amount         Amount `json:"amount"`
	AmountMinor    int64  `json:"amountMinor"`
	BalanceAfter   int64  `json:"balanceAfter"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
}

// Encoder turns committed transactions into outbox rows.
type Encoder struct{}

// NewEncoder creates an event encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeTransactionCommitted builds the outbox event for a committed
// transaction. balanceAfter is the account balance once the entry applied.
func (e *Encoder) EncodeTransactionCommitted(tx *domain.Transaction, balanceAfter int64) (*domain.OutboxEvent, error) {
	now := time.Now().UTC()

	payload := TransactionCommittedEvent{
		EventID:        uuid.New().String(),
		EventType:      EventTypeTransactionCommitted,
		EventTimestamp: now.Format(time.RFC3339),
		TransactionID:  tx.ID.String(),
		AccountID:      tx.AccountID,
		ReferenceID:    tx.ReferenceID,
		Amount: Amount{
			Value:        money.Format(tx.Amount, tx.Currency),
			CurrencyCode: tx.Currency,
		},
		AmountMinor:  tx.Amount,
		BalanceAfter: balanceAfter,
		Status:       string(tx.Status),
		CreatedAt:    tx.CreatedAt.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction committed event: %w", err)
	}

	return &domain.OutboxEvent{
		ID:        uuid.MustParse(payload.EventID),
		EventType: EventTypeTransactionCommitted,
		Payload:   body,
		CreatedAt: now,
	}, nil
}
