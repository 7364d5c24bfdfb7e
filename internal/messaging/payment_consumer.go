// Package messaging consumes payment events from Kafka and records them
// in the ledger. The payment ID doubles as the reference ID, so broker
// redeliveries replay instead of double-crediting.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/sapliy/ledger-engine/internal/domain"
)

// PaymentEvent is the payment service's wire format.
type PaymentEvent struct {
	Type string `json:"type"`
	Data struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		UserID   string `json:"user_id"`
	} `json:"data"`
}

// TransactionRecorder records one transaction in the ledger.
type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error)
}

// PaymentConsumer reads payment events and credits user accounts.
type PaymentConsumer struct {
	reader   *kafka.Reader
	recorder TransactionRecorder
	logger   *slog.Logger
}

// NewPaymentConsumer creates a consumer joined to the given group.
func NewPaymentConsumer(brokers []string, topic, groupID string, recorder TransactionRecorder, logger *slog.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		}),
		recorder: recorder,
		logger:   logger,
	}
}

// Start consumes messages until the context is cancelled.
func (c *PaymentConsumer) Start(ctx context.Context) error {
	c.logger.Info("kafka payment consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("kafka payment consumer stopped")
				return nil
			}
			c.logger.Error("failed to read kafka message", "error", err)
			continue
		}

		if err := c.handleMessage(ctx, msg.Value); err != nil {
			c.logger.Error("failed to handle payment event", "error", err)
		}
	}
}

// handleMessage records a single payment event. Malformed payloads and
// uninteresting event types are dropped so the partition keeps moving;
// transient storage errors are returned and the payment is picked up
// again on redelivery.
func (c *PaymentConsumer) handleMessage(ctx context.Context, value []byte) error {
	var event PaymentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		c.logger.Warn("skipping malformed payment event", "error", err)
		return nil
	}

	if event.Type != "payment.succeeded" {
		return nil
	}

	req := domain.RecordRequest{
		AccountID:   "user_" + event.Data.UserID,
		Amount:      event.Data.Amount,
		Currency:    event.Data.Currency,
		Description: "Payment " + event.Data.ID,
		ReferenceID: event.Data.ID,
	}

	result, err := c.recorder.RecordTransaction(ctx, req)
	if err != nil {
		// Invalid payloads can never succeed, so drop them instead of
		// blocking the partition behind a poison message.
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrUnknownCurrency) ||
			errors.Is(err, domain.ErrCurrencyMismatch) || errors.Is(err, domain.ErrReferenceReuse) {
			c.logger.Warn("dropping unprocessable payment event",
				"payment_id", event.Data.ID, "error", err)
			return nil
		}
		return fmt.Errorf("record payment %s: %w", event.Data.ID, err)
	}

	if result.Replayed {
		c.logger.Info("payment event replayed", "payment_id", event.Data.ID)
	} else {
		c.logger.Info("payment event recorded",
			"payment_id", event.Data.ID,
			"account_id", req.AccountID,
			"transaction_id", result.Transaction.ID.String())
	}
	return nil
}

// Close closes the underlying Kafka reader.
func (c *PaymentConsumer) Close() error {
	return c.reader.Close()
}
