package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sapliy/ledger-engine/internal/domain"
)

type mockRecorder struct {
	recordFn func(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error)
	calls    []domain.RecordRequest
}

func (m *mockRecorder) RecordTransaction(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error) {
	m.calls = append(m.calls, req)
	return m.recordFn(ctx, req)
}

func committedResult(req domain.RecordRequest) *domain.RecordResult {
	return &domain.RecordResult{
		Transaction: &domain.Transaction{
			ID:          uuid.New(),
			AccountID:   req.AccountID,
			Amount:      req.Amount,
			Currency:    req.Currency,
			ReferenceID: req.ReferenceID,
			Status:      domain.TransactionStatusCommitted,
			CreatedAt:   time.Now().UTC(),
		},
	}
}

func newTestConsumer(recorder *mockRecorder) *PaymentConsumer {
	return &PaymentConsumer{
		recorder: recorder,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestHandleMessageRecordsSucceededPayment(t *testing.T) {
	recorder := &mockRecorder{
		recordFn: func(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error) {
			return committedResult(req), nil
		},
	}
	consumer := newTestConsumer(recorder)

	payload := []byte(`{"type":"payment.succeeded","data":{"id":"pay_123","amount":15000,"currency":"USD","user_id":"77"}}`)
	if err := consumer.handleMessage(context.Background(), payload); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	if len(recorder.calls) != 1 {
		t.Fatalf("recorder called %d times, want 1", len(recorder.calls))
	}
	req := recorder.calls[0]
	if req.AccountID != "user_77" {
		t.Errorf("AccountID = %q, want %q", req.AccountID, "user_77")
	}
	if req.ReferenceID != "pay_123" {
		t.Errorf("ReferenceID = %q, want %q", req.ReferenceID, "pay_123")
	}
	if req.Amount != 15000 {
		t.Errorf("Amount = %d, want 15000", req.Amount)
	}
	if req.Currency != "USD" {
		t.Errorf("Currency = %q, want %q", req.Currency, "USD")
	}
}

func TestHandleMessageSkipsOtherEventTypes(t *testing.T) {
	recorder := &mockRecorder{
		recordFn: func(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error) {
			return committedResult(req), nil
		},
	}
	consumer := newTestConsumer(recorder)

	payload := []byte(`{"type":"payment.failed","data":{"id":"pay_124","amount":5000,"currency":"USD","user_id":"77"}}`)
	if err := consumer.handleMessage(context.Background(), payload); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	if len(recorder.calls) != 0 {
		t.Errorf("recorder called %d times, want 0", len(recorder.calls))
	}
}

func TestHandleMessageDropsMalformedPayload(t *testing.T) {
	recorder := &mockRecorder{
		recordFn: func(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error) {
			return committedResult(req), nil
		},
	}
	consumer := newTestConsumer(recorder)

	if err := consumer.handleMessage(context.Background(), []byte(`{not json`)); err != nil {
		t.Fatalf("handleMessage() error = %v, want nil", err)
	}
	if len(recorder.calls) != 0 {
		t.Errorf("recorder called %d times, want 0", len(recorder.calls))
	}
}

func TestHandleMessageDropsUnprocessableEvents(t *testing.T) {
	for _, domainErr := range []error{
		domain.ErrUnknownCurrency,
		domain.ErrCurrencyMismatch,
		domain.ErrReferenceReuse,
		domain.ErrInvalidInput,
	} {
		t.Run(domainErr.Error(), func(t *testing.T) {
			recorder := &mockRecorder{
				recordFn: func(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error) {
					return nil, fmt.Errorf("record transaction: %w", domainErr)
				},
			}
			consumer := newTestConsumer(recorder)

			payload := []byte(`{"type":"payment.succeeded","data":{"id":"pay_125","amount":100,"currency":"USD","user_id":"9"}}`)
			if err := consumer.handleMessage(context.Background(), payload); err != nil {
				t.Errorf("handleMessage() error = %v, want nil (event dropped)", err)
			}
		})
	}
}

func TestHandleMessageReturnsTransientErrors(t *testing.T) {
	recorder := &mockRecorder{
		recordFn: func(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error) {
			return nil, fmt.Errorf("record transaction: %w", domain.ErrUnavailable)
		},
	}
	consumer := newTestConsumer(recorder)

	payload := []byte(`{"type":"payment.succeeded","data":{"id":"pay_126","amount":100,"currency":"USD","user_id":"9"}}`)
	err := consumer.handleMessage(context.Background(), payload)
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("handleMessage() error = %v, want ErrUnavailable", err)
	}
}

func TestHandleMessageReplayedPayment(t *testing.T) {
	recorder := &mockRecorder{
		recordFn: func(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error) {
			result := committedResult(req)
			result.Replayed = true
			return result, nil
		},
	}
	consumer := newTestConsumer(recorder)

	payload := []byte(`{"type":"payment.succeeded","data":{"id":"pay_127","amount":100,"currency":"USD","user_id":"9"}}`)
	if err := consumer.handleMessage(context.Background(), payload); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}
	if len(recorder.calls) != 1 {
		t.Errorf("recorder called %d times, want 1", len(recorder.calls))
	}
}
