// Package outbox drains the transactional outbox and hands events to a
// message broker. Events are enqueued in the same storage transaction as
// the ledger commit, so a crash between commit and publish only delays
// delivery instead of losing it.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/sapliy/ledger-engine/internal/domain"
	"github.com/sapliy/ledger-engine/internal/observability"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// Publisher delivers a single event to the broker.
type Publisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// Relay polls unpublished outbox rows and publishes them in commit order.
type Relay struct {
	store     domain.OutboxStore
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewRelay creates a relay. Zero interval and batch size fall back to
// defaults.
func NewRelay(store domain.OutboxStore, publisher Publisher, interval time.Duration, batchSize int, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = defaultInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start runs the polling loop until the context is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "interval", r.interval.String(), "batch_size", r.batchSize)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// drain publishes one batch of pending events. A publish failure stops
// the batch so ordering is preserved; unmarked rows are retried on the
// next tick, which makes delivery at-least-once.
func (r *Relay) drain(ctx context.Context) error {
	pending, err := r.store.ListUnpublished(ctx, r.batchSize)
	if err != nil {
		return err
	}

	observability.OutboxLag.Set(float64(len(pending)))
	if len(pending) == 0 {
		return nil
	}

	published := 0
	for _, event := range pending {
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.logger.Error("failed to publish outbox event",
				"event_id", event.ID.String(), "event_type", event.EventType, "error", err)
			break
		}
		if err := r.store.MarkPublished(ctx, event.ID.String()); err != nil {
			r.logger.Error("failed to mark outbox event published",
				"event_id", event.ID.String(), "error", err)
			break
		}
		published++
	}

	observability.OutboxLag.Set(float64(len(pending) - published))
	if published > 0 {
		r.logger.Info("outbox events published", "count", published)
	}
	return nil
}
