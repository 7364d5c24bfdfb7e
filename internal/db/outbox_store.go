package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sapliy/ledger-engine/internal/domain"
)

// OutboxStore implements domain.OutboxStore using PostgreSQL. Events land in
// the outbox_events table inside the same transaction as the ledger commit
// they describe and are drained by the relay.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore creates a new OutboxStore.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{
		pool: pool,
	}
}

// Enqueue stages an event for publication.
func (s *OutboxStore) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`

	args := []any{event.ID, event.EventType, event.Payload, event.CreatedAt}

	var err error
	if tx := getTx(ctx); tx != nil {
		_, err = tx.Exec(ctx, query, args...)
	} else {
		_, err = s.pool.Exec(ctx, query, args...)
	}
	if err != nil {
		return wrapStorageErr("enqueue event", err)
	}

	return nil
}

// ListUnpublished returns up to limit staged events in creation order.
func (s *OutboxStore) ListUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload, created_at, published_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, wrapStorageErr("list unpublished events", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var event domain.OutboxEvent
		if err := rows.Scan(&event.ID, &event.EventType, &event.Payload, &event.CreatedAt, &event.PublishedAt); err != nil {
			return nil, wrapStorageErr("scan event", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageErr("iterate events", err)
	}

	return events, nil
}

// MarkPublished records that the relay delivered the event. Marking an
// already published event is a no-op, so the relay may safely retry after a
// crash between publish and mark.
func (s *OutboxStore) MarkPublished(ctx context.Context, id string) error {
	query := `
		UPDATE outbox_events
		SET published_at = NOW()
		WHERE id = $1 AND published_at IS NULL
	`

	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return wrapStorageErr("mark event published", err)
	}

	return nil
}

// Compile-time checks that the stores satisfy the storage interfaces.
var (
	_ domain.TransactionLog     = (*TransactionLog)(nil)
	_ domain.AccountStore       = (*AccountStore)(nil)
	_ domain.OutboxStore        = (*OutboxStore)(nil)
	_ domain.TransactionManager = (*TransactionManager)(nil)
)
