// Package memory provides an in-memory implementation of the ledger storage
// interfaces. It backs unit tests and the "memory" storage driver for local
// development. Mutations made inside WithTransaction are staged in a journal
// and validated against the committed state at apply time, so version
// conflicts and duplicate references behave exactly like the SQL backend.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sapliy/ledger-engine/internal/domain"
)

type refKey struct {
	accountID   string
	referenceID string
}

// Store holds all ledger state behind a single RWMutex.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	entries  map[string][]*domain.Transaction
	byRef    map[refKey]*domain.Transaction
	events   map[string]*domain.OutboxEvent
	eventLog []*domain.OutboxEvent
}

// Compile-time checks that Store satisfies the storage interfaces.
var (
	_ domain.TransactionLog     = (*Store)(nil)
	_ domain.AccountStore       = (*Store)(nil)
	_ domain.OutboxStore        = (*Store)(nil)
	_ domain.TransactionManager = (*Store)(nil)
)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*domain.Account),
		entries:  make(map[string][]*domain.Transaction),
		byRef:    make(map[refKey]*domain.Transaction),
		events:   make(map[string]*domain.OutboxEvent),
	}
}

// txKey is the context key under which a staged journal travels.
type txKey struct{}

// accountDelta is one staged ApplyDelta call.
type accountDelta struct {
	accountID       string
	delta           int64
	expectedVersion int64
}

// journal stages the mutations of one transaction until apply time.
type journal struct {
	creates []*domain.Account
	appends []*domain.Transaction
	deltas  []accountDelta
	events  []*domain.OutboxEvent
}

func journalFrom(ctx context.Context) *journal {
	j, _ := ctx.Value(txKey{}).(*journal)
	return j
}

// WithTransaction stages all mutations made by fn and applies them atomically
// when fn returns nil. Validation happens at apply time against the committed
// state: a version mismatch surfaces as domain.ErrVersionConflict and a
// duplicate reference as domain.ErrDuplicateReference, with nothing applied.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if journalFrom(ctx) != nil {
		// Already inside a transaction; join it.
		return fn(ctx)
	}
	j := &journal{}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		return err
	}
	return s.apply(j)
}

// apply validates the whole journal first and only then mutates, so a failed
// transaction leaves no partial effect.
func (s *Store) apply(j *journal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[refKey]bool)
	for _, tx := range j.appends {
		key := refKey{accountID: tx.AccountID, referenceID: tx.ReferenceID}
		if _, ok := s.byRef[key]; ok || seen[key] {
			return fmt.Errorf("entry %s/%s: %w", tx.AccountID, tx.ReferenceID, domain.ErrDuplicateReference)
		}
		seen[key] = true
	}

	// Track versions across the journal so a delta following a staged create
	// validates against the created account.
	versions := make(map[string]int64)
	for _, id := range j.createdIDs() {
		if _, ok := s.accounts[id]; !ok {
			versions[id] = 0
		}
	}
	for _, d := range j.deltas {
		current, ok := versions[d.accountID]
		if !ok {
			account, exists := s.accounts[d.accountID]
			if !exists {
				return fmt.Errorf("account %s: %w", d.accountID, domain.ErrVersionConflict)
			}
			current = account.Version
		}
		if current != d.expectedVersion {
			return fmt.Errorf("account %s: expected version %d, have %d: %w",
				d.accountID, d.expectedVersion, current, domain.ErrVersionConflict)
		}
		versions[d.accountID] = current + 1
	}

	now := time.Now().UTC()
	for _, account := range j.creates {
		if _, ok := s.accounts[account.ID]; ok {
			continue // first writer wins
		}
		s.accounts[account.ID] = cloneAccount(account)
	}
	for _, tx := range j.appends {
		key := refKey{accountID: tx.AccountID, referenceID: tx.ReferenceID}
		s.byRef[key] = tx
		s.entries[tx.AccountID] = append(s.entries[tx.AccountID], tx)
	}
	for _, d := range j.deltas {
		account := s.accounts[d.accountID]
		account.Balance += d.delta
		account.Version++
		account.UpdatedAt = now
	}
	for _, event := range j.events {
		clone := cloneEvent(event)
		s.events[clone.ID.String()] = clone
		s.eventLog = append(s.eventLog, clone)
	}
	return nil
}

func (j *journal) createdIDs() []string {
	ids := make([]string, 0, len(j.creates))
	for _, account := range j.creates {
		ids = append(ids, account.ID)
	}
	return ids
}

// viewAccount overlays the journal's staged mutations on a committed snapshot.
func (j *journal) viewAccount(base *domain.Account, id string) *domain.Account {
	view := cloneAccount(base)
	if view == nil {
		for _, account := range j.creates {
			if account.ID == id {
				view = cloneAccount(account)
				break
			}
		}
	}
	if view == nil {
		return nil
	}
	for _, d := range j.deltas {
		if d.accountID == id {
			view.Balance += d.delta
			view.Version++
		}
	}
	return view
}

// Append stages or applies a new log entry.
func (s *Store) Append(ctx context.Context, tx *domain.Transaction) error {
	if j := journalFrom(ctx); j != nil {
		j.appends = append(j.appends, tx)
		return nil
	}
	return s.apply(&journal{appends: []*domain.Transaction{tx}})
}

// GetByReference returns the entry recorded for the idempotency pair, or nil.
func (s *Store) GetByReference(ctx context.Context, accountID, referenceID string) (*domain.Transaction, error) {
	key := refKey{accountID: accountID, referenceID: referenceID}
	if j := journalFrom(ctx); j != nil {
		for _, tx := range j.appends {
			if tx.AccountID == accountID && tx.ReferenceID == referenceID {
				return tx, nil
			}
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byRef[key], nil
}

// ListByAccount returns the account's entries in commit order.
func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.entries[accountID]
	out := make([]*domain.Transaction, len(entries))
	copy(out, entries)
	return out, nil
}

// GetByID returns a snapshot of the account, or nil if it was never created.
// Inside a transaction the snapshot includes the journal's staged mutations.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	base := cloneAccount(s.accounts[id])
	s.mu.RUnlock()
	if j := journalFrom(ctx); j != nil {
		return j.viewAccount(base, id), nil
	}
	return base, nil
}

// Create stages or applies a fresh account. Creating an id that already
// exists is a no-op.
func (s *Store) Create(ctx context.Context, account *domain.Account) error {
	if j := journalFrom(ctx); j != nil {
		j.creates = append(j.creates, account)
		return nil
	}
	return s.apply(&journal{creates: []*domain.Account{account}})
}

// ApplyDelta stages or applies a version-conditioned balance change and
// returns the account as it will look once the change commits.
func (s *Store) ApplyDelta(ctx context.Context, id string, delta int64, expectedVersion int64) (*domain.Account, error) {
	if j := journalFrom(ctx); j != nil {
		s.mu.RLock()
		base := cloneAccount(s.accounts[id])
		s.mu.RUnlock()
		view := j.viewAccount(base, id)
		if view == nil || view.Version != expectedVersion {
			return nil, fmt.Errorf("account %s: %w", id, domain.ErrVersionConflict)
		}
		j.deltas = append(j.deltas, accountDelta{accountID: id, delta: delta, expectedVersion: expectedVersion})
		view.Balance += delta
		view.Version++
		return view, nil
	}

	err := s.apply(&journal{deltas: []accountDelta{{accountID: id, delta: delta, expectedVersion: expectedVersion}}})
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAccount(s.accounts[id]), nil
}

// Enqueue stages or applies an outbox event.
func (s *Store) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	if j := journalFrom(ctx); j != nil {
		j.events = append(j.events, event)
		return nil
	}
	return s.apply(&journal{events: []*domain.OutboxEvent{event}})
}

// ListUnpublished returns up to limit staged events in creation order.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.OutboxEvent, 0, limit)
	for _, event := range s.eventLog {
		if event.PublishedAt != nil {
			continue
		}
		out = append(out, cloneEvent(event))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkPublished records the publication time of an event.
func (s *Store) MarkPublished(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return fmt.Errorf("outbox event %s not found", id)
	}
	if event.PublishedAt == nil {
		now := time.Now().UTC()
		event.PublishedAt = &now
	}
	return nil
}

func cloneAccount(a *domain.Account) *domain.Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

func cloneEvent(e *domain.OutboxEvent) *domain.OutboxEvent {
	clone := *e
	clone.Payload = append([]byte(nil), e.Payload...)
	if e.PublishedAt != nil {
		t := *e.PublishedAt
		clone.PublishedAt = &t
	}
	return &clone
}
