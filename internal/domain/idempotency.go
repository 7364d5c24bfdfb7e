package domain

import (
	"context"
	"fmt"
	"sync"
)

// guardKey identifies one idempotency scope: a reference id within an account.
type guardKey struct {
	accountID   string
	referenceID string
}

// Admission is the outcome of an Admit call. Exactly one of the two cases
// holds: Existing carries the entry already recorded for the pair, or the
// caller was admitted to proceed and must call Done when its attempt
// finishes, whether or not it committed.
type Admission struct {
	Existing *Transaction
	done     func()
}

// Done releases the in-flight claim so waiting admits can re-check the log.
// Safe to call more than once.
func (a *Admission) Done() {
	if a.done != nil {
		a.done()
		a.done = nil
	}
}

// IdempotencyGuard serializes admission per (account id, reference id) pair.
// Persistence of the decision lives in the transaction log's unique key; the
// guard adds an in-process in-flight table so concurrent admits of the same
// pair yield exactly one Proceed while the rest wait for the holder and then
// re-check. A crashed holder leaves no residue: its claim dies with the
// process and the log row either committed or it didn't.
type IdempotencyGuard struct {
	log TransactionLog

	mu       sync.Mutex
	inflight map[guardKey]chan struct{}
}

// NewIdempotencyGuard creates a guard backed by the given log.
func NewIdempotencyGuard(log TransactionLog) *IdempotencyGuard {
	return &IdempotencyGuard{
		log:      log,
		inflight: make(map[guardKey]chan struct{}),
	}
}

// Admit decides whether the caller may record a new entry for the pair.
// If an entry already exists, it is returned and nothing may be recorded.
// Otherwise the caller holds the pair's in-flight claim until Done.
// Blocks while another caller holds the claim; unblocks on ctx cancellation.
func (g *IdempotencyGuard) Admit(ctx context.Context, accountID, referenceID string) (*Admission, error) {
	key := guardKey{accountID: accountID, referenceID: referenceID}

	for {
		existing, err := g.log.GetByReference(ctx, accountID, referenceID)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			return &Admission{Existing: existing}, nil
		}

		g.mu.Lock()
		wait, held := g.inflight[key]
		if !held {
			release := make(chan struct{})
			g.inflight[key] = release
			g.mu.Unlock()
			return &Admission{done: func() {
				g.mu.Lock()
				delete(g.inflight, key)
				g.mu.Unlock()
				close(release)
			}}, nil
		}
		g.mu.Unlock()

		// Another caller is committing this pair; wait for it to finish
		// and re-check what it recorded.
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("idempotency wait: %w", ctx.Err())
		}
	}
}
