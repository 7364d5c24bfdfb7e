package db_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sapliy/ledger-engine/internal/db"
	"github.com/sapliy/ledger-engine/internal/domain"
	"github.com/sapliy/ledger-engine/internal/events"
)

// TestLedgerIntegration exercises the full protocol against a real
// PostgreSQL instance: implicit account creation, idempotent replay,
// currency rejection, concurrent commits and outbox draining.
func TestLedgerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, dbURL := startPostgresContainer(t, ctx)
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}()

	pool, err := db.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	txLog := db.NewTransactionLog(pool.Pool)
	accounts := db.NewAccountStore(pool.Pool)
	outbox := db.NewOutboxStore(pool.Pool)
	txManager := db.NewTransactionManager(pool.Pool)
	service := domain.NewLedgerService(txLog, accounts, outbox, txManager, events.NewEncoder(), 0)

	t.Run("first deposit creates account", func(t *testing.T) {
		result, err := service.RecordTransaction(ctx, domain.RecordRequest{
			AccountID:   "acct_1",
			Amount:      100000,
			Currency:    "USD",
			Description: "Invoice #1009",
			ReferenceID: "pay_1",
		})
		if err != nil {
			t.Fatalf("RecordTransaction() error = %v", err)
		}
		if result.Replayed {
			t.Error("first call must not be a replay")
		}

		account, err := service.GetAccount(ctx, "acct_1")
		if err != nil {
			t.Fatalf("GetAccount() error = %v", err)
		}
		if account.Balance != 100000 {
			t.Errorf("balance = %d, want 100000", account.Balance)
		}
		if account.Version != 1 {
			t.Errorf("version = %d, want 1", account.Version)
		}
		if account.Currency != "USD" {
			t.Errorf("currency = %q, want USD", account.Currency)
		}
	})

	t.Run("replay returns original without applying again", func(t *testing.T) {
		result, err := service.RecordTransaction(ctx, domain.RecordRequest{
			AccountID:   "acct_1",
			Amount:      100000,
			Currency:    "USD",
			Description: "Invoice #1009",
			ReferenceID: "pay_1",
		})
		if err != nil {
			t.Fatalf("RecordTransaction() error = %v", err)
		}
		if !result.Replayed {
			t.Error("expected replay on duplicate reference")
		}

		account, _ := service.GetAccount(ctx, "acct_1")
		if account.Balance != 100000 {
			t.Errorf("balance moved on replay: %d", account.Balance)
		}
		if account.Version != 1 {
			t.Errorf("version moved on replay: %d", account.Version)
		}
	})

	t.Run("reference reuse with different payload rejected", func(t *testing.T) {
		_, err := service.RecordTransaction(ctx, domain.RecordRequest{
			AccountID:   "acct_1",
			Amount:      50000,
			Currency:    "USD",
			ReferenceID: "pay_1",
		})
		if !errors.Is(err, domain.ErrReferenceReuse) {
			t.Errorf("error = %v, want ErrReferenceReuse", err)
		}
	})

	t.Run("currency mismatch rejected and audited", func(t *testing.T) {
		_, err := service.RecordTransaction(ctx, domain.RecordRequest{
			AccountID:   "acct_1",
			Amount:      500,
			Currency:    "EUR",
			ReferenceID: "pay_eur",
		})
		if !errors.Is(err, domain.ErrCurrencyMismatch) {
			t.Fatalf("error = %v, want ErrCurrencyMismatch", err)
		}

		account, _ := service.GetAccount(ctx, "acct_1")
		if account.Balance != 100000 {
			t.Errorf("balance moved on rejected transaction: %d", account.Balance)
		}

		history, err := service.ListTransactions(ctx, "acct_1")
		if err != nil {
			t.Fatalf("ListTransactions() error = %v", err)
		}
		last := history[len(history)-1]
		if last.Status != domain.TransactionStatusRejected {
			t.Errorf("last entry status = %s, want REJECTED", last.Status)
		}
		if last.ReferenceID != "pay_eur" {
			t.Errorf("last entry reference = %s, want pay_eur", last.ReferenceID)
		}
	})

	t.Run("concurrent distinct references all commit", func(t *testing.T) {
		const workers = 8

		// Every conflict round lets at least one writer through, so a
		// budget of workers+2 attempts can never be exhausted here.
		contended := domain.NewLedgerService(txLog, accounts, outbox, txManager, events.NewEncoder(), workers+2)

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := contended.RecordTransaction(ctx, domain.RecordRequest{
					AccountID:   "acct_hot",
					Amount:      100,
					Currency:    "USD",
					ReferenceID: fmt.Sprintf("hot-%d", i),
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent RecordTransaction() error = %v", err)
			}
		}

		account, err := service.GetAccount(ctx, "acct_hot")
		if err != nil {
			t.Fatalf("GetAccount() error = %v", err)
		}
		if account.Balance != workers*100 {
			t.Errorf("balance = %d, want %d", account.Balance, workers*100)
		}
		if account.Version != workers {
			t.Errorf("version = %d, want %d", account.Version, workers)
		}
	})

	t.Run("concurrent same reference applies once", func(t *testing.T) {
		const workers = 8

		var wg sync.WaitGroup
		results := make(chan *domain.RecordResult, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := service.RecordTransaction(ctx, domain.RecordRequest{
					AccountID:   "acct_race",
					Amount:      500,
					Currency:    "USD",
					ReferenceID: "single-shot",
				})
				if err != nil {
					t.Errorf("concurrent RecordTransaction() error = %v", err)
					return
				}
				results <- result
			}()
		}
		wg.Wait()
		close(results)

		fresh := 0
		var firstID string
		for result := range results {
			if !result.Replayed {
				fresh++
			}
			if firstID == "" {
				firstID = result.Transaction.ID.String()
			} else if result.Transaction.ID.String() != firstID {
				t.Errorf("different transaction IDs for the same reference: %s vs %s",
					firstID, result.Transaction.ID.String())
			}
		}
		if fresh != 1 {
			t.Errorf("fresh commits = %d, want exactly 1", fresh)
		}

		account, _ := service.GetAccount(ctx, "acct_race")
		if account.Balance != 500 {
			t.Errorf("balance = %d, want 500", account.Balance)
		}
		if account.Version != 1 {
			t.Errorf("version = %d, want 1", account.Version)
		}
	})

	t.Run("version conflict surfaces through ApplyDelta", func(t *testing.T) {
		_, err := accounts.ApplyDelta(ctx, "acct_1", 100, 999)
		if !errors.Is(err, domain.ErrVersionConflict) {
			t.Errorf("error = %v, want ErrVersionConflict", err)
		}
	})

	t.Run("verify account agrees with log", func(t *testing.T) {
		report, err := service.VerifyAccount(ctx, "acct_1")
		if err != nil {
			t.Fatalf("VerifyAccount() error = %v", err)
		}
		if !report.Consistent {
			t.Errorf("materialized %d and replayed %d disagree",
				report.MaterializedBalance, report.ReplayedBalance)
		}
	})

	t.Run("outbox drains in commit order", func(t *testing.T) {
		pending, err := outbox.ListUnpublished(ctx, 100)
		if err != nil {
			t.Fatalf("ListUnpublished() error = %v", err)
		}
		// One event per committed transaction so far.
		if len(pending) == 0 {
			t.Fatal("expected pending outbox events")
		}

		for _, event := range pending {
			if event.EventType != events.EventTypeTransactionCommitted {
				t.Errorf("event type = %s, want %s", event.EventType, events.EventTypeTransactionCommitted)
			}
			if err := outbox.MarkPublished(ctx, event.ID.String()); err != nil {
				t.Fatalf("MarkPublished() error = %v", err)
			}
		}

		remaining, err := outbox.ListUnpublished(ctx, 100)
		if err != nil {
			t.Fatalf("ListUnpublished() error = %v", err)
		}
		if len(remaining) != 0 {
			t.Errorf("events left unpublished after drain: %d", len(remaining))
		}

		// Marking twice is a no-op, crash-retry safe.
		if err := outbox.MarkPublished(ctx, pending[0].ID.String()); err != nil {
			t.Errorf("second MarkPublished() error = %v", err)
		}
	})

	t.Run("get unknown account returns not found", func(t *testing.T) {
		_, err := service.GetAccount(ctx, "ghost")
		if !errors.Is(err, domain.ErrAccountNotFound) {
			t.Errorf("error = %v, want ErrAccountNotFound", err)
		}
	})
}

// startPostgresContainer starts a PostgreSQL testcontainer and returns the connection URL.
func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get postgres host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get postgres port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
	return container, dbURL
}
