package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsRecorded counts record attempts by terminal status.
	TransactionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_recorded_total",
			Help: "Total number of recorded transactions by status",
		},
		[]string{"status"},
	)

	// TransactionLatency observes end-to-end latency of record requests.
	TransactionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_transaction_latency_seconds",
			Help:    "Latency of transaction recording in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CommitConflicts counts optimistic version conflicts seen by the
	// account store. A high rate means hot accounts are being hammered.
	CommitConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_commit_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts on account commits",
		},
	)

	// OutboxLag tracks how many committed events still await publishing.
	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_outbox_lag_total",
			Help: "Number of outbox events not yet published",
		},
	)
)
