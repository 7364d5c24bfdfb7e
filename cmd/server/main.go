package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sapliy/ledger-engine/internal/config"
	"github.com/sapliy/ledger-engine/internal/db"
	"github.com/sapliy/ledger-engine/internal/domain"
	"github.com/sapliy/ledger-engine/internal/events"
	"github.com/sapliy/ledger-engine/internal/handlers"
	"github.com/sapliy/ledger-engine/internal/memory"
	"github.com/sapliy/ledger-engine/internal/messaging"
	"github.com/sapliy/ledger-engine/internal/observability"
	"github.com/sapliy/ledger-engine/internal/outbox"
)

const (
	serviceName    = "ledger-engine"
	serviceVersion = "0.1.0"
)

func main() {
	logger := observability.NewLogger(serviceName)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Endpoint:       cfg.Tracing.OTLPEndpoint,
		Environment:    cfg.Tracing.Environment,
	}, logger)
	if err != nil {
		logger.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	var (
		txLog       domain.TransactionLog
		accounts    domain.AccountStore
		outboxStore domain.OutboxStore
		txManager   domain.TransactionManager
	)
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database schema ready")

		txLog = db.NewTransactionLog(pool.Pool)
		accounts = db.NewAccountStore(pool.Pool)
		outboxStore = db.NewOutboxStore(pool.Pool)
		txManager = db.NewTransactionManager(pool.Pool)
	case "memory":
		store := memory.NewStore()
		txLog, accounts, outboxStore, txManager = store, store, store, store
		logger.Info("using in-memory storage, data will not survive restarts")
	}

	service := domain.NewLedgerService(txLog, accounts, outboxStore, txManager,
		events.NewEncoder(), cfg.Ledger.CommitAttempts)

	if cfg.RabbitMQ.Enabled {
		publisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		logger.Info("rabbitmq publisher connected",
			"exchange", cfg.RabbitMQ.Exchange, "routing_key", cfg.RabbitMQ.RoutingKey)

		relay := outbox.NewRelay(outboxStore, publisher, cfg.Outbox.Interval, cfg.Outbox.BatchSize, logger)
		go func() {
			if err := relay.Start(ctx); err != nil {
				logger.Error("outbox relay failed", "error", err)
			}
		}()
	}

	if cfg.Kafka.Enabled {
		consumer := messaging.NewPaymentConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, service, logger)
		defer consumer.Close()
		logger.Info("kafka payment consumer configured",
			"topic", cfg.Kafka.Topic, "group_id", cfg.Kafka.GroupID)

		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("kafka consumer failed", "error", err)
			}
		}()
	}

	handler := handlers.NewHandler(service, logger)

	var middlewares []func(http.Handler) http.Handler
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer redisClient.Close()
		logger.Info("redis response cache enabled", "addr", cfg.Redis.Addr)

		cache := handlers.NewResponseCache(redisClient, cfg.Redis.ResponseTTL, logger)
		middlewares = append(middlewares, cache.Middleware)
	}

	router := handlers.NewRouter(handler, middlewares...)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: otelhttp.NewHandler(router, "ledger-request"),
	}

	go func() {
		logger.Info("HTTP server starting", "addr", httpServer.Addr, "storage", cfg.Storage.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	logger.Info("server exited")
}
