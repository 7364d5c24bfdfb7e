// Package observability holds the logging, tracing and metrics plumbing
// shared by every component of the ledger engine.
package observability

import (
	"log/slog"
	"os"
)

// NewLogger creates a JSON structured logger tagged with the service name.
func NewLogger(serviceName string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler).With("service", serviceName)
}
