package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the ledger API. Extra middlewares apply to the ledger
// routes only, so /health and /metrics stay cheap.
func NewRouter(h *Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/ledger", func(r chi.Router) {
		r.Use(chimiddleware.Logger)
		for _, mw := range middlewares {
			r.Use(mw)
		}
		r.Post("/transactions", h.RecordTransaction)
		r.Get("/accounts/{accountID}", h.GetAccount)
		r.Get("/accounts/{accountID}/transactions", h.ListTransactions)
		r.Get("/accounts/{accountID}/verify", h.VerifyAccount)
	})

	return r
}
