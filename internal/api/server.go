// Package api provides the HTTP server for tronledger.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tronledger/tronledger/internal/app/duplicate"
	"github.com/tronledger/tronledger/internal/app/ledger"
	"github.com/tronledger/tronledger/internal/app/reconcile"
	"github.com/tronledger/tronledger/internal/app/wallet"
	"github.com/tronledger/tronledger/internal/domain"
	"github.com/tronledger/tronledger/internal/infra/observability"
)

// Services are the application services the API exposes.
type Services struct {
	Store     *ledger.Store
	Wallets   *wallet.Registry
	Review    *duplicate.Review
	Orch      *reconcile.Orchestrator
	Scheduler *reconcile.Scheduler   // nil when auto-sync is off
	Tracer    *observability.Tracer // nil disables /api/sync/history
}

// Server is the tronledger HTTP API server.
type Server struct {
	svc            Services
	log            logrus.FieldLogger
	metricsEnabled bool
	now            func() time.Time
}

// NewServer creates a new API server.
func NewServer(svc Services, log logrus.FieldLogger) *Server {
	return &Server{
		svc: svc,
		log: log.WithField("component", "api"),
		now: time.Now,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)

		r.Route("/wallets", func(r chi.Router) {
			r.Get("/", s.handleListWallets)
			r.Post("/", s.handleAddWallet)
			r.Post("/sync-all", s.handleSyncAll)
			r.Post("/refresh-balances", s.handleRefreshBalances)
			r.Post("/validate-address", s.handleValidateAddress)
			r.Delete("/{id}", s.handleRemoveWallet)
			r.Post("/{id}/sync", s.handleSyncWallet)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/sent", s.handleListTransactions(domain.DirectionSent))
			r.Get("/received", s.handleListTransactions(domain.DirectionReceived))
			r.Post("/detect-duplicates", s.handleDetectDuplicates)
			r.Get("/{hash}", s.handleGetTransaction)
			r.Put("/{hash}", s.handleUpdateTransaction)
			r.Get("/{hash}/receipt", s.handleReceipt)
		})

		r.Route("/duplicates", func(r chi.Router) {
			r.Get("/", s.handleListDuplicates)
			r.Post("/{id}/legitimate", s.handleMarkLegitimate)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", s.handleSyncStatus)
			r.Get("/history", s.handleSyncHistory)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a domain error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrWalletExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrClusterNotFound):
		status = http.StatusNotFound
	}
	writeError(w, status, err.Error())
}

// corsMiddleware adds CORS headers for the local dashboard.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
