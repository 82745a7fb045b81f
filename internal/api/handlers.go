package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tronledger/tronledger/internal/app/receipt"
	"github.com/tronledger/tronledger/internal/domain"
)

// ─── Routes ─────────────────────────────────────────────────────────────────
//
// GET    /api/stats                         last pass refreshed for later changes
// GET    /api/wallets                       tracked wallets
// POST   /api/wallets                       add a wallet
// POST   /api/wallets/sync-all              reconcile every wallet
// POST   /api/wallets/refresh-balances      fetch balances only
// POST   /api/wallets/validate-address      address format check
// DELETE /api/wallets/{id}                  stop tracking
// POST   /api/wallets/{id}/sync             reconcile one wallet
// GET    /api/transactions/sent|received    ledger views (?wallet=)
// GET    /api/transactions/{hash}           one record
// PUT    /api/transactions/{hash}           status and note
// GET    /api/transactions/{hash}/receipt   plain-text receipt
// POST   /api/transactions/detect-duplicates  rerun detection over the ledger
// GET    /api/duplicates                    clusters (?status=)
// POST   /api/duplicates/{id}/legitimate    accept a cluster
// GET    /api/sync/status                   auto-sync counters
// GET    /api/sync/history                  recent pass spans (?limit=)

// warningHeader carries a non-fatal persistence failure on a successful
// response: the change applies for this process but was not saved.
const warningHeader = "X-Tronledger-Warning"

// persisted reports whether err is nil or only a persistence failure, in
// which case the warning header is set.
func (s *Server) persisted(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrPersistence) {
		s.log.WithError(err).Warn("change kept in memory only")
		w.Header().Set(warningHeader, err.Error())
		return true
	}
	return false
}

// ─── Stats ──────────────────────────────────────────────────────────────────

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rep := s.svc.Orch.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":        rep.Stats,
		"completed_at": rep.CompletedAt,
		"failures":     rep.Failures,
	})
}

// ─── Wallets ────────────────────────────────────────────────────────────────

type addWalletRequest struct {
	Address  string `json:"address"`
	Nickname string `json:"nickname"`
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallets": s.svc.Wallets.List(),
	})
}

func (s *Server) handleAddWallet(w http.ResponseWriter, r *http.Request) {
	var req addWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	wal, err := s.svc.Wallets.Add(r.Context(), req.Address, req.Nickname)
	if !s.persisted(w, err) {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wal)
}

func (s *Server) handleRemoveWallet(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Wallets.Remove(r.Context(), chi.URLParam(r, "id"))
	if !s.persisted(w, err) {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSyncAll runs a pass detached from the request: a client disconnect
// or the router timeout must not fail wallets midway.
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	rep := s.svc.Orch.ReconcileAll(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleRefreshBalances(w http.ResponseWriter, r *http.Request) {
	rep := s.svc.Orch.RefreshBalances(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSyncWallet(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Orch.ReconcileWallet(context.WithoutCancel(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleValidateAddress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"valid": domain.IsValidAddress(req.Address),
	})
}

// ─── Transactions ───────────────────────────────────────────────────────────

type updateTransactionRequest struct {
	Status *string `json:"status"`
	Note   *string `json:"note"`
}

func (s *Server) handleListTransactions(dir domain.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet := r.URL.Query().Get("wallet")
		var recs []domain.TransactionRecord
		if dir == domain.DirectionSent {
			recs = s.svc.Store.Sent(wallet)
		} else {
			recs = s.svc.Store.Received(wallet)
		}
		if recs == nil {
			recs = []domain.TransactionRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"transactions": recs,
			"count":        len(recs),
		})
	}
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Store.Get(chi.URLParam(r, "hash"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Status == nil && req.Note == nil {
		writeError(w, http.StatusBadRequest, "nothing to update: set status or note")
		return
	}

	if req.Status != nil {
		status, err := domain.ParseTxStatus(*req.Status)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if err := s.svc.Store.SetStatus(r.Context(), hash, status); !s.persisted(w, err) {
			writeDomainError(w, err)
			return
		}
	}
	if req.Note != nil {
		if err := s.svc.Store.SetNote(r.Context(), hash, *req.Note); !s.persisted(w, err) {
			writeDomainError(w, err)
			return
		}
	}

	rec, err := s.svc.Store.Get(hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Store.Get(chi.URLParam(r, "hash"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(receipt.Render(rec, s.now())))
}

func (s *Server) handleDetectDuplicates(w http.ResponseWriter, r *http.Request) {
	rep := s.svc.Orch.Evaluate()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"duplicates": rep.Clusters,
		"count":      len(rep.Clusters),
		"stats":      rep.Stats,
	})
}

// ─── Duplicates ─────────────────────────────────────────────────────────────

func (s *Server) handleListDuplicates(w http.ResponseWriter, r *http.Request) {
	status := domain.ClusterStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.ClusterPending, domain.ClusterLegitimate:
	default:
		writeError(w, http.StatusBadRequest, "status must be pending or legitimate")
		return
	}
	if _, ok := s.svc.Orch.Last(); !ok {
		s.svc.Orch.Evaluate()
	}
	clusters := s.svc.Review.Current(status)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"duplicates": clusters,
		"count":      len(clusters),
	})
}

func (s *Server) handleMarkLegitimate(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Review.MarkLegitimate(r.Context(), chi.URLParam(r, "id"))
	if !s.persisted(w, err) {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ─── Sync ───────────────────────────────────────────────────────────────────

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"auto_sync": s.svc.Scheduler != nil,
	}
	if s.svc.Tracer != nil {
		resp["spans_recorded"] = s.svc.Tracer.SpanCount()
	}
	if s.svc.Scheduler != nil {
		resp["scheduler"] = s.svc.Scheduler.Stats()
	}
	if rep, ok := s.svc.Orch.Last(); ok {
		resp["last_pass"] = map[string]interface{}{
			"completed_at": rep.CompletedAt,
			"inserted":     rep.Inserted,
			"failures":     rep.Failures,
			"trace_id":     rep.TraceID,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	if s.svc.Tracer == nil {
		writeError(w, http.StatusServiceUnavailable, "tracing not enabled")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	spans := s.svc.Tracer.Spans(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"spans": spans,
		"count": len(spans),
	})
}
