package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/ledger"
	"solana-launch-engine/internal/observability"
	"solana-launch-engine/internal/orchestrator"
	"solana-launch-engine/internal/pool"
	"solana-launch-engine/internal/storage"
)

// apiServer exposes the orchestrator and ledger over HTTP.
type apiServer struct {
	orch      *orchestrator.Orchestrator
	ledger    *ledger.Ledger
	allocator *pool.Allocator
	logger    *log.Logger
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/launch", s.handleLaunch)
	mux.HandleFunc("POST /api/launch/retry", s.handleLaunchRetry)
	mux.HandleFunc("POST /api/sell/dev", s.handleDevSell)
	mux.HandleFunc("POST /api/sell/wallets", s.handleWalletSell)
	mux.HandleFunc("POST /api/outcome", s.handleOutcome)
	mux.HandleFunc("GET /api/stats/{mint}", s.handleStats)
	mux.HandleFunc("GET /api/pnl/{mint}", s.handlePnL)
	mux.HandleFunc("GET /api/retry/{owner}/{kind}", s.handlePendingRetry)
	mux.HandleFunc("GET /api/pool/stats", s.handlePoolStats)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())

	return mux
}

func (s *apiServer) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.LaunchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.orch.StartLaunch(r.Context(), &req)
	if err != nil {
		s.internalError(w, "start launch", err)
		return
	}
	if res.Success {
		observability.RecordLaunchStarted()
	}
	writeJSON(w, http.StatusOK, res)
}

type retryRequest struct {
	Owner       string `json:"owner"`
	MintAddress string `json:"mintAddress"`
}

func (s *apiServer) handleLaunchRetry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.orch.RetryLaunch(r.Context(), req.Owner, req.MintAddress)
	if err != nil {
		s.internalError(w, "retry launch", err)
		return
	}
	if res.Success {
		observability.RecordLaunchRetry()
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleDevSell(w http.ResponseWriter, r *http.Request) {
	s.handleSell(w, r, s.orch.EnqueueDevSell, "dev-sell")
}

func (s *apiServer) handleWalletSell(w http.ResponseWriter, r *http.Request) {
	s.handleSell(w, r, s.orch.EnqueueWalletSell, "wallet-sell")
}

type sellFunc func(ctx context.Context, req *orchestrator.SellRequest) (*orchestrator.Result, error)

func (s *apiServer) handleSell(w http.ResponseWriter, r *http.Request, enqueue sellFunc, operation string) {
	var req orchestrator.SellRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := enqueue(r.Context(), &req)
	if err != nil {
		s.internalError(w, operation, err)
		return
	}
	if res.Success {
		observability.RecordSellDispatched(operation)
	} else {
		observability.RecordSellRejection(operation)
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *apiServer) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Printf("%s: %v", op, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (s *apiServer) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var rep orchestrator.OutcomeReport
	if !decodeJSON(w, r, &rep) {
		return
	}
	res, err := s.orch.ReportOutcome(r.Context(), &rep)
	if err != nil {
		s.internalError(w, "report outcome", err)
		return
	}
	observability.RecordLaunchOutcome(rep.Type.String(), rep.Success)
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	mint := r.PathValue("mint")
	stats, err := s.ledger.Stats(r.Context(), mint, nil)
	if err != nil {
		s.internalError(w, "ledger stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *apiServer) handlePnL(w http.ResponseWriter, r *http.Request) {
	mint := r.PathValue("mint")
	report, err := s.ledger.PnL(r.Context(), mint)
	if err != nil {
		s.internalError(w, "pnl", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handlePendingRetry(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	kind := domain.FlowKind(r.PathValue("kind"))
	if !kind.IsValid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown flow kind"})
		return
	}
	payload, err := s.orch.PendingRetry(r.Context(), owner, kind)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pending retry"})
			return
		}
		s.internalError(w, "pending retry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"payload": payload})
}

func (s *apiServer) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.allocator.Stats(r.Context())
	if err != nil {
		s.internalError(w, "pool stats", err)
		return
	}
	observability.UpdatePoolStats(stats.Total, stats.Used)
	writeJSON(w, http.StatusOK, stats)
}
