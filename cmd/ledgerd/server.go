// server.go - HTTP surface for the ledger daemon.
//
// The daemon moves handles and proofs only; no endpoint decrypts anything.
// Mutating endpoints are rate limited per identity and persist the store
// and engine state after every committed operation.
package main

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"confledger/internal/confidential"
	"confledger/internal/ledger"
)

// Server wires the HTTP surface to the ledger core
type Server struct {
	cfg        *Config
	log        zerolog.Logger
	ledger     *ledger.Ledger
	engine     *confidential.Engine
	store      *ledger.MemoryStore
	enginePath string
	metrics    *Metrics
	health     *HealthChecker
	limiter    *IdentityRateLimiter
}

// logEmitter forwards ledger notifications to the structured log.
type logEmitter struct {
	log zerolog.Logger
}

func (e *logEmitter) Emit(ev *ledger.Event) {
	e.log.Info().
		Str("type", ev.Type).
		Str("account", ev.Attributes["account"]).
		Msg("ledger event")
}

// Router builds the chi router for all endpoints
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/grant", s.handleGrant)
	r.Post("/stake", s.handleMove("stake", s.ledger.Stake))
	r.Post("/withdraw", s.handleMove("withdraw", s.ledger.Withdraw))

	r.Get("/accounts/{address}/balance", s.handleRead(s.ledger.GetBalance))
	r.Get("/accounts/{address}/stake", s.handleRead(s.ledger.GetStake))
	r.Get("/accounts/{address}/status", s.handleRead(s.ledger.GetStatus))
	r.Get("/accounts/{address}/claimed", s.handleClaimed)

	r.Get("/engine", s.handleEngineInfo)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	return r
}

type grantRequest struct {
	Caller string `json:"caller"`
}

type moveRequest struct {
	Caller string                      `json:"caller"`
	Input  *confidential.ExternalInput `json:"input"`
}

type handleResponse struct {
	Handle string `json:"handle"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.RequestDuration.WithLabelValues("grant").Observe(time.Since(start).Seconds()) }()

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := s.parseAddress(w, req.Caller)
	if !ok {
		return
	}
	if !s.limiter.Allow(caller) {
		s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := s.ledger.Grant(caller); err != nil {
		s.metrics.OpsTotal.WithLabelValues("grant", "aborted").Inc()
		if errors.Is(err, ledger.ErrAlreadyClaimed) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Str("caller", caller.Hex()).Msg("grant failed")
		s.writeError(w, http.StatusInternalServerError, "grant failed")
		return
	}
	s.metrics.OpsTotal.WithLabelValues("grant", "accepted").Inc()
	s.persist(caller)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMove serves stake and withdraw, which differ only in the ledger
// operation invoked.
func (s *Server) handleMove(op string, move func(common.Address, *confidential.ExternalInput) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() { s.metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

		var req moveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		caller, ok := s.parseAddress(w, req.Caller)
		if !ok {
			return
		}
		if req.Input == nil {
			s.writeError(w, http.StatusBadRequest, "missing input")
			return
		}
		if !s.limiter.Allow(caller) {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if err := move(caller, req.Input); err != nil {
			s.metrics.OpsTotal.WithLabelValues(op, "aborted").Inc()
			if errors.Is(err, ledger.ErrInvalidProof) {
				s.metrics.ProofFailures.Inc()
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.log.Error().Err(err).Str("caller", caller.Hex()).Str("op", op).Msg("operation failed")
			s.writeError(w, http.StatusInternalServerError, op+" failed")
			return
		}
		s.metrics.OpsTotal.WithLabelValues(op, "accepted").Inc()
		s.persist(caller)
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleRead(read func(common.Address) confidential.Handle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.parseAddress(w, chi.URLParam(r, "address"))
		if !ok {
			return
		}
		s.writeJSON(w, http.StatusOK, handleResponse{Handle: read(id).Hex()})
	}
}

func (s *Server) handleClaimed(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"claimed": s.ledger.HasClaimed(id)})
}

// handleEngineInfo serves what clients need to seal external inputs: the
// engine public key and the ledger's self address for the binding.
func (s *Server) handleEngineInfo(w http.ResponseWriter, r *http.Request) {
	pk := s.engine.PublicKey()
	xBytes := pk.X.Bytes()
	yBytes := pk.Y.Bytes()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"self":         s.engine.SelfAddress().Hex(),
		"public_key_x": new(big.Int).SetBytes(xBytes[:]).String(),
		"public_key_y": new(big.Int).SetBytes(yBytes[:]).String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.health.CheckHealth()
	code := http.StatusOK
	if health.OverallStatus != Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, health)
}

func (s *Server) parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		s.writeError(w, http.StatusBadRequest, "invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// persist snapshots the store and the engine state together: the store's
// handles are only meaningful against the engine table that minted them.
func (s *Server) persist(caller common.Address) {
	if err := s.store.SaveToFile(s.cfg.LedgerPath); err != nil {
		s.log.Error().Err(err).Str("caller", caller.Hex()).Msg("ledger persist failed")
	}
	if s.enginePath == "" {
		return
	}
	if err := s.engine.SaveToFile(s.enginePath); err != nil {
		s.log.Error().Err(err).Str("caller", caller.Hex()).Msg("engine persist failed")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encoding failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, errorResponse{Error: msg})
}
