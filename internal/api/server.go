// Package api exposes the protection registry, transfer guard, escrow ledger and
// AMM classifier over HTTP/JSON.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-launch-guard/internal/amm"
	"solana-launch-guard/internal/audit"
	"solana-launch-guard/internal/authority"
	"solana-launch-guard/internal/escrow"
	"solana-launch-guard/internal/observability"
	"solana-launch-guard/internal/protection"
	"solana-launch-guard/internal/storage"
	"solana-launch-guard/internal/token"
)

// RequestIDHeader carries the caller's idempotency key. Retries with the same
// id and the same outcome collapse into one event log row.
const RequestIDHeader = "X-Request-ID"

const maxBodyBytes = 1 << 20

// Config wires the server to its components.
type Config struct {
	Registry   *protection.Registry
	Guard      *protection.Guard
	Ledger     *escrow.Ledger
	Classifier *amm.Classifier
	Events     storage.PolicyEventStore
	Recorder   *audit.Recorder

	// Governance verifies authority credentials for withdrawals.
	Governance authority.Verifier
	// Depositors verifies credentials signed by depositor wallets.
	Depositors authority.Verifier

	// Sandbox, when set, exposes governance-gated routes that open and fund
	// accounts on the in-process token ledger.
	Sandbox *token.Ledger

	Logger *zap.Logger
}

// Server is the HTTP front end.
type Server struct {
	registry   *protection.Registry
	guard      *protection.Guard
	ledger     *escrow.Ledger
	classifier *amm.Classifier
	events     storage.PolicyEventStore
	recorder   *audit.Recorder
	governance authority.Verifier
	depositors authority.Verifier
	sandbox    *token.Ledger
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	depositors := cfg.Depositors
	if depositors == nil {
		depositors = authority.NewSignerVerifier()
	}
	return &Server{
		registry:   cfg.Registry,
		guard:      cfg.Guard,
		ledger:     cfg.Ledger,
		classifier: cfg.Classifier,
		events:     cfg.Events,
		recorder:   cfg.Recorder,
		governance: cfg.Governance,
		depositors: depositors,
		sandbox:    cfg.Sandbox,
		logger:     logger,
		now:        time.Now,
	}
}

// Handler returns the routed handler with request-id and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/protections", s.handleInitProtection)
	mux.HandleFunc("GET /v1/protections/{mint}", s.handleGetProtection)
	mux.HandleFunc("POST /v1/protections/{mint}/disable", s.handleDisableProtection)
	mux.HandleFunc("POST /v1/protections/{mint}/check", s.handleCheckTransfer)

	mux.HandleFunc("POST /v1/escrows", s.handleInitEscrow)
	mux.HandleFunc("GET /v1/escrows/{pool}", s.handleGetEscrow)
	mux.HandleFunc("POST /v1/escrows/{pool}/deposit", s.handleDeposit)
	mux.HandleFunc("POST /v1/escrows/{pool}/unlock", s.handleUnlock)
	mux.HandleFunc("POST /v1/escrows/{pool}/withdraw", s.handleWithdraw)

	mux.HandleFunc("GET /v1/amm", s.handleListAMM)
	mux.HandleFunc("POST /v1/amm", s.handleAddAMM)
	mux.HandleFunc("DELETE /v1/amm/{program}", s.handleRemoveAMM)

	mux.HandleFunc("GET /v1/events/{asset}", s.handleEvents)
	mux.HandleFunc("GET /v1/stats", s.handleStats)

	if s.sandbox != nil {
		mux.HandleFunc("POST /v1/sandbox/accounts", s.handleFundAccount)
		mux.HandleFunc("GET /v1/sandbox/accounts/{address}", s.handleGetAccount)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())

	return s.middleware(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, reqID)
		r = r.WithContext(audit.WithRequestID(r.Context(), reqID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		observability.RecordHTTPRequest(route, strconv.Itoa(rec.status), time.Since(start).Seconds())
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("request_id", reqID),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request: " + err.Error(), Code: "InvalidInput"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
