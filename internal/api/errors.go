package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"solana-launch-guard/internal/authority"
	"solana-launch-guard/internal/escrow"
	"solana-launch-guard/internal/policy"
	"solana-launch-guard/internal/storage"
	"solana-launch-guard/internal/token"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// statusOf maps an operation error to an HTTP status. Not-found wins over the
// policy kind so that disabling an unknown mint reports 404.
func statusOf(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, token.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, token.ErrMintMismatch),
		errors.Is(err, escrow.ErrAttestationMismatch):
		return http.StatusBadRequest
	case errors.Is(err, authority.ErrUnauthorized), errors.Is(err, authority.ErrBadSignature),
		errors.Is(err, authority.ErrStaleCredential), errors.Is(err, escrow.ErrUnknownAttestor),
		errors.Is(err, escrow.ErrAttestationSignature), errors.Is(err, escrow.ErrAttestationStale):
		return http.StatusUnauthorized
	case errors.Is(err, token.ErrOwnerMismatch), errors.Is(err, token.ErrInvalidAuthority):
		return http.StatusForbidden
	case errors.Is(err, token.ErrInsufficientFunds), errors.Is(err, token.ErrOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrDuplicateKey), errors.Is(err, token.ErrAccountExists),
		errors.Is(err, authority.ErrReplayed):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrNoAttestor):
		return http.StatusServiceUnavailable
	}

	switch policy.KindOf(err) {
	case policy.KindPolicyViolation:
		return http.StatusForbidden
	case policy.KindStateConflict, policy.KindProtectionInactive:
		return http.StatusConflict
	case policy.KindThresholdUnmet:
		return http.StatusPreconditionFailed
	case policy.KindBalanceViolation:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// codeOf labels a rejection for the event log.
func codeOf(err error) string {
	if code := policy.CodeOf(err); code != "" {
		return code
	}
	switch {
	case errors.Is(err, authority.ErrReplayed):
		return "Replayed"
	case errors.Is(err, storage.ErrInvalidInput):
		return "InvalidInput"
	case statusOf(err) == http.StatusUnauthorized:
		return "Unauthorized"
	}
	return "Internal"
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	resp := errorResponse{
		Error: err.Error(),
		Code:  policy.CodeOf(err),
		Kind:  string(policy.KindOf(err)),
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}
