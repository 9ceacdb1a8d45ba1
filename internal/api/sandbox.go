package api

import (
	"errors"
	"fmt"
	"net/http"

	"solana-launch-guard/internal/authority"
	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
	"solana-launch-guard/internal/token"
)

type fundAccountRequest struct {
	Address    domain.Pubkey        `json:"address"`
	Mint       domain.Pubkey        `json:"mint"`
	Owner      domain.Pubkey        `json:"owner"`
	Amount     uint64               `json:"amount"`
	Credential authority.Credential `json:"credential"`
}

type accountResponse struct {
	Address domain.Pubkey `json:"address"`
	Mint    domain.Pubkey `json:"mint"`
	Owner   domain.Pubkey `json:"owner"`
	Amount  uint64        `json:"amount"`
}

// FundSubject is the credential subject an authority signs to open or top up
// a sandbox account.
func FundSubject(address, mint, owner domain.Pubkey, amount uint64) string {
	return fmt.Sprintf("%s:%s:%s:%d", address, mint, owner, amount)
}

// handleFundAccount opens address if it does not exist yet and credits amount.
// An existing account must match the requested mint and owner.
func (s *Server) handleFundAccount(w http.ResponseWriter, r *http.Request) {
	var req fundAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Address.IsZero() || req.Mint.IsZero() || req.Owner.IsZero() {
		s.writeError(w, fmt.Errorf("%w: address, mint and owner are required", storage.ErrInvalidInput))
		return
	}
	subject := FundSubject(req.Address, req.Mint, req.Owner, req.Amount)
	if err := s.governance.Verify(r.Context(), authority.ActionFundAccount, subject, req.Credential); err != nil {
		s.writeError(w, fmt.Errorf("fund account: %w", err))
		return
	}

	ctx := r.Context()
	err := s.sandbox.OpenAccount(ctx, req.Address, req.Mint, req.Owner)
	if errors.Is(err, token.ErrAccountExists) {
		acct, getErr := s.sandbox.Account(ctx, req.Address)
		if getErr != nil {
			s.writeError(w, getErr)
			return
		}
		if acct.Mint != req.Mint || acct.Owner != req.Owner {
			s.writeError(w, err)
			return
		}
	} else if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.sandbox.MintTo(ctx, req.Address, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAccount(w, r, req.Address)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	address, ok := s.pathKey(w, r, "address")
	if !ok {
		return
	}
	s.writeAccount(w, r, address)
}

func (s *Server) writeAccount(w http.ResponseWriter, r *http.Request, address domain.Pubkey) {
	acct, err := s.sandbox.Account(r.Context(), address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		Address: acct.Address,
		Mint:    acct.Mint,
		Owner:   acct.Owner,
		Amount:  acct.Amount,
	})
}
