package api

import (
	"errors"
	"fmt"
	"net/http"

	"solana-launch-guard/internal/authority"
	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/escrow"
	"solana-launch-guard/internal/policy"
	"solana-launch-guard/internal/protection"
	"solana-launch-guard/internal/storage"
	"solana-launch-guard/internal/token"
)

// pathKey parses a base58 path parameter, writing 400 on failure.
func (s *Server) pathKey(w http.ResponseWriter, r *http.Request, name string) (domain.Pubkey, bool) {
	p, err := domain.ParsePubkey(r.PathValue(name))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s: %v", storage.ErrInvalidInput, name, err))
		return domain.Pubkey{}, false
	}
	return p, true
}

type protectionResponse struct {
	Address         domain.Pubkey `json:"address"`
	Mint            domain.Pubkey `json:"mint"`
	LaunchTimestamp int64         `json:"launch_timestamp"`
	DurationSeconds int64         `json:"duration_seconds"`
	ProtectionEnd   int64         `json:"protection_end"`
	State           string        `json:"state"`
	Nonce           uint8         `json:"nonce"`
}

func toProtectionResponse(w *domain.ProtectionWindow) protectionResponse {
	return protectionResponse{
		Address:         w.Address,
		Mint:            w.Mint,
		LaunchTimestamp: w.LaunchTimestamp,
		DurationSeconds: w.DurationSeconds,
		ProtectionEnd:   w.ProtectionEnd(),
		State:           w.State.String(),
		Nonce:           w.Nonce,
	}
}

type escrowResponse struct {
	Address      domain.Pubkey `json:"address"`
	Pool         domain.Pubkey `json:"pool"`
	LPMint       domain.Pubkey `json:"lp_mint"`
	Vault        domain.Pubkey `json:"vault"`
	MinHolders   uint64        `json:"min_holders"`
	MinVolumeUSD uint64        `json:"min_volume_usd"`
	LockedAmount uint64        `json:"locked_amount"`
	State        string        `json:"state"`
	Nonce        uint8         `json:"nonce"`
	VaultNonce   uint8         `json:"vault_nonce"`
}

func toEscrowResponse(r *domain.EscrowRecord) escrowResponse {
	return escrowResponse{
		Address:      r.Address,
		Pool:         r.Pool,
		LPMint:       r.LPMint,
		Vault:        r.Vault,
		MinHolders:   r.MinHolders,
		MinVolumeUSD: r.MinVolumeUSD,
		LockedAmount: r.LockedAmount,
		State:        r.State.String(),
		Nonce:        r.Nonce,
		VaultNonce:   r.VaultNonce,
	}
}

// Protections

type initProtectionRequest struct {
	Mint            domain.Pubkey        `json:"mint"`
	LaunchTimestamp int64                `json:"launch_timestamp"`
	DurationSeconds int64                `json:"duration_seconds"`
	Credential      authority.Credential `json:"credential"`
}

func (s *Server) handleInitProtection(w http.ResponseWriter, r *http.Request) {
	var req initProtectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	win, err := s.registry.Initialize(r.Context(), req.Credential, req.Mint, req.LaunchTimestamp, req.DurationSeconds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProtectionResponse(win))
}

func (s *Server) handleGetProtection(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathKey(w, r, "mint")
	if !ok {
		return
	}
	win, err := s.registry.Get(r.Context(), mint)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProtectionResponse(win))
}

type credentialRequest struct {
	Credential authority.Credential `json:"credential"`
}

func (s *Server) handleDisableProtection(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathKey(w, r, "mint")
	if !ok {
		return
	}
	var req credentialRequest
	if !s.decode(w, r, &req) {
		return
	}
	win, err := s.registry.Disable(r.Context(), req.Credential, mint)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProtectionResponse(win))
}

type checkRequest struct {
	SourceOwner      domain.Pubkey `json:"source_owner"`
	DestinationOwner domain.Pubkey `json:"destination_owner"`
	Amount           uint64        `json:"amount"`
	Timestamp        int64         `json:"timestamp,omitempty"` // unix seconds; 0 means now
}

type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Outcome string `json:"outcome"`
	Code    string `json:"code,omitempty"`
}

func (s *Server) handleCheckTransfer(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathKey(w, r, "mint")
	if !ok {
		return
	}
	var req checkRequest
	if !s.decode(w, r, &req) {
		return
	}
	ts := req.Timestamp
	if ts == 0 {
		ts = s.now().Unix()
	}

	v, err := s.guard.Check(r.Context(), protection.Transfer{
		Mint:             mint,
		SourceOwner:      req.SourceOwner,
		DestinationOwner: req.DestinationOwner,
		Amount:           req.Amount,
		Timestamp:        ts,
	})
	if err != nil && !errors.Is(err, policy.ErrTransferBlockedByAntiSniper) {
		s.writeError(w, err)
		return
	}

	resp := checkResponse{Allowed: v.Allowed, Reason: string(v.Reason), Outcome: string(v.Outcome())}
	if err != nil {
		resp.Code = policy.CodeOf(err)
		writeJSON(w, statusOf(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Escrows

type initEscrowRequest struct {
	Pool         domain.Pubkey        `json:"pool"`
	LPMint       domain.Pubkey        `json:"lp_mint"`
	MinHolders   uint64               `json:"min_holders"`
	MinVolumeUSD uint64               `json:"min_volume_usd"`
	Credential   authority.Credential `json:"credential"`
}

func (s *Server) handleInitEscrow(w http.ResponseWriter, r *http.Request) {
	var req initEscrowRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.ledger.Initialize(r.Context(), req.Credential, req.Pool, req.LPMint, req.MinHolders, req.MinVolumeUSD)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEscrowResponse(rec))
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pathKey(w, r, "pool")
	if !ok {
		return
	}
	rec, err := s.ledger.Get(r.Context(), pool)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEscrowResponse(rec))
}

type depositRequest struct {
	Amount     uint64               `json:"amount"`
	From       domain.Pubkey        `json:"from"` // depositor's LP token account
	Credential authority.Credential `json:"credential"`
}

type depositResponse struct {
	Escrow escrowResponse `json:"escrow"`
	Locked uint64         `json:"locked"`
}

// DepositSubject is the credential subject a depositor signs for a deposit.
func DepositSubject(pool domain.Pubkey, amount uint64, from domain.Pubkey) string {
	return fmt.Sprintf("%s:%d:%s", pool, amount, from)
}

// WithdrawSubject is the credential subject an authority signs for a withdrawal.
func WithdrawSubject(pool domain.Pubkey, amount uint64, to domain.Pubkey) string {
	return fmt.Sprintf("%s:%d:%s", pool, amount, to)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pathKey(w, r, "pool")
	if !ok {
		return
	}
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.depositors.Verify(r.Context(), authority.ActionDeposit, DepositSubject(pool, req.Amount, req.From), req.Credential); err != nil {
		s.writeError(w, fmt.Errorf("deposit: %w", err))
		return
	}
	auth, err := token.WalletAuthority(req.Credential.Signer)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec, locked, err := s.ledger.Deposit(r.Context(), pool, req.Amount, req.From, auth)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depositResponse{Escrow: toEscrowResponse(rec), Locked: locked})
}

type unlockRequest struct {
	Attestation escrow.Attestation `json:"attestation"`
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pathKey(w, r, "pool")
	if !ok {
		return
	}
	var req unlockRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.ledger.CheckAndUnlockAttested(r.Context(), pool, req.Attestation)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEscrowResponse(rec))
}

type withdrawRequest struct {
	Amount     uint64               `json:"amount"`
	To         domain.Pubkey        `json:"to"`
	Credential authority.Credential `json:"credential"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pathKey(w, r, "pool")
	if !ok {
		return
	}
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.governance == nil {
		s.writeError(w, fmt.Errorf("withdraw: %w: no governance authority configured", authority.ErrUnauthorized))
		return
	}
	if err := s.governance.Verify(r.Context(), authority.ActionWithdrawEscrow, WithdrawSubject(pool, req.Amount, req.To), req.Credential); err != nil {
		s.writeError(w, fmt.Errorf("withdraw: %w", err))
		return
	}

	rec, err := s.ledger.Withdraw(r.Context(), pool, req.Amount, req.To)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEscrowResponse(rec))
}

// AMM set

type ammResponse struct {
	Programs []domain.Pubkey `json:"programs"`
}

type ammRequest struct {
	Program    domain.Pubkey        `json:"program"`
	Credential authority.Credential `json:"credential"`
}

func (s *Server) handleListAMM(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ammResponse{Programs: s.classifier.Members()})
}

func (s *Server) handleAddAMM(w http.ResponseWriter, r *http.Request) {
	var req ammRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.classifier.Add(r.Context(), req.Credential, req.Program)
	s.recordAMMChange(r, req.Program, req.Credential.Signer, "added", err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ammResponse{Programs: s.classifier.Members()})
}

func (s *Server) handleRemoveAMM(w http.ResponseWriter, r *http.Request) {
	program, ok := s.pathKey(w, r, "program")
	if !ok {
		return
	}
	var req credentialRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.classifier.Remove(r.Context(), req.Credential, program)
	s.recordAMMChange(r, program, req.Credential.Signer, "removed", err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ammResponse{Programs: s.classifier.Members()})
}

func (s *Server) recordAMMChange(r *http.Request, program, signer domain.Pubkey, change string, err error) {
	e := domain.PolicyEvent{
		Kind:    domain.EventAMMSetChanged,
		Subject: program.String(),
		Actor:   signer.String(),
		Outcome: domain.OutcomeOK,
		Reason:  change,
	}
	if err != nil {
		e.Outcome = domain.OutcomeRejected
		e.Reason = codeOf(err)
	}
	s.recorder.Record(r.Context(), e)
}

// Stats

type statsResponse struct {
	ProtectionsActive   int64  `json:"protections_active"`
	ProtectionsDisabled int64  `json:"protections_disabled"`
	EscrowsLocked       int64  `json:"escrows_locked"`
	EscrowsUnlocked     int64  `json:"escrows_unlocked"`
	TotalValueLocked    string `json:"total_value_locked"` // LP base units, decimal
	AMMPrograms         int    `json:"amm_programs"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	protections, err := s.registry.Totals(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	escrows, err := s.ledger.Totals(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		ProtectionsActive:   protections.Active,
		ProtectionsDisabled: protections.Disabled,
		EscrowsLocked:       escrows.Locked,
		EscrowsUnlocked:     escrows.Unlocked,
		TotalValueLocked:    escrows.LockedAmount.String(),
		AMMPrograms:         len(s.classifier.Members()),
	})
}

// Events

type eventResponse struct {
	EventID      string `json:"event_id"`
	Kind         string `json:"kind"`
	Subject      string `json:"subject"`
	Actor        string `json:"actor,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	Amount       uint64 `json:"amount"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
	TimestampMs  int64  `json:"timestamp_ms"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.pathKey(w, r, "asset")
	if !ok {
		return
	}
	if s.events == nil {
		writeJSON(w, http.StatusOK, []eventResponse{})
		return
	}
	events, err := s.events.GetBySubject(r.Context(), asset.String())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			EventID:      e.EventID,
			Kind:         string(e.Kind),
			Subject:      e.Subject,
			Actor:        e.Actor,
			Counterparty: e.Counterparty,
			Amount:       e.Amount,
			Outcome:      string(e.Outcome),
			Reason:       e.Reason,
			TimestampMs:  e.TimestampMs,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
