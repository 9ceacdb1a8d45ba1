// Package protection implements the launch-protection registry and the
// transfer guard that blocks AMM entry and exit while a window is active.
package protection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-launch-guard/internal/audit"
	"solana-launch-guard/internal/authority"
	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/observability"
	"solana-launch-guard/internal/pda"
	"solana-launch-guard/internal/policy"
	"solana-launch-guard/internal/storage"
)

// Registry owns the per-mint protection windows.
type Registry struct {
	store     storage.ProtectionStore
	verifier  authority.Verifier
	programID domain.Pubkey
	recorder  *audit.Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistry creates a registry. programID namespaces derived window addresses.
func NewRegistry(store storage.ProtectionStore, verifier authority.Verifier, programID domain.Pubkey, recorder *audit.Recorder, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:     store,
		verifier:  verifier,
		programID: programID,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Initialize creates an active window for mint covering
// [launchTimestamp, launchTimestamp+durationSeconds).
func (r *Registry) Initialize(ctx context.Context, cred authority.Credential, mint domain.Pubkey, launchTimestamp, durationSeconds int64) (*domain.ProtectionWindow, error) {
	w, err := r.initialize(ctx, cred, mint, launchTimestamp, durationSeconds)
	observability.RecordProtectionOp("initialize", err)
	r.record(ctx, domain.EventProtectionInit, mint, cred.Signer, err)
	if err != nil {
		return nil, err
	}

	r.logger.Info("anti-sniper protection initialized",
		zap.Stringer("mint", mint),
		zap.Stringer("address", w.Address),
		zap.Int64("protection_end", w.ProtectionEnd()),
	)
	return w, nil
}

func (r *Registry) initialize(ctx context.Context, cred authority.Credential, mint domain.Pubkey, launchTimestamp, durationSeconds int64) (*domain.ProtectionWindow, error) {
	if err := r.authorize(ctx, authority.ActionInitProtection, mint, cred); err != nil {
		return nil, err
	}
	if mint.IsZero() {
		return nil, fmt.Errorf("%w: mint is required", storage.ErrInvalidInput)
	}
	if durationSeconds < 0 || launchTimestamp < 0 {
		return nil, fmt.Errorf("%w: launch %d, duration %d", storage.ErrInvalidInput, launchTimestamp, durationSeconds)
	}
	if launchTimestamp > (1<<63-1)-durationSeconds {
		return nil, fmt.Errorf("%w: protection end overflows", storage.ErrInvalidInput)
	}

	addr, nonce, err := pda.ProtectionAddress(mint, r.programID)
	if err != nil {
		return nil, fmt.Errorf("derive protection address: %w", err)
	}

	nowMs := r.now().UnixMilli()
	w := &domain.ProtectionWindow{
		Address:         addr,
		Mint:            mint,
		LaunchTimestamp: launchTimestamp,
		DurationSeconds: durationSeconds,
		State:           domain.ProtectionActive,
		Nonce:           nonce,
		CreatedAt:       nowMs,
		UpdatedAt:       nowMs,
	}
	if err := r.store.Insert(ctx, w); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, policy.Wrap(policy.ErrAlreadyInitialized, err)
		}
		return nil, fmt.Errorf("insert protection window: %w", err)
	}
	return w, nil
}

// Disable pulls the kill switch for mint. Disabling an already disabled window
// succeeds without change. There is no way back to ACTIVE.
func (r *Registry) Disable(ctx context.Context, cred authority.Credential, mint domain.Pubkey) (*domain.ProtectionWindow, error) {
	w, err := r.disable(ctx, cred, mint)
	observability.RecordProtectionOp("disable", err)
	r.record(ctx, domain.EventProtectionDisable, mint, cred.Signer, err)
	if err != nil {
		return nil, err
	}

	r.logger.Info("anti-sniper protection disabled", zap.Stringer("mint", mint))
	return w, nil
}

func (r *Registry) disable(ctx context.Context, cred authority.Credential, mint domain.Pubkey) (*domain.ProtectionWindow, error) {
	if err := r.authorize(ctx, authority.ActionDisableProtection, mint, cred); err != nil {
		return nil, err
	}
	nowMs := r.now().UnixMilli()
	w, err := r.store.Update(ctx, mint, func(w *domain.ProtectionWindow) error {
		if !w.IsActive() {
			return nil
		}
		if err := w.Disable(); err != nil {
			return err
		}
		w.UpdatedAt = nowMs
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, policy.Wrap(policy.ErrProtectionInactive, err)
		}
		return nil, fmt.Errorf("disable protection: %w", err)
	}
	return w, nil
}

// Get returns the window for mint.
func (r *Registry) Get(ctx context.Context, mint domain.Pubkey) (*domain.ProtectionWindow, error) {
	return r.store.GetByMint(ctx, mint)
}

// Totals counts windows by state.
func (r *Registry) Totals(ctx context.Context) (storage.ProtectionTotals, error) {
	return r.store.Totals(ctx)
}

func (r *Registry) authorize(ctx context.Context, action authority.Action, mint domain.Pubkey, cred authority.Credential) error {
	if r.verifier == nil {
		return fmt.Errorf("%s: %w: no authority configured", action, authority.ErrUnauthorized)
	}
	if err := r.verifier.Verify(ctx, action, mint.String(), cred); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

func (r *Registry) record(ctx context.Context, kind domain.EventKind, mint, signer domain.Pubkey, err error) {
	e := domain.PolicyEvent{
		Kind:    kind,
		Subject: mint.String(),
		Actor:   signer.String(),
		Outcome: domain.OutcomeOK,
	}
	if err != nil {
		e.Outcome = domain.OutcomeRejected
		e.Reason = reasonOf(err)
	}
	r.recorder.Record(ctx, e)
}

// reasonOf returns a short label for an error suitable for logs and metrics.
func reasonOf(err error) string {
	if code := policy.CodeOf(err); code != "" {
		return code
	}
	switch {
	case errors.Is(err, authority.ErrUnauthorized), errors.Is(err, authority.ErrBadSignature), errors.Is(err, authority.ErrStaleCredential):
		return "Unauthorized"
	case errors.Is(err, authority.ErrReplayed):
		return "Replayed"
	case errors.Is(err, storage.ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, storage.ErrNotFound):
		return "NotFound"
	}
	return "Internal"
}
