// Package escrow implements the LP escrow ledger: every deposit moves 60% of
// the LP amount into a custody vault owned by the escrow's derived address,
// and the vault only releases funds once the escrow has been unlocked by
// meeting its holder and volume thresholds.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"go.uber.org/zap"

	"solana-launch-guard/internal/audit"
	"solana-launch-guard/internal/authority"
	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/observability"
	"solana-launch-guard/internal/pda"
	"solana-launch-guard/internal/policy"
	"solana-launch-guard/internal/storage"
	"solana-launch-guard/internal/token"
)

// LockPercent is the share of every deposit moved into custody.
const LockPercent = 60

// ErrNoAttestor is returned by CheckAndUnlockAttested when no attestor is configured.
var ErrNoAttestor = errors.New("no attestor configured")

// LockShare returns amount*60/100 truncated, without overflowing for any uint64.
func LockShare(amount uint64) uint64 {
	return amount/100*LockPercent + amount%100*LockPercent/100
}

// Ledger owns the escrow records and the only signer able to debit their vaults.
type Ledger struct {
	store     storage.EscrowStore
	tokens    token.Program
	signer    *token.ProgramSigner
	verifier  authority.Verifier
	attestor  Attestor
	programID domain.Pubkey
	recorder  *audit.Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// Config wires a Ledger.
type Config struct {
	Store     storage.EscrowStore
	Tokens    token.Program
	ProgramID domain.Pubkey
	Verifier  authority.Verifier // authorizes Initialize
	Attestor  Attestor           // optional; required by CheckAndUnlockAttested
	Recorder  *audit.Recorder    // optional
	Logger    *zap.Logger        // optional
}

// NewLedger creates a ledger and claims the token program signer for cfg.ProgramID.
// It fails if the signer has already been issued to someone else.
func NewLedger(cfg Config) (*Ledger, error) {
	if cfg.Store == nil || cfg.Tokens == nil {
		return nil, fmt.Errorf("%w: store and token program are required", storage.ErrInvalidInput)
	}
	if cfg.ProgramID.IsZero() {
		return nil, fmt.Errorf("%w: escrow program id is required", storage.ErrInvalidInput)
	}
	signer, err := cfg.Tokens.RegisterProgram(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("register escrow program: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:     cfg.Store,
		tokens:    cfg.Tokens,
		signer:    signer,
		verifier:  cfg.Verifier,
		attestor:  cfg.Attestor,
		programID: cfg.ProgramID,
		recorder:  cfg.Recorder,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Initialize creates a locked escrow for pool and opens its vault.
func (l *Ledger) Initialize(ctx context.Context, cred authority.Credential, pool, lpMint domain.Pubkey, minHolders, minVolumeUSD uint64) (*domain.EscrowRecord, error) {
	r, err := l.initialize(ctx, cred, pool, lpMint, minHolders, minVolumeUSD)
	l.finish(ctx, "initialize", domain.EventEscrowInit, pool, cred.Signer, domain.Pubkey{}, 0, err)
	if err != nil {
		return nil, err
	}

	l.logger.Info("escrow initialized",
		zap.Stringer("pool", pool),
		zap.Stringer("lp_mint", lpMint),
		zap.Stringer("vault", r.Vault),
		zap.Uint64("min_holders", minHolders),
		zap.Uint64("min_volume_usd", minVolumeUSD),
	)
	return r, nil
}

func (l *Ledger) initialize(ctx context.Context, cred authority.Credential, pool, lpMint domain.Pubkey, minHolders, minVolumeUSD uint64) (*domain.EscrowRecord, error) {
	if l.verifier == nil {
		return nil, fmt.Errorf("%s: %w: no authority configured", authority.ActionInitEscrow, authority.ErrUnauthorized)
	}
	if err := l.verifier.Verify(ctx, authority.ActionInitEscrow, pool.String(), cred); err != nil {
		return nil, fmt.Errorf("%s: %w", authority.ActionInitEscrow, err)
	}
	if pool.IsZero() || lpMint.IsZero() {
		return nil, fmt.Errorf("%w: pool and lp mint are required", storage.ErrInvalidInput)
	}

	addr, nonce, err := pda.EscrowAddress(pool, l.programID)
	if err != nil {
		return nil, fmt.Errorf("derive escrow address: %w", err)
	}
	vault, vaultNonce, err := pda.VaultAddress(addr, l.programID)
	if err != nil {
		return nil, fmt.Errorf("derive vault address: %w", err)
	}

	if _, err := l.store.GetByPool(ctx, pool); err == nil {
		return nil, policy.Wrap(policy.ErrAlreadyInitialized, storage.ErrDuplicateKey)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load escrow: %w", err)
	}

	// A vault left over from an earlier failed insert is reused.
	if err := l.tokens.OpenAccount(ctx, vault, lpMint, addr); err != nil && !errors.Is(err, token.ErrAccountExists) {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	nowMs := l.now().UnixMilli()
	r := &domain.EscrowRecord{
		Address:      addr,
		Pool:         pool,
		LPMint:       lpMint,
		Vault:        vault,
		MinHolders:   minHolders,
		MinVolumeUSD: minVolumeUSD,
		State:        domain.EscrowLocked,
		Nonce:        nonce,
		VaultNonce:   vaultNonce,
		CreatedAt:    nowMs,
		UpdatedAt:    nowMs,
	}
	if err := l.store.Insert(ctx, r); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, policy.Wrap(policy.ErrAlreadyInitialized, err)
		}
		return nil, fmt.Errorf("insert escrow: %w", err)
	}
	return r, nil
}

// Deposit moves LockShare(amount) from the depositor's account into the vault
// and adds it to the locked balance. The remaining 40% never leaves the depositor.
// The vault is credited only once the record update has been stored.
func (l *Ledger) Deposit(ctx context.Context, pool domain.Pubkey, amount uint64, from domain.Pubkey, depositor token.Authority) (*domain.EscrowRecord, uint64, error) {
	lock := LockShare(amount)
	nowMs := l.now().UnixMilli()

	var tx transfer
	r, err := l.store.Update(ctx, pool, func(r *domain.EscrowRecord) error {
		total, carry := bits.Add64(r.LockedAmount, lock, 0)
		if carry != 0 {
			return fmt.Errorf("%w: locked amount overflows", token.ErrOverflow)
		}
		if err := tx.prepare(ctx, l.tokens, from, r.Vault, depositor, lock); err != nil {
			return fmt.Errorf("transfer to vault: %w", err)
		}
		r.LockedAmount = total
		r.UpdatedAt = nowMs
		return nil
	})
	tx.settle(err)
	l.finish(ctx, "deposit", domain.EventEscrowDeposit, pool, depositor.Key(), domain.Pubkey{}, lock, err)
	if err != nil {
		return nil, 0, err
	}

	observability.RecordLocked(lock)
	l.logger.Info("lp tokens deposited",
		zap.Stringer("pool", pool),
		zap.Uint64("amount", amount),
		zap.Uint64("locked", lock),
		zap.Uint64("total_locked", r.LockedAmount),
	)
	return r, lock, nil
}

// CheckAndUnlock unlocks the escrow if holders and volume meet its thresholds.
// Holders are checked before volume.
func (l *Ledger) CheckAndUnlock(ctx context.Context, pool domain.Pubkey, holders, volumeUSD uint64) (*domain.EscrowRecord, error) {
	nowMs := l.now().UnixMilli()
	r, err := l.store.Update(ctx, pool, func(r *domain.EscrowRecord) error {
		if r.IsUnlocked() {
			return policy.ErrEscrowAlreadyUnlocked
		}
		if holders < r.MinHolders {
			return policy.Wrap(policy.ErrInsufficientHolders, fmt.Errorf("have %d, need %d", holders, r.MinHolders))
		}
		if volumeUSD < r.MinVolumeUSD {
			return policy.Wrap(policy.ErrInsufficientVolume, fmt.Errorf("have %d, need %d", volumeUSD, r.MinVolumeUSD))
		}
		if err := r.Unlock(); err != nil {
			return err
		}
		r.UpdatedAt = nowMs
		return nil
	})
	l.finish(ctx, "unlock", domain.EventEscrowUnlock, pool, domain.Pubkey{}, domain.Pubkey{}, 0, err)
	if err != nil {
		return nil, err
	}

	l.logger.Info("escrow unlocked",
		zap.Stringer("pool", pool),
		zap.Uint64("holders", holders),
		zap.Uint64("volume_usd", volumeUSD),
	)
	return r, nil
}

// CheckAndUnlockAttested verifies a signed attestation for pool and applies its
// figures through CheckAndUnlock.
func (l *Ledger) CheckAndUnlockAttested(ctx context.Context, pool domain.Pubkey, a Attestation) (*domain.EscrowRecord, error) {
	if err := l.verifyAttestation(pool, a); err != nil {
		l.finish(ctx, "unlock", domain.EventEscrowUnlock, pool, a.Signer, domain.Pubkey{}, 0, err)
		return nil, err
	}
	return l.CheckAndUnlock(ctx, pool, a.Holders, a.VolumeUSD)
}

func (l *Ledger) verifyAttestation(pool domain.Pubkey, a Attestation) error {
	if l.attestor == nil {
		return ErrNoAttestor
	}
	if a.Pool != pool {
		observability.RecordAttestationRejected("pool_mismatch")
		return fmt.Errorf("%w: attestation for %s, escrow %s", ErrAttestationMismatch, a.Pool, pool)
	}
	if err := l.attestor.Verify(a); err != nil {
		observability.RecordAttestationRejected(attestationReason(err))
		return fmt.Errorf("verify attestation: %w", err)
	}
	return nil
}

// Withdraw releases amount from the vault to the recipient account.
// The escrow must be unlocked and amount must not exceed the locked balance.
func (l *Ledger) Withdraw(ctx context.Context, pool domain.Pubkey, amount uint64, to domain.Pubkey) (*domain.EscrowRecord, error) {
	nowMs := l.now().UnixMilli()
	var tx transfer
	r, err := l.store.Update(ctx, pool, func(r *domain.EscrowRecord) error {
		if !r.IsUnlocked() {
			return policy.ErrEscrowStillLocked
		}
		if amount > r.LockedAmount {
			return policy.Wrap(policy.ErrInsufficientBalance, fmt.Errorf("have %d, requested %d", r.LockedAmount, amount))
		}
		auth, err := l.signer.Sign([][]byte{pda.SeedEscrow, r.Pool.Bytes()}, r.Nonce)
		if err != nil {
			return fmt.Errorf("sign for escrow: %w", err)
		}
		if err := tx.prepare(ctx, l.tokens, r.Vault, to, auth, amount); err != nil {
			return fmt.Errorf("transfer from vault: %w", err)
		}
		r.LockedAmount -= amount
		r.UpdatedAt = nowMs
		return nil
	})
	tx.settle(err)
	l.finish(ctx, "withdraw", domain.EventEscrowWithdraw, pool, domain.Pubkey{}, to, amount, err)
	if err != nil {
		return nil, err
	}

	observability.RecordReleased(amount)
	l.logger.Info("lp tokens withdrawn",
		zap.Stringer("pool", pool),
		zap.Uint64("amount", amount),
		zap.Uint64("remaining", r.LockedAmount),
	)
	return r, nil
}

// Totals counts escrows by state and sums the liquidity they hold.
func (l *Ledger) Totals(ctx context.Context) (storage.EscrowTotals, error) {
	return l.store.Totals(ctx)
}

// transfer holds the token movement prepared inside a store update until the
// update's outcome is known.
type transfer struct {
	pending token.Pending
}

func (t *transfer) prepare(ctx context.Context, tokens token.Program, from, to domain.Pubkey, auth token.Authority, amount uint64) error {
	// a store that retries fn must not leave an earlier attempt's debit behind
	t.settle(errRetried)
	p, err := tokens.Prepare(ctx, from, to, auth, amount)
	if err != nil {
		return err
	}
	t.pending = p
	return nil
}

// settle commits the prepared movement when the update was stored and
// refunds it otherwise.
func (t *transfer) settle(err error) {
	if t.pending == nil {
		return
	}
	if err != nil {
		t.pending.Rollback()
	} else {
		t.pending.Commit()
	}
	t.pending = nil
}

var errRetried = errors.New("update retried")

// Get returns the escrow for pool.
func (l *Ledger) Get(ctx context.Context, pool domain.Pubkey) (*domain.EscrowRecord, error) {
	return l.store.GetByPool(ctx, pool)
}

func (l *Ledger) finish(ctx context.Context, op string, kind domain.EventKind, pool, actor, counterparty domain.Pubkey, amount uint64, err error) {
	observability.RecordEscrowOp(op, err)

	e := domain.PolicyEvent{
		Kind:    kind,
		Subject: pool.String(),
		Amount:  amount,
		Outcome: domain.OutcomeOK,
	}
	if !actor.IsZero() {
		e.Actor = actor.String()
	}
	if !counterparty.IsZero() {
		e.Counterparty = counterparty.String()
	}
	if err != nil {
		e.Outcome = domain.OutcomeRejected
		e.Reason = reasonOf(err)
		l.logger.Debug("escrow operation rejected", zap.String("operation", op), zap.Stringer("pool", pool), zap.Error(err))
	}
	l.recorder.Record(ctx, e)
}

func reasonOf(err error) string {
	if code := policy.CodeOf(err); code != "" {
		return code
	}
	switch {
	case errors.Is(err, authority.ErrUnauthorized), errors.Is(err, authority.ErrBadSignature), errors.Is(err, authority.ErrStaleCredential):
		return "Unauthorized"
	case errors.Is(err, authority.ErrReplayed):
		return "Replayed"
	case errors.Is(err, storage.ErrNotFound):
		return "NotFound"
	case errors.Is(err, storage.ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, token.ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, token.ErrOwnerMismatch), errors.Is(err, token.ErrInvalidAuthority):
		return "OwnerMismatch"
	case errors.Is(err, ErrNoAttestor), errors.Is(err, ErrAttestationMismatch),
		errors.Is(err, ErrAttestationSignature), errors.Is(err, ErrAttestationStale), errors.Is(err, ErrUnknownAttestor):
		return "BadAttestation"
	}
	return "Internal"
}
