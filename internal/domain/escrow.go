package domain

import "fmt"

// EscrowState is the lifecycle of an LP escrow. The only legal move is Locked -> Unlocked.
type EscrowState string

const (
	EscrowLocked   EscrowState = "LOCKED"
	EscrowUnlocked EscrowState = "UNLOCKED"
)

// String returns the string representation of EscrowState.
func (s EscrowState) String() string {
	return string(s)
}

// IsValid checks if the state is a known value.
func (s EscrowState) IsValid() bool {
	return s == EscrowLocked || s == EscrowUnlocked
}

// Transition returns the state after moving to next.
// Unlocked -> Locked is rejected.
func (s EscrowState) Transition(next EscrowState) (EscrowState, error) {
	if !s.IsValid() || !next.IsValid() {
		return s, fmt.Errorf("%w: %q -> %q", ErrIllegalTransition, s, next)
	}
	if s == EscrowUnlocked && next == EscrowLocked {
		return s, fmt.Errorf("%w: escrow cannot be re-locked", ErrIllegalTransition)
	}
	return next, nil
}

// EscrowRecord is the per-pool LP custody record.
// Corresponds to escrows table in PostgreSQL.
type EscrowRecord struct {
	Address      Pubkey      // derived from ["escrow", pool]; authority over Vault
	Pool         Pubkey      // AMM pool address
	LPMint       Pubkey      // LP token mint
	Vault        Pubkey      // derived from ["vault", Address]
	MinHolders   uint64      // unlock threshold: distinct holders
	MinVolumeUSD uint64      // unlock threshold: traded volume in whole USD
	LockedAmount uint64      // LP units currently in custody
	State        EscrowState // LOCKED | UNLOCKED
	Nonce        uint8       // derivation nonce of Address
	VaultNonce   uint8       // derivation nonce of Vault
	CreatedAt    int64       // record creation timestamp (ms)
	UpdatedAt    int64       // last mutation timestamp (ms)
}

// IsUnlocked reports whether thresholds have been met.
func (r *EscrowRecord) IsUnlocked() bool {
	return r.State == EscrowUnlocked
}

// Unlock moves the record to UNLOCKED.
func (r *EscrowRecord) Unlock() error {
	next, err := r.State.Transition(EscrowUnlocked)
	if err != nil {
		return err
	}
	r.State = next
	return nil
}
