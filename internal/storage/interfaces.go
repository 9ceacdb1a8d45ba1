package storage

import (
	"context"
	"math/big"

	"solana-launch-guard/internal/domain"
)

// ProtectionUpdateFunc mutates a copy of a window. Returning an error discards the copy.
type ProtectionUpdateFunc func(w *domain.ProtectionWindow) error

// EscrowUpdateFunc mutates a copy of an escrow. Returning an error discards the copy.
type EscrowUpdateFunc func(r *domain.EscrowRecord) error

// ProtectionStore provides access to protection_windows storage, keyed by mint.
type ProtectionStore interface {
	// Insert adds a new window. Returns ErrDuplicateKey if the mint already has one.
	Insert(ctx context.Context, w *domain.ProtectionWindow) error

	// GetByMint retrieves the window for a mint. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint domain.Pubkey) (*domain.ProtectionWindow, error)

	// Update applies fn to the window under an exclusive hold on the row and
	// persists the result only if fn succeeds. Returns the stored value.
	Update(ctx context.Context, mint domain.Pubkey, fn ProtectionUpdateFunc) (*domain.ProtectionWindow, error)

	// Totals counts windows by state.
	Totals(ctx context.Context) (ProtectionTotals, error)
}

// ProtectionTotals counts protection windows by state.
type ProtectionTotals struct {
	Active   int64
	Disabled int64
}

// EscrowStore provides access to escrows storage, keyed by pool.
type EscrowStore interface {
	// Insert adds a new escrow. Returns ErrDuplicateKey if the pool already has one.
	Insert(ctx context.Context, r *domain.EscrowRecord) error

	// GetByPool retrieves the escrow for a pool. Returns ErrNotFound if not exists.
	GetByPool(ctx context.Context, pool domain.Pubkey) (*domain.EscrowRecord, error)

	// Update applies fn to the escrow under an exclusive hold on the row and
	// persists the result only if fn succeeds. Returns the stored value.
	Update(ctx context.Context, pool domain.Pubkey, fn EscrowUpdateFunc) (*domain.EscrowRecord, error)

	// Totals counts escrows by state and sums their locked balances.
	Totals(ctx context.Context) (EscrowTotals, error)
}

// EscrowTotals summarizes every escrow. LockedAmount may exceed the uint64 range.
type EscrowTotals struct {
	Locked       int64
	Unlocked     int64
	LockedAmount *big.Int
}

// PolicyEventStore provides access to the append-only policy_events log.
type PolicyEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.PolicyEvent) error

	// GetBySubject retrieves all events for a mint or pool, ordered by timestamp ASC.
	GetBySubject(ctx context.Context, subject string) ([]*domain.PolicyEvent, error)

	// GetByTimeRange retrieves events within [start, end] (inclusive, ms).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PolicyEvent, error)
}

// VolumePoint is traded USD volume for a mint in one bucket.
type VolumePoint struct {
	Mint        string
	TimestampMs int64
	VolumeUSD   uint64
}

// VolumeStore provides access to swap_volume storage used by the attestor.
type VolumeStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (mint, timestamp_ms).
	InsertBulk(ctx context.Context, points []*VolumePoint) error

	// SumVolumeUSD returns total volume for mint within [start, end] (inclusive, ms).
	SumVolumeUSD(ctx context.Context, mint string, start, end int64) (uint64, error)
}

// ConsumedCredential marks a signed credential as used.
type ConsumedCredential struct {
	ID         string // hash of signer and signed message
	Signer     string
	Action     string
	IssuedAt   int64 // unix seconds, as signed
	ConsumedAt int64 // unix ms
}

// CredentialStore provides access to consumed_credentials storage. A credential
// is accepted at most once.
type CredentialStore interface {
	// Consume records c. Returns ErrDuplicateKey if c.ID was already consumed.
	Consume(ctx context.Context, c *ConsumedCredential) error

	// PurgeIssuedBefore deletes records issued before cutoff (unix seconds)
	// and returns how many were removed.
	PurgeIssuedBefore(ctx context.Context, cutoff int64) (int64, error)
}

// AMMStore provides access to the governance-managed amm_programs set.
type AMMStore interface {
	// Seed records programs that have no row yet as active. Programs already
	// present, including ones governance removed, are left untouched.
	Seed(ctx context.Context, programs []domain.Pubkey, updatedAt int64) error

	// SetActive adds (active) or removes (!active) program.
	SetActive(ctx context.Context, program domain.Pubkey, active bool, updatedAt int64) error

	// ListActive returns the active programs.
	ListActive(ctx context.Context) ([]domain.Pubkey, error)
}
