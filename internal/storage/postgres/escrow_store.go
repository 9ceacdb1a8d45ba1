package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

const selectEscrow = `
	SELECT pool, address, lp_mint, vault, min_holders::text, min_volume_usd::text, locked_amount::text,
		state, nonce, vault_nonce, created_at, updated_at
	FROM escrows
	WHERE pool = $1
`

// EscrowStore implements storage.EscrowStore using PostgreSQL.
type EscrowStore struct {
	pool *Pool
}

// NewEscrowStore creates a new EscrowStore.
func NewEscrowStore(pool *Pool) *EscrowStore {
	return &EscrowStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EscrowStore = (*EscrowStore)(nil)

// Insert adds a new escrow. Returns ErrDuplicateKey if the pool already has one.
func (s *EscrowStore) Insert(ctx context.Context, r *domain.EscrowRecord) (err error) {
	start := time.Now()
	defer func() { observe("escrow_insert", start, err) }()

	if r == nil || r.Pool.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO escrows (
			pool, address, lp_mint, vault, min_holders, min_volume_usd, locked_amount,
			state, nonce, vault_nonce, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11, $12)
	`

	_, err = s.pool.Exec(ctx, query,
		r.Pool.String(),
		r.Address.String(),
		r.LPMint.String(),
		r.Vault.String(),
		u64(r.MinHolders),
		u64(r.MinVolumeUSD),
		u64(r.LockedAmount),
		string(r.State),
		int16(r.Nonce),
		int16(r.VaultNonce),
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

// GetByPool retrieves the escrow for a pool. Returns ErrNotFound if not exists.
func (s *EscrowStore) GetByPool(ctx context.Context, pool domain.Pubkey) (*domain.EscrowRecord, error) {
	r, err := scanEscrow(s.pool.QueryRow(ctx, selectEscrow, pool.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get escrow: %w", err)
	}
	return r, nil
}

// Update locks the row, applies fn to a copy and writes it back in the same transaction.
// An error from fn, the write or the commit leaves the row unchanged.
func (s *EscrowStore) Update(ctx context.Context, pool domain.Pubkey, fn storage.EscrowUpdateFunc) (_ *domain.EscrowRecord, err error) {
	start := time.Now()
	defer func() { observe("escrow_update", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	current, err := scanEscrow(tx.QueryRow(ctx, selectEscrow+" FOR UPDATE", pool.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock escrow: %w", err)
	}

	next := *current
	if err := fn(&next); err != nil {
		return nil, err
	}
	if next.Pool != current.Pool || next.Vault != current.Vault || next.Address != current.Address {
		return nil, storage.ErrInvalidInput
	}

	_, err = tx.Exec(ctx, `
		UPDATE escrows
		SET locked_amount = $2::numeric, state = $3, updated_at = $4
		WHERE pool = $1
	`, pool.String(), u64(next.LockedAmount), string(next.State), next.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update escrow: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &next, nil
}

// Totals counts escrows by state and sums their locked balances exactly.
func (s *EscrowStore) Totals(ctx context.Context) (_ storage.EscrowTotals, err error) {
	start := time.Now()
	defer func() { observe("escrow_totals", start, err) }()

	var (
		t     storage.EscrowTotals
		total string
	)
	err = s.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE state = 'LOCKED'),
			count(*) FILTER (WHERE state = 'UNLOCKED'),
			COALESCE(sum(locked_amount), 0)::text
		FROM escrows
	`).Scan(&t.Locked, &t.Unlocked, &total)
	if err != nil {
		return storage.EscrowTotals{}, fmt.Errorf("escrow totals: %w", err)
	}
	amount, ok := new(big.Int).SetString(total, 10)
	if !ok {
		return storage.EscrowTotals{}, fmt.Errorf("parse locked total %q", total)
	}
	t.LockedAmount = amount
	return t, nil
}

func scanEscrow(row pgx.Row) (*domain.EscrowRecord, error) {
	var (
		r                             domain.EscrowRecord
		pool, address, lpMint, vault  string
		minHolders, minVolume, locked string
		state                         string
		nonce, vaultNonce             int16
	)
	err := row.Scan(
		&pool, &address, &lpMint, &vault,
		&minHolders, &minVolume, &locked,
		&state, &nonce, &vaultNonce, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.Pool, err = parseKey("pool", pool); err != nil {
		return nil, err
	}
	if r.Address, err = parseKey("address", address); err != nil {
		return nil, err
	}
	if r.LPMint, err = parseKey("lp_mint", lpMint); err != nil {
		return nil, err
	}
	if r.Vault, err = parseKey("vault", vault); err != nil {
		return nil, err
	}
	if r.MinHolders, err = parseU64("min_holders", minHolders); err != nil {
		return nil, err
	}
	if r.MinVolumeUSD, err = parseU64("min_volume_usd", minVolume); err != nil {
		return nil, err
	}
	if r.LockedAmount, err = parseU64("locked_amount", locked); err != nil {
		return nil, err
	}
	r.State = domain.EscrowState(state)
	r.Nonce = uint8(nonce)
	r.VaultNonce = uint8(vaultNonce)
	return &r, nil
}
