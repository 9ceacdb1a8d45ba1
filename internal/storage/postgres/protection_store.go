package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

const selectProtection = `
	SELECT mint, address, launch_timestamp, duration_seconds, state, nonce, created_at, updated_at
	FROM protection_windows
	WHERE mint = $1
`

// ProtectionStore implements storage.ProtectionStore using PostgreSQL.
type ProtectionStore struct {
	pool *Pool
}

// NewProtectionStore creates a new ProtectionStore.
func NewProtectionStore(pool *Pool) *ProtectionStore {
	return &ProtectionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProtectionStore = (*ProtectionStore)(nil)

// Insert adds a new window. Returns ErrDuplicateKey if the mint already has one.
func (s *ProtectionStore) Insert(ctx context.Context, w *domain.ProtectionWindow) (err error) {
	start := time.Now()
	defer func() { observe("protection_insert", start, err) }()

	if w == nil || w.Mint.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO protection_windows (
			mint, address, launch_timestamp, duration_seconds, state, nonce, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		w.Mint.String(),
		w.Address.String(),
		w.LaunchTimestamp,
		w.DurationSeconds,
		string(w.State),
		int16(w.Nonce),
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert protection window: %w", err)
	}
	return nil
}

// GetByMint retrieves the window for a mint. Returns ErrNotFound if not exists.
func (s *ProtectionStore) GetByMint(ctx context.Context, mint domain.Pubkey) (*domain.ProtectionWindow, error) {
	w, err := scanProtection(s.pool.QueryRow(ctx, selectProtection, mint.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get protection window: %w", err)
	}
	return w, nil
}

// Update locks the row, applies fn to a copy and writes it back in the same transaction.
func (s *ProtectionStore) Update(ctx context.Context, mint domain.Pubkey, fn storage.ProtectionUpdateFunc) (_ *domain.ProtectionWindow, err error) {
	start := time.Now()
	defer func() { observe("protection_update", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	current, err := scanProtection(tx.QueryRow(ctx, selectProtection+" FOR UPDATE", mint.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock protection window: %w", err)
	}

	next := *current
	if err := fn(&next); err != nil {
		return nil, err
	}
	if next.Mint != current.Mint || next.Address != current.Address {
		return nil, storage.ErrInvalidInput
	}

	_, err = tx.Exec(ctx, `
		UPDATE protection_windows
		SET launch_timestamp = $2, duration_seconds = $3, state = $4, updated_at = $5
		WHERE mint = $1
	`, mint.String(), next.LaunchTimestamp, next.DurationSeconds, string(next.State), next.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update protection window: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &next, nil
}

// Totals counts windows by state.
func (s *ProtectionStore) Totals(ctx context.Context) (_ storage.ProtectionTotals, err error) {
	start := time.Now()
	defer func() { observe("protection_totals", start, err) }()

	var t storage.ProtectionTotals
	err = s.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE state = 'ACTIVE'),
			count(*) FILTER (WHERE state = 'DISABLED')
		FROM protection_windows
	`).Scan(&t.Active, &t.Disabled)
	if err != nil {
		return storage.ProtectionTotals{}, fmt.Errorf("protection totals: %w", err)
	}
	return t, nil
}

func scanProtection(row pgx.Row) (*domain.ProtectionWindow, error) {
	var (
		w             domain.ProtectionWindow
		mint, address string
		state         string
		nonce         int16
	)
	err := row.Scan(&mint, &address, &w.LaunchTimestamp, &w.DurationSeconds, &state, &nonce, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if w.Mint, err = parseKey("mint", mint); err != nil {
		return nil, err
	}
	if w.Address, err = parseKey("address", address); err != nil {
		return nil, err
	}
	w.State = domain.ProtectionState(state)
	w.Nonce = uint8(nonce)
	return &w, nil
}
