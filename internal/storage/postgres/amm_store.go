package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

// AMMStore implements storage.AMMStore using PostgreSQL.
type AMMStore struct {
	pool *Pool
}

// NewAMMStore creates a new AMMStore.
func NewAMMStore(pool *Pool) *AMMStore {
	return &AMMStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AMMStore = (*AMMStore)(nil)

// Seed records programs that have no row yet as active.
func (s *AMMStore) Seed(ctx context.Context, programs []domain.Pubkey, updatedAt int64) (err error) {
	start := time.Now()
	defer func() { observe("amm_seed", start, err) }()

	ids := make([]string, 0, len(programs))
	for _, p := range programs {
		if p.IsZero() {
			return storage.ErrInvalidInput
		}
		ids = append(ids, p.String())
	}
	if len(ids) == 0 {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO amm_programs (program, active, updated_at)
		SELECT p, TRUE, $2 FROM unnest($1::text[]) AS p
		ON CONFLICT (program) DO NOTHING
	`, ids, updatedAt)
	if err != nil {
		return fmt.Errorf("seed amm programs: %w", err)
	}
	return nil
}

// SetActive adds or removes program.
func (s *AMMStore) SetActive(ctx context.Context, program domain.Pubkey, active bool, updatedAt int64) (err error) {
	start := time.Now()
	defer func() { observe("amm_set_active", start, err) }()

	if program.IsZero() {
		return storage.ErrInvalidInput
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO amm_programs (program, active, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (program) DO UPDATE SET active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`, program.String(), active, updatedAt)
	if err != nil {
		return fmt.Errorf("set amm program: %w", err)
	}
	return nil
}

// ListActive returns the active programs ordered by id.
func (s *AMMStore) ListActive(ctx context.Context) (_ []domain.Pubkey, err error) {
	start := time.Now()
	defer func() { observe("amm_list", start, err) }()

	rows, err := s.pool.Query(ctx, `SELECT program FROM amm_programs WHERE active ORDER BY program`)
	if err != nil {
		return nil, fmt.Errorf("list amm programs: %w", err)
	}
	defer rows.Close()

	var out []domain.Pubkey
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan amm program: %w", err)
		}
		p, err := parseKey("program", id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
