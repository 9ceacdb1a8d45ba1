package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-launch-guard/internal/storage"
)

// CredentialStore implements storage.CredentialStore using PostgreSQL.
type CredentialStore struct {
	pool *Pool
}

// NewCredentialStore creates a new CredentialStore.
func NewCredentialStore(pool *Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CredentialStore = (*CredentialStore)(nil)

// Consume records c. Returns ErrDuplicateKey if c.ID was already consumed.
func (s *CredentialStore) Consume(ctx context.Context, c *storage.ConsumedCredential) (err error) {
	start := time.Now()
	defer func() { observe("credential_consume", start, err) }()

	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO consumed_credentials (id, signer, action, issued_at, consumed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, c.Signer, c.Action, c.IssuedAt, c.ConsumedAt)
	if err != nil {
		return fmt.Errorf("consume credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// PurgeIssuedBefore deletes records issued before cutoff.
func (s *CredentialStore) PurgeIssuedBefore(ctx context.Context, cutoff int64) (_ int64, err error) {
	start := time.Now()
	defer func() { observe("credential_purge", start, err) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM consumed_credentials WHERE issued_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}
