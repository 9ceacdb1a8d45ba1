package memory

import (
	"context"
	"sync"

	"solana-launch-guard/internal/storage"
)

// CredentialStore is an in-memory implementation of storage.CredentialStore.
type CredentialStore struct {
	mu   sync.Mutex
	data map[string]storage.ConsumedCredential // keyed by ID
}

// NewCredentialStore creates a new in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		data: make(map[string]storage.ConsumedCredential),
	}
}

// Consume records c. Returns ErrDuplicateKey if c.ID was already consumed.
func (s *CredentialStore) Consume(_ context.Context, c *storage.ConsumedCredential) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[c.ID] = *c
	return nil
}

// PurgeIssuedBefore deletes records issued before cutoff.
func (s *CredentialStore) PurgeIssuedBefore(_ context.Context, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, c := range s.data {
		if c.IssuedAt < cutoff {
			delete(s.data, id)
			n++
		}
	}
	return n, nil
}

var _ storage.CredentialStore = (*CredentialStore)(nil)
