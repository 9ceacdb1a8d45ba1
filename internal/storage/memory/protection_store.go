package memory

import (
	"context"
	"sync"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

// ProtectionStore is an in-memory implementation of storage.ProtectionStore.
type ProtectionStore struct {
	mu   sync.Mutex
	data map[domain.Pubkey]*domain.ProtectionWindow // keyed by mint
}

// NewProtectionStore creates a new in-memory protection store.
func NewProtectionStore() *ProtectionStore {
	return &ProtectionStore{
		data: make(map[domain.Pubkey]*domain.ProtectionWindow),
	}
}

// Insert adds a new window. Returns ErrDuplicateKey if the mint already has one.
func (s *ProtectionStore) Insert(_ context.Context, w *domain.ProtectionWindow) error {
	if w == nil || w.Mint.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[w.Mint]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	windowCopy := *w
	s.data[w.Mint] = &windowCopy
	return nil
}

// GetByMint retrieves the window for a mint. Returns ErrNotFound if not exists.
func (s *ProtectionStore) GetByMint(_ context.Context, mint domain.Pubkey) (*domain.ProtectionWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	windowCopy := *w
	return &windowCopy, nil
}

// Update applies fn to a copy of the window and stores it if fn succeeds.
func (s *ProtectionStore) Update(_ context.Context, mint domain.Pubkey, fn storage.ProtectionUpdateFunc) (*domain.ProtectionWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	working := *w
	if err := fn(&working); err != nil {
		return nil, err
	}
	if working.Mint != mint {
		return nil, storage.ErrInvalidInput
	}

	s.data[mint] = &working
	result := working
	return &result, nil
}

// Totals counts windows by state.
func (s *ProtectionStore) Totals(_ context.Context) (storage.ProtectionTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t storage.ProtectionTotals
	for _, w := range s.data {
		if w.IsActive() {
			t.Active++
		} else {
			t.Disabled++
		}
	}
	return t, nil
}

// Verify interface compliance at compile time.
var _ storage.ProtectionStore = (*ProtectionStore)(nil)
