package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

// AMMStore is an in-memory implementation of storage.AMMStore.
type AMMStore struct {
	mu     sync.Mutex
	active map[domain.Pubkey]bool // false marks a program governance removed
}

// NewAMMStore creates a new in-memory AMM store.
func NewAMMStore() *AMMStore {
	return &AMMStore{
		active: make(map[domain.Pubkey]bool),
	}
}

// Seed records programs that have no entry yet as active.
func (s *AMMStore) Seed(_ context.Context, programs []domain.Pubkey, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range programs {
		if p.IsZero() {
			return storage.ErrInvalidInput
		}
		if _, exists := s.active[p]; !exists {
			s.active[p] = true
		}
	}
	return nil
}

// SetActive adds or removes program.
func (s *AMMStore) SetActive(_ context.Context, program domain.Pubkey, active bool, _ int64) error {
	if program.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[program] = active
	return nil
}

// ListActive returns the active programs sorted by raw bytes.
func (s *AMMStore) ListActive(_ context.Context) ([]domain.Pubkey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Pubkey
	for p, active := range s.active {
		if active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out, nil
}

var _ storage.AMMStore = (*AMMStore)(nil)
