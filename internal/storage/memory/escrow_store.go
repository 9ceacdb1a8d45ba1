package memory

import (
	"context"
	"math/big"
	"sync"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

// EscrowStore is an in-memory implementation of storage.EscrowStore.
type EscrowStore struct {
	mu   sync.Mutex
	data map[domain.Pubkey]*domain.EscrowRecord // keyed by pool
}

// NewEscrowStore creates a new in-memory escrow store.
func NewEscrowStore() *EscrowStore {
	return &EscrowStore{
		data: make(map[domain.Pubkey]*domain.EscrowRecord),
	}
}

// Insert adds a new escrow. Returns ErrDuplicateKey if the pool already has one.
func (s *EscrowStore) Insert(_ context.Context, r *domain.EscrowRecord) error {
	if r == nil || r.Pool.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.Pool]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	escrowCopy := *r
	s.data[r.Pool] = &escrowCopy
	return nil
}

// GetByPool retrieves the escrow for a pool. Returns ErrNotFound if not exists.
func (s *EscrowStore) GetByPool(_ context.Context, pool domain.Pubkey) (*domain.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[pool]
	if !exists {
		return nil, storage.ErrNotFound
	}

	escrowCopy := *r
	return &escrowCopy, nil
}

// Update applies fn to a copy of the escrow and stores it if fn succeeds.
func (s *EscrowStore) Update(_ context.Context, pool domain.Pubkey, fn storage.EscrowUpdateFunc) (*domain.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[pool]
	if !exists {
		return nil, storage.ErrNotFound
	}

	working := *r
	if err := fn(&working); err != nil {
		return nil, err
	}
	if working.Pool != pool {
		return nil, storage.ErrInvalidInput
	}

	s.data[pool] = &working
	result := working
	return &result, nil
}

// Totals counts escrows by state and sums their locked balances.
func (s *EscrowStore) Totals(_ context.Context) (storage.EscrowTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := storage.EscrowTotals{LockedAmount: new(big.Int)}
	var amount big.Int
	for _, r := range s.data {
		if r.IsUnlocked() {
			t.Unlocked++
		} else {
			t.Locked++
		}
		t.LockedAmount.Add(t.LockedAmount, amount.SetUint64(r.LockedAmount))
	}
	return t, nil
}

// Verify interface compliance at compile time.
var _ storage.EscrowStore = (*EscrowStore)(nil)
