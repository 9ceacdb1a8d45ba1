package memory

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"solana-launch-guard/internal/storage"
)

// VolumeStore is an in-memory implementation of storage.VolumeStore.
type VolumeStore struct {
	mu   sync.RWMutex
	data map[string]*storage.VolumePoint // keyed by (mint, timestamp_ms)
}

// NewVolumeStore creates a new in-memory volume store.
func NewVolumeStore() *VolumeStore {
	return &VolumeStore{
		data: make(map[string]*storage.VolumePoint),
	}
}

func volumeKey(mint string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", mint, timestampMs)
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *VolumeStore) InsertBulk(_ context.Context, points []*storage.VolumePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.Mint == "" {
			return storage.ErrInvalidInput
		}
		key := volumeKey(p.Mint, p.TimestampMs)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range points {
		pointCopy := *p
		s.data[volumeKey(p.Mint, p.TimestampMs)] = &pointCopy
	}
	return nil
}

// SumVolumeUSD returns total volume for mint within [start, end]. Saturates at MaxUint64.
func (s *VolumeStore) SumVolumeUSD(_ context.Context, mint string, start, end int64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total uint64
	for _, p := range s.data {
		if p.Mint != mint || p.TimestampMs < start || p.TimestampMs > end {
			continue
		}
		sum, carry := bits.Add64(total, p.VolumeUSD, 0)
		if carry != 0 {
			return ^uint64(0), nil
		}
		total = sum
	}
	return total, nil
}

// Verify interface compliance at compile time.
var _ storage.VolumeStore = (*VolumeStore)(nil)
