package memory

import (
	"context"
	"sort"
	"sync"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

// PolicyEventStore is an in-memory implementation of storage.PolicyEventStore.
type PolicyEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PolicyEvent // keyed by event_id
}

// NewPolicyEventStore creates a new in-memory policy event store.
func NewPolicyEventStore() *PolicyEventStore {
	return &PolicyEventStore{
		data: make(map[string]*domain.PolicyEvent),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *PolicyEventStore) Insert(_ context.Context, e *domain.PolicyEvent) error {
	if e == nil || e.EventID == "" || e.Kind == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	eventCopy := *e
	s.data[e.EventID] = &eventCopy
	return nil
}

// GetBySubject retrieves all events for a mint or pool, ordered by timestamp ASC.
func (s *PolicyEventStore) GetBySubject(_ context.Context, subject string) ([]*domain.PolicyEvent, error) {
	return s.filter(func(e *domain.PolicyEvent) bool {
		return e.Subject == subject
	}), nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *PolicyEventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.PolicyEvent, error) {
	return s.filter(func(e *domain.PolicyEvent) bool {
		return e.TimestampMs >= start && e.TimestampMs <= end
	}), nil
}

func (s *PolicyEventStore) filter(keep func(*domain.PolicyEvent) bool) []*domain.PolicyEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PolicyEvent
	for _, e := range s.data {
		if keep(e) {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	// Sort by (timestamp_ms, event_id) for deterministic ordering
	sort.Slice(result, func(i, j int) bool {
		if result[i].TimestampMs != result[j].TimestampMs {
			return result[i].TimestampMs < result[j].TimestampMs
		}
		return result[i].EventID < result[j].EventID
	})
	return result
}

// Verify interface compliance at compile time.
var _ storage.PolicyEventStore = (*PolicyEventStore)(nil)
