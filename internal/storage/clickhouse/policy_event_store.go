package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

const selectEvents = `
	SELECT event_id, kind, subject, actor, counterparty, amount, outcome, reason, timestamp_ms
	FROM policy_events FINAL
`

// PolicyEventStore implements storage.PolicyEventStore using ClickHouse.
type PolicyEventStore struct {
	conn *Conn
}

// NewPolicyEventStore creates a new PolicyEventStore.
func NewPolicyEventStore(conn *Conn) *PolicyEventStore {
	return &PolicyEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PolicyEventStore = (*PolicyEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
// ReplacingMergeTree collapses a racing duplicate on merge.
func (s *PolicyEventStore) Insert(ctx context.Context, e *domain.PolicyEvent) (err error) {
	start := time.Now()
	defer func() { observe("policy_event_insert", start, err) }()

	if e == nil || e.EventID == "" || e.Subject == "" {
		return storage.ErrInvalidInput
	}

	var count uint64
	err = s.conn.QueryRow(ctx, `SELECT count(*) FROM policy_events WHERE subject = ? AND event_id = ?`, e.Subject, e.EventID).Scan(&count)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO policy_events (
			event_id, kind, subject, actor, counterparty, amount, outcome, reason, timestamp_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EventID, string(e.Kind), e.Subject, e.Actor, e.Counterparty, e.Amount, string(e.Outcome), e.Reason, e.TimestampMs)
	if err != nil {
		return fmt.Errorf("insert policy event: %w", err)
	}
	return nil
}

// GetBySubject retrieves all events for a mint or pool, ordered by timestamp ASC.
func (s *PolicyEventStore) GetBySubject(ctx context.Context, subject string) ([]*domain.PolicyEvent, error) {
	rows, err := s.conn.Query(ctx, selectEvents+`
		WHERE subject = ?
		ORDER BY timestamp_ms ASC, event_id ASC
	`, subject)
	if err != nil {
		return nil, fmt.Errorf("query by subject: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events within [start, end] (inclusive, ms).
func (s *PolicyEventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PolicyEvent, error) {
	rows, err := s.conn.Query(ctx, selectEvents+`
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, event_id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows chRows) ([]*domain.PolicyEvent, error) {
	var events []*domain.PolicyEvent

	for rows.Next() {
		var (
			e             domain.PolicyEvent
			kind, outcome string
		)
		err := rows.Scan(
			&e.EventID, &kind, &e.Subject, &e.Actor, &e.Counterparty,
			&e.Amount, &outcome, &e.Reason, &e.TimestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan policy event row: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		e.Outcome = domain.Outcome(outcome)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policy event rows: %w", err)
	}

	return events, nil
}
