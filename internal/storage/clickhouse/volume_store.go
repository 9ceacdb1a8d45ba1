package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-launch-guard/internal/storage"
)

// VolumeStore implements storage.VolumeStore using ClickHouse.
type VolumeStore struct {
	conn *Conn
}

// NewVolumeStore creates a new VolumeStore.
func NewVolumeStore(conn *Conn) *VolumeStore {
	return &VolumeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.VolumeStore = (*VolumeStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *VolumeStore) InsertBulk(ctx context.Context, points []*storage.VolumePoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("volume_insert", start, err) }()

	// Check for intra-batch duplicates
	type key struct {
		mint        string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.Mint == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.Mint, p.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		var count uint64
		err = s.conn.QueryRow(ctx, `SELECT count(*) FROM swap_volume WHERE mint = ? AND timestamp_ms = ?`, p.Mint, p.TimestampMs).Scan(&count)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if count > 0 {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO swap_volume (mint, timestamp_ms, volume_usd)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if err = batch.Append(p.Mint, p.TimestampMs, p.VolumeUSD); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// SumVolumeUSD returns total volume for mint within [start, end] (inclusive, ms).
// The sum saturates at the uint64 maximum.
func (s *VolumeStore) SumVolumeUSD(ctx context.Context, mint string, start, end int64) (uint64, error) {
	// Sum as UInt128 so the cap sees the true total.
	query := `
		SELECT toUInt64(least(sum(toUInt128(volume_usd)), toUInt128(18446744073709551615)))
		FROM swap_volume FINAL
		WHERE mint = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
	`

	var total uint64
	if err := s.conn.QueryRow(ctx, query, mint, start, end).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum volume: %w", err)
	}
	return total, nil
}
