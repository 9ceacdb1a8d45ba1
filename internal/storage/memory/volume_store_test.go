package memory

import (
	"context"
	"errors"
	"testing"

	"solana-launch-guard/internal/storage"
)

func TestVolumeStore_Sum(t *testing.T) {
	store := NewVolumeStore()
	ctx := context.Background()

	points := []*storage.VolumePoint{
		{Mint: "mintA", TimestampMs: 1000, VolumeUSD: 1500},
		{Mint: "mintA", TimestampMs: 2000, VolumeUSD: 2500},
		{Mint: "mintA", TimestampMs: 9000, VolumeUSD: 7000},
		{Mint: "mintB", TimestampMs: 1500, VolumeUSD: 100},
	}
	if err := store.InsertBulk(ctx, points); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	total, err := store.SumVolumeUSD(ctx, "mintA", 0, 5000)
	if err != nil {
		t.Fatalf("SumVolumeUSD failed: %v", err)
	}
	if total != 4000 {
		t.Errorf("total = %d, want 4000", total)
	}
}

func TestVolumeStore_BatchDuplicateRejected(t *testing.T) {
	store := NewVolumeStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*storage.VolumePoint{
		{Mint: "mintA", TimestampMs: 1000, VolumeUSD: 1},
		{Mint: "mintA", TimestampMs: 1000, VolumeUSD: 2},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	total, _ := store.SumVolumeUSD(ctx, "mintA", 0, 5000)
	if total != 0 {
		t.Errorf("batch partially applied: total=%d", total)
	}
}

func TestVolumeStore_Saturates(t *testing.T) {
	store := NewVolumeStore()
	ctx := context.Background()

	_ = store.InsertBulk(ctx, []*storage.VolumePoint{
		{Mint: "m", TimestampMs: 1, VolumeUSD: ^uint64(0)},
		{Mint: "m", TimestampMs: 2, VolumeUSD: 10},
	})
	total, _ := store.SumVolumeUSD(ctx, "m", 0, 10)
	if total != ^uint64(0) {
		t.Errorf("total = %d, want max uint64", total)
	}
}
