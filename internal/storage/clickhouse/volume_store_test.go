package clickhouse

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-guard/internal/storage"
)

func TestVolumeStore_InsertAndSum(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVolumeStore(conn)
	ctx := context.Background()

	assert.NoError(t, store.InsertBulk(ctx, nil))

	err := store.InsertBulk(ctx, []*storage.VolumePoint{
		{Mint: "mintA", TimestampMs: 1000, VolumeUSD: 100},
		{Mint: "mintA", TimestampMs: 2000, VolumeUSD: 250},
		{Mint: "mintA", TimestampMs: 3000, VolumeUSD: 50},
		{Mint: "mintB", TimestampMs: 2000, VolumeUSD: 9999},
	})
	require.NoError(t, err)

	total, err := store.SumVolumeUSD(ctx, "mintA", 1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(350), total)

	total, err = store.SumVolumeUSD(ctx, "mintC", 0, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), total)
}

func TestVolumeStore_Duplicates(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVolumeStore(conn)
	ctx := context.Background()

	p := &storage.VolumePoint{Mint: "mintA", TimestampMs: 1000, VolumeUSD: 1}
	assert.ErrorIs(t, store.InsertBulk(ctx, []*storage.VolumePoint{p, p}), storage.ErrDuplicateKey)

	require.NoError(t, store.InsertBulk(ctx, []*storage.VolumePoint{p}))
	assert.ErrorIs(t, store.InsertBulk(ctx, []*storage.VolumePoint{p}), storage.ErrDuplicateKey)
}

func TestVolumeStore_SumSaturates(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVolumeStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*storage.VolumePoint{
		{Mint: "mintA", TimestampMs: 1, VolumeUSD: math.MaxUint64},
		{Mint: "mintA", TimestampMs: 2, VolumeUSD: 10},
	}))

	total, err := store.SumVolumeUSD(ctx, "mintA", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), total)
}
