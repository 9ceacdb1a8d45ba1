package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

var (
	testMint    = domain.MustPubkey("So11111111111111111111111111111111111111112")
	testPool    = domain.MustPubkey("58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2")
	testAddress = domain.MustPubkey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	testVault   = domain.MustPubkey("HN7cABqLq46Es1jh92dQQisAq662SmxELLLsHHe4YWrH")
)

func testWindow() *domain.ProtectionWindow {
	return &domain.ProtectionWindow{
		Address:         testAddress,
		Mint:            testMint,
		LaunchTimestamp: 1000,
		DurationSeconds: 30,
		State:           domain.ProtectionActive,
		Nonce:           254,
		CreatedAt:       1700000000000,
		UpdatedAt:       1700000000000,
	}
}

func TestProtectionStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewProtectionStore(pool)

	w := testWindow()
	require.NoError(t, store.Insert(ctx, w))

	got, err := store.GetByMint(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestProtectionStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewProtectionStore(pool)

	require.NoError(t, store.Insert(ctx, testWindow()))
	assert.ErrorIs(t, store.Insert(ctx, testWindow()), storage.ErrDuplicateKey)
}

func TestProtectionStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewProtectionStore(pool).GetByMint(context.Background(), testMint)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProtectionStore_Update(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewProtectionStore(pool)
	require.NoError(t, store.Insert(ctx, testWindow()))

	errBoom := errors.New("boom")
	_, err := store.Update(ctx, testMint, func(w *domain.ProtectionWindow) error {
		w.State = domain.ProtectionDisabled
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	got, err := store.GetByMint(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, domain.ProtectionActive, got.State, "failed update must not persist")

	updated, err := store.Update(ctx, testMint, func(w *domain.ProtectionWindow) error {
		w.UpdatedAt = 1700000001000
		return w.Disable()
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProtectionDisabled, updated.State)

	got, err = store.GetByMint(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, domain.ProtectionDisabled, got.State)
	assert.Equal(t, int64(1700000001000), got.UpdatedAt)

	_, err = store.Update(ctx, testPool, func(*domain.ProtectionWindow) error { return nil })
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProtectionStore_UpdateRejectsKeyChange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewProtectionStore(pool)
	require.NoError(t, store.Insert(ctx, testWindow()))

	_, err := store.Update(ctx, testMint, func(w *domain.ProtectionWindow) error {
		w.Mint = testPool
		return nil
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestEscrowStore_ConcurrentUpdatesSerialize(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEscrowStore(pool)
	require.NoError(t, store.Insert(ctx, testEscrow()))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, testPool, func(r *domain.EscrowRecord) error {
				r.LockedAmount += 10
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.GetByPool(ctx, testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(workers*10), got.LockedAmount)
}

func TestProtectionStore_Totals(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewProtectionStore(pool)

	active := testWindow()
	disabled := testWindow()
	disabled.Mint, disabled.Address = testPool, testVault
	disabled.State = domain.ProtectionDisabled
	require.NoError(t, store.Insert(ctx, active))
	require.NoError(t, store.Insert(ctx, disabled))

	got, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.ProtectionTotals{Active: 1, Disabled: 1}, got)
}
