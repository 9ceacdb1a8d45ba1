package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

var testPool = domain.MustPubkey("58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2")

func TestEscrowStore_InsertAndGet(t *testing.T) {
	store := NewEscrowStore()
	ctx := context.Background()

	r := &domain.EscrowRecord{
		Pool:         testPool,
		LPMint:       testMint,
		MinHolders:   100,
		MinVolumeUSD: 5000,
		State:        domain.EscrowLocked,
	}
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByPool(ctx, testPool)
	if err != nil {
		t.Fatalf("GetByPool failed: %v", err)
	}
	if got.MinHolders != 100 || got.MinVolumeUSD != 5000 {
		t.Errorf("thresholds mismatch: got %d/%d", got.MinHolders, got.MinVolumeUSD)
	}

	if err := store.Insert(ctx, r); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestEscrowStore_NotFound(t *testing.T) {
	store := NewEscrowStore()

	_, err := store.GetByPool(context.Background(), testPool)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEscrowStore_UpdateRejectsKeyChange(t *testing.T) {
	store := NewEscrowStore()
	ctx := context.Background()
	_ = store.Insert(ctx, &domain.EscrowRecord{Pool: testPool, State: domain.EscrowLocked})

	_, err := store.Update(ctx, testPool, func(r *domain.EscrowRecord) error {
		r.Pool = testMint
		return nil
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestEscrowStore_UpdateSerializes(t *testing.T) {
	store := NewEscrowStore()
	ctx := context.Background()
	_ = store.Insert(ctx, &domain.EscrowRecord{Pool: testPool, State: domain.EscrowLocked})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, testPool, func(r *domain.EscrowRecord) error {
				r.LockedAmount += 6
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := store.GetByPool(ctx, testPool)
	if got.LockedAmount != 300 {
		t.Errorf("LockedAmount = %d, want 300", got.LockedAmount)
	}
}

func TestEscrowStore_Totals(t *testing.T) {
	store := NewEscrowStore()
	ctx := context.Background()
	_ = store.Insert(ctx, &domain.EscrowRecord{Pool: testPool, State: domain.EscrowLocked, LockedAmount: ^uint64(0)})
	_ = store.Insert(ctx, &domain.EscrowRecord{Pool: testMint, State: domain.EscrowUnlocked, LockedAmount: 1})

	got, err := store.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if got.Locked != 1 || got.Unlocked != 1 {
		t.Errorf("counts: got %d locked, %d unlocked", got.Locked, got.Unlocked)
	}
	if got.LockedAmount.String() != "18446744073709551616" {
		t.Errorf("LockedAmount = %s, want 2^64", got.LockedAmount)
	}
}
