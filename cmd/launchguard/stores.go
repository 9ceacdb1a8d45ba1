package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"solana-launch-guard/internal/storage"
	chstore "solana-launch-guard/internal/storage/clickhouse"
	"solana-launch-guard/internal/storage/memory"
	pgstore "solana-launch-guard/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	protections storage.ProtectionStore
	escrows     storage.EscrowStore
	credentials storage.CredentialStore
	amm         storage.AMMStore
	events      storage.PolicyEventStore
	volumes     storage.VolumeStore
}

// createStores connects Postgres (windows, escrows, consumed credentials, AMM
// set) and ClickHouse (event log, volume), or returns in-memory stores when
// useMemory is set.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *zap.Logger) (*allStores, func(), error) {
	if useMemory {
		logger.Warn("using in-memory storage; state is lost on exit")
		return &allStores{
			protections: memory.NewProtectionStore(),
			escrows:     memory.NewEscrowStore(),
			credentials: memory.NewCredentialStore(),
			amm:         memory.NewAMMStore(),
			events:      memory.NewPolicyEventStore(),
			volumes:     memory.NewVolumeStore(),
		}, func() {}, nil
	}
	if postgresDSN == "" || clickhouseDSN == "" {
		return nil, nil, fmt.Errorf("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	stores := &allStores{
		protections: pgstore.NewProtectionStore(pool),
		escrows:     pgstore.NewEscrowStore(pool),
		credentials: pgstore.NewCredentialStore(pool),
		amm:         pgstore.NewAMMStore(pool),
		events:      chstore.NewPolicyEventStore(chConn),
		volumes:     chstore.NewVolumeStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}
