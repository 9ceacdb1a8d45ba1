package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"solana-launch-guard/internal/attest"
	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/solana"
	"solana-launch-guard/internal/storage"
	chstore "solana-launch-guard/internal/storage/clickhouse"
	"solana-launch-guard/internal/storage/memory"
)

func runAttest(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCEndpoint == "" {
		return fmt.Errorf("--rpc-endpoint is required")
	}
	mint, err := domain.ParsePubkey(cfg.Mint)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	pool, err := domain.ParsePubkey(cfg.Pool)
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	key, err := cfg.AttestorPrivateKey()
	if err != nil {
		return err
	}

	ctx := context.Background()

	var volumes storage.VolumeStore
	switch {
	case cfg.UseMemory:
		volumes = memory.NewVolumeStore()
	case cfg.ClickHouseDSN != "":
		conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()
		volumes = chstore.NewVolumeStore(conn)
	default:
		return fmt.Errorf("--clickhouse-dsn is required (use --use-memory for an empty volume source)")
	}

	svc := attest.NewService(solana.NewHTTPClient(cfg.RPCEndpoint), volumes, key, logger.Named("attest"))

	req := attest.Request{Pool: pool, Mint: mint}
	if cfg.VolumeSince > 0 {
		req.Since = time.Now().Add(-cfg.VolumeSince)
	}
	a, err := svc.Attest(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}
