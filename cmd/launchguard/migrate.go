package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-launch-guard/internal/storage/migrations"
	pgstore "solana-launch-guard/internal/storage/postgres"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PostgresDSN == "" && cfg.ClickHouseDSN == "" {
		return fmt.Errorf("at least one of --postgres-dsn or --clickhouse-dsn is required")
	}

	ctx := context.Background()

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		pool.Close()
		if err != nil {
			return err
		}
		logger.Info("postgres migrations applied", zap.Strings("files", applied))
	}

	if cfg.ClickHouseDSN != "" {
		conn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return err
		}
		conn.Close()
		logger.Info("clickhouse migrations applied", zap.Strings("files", applied))
	}

	return nil
}
