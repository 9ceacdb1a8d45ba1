package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-launch-guard/internal/storage"
	chstore "solana-launch-guard/internal/storage/clickhouse"
)

// volumeLine is one JSONL record of the ingest-volume input.
type volumeLine struct {
	Mint        string `json:"mint"`
	TimestampMs int64  `json:"timestamp_ms"`
	VolumeUSD   uint64 `json:"volume_usd"`
}

func runIngestVolume(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.ClickHouseDSN == "" {
		return fmt.Errorf("--clickhouse-dsn is required")
	}

	points, err := readVolumeFile(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
	if err != nil {
		return fmt.Errorf("connect to clickhouse: %w", err)
	}
	defer conn.Close()

	if err := chstore.NewVolumeStore(conn).InsertBulk(ctx, points); err != nil {
		return fmt.Errorf("insert volume: %w", err)
	}
	logger.Info("volume ingested", zap.String("file", args[0]), zap.Int("points", len(points)))
	return nil
}

func readVolumeFile(path string) ([]*storage.VolumePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var points []*storage.VolumePoint
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var v volumeLine
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if v.Mint == "" {
			return nil, fmt.Errorf("%s:%d: missing mint", path, line)
		}
		points = append(points, &storage.VolumePoint{
			Mint:        v.Mint,
			TimestampMs: v.TimestampMs,
			VolumeUSD:   v.VolumeUSD,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return points, nil
}
