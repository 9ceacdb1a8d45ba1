// Command launchguard runs the anti-sniper transfer guard and the LP escrow
// ledger: an HTTP API (serve), a live transfer monitor (monitor), the market
// health attestor (attest), volume ingestion (ingest-volume) and schema
// migrations (migrate).
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"solana-launch-guard/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "launchguard",
		Short:        "Anti-sniper launch protection and LP escrow",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE:  runServe,
	}
	storageFlags(serveCmd)
	authorityFlags(serveCmd)
	serveCmd.Flags().String("http-addr", ":8080", "HTTP listen address")
	serveCmd.Flags().StringSlice("attestor-key", nil, "trusted attestor public keys (base58)")
	serveCmd.Flags().Duration("attestation-max-age", 10*time.Minute, "maximum attestation age")
	root.AddCommand(serveCmd)

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Evaluate live transfers of a protected mint",
		RunE:  runMonitor,
	}
	storageFlags(monitorCmd)
	monitorCmd.Flags().String("rpc-endpoint", "", "Solana RPC HTTP endpoint")
	monitorCmd.Flags().String("ws-endpoint", "", "Solana WebSocket endpoint")
	monitorCmd.Flags().String("mint", "", "protected mint to watch")
	monitorCmd.Flags().StringSlice("amm-programs", nil, "AMM program IDs or aliases (raydium, orca-whirlpool, orca-legacy)")
	monitorCmd.Flags().Int("backfill", 0, "evaluate this many recent transactions before going live")
	root.AddCommand(monitorCmd)

	attestCmd := &cobra.Command{
		Use:   "attest",
		Short: "Sign a holder/volume attestation for an escrow pool",
		RunE:  runAttest,
	}
	attestCmd.Flags().String("rpc-endpoint", "", "Solana RPC HTTP endpoint")
	attestCmd.Flags().String("clickhouse-dsn", "", "ClickHouse connection string (volume source)")
	attestCmd.Flags().Bool("use-memory", false, "use an empty in-memory volume source")
	attestCmd.Flags().String("mint", "", "token mint whose holders and volume are attested")
	attestCmd.Flags().String("pool", "", "escrow pool the attestation is for")
	attestCmd.Flags().String("attestor-seed", "", "attestor ed25519 seed (hex or base58)")
	attestCmd.Flags().Duration("volume-since", 0, "volume lookback window; 0 counts all recorded volume")
	root.AddCommand(attestCmd)

	ingestCmd := &cobra.Command{
		Use:   "ingest-volume [file.jsonl]",
		Short: "Load swap volume points into ClickHouse",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestVolume,
	}
	ingestCmd.Flags().String("clickhouse-dsn", "", "ClickHouse connection string")
	root.AddCommand(ingestCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres and ClickHouse migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
	migrateCmd.Flags().String("clickhouse-dsn", "", "ClickHouse connection string")
	root.AddCommand(migrateCmd)

	for _, cmd := range root.Commands() {
		cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	}

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func storageFlags(cmd *cobra.Command) {
	cmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
	cmd.Flags().String("clickhouse-dsn", "", "ClickHouse connection string")
	cmd.Flags().Bool("use-memory", false, "use in-memory storage instead of PostgreSQL/ClickHouse")
	cmd.Flags().String("program-id", config.DefaultProgramID, "program id records are derived under")
}

func authorityFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("authority", nil, "governance authority public keys (base58)")
	cmd.Flags().Duration("credential-max-age", 5*time.Minute, "maximum credential age")
	cmd.Flags().StringSlice("amm-programs", nil, "AMM program IDs or aliases (raydium, orca-whirlpool, orca-legacy)")
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
