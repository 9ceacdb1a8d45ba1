package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-launch-guard/internal/amm"
	"solana-launch-guard/internal/audit"
	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/monitor"
	"solana-launch-guard/internal/protection"
	"solana-launch-guard/internal/solana"
)

const ammRefreshInterval = 30 * time.Second

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCEndpoint == "" || cfg.WSEndpoint == "" {
		return fmt.Errorf("--rpc-endpoint and --ws-endpoint are required")
	}
	mint, err := domain.ParsePubkey(cfg.Mint)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	ammPrograms, err := cfg.AMMProgramKeys()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := createStores(ctx, cfg.PostgresDSN, cfg.ClickHouseDSN, cfg.UseMemory, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)
	ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, nil, logger.Named("ws"))
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	recorder := audit.NewRecorder(stores.events, logger.Named("audit"))
	// Governance changes arrive through the API process; pick them up here.
	classifier, err := amm.LoadClassifier(ctx, stores.amm, ammPrograms, nil, logger.Named("amm"))
	if err != nil {
		return err
	}
	go refreshClassifier(ctx, classifier, logger)
	guard := protection.NewGuard(classifier, stores.protections, recorder, logger.Named("guard"))

	var blocked int
	mon := monitor.New(monitor.Config{
		WS:     ws,
		RPC:    rpc,
		Guard:  guard,
		Logger: logger.Named("monitor"),
		OnFinding: func(f monitor.Finding) {
			if !f.Verdict.Allowed {
				blocked++
			}
		},
	})

	if cfg.BackfillLimit > 0 {
		if _, err := mon.Backfill(ctx, mint, cfg.BackfillLimit); err != nil {
			return err
		}
	}

	logger.Info("monitor start", zap.Stringer("mint", mint), zap.String("ws", cfg.WSEndpoint))
	err = mon.Run(ctx, mint)
	logger.Info("monitor stopped", zap.Int("would_block", blocked))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func refreshClassifier(ctx context.Context, c *amm.Classifier, logger *zap.Logger) {
	ticker := time.NewTicker(ammRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				logger.Warn("refresh amm programs", zap.Error(err))
			}
		}
	}
}
