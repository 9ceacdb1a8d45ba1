package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-launch-guard/internal/amm"
	"solana-launch-guard/internal/api"
	"solana-launch-guard/internal/audit"
	"solana-launch-guard/internal/authority"
	"solana-launch-guard/internal/escrow"
	"solana-launch-guard/internal/protection"
	"solana-launch-guard/internal/token"
)

const (
	shutdownTimeout = 15 * time.Second

	credentialPurgeInterval = time.Minute
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	programID, err := cfg.Program()
	if err != nil {
		return fmt.Errorf("program-id: %w", err)
	}
	authorities, err := cfg.AuthorityKeys()
	if err != nil {
		return err
	}
	if len(authorities) == 0 {
		logger.Warn("no governance authority configured; administrative operations will be refused")
	}
	attestors, err := cfg.AttestorPubkeys()
	if err != nil {
		return err
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

	// Governance and depositor credentials share one consumed set.
	governance := authority.NewEd25519Verifier(authorities,
		authority.WithMaxAge(cfg.CredentialMaxAge),
		authority.WithReplayStore(stores.credentials),
	)
	depositors := authority.NewSignerVerifier(
		authority.WithMaxAge(cfg.CredentialMaxAge),
		authority.WithReplayStore(stores.credentials),
	)
	go purgeCredentials(ctx, governance, logger)

	recorder := audit.NewRecorder(stores.events, logger.Named("audit"))
	classifier, err := amm.LoadClassifier(ctx, stores.amm, ammPrograms, governance, logger.Named("amm"))
	if err != nil {
		return err
	}
	go refreshClassifier(ctx, classifier, logger)

	// Vault balances live in an in-process token ledger, funded through the
	// sandbox routes. Escrow records persist; balances do not.
	tokens := token.NewLedger()

	var attestor escrow.Attestor
	if len(attestors) > 0 {
		attestor = escrow.NewEd25519Attestor(attestors, cfg.AttestationMaxAge)
	}
	ledger, err := escrow.NewLedger(escrow.Config{
		Store:     stores.escrows,
		Tokens:    tokens,
		ProgramID: programID,
		Verifier:  governance,
		Attestor:  attestor,
		Recorder:  recorder,
		Logger:    logger.Named("escrow"),
	})
	if err != nil {
		return err
	}

	srv := api.New(api.Config{
		Registry:   protection.NewRegistry(stores.protections, governance, programID, recorder, logger.Named("registry")),
		Guard:      protection.NewGuard(classifier, stores.protections, recorder, logger.Named("guard")),
		Ledger:     ledger,
		Classifier: classifier,
		Events:     stores.events,
		Recorder:   recorder,
		Governance: governance,
		Depositors: depositors,
		Sandbox:    tokens,
		Logger:     logger.Named("api"),
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server start",
			zap.String("addr", cfg.HTTPAddr),
			zap.Stringer("program_id", programID),
			zap.Int("authorities", len(authorities)),
			zap.Int("attestors", len(attestors)),
			zap.Int("amm_programs", len(classifier.Members())),
			zap.Bool("memory", cfg.UseMemory),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// purgeCredentials drops consumed-credential records once they are too old to
// verify, until ctx is done.
func purgeCredentials(ctx context.Context, v *authority.Ed25519Verifier, logger *zap.Logger) {
	ticker := time.NewTicker(credentialPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := v.Purge(ctx)
			if err != nil {
				logger.Warn("purge consumed credentials", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("purged consumed credentials", zap.Int64("count", n))
			}
		}
	}
}
