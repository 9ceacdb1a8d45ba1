package protection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"solana-launch-guard/internal/audit"
	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/idhash"
	"solana-launch-guard/internal/observability"
	"solana-launch-guard/internal/policy"
	"solana-launch-guard/internal/storage"
)

// Reason labels a guard verdict.
type Reason string

const (
	ReasonAMMEntry     Reason = "amm_entry"     // destination owned by an AMM
	ReasonAMMExit      Reason = "amm_exit"      // source owned by an AMM
	ReasonRegular      Reason = "regular"       // window active, no AMM involved
	ReasonWindowClosed Reason = "window_closed" // now >= protection end
	ReasonDisabled     Reason = "disabled"      // kill switch pulled
	ReasonUnprotected  Reason = "unprotected"   // mint has no window
)

// Verdict is the outcome of a transfer check.
type Verdict struct {
	Allowed bool
	Reason  Reason
}

// Outcome returns the event log outcome of v.
func (v Verdict) Outcome() domain.Outcome {
	if v.Allowed {
		return domain.OutcomeAllow
	}
	return domain.OutcomeBlock
}

// Err returns nil for an allowed verdict and ErrTransferBlockedByAntiSniper otherwise.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return policy.Wrap(policy.ErrTransferBlockedByAntiSniper, fmt.Errorf("%s", v.Reason))
}

// AMMClassifier answers whether an owner identity is an AMM custodian.
type AMMClassifier interface {
	IsAMMAccount(owner domain.Pubkey) bool
}

// Transfer identifies one token movement for Check.
type Transfer struct {
	Mint             domain.Pubkey
	SourceOwner      domain.Pubkey
	DestinationOwner domain.Pubkey
	Amount           uint64
	Timestamp        int64 // unix seconds

	// Signature and Index give a deterministic event id when the transfer
	// comes from an observed transaction. Both are optional.
	Signature string
	Index     int
}

// Guard decides whether a transfer of a protected mint may proceed.
type Guard struct {
	classifier AMMClassifier
	windows    storage.ProtectionStore
	recorder   *audit.Recorder
	logger     *zap.Logger
}

// NewGuard creates a guard reading windows from store.
func NewGuard(classifier AMMClassifier, windows storage.ProtectionStore, recorder *audit.Recorder, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		classifier: classifier,
		windows:    windows,
		recorder:   recorder,
		logger:     logger,
	}
}

// Decide evaluates a transfer at now (unix seconds) against w. A nil window allows.
// Inside an active window [launch, end) a transfer into an AMM is blocked first,
// then a transfer out of one. Disabled windows always allow.
func (g *Guard) Decide(w *domain.ProtectionWindow, now int64, src, dst domain.Pubkey) Verdict {
	switch {
	case w == nil:
		return Verdict{Allowed: true, Reason: ReasonUnprotected}
	case !w.IsActive():
		return Verdict{Allowed: true, Reason: ReasonDisabled}
	case now >= w.ProtectionEnd():
		return Verdict{Allowed: true, Reason: ReasonWindowClosed}
	case g.classifier.IsAMMAccount(dst):
		return Verdict{Allowed: false, Reason: ReasonAMMEntry}
	case g.classifier.IsAMMAccount(src):
		return Verdict{Allowed: false, Reason: ReasonAMMExit}
	}
	return Verdict{Allowed: true, Reason: ReasonRegular}
}

// Check loads the window for t.Mint and decides t. A blocked transfer returns
// the verdict together with ErrTransferBlockedByAntiSniper.
func (g *Guard) Check(ctx context.Context, t Transfer) (Verdict, error) {
	w, err := g.windows.GetByMint(ctx, t.Mint)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Verdict{}, fmt.Errorf("load protection window: %w", err)
	}

	v := g.Decide(w, t.Timestamp, t.SourceOwner, t.DestinationOwner)
	observability.RecordTransferDecision(string(v.Outcome()), string(v.Reason))

	e := domain.PolicyEvent{
		Kind:         domain.EventTransferCheck,
		Subject:      t.Mint.String(),
		Actor:        t.SourceOwner.String(),
		Counterparty: t.DestinationOwner.String(),
		Amount:       t.Amount,
		Outcome:      v.Outcome(),
		Reason:       string(v.Reason),
	}
	if t.Signature != "" {
		e.EventID = idhash.ComputeTransferCheckID(e.Subject, t.Signature, t.Index)
	}
	g.recorder.Record(ctx, e)

	if !v.Allowed {
		g.logger.Info("anti-sniper: transfer blocked",
			zap.Stringer("mint", t.Mint),
			zap.Stringer("source_owner", t.SourceOwner),
			zap.Stringer("destination_owner", t.DestinationOwner),
			zap.String("reason", string(v.Reason)),
		)
	}
	return v, v.Err()
}
