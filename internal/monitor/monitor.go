// Package monitor watches a protected mint on chain and replays every observed
// token movement through the transfer guard.
//
// The guard is not in the transaction's signing path here, so a BLOCK verdict
// reports a transfer the on-chain hook would have refused. Findings are logged,
// counted and appended to the policy event log with deterministic ids, so
// replaying the same transaction (live and via backfill) records it once.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/observability"
	"solana-launch-guard/internal/policy"
	"solana-launch-guard/internal/protection"
	"solana-launch-guard/internal/solana"
)

// Monitor stages reported to metrics.
const (
	stageFetch  = "fetch"
	stageDecode = "decode"
	stageCheck  = "check"
)

// Guard evaluates one transfer.
type Guard interface {
	Check(ctx context.Context, t protection.Transfer) (protection.Verdict, error)
}

// Finding is the guard's verdict on one movement inside an observed transaction.
type Finding struct {
	Slot     int64
	Transfer protection.Transfer
	Verdict  protection.Verdict
}

// Config configures a Monitor.
type Config struct {
	WS     solana.WSClient
	RPC    solana.RPCClient
	Guard  Guard
	Logger *zap.Logger

	// OnFinding, when set, receives every finding in transaction order.
	OnFinding func(Finding)
}

// Monitor evaluates live and historical transactions of a mint.
type Monitor struct {
	ws        solana.WSClient
	rpc       solana.RPCClient
	guard     Guard
	logger    *zap.Logger
	onFinding func(Finding)
	now       func() time.Time
}

// New creates a monitor.
func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		ws:        cfg.WS,
		rpc:       cfg.RPC,
		guard:     cfg.Guard,
		logger:    logger,
		onFinding: cfg.OnFinding,
		now:       time.Now,
	}
}

// Run subscribes to logs mentioning mint and evaluates each successful
// transaction until ctx is cancelled or the subscription ends.
func (m *Monitor) Run(ctx context.Context, mint domain.Pubkey) error {
	if m.ws == nil {
		return errors.New("monitor: websocket client not configured")
	}
	logsCh, err := m.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{mint.String()}})
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	m.logger.Info("monitor subscribed", zap.Stringer("mint", mint))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-logsCh:
			if !ok {
				m.logger.Info("monitor subscription closed", zap.Stringer("mint", mint))
				return nil
			}
			if notif.Err != nil {
				continue
			}
			if _, err := m.ProcessSignature(ctx, mint, notif.Signature); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.logger.Warn("monitor: transaction skipped",
					zap.String("signature", notif.Signature),
					zap.Int64("slot", notif.Slot),
					zap.Error(err),
				)
			}
		}
	}
}

// Backfill evaluates up to limit of the most recent transactions mentioning
// mint, oldest first. Returns the number of transactions evaluated.
func (m *Monitor) Backfill(ctx context.Context, mint domain.Pubkey, limit int) (int, error) {
	sigs, err := m.rpc.GetSignaturesForAddress(ctx, mint.String(), &solana.SignaturesOpts{Limit: limit})
	if err != nil {
		return 0, fmt.Errorf("get signatures: %w", err)
	}

	processed := 0
	for i := len(sigs) - 1; i >= 0; i-- {
		if sigs[i].Err != nil {
			continue
		}
		if _, err := m.ProcessSignature(ctx, mint, sigs[i].Signature); err != nil {
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
			m.logger.Warn("backfill: transaction skipped", zap.String("signature", sigs[i].Signature), zap.Error(err))
			continue
		}
		processed++
	}
	m.logger.Info("backfill complete", zap.Stringer("mint", mint), zap.Int("transactions", processed))
	return processed, nil
}

// ProcessSignature fetches a transaction and evaluates its movements of mint.
func (m *Monitor) ProcessSignature(ctx context.Context, mint domain.Pubkey, signature string) ([]Finding, error) {
	tx, err := m.rpc.GetTransaction(ctx, signature)
	if err != nil {
		observability.RecordMonitorTx(stageFetch, err)
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if tx == nil {
		err := fmt.Errorf("transaction %s not found", signature)
		observability.RecordMonitorTx(stageFetch, err)
		return nil, err
	}
	return m.ProcessTransaction(ctx, mint, tx)
}

// ProcessTransaction evaluates every movement of mint inside tx.
func (m *Monitor) ProcessTransaction(ctx context.Context, mint domain.Pubkey, tx *solana.Transaction) ([]Finding, error) {
	if tx.Meta == nil || tx.Meta.Err != nil {
		observability.RecordMonitorTx(stageDecode, nil)
		return nil, nil
	}

	moves, err := Movements(mint, tx.Meta.PreTokenBalances, tx.Meta.PostTokenBalances)
	if err != nil {
		observability.RecordMonitorTx(stageDecode, err)
		return nil, err
	}

	timestamp := tx.BlockTime
	if timestamp == 0 {
		timestamp = m.now().Unix()
	}

	findings := make([]Finding, 0, len(moves))
	for i, mv := range moves {
		t := protection.Transfer{
			Mint:             mint,
			SourceOwner:      mv.Source,
			DestinationOwner: mv.Destination,
			Amount:           mv.Amount,
			Timestamp:        timestamp,
			Signature:        tx.Signature,
			Index:            i,
		}
		v, err := m.guard.Check(ctx, t)
		if err != nil && !errors.Is(err, policy.ErrTransferBlockedByAntiSniper) {
			observability.RecordMonitorTx(stageCheck, err)
			return findings, fmt.Errorf("check transfer %d: %w", i, err)
		}

		f := Finding{Slot: tx.Slot, Transfer: t, Verdict: v}
		if !v.Allowed {
			m.logger.Warn("monitor: transfer would be blocked",
				zap.String("signature", tx.Signature),
				zap.Int64("slot", tx.Slot),
				zap.Stringer("source_owner", mv.Source),
				zap.Stringer("destination_owner", mv.Destination),
				zap.Uint64("amount", mv.Amount),
				zap.String("reason", string(v.Reason)),
			)
		}
		if m.onFinding != nil {
			m.onFinding(f)
		}
		findings = append(findings, f)
	}

	observability.RecordMonitorTx(stageCheck, nil)
	return findings, nil
}

// Movement is one owner-to-owner flow of a mint within a transaction.
type Movement struct {
	Source      domain.Pubkey
	Destination domain.Pubkey
	Amount      uint64
}

type ownerDelta struct {
	owner   domain.Pubkey
	in, out uint64
}

// Movements derives owner-to-owner flows of mint from balance snapshots.
// Balances are netted per owner; senders are then matched to receivers in
// account order, each pair moving the smaller of the two remaining amounts.
func Movements(mint domain.Pubkey, pre, post []solana.TokenBalance) ([]Movement, error) {
	mintStr := mint.String()
	before := make(map[int]uint64)
	accounts := make(map[int]string)
	for _, b := range pre {
		if b.Mint != mintStr {
			continue
		}
		before[b.AccountIndex] = b.Amount
		accounts[b.AccountIndex] = b.Owner
	}
	after := make(map[int]uint64)
	for _, b := range post {
		if b.Mint != mintStr {
			continue
		}
		after[b.AccountIndex] = b.Amount
		accounts[b.AccountIndex] = b.Owner
	}

	indexes := make([]int, 0, len(accounts))
	for idx := range accounts {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	owners := make(map[domain.Pubkey]*ownerDelta)
	var ordered []*ownerDelta
	for _, idx := range indexes {
		pb, qb := before[idx], after[idx]
		if pb == qb {
			continue
		}
		owner, err := domain.ParsePubkey(accounts[idx])
		if err != nil {
			return nil, fmt.Errorf("account %d owner: %w", idx, err)
		}
		d, ok := owners[owner]
		if !ok {
			d = &ownerDelta{owner: owner}
			owners[owner] = d
			ordered = append(ordered, d)
		}
		if qb > pb {
			d.in += qb - pb
		} else {
			d.out += pb - qb
		}
	}

	var senders, receivers []*ownerDelta
	for _, d := range ordered {
		switch {
		case d.out > d.in:
			d.out, d.in = d.out-d.in, 0
			senders = append(senders, d)
		case d.in > d.out:
			d.in, d.out = d.in-d.out, 0
			receivers = append(receivers, d)
		}
	}

	var moves []Movement
	for i, j := 0, 0; i < len(senders) && j < len(receivers); {
		s, r := senders[i], receivers[j]
		amount := min(s.out, r.in)
		moves = append(moves, Movement{Source: s.owner, Destination: r.owner, Amount: amount})
		s.out -= amount
		r.in -= amount
		if s.out == 0 {
			i++
		}
		if r.in == 0 {
			j++
		}
	}
	return moves, nil
}
