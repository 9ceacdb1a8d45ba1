// Package amm classifies account owners as automated-market-maker custodians.
package amm

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-launch-guard/internal/authority"
	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
)

// Known AMM program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// OrcaWhirlpool is the Orca Whirlpool program ID.
	OrcaWhirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	// OrcaLegacy is the Orca token-swap v2 program ID.
	OrcaLegacy = "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP"
)

// Aliases maps short venue names to program IDs for configuration.
var Aliases = map[string]string{
	"raydium":        RaydiumAMMV4,
	"orca-whirlpool": OrcaWhirlpool,
	"orca-legacy":    OrcaLegacy,
}

// DefaultPrograms returns the venues classified when nothing is configured.
func DefaultPrograms() []domain.Pubkey {
	return []domain.Pubkey{
		domain.MustPubkey(RaydiumAMMV4),
		domain.MustPubkey(OrcaWhirlpool),
		domain.MustPubkey(OrcaLegacy),
	}
}

// ResolvePrograms parses a mix of aliases and base58 program IDs.
func ResolvePrograms(entries []string) ([]domain.Pubkey, error) {
	out := make([]domain.Pubkey, 0, len(entries))
	for _, e := range entries {
		if id, ok := Aliases[e]; ok {
			e = id
		}
		p, err := domain.ParsePubkey(e)
		if err != nil {
			return nil, fmt.Errorf("amm program %q: %w", e, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Classifier is the membership set of AMM custodian identities.
// Reads are lock-shared; governance writes require an authority credential
// and, when a store is attached, are persisted before they take effect.
type Classifier struct {
	mu       sync.RWMutex
	members  map[domain.Pubkey]struct{}
	govMu    sync.Mutex // orders store writes with member updates
	store    storage.AMMStore
	verifier authority.Verifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewClassifier creates an in-memory classifier seeded with programs.
func NewClassifier(programs []domain.Pubkey, verifier authority.Verifier, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Classifier{
		members:  make(map[domain.Pubkey]struct{}, len(programs)),
		verifier: verifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, p := range programs {
		c.members[p] = struct{}{}
	}
	return c
}

// LoadClassifier seeds store with programs and builds a classifier from the
// stored active set. Programs governance removed earlier stay removed.
func LoadClassifier(ctx context.Context, store storage.AMMStore, programs []domain.Pubkey, verifier authority.Verifier, logger *zap.Logger) (*Classifier, error) {
	c := NewClassifier(nil, verifier, logger)
	c.store = store
	if err := store.Seed(ctx, programs, c.now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("seed amm programs: %w", err)
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh replaces the members with the store's active set. It picks up
// governance changes made by another process sharing the store.
func (c *Classifier) Refresh(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	programs, err := c.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("load amm programs: %w", err)
	}
	members := make(map[domain.Pubkey]struct{}, len(programs))
	for _, p := range programs {
		members[p] = struct{}{}
	}

	c.mu.Lock()
	c.members = members
	c.mu.Unlock()
	return nil
}

// IsAMMAccount reports whether owner is a known AMM custodian.
func (c *Classifier) IsAMMAccount(owner domain.Pubkey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[owner]
	return ok
}

// Members returns the current set sorted by raw bytes.
func (c *Classifier) Members() []domain.Pubkey {
	c.mu.RLock()
	out := make([]domain.Pubkey, 0, len(c.members))
	for p := range c.members {
		out = append(out, p)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// Add registers program as an AMM custodian. Adding an existing member is a no-op.
func (c *Classifier) Add(ctx context.Context, cred authority.Credential, program domain.Pubkey) error {
	if err := c.set(ctx, authority.ActionAddAMM, cred, program, true); err != nil {
		return err
	}
	c.logger.Info("amm program added", zap.Stringer("program", program), zap.Stringer("signer", cred.Signer))
	return nil
}

// Remove unregisters program. Removing a non-member is a no-op.
func (c *Classifier) Remove(ctx context.Context, cred authority.Credential, program domain.Pubkey) error {
	if err := c.set(ctx, authority.ActionRemoveAMM, cred, program, false); err != nil {
		return err
	}
	c.logger.Info("amm program removed", zap.Stringer("program", program), zap.Stringer("signer", cred.Signer))
	return nil
}

func (c *Classifier) set(ctx context.Context, action authority.Action, cred authority.Credential, program domain.Pubkey, active bool) error {
	if program.IsZero() {
		return fmt.Errorf("%s: %w: program is required", action, storage.ErrInvalidInput)
	}
	if err := c.authorize(ctx, action, program, cred); err != nil {
		return err
	}

	c.govMu.Lock()
	defer c.govMu.Unlock()

	if c.store != nil {
		if err := c.store.SetActive(ctx, program, active, c.now().UnixMilli()); err != nil {
			return fmt.Errorf("%s: persist: %w", action, err)
		}
	}

	c.mu.Lock()
	if active {
		c.members[program] = struct{}{}
	} else {
		delete(c.members, program)
	}
	c.mu.Unlock()
	return nil
}

func (c *Classifier) authorize(ctx context.Context, action authority.Action, program domain.Pubkey, cred authority.Credential) error {
	if c.verifier == nil {
		return fmt.Errorf("%s: %w: no governance authority configured", action, authority.ErrUnauthorized)
	}
	if err := c.verifier.Verify(ctx, action, program.String(), cred); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}
