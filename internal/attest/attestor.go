// Package attest produces signed market-health attestations for escrow unlocks.
//
// Holder counts come from the token program's accounts for a mint; traded
// volume comes from the swap_volume store. The result is signed with the
// attestor's ed25519 key and is accepted by escrow.Ed25519Attestor.
package attest

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/escrow"
	"solana-launch-guard/internal/solana"
	"solana-launch-guard/internal/storage"
)

// TokenProgramID is the SPL token program owning every token account.
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// SPL token account layout: mint(32) | owner(32) | amount(8) | ...
const (
	tokenAccountSize = 165
	ownerOffset      = 32
	ownerAmountLen   = 40
)

// ErrNoSigningKey is returned when the service has no attestor key.
var ErrNoSigningKey = errors.New("attestor signing key not configured")

// Request names the pool to attest and the mint whose market it reflects.
type Request struct {
	Pool  domain.Pubkey
	Mint  domain.Pubkey
	Since time.Time // start of the volume window; zero counts all recorded volume
}

// Service gathers holder and volume figures and signs them.
type Service struct {
	rpc     solana.RPCClient
	volumes storage.VolumeStore
	key     ed25519.PrivateKey
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates an attestation service.
func NewService(rpc solana.RPCClient, volumes storage.VolumeStore, key ed25519.PrivateKey, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		rpc:     rpc,
		volumes: volumes,
		key:     key,
		logger:  logger,
		now:     time.Now,
	}
}

// Signer returns the public key attestations are signed with.
func (s *Service) Signer() domain.Pubkey {
	var p domain.Pubkey
	if len(s.key) == ed25519.PrivateKeySize {
		copy(p[:], s.key.Public().(ed25519.PublicKey))
	}
	return p
}

// Attest counts holders and volume for req and returns the signed attestation.
func (s *Service) Attest(ctx context.Context, req Request) (escrow.Attestation, error) {
	if len(s.key) != ed25519.PrivateKeySize {
		return escrow.Attestation{}, ErrNoSigningKey
	}
	if req.Pool.IsZero() || req.Mint.IsZero() {
		return escrow.Attestation{}, fmt.Errorf("%w: pool and mint are required", storage.ErrInvalidInput)
	}

	holders, err := s.CountHolders(ctx, req.Mint)
	if err != nil {
		return escrow.Attestation{}, fmt.Errorf("count holders: %w", err)
	}

	issuedAt := s.now()
	var start int64
	if !req.Since.IsZero() {
		start = req.Since.UnixMilli()
	}
	volume, err := s.volumes.SumVolumeUSD(ctx, req.Mint.String(), start, issuedAt.UnixMilli())
	if err != nil {
		return escrow.Attestation{}, fmt.Errorf("sum volume: %w", err)
	}

	a := escrow.SignAttestation(s.key, req.Pool, holders, volume, issuedAt)
	s.logger.Info("attestation signed",
		zap.Stringer("pool", req.Pool),
		zap.Stringer("mint", req.Mint),
		zap.Uint64("holders", holders),
		zap.Uint64("volume_usd", volume),
		zap.Int64("issued_at", a.IssuedAt),
	)
	return a, nil
}

// CountHolders returns the number of distinct owners with a non-zero balance of mint.
func (s *Service) CountHolders(ctx context.Context, mint domain.Pubkey) (uint64, error) {
	accounts, err := s.rpc.GetProgramAccounts(ctx, TokenProgramID, &solana.ProgramAccountsOpts{
		DataSize:    tokenAccountSize,
		Memcmp:      []solana.Memcmp{{Offset: 0, Bytes: mint.String()}},
		SliceOffset: ownerOffset,
		SliceLength: ownerAmountLen,
	})
	if err != nil {
		return 0, err
	}

	owners := make(map[domain.Pubkey]struct{}, len(accounts))
	for _, acct := range accounts {
		if len(acct.Data) < ownerAmountLen {
			s.logger.Warn("short token account data", zap.String("account", acct.Pubkey), zap.Int("len", len(acct.Data)))
			continue
		}
		if binary.LittleEndian.Uint64(acct.Data[32:40]) == 0 {
			continue
		}
		var owner domain.Pubkey
		copy(owner[:], acct.Data[:32])
		owners[owner] = struct{}{}
	}
	return uint64(len(owners)), nil
}
