// Package pda derives Solana program-derived addresses. The address of every
// protection window, escrow record and custody vault is computed from its
// logical key, so records never need a free-standing handle.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"solana-launch-guard/internal/domain"
)

// Limits enforced by the Solana runtime.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const pdaMarker = "ProgramDerivedAddress"

// Seed prefixes used by the guard programs.
var (
	SeedAntiSniper = []byte("anti_sniper")
	SeedEscrow     = []byte("escrow")
	SeedVault      = []byte("vault")
)

var (
	// ErrMaxSeedLengthExceeded is returned when a seed is longer than MaxSeedLength.
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	// ErrInvalidSeeds is returned when the derived hash lands on the ed25519 curve
	// or too many seeds are supplied.
	ErrInvalidSeeds = errors.New("provided seeds do not result in a valid address")

	// ErrNoViableNonce is returned when every nonce in [1, 255] yields an on-curve point.
	ErrNoViableNonce = errors.New("unable to find a viable program address nonce")
)

// CreateProgramAddress computes sha256(seeds || nonce || programID || marker)
// and rejects results that are valid ed25519 points.
func CreateProgramAddress(seeds [][]byte, nonce uint8, programID domain.Pubkey) (domain.Pubkey, error) {
	if len(seeds)+1 > MaxSeeds {
		return domain.Pubkey{}, fmt.Errorf("%w: %d seeds", ErrInvalidSeeds, len(seeds))
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return domain.Pubkey{}, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write([]byte{nonce})
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var addr domain.Pubkey
	copy(addr[:], h.Sum(nil))
	if IsOnCurve(addr[:]) {
		return domain.Pubkey{}, ErrInvalidSeeds
	}
	return addr, nil
}

// FindProgramAddress searches nonces from 255 downward and returns the first
// off-curve address together with the nonce that produced it.
func FindProgramAddress(seeds [][]byte, programID domain.Pubkey) (domain.Pubkey, uint8, error) {
	for nonce := uint8(255); nonce > 0; nonce-- {
		addr, err := CreateProgramAddress(seeds, nonce, programID)
		if err == nil {
			return addr, nonce, nil
		}
		if !errors.Is(err, ErrInvalidSeeds) || len(seeds)+1 > MaxSeeds {
			return domain.Pubkey{}, 0, err
		}
	}
	return domain.Pubkey{}, 0, ErrNoViableNonce
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// ProtectionAddress derives the anti-sniper record address for mint.
func ProtectionAddress(mint, programID domain.Pubkey) (domain.Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{SeedAntiSniper, mint[:]}, programID)
}

// EscrowAddress derives the escrow record address for pool.
// The result is also the authority of the pool's custody vault.
func EscrowAddress(pool, programID domain.Pubkey) (domain.Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{SeedEscrow, pool[:]}, programID)
}

// VaultAddress derives the custody vault token account for an escrow.
func VaultAddress(escrow, programID domain.Pubkey) (domain.Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{SeedVault, escrow[:]}, programID)
}
