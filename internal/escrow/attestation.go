package escrow

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"time"

	"solana-launch-guard/internal/domain"
)

// DefaultAttestationMaxAge bounds how old an attestation may be when applied.
const DefaultAttestationMaxAge = 10 * time.Minute

var (
	// ErrUnknownAttestor is returned when the signer is not a configured attestor key.
	ErrUnknownAttestor = errors.New("unknown attestor")

	// ErrAttestationSignature is returned when the signature does not cover the payload.
	ErrAttestationSignature = errors.New("invalid attestation signature")

	// ErrAttestationStale is returned when the attestation is older than the max age
	// or issued in the future.
	ErrAttestationStale = errors.New("stale attestation")

	// ErrAttestationMismatch is returned when the attestation names another pool.
	ErrAttestationMismatch = errors.New("attestation pool mismatch")
)

// Attestation is an attestor's signed statement of a pool's market health.
type Attestation struct {
	Pool      domain.Pubkey `json:"pool"`
	Holders   uint64        `json:"holders"`
	VolumeUSD uint64        `json:"volume_usd"`
	IssuedAt  int64         `json:"issued_at"` // unix seconds
	Signer    domain.Pubkey `json:"signer"`
	Signature []byte        `json:"signature"`
}

// Payload returns the canonical bytes covered by the signature.
func (a Attestation) Payload() []byte {
	b := make([]byte, 0, 128)
	b = append(b, "launch-guard:attestation:"...)
	b = append(b, a.Pool.String()...)
	b = append(b, ':')
	b = strconv.AppendUint(b, a.Holders, 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, a.VolumeUSD, 10)
	b = append(b, ':')
	b = strconv.AppendInt(b, a.IssuedAt, 10)
	return b
}

// SignAttestation builds and signs an attestation with key.
func SignAttestation(key ed25519.PrivateKey, pool domain.Pubkey, holders, volumeUSD uint64, issuedAt time.Time) Attestation {
	var signer domain.Pubkey
	copy(signer[:], key.Public().(ed25519.PublicKey))

	a := Attestation{
		Pool:      pool,
		Holders:   holders,
		VolumeUSD: volumeUSD,
		IssuedAt:  issuedAt.Unix(),
		Signer:    signer,
	}
	a.Signature = ed25519.Sign(key, a.Payload())
	return a
}

// Attestor verifies attestations before the ledger acts on them.
type Attestor interface {
	Verify(a Attestation) error
}

// Ed25519Attestor accepts attestations signed by one of a fixed set of keys.
type Ed25519Attestor struct {
	keys   map[domain.Pubkey]struct{}
	maxAge time.Duration
	now    func() time.Time
}

// NewEd25519Attestor creates an attestor trusting keys. maxAge <= 0 uses
// DefaultAttestationMaxAge.
func NewEd25519Attestor(keys []domain.Pubkey, maxAge time.Duration) *Ed25519Attestor {
	if maxAge <= 0 {
		maxAge = DefaultAttestationMaxAge
	}
	a := &Ed25519Attestor{
		keys:   make(map[domain.Pubkey]struct{}, len(keys)),
		maxAge: maxAge,
		now:    time.Now,
	}
	for _, k := range keys {
		a.keys[k] = struct{}{}
	}
	return a
}

// Verify implements Attestor.
func (v *Ed25519Attestor) Verify(a Attestation) error {
	if _, ok := v.keys[a.Signer]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAttestor, a.Signer)
	}
	age := v.now().Sub(time.Unix(a.IssuedAt, 0))
	if age > v.maxAge || age < -time.Minute {
		return fmt.Errorf("%w: issued at %d", ErrAttestationStale, a.IssuedAt)
	}
	if len(a.Signature) != ed25519.SignatureSize || !ed25519.Verify(a.Signer[:], a.Payload(), a.Signature) {
		return ErrAttestationSignature
	}
	return nil
}

func attestationReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownAttestor):
		return "unknown_signer"
	case errors.Is(err, ErrAttestationStale):
		return "stale"
	case errors.Is(err, ErrAttestationSignature):
		return "bad_signature"
	}
	return "other"
}

var _ Attestor = (*Ed25519Attestor)(nil)
