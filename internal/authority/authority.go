// Package authority verifies signer credentials that gate administrative operations.
package authority

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/idhash"
	"solana-launch-guard/internal/storage"
)

// Action names an administrative operation.
type Action string

const (
	ActionInitProtection    Action = "init_protection"
	ActionDisableProtection Action = "disable_protection"
	ActionInitEscrow        Action = "init_escrow"
	ActionAddAMM            Action = "add_amm"
	ActionRemoveAMM         Action = "remove_amm"
	ActionWithdrawEscrow    Action = "withdraw_escrow"
	ActionFundAccount       Action = "fund_account"

	// ActionDeposit is signed by the depositor, not by an authority.
	ActionDeposit Action = "deposit"
)

// DefaultMaxAge bounds how old a credential may be before it is refused.
const DefaultMaxAge = 5 * time.Minute

// maxSkew is how far in the future IssuedAt may be.
const maxSkew = time.Minute

var (
	// ErrUnauthorized is returned when the signer is not a configured authority.
	ErrUnauthorized = errors.New("unauthorized signer")

	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("invalid signature")

	// ErrStaleCredential is returned when IssuedAt is outside the accepted window.
	ErrStaleCredential = errors.New("stale credential")

	// ErrReplayed is returned when a credential has already been used.
	ErrReplayed = errors.New("credential already used")
)

// Credential proves that Signer approved Action on a subject at IssuedAt.
type Credential struct {
	Signer    domain.Pubkey `json:"signer"`
	IssuedAt  int64         `json:"issued_at"` // unix seconds
	Signature []byte        `json:"signature"`
}

// Message returns the canonical bytes a credential signs.
func Message(action Action, subject string, issuedAt int64) []byte {
	return []byte(fmt.Sprintf("launch-guard:%s:%s:%d", action, subject, issuedAt))
}

// Sign produces a credential for action on subject.
func Sign(key ed25519.PrivateKey, action Action, subject string, issuedAt time.Time) Credential {
	var signer domain.Pubkey
	copy(signer[:], key.Public().(ed25519.PublicKey))
	ts := issuedAt.Unix()
	return Credential{
		Signer:    signer,
		IssuedAt:  ts,
		Signature: ed25519.Sign(key, Message(action, subject, ts)),
	}
}

// Verifier checks credentials.
type Verifier interface {
	Verify(ctx context.Context, action Action, subject string, cred Credential) error
}

// Ed25519Verifier accepts credentials signed by any of a fixed set of authorities.
// Solana account keys are ed25519 public keys, so an authority is named by its address.
type Ed25519Verifier struct {
	authorities map[domain.Pubkey]struct{}
	anySigner   bool
	maxAge      time.Duration
	now         func() time.Time
	consumed    storage.CredentialStore
}

// Option configures Ed25519Verifier.
type Option func(*Ed25519Verifier)

// WithMaxAge sets the accepted credential age. Zero disables the check.
func WithMaxAge(d time.Duration) Option {
	return func(v *Ed25519Verifier) {
		v.maxAge = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Ed25519Verifier) {
		v.now = now
	}
}

// WithReplayStore makes credentials single-use: a verified credential is
// recorded in store and a second presentation fails with ErrReplayed.
// Records must outlive the max age, see Purge.
func WithReplayStore(store storage.CredentialStore) Option {
	return func(v *Ed25519Verifier) {
		v.consumed = store
	}
}

// NewEd25519Verifier creates a verifier trusting the given authorities.
func NewEd25519Verifier(authorities []domain.Pubkey, opts ...Option) *Ed25519Verifier {
	v := &Ed25519Verifier{
		authorities: make(map[domain.Pubkey]struct{}, len(authorities)),
		maxAge:      DefaultMaxAge,
		now:         time.Now,
	}
	for _, a := range authorities {
		v.authorities[a] = struct{}{}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewSignerVerifier creates a verifier that accepts any signer whose signature
// and age check out. It proves control of cred.Signer, e.g. a depositor's wallet.
func NewSignerVerifier(opts ...Option) *Ed25519Verifier {
	v := NewEd25519Verifier(nil, opts...)
	v.anySigner = true
	return v
}

// Verify implements Verifier. With a replay store, a credential that verifies
// is consumed and cannot be presented again.
func (v *Ed25519Verifier) Verify(ctx context.Context, action Action, subject string, cred Credential) error {
	if _, ok := v.authorities[cred.Signer]; !ok && !v.anySigner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, cred.Signer)
	}
	now := v.now()
	if v.maxAge > 0 {
		age := now.Sub(time.Unix(cred.IssuedAt, 0))
		if age > v.maxAge || age < -maxSkew {
			return fmt.Errorf("%w: issued at %d", ErrStaleCredential, cred.IssuedAt)
		}
	}
	msg := Message(action, subject, cred.IssuedAt)
	if len(cred.Signature) != ed25519.SignatureSize {
		return ErrBadSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(cred.Signer[:]), msg, cred.Signature) {
		return ErrBadSignature
	}
	if v.consumed == nil {
		return nil
	}

	err := v.consumed.Consume(ctx, &storage.ConsumedCredential{
		ID:         idhash.ComputeCredentialID(cred.Signer.String(), msg),
		Signer:     cred.Signer.String(),
		Action:     string(action),
		IssuedAt:   cred.IssuedAt,
		ConsumedAt: now.UnixMilli(),
	})
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		return fmt.Errorf("%w: %s by %s", ErrReplayed, action, cred.Signer)
	case err != nil:
		return fmt.Errorf("consume credential: %w", err)
	}
	return nil
}

// Purge drops consumed-credential records that can no longer verify because
// their age exceeds the max age. It does nothing without a replay store or
// when the age check is disabled, since every record may still be presented.
func (v *Ed25519Verifier) Purge(ctx context.Context) (int64, error) {
	if v.consumed == nil || v.maxAge <= 0 {
		return 0, nil
	}
	cutoff := v.now().Add(-v.maxAge - maxSkew).Unix()
	return v.consumed.PurgeIssuedBefore(ctx, cutoff)
}

var _ Verifier = (*Ed25519Verifier)(nil)
