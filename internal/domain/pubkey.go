package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the length of a Solana public key in bytes.
const PubkeySize = 32

// Pubkey is a 32-byte Solana account address.
type Pubkey [PubkeySize]byte

// ParsePubkey decodes a base58 address.
func ParsePubkey(s string) (Pubkey, error) {
	var p Pubkey
	decoded, err := base58.Decode(s)
	if err != nil {
		return p, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(decoded) != PubkeySize {
		return p, fmt.Errorf("pubkey %q: got %d bytes, want %d", s, len(decoded), PubkeySize)
	}
	copy(p[:], decoded)
	return p, nil
}

// MustPubkey is like ParsePubkey but panics on malformed input.
// Intended for compile-time constants.
func MustPubkey(s string) Pubkey {
	p, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PubkeyFromBytes copies b into a Pubkey. b must be exactly 32 bytes.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var p Pubkey
	if len(b) != PubkeySize {
		return p, fmt.Errorf("pubkey: got %d bytes, want %d", len(b), PubkeySize)
	}
	copy(p[:], b)
	return p, nil
}

// String returns the base58 encoding.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// Bytes returns a copy of the raw key bytes.
func (p Pubkey) Bytes() []byte {
	b := make([]byte, PubkeySize)
	copy(b, p[:])
	return b
}

// IsZero reports whether p is the all-zero key.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
