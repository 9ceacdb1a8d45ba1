package pda

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-guard/internal/domain"
)

var (
	testProgram = domain.MustPubkey("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	testMint    = domain.MustPubkey("So11111111111111111111111111111111111111112")
)

func TestFindProgramAddress_Deterministic(t *testing.T) {
	addr1, nonce1, err := ProtectionAddress(testMint, testProgram)
	require.NoError(t, err)
	addr2, nonce2, err := ProtectionAddress(testMint, testProgram)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.Equal(t, nonce1, nonce2)
	assert.False(t, IsOnCurve(addr1[:]), "derived address must be off curve")
}

func TestFindProgramAddress_RecreatesWithNonce(t *testing.T) {
	seeds := [][]byte{SeedEscrow, testMint[:]}
	addr, nonce, err := FindProgramAddress(seeds, testProgram)
	require.NoError(t, err)

	again, err := CreateProgramAddress(seeds, nonce, testProgram)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
}

func TestFindProgramAddress_SeedsSeparateNamespaces(t *testing.T) {
	protection, _, err := ProtectionAddress(testMint, testProgram)
	require.NoError(t, err)
	escrow, _, err := EscrowAddress(testMint, testProgram)
	require.NoError(t, err)
	vault, _, err := VaultAddress(escrow, testProgram)
	require.NoError(t, err)

	assert.NotEqual(t, protection, escrow)
	assert.NotEqual(t, escrow, vault)

	otherProgram := domain.MustPubkey("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	elsewhere, _, err := EscrowAddress(testMint, otherProgram)
	require.NoError(t, err)
	assert.NotEqual(t, escrow, elsewhere)
}

func TestCreateProgramAddress_SeedLimits(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, 255, testProgram)
	assert.ErrorIs(t, err, ErrMaxSeedLengthExceeded)

	tooMany := make([][]byte, MaxSeeds)
	for i := range tooMany {
		tooMany[i] = []byte{byte(i)}
	}
	_, _, err = FindProgramAddress(tooMany, testProgram)
	assert.ErrorIs(t, err, ErrInvalidSeeds)
}

func TestIsOnCurve(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	assert.True(t, IsOnCurve(pub))
	assert.False(t, IsOnCurve(pub[:31]))
}
